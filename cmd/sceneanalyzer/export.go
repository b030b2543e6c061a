package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func exportCmd(a *app) *cobra.Command {
	var (
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a session's scenes as JSON or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid session id %q", args[0])
			}

			if format == "" {
				format, _ = a.store.Setting("export.default_format")
			}

			var data []byte
			switch format {
			case "json":
				data, err = a.store.ExportJSON(sessionID)
			case "csv":
				data, err = a.store.ExportCSV(sessionID)
			default:
				return fmt.Errorf("unknown format %q (json or csv)", format)
			}
			if err != nil {
				return err
			}

			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			a.logger.Info("session exported", "session", sessionID, "format", format, "path", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "output format: json or csv (default: export.default_format setting)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: stdout)")
	return cmd
}
