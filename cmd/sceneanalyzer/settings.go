package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func settingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and change persisted configuration",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := a.store.Settings()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tVALUE")
			for _, st := range settings {
				value := st.Value
				if strings.Contains(st.Key, "api_key") && value != "" {
					value = "(set)"
				}
				fmt.Fprintf(w, "%s\t%s\n", st.Key, value)
			}
			return w.Flush()
		},
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.store.Setting(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a setting value",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.store.SetSetting(args[0], args[1])
		},
	}

	cmd.AddCommand(list, get, set)
	return cmd
}
