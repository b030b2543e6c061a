package main

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/storage"
)

// app carries the shared state every command needs: the logger and the open
// database.
type app struct {
	logger  *slog.Logger
	store   *storage.Store
	dbPath  string
	verbose bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "sceneanalyzer",
		Short:         "Detect, extract and describe scenes in video files",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelInfo
			if a.verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(
				tint.NewHandler(os.Stderr, &tint.Options{
					Level:      level,
					TimeFormat: "15:04:05",
				}),
			)

			store, err := storage.Open(a.dbPath, a.logger)
			if err != nil {
				return err
			}
			a.store = store
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.store != nil {
				a.store.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&a.dbPath, "db", storage.DefaultDBPath(), "database path")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(
		analyzeCmd(a),
		sessionsCmd(a),
		exportCmd(a),
		promptsCmd(a),
		settingsCmd(a),
		searchCmd(a),
		resetCmd(a),
		browseCmd(a),
	)
	return cmd
}
