package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/analyzer"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/config"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/vecindex"
)

func searchCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Find scenes whose descriptions are similar to a query",
		Long:  "Searches the vector index over analyzed scene descriptions. Requires the index.dsn and analysis.api_key settings.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.store)
			if err != nil {
				return err
			}
			if cfg.IndexDSN == "" {
				return fmt.Errorf("scene index not configured; set index.dsn first")
			}
			if cfg.APIKey == "" {
				return fmt.Errorf("no API key configured; embeddings need analysis.api_key")
			}

			client := analyzer.NewClient(a.logger)
			tiers := analyzer.ModelTiers{Primary: cfg.Model, Standard: cfg.FallbackModel, Minimal: cfg.MinimalModel}
			if err := client.Configure(cfg.APIKey, cfg.BaseURL, tiers); err != nil {
				return err
			}

			idx, err := vecindex.Open(cmd.Context(), cfg.IndexDSN, client.Embed, a.logger)
			if err != nil {
				return err
			}
			defer idx.Close()

			results, err := idx.Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, r := range results {
				fmt.Printf("%5.1f%%  session %d  %8.2fs  %s\n",
					r.Similarity*100, r.SessionID, r.Timestamp, r.Description)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results")
	return cmd
}
