package main

import (
	"github.com/spf13/cobra"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/tui"
)

func browseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse sessions and scenes interactively",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return tui.Browse(a.store)
		},
	}
}
