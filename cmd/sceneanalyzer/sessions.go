package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func sessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect analysis sessions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions, err := a.store.Sessions()
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("No sessions yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tVIDEO\tSCENES\tTHRESHOLD\tMIN DUR\tCREATED")
			for _, sess := range sessions {
				videoName := "?"
				if v, err := a.store.Video(sess.VideoID); err == nil {
					videoName = filepath.Base(v.FilePath)
				}
				scenes, _ := a.store.ScenesForSession(sess.ID)
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%.1f\t%.1fs\t%s\n",
					sess.ID, sess.Name, videoName, len(scenes),
					sess.DetectionThreshold, sess.MinSceneDuration,
					sess.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(list)
	return cmd
}
