package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func promptsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Manage reusable analysis prompts",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			prompts, err := a.store.Prompts()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCONTENT")
			for _, p := range prompts {
				fmt.Fprintf(w, "%s\t%s\n", p.Name, p.Content)
			}
			return w.Flush()
		},
	}

	add := &cobra.Command{
		Use:   "add <name> <content>",
		Short: "Add a prompt, or replace the content of an existing one",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.store.SavePrompt(args[0], args[1])
		},
	}

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.store.DeletePrompt(args[0])
		},
	}

	cmd.AddCommand(list, add, del)
	return cmd
}
