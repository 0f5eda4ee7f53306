package main

import (
	"github.com/spf13/cobra"

	"github.com/scentdesk/fragrance-cli/internal/resolver"
)

var (
	notesLimit    int
	notesProvider string
	notesUser     string
)

var notesCmd = &cobra.Command{
	Use:   "notes <brand> <name>",
	Short: "Suggest the scent note pyramid for a fragrance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initResolver(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.Resolver.SuggestNotes(ctx, resolver.NotesRequest{
			Brand:     args[0],
			Name:      args[1],
			NoteLimit: notesLimit,
			Provider:  notesProvider,
			UserID:    notesUser,
		})
		if err != nil {
			return err
		}

		return printJSON(resp)
	},
}

var attributesCmd = &cobra.Command{
	Use:   "attributes <name>",
	Short: "Suggest wearing attributes for a fragrance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initResolver(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.Resolver.SuggestAttributes(ctx, resolver.AttributesRequest{
			Name:     args[0],
			Provider: notesProvider,
			UserID:   notesUser,
		})
		if err != nil {
			return err
		}

		return printJSON(resp)
	},
}

func init() {
	notesCmd.Flags().IntVar(&notesLimit, "limit", 0, "max notes per pyramid layer")
	notesCmd.Flags().StringVar(&notesProvider, "provider", "", "force a specific provider")
	notesCmd.Flags().StringVar(&notesUser, "user", "", "user id for cost attribution and limits")
	attributesCmd.Flags().StringVar(&notesProvider, "provider", "", "force a specific provider")
	attributesCmd.Flags().StringVar(&notesUser, "user", "", "user id for cost attribution and limits")
	rootCmd.AddCommand(notesCmd)
	rootCmd.AddCommand(attributesCmd)
}
