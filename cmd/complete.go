package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scentdesk/fragrance-cli/internal/model"
	"github.com/scentdesk/fragrance-cli/internal/resolver"
)

var (
	completeType     string
	completeLimit    int
	completeLang     string
	completeProvider string
	completeUser     string
	completeJSON     bool
)

var completeCmd = &cobra.Command{
	Use:   "complete <query>",
	Short: "Suggest fragrances or brands for a partial query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initResolver(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.Resolver.Complete(ctx, resolver.CompleteRequest{
			Query:    strings.Join(args, " "),
			Type:     model.SuggestionKind(completeType),
			Limit:    completeLimit,
			Language: completeLang,
			Provider: completeProvider,
			UserID:   completeUser,
		})
		if err != nil {
			return err
		}

		if completeJSON {
			return printJSON(resp)
		}

		formatSuggestions(os.Stdout, resp)
		return nil
	},
}

func formatSuggestions(w *os.File, resp *resolver.CompleteResponse) {
	if len(resp.Suggestions) == 0 {
		fmt.Fprintln(os.Stderr, "No suggestions.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tBRAND\tKIND\tCONFIDENCE")
	for _, s := range resp.Suggestions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n", s.DisplayText, s.BrandName, s.Kind, s.Confidence)
	}
	tw.Flush()

	source := resp.Meta.Provider
	if resp.Cached {
		source += " (cached)"
	}
	fmt.Fprintf(w, "\nprovider: %s  cost: $%.6f\n", source, resp.CostUSD)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	completeCmd.Flags().StringVar(&completeType, "type", "", "suggestion kind: brand or fragrance (default fragrance)")
	completeCmd.Flags().IntVar(&completeLimit, "limit", 0, "max suggestions (default 10, max 20)")
	completeCmd.Flags().StringVar(&completeLang, "lang", "", "response language hint (e.g. en, ja)")
	completeCmd.Flags().StringVar(&completeProvider, "provider", "", "force a specific provider")
	completeCmd.Flags().StringVar(&completeUser, "user", "", "user id for cost attribution and limits")
	completeCmd.Flags().BoolVar(&completeJSON, "json", false, "emit raw JSON")
	rootCmd.AddCommand(completeCmd)
}
