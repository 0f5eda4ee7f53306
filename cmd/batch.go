package main

import (
	"bufio"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scentdesk/fragrance-cli/internal/resolver"
)

var (
	batchFile     string
	batchLang     string
	batchProvider string
	batchUser     string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run multiple resolutions in one call",
	Long:  "Batch subcommands read items from arguments or from a file (one item per line) and resolve them concurrently, reporting per-item results.",
}

var batchCompleteCmd = &cobra.Command{
	Use:   "complete [query ...]",
	Short: "Resolve suggestions for multiple queries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		queries, err := batchItems(args)
		if err != nil {
			return err
		}

		env, err := initResolver(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		reqs := make([]resolver.CompleteRequest, len(queries))
		for i, q := range queries {
			reqs[i] = resolver.CompleteRequest{
				Query:    q,
				Language: batchLang,
				Provider: batchProvider,
				UserID:   batchUser,
			}
		}

		resp, err := env.Resolver.BatchComplete(ctx, reqs)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var batchNormalizeCmd = &cobra.Command{
	Use:   "normalize [brand|name ...]",
	Short: "Normalize multiple brand/fragrance pairs",
	Long:  "Each item is a brand and fragrance name separated by '|', e.g. 'Dior|Sauvage'.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		lines, err := batchItems(args)
		if err != nil {
			return err
		}

		reqs := make([]resolver.NormalizeRequest, 0, len(lines))
		for _, line := range lines {
			brand, name, ok := strings.Cut(line, "|")
			if !ok {
				return eris.Errorf("batch: item %q is not in brand|name form", line)
			}
			reqs = append(reqs, resolver.NormalizeRequest{
				Brand:    strings.TrimSpace(brand),
				Name:     strings.TrimSpace(name),
				Language: batchLang,
				Provider: batchProvider,
				UserID:   batchUser,
			})
		}

		env, err := initResolver(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.Resolver.BatchNormalize(ctx, reqs)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

// batchItems merges positional arguments with non-blank lines from the
// optional input file.
func batchItems(args []string) ([]string, error) {
	items := append([]string(nil), args...)

	if batchFile != "" {
		f, err := os.Open(batchFile)
		if err != nil {
			return nil, eris.Wrap(err, "batch: open input file")
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			items = append(items, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, eris.Wrap(err, "batch: read input file")
		}
	}

	if len(items) == 0 {
		return nil, eris.New("batch: no items given (pass arguments or --file)")
	}
	return items, nil
}

func init() {
	batchCmd.PersistentFlags().StringVar(&batchFile, "file", "", "read items from file, one per line")
	batchCmd.PersistentFlags().StringVar(&batchLang, "lang", "", "language hint for every item")
	batchCmd.PersistentFlags().StringVar(&batchProvider, "provider", "", "force a specific provider")
	batchCmd.PersistentFlags().StringVar(&batchUser, "user", "", "user id for cost attribution and limits")
	batchCmd.AddCommand(batchCompleteCmd)
	batchCmd.AddCommand(batchNormalizeCmd)
	rootCmd.AddCommand(batchCmd)
}
