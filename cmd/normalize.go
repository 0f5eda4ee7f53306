package main

import (
	"github.com/spf13/cobra"

	"github.com/scentdesk/fragrance-cli/internal/resolver"
)

var (
	normalizeLang     string
	normalizeProvider string
	normalizeUser     string
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize <brand> <name>",
	Short: "Resolve the canonical multilingual form of a brand/fragrance pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initResolver(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.Resolver.Normalize(ctx, resolver.NormalizeRequest{
			Brand:    args[0],
			Name:     args[1],
			Language: normalizeLang,
			Provider: normalizeProvider,
			UserID:   normalizeUser,
		})
		if err != nil {
			return err
		}

		return printJSON(resp)
	},
}

func init() {
	normalizeCmd.Flags().StringVar(&normalizeLang, "lang", "", "source language hint (e.g. en, ja)")
	normalizeCmd.Flags().StringVar(&normalizeProvider, "provider", "", "force a specific provider")
	normalizeCmd.Flags().StringVar(&normalizeUser, "user", "", "user id for cost attribution and limits")
	rootCmd.AddCommand(normalizeCmd)
}
