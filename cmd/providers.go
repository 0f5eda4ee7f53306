package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scentdesk/fragrance-cli/internal/provider"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List AI providers and their availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initResolver(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROVIDER\tAVAILABLE\tDEFAULT")
		for _, info := range env.Resolver.ListProviders() {
			def := ""
			if info.Default {
				def = "*"
			}
			fmt.Fprintf(tw, "%s\t%v\t%s\n", info.Name, info.Available, def)
		}
		return tw.Flush()
	},
}

var healthProvider string

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Ping available providers and report status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initResolver(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		report := env.Resolver.HealthCheck(ctx, provider.ID(healthProvider))

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROVIDER\tHEALTHY\tLATENCY\tBREAKER\tERROR")
		for _, p := range report.Providers {
			fmt.Fprintf(tw, "%s\t%v\t%dms\t%s\t%s\n", p.Provider, p.Healthy, p.LatencyMs, p.Breaker, p.Error)
		}
		tw.Flush()
		fmt.Printf("\nstatus: %s\n", report.Status)

		if report.Status == "critical" {
			return eris.New("health: no provider is reachable")
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthProvider, "provider", "", "check a single provider instead of the whole fleet")
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(healthCmd)
}
