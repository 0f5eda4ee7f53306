package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scentdesk/fragrance-cli/internal/model"
)

var catalogFile string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the canonical fragrance catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load canonical fragrance records from a JSON file",
	Long: `Reads a JSON array of canonical fragrance records and upserts them
into the catalog. Existing records with the same brand and name are
updated in place. Imported pairs are served directly on normalize
requests without a provider call.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		records, err := readCatalogFile(catalogFile)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return eris.Errorf("catalog: %s contains no records", catalogFile)
		}

		// Only the store is needed here, so skip provider setup entirely.
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "catalog: migrate store")
		}

		n, err := st.UpsertCanonicalBatch(ctx, records)
		if err != nil {
			return eris.Wrap(err, "catalog: import")
		}

		fmt.Printf("imported %d of %d records from %s\n", n, len(records), catalogFile)
		return nil
	},
}

func readCatalogFile(path string) ([]model.CanonicalFragrance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	var records []model.CanonicalFragrance
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, eris.Wrapf(err, "catalog: parse %s", path)
	}
	return records, nil
}

func init() {
	catalogImportCmd.Flags().StringVar(&catalogFile, "file", "", "path to a JSON array of canonical records (required)")
	_ = catalogImportCmd.MarkFlagRequired("file")

	catalogCmd.AddCommand(catalogImportCmd)
	rootCmd.AddCommand(catalogCmd)
}
