package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	import_pkg "github.com/listing-matcher/internal/import"
)

// createImportCmd creates the import subcommand
func createImportCmd() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import reference addresses and listings",
		Long:  `Import CSV files of reference addresses (id,address,lat,lng) and scraped listings`,
	}

	importCmd.AddCommand(createImportAddressesCmd())
	importCmd.AddCommand(createImportListingsCmd())

	return importCmd
}

func createImportAddressesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "addresses [filename]",
		Short: "Import reference addresses CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer file.Close()

			stats, err := import_pkg.ImportAddresses(cmd.Context(), localDebug, file, application.Addresses)
			if err != nil {
				return fmt.Errorf("failed to import addresses: %w", err)
			}
			printImportStats("addresses", stats)
			return nil
		},
	}
}

func createImportListingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listings [filename]",
		Short: "Import scraped listings CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer file.Close()

			stats, err := import_pkg.ImportListings(cmd.Context(), localDebug, file, application.Listings)
			if err != nil {
				return fmt.Errorf("failed to import listings: %w", err)
			}
			printImportStats("listings", stats)
			return nil
		},
	}
}

func printImportStats(kind string, stats import_pkg.Stats) {
	fmt.Printf("Imported %d %s, skipped %d\n", stats.Imported, kind, stats.Skipped)
	for i, msg := range stats.Errors {
		if i == 10 {
			fmt.Printf("  ... and %d more\n", len(stats.Errors)-i)
			break
		}
		fmt.Printf("  %s\n", msg)
	}
}
