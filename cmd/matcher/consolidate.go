package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/listing-matcher/internal/export"
)

func createConsolidateCmd() *cobra.Command {
	var (
		radius float64
		apply  bool
	)

	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Group duplicate listings into canonical objects",
		Long:  `Group listings by proximity and merge consistent groups. Without --apply nothing is stored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := application.Consolidate(cmd.Context(), radius, apply)
			if err != nil {
				return err
			}

			fmt.Printf("Groups:        %d\n", len(report.Groups))
			fmt.Printf("Inconsistent:  %d\n", len(report.Inconsistent))
			fmt.Printf("Objects:       %d\n", len(report.Objects))
			for _, g := range report.Inconsistent {
				fmt.Printf("  inconsistent: %s\n", strings.Join(g.IDs(), ", "))
			}
			for _, obj := range report.Objects {
				fmt.Printf("  %s  %d listings  %s\n", obj.ID, obj.ListingCount, obj.AddressText)
			}
			if !apply {
				fmt.Println("Dry run, use --apply to store the objects")
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&radius, "radius", 0, "Grouping radius in meters (default from CONSOLIDATION_RADIUS_METERS)")
	cmd.Flags().BoolVar(&apply, "apply", false, "Store objects and listing back-references")
	return cmd
}

func createCheckCmd() *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Recompute match distances and report proximity violations",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := application.Check(cmd.Context(), apply)
			if err != nil {
				return err
			}

			rec := result.Reconciliation
			fmt.Printf("Checked %d matched listings: %d distances updated, %d promoted, %d missing addresses\n",
				rec.Checked, rec.Updated, rec.Promoted, rec.MissingAddress)
			if len(result.Violations) == 0 {
				fmt.Println("No proximity violations")
				return nil
			}

			fmt.Printf("%d proximity violations:\n", len(result.Violations))
			for _, v := range result.Violations {
				fmt.Printf("  %s -> %s  %.1f m  score %.3f  %s\n",
					v.ListingID, v.AddressID, v.DistanceMeters, v.Score, v.Confidence)
			}
			if !apply {
				return fmt.Errorf("proximity invariant violated, rerun with --apply to reconcile")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "Store reconciled listings")
	return cmd
}

func createStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show listing, training and model statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := application.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func createExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [output-dir]",
		Short: "Export listings with match columns to one CSV per source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listings, err := application.Listings.List(cmd.Context())
			if err != nil {
				return err
			}

			counts, err := export.NewExporter(application.Addresses).ExportBySource(cmd.Context(), args[0], listings)
			if err != nil {
				return err
			}
			for path, n := range counts {
				fmt.Printf("Exported %d listings to %s\n", n, path)
			}
			return nil
		},
	}
}

func createHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [listing-id]",
		Short: "Show the audit trail of a listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := application.Audit.History(cmd.Context(), localDebug, args[0])
			if err != nil {
				return err
			}
			if len(history) == 0 {
				fmt.Printf("No decisions recorded for %s\n", args[0])
				return nil
			}
			for _, e := range history {
				fmt.Printf("%s  %-11s %-8s %.3f %-9s v%d  %s\n",
					e.DecidedAt.Format("2006-01-02 15:04:05"), e.Decision, e.AddressID, e.Score,
					e.Confidence, e.ModelVersion, e.DecidedBy)
			}
			return nil
		},
	}
}
