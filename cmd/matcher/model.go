package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/listing-matcher/internal/config"
	"github.com/listing-matcher/internal/match"
)

func createFeedbackCmd() *cobra.Command {
	var (
		wrong       bool
		autoRetrain bool
	)

	cmd := &cobra.Command{
		Use:   "feedback [listing-id] [address-id]",
		Short: "Confirm or reject a listing-address pair",
		Long:  `Record an operator verdict as a training example. The pair is confirmed unless --wrong is given.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := application.Feedback(cmd.Context(), args[0], args[1], !wrong, autoRetrain)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().BoolVar(&wrong, "wrong", false, "Mark the pair as an incorrect match")
	cmd.Flags().BoolVar(&autoRetrain, "auto-retrain", false, "Retrain as soon as enough examples exist")
	return cmd
}

func createRetrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retrain",
		Short: "Retrain the scoring model from stored feedback",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := application.Retrain(cmd.Context())
			if err != nil {
				return err
			}
			if !report.Applied {
				fmt.Printf("Retrain skipped: %s (%d positive, %d negative, %d total)\n",
					report.Reason, report.Positive, report.Negative, report.Total)
				return nil
			}
			fmt.Printf("Model updated: version %d -> %d\n", report.FromVersion, report.ToVersion)
			return printJSON(application.Model())
		},
	}
}

func createModelCmd() *cobra.Command {
	modelCmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect or seed the scoring model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(application.Model())
		},
	}

	modelCmd.AddCommand(&cobra.Command{
		Use:   "export-seed [filename]",
		Short: "Write the active weights and thresholds as a YAML seed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.SaveModelSeed(args[0], application.Model()); err != nil {
				return err
			}
			fmt.Printf("Seed written to %s\n", args[0])
			return nil
		},
	})

	modelCmd.AddCommand(&cobra.Command{
		Use:   "load-seed [filename]",
		Short: "Replace the active model with a YAML seed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := config.LoadModelSeed(args[0])
			if err != nil {
				return err
			}
			seed.Version = application.Model().Version + 1
			application.Matcher.Holder().Replace(seed)
			if err := match.SaveModel(cmd.Context(), application.KV, seed); err != nil {
				return err
			}
			fmt.Printf("Model replaced from %s as version %d\n", args[0], seed.Version)
			return nil
		},
	})

	modelCmd.AddCommand(&cobra.Command{
		Use:   "explain [listing-id] [address-id]",
		Short: "Show the feature contributions for a listing-address pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			listing, err := application.Listings.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if listing == nil {
				return fmt.Errorf("%w: listing %s", match.ErrNotFound, args[0])
			}
			addr, err := application.Addresses.GetByID(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			if addr == nil {
				return fmt.Errorf("%w: address %s", match.ErrNotFound, args[1])
			}

			model := application.Model()
			fv := application.Matcher.Extractor().ExtractDebug(localDebug, *listing, *addr)
			if err := printJSON(model.Explain(fv)); err != nil {
				return err
			}
			if radius := application.Matcher.ProximityRadius(); fv.DistanceMeters <= radius {
				fmt.Printf("Within %.0f m: score raised to at least %.2f and confidence to at least high if this pair wins\n",
					radius, match.HighConfidenceFloor)
			}
			return nil
		},
	})

	return modelCmd
}
