package main

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/listing-matcher/internal/match"
)

// createMatchCmd creates the match subcommand
func createMatchCmd() *cobra.Command {
	var (
		rematch   bool
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match stored listings to reference addresses",
		Long:  `Match every listing without a matched address, or all listings with --rematch, using the active model`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if batchSize <= 0 {
				return fmt.Errorf("--batch-size must be > 0")
			}

			listings, err := application.Listings.List(cmd.Context())
			if err != nil {
				return err
			}

			pending := make([]match.Listing, 0, len(listings))
			for _, l := range listings {
				if rematch || !l.IsMatched() {
					pending = append(pending, l)
				}
			}
			if len(pending) == 0 {
				fmt.Println("Nothing to match")
				return nil
			}

			bar := progressbar.NewOptions(len(pending),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("Matching listings"),
			)

			total := match.BatchSummary{ByConfidence: make(map[match.Confidence]int)}
			for start := 0; start < len(pending); start += batchSize {
				end := min(start+batchSize, len(pending))
				summary, _, err := application.MatchListings(cmd.Context(), localDebug, pending[start:end])
				addSummary(&total, summary)
				bar.Add(end - start)
				if err != nil {
					return err
				}
				if err := cmd.Context().Err(); err != nil {
					return err
				}
			}
			bar.Finish()
			fmt.Fprintln(os.Stderr)

			if err := application.Publisher.PublishBatch(total); err != nil {
				logger.Warn().Err(err).Msg("failed to publish batch summary")
			}
			printSummary(total)
			return nil
		},
	}

	cmd.Flags().BoolVar(&rematch, "rematch", false, "Rematch listings that already have a match")
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "Listings per batch")
	return cmd
}

func addSummary(total *match.BatchSummary, s match.BatchSummary) {
	total.Total += s.Total
	total.Matched += s.Matched
	total.Unmatchable += s.Unmatchable
	total.Errored += s.Errored
	total.Cancelled += s.Cancelled
	total.Overrides += s.Overrides
	total.Duration += s.Duration
	total.ModelVersion = s.ModelVersion
	for c, n := range s.ByConfidence {
		total.ByConfidence[c] += n
	}
}

func printSummary(s match.BatchSummary) {
	fmt.Println("=== Matching Complete ===")
	fmt.Printf("Processed:           %d\n", s.Total)
	fmt.Printf("Matched:             %d\n", s.Matched)
	fmt.Printf("Unmatchable:         %d\n", s.Unmatchable)
	fmt.Printf("Errored:             %d\n", s.Errored)
	fmt.Printf("Cancelled:           %d\n", s.Cancelled)
	fmt.Printf("Proximity overrides: %d\n", s.Overrides)
	for _, c := range match.AllConfidences() {
		fmt.Printf("  %-10s %d\n", c.String()+":", s.ByConfidence[c])
	}
	fmt.Printf("Model version:       %d\n", s.ModelVersion)
	fmt.Printf("Took:                %v\n", s.Duration.Round(time.Millisecond))
}
