package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/listing-matcher/internal/audit"
	"github.com/listing-matcher/internal/consolidate"
	"github.com/listing-matcher/internal/match"
)

// ObjectsKey is the KV key holding the canonical objects of the last applied consolidation
const ObjectsKey = "canonical_objects"

// MatchPending matches every stored listing that has not been matched yet, or all listings
// when rematch is set. Updated listings are written back before the summary is returned.
func (a *App) MatchPending(ctx context.Context, localDebug bool, rematch bool) (match.BatchSummary, []match.Outcome, error) {
	listings, err := a.Listings.List(ctx)
	if err != nil {
		return match.BatchSummary{}, nil, fmt.Errorf("failed to list listings: %w", err)
	}

	pending := make([]match.Listing, 0, len(listings))
	for _, l := range listings {
		if rematch || !l.IsMatched() {
			pending = append(pending, l)
		}
	}

	summary, outcomes := a.Matcher.MatchBatch(ctx, pending)
	if err := a.storeOutcomes(ctx, localDebug, outcomes); err != nil {
		return summary, outcomes, err
	}

	if err := a.Publisher.PublishBatch(summary); err != nil {
		a.logger.Warn().Err(err).Msg("failed to publish batch summary")
	}
	return summary, outcomes, nil
}

// MatchListings matches the given listings, stores them and returns the outcomes in input order
func (a *App) MatchListings(ctx context.Context, localDebug bool, listings []match.Listing) (match.BatchSummary, []match.Outcome, error) {
	summary, outcomes := a.Matcher.MatchBatch(ctx, listings)
	if err := a.storeOutcomes(ctx, localDebug, outcomes); err != nil {
		return summary, outcomes, err
	}
	return summary, outcomes, nil
}

func (a *App) storeOutcomes(ctx context.Context, localDebug bool, outcomes []match.Outcome) error {
	done := make([]match.Listing, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err == nil {
			done = append(done, o.Listing)
		}
	}
	if len(done) == 0 {
		return nil
	}

	if err := a.Listings.PutAll(ctx, done); err != nil {
		return fmt.Errorf("failed to store matched listings: %w", err)
	}

	if a.Audit != nil {
		if _, err := a.Audit.RecordOutcomes(ctx, localDebug, outcomes); err != nil {
			a.logger.Warn().Err(err).Msg("failed to audit match outcomes")
		}
	}
	if err := a.Publisher.PublishOutcomes(outcomes); err != nil {
		a.logger.Warn().Err(err).Msg("failed to publish match outcomes")
	}
	return nil
}

// FeedbackResult is the outcome of recording an operator verdict
type FeedbackResult struct {
	Example  match.Example        `json:"example"`
	Positive int                  `json:"positive"`
	Negative int                  `json:"negative"`
	Total    int                  `json:"total"`
	Retrain  *match.RetrainReport `json:"retrain,omitempty"`
}

// Feedback records whether addressID is the right address for a stored listing.
// With autoRetrain the model is retrained as soon as the training store is ready.
func (a *App) Feedback(ctx context.Context, listingID, addressID string, correct, autoRetrain bool) (FeedbackResult, error) {
	if listingID == "" || addressID == "" {
		return FeedbackResult{}, fmt.Errorf("%w: listing_id and address_id are required", match.ErrInvalidInput)
	}

	listing, err := a.Listings.Get(ctx, listingID)
	if err != nil {
		return FeedbackResult{}, fmt.Errorf("failed to load listing %s: %w", listingID, err)
	}
	if listing == nil {
		return FeedbackResult{}, fmt.Errorf("%w: listing %s", match.ErrNotFound, listingID)
	}

	ex, err := a.Matcher.RecordFeedback(ctx, *listing, addressID, correct)
	if err != nil {
		return FeedbackResult{}, err
	}

	if err := a.Training.Save(ctx, a.KV); err != nil {
		return FeedbackResult{}, err
	}

	if a.Audit != nil {
		entry := audit.EntryFromFeedback(listingID, addressID, ex, a.Model().Version)
		if err := a.Audit.RecordDecision(ctx, false, entry); err != nil {
			a.logger.Warn().Err(err).Str("listing_id", listingID).Msg("failed to audit feedback")
		}
	}

	result := FeedbackResult{Example: ex}
	result.Positive, result.Negative, result.Total = a.Training.Counts()

	if autoRetrain && a.Training.ReadyForRetrain() {
		report, err := a.Retrain(ctx)
		if err != nil {
			return result, err
		}
		result.Retrain = &report
	}
	return result, nil
}

// Retrain retrains the model from the stored examples. Applied models are persisted,
// audited and published. A no-op retrain returns its report with a nil error.
func (a *App) Retrain(ctx context.Context) (match.RetrainReport, error) {
	report, err := a.Matcher.Holder().Retrain(ctx, a.Training.Examples())
	if err != nil {
		return report, err
	}

	a.logger.Info().
		Bool("applied", report.Applied).
		Str("reason", report.Reason).
		Int("examples", report.Total).
		Int64("from_version", report.FromVersion).
		Int64("to_version", report.ToVersion).
		Msg("retrain finished")

	if !report.Applied {
		return report, nil
	}

	model := a.Model()
	if err := match.SaveModel(ctx, a.KV, model); err != nil {
		return report, err
	}
	if a.Audit != nil {
		if err := a.Audit.RecordRetrain(ctx, false, report); err != nil {
			a.logger.Warn().Err(err).Msg("failed to audit retrain")
		}
	}
	if err := a.Publisher.PublishModel(model, report); err != nil {
		a.logger.Warn().Err(err).Msg("failed to publish model")
	}
	return report, nil
}

// Consolidate groups stored listings into canonical objects. With apply the previous
// objects are split, the new back-references are stored and the objects are persisted.
func (a *App) Consolidate(ctx context.Context, radiusMeters float64, apply bool) (consolidate.Report, error) {
	if radiusMeters <= 0 {
		radiusMeters = a.Tunables.ConsolidationRadiusMeters
	}

	listings, err := a.Listings.List(ctx)
	if err != nil {
		return consolidate.Report{}, fmt.Errorf("failed to list listings: %w", err)
	}

	previous, err := a.LoadObjects(ctx)
	if err != nil {
		return consolidate.Report{}, err
	}
	listings = consolidate.SplitObjectsToListings(previous, listings)

	report, err := consolidate.Consolidate(listings, radiusMeters)
	if err != nil {
		return report, err
	}

	for _, g := range report.Inconsistent {
		a.logger.Warn().Strs("listing_ids", g.IDs()).Msg("inconsistent group left unmerged")
	}

	if !apply {
		return report, nil
	}

	if err := a.Listings.PutAll(ctx, report.Listings); err != nil {
		return report, fmt.Errorf("failed to store consolidated listings: %w", err)
	}
	if err := a.saveObjects(ctx, report.Objects); err != nil {
		return report, err
	}

	if a.Audit != nil {
		var entries []audit.Entry
		for _, obj := range report.Objects {
			for _, id := range obj.ListingIDs {
				entries = append(entries, audit.Entry{
					ListingID: id,
					AddressID: obj.AddressID,
					Decision:  audit.DecisionMerged,
					Method:    "proximity",
					Detail:    obj.ID,
					DecidedBy: "consolidator",
				})
			}
		}
		if _, err := a.Audit.RecordDecisions(ctx, false, entries); err != nil {
			a.logger.Warn().Err(err).Msg("failed to audit consolidation")
		}
	}
	if err := a.Publisher.PublishConsolidation(report); err != nil {
		a.logger.Warn().Err(err).Msg("failed to publish consolidation")
	}
	return report, nil
}

// LoadObjects returns the canonical objects of the last applied consolidation
func (a *App) LoadObjects(ctx context.Context) ([]consolidate.CanonicalObject, error) {
	data, err := a.KV.Get(ctx, ObjectsKey)
	if err != nil {
		return nil, fmt.Errorf("%w: loading canonical objects: %v", match.ErrPersistence, err)
	}
	if data == nil {
		return nil, nil
	}

	var objects []consolidate.CanonicalObject
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("%w: decoding canonical objects: %v", match.ErrPersistence, err)
	}
	return objects, nil
}

func (a *App) saveObjects(ctx context.Context, objects []consolidate.CanonicalObject) error {
	if objects == nil {
		objects = []consolidate.CanonicalObject{}
	}
	data, err := json.Marshal(objects)
	if err != nil {
		return fmt.Errorf("%w: encoding canonical objects: %v", match.ErrPersistence, err)
	}
	if err := a.KV.Set(ctx, ObjectsKey, data); err != nil {
		return fmt.Errorf("%w: saving canonical objects: %v", match.ErrPersistence, err)
	}
	return nil
}

// CheckResult reports a reconciliation pass and the violations left after it
type CheckResult struct {
	Reconciliation consolidate.Reconciliation `json:"reconciliation"`
	Violations     []consolidate.Violation    `json:"violations"`
}

// Check recomputes match distances against the reference addresses and lists proximity
// violations. With apply the reconciled listings are stored.
func (a *App) Check(ctx context.Context, apply bool) (CheckResult, error) {
	listings, err := a.Listings.List(ctx)
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to list listings: %w", err)
	}

	radius := a.Matcher.ProximityRadius()
	reconciled, rec, err := consolidate.RecomputeDistances(ctx, listings, a.Addresses, radius)
	if err != nil {
		return CheckResult{Reconciliation: rec}, err
	}

	result := CheckResult{Reconciliation: rec}
	if apply {
		if err := a.Listings.PutAll(ctx, reconciled); err != nil {
			return result, fmt.Errorf("failed to store reconciled listings: %w", err)
		}
		result.Violations = consolidate.CheckProximityInvariant(reconciled, radius)
	} else {
		result.Violations = consolidate.CheckProximityInvariant(listings, radius)
	}
	return result, nil
}

// Stats is a snapshot of the matcher state
type Stats struct {
	Addresses    int                    `json:"addresses"`
	Listings     int                    `json:"listings"`
	Matched      int                    `json:"matched"`
	Unmatchable  int                    `json:"unmatchable"`
	Pending      int                    `json:"pending"`
	ByConfidence map[string]int         `json:"by_confidence"`
	BySource     map[string]int         `json:"by_source"`
	Objects      int                    `json:"objects"`
	Training     TrainingStats          `json:"training"`
	Model        match.Model            `json:"model"`
	Decisions    map[audit.Decision]int `json:"decisions,omitempty"`
}

// TrainingStats summarises the training store
type TrainingStats struct {
	Positive int  `json:"positive"`
	Negative int  `json:"negative"`
	Total    int  `json:"total"`
	Ready    bool `json:"ready_for_retrain"`
}

// Stats counts listings by state, confidence and source
func (a *App) Stats(ctx context.Context) (Stats, error) {
	listings, err := a.Listings.List(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list listings: %w", err)
	}

	s := Stats{
		Listings:     len(listings),
		ByConfidence: make(map[string]int),
		BySource:     make(map[string]int),
		Model:        a.Model(),
	}
	if s.Addresses, err = a.Addresses.Count(ctx); err != nil {
		return Stats{}, fmt.Errorf("failed to count addresses: %w", err)
	}
	for _, c := range match.AllConfidences() {
		s.ByConfidence[c.String()] = 0
	}

	objects := make(map[string]struct{})
	for _, l := range listings {
		switch {
		case l.IsMatched():
			s.Matched++
			s.ByConfidence[l.Confidence().String()]++
		case l.State == match.StateUnmatchable:
			s.Unmatchable++
		default:
			s.Pending++
		}
		source := l.Source
		if source == "" {
			source = "unknown"
		}
		s.BySource[source]++
		if l.ObjectID != nil {
			objects[*l.ObjectID] = struct{}{}
		}
	}
	s.Objects = len(objects)

	s.Training.Positive, s.Training.Negative, s.Training.Total = a.Training.Counts()
	s.Training.Ready = a.Training.ReadyForRetrain()

	if a.Audit != nil {
		decisions, err := a.Audit.Summary(ctx)
		if err != nil {
			return s, err
		}
		s.Decisions = decisions
	}
	return s, nil
}

// IsClientError reports whether err stems from caller input rather than the system
func IsClientError(err error) bool {
	return errors.Is(err, match.ErrInvalidInput) || errors.Is(err, match.ErrNotFound)
}
