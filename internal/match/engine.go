package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/listing-matcher/internal/debug"
	"github.com/listing-matcher/internal/normalize"
)

// Matcher orchestrates candidate retrieval, scoring and the proximity rule
type Matcher struct {
	holder    *ModelHolder
	extractor *FeatureExtractor
	addresses AddressRepository
	training  ExampleRecorder
	logger    zerolog.Logger

	proximityRadius float64
	searchRadius    float64
	candidateRadius float64
	workers         int
}

// MatcherConfig holds configuration for the matcher
type MatcherConfig struct {
	Holder    *ModelHolder
	Extractor *FeatureExtractor
	Addresses AddressRepository
	Training  ExampleRecorder
	Logger    *zerolog.Logger

	ProximityRadiusMeters float64 // 20
	SearchRadiusMeters    float64 // 500
	CandidateRadiusMeters float64 // 1000
	Workers               int     // 4
}

// NewMatcher creates a matcher, filling defaults for unset fields
func NewMatcher(config MatcherConfig) *Matcher {
	holder := config.Holder
	if holder == nil {
		holder = NewModelHolder(DefaultModel(), DefaultRetrainPolicy())
	}

	extractor := config.Extractor
	if extractor == nil {
		extractor = NewFeatureExtractor(nil)
	}

	logger := debug.Logger().With().Str("component", "matcher").Logger()
	if config.Logger != nil {
		logger = *config.Logger
	}

	m := &Matcher{
		holder:          holder,
		extractor:       extractor,
		addresses:       config.Addresses,
		training:        config.Training,
		logger:          logger,
		proximityRadius: config.ProximityRadiusMeters,
		searchRadius:    config.SearchRadiusMeters,
		candidateRadius: config.CandidateRadiusMeters,
		workers:         config.Workers,
	}
	if m.proximityRadius <= 0 {
		m.proximityRadius = 20
	}
	if m.searchRadius <= 0 {
		m.searchRadius = 500
	}
	if m.candidateRadius <= 0 {
		m.candidateRadius = 1000
	}
	if m.workers <= 0 {
		m.workers = 4
	}
	return m
}

// Holder exposes the model holder for retraining and persistence
func (m *Matcher) Holder() *ModelHolder {
	return m.holder
}

// Extractor returns the feature extractor used for scoring
func (m *Matcher) Extractor() *FeatureExtractor {
	return m.extractor
}

// ProximityRadius returns the override radius in meters
func (m *Matcher) ProximityRadius() float64 {
	return m.proximityRadius
}

// validateListing reports malformed listing input
func validateListing(l Listing) error {
	if err := l.Coordinates.Validate(); err != nil {
		return fmt.Errorf("%w: listing %s: %v", ErrInvalidInput, l.ID, err)
	}
	if normalize.IsBlank(l.AddressText) {
		return fmt.Errorf("%w: listing %s has empty address text", ErrInvalidInput, l.ID)
	}
	return nil
}

// validCandidates returns the candidates with valid coordinates and non-blank text, logging the rest
func (m *Matcher) validCandidates(candidates []AddressRecord) []AddressRecord {
	valid := make([]AddressRecord, 0, len(candidates))
	for _, cand := range candidates {
		if err := cand.Coordinates.Validate(); err != nil {
			m.logger.Warn().Str("address_id", cand.ID).Err(err).Msg("skipping candidate with invalid coordinates")
			continue
		}
		if normalize.IsBlank(cand.Text) {
			m.logger.Warn().Str("address_id", cand.ID).Msg("skipping candidate with empty address text")
			continue
		}
		valid = append(valid, cand)
	}
	return valid
}

// FindBestMatch selects the best candidate for a listing using the current model snapshot.
// It returns nil, nil when there is nothing to match against.
func (m *Matcher) FindBestMatch(localDebug bool, listing Listing, candidates []AddressRecord) (*MatchResult, error) {
	return m.findBestMatch(localDebug, m.holder.Snapshot(), listing, candidates)
}

func (m *Matcher) findBestMatch(localDebug bool, model *Model, listing Listing, candidates []AddressRecord) (*MatchResult, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	if err := validateListing(listing); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		debug.DebugOutput(localDebug, "No candidates for listing %s", listing.ID)
		return nil, nil
	}

	// Step 1: Drop malformed candidates, then pre-filter by search radius, falling back to every
	// valid candidate
	valid := m.validCandidates(candidates)
	if len(valid) == 0 {
		debug.DebugOutput(localDebug, "All candidates rejected for listing %s", listing.ID)
		return nil, nil
	}
	pool := PrefilterByRadius(listing.Coordinates, valid, m.searchRadius)
	debug.DebugOutput(localDebug, "Listing %s: %d of %d candidates within %.0fm",
		listing.ID, len(pool), len(valid), m.searchRadius)

	// Step 2: Extract, score and classify without the override
	var best *MatchResult
	var bestRank float64
	for _, cand := range pool {
		fv := m.extractor.ExtractDebug(localDebug, listing, cand)
		score := model.ScoreDebug(localDebug, fv)

		// Step 3: Rank by the score the override would give, ties go to the smaller distance,
		// then input order. The result itself stays un-overridden until step 4.
		rank, _ := ApplyProximityOverride(fv, score, VeryLow, m.proximityRadius)
		if best == nil || rank > bestRank ||
			(rank == bestRank && fv.DistanceMeters < best.DistanceMeters) {
			bestRank = rank
			best = &MatchResult{
				AddressID:      cand.ID,
				Score:          score,
				Confidence:     model.Classify(score),
				DistanceMeters: fv.DistanceMeters,
				Method:         MethodSmartML,
				ModelVersion:   model.Version,
				Features:       fv,
			}
		}
	}

	// Step 4: Proximity override on the winner only
	score, conf := ApplyProximityOverride(best.Features, best.Score, best.Confidence, m.proximityRadius)
	best.Overridden = score != best.Score || conf != best.Confidence
	best.Score, best.Confidence = score, conf

	debug.DebugOutput(localDebug, "Winner %s: score=%.4f confidence=%s distance=%.1fm override=%t",
		best.AddressID, best.Score, best.Confidence, best.DistanceMeters, best.Overridden)

	return best, nil
}

// MatchListing fetches nearby candidates and matches one listing. A nil result means unmatchable.
func (m *Matcher) MatchListing(ctx context.Context, listing Listing) (*MatchResult, error) {
	return m.matchListing(ctx, m.holder.Snapshot(), listing)
}

func (m *Matcher) matchListing(ctx context.Context, model *Model, listing Listing) (*MatchResult, error) {
	if m.addresses == nil {
		return nil, fmt.Errorf("matcher has no address repository")
	}
	if err := validateListing(listing); err != nil {
		return nil, err
	}

	candidates, err := m.addresses.GetCandidatesNear(ctx, listing.Coordinates, m.candidateRadius)
	if err != nil {
		return nil, fmt.Errorf("fetching candidates for listing %s: %w", listing.ID, err)
	}

	return m.findBestMatch(false, model, listing, candidates)
}

// Outcome is the per-listing result of a batch
type Outcome struct {
	Listing Listing      `json:"listing"`
	Result  *MatchResult `json:"result,omitempty"`
	Err     error        `json:"-"`
	Error   string       `json:"error,omitempty"`
}

// BatchSummary holds statistics for batch processing
type BatchSummary struct {
	Total        int                `json:"total"`
	Matched      int                `json:"matched"`
	Unmatchable  int                `json:"unmatchable"`
	Errored      int                `json:"errored"`
	Cancelled    int                `json:"cancelled"`
	Overrides    int                `json:"proximity_overrides"`
	ByConfidence map[Confidence]int `json:"by_confidence"`
	ModelVersion int64              `json:"model_version"`
	Duration     time.Duration      `json:"duration"`
}

// MatchBatch matches listings concurrently against one model snapshot.
// Outcomes keep input order. Per-listing errors are recorded, never fatal.
func (m *Matcher) MatchBatch(ctx context.Context, listings []Listing) (BatchSummary, []Outcome) {
	start := time.Now()
	model := m.holder.Snapshot()

	outcomes := make([]Outcome, len(listings))
	for i, l := range listings {
		l.State = StateUnmatched
		outcomes[i] = Outcome{Listing: l}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for i := range listings {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			outcomes[i] = m.matchOne(gctx, model, listings[i])
			return nil
		})
	}
	_ = g.Wait()

	summary := BatchSummary{
		Total:        len(listings),
		ByConfidence: make(map[Confidence]int),
		ModelVersion: model.Version,
	}
	for i := range outcomes {
		o := &outcomes[i]
		if o.Listing.State == StateUnmatched && o.Err == nil && ctx.Err() != nil {
			o.Err = ctx.Err()
		}
		switch {
		case o.Err != nil:
			o.Error = o.Err.Error()
			if ctx.Err() != nil && errors.Is(o.Err, ctx.Err()) {
				summary.Cancelled++
			} else {
				summary.Errored++
			}
		case o.Result == nil:
			summary.Unmatchable++
		default:
			summary.Matched++
			summary.ByConfidence[o.Result.Confidence]++
			if o.Result.Overridden {
				summary.Overrides++
			}
		}
	}
	summary.Duration = time.Since(start)

	m.logger.Info().
		Int("total", summary.Total).
		Int("matched", summary.Matched).
		Int("unmatchable", summary.Unmatchable).
		Int("errored", summary.Errored).
		Int("cancelled", summary.Cancelled).
		Int64("model_version", summary.ModelVersion).
		Dur("took", summary.Duration).
		Msg("batch matched")

	return summary, outcomes
}

// matchOne runs one listing through the state machine
func (m *Matcher) matchOne(ctx context.Context, model *Model, listing Listing) Outcome {
	if err := ctx.Err(); err != nil {
		listing.State = StateUnmatched
		return Outcome{Listing: listing, Err: err}
	}

	listing.State = StateMatching
	result, err := m.matchListing(ctx, model, listing)
	if err != nil {
		listing.State = StateUnmatched
		m.logger.Warn().Str("listing_id", listing.ID).Err(err).Msg("listing not matched")
		return Outcome{Listing: listing, Err: err}
	}

	if result == nil {
		ClearMatch(&listing)
		return Outcome{Listing: listing}
	}

	result.ApplyTo(&listing)
	return Outcome{Listing: listing, Result: result}
}

// RecordFeedback records a human confirmation or rejection of a listing-address pair.
// Features are recomputed from the stored address, which extraction guarantees is reproducible.
func (m *Matcher) RecordFeedback(ctx context.Context, listing Listing, addressID string, correct bool) (Example, error) {
	if m.training == nil {
		return Example{}, fmt.Errorf("matcher has no training store")
	}
	if m.addresses == nil {
		return Example{}, fmt.Errorf("matcher has no address repository")
	}
	if err := listing.Coordinates.Validate(); err != nil {
		return Example{}, fmt.Errorf("%w: listing %s: %v", ErrInvalidInput, listing.ID, err)
	}

	addr, err := m.addresses.GetByID(ctx, addressID)
	if err != nil {
		return Example{}, fmt.Errorf("loading address %s: %w", addressID, err)
	}
	if addr == nil {
		return Example{}, fmt.Errorf("%w: address %s", ErrNotFound, addressID)
	}

	ex := NewExample(m.extractor.Extract(listing, *addr), correct)
	m.training.Record(ex)

	m.logger.Debug().
		Str("listing_id", listing.ID).
		Str("address_id", addressID).
		Bool("correct", correct).
		Msg("feedback recorded")

	return ex, nil
}
