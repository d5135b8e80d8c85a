package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/listing-matcher/internal/db"
	"github.com/listing-matcher/internal/debug"
	"github.com/listing-matcher/internal/match"
)

// Decision is the kind of event recorded in the audit trail
type Decision string

const (
	DecisionMatched     Decision = "matched"
	DecisionUnmatchable Decision = "unmatchable"
	DecisionConfirmed   Decision = "confirmed"
	DecisionRejected    Decision = "rejected"
	DecisionRetrained   Decision = "retrained"
	DecisionMerged      Decision = "merged"
)

// Entry is one row of the audit trail
type Entry struct {
	ListingID    string    `json:"listing_id"`
	AddressID    string    `json:"address_id,omitempty"`
	Decision     Decision  `json:"decision"`
	Method       string    `json:"method,omitempty"`
	Score        float64   `json:"score"`
	Confidence   string    `json:"confidence,omitempty"`
	ModelVersion int64     `json:"model_version"`
	Detail       string    `json:"detail,omitempty"`
	DecidedBy    string    `json:"decided_by,omitempty"`
	DecidedAt    time.Time `json:"decided_at"`
}

// EntryFromResult builds a matched or unmatchable entry. Features are kept as JSON detail.
func EntryFromResult(listingID string, r *match.MatchResult) Entry {
	if r == nil {
		return Entry{ListingID: listingID, Decision: DecisionUnmatchable}
	}

	e := Entry{
		ListingID:    listingID,
		AddressID:    r.AddressID,
		Decision:     DecisionMatched,
		Method:       r.Method,
		Score:        r.Score,
		Confidence:   r.Confidence.String(),
		ModelVersion: r.ModelVersion,
	}
	if detail, err := json.Marshal(r.Features); err == nil {
		e.Detail = string(detail)
	}
	return e
}

// EntryFromFeedback builds a confirmed or rejected entry for an operator verdict
func EntryFromFeedback(listingID, addressID string, ex match.Example, modelVersion int64) Entry {
	e := Entry{
		ListingID:    listingID,
		AddressID:    addressID,
		Decision:     DecisionRejected,
		Method:       "manual",
		ModelVersion: modelVersion,
		DecidedBy:    "operator",
	}
	if ex.IsCorrect {
		e.Decision = DecisionConfirmed
	}
	if detail, err := json.Marshal(ex.Features); err == nil {
		e.Detail = string(detail)
	}
	return e
}

// Tracker manages the audit trail of matching decisions
type Tracker struct {
	conn *db.Connection
	now  func() time.Time
}

// NewTracker creates a new audit tracker
func NewTracker(conn *db.Connection) *Tracker {
	return &Tracker{conn: conn, now: time.Now}
}

// RecordDecision saves one decision to the audit trail
func (t *Tracker) RecordDecision(ctx context.Context, localDebug bool, e Entry) error {
	_, err := t.RecordDecisions(ctx, localDebug, []Entry{e})
	return err
}

// RecordDecisions saves entries in a single transaction and returns how many were written
func (t *Tracker) RecordDecisions(ctx context.Context, localDebug bool, entries []Entry) (int, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := t.conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, t.conn.Rebind(`
		INSERT INTO audit_decisions (
			listing_id, address_id, decision, method, score, confidence,
			model_version, detail, decided_by, decided_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.ListingID == "" {
			return 0, fmt.Errorf("%w: audit entry without listing id", match.ErrInvalidInput)
		}
		if e.DecidedAt.IsZero() {
			e.DecidedAt = t.now()
		}
		debug.DebugOutput(localDebug, "Recording %s for listing %s -> %q", e.Decision, e.ListingID, e.AddressID)

		if _, err := stmt.ExecContext(ctx, e.ListingID, e.AddressID, string(e.Decision), e.Method, e.Score,
			e.Confidence, e.ModelVersion, e.Detail, e.DecidedBy, e.DecidedAt.UTC()); err != nil {
			return 0, fmt.Errorf("failed to insert audit entry for %s: %w", e.ListingID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit audit entries: %w", err)
	}
	return len(entries), nil
}

// RecordOutcomes audits every batch outcome that finished without an error
func (t *Tracker) RecordOutcomes(ctx context.Context, localDebug bool, outcomes []match.Outcome) (int, error) {
	entries := make([]Entry, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		e := EntryFromResult(o.Listing.ID, o.Result)
		e.DecidedBy = "matcher"
		entries = append(entries, e)
	}
	return t.RecordDecisions(ctx, localDebug, entries)
}

// RecordRetrain audits a retrain attempt. Only applied retrains are written.
func (t *Tracker) RecordRetrain(ctx context.Context, localDebug bool, report match.RetrainReport) error {
	if !report.Applied {
		return nil
	}

	detail, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode retrain report: %w", err)
	}

	return t.RecordDecision(ctx, localDebug, Entry{
		ListingID:    "model",
		Decision:     DecisionRetrained,
		Method:       match.MethodSmartML,
		ModelVersion: report.ToVersion,
		Detail:       string(detail),
		DecidedBy:    "retrain",
	})
}

// History returns the decisions for a listing, newest first
func (t *Tracker) History(ctx context.Context, localDebug bool, listingID string) ([]Entry, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	rows, err := t.conn.DB.QueryContext(ctx, t.conn.Rebind(`
		SELECT listing_id, address_id, decision, method, score, confidence,
		       model_version, detail, decided_by, decided_at
		FROM audit_decisions
		WHERE listing_id = ?
		ORDER BY decided_at DESC
	`), listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision history: %w", err)
	}
	defer rows.Close()

	var history []Entry
	for rows.Next() {
		var e Entry
		var decision string
		if err := rows.Scan(&e.ListingID, &e.AddressID, &decision, &e.Method, &e.Score, &e.Confidence,
			&e.ModelVersion, &e.Detail, &e.DecidedBy, &e.DecidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision history: %w", err)
		}
		e.Decision = Decision(decision)
		history = append(history, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read decision history: %w", err)
	}

	debug.DebugOutput(localDebug, "Retrieved %d decision history entries for listing %s", len(history), listingID)
	return history, nil
}

// Summary counts decisions by kind
func (t *Tracker) Summary(ctx context.Context) (map[Decision]int, error) {
	rows, err := t.conn.DB.QueryContext(ctx, `
		SELECT decision, COUNT(*)
		FROM audit_decisions
		GROUP BY decision
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision summary: %w", err)
	}
	defer rows.Close()

	summary := make(map[Decision]int)
	for rows.Next() {
		var decision string
		var count int
		if err := rows.Scan(&decision, &count); err != nil {
			return nil, fmt.Errorf("failed to scan decision summary: %w", err)
		}
		summary[Decision(decision)] = count
	}
	return summary, rows.Err()
}
