package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/listing-matcher/internal/consolidate"
	"github.com/listing-matcher/internal/match"
)

// ErrNotConnected is returned when the client exists but the broker link is down
var ErrNotConnected = errors.New("MQTT client not connected")

// DefaultPrefix is the topic root when none is configured
const DefaultPrefix = "listing-matcher"

// MatchEvent is published for every matched or unmatchable listing
type MatchEvent struct {
	ListingID string             `json:"listing_id"`
	Matched   bool               `json:"matched"`
	Result    *match.MatchResult `json:"result,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

// ModelEvent is published after a retrain attempt
type ModelEvent struct {
	Model     match.Model         `json:"model"`
	Report    match.RetrainReport `json:"report"`
	Timestamp int64               `json:"timestamp"`
}

// ConsolidationEvent summarises a consolidation pass
type ConsolidationEvent struct {
	Groups       int      `json:"groups"`
	Inconsistent int      `json:"inconsistent"`
	Objects      int      `json:"objects"`
	ObjectIDs    []string `json:"object_ids"`
	Timestamp    int64    `json:"timestamp"`
}

// Publisher pushes matcher events to MQTT. A nil client disables publishing.
type Publisher struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
	logger  *zerolog.Logger
	now     func() time.Time

	mu        sync.Mutex
	published int
	failed    int
}

// NewPublisher creates a publisher rooted at prefix
func NewPublisher(client mqtt.Client, prefix string, logger *zerolog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Publisher{
		client:  client,
		prefix:  prefix,
		qos:     1,
		timeout: 2 * time.Second,
		logger:  logger,
		now:     time.Now,
	}
}

// Enabled reports whether a client was configured
func (p *Publisher) Enabled() bool {
	return p != nil && p.client != nil
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// Stats returns published and failed message counts
func (p *Publisher) Stats() (published, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.failed
}

// PublishMatch publishes to {prefix}/listings/{id}. A nil result means the listing was unmatchable.
func (p *Publisher) PublishMatch(listingID string, result *match.MatchResult) error {
	if !p.Enabled() {
		return nil
	}
	event := MatchEvent{
		ListingID: listingID,
		Matched:   result != nil,
		Result:    result,
		Timestamp: p.now().Unix(),
	}
	return p.publish(fmt.Sprintf("%s/listings/%s", p.prefix, listingID), false, event)
}

// PublishOutcomes publishes a match event for every outcome without an error
func (p *Publisher) PublishOutcomes(outcomes []match.Outcome) error {
	if !p.Enabled() {
		return nil
	}
	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		if err := p.PublishMatch(o.Listing.ID, o.Result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishBatch publishes a batch summary to {prefix}/batches
func (p *Publisher) PublishBatch(summary match.BatchSummary) error {
	if !p.Enabled() {
		return nil
	}
	return p.publish(p.prefix+"/batches", false, summary)
}

// PublishModel publishes the active model to the retained topic {prefix}/model
func (p *Publisher) PublishModel(m match.Model, report match.RetrainReport) error {
	if !p.Enabled() {
		return nil
	}
	event := ModelEvent{Model: m, Report: report, Timestamp: p.now().Unix()}
	return p.publish(p.prefix+"/model", true, event)
}

// PublishConsolidation publishes a consolidation summary to {prefix}/consolidation
func (p *Publisher) PublishConsolidation(report consolidate.Report) error {
	if !p.Enabled() {
		return nil
	}
	event := ConsolidationEvent{
		Groups:       len(report.Groups),
		Inconsistent: len(report.Inconsistent),
		Objects:      len(report.Objects),
		ObjectIDs:    make([]string, 0, len(report.Objects)),
		Timestamp:    p.now().Unix(),
	}
	for _, obj := range report.Objects {
		event.ObjectIDs = append(event.ObjectIDs, obj.ID)
	}
	return p.publish(p.prefix+"/consolidation", false, event)
}

func (p *Publisher) publish(topic string, retain bool, v any) error {
	if !p.client.IsConnected() {
		p.record(false)
		return ErrNotConnected
	}

	payload, err := json.Marshal(v)
	if err != nil {
		p.record(false)
		return fmt.Errorf("marshaling payload for %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, retain, payload)
	if token.WaitTimeout(p.timeout) && token.Error() != nil {
		p.record(false)
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	p.record(true)
	p.logger.Debug().Str("topic", topic).Int("bytes", len(payload)).Msg("published")
	return nil
}

func (p *Publisher) record(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ok {
		p.published++
	} else {
		p.failed++
	}
}
