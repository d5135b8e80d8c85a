package app

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/listing-matcher/internal/audit"
	"github.com/listing-matcher/internal/config"
	"github.com/listing-matcher/internal/db"
	"github.com/listing-matcher/internal/embeddings"
	"github.com/listing-matcher/internal/match"
	"github.com/listing-matcher/internal/publish"
	"github.com/listing-matcher/internal/repository"
	"github.com/listing-matcher/internal/store"
	"github.com/listing-matcher/internal/training"
)

// AddressStore is a reference address source that also accepts imports
type AddressStore interface {
	match.AddressRepository
	repository.AddressWriter
}

// Deps are the components an App is assembled from. Audit and Publisher are optional.
type Deps struct {
	Tunables  config.Tunables
	Addresses AddressStore
	Listings  repository.ListingRepository
	KV        store.KV
	Audit     *audit.Tracker
	Publisher *publish.Publisher
	Logger    *zerolog.Logger
	Model     *match.Model
}

// App wires the matcher, its stores and its outputs together
type App struct {
	Tunables  config.Tunables
	Addresses AddressStore
	Listings  repository.ListingRepository
	KV        store.KV
	Training  *training.Store
	Matcher   *match.Matcher
	Audit     *audit.Tracker
	Publisher *publish.Publisher

	logger zerolog.Logger
	conn   *db.Connection
	mqtt   mqtt.Client
}

// New assembles an App from ready-made components
func New(d Deps) *App {
	logger := zerolog.Nop()
	if d.Logger != nil {
		logger = *d.Logger
	}

	model := match.DefaultModel()
	if d.Model != nil {
		model = *d.Model
	}

	trainingStore := training.NewStore(d.Tunables.TrainingLimits())
	holder := match.NewModelHolder(model, d.Tunables.RetrainPolicy())
	matcherLogger := logger.With().Str("component", "matcher").Logger()

	matcher := match.NewMatcher(match.MatcherConfig{
		Holder:                holder,
		Extractor:             match.NewFeatureExtractor(embeddings.NewTrigramEmbedder(embeddings.DefaultDimensions)),
		Addresses:             d.Addresses,
		Training:              trainingStore,
		Logger:                &matcherLogger,
		ProximityRadiusMeters: d.Tunables.ProximityRadiusMeters,
		SearchRadiusMeters:    d.Tunables.SearchRadiusMeters,
		CandidateRadiusMeters: d.Tunables.CandidateRadiusMeters,
		Workers:               d.Tunables.Workers,
	})

	publisher := d.Publisher
	if publisher == nil {
		publisher = publish.NewPublisher(nil, "", &logger)
	}

	return &App{
		Tunables:  d.Tunables,
		Addresses: d.Addresses,
		Listings:  d.Listings,
		KV:        d.KV,
		Training:  trainingStore,
		Matcher:   matcher,
		Audit:     d.Audit,
		Publisher: publisher,
		logger:    logger,
	}
}

// Open connects to the configured database and broker, restores the persisted model and
// training examples, and returns a ready App. Close releases the connections.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	var (
		conn *db.Connection
		err  error
	)
	if cfg.UsePostgres() {
		conn, err = db.NewConnection(cfg.DatabaseURL)
	} else {
		conn, err = db.NewSQLiteConnection(cfg.SQLitePath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := conn.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	kv := store.NewSQLKV(conn)
	model, err := match.LoadModel(ctx, kv)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if model == nil {
		seed, err := config.LoadModelSeed(cfg.ModelSeedPath)
		if err != nil {
			conn.Close()
			return nil, err
		}
		model = &seed
		logger.Info().Str("seed", cfg.ModelSeedPath).Msg("no persisted model, starting from seed")
	}

	client, err := publish.Connect(ctx, publish.Options{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	}, &logger)
	if err != nil {
		logger.Warn().Err(err).Msg("MQTT unavailable, publishing disabled")
		client = nil
	}

	a := New(Deps{
		Tunables:  cfg.Tunables,
		Addresses: repository.NewSQLAddressRepository(conn),
		Listings:  repository.NewSQLListingRepository(conn),
		KV:        kv,
		Audit:     audit.NewTracker(conn),
		Publisher: publish.NewPublisher(client, cfg.MQTTTopicPrefix, &logger),
		Logger:    &logger,
		Model:     model,
	})
	a.conn = conn
	a.mqtt = client

	if err := a.Training.Load(ctx, kv); err != nil {
		a.Close()
		return nil, err
	}

	positive, negative, total := a.Training.Counts()
	logger.Info().
		Str("database", conn.Dialect.String()).
		Int64("model_version", model.Version).
		Int("examples", total).
		Int("positive", positive).
		Int("negative", negative).
		Bool("mqtt", client != nil).
		Msg("matcher ready")

	return a, nil
}

// Close disconnects from the broker and database
func (a *App) Close() error {
	if a.mqtt != nil {
		a.mqtt.Disconnect(250)
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

// Model returns the active model snapshot
func (a *App) Model() match.Model {
	return *a.Matcher.Holder().Snapshot()
}

// Logger returns the application logger
func (a *App) Logger() *zerolog.Logger {
	return &a.logger
}
