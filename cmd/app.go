package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"prestige_server/config"
	"prestige_server/events"
	"prestige_server/logging"
	"prestige_server/matching"
	"prestige_server/services"
)

// app is the wired object graph shared by serve and match.
type app struct {
	cfg *config.Config

	preferences *services.PreferenceService
	publisher   *services.MatchPublisher
	runner      *services.MatchRunner

	js jetstream.JetStream

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg == nil {
			c, err := services.LoadAWSConfig(ctx, cfg.AWS.Region, cfg.AWS.Endpoint)
			if err != nil {
				return aws.Config{}, err
			}
			awsCfg = &c
		}
		return *awsCfg, nil
	}

	var (
		prefStore  services.PreferenceStore
		matchStore services.MatchStore
	)
	switch cfg.Store.Backend {
	case config.BackendDynamo:
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		dynamo := services.NewDynamoService(c)
		prefStore = services.NewDynamoPreferenceStore(dynamo, cfg.Store.PreferencesTable, cfg.Store.MaxAppendRetries)
		matchStore = services.NewDynamoMatchStore(dynamo, cfg.Store.MatchesTable, cfg.Store.MatchRunsTable)
		logging.Info().Str("table", cfg.Store.PreferencesTable).Msg("✅ DynamoDB stores initialized")
	default:
		store, err := services.OpenSQLStore(cfg.Store.Backend, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		if cfg.Store.Backend == config.BackendSQLite {
			if err := store.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		registerCollector(collectors.NewDBStatsCollector(store.DB(), "prestige"))
		prefStore, matchStore = store, store
		logging.Info().Str("backend", cfg.Store.Backend).Msg("✅ SQL store initialized")
	}

	a.preferences = services.NewPreferenceService(prefStore)
	a.publisher = services.NewMatchPublisher(matchStore)
	a.runner = services.NewMatchRunner(prefStore, a.publisher, matching.Options{MaxPasses: cfg.Matching.MaxPasses})
	a.runner.Timeout = cfg.Matching.RunTimeout

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		a.runner.Lock = services.NewRedisRunLock(client, cfg.Redis.LockKey, cfg.Matching.LockTTL)
		logging.Info().Str("addr", cfg.Redis.Addr).Msg("🔒 Distributed run lock enabled")
	}

	if cfg.Archive.Bucket != "" {
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		a.runner.Archiver = services.NewSnapshotArchiver(services.NewS3Client(c), cfg.Archive.Bucket, cfg.Archive.Prefix)
		logging.Info().Str("bucket", cfg.Archive.Bucket).Msg("🗄️ Snapshot archive enabled")
	}

	if cfg.NATS.Enabled {
		nc, err := events.Connect(cfg.NATS.URL, cfg.Telemetry.ServiceName)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { return nc.Drain() })

		js, err := jetstream.New(nc)
		if err != nil {
			return nil, fmt.Errorf("failed to create jetstream context: %w", err)
		}
		if _, err := events.EnsureStream(ctx, js, events.RunStreamName, cfg.NATS.RunSubject); err != nil {
			return nil, err
		}
		a.js = js
		a.runner.Notifier = events.NewRunNotifier(js, cfg.NATS.RunSubject)
	}

	return a, nil
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logging.Warn().Err(err).Msg("⚠️ Failed to close resource")
		}
	}
	a.closers = nil
}

func registerCollector(c prometheus.Collector) {
	if err := prometheus.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			logging.Warn().Err(err).Msg("⚠️ Failed to register collector")
		}
	}
}
