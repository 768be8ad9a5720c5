package bootstrap

import (
	"context"
	"fmt"

	"github.com/Domenick1991/flightsync/config"
	"github.com/Domenick1991/flightsync/internal/adapter"
	"github.com/Domenick1991/flightsync/internal/cache"
	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/Domenick1991/flightsync/internal/kafka"
	"github.com/Domenick1991/flightsync/internal/repository"
	"github.com/Domenick1991/flightsync/internal/scheduler"
	"github.com/Domenick1991/flightsync/internal/service/flights"
	"github.com/Domenick1991/flightsync/internal/service/persist"
	"github.com/Domenick1991/flightsync/internal/service/reconcile"
	"github.com/Domenick1991/flightsync/internal/upstream"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App holds the wired components shared by every binary.
type App struct {
	DB       *pgxpool.Pool
	Redis    *cache.RedisCache
	Producer *kafka.Producer
	Search   *cache.SearchCache
	Persist  *persist.Sync
	Service  *flights.FlightService
	Pool     *scheduler.Pool
	Delays   *adapter.International
}

// Build connects to postgres and redis, bootstraps the schema, loads the
// translation cache and assembles the sync service.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := repository.CreateSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	redisCache := cache.NewRedisCache(cfg.Redis)
	if err := redisCache.Ping(ctx); err != nil {
		log.Warn("redis unavailable, searches will miss", zap.Error(err))
	}

	domesticSet := domain.NewCodeSet(cfg.Sync.DomesticAirports)
	tokens := upstream.NewTokenStore(cfg.Sync.TokenSafetyMargin, log.Named("tokens"))
	tokens.Register(adapter.APIDomestic, &upstream.ClientCredentials{
		Client:       upstream.NewClient(adapter.APIDomestic+"-auth", cfg.Domestic, log.Named("upstream")),
		TokenURL:     cfg.Domestic.TokenURL,
		ClientID:     cfg.Domestic.ClientID,
		ClientSecret: cfg.Domestic.ClientSecret,
	})
	tokens.Register(adapter.APIInternational, &upstream.AppKey{
		API:   adapter.APIInternational,
		AppID: cfg.International.AppID,
		Key:   cfg.International.AppKey,
	})

	dom := adapter.NewDomestic(
		upstream.NewClient(adapter.APIDomestic, cfg.Domestic, log.Named("upstream")),
		tokens, cfg.Domestic.BaseURL, domesticSet, log.Named("domestic"))
	intl := adapter.NewInternational(
		upstream.NewClient(adapter.APIInternational, cfg.International, log.Named("upstream")),
		tokens, cfg.International.BaseURL, cfg.International.AppID, domesticSet, log.Named("international"))

	engine := reconcile.NewEngine(dom, intl, reconcile.Config{
		DomesticAirports: cfg.Sync.DomesticAirports,
		TargetAirlines:   cfg.Sync.TargetAirlines,
		MinResults:       cfg.Sync.MinResults,
	}, log.Named("reconcile"))

	store := repository.NewStore(db)
	persister := persist.NewSync(store, persist.NewTranslationCache(), log.Named("persist"))
	if err := persister.LoadTranslations(ctx); err != nil {
		log.Warn("translation cache not loaded", zap.Error(err))
	}

	search := cache.NewSearchCache(redisCache, cfg.Cache.SearchTTL, cfg.Cache.Bypass, log.Named("cache"))

	opts := []flights.Option{flights.WithJobTimeout(cfg.Sync.JobTimeout)}
	var producer *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.SyncEventsTopic, log.Named("kafka"))
		if err := producer.CheckConnection(ctx); err != nil {
			log.Warn("kafka unavailable, sync events will not be delivered", zap.Error(err))
		}
		opts = append(opts, flights.WithEvents(producer))
	}

	svc := flights.NewFlightService(engine, persister, store, search, log.Named("flights"), opts...)

	return &App{
		DB:       db,
		Redis:    redisCache,
		Producer: producer,
		Search:   search,
		Persist:  persister,
		Service:  svc,
		Pool:     scheduler.NewPool(svc, cfg.Sync.Workers, log.Named("scheduler")),
		Delays:   intl,
	}, nil
}

func (a *App) Close() {
	if a.Producer != nil {
		_ = a.Producer.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
