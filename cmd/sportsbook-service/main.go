package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/sportsbook-core/internal/ledger"
	"github.com/radieske/sportsbook-core/internal/odds/manager"
	"github.com/radieske/sportsbook-core/internal/odds/store"
	"github.com/radieske/sportsbook-core/internal/odds/verify"
	"github.com/radieske/sportsbook-core/internal/provider"
	"github.com/radieske/sportsbook-core/internal/settlement"
	sharedcache "github.com/radieske/sportsbook-core/internal/shared/cache"
	"github.com/radieske/sportsbook-core/internal/shared/config"
	"github.com/radieske/sportsbook-core/internal/shared/db"
	sharedkafka "github.com/radieske/sportsbook-core/internal/shared/kafka"
	"github.com/radieske/sportsbook-core/internal/shared/logger"
	"github.com/radieske/sportsbook-core/internal/shared/metrics"
	httpapi "github.com/radieske/sportsbook-core/internal/sportsbook/http"
	"github.com/radieske/sportsbook-core/internal/sportsbook/producer"
	"github.com/radieske/sportsbook-core/internal/sportsbook/ws"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "sportsbook-service"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres
	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis
	rdb, err := sharedcache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writers
	placedWriter := sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetPlaced)
	defer placedWriter.Close()
	settledWriter := sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettled)
	defer settledWriter.Close()
	oddsWriter := sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicOddsUpdates)
	defer oddsWriter.Close()
	publ := producer.NewKafkaPublisher(placedWriter, settledWriter)
	oddsFanOut := &producer.OddsFanOut{
		Log:     log,
		Kafka:   oddsWriter,
		Redis:   rdb,
		Channel: cfg.RedisPubSubChannel,
	}

	// Métricas Prometheus do core
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{Name: "odds_cache_hits_total", Help: "páginas servidas do cache"})
	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{Name: "odds_cache_misses_total", Help: "refreshes disparados"})
	refreshFails := prometheus.NewCounter(prometheus.CounterOpts{Name: "odds_refresh_failures_total", Help: "refreshes que degradaram pra cache stale"})
	credFails := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "odds_api_credential_failures_total", Help: "falhas por credencial"}, []string{"key_index"})
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bets_settled_total", Help: "apostas liquidadas por status"}, []string{"status"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_events_skipped_total", Help: "eventos sem resultado oficial no passe"})
	prometheus.MustRegister(cacheHits, cacheMisses, refreshFails, credFails, settled, skipped)

	// Provider com failover ordenado de credenciais
	oddsClient := provider.New(cfg.OddsAPIBaseURL, cfg.OddsAPIKeys, cfg.ProviderTimeout, log)
	oddsClient.OnKeyFailure = func(i int) { credFails.WithLabelValues(strconv.Itoa(i)).Inc() }

	snapshots := store.NewPostgres(pg)

	// Cache manager; refresh bem-sucedido vira broadcast no canal do WS
	oddsManager := &manager.Manager{
		Log:        log,
		Store:      snapshots,
		Provider:   oddsClient,
		Redis:      rdb,
		CacheTTL:   cfg.CacheTTL,
		EventLimit: cfg.EventLimit,

		OnCacheHit:    func() { cacheHits.Inc() },
		OnCacheMiss:   func() { cacheMisses.Inc() },
		OnRefreshFail: func() { refreshFails.Inc() },
		OnRefreshed: func(snaps []store.Snapshot) {
			bctx, bcancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer bcancel()
			oddsFanOut.Publish(bctx, snaps)
		},
	}

	verifier := &verify.Service{
		Log:      log,
		Provider: oddsClient,
		Store:    snapshots,
		Redis:    rdb,
	}

	betRepo := ledger.NewPostgres(pg)
	betService := &ledger.Service{
		Log:                log,
		Repo:               betRepo,
		Verify:             verifier,
		DriftTolerance:     cfg.DriftTolerance,
		RejectOnUnverified: cfg.VerifyFallback == config.FallbackReject,
		Publisher:          publ,
	}

	// Resolver compartilhado pelo endpoint on-demand; o passe periódico roda
	// no settlement-worker
	resolver := &settlement.Resolver{
		Log:       log,
		Ledger:    betRepo,
		Results:   oddsClient,
		Grace:     cfg.SettlementGrace,
		Interval:  cfg.SettlementInterval,
		Workers:   cfg.SettlementWorkers,
		Publisher: publ,
		OnSettled: func(status string) { settled.WithLabelValues(status).Inc() },
		OnSkipped: func() { skipped.Inc() },
	}

	// WebSocket hub alimentado pelo Redis Pub/Sub
	hub := ws.NewHub(func(*http.Request) bool { return true })
	ws.StartRedisSubscriber(ctx, rdb, cfg.RedisPubSubChannel, hub, log)

	// metrics/health
	metrics.StartServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("pg: %w", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})

	api := &httpapi.Server{
		Log:      log,
		Odds:     oddsManager,
		Bets:     betService,
		Resolver: resolver,
		Hub:      hub,
	}
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: api.Router(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		_ = srv.Shutdown(shutCtx)
	}()

	log.Info("sportsbook-service listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
	log.Info("sportsbook-service stopped")
}
