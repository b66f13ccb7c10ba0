package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/sportsbook-core/internal/ledger"
	"github.com/radieske/sportsbook-core/internal/provider"
	"github.com/radieske/sportsbook-core/internal/settlement"
	"github.com/radieske/sportsbook-core/internal/shared/config"
	"github.com/radieske/sportsbook-core/internal/shared/db"
	sharedkafka "github.com/radieske/sportsbook-core/internal/shared/kafka"
	"github.com/radieske/sportsbook-core/internal/shared/logger"
	"github.com/radieske/sportsbook-core/internal/shared/metrics"
	"github.com/radieske/sportsbook-core/internal/sportsbook/producer"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "settlement-worker"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	settledWriter := sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettled)
	defer settledWriter.Close()
	publ := producer.NewKafkaPublisher(nil, settledWriter)

	// Métricas do pipeline de liquidação
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bets_settled_total", Help: "apostas liquidadas por status"}, []string{"status"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_events_skipped_total", Help: "eventos sem resultado oficial no passe"})
	stageErrors := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(settled, skipped, stageErrors)

	oddsClient := provider.New(cfg.OddsAPIBaseURL, cfg.OddsAPIKeys, cfg.ProviderTimeout, log)

	resolver := &settlement.Resolver{
		Log:       log,
		Ledger:    ledger.NewPostgres(pg),
		Results:   oddsClient,
		Grace:     cfg.SettlementGrace,
		Interval:  cfg.SettlementInterval,
		Workers:   cfg.SettlementWorkers,
		Publisher: publ,
		OnSettled: func(status string) { settled.WithLabelValues(status).Inc() },
		OnSkipped: func() { skipped.Inc() },
		OnError:   func(stage string) { stageErrors.WithLabelValues(stage).Inc() },
	}

	metrics.StartServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})

	log.Info("settlement-worker started",
		zap.Duration("grace", cfg.SettlementGrace),
		zap.Duration("interval", cfg.SettlementInterval),
		zap.Int("workers", cfg.SettlementWorkers),
	)
	if err := resolver.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("resolver stopped with error", zap.Error(err))
	}
	log.Info("settlement-worker stopped")
}
