package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"venuemesh/internal/aggregator"
	"venuemesh/internal/api"
	"venuemesh/internal/broadcaster"
	"venuemesh/internal/config"
	"venuemesh/internal/detector"
	"venuemesh/internal/gateway"
	"venuemesh/internal/quote"
	"venuemesh/internal/venue"
	"venuemesh/pkg/logging"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the aggregator, detector, and gateway server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	pool, err := buildPool(cfg, logger)
	if err != nil {
		return fmt.Errorf("building adapter pool: %w", err)
	}

	agg := aggregator.New(cfg.Pipeline.MaxPriceAge, logger)
	det := detector.New(detector.Config{
		MinSpreadPct:          cfg.Pipeline.MinSpreadPct,
		MaxRealisticSpreadPct: cfg.Pipeline.MaxRealisticSpreadPct,
		MaxPriceAgeForArb:     cfg.Pipeline.MaxPriceAge,
		Cooldown:              cfg.Pipeline.ArbitrageCooldown,
		HistoryTTL:            cfg.Pipeline.ArbitrageMaxHistoryAge,
		AllowSynthetic:        cfg.Pipeline.AllowSyntheticInArb,
	}, logger)
	bcast := broadcaster.New(cfg.Pipeline.BroadcastInterval, cfg.Pipeline.BroadcastMaxBatch, logger)
	hub := gateway.NewHub(bcast, det, cfg.Server.ClientCORSOrigin, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	defer close(done)

	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("starting adapter pool: %w", err)
	}

	go pumpQuotes(pool, agg, det, bcast, logger)
	go pumpStates(pool, bcast)
	go agg.RunSweeper(done, cfg.Pipeline.CleanupIntervalPrices)
	go det.RunSweeper(done, 30*time.Second)
	go bcast.Run(done)
	go runStatsLoop(done, hub, bcast, pool)

	router := api.SetupRoutes(&api.Dependencies{
		Hub:              hub,
		Pool:             pool,
		ClientCORSOrigin: cfg.Server.ClientCORSOrigin,
		Logger:           logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infow("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quitSignal := make(chan os.Signal, 1)
	signal.Notify(quitSignal, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quitSignal:
		logger.Info("shutdown signal received")
	}

	cancel()
	pool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

func buildPool(cfg *config.Config, logger *zap.SugaredLogger) (*venue.Pool, error) {
	var adapters []venue.Adapter
	for _, v := range cfg.Venues {
		if !v.Enabled {
			continue
		}
		a, err := venue.New(venue.Config{Name: quote.VenueID(v.Name), URL: v.URL, Symbols: v.Symbols}, logger)
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", v.Name, err)
		}
		adapters = append(adapters, a)
	}
	return venue.NewPool(adapters, logger), nil
}

// pumpQuotes drains the pool's merged quote stream into the
// aggregator, runs the fresh view through the detector, and forwards
// both the raw quote and any emitted opportunity to the broadcaster.
func pumpQuotes(pool *venue.Pool, agg *aggregator.Aggregator, det *detector.Detector, bcast *broadcaster.Broadcaster, logger *zap.SugaredLogger) {
	for q := range pool.Quotes() {
		bcast.IngestQuote(q)

		view := agg.Ingest(q)
		if opp, ok := det.Detect(view); ok {
			bcast.PublishOpportunity(opp)
		}
	}
}

func pumpStates(pool *venue.Pool, bcast *broadcaster.Broadcaster) {
	for ev := range pool.States() {
		bcast.PublishConnectionEvent(ev)
	}
}

func runStatsLoop(done <-chan struct{}, hub *gateway.Hub, bcast *broadcaster.Broadcaster, pool *venue.Pool) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			active := 0
			for _, h := range pool.Health() {
				if h.State.String() == "open" {
					active++
				}
			}
			hub.BroadcastStats(bcast.Snapshot(active))
		}
	}
}
