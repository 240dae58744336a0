package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/heritage-sites-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/heritage-sites-service/internal/adapter/kafka"
	"github.com/couchcryptid/heritage-sites-service/internal/adapter/sheet"
	"github.com/couchcryptid/heritage-sites-service/internal/adapter/wfs"
	"github.com/couchcryptid/heritage-sites-service/internal/catalog"
	"github.com/couchcryptid/heritage-sites-service/internal/config"
	"github.com/couchcryptid/heritage-sites-service/internal/observability"
	"github.com/couchcryptid/heritage-sites-service/internal/pipeline"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	store := catalog.NewStore()
	sheetClient := sheet.NewClient(cfg.CSVTimeout, cfg.CSVMaxBytes, logger, metrics)

	opts := []pipeline.Option{pipeline.WithInterval(cfg.CSVRefreshInterval)}

	// Change feed is feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS.
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		opts = append(opts, pipeline.WithLoader(writer))
		logger.Info("kafka change feed enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka change feed disabled")
	}

	refresher := pipeline.New(sheetClient, cfg.CSVURL, store, logger, metrics, opts...)

	wfsClient := wfs.NewClient(cfg.WFSProxyURL, cfg.WFSTypeName, cfg.WFSMaxFeatures, cfg.WFSMaxBytes, cfg.WFSTimeout, logger, metrics)
	sites, err := wfs.NewCachedSource(wfsClient, cfg.WFSCacheSize, metrics)
	if err != nil {
		logger.Error("failed to create sites cache", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Ready:   refresher,
		Catalog: store,
		Sites:   sites,
		MinZoom: cfg.ViewportMinZoom,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start CSV refresher.
	go func() {
		if err := refresher.Run(ctx); err != nil {
			logger.Error("refresher error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
