package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"polyflow/config"
	"polyflow/internal/archive"
	"polyflow/internal/candles"
	"polyflow/internal/checkpoint"
	"polyflow/internal/model"
	"polyflow/internal/pipeline/fetch"
	"polyflow/internal/store"
	"polyflow/internal/worker"
	"polyflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Polyflow.Name,
		"version": cfg.Polyflow.Version,
	}).Info("starting polyflow")

	if cfg.Metrics.Cloudwatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.Cloudwatch.Region, cfg.Metrics.Cloudwatch.Namespace)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storeClient, err := store.NewClient(cfg.Store.Opensearch)
	if err != nil {
		log.WithError(err).Error("failed to create store client")
		os.Exit(1)
	}

	checkpoints, err := checkpoint.NewStore(cfg.Checkpoints.Dir)
	if err != nil {
		log.WithError(err).Error("failed to open checkpoint store")
		os.Exit(1)
	}

	fetcher := fetch.NewClient(cfg.Source)

	var archiver worker.Archiver
	if cfg.Archive.S3.Enabled {
		w, err := archive.NewWriter(ctx, cfg.Archive.S3)
		if err != nil {
			log.WithError(err).Error("failed to create snapshot archive")
			os.Exit(1)
		}
		archiver = w
	} else {
		log.WithComponent("main").Info("S3 archive disabled; snapshots stay in the store only")
	}

	scheduler := worker.NewScheduler()

	if cfg.Streams.Markets.Enabled {
		scheduler.Add(model.StreamMarkets, cfg.Streams.Markets.Interval,
			worker.NewMarkets(cfg.Streams.Markets, cfg.Source.MarketsURL, fetcher, storeClient))
	}
	if cfg.Streams.Trades.Enabled {
		scheduler.Add(model.StreamTrades, cfg.Streams.Trades.Interval,
			worker.NewTrades(cfg.Streams.Trades, cfg.Source.TradesURL, fetcher, storeClient, checkpoints))
	}
	if cfg.Streams.Candles.Enabled {
		scheduler.Add(model.StreamCandles, cfg.Streams.Candles.Interval,
			candles.NewAggregator(cfg.Streams.Candles, storeClient, storeClient, checkpoints))
	}
	if cfg.Streams.Orderbook.Enabled {
		scheduler.Add(model.StreamOrderbook, cfg.Streams.Orderbook.Interval,
			worker.NewOrderbook(cfg.Streams.Orderbook, cfg.Source.OrderbookURL, fetcher, storeClient, checkpoints, archiver))
	}

	scheduler.Start(ctx)
	log.Info("all streams started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()
	scheduler.Wait()

	log.Info("polyflow stopped")
}
