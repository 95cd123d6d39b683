package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cryptosentry/config"
	"cryptosentry/internal/archive"
	"cryptosentry/internal/connector"
	_ "cryptosentry/internal/connector/binance"
	"cryptosentry/internal/dispatch"
	"cryptosentry/internal/mailer"
	"cryptosentry/internal/metrics"
	"cryptosentry/internal/store"
	"cryptosentry/logger"
	"cryptosentry/models"
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
		"service": cfg.Service.Name,
		"version": cfg.Service.Version,
	}).Info("starting cryptosentry")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := metrics.NewRegistry()

	st, err := buildStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("Failed to build store")
		os.Exit(1)
	}

	var arch *archive.Archive
	if cfg.Archive.Enabled {
		arch, err = archive.New(cfg.Archive, log)
		if err != nil {
			log.WithError(err).Error("Failed to build archive")
			os.Exit(1)
		}
		arch.Start(ctx)
	}

	smtp := mailer.NewSMTP(cfg.Alerts.Email, log)

	var archiver dispatch.Archiver
	if arch != nil {
		archiver = arch
	}
	dispatcher := dispatch.NewDispatcher(ctx, cfg.Alerts, st, archiver, smtp, reg, log)

	events := make(chan models.Event, cfg.Channels.EventBuffer)
	sink := func(ev models.Event) {
		select {
		case events <- ev:
		default:
			reg.IncDrops()
		}
	}

	connectors := make([]connector.Connector, 0, len(cfg.Exchanges))
	for name, exCfg := range cfg.Exchanges {
		conn, err := connector.Build(name, exCfg, sink, reg, log)
		if err != nil {
			log.WithError(err).Error("Failed to build connector")
			os.Exit(1)
		}
		if err := conn.Start(ctx); err != nil {
			log.WithError(err).WithFields(logger.Fields{"exchange": name}).Error("Failed to start connector")
			os.Exit(1)
		}
		connectors = append(connectors, conn)
	}

	if cfg.Metrics.CloudWatch.Enabled {
		interval := time.Duration(cfg.Metrics.ReportIntervalS) * time.Second
		publisher, err := metrics.NewPublisher(ctx, reg, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, interval, log)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize cloudwatch publisher")
		} else {
			publisher.Start(ctx)
		}
	}

	// single dispatch loop: monitors and the store stay single-threaded
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				dispatcher.Handle(ev)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.WithFields(logger.Fields{"signal": received.String()}).Info("shutting down")

	for _, conn := range connectors {
		conn.Stop()
	}
	cancel()
	<-dispatchDone
	dispatcher.Wait()
	if arch != nil {
		arch.Stop()
	}

	log.WithFields(logger.Fields{"metrics": reg.Snapshot()}).Info("cryptosentry stopped")
}

// buildStore selects the price store backend.
func buildStore(ctx context.Context, cfg *config.Config, log *logger.Log) (store.Store, error) {
	if cfg.Storage.Backend != "redis" {
		return store.NewMemory(), nil
	}
	cold, err := store.NewRedisCold(cfg.Storage.RedisURL)
	if err != nil {
		return nil, err
	}
	return store.NewHybrid(ctx, cold, cfg.Storage.MaxMemoryMB, cfg.Storage.HotWindowMs, log), nil
}
