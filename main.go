package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	appconfig "stakeflow/config"
	"stakeflow/internal/metrics"
	"stakeflow/internal/processor"
	"stakeflow/internal/rates"
	"stakeflow/internal/stream"
	"stakeflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := appconfig.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	env := appconfig.AppEnvironment()
	log.WithFields(logger.Fields{
		"service":     cfg.Stakeflow.Name,
		"version":     cfg.Stakeflow.Version,
		"environment": env,
		"stream_url":  cfg.Stream.URL,
		"target":      cfg.Rates.TargetCurrency,
	}).Info("starting stakeflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		metrics.Init(cfg.Metrics.Addr)
		log.WithFields(logger.Fields{"addr": cfg.Metrics.Addr}).Info("metrics endpoint enabled")
	}

	if cfg.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.CloudWatch.Region, cfg.CloudWatch.Namespace, cfg.CloudWatch.DashboardName)
	} else if appconfig.IsProductionLike(env) {
		log.WithComponent("main").Warn("CloudWatch publishing disabled in a production-like environment")
	}

	if strings.ToLower(cfg.Logging.Level) == "report" || cfg.Logging.ReportIntervalSeconds > 0 {
		interval := time.Duration(cfg.Logging.ReportIntervalSeconds) * time.Second
		if interval <= 0 {
			interval = 30 * time.Second
		}
		logger.StartReport(ctx, log, interval)
	}

	cache, err := rates.NewCache(cfg)
	if err != nil {
		log.WithError(err).Error("Failed to connect to rate cache")
		os.Exit(1)
	}
	defer cache.Close()

	service := rates.NewService(cache, rates.NewProvider(cfg))
	retries := processor.NewRetryBuffer(cfg)
	proc := processor.NewProcessor(cfg, service, retries)
	supervisor := stream.NewSupervisor(cfg, proc, retries)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("received shutdown signal")
		cancel()
	}()

	if err := supervisor.Run(ctx); err != nil {
		log.WithError(err).Error("supervisor terminated with fatal error")
		os.Exit(1)
	}

	log.Info("stakeflow shutdown complete")
}
