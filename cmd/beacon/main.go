// The beacon reports this host's locale, platform and timezone to a visit
// recorder or a webhook, and exits non-zero when the first delivery fails.
// With -interval it keeps reporting in the background until signalled.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"visit-recorder/internal/collector"
	"visit-recorder/internal/config"
	"visit-recorder/pkg/logger"

	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Ignoring unreadable .env file: %v", err)
	}

	cfg, err := config.LoadCollector()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}

	// flags override the environment
	flag.StringVar(&cfg.Destination, "destination", cfg.Destination, "recorder endpoint or webhook URL")
	flag.StringVar(&cfg.Method, "method", cfg.Method, `"post" for a JSON body, "query" for a GET webhook`)
	flag.BoolVar(&cfg.IncludeIPLookup, "ip-lookup", cfg.IncludeIPLookup, "resolve the public IP before sending")
	flag.StringVar(&cfg.IPLookupURL, "ip-lookup-url", cfg.IPLookupURL, "IP lookup service answering {\"ip\": ...}")
	flag.BoolVar(&cfg.AppendIPParam, "append-ip", cfg.AppendIPParam, "also pass the resolved IP as ?ip= on POST")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-request timeout")
	flag.DurationVar(&cfg.Interval, "interval", cfg.Interval, "keep sending a beacon this often after the first one (0 sends once)")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid beacon configuration: %v", err)
		return 1
	}

	appLogger := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := collector.New(collector.Options{
		Destination:     cfg.Destination,
		Method:          cfg.Method,
		IncludeIPLookup: cfg.IncludeIPLookup,
		LookupURL:       cfg.IPLookupURL,
		AppendIPParam:   cfg.AppendIPParam,
		Timeout:         cfg.Timeout,
	}, collector.DetectEnvironment(version), appLogger.Logger)

	if err := c.Send(ctx); err != nil {
		appLogger.Error("Beacon not delivered", "destination", cfg.Destination, "error", err)
		return 1
	}
	appLogger.Info("Beacon delivered", "destination", cfg.Destination)

	if cfg.Interval > 0 {
		appLogger.Info("Heartbeat started", "interval", cfg.Interval)
		c.Heartbeat(ctx, cfg.Interval)
		appLogger.Info("Heartbeat stopped")
	}
	return 0
}
