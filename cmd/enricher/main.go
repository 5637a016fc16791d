package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shpitdev/contact-enricher/internal/app"
	"github.com/shpitdev/contact-enricher/internal/config"
	"github.com/shpitdev/contact-enricher/internal/enrich/aggregate"
	"github.com/shpitdev/contact-enricher/internal/enrich/batch"
	"github.com/shpitdev/contact-enricher/internal/pipeline"
	"github.com/shpitdev/contact-enricher/internal/server"
	"github.com/shpitdev/contact-enricher/internal/util"
	"github.com/shpitdev/contact-enricher/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	_ = godotenv.Load()

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "version", "--version":
		_, _ = fmt.Fprintln(os.Stdout, version.Current)
		return
	case "local":
		os.Exit(runLocal(ctx, os.Args[2:]))
	case "serve":
		os.Exit(runServe(ctx, os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runLocal(ctx context.Context, args []string) int {
	cfg, err := config.Load(configPath(args))
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	fs := flag.NewFlagSet("local", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var inputPath string
	var outputPath string
	var debug bool
	fs.String("config", "", "YAML config file (env: ENRICHER_CONFIG)")
	fs.StringVar(&inputPath, "input", "", "Input CSV file path (columns: business_name, website, owner_name, business_type, location)")
	fs.StringVar(&outputPath, "output", "", "Output CSV file path")
	fs.IntVar(&cfg.Batch.Workers, "workers", cfg.Batch.Workers, "Number of concurrent enrichments (env: WORKERS)")
	fs.DurationVar(&cfg.Batch.RequestTimeout, "request-timeout", cfg.Batch.RequestTimeout, "Per-business enrichment timeout (env: REQUEST_TIMEOUT)")
	fs.Float64Var(&cfg.Batch.RateLimitRPS, "rate-limit-rps", cfg.Batch.RateLimitRPS, "Global business rate limit (RPS), 0 disables (env: RATE_LIMIT_RPS)")
	fs.BoolVar(&cfg.Batch.FailFast, "fail-fast", cfg.Batch.FailFast, "Reject the whole input if any row is invalid (env: FAIL_FAST)")
	fs.Float64Var(&cfg.Batch.MinSuccessRate, "min-success-rate", cfg.Batch.MinSuccessRate, "Exit non-zero below this success rate, 0 disables (env: MIN_SUCCESS_RATE)")
	fs.BoolVar(&debug, "debug", false, "Debug logging (env: LOG_LEVEL=debug)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if inputPath == "" || outputPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "local requires --input and --output")
		return 2
	}
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}
	logger := newLogger(cfg.Log.Level, debug)

	a, err := app.Build(ctx, cfg, app.Deps{Logger: logger})
	if err != nil {
		logger.Error("startup failed", "error", util.RedactErr(err))
		return 2
	}
	defer func() {
		_ = a.Close()
	}()

	summary, err := app.RunLocal(ctx, inputPath, outputPath, pipeline.Options{
		Workers:        cfg.Batch.Workers,
		RateLimitRPS:   cfg.Batch.RateLimitRPS,
		FailFast:       cfg.Batch.FailFast,
		MinSuccessRate: cfg.Batch.MinSuccessRate,
	}, a.Enricher, logger)
	printSummary(summary)
	if err != nil {
		logger.Error("local run failed", "error", util.RedactErr(err))
		return 1
	}
	return 0
}

func runServe(ctx context.Context, args []string) int {
	cfg, err := config.Load(configPath(args))
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var debug bool
	fs.String("config", "", "YAML config file (env: ENRICHER_CONFIG)")
	fs.StringVar(&cfg.Server.ListenAddr, "addr", cfg.Server.ListenAddr, "Listen address (env: LISTEN_ADDR)")
	fs.IntVar(&cfg.Batch.Workers, "workers", cfg.Batch.Workers, "Concurrent enrichments per batch call (env: WORKERS)")
	fs.DurationVar(&cfg.Batch.RequestTimeout, "request-timeout", cfg.Batch.RequestTimeout, "Per-business enrichment timeout (env: REQUEST_TIMEOUT)")
	fs.BoolVar(&debug, "debug", false, "Debug logging (env: LOG_LEVEL=debug)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}
	logger := newLogger(cfg.Log.Level, debug)

	a, err := app.Build(ctx, cfg, app.Deps{Logger: logger})
	if err != nil {
		logger.Error("startup failed", "error", util.RedactErr(err))
		return 2
	}
	defer func() {
		_ = a.Close()
	}()

	api := server.New(a.Enricher, a.Breakers,
		server.WithLogger(logger),
		server.WithMetricsHandler(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})),
		server.WithBatchOptions(aggregate.BatchOptions{Workers: cfg.Batch.Workers, RateLimitRPS: cfg.Batch.RateLimitRPS}),
	)
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.ListenAddr, "version", version.Current)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
			return 1
		}
	}
	return 0
}

// configPath finds --config ahead of flag parsing so that file values become flag defaults.
func configPath(args []string) string {
	for i, a := range args {
		switch {
		case a == "--config" || a == "-config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		case strings.HasPrefix(a, "-config="):
			return strings.TrimPrefix(a, "-config=")
		}
	}
	return strings.TrimSpace(os.Getenv("ENRICHER_CONFIG"))
}

func newLogger(level string, debug bool) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if debug {
		lvl = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.RFC3339,
	}))
	slog.SetDefault(logger)
	return logger
}

func printSummary(s batch.Summary) {
	_, _ = fmt.Fprintf(os.Stdout, "enriched %d/%d businesses (%.0f%% success)\n", s.Succeeded, s.Total, 100*s.SuccessRate())
	for _, f := range s.Failures {
		name := f.Request.BusinessName
		if name == "" {
			name = f.Request.WebsiteURL
		}
		_, _ = fmt.Fprintf(os.Stdout, "  row %d %q: %s\n", f.Index+1, name, util.RedactSecrets(f.Error))
	}
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `enricher: business contact enrichment (website, email, LinkedIn)

Usage:
  enricher <command> [flags]

Commands:
  local    Enrich a local CSV of businesses into a CSV of contacts
  serve    Run the HTTP API (/v1/enrich, /v1/enrich/batch, /v1/breakers, /metrics)
  version  Print the version

Examples:
  enricher local --input businesses.csv --output contacts.csv
  enricher serve --config enricher.yaml --addr :8080

Environment (also read from .env):
  ENRICHER_CONFIG      YAML config file path
  WORKERS, REQUEST_TIMEOUT, RATE_LIMIT_RPS, FAIL_FAST, MIN_SUCCESS_RATE
  GEMINI_API_KEY       Enables AI owner extraction (with GEMINI_MODEL)
  GEMINI_MODEL         Gemini model name
  GEMINI_BASE_URL      Optional base URL override (proxies/testing)
  HUNTER_API_KEY       Enables Hunter email verification
  ZEROBOUNCE_API_KEY   Enables ZeroBounce email verification
  REDIS_URL            Shares the verification cache through Redis
  LOG_LEVEL            debug, info, warn, error
  LISTEN_ADDR          serve listen address

`)
}
