package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/me/bloodlens/internal/analysis"
	"github.com/me/bloodlens/internal/auth"
	"github.com/me/bloodlens/internal/config"
	"github.com/me/bloodlens/internal/janitor"
	"github.com/me/bloodlens/internal/llm"
	"github.com/me/bloodlens/internal/logging"
	"github.com/me/bloodlens/internal/pdfextract"
	"github.com/me/bloodlens/internal/ratelimit"
	"github.com/me/bloodlens/internal/server"
	"github.com/me/bloodlens/internal/session"
	"github.com/me/bloodlens/internal/store"
	"github.com/me/bloodlens/internal/telemetry"
)

func main() {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg := config.DefaultServerConfig()

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	flag.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Also write logs to this rotating file")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Database path (default ~/.bloodlens/bloodlens.db)")
	flag.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "Path to the YAML application config")
	flag.BoolVar(&cfg.SecureCookies, "secure-cookies", cfg.SecureCookies, "Mark cookies Secure (serve over HTTPS)")
	flag.StringVar(&cfg.TelemetryDir, "telemetry-dir", cfg.TelemetryDir, "Write OpenTelemetry traces and metrics to this directory")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")

	flag.Parse()

	if *debug {
		cfg.LogLevel = "debug"
	}

	logger, logCloser := logging.NewLoggerWithFile(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cfg.LogFile)
	defer logCloser.Close()

	app, err := config.Load(cfg.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if app.LLM.APIKey == "" {
		logger.Warn("GROQ_API_KEY is not set; analyses will fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Options{Dir: cfg.TelemetryDir, ServiceVersion: server.Version})
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: %v\n", err)
		os.Exit(1)
	}

	dbPath, err := config.ResolveDBPath(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// Open store and run migrations.
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", dbPath)

	provider := auth.NewLocalProvider(st, auth.Options{
		Secret:   app.Auth.JWTSecret,
		Issuer:   app.Auth.Issuer,
		TokenTTL: app.Auth.TokenTTL.Std(),
	}, logger)
	sessions := session.NewManager(st, provider, app.Session.Timeout.Std(), logger)
	limiter := ratelimit.New(app.Analysis.DailyLimit, app.Analysis.Window.Std())
	analyzer := analysis.NewService(llm.NewClient(app.LLM.Client(), logger), limiter, logger)
	extractor := pdfextract.New(app.Upload.Extractor(), logger)

	srv := server.New(cfg, &app, server.Deps{
		Store:     st,
		Auth:      provider,
		Sessions:  sessions,
		Analyzer:  analyzer,
		Extractor: extractor,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	jcfg := janitor.DefaultConfig()
	jcfg.Retention = app.Session.Retention.Std()
	jan := janitor.NewLoop(sessions, provider, jcfg, logger)
	go jan.Start(ctx)

	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "model", app.LLM.Model, "daily_limit", app.Analysis.DailyLimit)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown", "error", err)
	}
	logger.Info("server stopped")
}
