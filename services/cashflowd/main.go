package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	ledgerconfig "cashflow/config"
	"cashflow/core"
	"cashflow/core/events"
	"cashflow/observability"
	"cashflow/observability/logging"
	telemetry "cashflow/observability/otel"
	"cashflow/services/cashflowd/config"
	"cashflow/services/cashflowd/export"
	"cashflow/services/cashflowd/index"
	"cashflow/services/cashflowd/scheduler"
	"cashflow/services/cashflowd/server"
	"cashflow/storage"
)

func main() {
	var (
		cfgPath string
		envFile string
	)
	flag.StringVar(&cfgPath, "config", "services/cashflowd/config.yaml", "path to cashflowd configuration file")
	flag.StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before the configuration")
	flag.Parse()

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("cashflowd: load env file: %v", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("cashflowd: load config: %v", err)
	}

	logger := logging.Setup("cashflowd", cfg.Environment, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "cashflowd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		log.Fatalf("cashflowd: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	ledgerCfg, err := ledgerconfig.Load(cfg.LedgerConfig)
	if err != nil {
		log.Fatalf("cashflowd: load ledger config: %v", err)
	}
	operators, err := ledgerCfg.OperatorAddresses()
	if err != nil {
		log.Fatalf("cashflowd: operators: %v", err)
	}
	db, err := storage.Open(ledgerCfg.Backend, ledgerCfg.DataDir)
	if err != nil {
		log.Fatalf("cashflowd: open ledger storage: %v", err)
	}
	defer db.Close()

	store, err := index.Open(cfg.Index.Driver, cfg.Index.DSN)
	if err != nil {
		log.Fatalf("cashflowd: open index: %v", err)
	}
	defer store.Close()
	logger.Info("index opened", slog.String("driver", cfg.Index.Driver), logging.Secret("dsn", cfg.Index.DSN))

	hub := server.NewHub()
	ledger := core.NewLedger(db)
	ledger.SetPauses(ledgerCfg.Pauses())
	ledger.SetOperators(operators)
	ledger.SetObserver(observability.Ledger())
	ledger.SetEmitter(events.NewMultiEmitter(store, hub))

	var uploader export.Uploader
	if cfg.Export.Bucket != "" {
		s3Uploader, err := export.NewS3Uploader(context.Background(), export.S3Config{
			Bucket:          cfg.Export.Bucket,
			Region:          cfg.Export.Region,
			Endpoint:        cfg.Export.Endpoint,
			Prefix:          cfg.Export.Prefix,
			PathStyle:       cfg.Export.PathStyle,
			AccessKeyID:     cfg.Export.AccessKeyID,
			SecretAccessKey: cfg.Export.SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("cashflowd: export uploader: %v", err)
		}
		uploader = s3Uploader
	}
	exporter := export.New(store, cfg.Export.Directory, uploader)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs := scheduler.New(ctx, ledger, store, observability.Ledger(), exporter)
	if err := jobs.Register(cfg.Scheduler.SnapshotCron, cfg.Scheduler.ExportCron); err != nil {
		log.Fatalf("cashflowd: scheduler: %v", err)
	}
	jobs.Start()
	defer jobs.Stop()

	auth, err := server.NewAuthenticator(server.AuthConfig{
		HMACSecret:    cfg.Auth.HMACSecret,
		Issuer:        cfg.Auth.Issuer,
		Audience:      cfg.Auth.Audience,
		AdminSubjects: cfg.Auth.AdminSubjects,
		ClockSkew:     cfg.Auth.ClockSkew.Duration,
	})
	if err != nil {
		log.Fatalf("cashflowd: auth: %v", err)
	}
	limiter := server.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		Decimals:      ledgerCfg.Decimals,
	}, ledger, store, hub, auth, limiter)
	if err != nil {
		log.Fatalf("cashflowd: server: %v", err)
	}

	logger.Info("cashflowd starting",
		slog.String("listen", cfg.ListenAddress),
		slog.String("backend", ledgerCfg.Backend),
		slog.Int("operators", len(operators)))
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("cashflowd: server error: %v", err)
	}
}
