package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	rfhttp "github.com/Strob0t/RuleForge/internal/adapter/http"
	"github.com/Strob0t/RuleForge/internal/adapter/mcp"
	rfnats "github.com/Strob0t/RuleForge/internal/adapter/nats"
	"github.com/Strob0t/RuleForge/internal/adapter/natskv"
	rfotel "github.com/Strob0t/RuleForge/internal/adapter/otel"
	"github.com/Strob0t/RuleForge/internal/adapter/postgres"
	"github.com/Strob0t/RuleForge/internal/adapter/ristretto"
	"github.com/Strob0t/RuleForge/internal/adapter/tiered"
	"github.com/Strob0t/RuleForge/internal/adapter/ws"
	"github.com/Strob0t/RuleForge/internal/config"
	"github.com/Strob0t/RuleForge/internal/dedup"
	"github.com/Strob0t/RuleForge/internal/domain/webhook"
	"github.com/Strob0t/RuleForge/internal/interp"
	"github.com/Strob0t/RuleForge/internal/logger"
	"github.com/Strob0t/RuleForge/internal/middleware"
	"github.com/Strob0t/RuleForge/internal/port/cache"
	"github.com/Strob0t/RuleForge/internal/resilience"
	"github.com/Strob0t/RuleForge/internal/secrets"
	"github.com/Strob0t/RuleForge/internal/service"
	"github.com/Strob0t/RuleForge/internal/validator"
)

const version = "0.1.0"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "admin":
			if err := runAdmin(args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "migrate":
			if err := runMigrate(args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := run(args); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	holder := config.NewHolder(cfg, cfgPath)

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"file", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"nats_enabled", cfg.NATS.Enabled,
		"auth_enabled", cfg.Auth.Enabled,
	)

	ctx := context.Background()

	// --- Infrastructure ---

	// OpenTelemetry
	stopTelemetry, err := rfotel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stopTelemetry(flushCtx); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS JetStream
	var queue *rfnats.Queue
	if cfg.NATS.Enabled {
		queue, err = rfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := queue.Drain(); err != nil {
				slog.Error("nats drain failed", "error", err)
			}
		}()
		slog.Info("nats connected", "url", cfg.NATS.URL)
	} else {
		slog.Info("nats disabled, queue transport and shared state are off")
	}

	// Webhook secrets live in the environment, never in the config file.
	envKeys := make([]string, 0, len(cfg.Webhook.Sources))
	for _, src := range cfg.Webhook.Sources {
		if src.SecretEnv != "" {
			envKeys = append(envKeys, src.SecretEnv)
		}
	}
	vault, err := secrets.NewVault(secrets.EnvLoader(envKeys...))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}

	// Validation cache: in-process L1, JetStream KV L2 when available.
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("validation cache: %w", err)
	}
	var valCache cache.Cache = l1
	if queue != nil {
		kv, kvErr := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if kvErr != nil {
			slog.Warn("validation L2 cache unavailable", "bucket", cfg.Cache.L2Bucket, "error", kvErr)
		} else {
			valCache = tiered.New(l1, natskv.New(kv), cfg.Cache.ValidationTTL)
		}
	}

	// --- Core pipeline ---

	vcfg := validator.DefaultConfig()
	if cfg.Validator.MaxCodeSize > 0 {
		vcfg.MaxCodeSize = cfg.Validator.MaxCodeSize
	}
	if cfg.Validator.MaxNestingDepth > 0 {
		vcfg.MaxNestingDepth = cfg.Validator.MaxNestingDepth
	}
	vcfg.Blocklist = append(vcfg.Blocklist, cfg.Validator.ExtraBlocklist...)
	checker := validator.NewCached(validator.New(vcfg), valCache, cfg.Cache.ValidationTTL)

	engine := interp.New(interp.Config{
		ConditionTimeout: cfg.Engine.ConditionTimeout,
		ActionTimeout:    cfg.Engine.ActionTimeout,
		MaxNodes:         cfg.Engine.MaxNodes,
		MaxCalls:         cfg.Engine.MaxCalls,
	})

	policyStore := postgres.NewPolicyStore(pool)
	recordStore := postgres.NewExecutionStore(pool)
	taskStore := postgres.NewTaskStore(pool)

	hub := ws.NewHub()

	// --- Services ---

	policySvc := service.NewPolicyService(policyStore, checker)
	dispatchSvc := service.NewDispatchService(policyStore, recordStore, taskStore, checker, engine,
		service.DispatchConfig{
			ConditionTimeout: cfg.Engine.ConditionTimeout,
			ActionTimeout:    cfg.Engine.ActionTimeout,
			Capabilities:     cfg.Dispatch.Capabilities,
			Quota: resilience.QuotaConfig{
				Window:        cfg.Dispatch.QuotaWindow,
				MaxPerWindow:  cfg.Dispatch.QuotaMaxPerWindow,
				MaxPerRequest: cfg.Dispatch.QuotaMaxPerRequest,
			},
			Breaker: resilience.BreakerConfig{
				Threshold: cfg.Dispatch.BreakerThreshold,
				Cooldown:  cfg.Dispatch.BreakerCooldown,
			},
			DedupWindow:    cfg.Dispatch.DedupWindow,
			DedupRetention: cfg.Dispatch.DedupRetention,
			MaxConcurrent:  cfg.Dispatch.MaxConcurrent,
		})
	taskSvc := service.NewTaskService(taskStore)

	policySvc.SetBroadcaster(hub)
	dispatchSvc.SetBroadcaster(hub)
	if queue != nil {
		policySvc.SetQueue(queue)
		dispatchSvc.SetQueue(queue)
	}

	metrics, err := rfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metric instruments: %w", err)
	}
	dispatchSvc.SetSink(rfotel.NewSink(metrics))

	stopMaintenance := dispatchSvc.StartMaintenance(cfg.Dispatch.MaintenanceInterval, cfg.Dispatch.MaintenanceMaxIdle)
	defer stopMaintenance()

	// --- Ingestion ---

	srcs := make([]webhook.Source, 0, len(cfg.Webhook.Sources))
	for _, sc := range cfg.Webhook.Sources {
		secret := vault.Get(sc.SecretEnv)
		if secret == "" {
			slog.Warn("webhook source has no secret, deliveries will be refused",
				"source", sc.Name, "env", sc.SecretEnv)
		} else {
			slog.Info("webhook source configured",
				"source", sc.Name, "scheme", sc.Scheme, "secret", vault.Redacted(sc.SecretEnv))
		}
		srcs = append(srcs, webhook.Source{
			Name:            sc.Name,
			SignatureHeader: sc.SignatureHeader,
			Scheme:          webhook.Scheme(sc.Scheme),
			Secret:          secret,
			TriggerPrefix:   sc.TriggerPrefix,
			EventHeader:     sc.EventHeader,
			DeliveryHeader:  sc.DeliveryHeader,
		})
	}

	var ingestLedger dedup.Ledger
	if queue != nil {
		kv, kvErr := queue.KeyValue(ctx, cfg.Webhook.DedupBucket, cfg.Webhook.DedupWindow)
		if kvErr != nil {
			slog.Warn("shared ingest dedup unavailable, using in-memory ledger",
				"bucket", cfg.Webhook.DedupBucket, "error", kvErr)
		} else {
			ingestLedger = natskv.NewLedger(kv)
		}
	}
	ingestSvc := service.NewIngestService(dispatchSvc, webhook.NewRegistry(srcs...), ingestLedger)
	if queue != nil {
		ingestSvc.SetQueue(queue)
	}

	subCtx, cancelSub := context.WithCancel(ctx)
	defer cancelSub()
	stopSub, err := ingestSvc.StartTriggerSubscriber(subCtx)
	if err != nil {
		return fmt.Errorf("trigger subscriber: %w", err)
	}
	defer stopSub()

	if cfg.Policies.SeedDir != "" {
		n, seedErr := policySvc.Seed(ctx, cfg.Policies.SeedDir)
		if seedErr != nil {
			slog.Warn("policy seeding failed", "dir", cfg.Policies.SeedDir, "error", seedErr)
		} else if n > 0 {
			slog.Info("policies seeded", "count", n)
		}
	}

	// --- MCP authoring server ---

	if cfg.MCP.Enabled {
		mcpSrv := mcp.NewServer(mcp.ServerConfig{
			Addr:    cfg.MCP.Addr,
			Name:    "ruleforge",
			Version: version,
			APIKey:  cfg.MCP.APIKey,
		}, mcp.ServerDeps{
			PolicyReader:    policySvc,
			PolicyRegistrar: policySvc,
			PolicyTester:    dispatchSvc,
			StatsReader:     dispatchSvc,
		})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mcpSrv.Stop(stopCtx); err != nil {
				slog.Error("mcp shutdown failed", "error", err)
			}
		}()
	}

	// --- HTTP API ---

	handlers := &rfhttp.Handlers{
		Policies:   policySvc,
		Dispatch:   dispatchSvc,
		Tasks:      taskSvc,
		Ingest:     ingestSvc,
		Executions: recordStore,
		Hub:        hub,
		DB:         pool,
		BodyLimit:  cfg.Server.BodyLimit,
	}
	if queue != nil {
		handlers.Queue = queue
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopLimiter := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopLimiter()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(rfhttp.SecurityHeaders)
	r.Use(rfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(rfhttp.Logger)
	r.Use(chimw.Recoverer)
	if cfg.Telemetry.Enabled {
		r.Use(rfotel.HTTPMiddleware(cfg.Logging.Service))
	}
	r.Use(limiter.Handler)
	r.Use(middleware.APIKeyAuth(cfg.Auth.APIKeyHash, cfg.Auth.Enabled))

	r.Get("/health", handlers.Health)
	// The hub handler blocks for the life of each connection, so it
	// stays off the timeout chain.
	r.Get("/ws", handlers.ServeWS)

	r.Group(func(api chi.Router) {
		api.Use(chimw.Timeout(30 * time.Second))
		if queue != nil {
			kv, kvErr := queue.KeyValue(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
			if kvErr != nil {
				slog.Warn("idempotency store unavailable", "bucket", cfg.Idempotency.Bucket, "error", kvErr)
			} else {
				api.Use(middleware.Idempotency(kv))
			}
		}
		rfhttp.MountRoutes(api, handlers)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// SIGHUP re-validates the config file and refreshes vault secrets.
	// Listener, guard and webhook verifier parameters are captured at
	// startup and take effect on restart.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := holder.Reload(); err != nil {
				slog.Error("config reload failed", "file", cfgPath, "error", err)
				continue
			}
			if err := vault.Reload(); err != nil {
				slog.Error("secret reload failed", "error", err)
				continue
			}
			slog.Info("config and secrets reloaded", "file", cfgPath)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("ruleforge listening", "port", cfg.Server.Port, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			done <- syscall.SIGTERM
		}
	}()

	<-done
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	slog.Info("ruleforge stopped")
	return nil
}
