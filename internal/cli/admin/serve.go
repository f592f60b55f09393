package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/atende-labs/atendai/internal/api/handlers"
	"github.com/atende-labs/atendai/internal/api/middleware"
	"github.com/atende-labs/atendai/internal/bridge"
	"github.com/atende-labs/atendai/internal/cachestore"
	"github.com/atende-labs/atendai/internal/config"
	"github.com/atende-labs/atendai/internal/jobs"
	"github.com/atende-labs/atendai/internal/openai"
	"github.com/atende-labs/atendai/internal/orchestrator"
	"github.com/atende-labs/atendai/internal/repository"
	"github.com/atende-labs/atendai/internal/retrieval"
	"github.com/atende-labs/atendai/internal/server"
	"github.com/atende-labs/atendai/internal/storage"
	"github.com/atende-labs/atendai/internal/telemetry"
	"github.com/atende-labs/atendai/internal/tenant"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the atendai API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	knowledgeRepo := repository.NewKnowledgeRepository(pool)
	conversationRepo := repository.NewConversationRepository(pool)

	// The retrieval caches are shared across replicas through Redis when
	// configured; a single replica can run on the in-process store.
	var store cachestore.Store
	if cfg.HasRedis() {
		redisStore, err := cachestore.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		store = redisStore
		log.Println("connected to redis")
	} else {
		store = cachestore.NewMemoryStore()
		log.Println("using in-process cache store")
	}

	configClient := tenant.NewClient(tenant.ClientConfig{BaseURL: cfg.ConfigServiceURL})
	configCache := tenant.NewCache(configClient, tenant.CacheConfig{TTL: cfg.ConfigCacheTTL})
	defer configCache.Stop()

	if !cfg.HasOpenAI() {
		log.Println("warning: OPENAI_API_KEY not set, dense retrieval will be unavailable")
		telemetry.CaptureMessage(ctx, "OPENAI_API_KEY not set, dense retrieval will be unavailable")
	}
	embedder := openai.NewClient(cfg.OpenAIAPIKey)

	engine := retrieval.NewEngine(embedder, knowledgeRepo, knowledgeRepo, knowledgeRepo, configCache, store, retrieval.EngineConfig{
		DenseWeight:  cfg.DenseWeight,
		SparseWeight: cfg.SparseWeight,
		ResultTTL:    cfg.ResultTTL,
	})

	invoker := bridge.NewHTTPInvoker(cfg.BackendURL, &http.Client{Timeout: cfg.BackendTimeout})
	executor := bridge.NewExecutor(invoker, bridge.ExecutorConfig{InvokeTimeout: cfg.BackendTimeout})

	classifier := orchestrator.NewRuleClassifier(orchestrator.DefaultIntentRules())
	builder := orchestrator.NewBuilder(classifier, engine, executor, orchestrator.BuilderConfig{})
	scheduler := orchestrator.NewScheduler(log.Default())
	orchestratorSvc := orchestrator.NewService(configCache, builder, scheduler, conversationRepo, log.Default(), orchestrator.ServiceConfig{
		RequestTimeout: cfg.RequestTimeout,
	})

	var archiveWorker *jobs.Worker
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)

		archiver := jobs.NewArchiver(conversationRepo, s3Client, cfg.ArchiveAfter)
		archiveWorker = jobs.NewWorker(archiver, cfg.ArchiveInterval)
		go archiveWorker.Start(ctx)
		log.Println("transcript archiver started")
	}

	var authValidator middleware.AuthValidator
	if cfg.HasAPIKeys() {
		ring := middleware.NewStaticKeyRing(cfg.APIKeys)
		log.Printf("api key auth enabled (%d keys)", ring.Len())
		authValidator = ring
	} else {
		log.Println("warning: API_KEYS not set, authentication disabled")
	}

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:       authValidator,
		MessageHandler:      handlers.NewMessageHandler(orchestratorSvc),
		InvalidationHandler: handlers.NewInvalidationHandler(configCache, engine),
		ConversationHandler: handlers.NewConversationHandler(conversationRepo),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if archiveWorker != nil {
		archiveWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
