package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	apihttp "cardiac-monitor/internal/api/http"
	"cardiac-monitor/internal/auth"
	"cardiac-monitor/internal/devices/adapters/bostonscientific"
	"cardiac-monitor/internal/ingestion"
	"cardiac-monitor/internal/observability/metrics"
	"cardiac-monitor/internal/restclient"
	"cardiac-monitor/internal/secrets"
	memorystore "cardiac-monitor/internal/storage/memory"
	pgstore "cardiac-monitor/internal/storage/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ingestCfg, err := ingestion.LoadConfig()
	if err != nil {
		logger.Fatalf("load ingestion config: %v", err)
	}

	secretStore, err := buildSecretStore(cfg, logger)
	if err != nil {
		logger.Fatalf("secret store: %v", err)
	}
	manager, err := auth.NewManager(secretStore, auth.NewTokenCache(), logger)
	if err != nil {
		logger.Fatalf("auth manager: %v", err)
	}

	vendorHTTP, err := restclient.NewClient(cfg.BSCBaseURL,
		restclient.WithTimeout(cfg.VendorTimeout),
		restclient.WithMaxRetries(cfg.VendorMaxRetries),
		restclient.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("vendor http client: %v", err)
	}
	provider, err := bostonscientific.NewAuthProvider(vendorHTTP)
	if err != nil {
		logger.Fatalf("vendor auth provider: %v", err)
	}
	if err := manager.RegisterProvider(bostonscientific.Manufacturer, provider); err != nil {
		logger.Fatalf("register provider: %v", err)
	}
	if cfg.BSCClientID != "" && cfg.BSCClientSecret != "" {
		err := manager.StoreCredentials(ctx, auth.Credentials{
			Manufacturer: bostonscientific.Manufacturer,
			ClientID:     cfg.BSCClientID,
			ClientSecret: cfg.BSCClientSecret,
			Environment:  cfg.BSCEnvironment,
		})
		if err != nil {
			logger.Fatalf("store credentials: %v", err)
		}
	}

	vendorClient, err := bostonscientific.NewClient(vendorHTTP, manager, logger)
	if err != nil {
		logger.Fatalf("vendor client: %v", err)
	}

	sink, db := buildSink(ctx, cfg, logger)
	if db != nil {
		defer db.Close()
	}

	m := metrics.New(nil)
	pipeline, err := ingestion.NewPipeline(sink, ingestCfg, logger, ingestion.WithMetrics(m))
	if err != nil {
		logger.Fatalf("ingestion pipeline: %v", err)
	}
	if err := pipeline.RegisterClient(vendorClient); err != nil {
		logger.Fatalf("register vendor client: %v", err)
	}

	if len(ingestCfg.PatientIDs) > 0 {
		runner, err := ingestion.NewRunner(pipeline, ingestCfg.PatientIDs, ingestCfg.Interval, logger)
		if err != nil {
			logger.Fatalf("ingestion runner: %v", err)
		}
		go func() {
			if err := runner.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Printf("ingestion runner stopped: %v", err)
			}
		}()
	}

	tracker := apihttp.NewRunTracker()
	mux := http.NewServeMux()
	mux.Handle("/api/v1/patients/", apihttp.NewIngestHandler(pipeline, tracker, logger))
	mux.Handle("/api/v1/status", apihttp.NewStatusHandler(pipeline, manager, tracker, time.Now().UTC()))
	mux.Handle("/api/v1/reports/run", apihttp.NewReportHandler(tracker))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(mux, logger)}
	go func() {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}
}

// buildSecretStore prefers the encrypted file store; without a key it falls
// back to an in-process store, which loses credentials on restart.
func buildSecretStore(cfg config, logger *log.Logger) (auth.SecretStore, error) {
	if cfg.SecretsKey == "" {
		logger.Printf("SECRETS_KEY not set, using in-memory secret store")
		return secrets.NewMemoryStore(), nil
	}
	key, err := hex.DecodeString(cfg.SecretsKey)
	if err != nil {
		return nil, err
	}
	return secrets.NewFileStore(cfg.SecretsPath, key)
}

// buildSink opens PostgreSQL when DATABASE_URL is set, otherwise the
// in-memory store.
func buildSink(ctx context.Context, cfg config, logger *log.Logger) (ingestion.Sink, *sql.DB) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not set, using in-memory storage")
		return memorystore.NewStore(), nil
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	store, err := pgstore.NewStore(db, logger)
	if err != nil {
		logger.Fatalf("postgres store: %v", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatalf("ensure schema: %v", err)
	}
	return store, db
}

type config struct {
	HTTPAddr         string
	DatabaseURL      string
	SecretsPath      string
	SecretsKey       string
	BSCBaseURL       string
	BSCClientID      string
	BSCClientSecret  string
	BSCEnvironment   string
	VendorTimeout    time.Duration
	VendorMaxRetries int
}

func loadConfig() config {
	return config{
		HTTPAddr:         getenvDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:      getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		SecretsPath:      getenvDefault("SECRETS_PATH", "var/secrets/credentials.enc"),
		SecretsKey:       getenvDefault("SECRETS_KEY", ""),
		BSCBaseURL:       getenvDefault("BSC_BASE_URL", "https://api.latitude.bostonscientific.com"),
		BSCClientID:      getenvDefault("BSC_CLIENT_ID", ""),
		BSCClientSecret:  getenvDefault("BSC_CLIENT_SECRET", ""),
		BSCEnvironment:   getenvDefault("BSC_ENVIRONMENT", auth.EnvironmentProduction),
		VendorTimeout:    getenvDuration("VENDOR_HTTP_TIMEOUT", 30*time.Second),
		VendorMaxRetries: getenvIntDefault("VENDOR_MAX_RETRIES", 3),
	}
}

func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
