package cmd

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"redactor/internal/api"
	"redactor/internal/config"
	"redactor/internal/jobs"
	"redactor/internal/logger"
	"redactor/internal/pipeline"
	"redactor/internal/queue"
	"redactor/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the redaction HTTP API",
	Long: `Serve the redaction pipeline over HTTP.

Uploads and every produced image are kept in the storage backend
(STORAGE_BACKEND=local or minio). When DATABASE_URL and REDIS_URL are set,
POST /api/jobs enqueues images for 'redactor worker' and records each job in
Postgres; without DATABASE_URL jobs are tracked in memory.

When API_JWT_SECRET is set every route except /health requires an HS256
bearer token.`,
	Example: `  # Serve on the default port 8000
  redactor serve

  # Serve on another port and print a one-day token
  API_JWT_SECRET=s3cret redactor serve --port 9000 --print-token`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Listen port (default: PORT or 8000)")
	serveCmd.Flags().Bool("print-token", false, "Print a bearer token valid for 24 hours")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}

	ctx, cancel := createContextWithTimeout(0, log)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	p, err := buildPipeline(ctx, cfg, pipeline.Options{Preview: true, Comparison: true}, log)
	if err != nil {
		return err
	}
	defer p.Extractor().Registry().Close()

	opts := api.Options{
		Pipeline:       p,
		Store:          store,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		JWTSecret:      cfg.Server.JWTSecret,
		Version:        version,
	}

	if cfg.RedisURL != "" {
		producer, err := queue.NewProducer(cfg.RedisURL, cfg.QueueName)
		if err != nil {
			return err
		}
		defer producer.Close()
		opts.Queue = producer

		jobStore, err := openJobStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer jobStore.Close()
		opts.Jobs = jobStore
	}

	if printToken, _ := cmd.Flags().GetBool("print-token"); printToken {
		if cfg.Server.JWTSecret == "" {
			return fmt.Errorf("--print-token requires API_JWT_SECRET")
		}
		token, err := api.IssueToken(cfg.Server.JWTSecret, "cli", 24*time.Hour)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		fmt.Println(token)
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	log.Info().
		Str("addr", addr).
		Str("storage", store.Backend()).
		Bool("jobs", opts.Jobs != nil).
		Bool("auth", cfg.Server.JWTSecret != "").
		Msg("Starting redaction API")

	return api.NewServer(opts).ListenAndServe(ctx, addr)
}

// openStore connects the configured storage backend.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	s := cfg.Storage
	switch s.Backend {
	case "minio":
		store, err := storage.NewMinIOStore(ctx, storage.MinIOConfig{
			Endpoint:  s.MinIOEndpoint,
			AccessKey: s.MinIOAccessKey,
			SecretKey: s.MinIOSecretKey,
			Bucket:    s.MinIOBucket,
			UseSSL:    s.MinIOUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MinIO: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewLocalStore(s.UploadDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open upload directory: %w", err)
		}
		return store, nil
	}
}

// openJobStore uses Postgres when DATABASE_URL is set, memory otherwise.
func openJobStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (jobs.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, job records are kept in memory")
		return jobs.NewMemoryStore(), nil
	}
	store, err := jobs.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return store, nil
}
