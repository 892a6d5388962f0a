package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"redactor/internal/logger"
	"redactor/internal/pipeline"
	"redactor/internal/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued redaction jobs",
	Long: `Consume redact:image tasks from Redis and run the pipeline on each stored
upload. The masked image is written back to the storage backend and the job
record is updated.

Required environment variables:
  REDIS_URL - Redis connection URL, e.g. redis://localhost:6379/0

Optional environment variables:
  DATABASE_URL - Postgres URL for job records (shared with 'redactor serve')
  QUEUE_NAME - Queue name (default: redaction)
  WORKER_CONCURRENCY - Parallel tasks (default: 2)`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().Int("concurrency", 0, "Parallel tasks (default: WORKER_CONCURRENCY)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("worker")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.RedisURL == "" {
		return fmt.Errorf("REDIS_URL environment variable is required")
	}
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency <= 0 {
		concurrency = cfg.WorkerConcurrency
	}

	ctx, cancel := createContextWithTimeout(0, log)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	jobStore, err := openJobStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer jobStore.Close()

	p, err := buildPipeline(ctx, cfg, pipeline.Options{}, log)
	if err != nil {
		return err
	}
	defer p.Extractor().Registry().Close()

	return queue.Run(ctx, queue.WorkerConfig{
		RedisURL:    cfg.RedisURL,
		Queue:       cfg.QueueName,
		Concurrency: concurrency,
	}, queue.NewHandler(p, store, jobStore))
}
