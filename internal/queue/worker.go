package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"redactor/internal/imageio"
	"redactor/internal/jobs"
	"redactor/internal/logger"
	"redactor/internal/pipeline"
	"redactor/internal/storage"
)

// Handler runs the pipeline for redaction tasks.
type Handler struct {
	pipeline *pipeline.Pipeline
	store    storage.Store
	jobs     jobs.Store
	log      zerolog.Logger
}

// NewHandler creates a task handler.
func NewHandler(p *pipeline.Pipeline, store storage.Store, jobStore jobs.Store) *Handler {
	return &Handler{
		pipeline: p,
		store:    store,
		jobs:     jobStore,
		log:      logger.WithComponent("queue-worker"),
	}
}

// HandleRedact processes one task. Unreadable images fail the job without retry.
func (h *Handler) HandleRedact(ctx context.Context, task *asynq.Task) error {
	var payload Payload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	log := h.log.With().Str("job_id", payload.JobID.String()).Str("object", payload.Object).Logger()

	if err := h.jobs.MarkProcessing(ctx, payload.JobID); err != nil {
		log.Warn().Err(err).Msg("Failed to mark job as processing")
	}

	data, err := h.store.Get(ctx, payload.Object)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.fail(ctx, log, payload, err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	result, err := h.pipeline.Process(ctx, pipeline.Input{Name: payload.Object, Data: data})
	if err != nil {
		h.fail(ctx, log, payload, err)
		if errors.Is(err, imageio.ErrUndecodableImage) || errors.Is(err, imageio.ErrEmptyImage) || errors.Is(err, imageio.ErrImageTooLarge) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	maskedName := storage.VariantName(payload.Object, storage.KindMasked, imageio.Extension(result.Format))
	if err := h.store.Put(ctx, maskedName, result.Masked, imageio.ContentType(result.Format)); err != nil {
		return fmt.Errorf("store masked image: %w", err)
	}

	stats := result.Statistics
	err = h.jobs.Complete(ctx, payload.JobID, jobs.Outcome{
		EntityCount: stats.EntityCount,
		Method:      string(stats.DetectionMethod),
		Engines:     stats.EnginesUsed,
		OCRScore:    stats.OCRScore,
		Duration:    stats.TotalDuration,
		MaskedName:  maskedName,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to record job completion")
	}

	log.Info().
		Int("entities", stats.EntityCount).
		Str("masked", maskedName).
		Dur("duration", stats.TotalDuration).
		Msg("Redaction job completed")
	return nil
}

func (h *Handler) fail(ctx context.Context, log zerolog.Logger, payload Payload, cause error) {
	log.Error().Err(cause).Msg("Redaction job failed")
	if err := h.jobs.Fail(ctx, payload.JobID, cause.Error()); err != nil {
		log.Warn().Err(err).Msg("Failed to record job failure")
	}
}

// WorkerConfig configures Run.
type WorkerConfig struct {
	RedisURL    string
	Queue       string
	Concurrency int
}

// Run serves redaction tasks until ctx is canceled.
func Run(ctx context.Context, cfg WorkerConfig, handler *Handler) error {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	log := logger.WithComponent("queue")

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Queue: 10, "default": 1},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return min(time.Duration(5*(1<<uint(n)))*time.Second, time.Minute)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error().
				Err(err).
				Str("type", task.Type()).
				Msg("Task processing error")
		}),
		Logger: asynqLogger{log: log},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeRedactImage, handler.HandleRedact)

	if err := server.Start(mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	log.Info().
		Int("concurrency", cfg.Concurrency).
		Str("queue", cfg.Queue).
		Msg("Worker started")

	<-ctx.Done()
	server.Shutdown()
	log.Info().Msg("Worker stopped")
	return nil
}
