// Package queue moves redaction work onto asynq workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"redactor/internal/logger"
)

// TypeRedactImage is the task type for one stored image.
const TypeRedactImage = "redact:image"

// Payload identifies the job and the stored original it processes.
type Payload struct {
	JobID  uuid.UUID `json:"job_id"`
	Object string    `json:"object"`
}

// NewRedactTask encodes a redaction task.
func NewRedactTask(p Payload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeRedactImage, data), nil
}

// Producer enqueues redaction tasks.
type Producer struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
	log       zerolog.Logger
}

// NewProducer connects to the Redis instance at redisURL.
func NewProducer(redisURL, queue string) (*Producer, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Producer{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		queue:     queue,
		log:       logger.WithComponent("queue"),
	}, nil
}

// Enqueue submits a task and returns its asynq id.
func (p *Producer) Enqueue(ctx context.Context, payload Payload) (string, error) {
	task, err := NewRedactTask(payload)
	if err != nil {
		return "", err
	}
	info, err := p.client.EnqueueContext(ctx, task,
		asynq.Queue(p.queue),
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", TypeRedactImage, err)
	}
	p.log.Info().
		Str("job_id", payload.JobID.String()).
		Str("task_id", info.ID).
		Str("queue", info.Queue).
		Msg("Redaction task enqueued")
	return info.ID, nil
}

// Ping checks the Redis connection.
func (p *Producer) Ping() error {
	_, err := p.inspector.Queues()
	return err
}

func (p *Producer) Close() error {
	return errors.Join(p.client.Close(), p.inspector.Close())
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
