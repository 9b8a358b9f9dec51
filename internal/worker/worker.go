package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/noel-cartinhas/noel/internal/cartas"
	"github.com/noel-cartinhas/noel/internal/config"
	"github.com/noel-cartinhas/noel/internal/metrics"
	"github.com/noel-cartinhas/noel/internal/relatorios"
)

const concurrency = 5

// asynqLoggerAdapter wraps slog.Logger to implement asynq.Logger.
type asynqLoggerAdapter struct {
	logger *slog.Logger
}

func (a *asynqLoggerAdapter) Debug(args ...interface{}) { a.logger.Debug(fmt.Sprint(args...)) }
func (a *asynqLoggerAdapter) Info(args ...interface{})  { a.logger.Info(fmt.Sprint(args...)) }
func (a *asynqLoggerAdapter) Warn(args ...interface{})  { a.logger.Warn(fmt.Sprint(args...)) }
func (a *asynqLoggerAdapter) Error(args ...interface{}) { a.logger.Error(fmt.Sprint(args...)) }

func (a *asynqLoggerAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}

// Reporter builds the attachment reconciliation report.
type Reporter interface {
	Build(ctx context.Context) (relatorios.Report, error)
}

// Deps are the services the task handlers use.
type Deps struct {
	Thumbnails *Thumbnailer
	Reports    Reporter
}

// Run starts the worker and blocks until a shutdown signal arrives.
func Run(cfg *config.Config, deps Deps) error {
	srv, mux, err := newServer(cfg, deps)
	if err != nil {
		return err
	}
	return srv.Run(mux)
}

// Start runs the worker in the background and returns its stop function.
func Start(cfg *config.Config, deps Deps) (stop func(), err error) {
	srv, mux, err := newServer(cfg, deps)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return func() { srv.Shutdown() }, nil
}

func newServer(cfg *config.Config, deps Deps) (*asynq.Server, *asynq.ServeMux, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     concurrency,
		ShutdownTimeout: 30 * time.Second,
		ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
		Logger:          &asynqLoggerAdapter{logger: logger},
	})

	logger.Info("Worker starting", "concurrency", concurrency)
	return srv, newMux(logger, deps), nil
}

func newMux(logger *slog.Logger, deps Deps) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskThumbnail, observed(TaskThumbnail, handleThumbnail(logger, deps.Thumbnails)))
	mux.HandleFunc(TaskOrphanScan, observed(TaskOrphanScan, handleOrphanScan(logger, deps.Reports)))
	return mux
}

func observed(taskType string, h func(context.Context, *asynq.Task) error) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		err := h(ctx, task)
		metrics.ObserveTask(taskType, err)
		return err
	}
}

func handleThumbnail(logger *slog.Logger, t *Thumbnailer) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var p ThumbnailPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil || p.ObjectName == "" {
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}
		if t == nil {
			return fmt.Errorf("thumbnails not configured: %w", asynq.SkipRetry)
		}

		thumb, err := t.Generate(ctx, p.LetterNumber, p.ObjectName)
		switch {
		case errors.Is(err, cartas.ErrNotFound):
			logger.Warn("Carta gone before thumbnail", "letter_number", p.LetterNumber, "object", p.ObjectName)
			return nil
		case errors.Is(err, ErrNotAnImage):
			logger.Warn("Attachment is not a decodable image", "object", p.ObjectName, "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		case err != nil:
			return fmt.Errorf("thumbnail for %s: %w", p.ObjectName, err)
		case thumb == "":
			logger.Debug("Thumbnail skipped", "object", p.ObjectName)
			return nil
		}

		logger.Info("Thumbnail stored", "letter_number", p.LetterNumber, "object", p.ObjectName, "thumbnail", thumb)
		return nil
	}
}

func handleOrphanScan(logger *slog.Logger, reports Reporter) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, _ *asynq.Task) error {
		if reports == nil {
			return fmt.Errorf("storage not configured: %w", asynq.SkipRetry)
		}
		rep, err := reports.Build(ctx)
		if err != nil {
			return fmt.Errorf("failed to build attachment report: %w", err)
		}

		var orphanBytes int64
		for _, e := range rep.Orphaned {
			orphanBytes += e.Size
		}
		logger.Info("Attachment scan finished",
			"referenced", len(rep.Referenced),
			"orphaned", len(rep.Orphaned),
			"orphaned_bytes", orphanBytes,
		)
		return nil
	}
}

func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		logger.Error("Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
			"max_retry", maxRetry,
		)
		if retried >= maxRetry {
			logger.Error("Task moved to dead letter queue (all retries exhausted)",
				"task_type", task.Type(),
				"payload", string(task.Payload()),
			)
		}
	}
}
