package worker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/noel-cartinhas/noel/internal/config"
)

// StartScheduler registers the periodic orphan scan and returns a stop
// function. An empty schedule disables it.
func StartScheduler(cfg *config.Config) (stop func(), err error) {
	if cfg.OrphanScanSchedule == "" {
		return func() {}, nil
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	location, err := time.LoadLocation(cfg.OrphanScanTimezone)
	if err != nil {
		slog.Warn("Invalid timezone, using UTC", "timezone", cfg.OrphanScanTimezone, "error", err)
		location = time.UTC
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: location,
		LogLevel: asynq.InfoLevel,
		Logger:   &asynqLoggerAdapter{logger: NewLogger(cfg.LogLevel, cfg.LogFormat)},
	})

	entryID, err := scheduler.Register(cfg.OrphanScanSchedule, newOrphanScanTask())
	if err != nil {
		return nil, fmt.Errorf("failed to register orphan scan schedule: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	slog.Info("Scheduler started",
		"schedule", cfg.OrphanScanSchedule,
		"timezone", location.String(),
		"entry_id", entryID,
	)
	return func() { scheduler.Shutdown() }, nil
}
