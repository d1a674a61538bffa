package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/leonardojasson-oss/jasson-leads-control/internal/jobs"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/rbac"
)

// DanglingSource lists profiles whose role code matches no role.
type DanglingSource interface {
	DanglingProfiles(ctx context.Context) ([]rbac.Profile, error)
}

// IntegrityScanJob reports profiles that reference a missing role. It only
// reports; fixing a profile is an explicit role change.
type IntegrityScanJob struct {
	Source  DanglingSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewIntegrityScanJob initialises the integrity scan handler.
func NewIntegrityScanJob(source DanglingSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{
		Source:  source,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan for an Asynq task.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IntegrityScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Trigger == "" {
		payload.Trigger = "cron"
	}
	_, err := j.Run(ctx, payload.Trigger)
	return err
}

// Run scans once and returns the dangling profiles found.
func (j *IntegrityScanJob) Run(ctx context.Context, trigger string) (dangling []rbac.Profile, resultErr error) {
	if j == nil || j.Source == nil {
		return nil, errors.New("integrity scan: handler not configured")
	}
	start := j.now()
	tracker := j.Metrics.Track(TaskIntegrityScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("trigger", trigger))
	logger.Info("starting integrity scan")

	dangling, err := j.Source.DanglingProfiles(ctx)
	if err != nil {
		logger.Error("integrity scan failed", slog.Any("error", err))
		return nil, err
	}
	for _, p := range dangling {
		logger.Warn("profile references missing role",
			slog.String("user_id", p.ID.String()),
			slog.String("email", p.Email),
			slog.String("role", p.Role),
		)
	}
	j.Metrics.SetDanglingProfiles(len(dangling))

	logger.Info("completed integrity scan",
		slog.Int("dangling", len(dangling)),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return dangling, nil
}

func (j *IntegrityScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *IntegrityScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
