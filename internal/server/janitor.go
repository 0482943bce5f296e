package server

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Purger removes sessions idle since before.
type Purger interface {
	PurgeIdle(ctx context.Context, before time.Time) (int, error)
}

// Janitor expires idle sessions on a cron schedule.
type Janitor struct {
	purger Purger
	ttl    time.Duration
	spec   string
	now    func() time.Time
	logger *zap.Logger
}

// NewJanitor returns a Janitor that, on every tick of spec, removes sessions
// untouched for longer than ttl. spec accepts standard cron expressions and
// descriptors such as "@every 10m".
func NewJanitor(purger Purger, ttl time.Duration, spec string, logger *zap.Logger) (*Janitor, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("janitor: ttl must be positive, got %s", ttl)
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("janitor: parse schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{purger: purger, ttl: ttl, spec: spec, now: time.Now, logger: logger}, nil
}

// Sweep runs one purge.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	n, err := j.purger.PurgeIdle(ctx, j.now().Add(-j.ttl))
	if err != nil {
		j.logger.Warn("session purge failed", zap.Error(err))
	}
	return n, err
}

// Run sweeps on schedule until ctx is cancelled, then waits for a running
// sweep to finish.
func (j *Janitor) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(j.spec, func() { j.Sweep(ctx) }); err != nil {
		return fmt.Errorf("janitor: schedule: %w", err)
	}
	j.logger.Info("session janitor started", zap.String("schedule", j.spec), zap.Duration("ttl", j.ttl))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	j.logger.Info("session janitor stopped")
	return nil
}
