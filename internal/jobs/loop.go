// Package jobs runs the periodic work of the lot: reservation expiry and the
// display broadcast.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Task is one unit of periodic work.
type Task interface {
	Name() string
	RunOnce(ctx context.Context) error
}

// Loop runs a Task immediately and then every interval. The timer is reset only
// after a run returns, so runs of the same task never overlap.
type Loop struct {
	task     Task
	interval time.Duration
}

// NewLoop creates a Loop.
func NewLoop(task Task, interval time.Duration) *Loop {
	return &Loop{task: task, interval: interval}
}

// Run blocks until ctx is cancelled. A failed run is logged and the next one
// is scheduled as usual.
func (l *Loop) Run(ctx context.Context) {
	log.Info().Str("task", l.task.Name()).Dur("interval", l.interval).Msg("starting periodic task")

	l.runOnce(ctx)

	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("task", l.task.Name()).Msg("periodic task shutting down")
			return
		case <-timer.C:
			l.runOnce(ctx)
			timer.Reset(l.interval)
		}
	}
}

func (l *Loop) runOnce(ctx context.Context) {
	if err := l.task.RunOnce(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Str("task", l.task.Name()).Msg("periodic task failed")
	}
}
