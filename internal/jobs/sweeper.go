package jobs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"parking-backend/internal/notification"
	"parking-backend/internal/store"
)

// Sweeper releases reservations that were never confirmed by a sensor.
type Sweeper struct {
	store        store.Store
	graceMinutes int
	alerts       notification.Dispatcher
}

// NewSweeper creates a Sweeper. alerts may be nil when push is disabled.
func NewSweeper(s store.Store, graceMinutes int, alerts notification.Dispatcher) *Sweeper {
	return &Sweeper{store: s, graceMinutes: graceMinutes, alerts: alerts}
}

func (s *Sweeper) Name() string { return "expiry-sweep" }

// RunOnce expires what it can; cubicles released before a failure still alert.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	cancelled, err := s.store.SweepExpired(ctx, s.graceMinutes)
	if len(cancelled) > 0 {
		log.Info().Int("count", len(cancelled)).Msg("expired reservations released")
	}
	if s.alerts != nil {
		for _, c := range cancelled {
			s.alerts.Dispatch(notification.Alert{
				Kind:    notification.AlertExpiry,
				Title:   "Reservation expired",
				Message: fmt.Sprintf("Cubicle %s (%s) was never occupied and is free again", c.CubicleName, c.Tag),
			})
		}
	}
	return err
}
