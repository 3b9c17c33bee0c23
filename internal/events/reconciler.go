package events

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"parking-backend/internal/bus"
	"parking-backend/internal/store"
)

// Reconciler applies cubicle sensor reports to the ledger.
type Reconciler struct {
	store  store.Store
	prefix string
}

// NewReconciler creates a Reconciler for topics under prefix.
func NewReconciler(s store.Store, prefix string) *Reconciler {
	return &Reconciler{store: s, prefix: prefix}
}

// HandleOccupancy confirms a reservation on "Occupied". "Free" reports never
// release a cubicle.
func (r *Reconciler) HandleOccupancy(ctx context.Context, topic string, payload []byte) error {
	name, ok := bus.CubicleFromTopic(r.prefix, topic)
	if !ok {
		return malformed("topic %q names no cubicle", topic)
	}

	var p bus.StatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return malformed("occupancy payload for %s: %v", name, err)
	}
	state, ok := bus.NormalizeOccupancy(p.Value())
	if !ok {
		return malformed("unknown occupancy state %q for %s", p.Value(), name)
	}

	if state == bus.StateFree {
		r.store.RejectRelease(ctx, name)
		return nil
	}
	if _, err := r.store.ConfirmOccupancy(ctx, name); err != nil {
		return errors.Wrapf(err, "confirm occupancy of %s", name)
	}
	return nil
}
