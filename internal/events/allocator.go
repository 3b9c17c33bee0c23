package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"parking-backend/internal/bus"
	"parking-backend/internal/notification"
	"parking-backend/internal/store"
)

// Allocator turns a vehicle arrival into a reservation and a barrier command.
type Allocator struct {
	store        store.Store
	publisher    bus.Publisher
	alerts       notification.Dispatcher
	barrierTopic string
}

// NewAllocator creates an Allocator. alerts may be nil when push is disabled.
func NewAllocator(s store.Store, publisher bus.Publisher, alerts notification.Dispatcher, barrierTopic string) *Allocator {
	return &Allocator{store: s, publisher: publisher, alerts: alerts, barrierTopic: barrierTopic}
}

// HandleArrival reserves a cubicle of vehicleClass and opens the barrier
// towards it. Arrivals with any state other than "Esperando" are ignored.
func (a *Allocator) HandleArrival(ctx context.Context, vehicleClass string, payload []byte) error {
	var p bus.StatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return malformed("arrival payload: %v", err)
	}
	if strings.TrimSpace(p.Value()) != bus.StateWaiting {
		log.Debug().Str("state", p.Value()).Msg("arrival ignored")
		return nil
	}

	res, err := a.store.Reserve(ctx, vehicleClass)
	if errors.Is(err, store.ErrNoCapacity) {
		log.Warn().Str("class", vehicleClass).Msg("vehicle waiting but no cubicle is free")
		a.alert(notification.Alert{
			Kind:    notification.AlertCapacity,
			Title:   "Parking full",
			Message: fmt.Sprintf("A %s vehicle is waiting and no cubicle is free", vehicleClass),
		})
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "reserve cubicle")
	}

	cmd := bus.BarrierCommand{Command: bus.CommandOpen, Cubicle: res.CubicleName}
	if err := a.publisher.Publish(ctx, a.barrierTopic, cmd); err != nil {
		// The reservation stands; the sweep releases it if nobody parks.
		return errors.Wrapf(err, "open barrier for %s", res.CubicleName)
	}
	log.Info().Str("cubicle", res.CubicleName).Str("code", res.Code).Msg("barrier opened")
	return nil
}

func (a *Allocator) alert(alert notification.Alert) {
	if a.alerts != nil {
		a.alerts.Dispatch(alert)
	}
}
