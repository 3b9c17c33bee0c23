package jobs

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"parking-backend/internal/bus"
	"parking-backend/internal/model"
	"parking-backend/internal/parse"
	"parking-backend/internal/store"
)

// Broadcaster publishes the lot overview for the entrance display.
type Broadcaster struct {
	store     store.Store
	publisher bus.Publisher
	topic     string
	classes   parse.Classes
	carClass  string
}

// NewBroadcaster creates a Broadcaster. free_count counts Free cubicles of carClass.
func NewBroadcaster(s store.Store, publisher bus.Publisher, topic string, classes parse.Classes, carClass string) *Broadcaster {
	return &Broadcaster{store: s, publisher: publisher, topic: topic, classes: classes, carClass: carClass}
}

func (b *Broadcaster) Name() string { return "display-broadcast" }

func (b *Broadcaster) RunOnce(ctx context.Context) error {
	status, err := b.store.DisplayStatus(ctx)
	if err != nil {
		return errors.Wrap(err, "load display status")
	}

	msg := b.build(status)
	if err := b.publisher.Publish(ctx, b.topic, msg); err != nil {
		return errors.Wrap(err, "publish display status")
	}
	log.Debug().Int("free", msg.FreeCount).Msg("display status published")
	return nil
}

func (b *Broadcaster) build(status []store.CubicleStatus) bus.DisplayStatus {
	msg := bus.DisplayStatus{Cubicles: make([]bus.DisplayCubicle, 0, len(status))}
	for _, c := range status {
		msg.Cubicles = append(msg.Cubicles, bus.DisplayCubicle{Name: c.Name, State: string(c.State)})
		if c.State == model.CubicleFree && b.isCar(c) {
			msg.FreeCount++
		}
	}
	return msg
}

// isCar uses the prefix mapping; a Free cubicle has no class assigned.
func (b *Broadcaster) isCar(c store.CubicleStatus) bool {
	if class, ok := b.classes.ClassOf(c.Name); ok {
		return strings.EqualFold(class, b.carClass)
	}
	return c.VehicleClass != nil && strings.EqualFold(*c.VehicleClass, b.carClass)
}
