// Package events routes inbound bus messages to the allocation and occupancy handlers.
package events

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"parking-backend/config"
	"parking-backend/internal/bus"
)

// Router dispatches messages by topic. Run is meant to be the only consumer of
// the inbound stream, so handlers never run concurrently with each other.
type Router struct {
	arrivals        map[string]string // topic -> vehicle class
	departure       string
	occupancyPrefix string
	allocator       *Allocator
	reconciler      *Reconciler
}

// NewRouter builds a Router from the topic layout. An empty motorcycle topic
// disables motorcycle arrivals.
func NewRouter(topics config.TopicConfig, parking config.ParkingConfig, allocator *Allocator, reconciler *Reconciler) *Router {
	arrivals := map[string]string{topics.CarArrival: parking.CarClass}
	if topics.MotorcycleArrival != "" {
		arrivals[topics.MotorcycleArrival] = parking.MotorcycleClass
	}
	return &Router{
		arrivals:        arrivals,
		departure:       topics.Departure,
		occupancyPrefix: strings.TrimSuffix(topics.OccupancyPrefix, "/"),
		allocator:       allocator,
		reconciler:      reconciler,
	}
}

// Subscriptions lists the topic filters the bus client must subscribe to.
func Subscriptions(topics config.TopicConfig) []string {
	subs := []string{topics.CarArrival}
	if topics.MotorcycleArrival != "" {
		subs = append(subs, topics.MotorcycleArrival)
	}
	subs = append(subs, strings.TrimSuffix(topics.OccupancyPrefix, "/")+"/#")
	if topics.Departure != "" {
		subs = append(subs, topics.Departure)
	}
	return subs
}

// Run consumes messages until ctx is cancelled or the channel is closed.
func (r *Router) Run(ctx context.Context, messages <-chan bus.Message) {
	log.Info().Msg("event router started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event router shutting down")
			return
		case msg, ok := <-messages:
			if !ok {
				log.Info().Msg("event stream closed")
				return
			}
			if err := r.Handle(ctx, msg); err != nil {
				evt := log.Error()
				if errors.Is(err, ErrMalformedEvent) {
					evt = log.Warn()
				}
				evt.Err(err).Str("topic", msg.Topic).Msg("event dropped")
			}
		}
	}
}

// Handle processes one message.
func (r *Router) Handle(ctx context.Context, msg bus.Message) error {
	if class, ok := r.arrivals[msg.Topic]; ok {
		return r.allocator.HandleArrival(ctx, class, msg.Payload)
	}
	if strings.HasPrefix(msg.Topic, r.occupancyPrefix+"/") {
		return r.reconciler.HandleOccupancy(ctx, msg.Topic, msg.Payload)
	}
	if msg.Topic == r.departure {
		log.Info().Str("payload", string(msg.Payload)).Msg("vehicle departed")
		return nil
	}
	log.Debug().Str("topic", msg.Topic).Msg("message on unhandled topic")
	return nil
}
