// Package notification delivers operator alerts as web push messages.
package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"parking-backend/internal/model"
)

// AlertKind selects which subscribers receive an alert.
type AlertKind string

const (
	// AlertExpiry is sent when the sweep cancels an unconfirmed reservation.
	AlertExpiry AlertKind = "expiry"
	// AlertCapacity is sent when an arrival finds no free cubicle.
	AlertCapacity AlertKind = "capacity"
)

// Alert is one message to fan out to the subscribers of its kind.
type Alert struct {
	Kind    AlertKind `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
}

// Dispatcher queues alerts without blocking the caller.
type Dispatcher interface {
	Dispatch(alert Alert) bool
}

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers for sending alerts.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	wg      sync.WaitGroup
}

// NewWorkerPool creates a new worker pool. The queue holds a few alerts per
// worker; Dispatch drops alerts once it is full.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, size*8),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines. They stop when ctx is cancelled.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		wp.wg.Add(1)
		go func(id int) {
			defer wp.wg.Done()
			wp.worker(ctx, id)
		}(i)
	}
}

// Wait blocks until every worker has returned.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Debug().Int("worker", id).Msg("alert worker started")
	for {
		select {
		case alert := <-wp.jobs:
			wp.sendAlert(ctx, alert)
		case <-ctx.Done():
			log.Debug().Int("worker", id).Msg("alert worker shutting down")
			return
		}
	}
}

// Dispatch queues an alert. It reports false when the queue is full and the
// alert was dropped; parking operations never wait on push delivery.
func (wp *WorkerPool) Dispatch(alert Alert) bool {
	select {
	case wp.jobs <- alert:
		return true
	default:
		log.Warn().Str("kind", string(alert.Kind)).Msg("alert queue full, dropping alert")
		return false
	}
}

func (wp *WorkerPool) sendAlert(ctx context.Context, alert Alert) {
	column := ""
	switch alert.Kind {
	case AlertExpiry:
		column = "expiry"
	case AlertCapacity:
		column = "capacity"
	default:
		log.Error().Str("kind", string(alert.Kind)).Msg("unknown alert kind")
		return
	}

	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).Where(column+" = ?", true).Find(&subscriptions).Error; err != nil {
		log.Error().Err(err).Str("kind", string(alert.Kind)).Msg("failed to fetch subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode alert")
		return
	}

	log.Info().Str("kind", string(alert.Kind)).Int("subscribers", len(subscriptions)).Msg("sending alert")
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to send notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Info().Str("endpoint", sub.Endpoint).Msg("subscription expired, deleting")
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to delete expired subscription")
		}
	}
}
