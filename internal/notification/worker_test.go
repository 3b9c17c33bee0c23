package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"parking-backend/internal/model"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func subscriptionRows(subs ...model.PushSubscription) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "expiry", "capacity", "created_at"})
	for _, s := range subs {
		rows.AddRow(s.Endpoint, s.P256DH, s.Auth, s.Expiry, s.Capacity, time.Now())
	}
	return rows
}

func okResponse() *http.Response {
	return &http.Response{StatusCode: http.StatusCreated, Body: io.NopCloser(bytes.NewBufferString(""))}
}

func TestWorkerPool_Dispatch(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{})

	assert.True(t, wp.Dispatch(Alert{Kind: AlertExpiry, Message: "A1"}))

	select {
	case job := <-wp.jobs:
		assert.Equal(t, AlertExpiry, job.Kind)
		assert.Equal(t, "A1", job.Message)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_DispatchDropsWhenFull(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{})

	for i := 0; i < cap(wp.jobs); i++ {
		require.True(t, wp.Dispatch(Alert{Kind: AlertCapacity}))
	}
	assert.False(t, wp.Dispatch(Alert{Kind: AlertCapacity}), "a full queue must not block the caller")
}

func TestWorkerPool_WaitReturnsAfterCancel(t *testing.T) {
	gormDB, _ := newTestDB(t)
	wp := NewWorkerPool(3, gormDB, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	wp.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		wp.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop after cancellation")
	}
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, gormDB, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("sends alert to expiry subscribers", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		sub := model.PushSubscription{Endpoint: "https://example.com/push", P256DH: "k", Auth: "a", Expiry: true}
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, s *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
				defer wg.Done()
				assert.Equal(t, sub.Endpoint, s.Endpoint)
				var got Alert
				assert.NoError(t, json.Unmarshal(payload, &got))
				assert.Equal(t, AlertExpiry, got.Kind)
				assert.Equal(t, "Reservation A1 expired", got.Message)
				return okResponse(), nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions" WHERE expiry = \$1`).
			WithArgs(true).
			WillReturnRows(subscriptionRows(sub))

		wp.Dispatch(Alert{Kind: AlertExpiry, Message: "Reservation A1 expired"})
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes gone subscription", func(t *testing.T) {
		sub := model.PushSubscription{Endpoint: "https://example.com/expired", P256DH: "k", Auth: "a", Capacity: true}
		wp.sender = &mockSender{
			SendFunc: func([]byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusGone, Body: io.NopCloser(bytes.NewBufferString(""))}, nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions" WHERE capacity = \$1`).
			WithArgs(true).
			WillReturnRows(subscriptionRows(sub))
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs(sub.Endpoint).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		wp.Dispatch(Alert{Kind: AlertCapacity, Message: "Lot full"})

		assert.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("send error keeps subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		sub := model.PushSubscription{Endpoint: "https://example.com/flaky", P256DH: "k", Auth: "a", Expiry: true}
		wp.sender = &mockSender{
			SendFunc: func([]byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
				defer wg.Done()
				return nil, errors.New("connection refused")
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions" WHERE expiry = \$1`).
			WithArgs(true).
			WillReturnRows(subscriptionRows(sub))

		wp.Dispatch(Alert{Kind: AlertExpiry, Message: "Reservation B1 expired"})
		wg.Wait()
		time.Sleep(50 * time.Millisecond)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
