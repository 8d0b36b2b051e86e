// Package notify delivers engine notifications to customers and drivers.
// The store-backed recorder persists messages for in-app retrieval; the AMQP
// publisher pushes the same messages onto the broker for push delivery.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/SugboTransitLab/marketplace/pkg/booking"
)

// NotificationStore persists outbound messages with their recipients.
type NotificationStore interface {
	InsertNotification(ctx context.Context, message booking.NotificationMessage, at time.Time) (string, error)
}

// Recorder stores notifications so clients can fetch them in-app.
type Recorder struct {
	store NotificationStore
	nowFn func() time.Time
}

var _ booking.Notifier = (*Recorder)(nil)

// NewRecorder returns a store-backed notifier.
func NewRecorder(store NotificationStore) *Recorder {
	return &Recorder{store: store, nowFn: time.Now}
}

// Notify persists the message and its recipient fan-out.
func (recorder *Recorder) Notify(ctx context.Context, message booking.NotificationMessage) error {
	_, err := recorder.store.InsertNotification(ctx, message, recorder.nowFn())
	return err
}

// Fanout delivers one message through every wired notifier. The first failure
// is reported after all notifiers ran; partial delivery beats none.
type Fanout struct {
	notifiers []booking.Notifier
	logger    *zap.Logger
}

var _ booking.Notifier = (*Fanout)(nil)

// NewFanout combines notifiers into one.
func NewFanout(logger *zap.Logger, notifiers ...booking.Notifier) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{notifiers: notifiers, logger: logger}
}

// Notify sends the message through every notifier.
func (fanout *Fanout) Notify(ctx context.Context, message booking.NotificationMessage) error {
	var firstErr error
	for _, notifier := range fanout.notifiers {
		if err := notifier.Notify(ctx, message); err != nil {
			fanout.logger.Warn("notifier delivery failed",
				zap.String("booking_id", message.BookingID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
