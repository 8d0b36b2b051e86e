package drivermetrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SugboTransitLab/marketplace/pkg/booking"
)

// Store is the persistence surface for driver activity logs and suspensions.
type Store interface {
	InsertCancellation(ctx context.Context, record CancellationRecord) error
	InsertCompletion(ctx context.Context, record CompletionRecord) error
	CountCancellations(ctx context.Context, driverID string, counted bool, since time.Time) (int64, error)
	CountCompletions(ctx context.Context, driverID string, since time.Time) (int64, error)
	GetActiveSuspension(ctx context.Context, driverID string, at time.Time) (Suspension, error)
	SuspendDriver(ctx context.Context, suspension Suspension) error
}

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithClock replaces the wall clock, primarily for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(service *Service) {
		service.nowFn = now
	}
}

// Service tallies driver activity and issues suspensions when counted
// cancellations pile up. It is the booking lifecycle's metrics collaborator.
type Service struct {
	store Store
	nowFn func() time.Time
}

var _ booking.MetricsRecorder = (*Service)(nil)

// NewService constructs a driver metrics service.
func NewService(store Store, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: time.Now}
	for _, option := range options {
		option(service)
	}
	return service, nil
}

// RecordCompletion logs one completed booking for the driver.
func (service *Service) RecordCompletion(ctx context.Context, driverID string, bookingID string, bookingType string) error {
	return service.store.InsertCompletion(ctx, CompletionRecord{
		DriverID:    driverID,
		BookingID:   bookingID,
		BookingType: bookingType,
		OccurredAt:  service.nowFn(),
	})
}

// RecordCancellationForReview logs a cancellation for administrative review
// without feeding the suspension tally. Tour cancellations take this path
// because their legitimacy needs a human judgement.
func (service *Service) RecordCancellationForReview(ctx context.Context, driverID string, bookingID string, reason string, bookingType string) error {
	return service.store.InsertCancellation(ctx, CancellationRecord{
		DriverID:    driverID,
		BookingID:   bookingID,
		BookingType: bookingType,
		Reason:      reason,
		Counted:     false,
		OccurredAt:  service.nowFn(),
	})
}

// RecordCancellation logs a cancellation that counts toward suspension.
func (service *Service) RecordCancellation(ctx context.Context, driverID string, bookingID string, reason string, bookingType string) error {
	return service.store.InsertCancellation(ctx, CancellationRecord{
		DriverID:    driverID,
		BookingID:   bookingID,
		BookingType: bookingType,
		Reason:      reason,
		Counted:     true,
		OccurredAt:  service.nowFn(),
	})
}

// EvaluateSuspension suspends the driver for a week when counted
// cancellations in the trailing window reach the threshold. An existing
// active suspension is reported without extending it.
func (service *Service) EvaluateSuspension(ctx context.Context, driverID string) (bool, error) {
	now := service.nowFn()
	if _, err := service.store.GetActiveSuspension(ctx, driverID, now); err == nil {
		return true, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	tally, err := service.store.CountCancellations(ctx, driverID, true, now.Add(-CancellationWindow))
	if err != nil {
		return false, err
	}
	if tally < SuspensionThreshold {
		return false, nil
	}
	err = service.store.SuspendDriver(ctx, Suspension{
		DriverID: driverID,
		Until:    now.Add(SuspensionDuration),
		Reason:   fmt.Sprintf("%d cancellations within %d days", tally, int(CancellationWindow.Hours()/24)),
		IssuedAt: now,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// DriverSummary aggregates the driver's trailing-window activity for the
// administrative dashboard.
func (service *Service) DriverSummary(ctx context.Context, driverID string) (Summary, error) {
	now := service.nowFn()
	since := now.Add(-CancellationWindow)

	completions, err := service.store.CountCompletions(ctx, driverID, since)
	if err != nil {
		return Summary{}, err
	}
	counted, err := service.store.CountCancellations(ctx, driverID, true, since)
	if err != nil {
		return Summary{}, err
	}
	review, err := service.store.CountCancellations(ctx, driverID, false, since)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		DriverID:             driverID,
		WindowDays:           int(CancellationWindow.Hours() / 24),
		Completions:          completions,
		CountedCancellations: counted,
		ReviewCancellations:  review,
	}
	if suspension, err := service.store.GetActiveSuspension(ctx, driverID, now); err == nil {
		summary.Suspended = true
		until := suspension.Until
		summary.SuspendedUntil = &until
	} else if !errors.Is(err, ErrNotFound) {
		return Summary{}, err
	}
	return summary, nil
}
