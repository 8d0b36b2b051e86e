package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SugboTransitLab/marketplace/pkg/booking"
)

const (
	// OfferWindow is how long one ride candidate holds an exclusive offer.
	OfferWindow = 2 * time.Minute

	// OverallWindow caps a ride's whole dispatch attempt; an unclaimed ride
	// is auto-cancelled when it expires.
	OverallWindow = 5 * time.Minute

	// LocationFreshness is how recent a driver position must be to rank.
	LocationFreshness = 10 * time.Minute

	autoCancelReason = "no driver available"
)

var (
	ErrNotFound             = errors.New("dispatch record not found")
	ErrStaleState           = errors.New("stale dispatch state")
	ErrInvalidServiceConfig = errors.New("invalid dispatcher config")
)

// Criteria narrows the candidate query to drivers eligible for one booking.
type Criteria struct {
	BookingType       booking.BookingType
	PackageCreatorID  string
	ExcludedDriverIDs []string
}

// Store is the dispatch-side persistence surface.
type Store interface {
	// ListCandidates returns active, non-suspended drivers with an eligible
	// vehicle, minus excluded ids, honoring the package creator constraint.
	ListCandidates(ctx context.Context, criteria Criteria) ([]Candidate, error)

	GetBookingStatus(ctx context.Context, bookingID string) (booking.BookingStatus, error)

	// CancelUnclaimedIf cancels a booking still waiting for a driver;
	// zero rows means a driver got there first.
	CancelUnclaimedIf(ctx context.Context, bookingID string, reason string, at time.Time) (booking.Booking, error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithScheduler replaces the timer scheduler, primarily for tests.
func WithScheduler(scheduler Scheduler) Option {
	return func(dispatcher *Dispatcher) {
		dispatcher.scheduler = scheduler
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(dispatcher *Dispatcher) {
		dispatcher.nowFn = now
	}
}

// WithLogger wires structured logging for the timer-driven paths.
func WithLogger(logger *zap.Logger) Option {
	return func(dispatcher *Dispatcher) {
		dispatcher.logger = logger
	}
}

// Dispatcher offers open bookings to candidate drivers. Tours broadcast to
// every eligible driver at once; rides walk a distance-ranked candidate list
// with per-candidate offer windows and an overall deadline.
type Dispatcher struct {
	store     Store
	notifier  booking.Notifier
	scheduler Scheduler
	nowFn     func() time.Time
	logger    *zap.Logger

	mu     sync.Mutex
	active map[string][]TimerHandle
}

var _ booking.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher constructs a dispatcher.
func NewDispatcher(store Store, notifier booking.Notifier, options ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidServiceConfig)
	}
	if notifier == nil {
		return nil, fmt.Errorf("%w: notifier is required", ErrInvalidServiceConfig)
	}
	dispatcher := &Dispatcher{
		store:     store,
		notifier:  notifier,
		scheduler: NewScheduler(),
		nowFn:     time.Now,
		logger:    zap.NewNop(),
		active:    make(map[string][]TimerHandle),
	}
	for _, option := range options {
		option(dispatcher)
	}
	return dispatcher, nil
}

// DispatchBooking starts offering the booking to drivers. It returns once the
// first offers are sent; later escalations run on scheduled timers.
func (dispatcher *Dispatcher) DispatchBooking(ctx context.Context, record booking.Booking) {
	if record.Type == booking.BookingTypeTour {
		dispatcher.broadcast(ctx, record, false)
		return
	}
	dispatcher.dispatchRide(ctx, record)
}

// CancelSchedule stops every timer still pending for the booking. Called when
// a driver accepts or the booking is cancelled.
func (dispatcher *Dispatcher) CancelSchedule(bookingID string) {
	dispatcher.mu.Lock()
	handles := dispatcher.active[bookingID]
	delete(dispatcher.active, bookingID)
	dispatcher.mu.Unlock()
	for _, handle := range handles {
		handle.Stop()
	}
}

func (dispatcher *Dispatcher) dispatchRide(ctx context.Context, record booking.Booking) {
	candidates, err := dispatcher.store.ListCandidates(ctx, Criteria{
		BookingType:       record.Type,
		ExcludedDriverIDs: record.ExcludedDriverIDs,
	})
	if err != nil {
		dispatcher.logger.Warn("candidate query failed, falling back to broadcast",
			zap.String("booking_id", record.ID), zap.Error(err))
		dispatcher.broadcast(ctx, record, true)
		return
	}

	if record.PickupLatitude == nil || record.PickupLongitude == nil {
		dispatcher.broadcast(ctx, record, true)
		return
	}
	ranked := rankByDistance(candidates, *record.PickupLatitude, *record.PickupLongitude,
		dispatcher.nowFn().Add(-LocationFreshness))
	if len(ranked) == 0 {
		dispatcher.broadcast(ctx, record, true)
		return
	}

	dispatcher.offerToCandidate(ctx, record, ranked[0])

	var handles []TimerHandle
	for index := 1; index < len(ranked); index++ {
		delay := time.Duration(index) * OfferWindow
		if delay >= OverallWindow {
			break
		}
		candidate := ranked[index]
		handles = append(handles, dispatcher.scheduler.AfterFunc(delay, func() {
			dispatcher.escalate(record, candidate)
		}))
	}
	handles = append(handles, dispatcher.scheduler.AfterFunc(OverallWindow, func() {
		dispatcher.autoCancel(record.ID)
	}))
	dispatcher.track(record.ID, handles)
}

// escalate offers the ride to the next candidate, unless a driver already
// claimed it.
func (dispatcher *Dispatcher) escalate(record booking.Booking, candidate Candidate) {
	ctx := context.Background()
	status, err := dispatcher.store.GetBookingStatus(ctx, record.ID)
	if err != nil {
		dispatcher.logger.Warn("escalation status check failed",
			zap.String("booking_id", record.ID), zap.Error(err))
		return
	}
	if status != booking.StatusWaitingForDriver && status != booking.StatusPending {
		dispatcher.CancelSchedule(record.ID)
		return
	}
	dispatcher.offerToCandidate(ctx, record, candidate)
}

// autoCancel closes a ride nobody claimed inside the overall window. The
// conditional update keeps a just-in-time acceptance ahead of the timer.
func (dispatcher *Dispatcher) autoCancel(bookingID string) {
	ctx := context.Background()
	dispatcher.CancelSchedule(bookingID)
	cancelled, err := dispatcher.store.CancelUnclaimedIf(ctx, bookingID, autoCancelReason, dispatcher.nowFn())
	if err != nil {
		if !errors.Is(err, ErrStaleState) && !errors.Is(err, booking.ErrStaleState) {
			dispatcher.logger.Warn("auto-cancel failed",
				zap.String("booking_id", bookingID), zap.Error(err))
		}
		return
	}
	dispatcher.notify(ctx, booking.NotificationMessage{
		Title:         "No Driver Available",
		Body:          "We could not find a driver for your ride. Please try again.",
		Kind:          "booking",
		BookingID:     cancelled.ID,
		RecipientRole: "customer",
		RecipientIDs:  []string{cancelled.CustomerID},
	})
}

// broadcast offers the booking to every eligible driver at once. Rides also
// arm the overall auto-cancel deadline.
func (dispatcher *Dispatcher) broadcast(ctx context.Context, record booking.Booking, armDeadline bool) {
	candidates, err := dispatcher.store.ListCandidates(ctx, Criteria{
		BookingType:       record.Type,
		PackageCreatorID:  record.PackageCreatorID,
		ExcludedDriverIDs: record.ExcludedDriverIDs,
	})
	if err != nil {
		dispatcher.logger.Warn("broadcast candidate query failed",
			zap.String("booking_id", record.ID), zap.Error(err))
		candidates = nil
	}
	recipients := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		recipients = append(recipients, candidate.DriverID)
	}
	if len(recipients) > 0 {
		dispatcher.notify(ctx, booking.NotificationMessage{
			Title:         offerTitle(record),
			Body:          offerBody(record),
			Kind:          "dispatch",
			BookingID:     record.ID,
			RecipientRole: "driver",
			RecipientIDs:  recipients,
		})
	}
	if armDeadline && record.Type == booking.BookingTypeRide {
		handle := dispatcher.scheduler.AfterFunc(OverallWindow, func() {
			dispatcher.autoCancel(record.ID)
		})
		dispatcher.track(record.ID, []TimerHandle{handle})
	}
}

func (dispatcher *Dispatcher) offerToCandidate(ctx context.Context, record booking.Booking, candidate Candidate) {
	dispatcher.notify(ctx, booking.NotificationMessage{
		Title:            offerTitle(record),
		Body:             offerBody(record),
		Kind:             "dispatch",
		BookingID:        record.ID,
		PriorityDriverID: candidate.DriverID,
		RecipientRole:    "driver",
		RecipientIDs:     []string{candidate.DriverID},
	})
}

func (dispatcher *Dispatcher) notify(ctx context.Context, message booking.NotificationMessage) {
	if err := dispatcher.notifier.Notify(ctx, message); err != nil {
		dispatcher.logger.Warn("dispatch notification failed",
			zap.String("booking_id", message.BookingID), zap.Error(err))
	}
}

func (dispatcher *Dispatcher) track(bookingID string, handles []TimerHandle) {
	if len(handles) == 0 {
		return
	}
	dispatcher.mu.Lock()
	dispatcher.active[bookingID] = append(dispatcher.active[bookingID], handles...)
	dispatcher.mu.Unlock()
}

func offerTitle(record booking.Booking) string {
	if record.Type == booking.BookingTypeRide {
		return "New Ride Request"
	}
	return "New Tour Booking Available"
}

func offerBody(record booking.Booking) string {
	if record.Type == booking.BookingTypeRide {
		return fmt.Sprintf("Pickup at %s. Open the app to accept.", record.PickupAddress)
	}
	return fmt.Sprintf("%s on %s. Open the app to accept.", record.PackageName,
		record.BookingDate.Format("Jan 2, 2006"))
}
