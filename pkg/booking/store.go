package booking

import (
	"context"
	"time"
)

// DriverAssignment carries the fields written when a driver accepts a booking.
type DriverAssignment struct {
	DriverID   string
	DriverName string
	AssignedAt time.Time
}

// Cancellation carries the fields written when a booking is cancelled.
type Cancellation struct {
	Reason      string
	CancelledBy string
	At          time.Time
	ClearDriver bool
}

// DriverRelease resets an assigned booking back to its offerable status after a
// driver cancels, clearing the assignment and excluding the driver from reoffer.
type DriverRelease struct {
	NewStatus       BookingStatus
	Reason          string
	ExcludeDriverID string
	At              time.Time
}

// DriverProfile is the eligibility view of a driver consumed by accept guards.
type DriverProfile struct {
	DriverID           string
	Name               string
	Active             bool
	Suspended          bool
	HasEligibleVehicle bool
}

// Filter narrows booking list queries.
type Filter struct {
	Status *BookingStatus
	Type   *BookingType
	Limit  int
	Offset int
}

// Store is the persistence contract used by Service. Every *If method performs
// a conditional update predicated on the expected prior state and returns
// ErrStaleState (wrapped) when zero rows were affected.
type Store interface {
	InsertBooking(ctx context.Context, booking Booking) (Booking, error)
	GetBooking(ctx context.Context, bookingID string) (Booking, error)
	ListBookings(ctx context.Context, filter Filter) ([]Booking, error)
	ListForCustomer(ctx context.Context, customerID string) ([]Booking, error)
	ListForDriver(ctx context.Context, driverID string) ([]Booking, error)

	AssignDriverIf(ctx context.Context, bookingID string, expected []BookingStatus, assignment DriverAssignment) (Booking, error)
	MarkStartedIf(ctx context.Context, bookingID string, startedAt time.Time) (Booking, error)
	MarkCompletedIf(ctx context.Context, bookingID string, expected []BookingStatus, completedAt time.Time) (Booking, error)
	MarkCancelledIf(ctx context.Context, bookingID string, expected []BookingStatus, cancellation Cancellation) (Booking, error)
	ReleaseDriverIf(ctx context.Context, bookingID string, release DriverRelease) (Booking, error)
	MarkNoDriverAvailableIf(ctx context.Context, bookingID string, reason string, at time.Time) (Booking, error)
	ReopenTimedOutIf(ctx context.Context, bookingID string, newDate time.Time, at time.Time) (Booking, error)
	SetVerificationPhoto(ctx context.Context, bookingID string, photoRef string, at time.Time) error

	ListActiveForCustomer(ctx context.Context, customerID string) ([]Booking, error)
	ListActivePaidForDriver(ctx context.Context, driverID string) ([]Booking, error)
	ListUnpaidAssignedForDriver(ctx context.Context, driverID string) ([]Booking, error)
	ListUnpaidAssignedBefore(ctx context.Context, cutoff time.Time) ([]Booking, error)
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]Booking, error)

	GetDriverProfile(ctx context.Context, driverID string) (DriverProfile, error)
}
