package booking

import "context"

// SettlementSummary reports the outcome of finalizing a completed booking.
type SettlementSummary struct {
	AlreadyFinalized bool
	EarningID        string
	PayoutID         string
	TotalCents       int64
	DriverShareCents int64
	AdminShareCents  int64
}

// ReversalSummary reports the outcome of reversing a cancelled booking.
type ReversalSummary struct {
	EarningReversed   bool
	AlreadyReversed   bool
	EarningID         string
	RefundID          string
	RefundAmountCents int64
}

// Settlements is the ledger collaborator invoked on completion and cancellation.
// Every method is idempotent; failures degrade the transition to a warning.
type Settlements interface {
	EnsureEarning(ctx context.Context, booking Booking) error
	TagDriver(ctx context.Context, bookingID string, driverID string, driverName string) error
	Finalize(ctx context.Context, booking Booking) (SettlementSummary, error)
	ReverseAndRefund(ctx context.Context, booking Booking, reason string, cancelledBy string) (ReversalSummary, error)
}

// MetricsRecorder tallies driver completions and cancellations.
type MetricsRecorder interface {
	RecordCompletion(ctx context.Context, driverID string, bookingID string, bookingType string) error
	RecordCancellationForReview(ctx context.Context, driverID string, bookingID string, reason string, bookingType string) error
	RecordCancellation(ctx context.Context, driverID string, bookingID string, reason string, bookingType string) error
	EvaluateSuspension(ctx context.Context, driverID string) (bool, error)
}

// Dispatcher offers open bookings to candidate drivers. DispatchBooking is
// fire-and-forget; CancelSchedule stops any timers still pending for a booking.
type Dispatcher interface {
	DispatchBooking(ctx context.Context, booking Booking)
	CancelSchedule(bookingID string)
}

// NotificationMessage is one outbound message fanned out to recipient ids.
type NotificationMessage struct {
	Title            string
	Body             string
	Kind             string
	BookingID        string
	PriorityDriverID string
	RecipientRole    string
	RecipientIDs     []string
}

// Notifier is the fire-and-forget notification transport.
type Notifier interface {
	Notify(ctx context.Context, message NotificationMessage) error
}

// AuditEvent is one structured audit record.
type AuditEvent struct {
	ActorID    string
	ActorName  string
	ActorRole  string
	Action     string
	EntityName string
	EntityID   string
	OldData    any
	NewData    any
}

// Auditor is the best-effort audit sink. Failures never block the engine.
type Auditor interface {
	Record(ctx context.Context, event AuditEvent) error
}
