package booking

import (
	"context"
	"fmt"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type stubStore struct {
	bookings   map[string]Booking
	profiles   map[string]DriverProfile
	loseCancel map[string]bool
	sequence   int
}

func newStubStore() *stubStore {
	return &stubStore{
		bookings:   map[string]Booking{},
		profiles:   map[string]DriverProfile{},
		loseCancel: map[string]bool{},
	}
}

func (store *stubStore) put(record Booking) Booking {
	if record.ID == "" {
		store.sequence++
		record.ID = fmt.Sprintf("bk-%d", store.sequence)
	}
	store.bookings[record.ID] = record
	return record
}

func (store *stubStore) stale() error {
	return WrapError("store", "booking", "stale", ErrStaleState)
}

func (store *stubStore) InsertBooking(ctx context.Context, record Booking) (Booking, error) {
	return store.put(record), nil
}

func (store *stubStore) GetBooking(ctx context.Context, bookingID string) (Booking, error) {
	record, ok := store.bookings[bookingID]
	if !ok {
		return Booking{}, WrapError("store", "booking", "get", ErrNotFound)
	}
	return record, nil
}

func (store *stubStore) ListBookings(ctx context.Context, filter Filter) ([]Booking, error) {
	var out []Booking
	for _, record := range store.bookings {
		if filter.Status != nil && record.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && record.Type != *filter.Type {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (store *stubStore) ListForCustomer(ctx context.Context, customerID string) ([]Booking, error) {
	var out []Booking
	for _, record := range store.bookings {
		if record.CustomerID == customerID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (store *stubStore) ListForDriver(ctx context.Context, driverID string) ([]Booking, error) {
	var out []Booking
	for _, record := range store.bookings {
		if record.DriverID == driverID {
			out = append(out, record)
		}
	}
	return out, nil
}

func statusIn(status BookingStatus, expected []BookingStatus) bool {
	for _, candidate := range expected {
		if status == candidate {
			return true
		}
	}
	return false
}

func (store *stubStore) AssignDriverIf(ctx context.Context, bookingID string, expected []BookingStatus, assignment DriverAssignment) (Booking, error) {
	record, ok := store.bookings[bookingID]
	if !ok || !statusIn(record.Status, expected) {
		return Booking{}, store.stale()
	}
	record.DriverID = assignment.DriverID
	record.DriverName = assignment.DriverName
	record.Status = StatusDriverAssigned
	record.DriverAssignedAt = &assignment.AssignedAt
	record.UpdatedAt = assignment.AssignedAt
	store.bookings[bookingID] = record
	return record, nil
}

func (store *stubStore) MarkStartedIf(ctx context.Context, bookingID string, startedAt time.Time) (Booking, error) {
	record, ok := store.bookings[bookingID]
	if !ok || record.Status != StatusDriverAssigned {
		return Booking{}, store.stale()
	}
	record.Status = StatusInProgress
	record.StartedAt = &startedAt
	record.UpdatedAt = startedAt
	store.bookings[bookingID] = record
	return record, nil
}

func (store *stubStore) MarkCompletedIf(ctx context.Context, bookingID string, expected []BookingStatus, completedAt time.Time) (Booking, error) {
	record, ok := store.bookings[bookingID]
	if !ok || !statusIn(record.Status, expected) {
		return Booking{}, store.stale()
	}
	record.Status = StatusCompleted
	record.CompletedAt = &completedAt
	record.UpdatedAt = completedAt
	store.bookings[bookingID] = record
	return record, nil
}

func (store *stubStore) MarkCancelledIf(ctx context.Context, bookingID string, expected []BookingStatus, cancellation Cancellation) (Booking, error) {
	if store.loseCancel[bookingID] {
		return Booking{}, store.stale()
	}
	record, ok := store.bookings[bookingID]
	if !ok || !statusIn(record.Status, expected) {
		return Booking{}, store.stale()
	}
	record.Status = StatusCancelled
	record.CancelReason = cancellation.Reason
	record.CancelledBy = cancellation.CancelledBy
	at := cancellation.At
	record.CancelledAt = &at
	if cancellation.ClearDriver {
		record.DriverID = ""
		record.DriverName = ""
		record.DriverAssignedAt = nil
	}
	record.UpdatedAt = cancellation.At
	store.bookings[bookingID] = record
	return record, nil
}

func (store *stubStore) ReleaseDriverIf(ctx context.Context, bookingID string, release DriverRelease) (Booking, error) {
	record, ok := store.bookings[bookingID]
	if !ok || !statusIn(record.Status, []BookingStatus{StatusDriverAssigned, StatusInProgress}) {
		return Booking{}, store.stale()
	}
	record.Status = release.NewStatus
	record.DriverID = ""
	record.DriverName = ""
	record.DriverAssignedAt = nil
	record.StartedAt = nil
	record.ExcludedDriverIDs = append(record.ExcludedDriverIDs, release.ExcludeDriverID)
	record.UpdatedAt = release.At
	store.bookings[bookingID] = record
	return record, nil
}

func (store *stubStore) MarkNoDriverAvailableIf(ctx context.Context, bookingID string, reason string, at time.Time) (Booking, error) {
	record, ok := store.bookings[bookingID]
	if !ok || !record.IsOfferable() {
		return Booking{}, store.stale()
	}
	record.Status = StatusNoDriverAvailable
	record.TimeoutReason = reason
	record.TimedOutAt = &at
	record.UpdatedAt = at
	store.bookings[bookingID] = record
	return record, nil
}

func (store *stubStore) ReopenTimedOutIf(ctx context.Context, bookingID string, newDate time.Time, at time.Time) (Booking, error) {
	record, ok := store.bookings[bookingID]
	if !ok || record.Status != StatusNoDriverAvailable {
		return Booking{}, store.stale()
	}
	record.Status = record.OpenStatus()
	record.BookingDate = newDate
	record.TimeoutReason = ""
	record.TimedOutAt = nil
	record.UpdatedAt = at
	store.bookings[bookingID] = record
	return record, nil
}

func (store *stubStore) SetVerificationPhoto(ctx context.Context, bookingID string, photoRef string, at time.Time) error {
	record, ok := store.bookings[bookingID]
	if !ok {
		return WrapError("store", "booking", "update", ErrNotFound)
	}
	record.VerificationPhoto = photoRef
	record.UpdatedAt = at
	store.bookings[bookingID] = record
	return nil
}

func (store *stubStore) ListActiveForCustomer(ctx context.Context, customerID string) ([]Booking, error) {
	var out []Booking
	for _, record := range store.bookings {
		if record.Type != BookingTypeRide || record.CustomerID != customerID {
			continue
		}
		if statusIn(record.Status, []BookingStatus{StatusWaitingForDriver, StatusDriverAssigned, StatusInProgress}) {
			out = append(out, record)
		}
	}
	return out, nil
}

func (store *stubStore) ListActivePaidForDriver(ctx context.Context, driverID string) ([]Booking, error) {
	var out []Booking
	for _, record := range store.bookings {
		if record.DriverID != driverID || record.PaymentStatus != PaymentPaid {
			continue
		}
		if statusIn(record.Status, []BookingStatus{StatusDriverAssigned, StatusInProgress}) {
			out = append(out, record)
		}
	}
	return out, nil
}

func (store *stubStore) ListUnpaidAssignedForDriver(ctx context.Context, driverID string) ([]Booking, error) {
	var out []Booking
	for _, record := range store.bookings {
		if record.DriverID == driverID && record.PaymentStatus == PaymentPending && record.Status == StatusDriverAssigned {
			out = append(out, record)
		}
	}
	return out, nil
}

func (store *stubStore) ListUnpaidAssignedBefore(ctx context.Context, cutoff time.Time) ([]Booking, error) {
	var out []Booking
	for _, record := range store.bookings {
		if record.PaymentStatus != PaymentPending || record.Status != StatusDriverAssigned {
			continue
		}
		if record.DriverAssignedAt != nil && record.DriverAssignedAt.Before(cutoff) {
			out = append(out, record)
		}
	}
	return out, nil
}

func (store *stubStore) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]Booking, error) {
	var out []Booking
	for _, record := range store.bookings {
		if record.Status == StatusPending && record.CreatedAt.Before(cutoff) {
			out = append(out, record)
		}
	}
	return out, nil
}

func (store *stubStore) GetDriverProfile(ctx context.Context, driverID string) (DriverProfile, error) {
	if profile, ok := store.profiles[driverID]; ok {
		return profile, nil
	}
	return DriverProfile{DriverID: driverID, Active: true, HasEligibleVehicle: true}, nil
}

type settlementCall struct {
	method    string
	bookingID string
}

type stubSettlements struct {
	calls        []settlementCall
	finalizeErr  error
	reverseErr   error
	summary      SettlementSummary
	reversal     ReversalSummary
	earningsByID map[string]bool
}

func newStubSettlements() *stubSettlements {
	return &stubSettlements{earningsByID: map[string]bool{}}
}

func (settlements *stubSettlements) EnsureEarning(ctx context.Context, record Booking) error {
	settlements.calls = append(settlements.calls, settlementCall{method: "ensure", bookingID: record.ID})
	settlements.earningsByID[record.ID] = true
	return nil
}

func (settlements *stubSettlements) TagDriver(ctx context.Context, bookingID string, driverID string, driverName string) error {
	settlements.calls = append(settlements.calls, settlementCall{method: "tag", bookingID: bookingID})
	return nil
}

func (settlements *stubSettlements) Finalize(ctx context.Context, record Booking) (SettlementSummary, error) {
	settlements.calls = append(settlements.calls, settlementCall{method: "finalize", bookingID: record.ID})
	if settlements.finalizeErr != nil {
		return SettlementSummary{}, settlements.finalizeErr
	}
	return settlements.summary, nil
}

func (settlements *stubSettlements) ReverseAndRefund(ctx context.Context, record Booking, reason string, cancelledBy string) (ReversalSummary, error) {
	settlements.calls = append(settlements.calls, settlementCall{method: "reverse", bookingID: record.ID})
	if settlements.reverseErr != nil {
		return ReversalSummary{}, settlements.reverseErr
	}
	return settlements.reversal, nil
}

func (settlements *stubSettlements) callCount(method string) int {
	count := 0
	for _, call := range settlements.calls {
		if call.method == method {
			count++
		}
	}
	return count
}

type stubMetrics struct {
	completions   []string
	cancellations []string
	reviews       []string
	suspend       bool
}

func (metrics *stubMetrics) RecordCompletion(ctx context.Context, driverID string, bookingID string, bookingType string) error {
	metrics.completions = append(metrics.completions, bookingID)
	return nil
}

func (metrics *stubMetrics) RecordCancellationForReview(ctx context.Context, driverID string, bookingID string, reason string, bookingType string) error {
	metrics.reviews = append(metrics.reviews, bookingID)
	return nil
}

func (metrics *stubMetrics) RecordCancellation(ctx context.Context, driverID string, bookingID string, reason string, bookingType string) error {
	metrics.cancellations = append(metrics.cancellations, bookingID)
	return nil
}

func (metrics *stubMetrics) EvaluateSuspension(ctx context.Context, driverID string) (bool, error) {
	return metrics.suspend, nil
}

type stubDispatcher struct {
	dispatched []string
	cancelled  []string
}

func (dispatcher *stubDispatcher) DispatchBooking(ctx context.Context, record Booking) {
	dispatcher.dispatched = append(dispatcher.dispatched, record.ID)
}

func (dispatcher *stubDispatcher) CancelSchedule(bookingID string) {
	dispatcher.cancelled = append(dispatcher.cancelled, bookingID)
}

type stubNotifier struct {
	messages []NotificationMessage
}

func (notifier *stubNotifier) Notify(ctx context.Context, message NotificationMessage) error {
	notifier.messages = append(notifier.messages, message)
	return nil
}

type testHarness struct {
	store       *stubStore
	settlements *stubSettlements
	metrics     *stubMetrics
	dispatcher  *stubDispatcher
	notifier    *stubNotifier
	service     *Service
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	harness := &testHarness{
		store:       newStubStore(),
		settlements: newStubSettlements(),
		metrics:     &stubMetrics{},
		dispatcher:  &stubDispatcher{},
		notifier:    &stubNotifier{},
	}
	service, err := NewService(harness.store, harness.settlements, harness.metrics,
		func() time.Time { return testNow },
		WithDispatcher(harness.dispatcher),
		WithNotifier(harness.notifier),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	harness.service = service
	return harness
}

func mustBookingID(t *testing.T, raw string) BookingID {
	t.Helper()
	bookingID, err := NewBookingID(raw)
	if err != nil {
		t.Fatalf("booking id %q: %v", raw, err)
	}
	return bookingID
}

func mustCustomerID(t *testing.T, raw string) CustomerID {
	t.Helper()
	customerID, err := NewCustomerID(raw)
	if err != nil {
		t.Fatalf("customer id %q: %v", raw, err)
	}
	return customerID
}

func mustDriverID(t *testing.T, raw string) DriverID {
	t.Helper()
	driverID, err := NewDriverID(raw)
	if err != nil {
		t.Fatalf("driver id %q: %v", raw, err)
	}
	return driverID
}
