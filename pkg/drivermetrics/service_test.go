package drivermetrics

import (
	"context"
	"fmt"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type stubStore struct {
	cancellations []CancellationRecord
	completions   []CompletionRecord
	suspensions   []Suspension
}

func (store *stubStore) InsertCancellation(ctx context.Context, record CancellationRecord) error {
	store.cancellations = append(store.cancellations, record)
	return nil
}

func (store *stubStore) InsertCompletion(ctx context.Context, record CompletionRecord) error {
	store.completions = append(store.completions, record)
	return nil
}

func (store *stubStore) CountCancellations(ctx context.Context, driverID string, counted bool, since time.Time) (int64, error) {
	tally := int64(0)
	for _, record := range store.cancellations {
		if record.DriverID == driverID && record.Counted == counted && record.OccurredAt.After(since) {
			tally++
		}
	}
	return tally, nil
}

func (store *stubStore) CountCompletions(ctx context.Context, driverID string, since time.Time) (int64, error) {
	tally := int64(0)
	for _, record := range store.completions {
		if record.DriverID == driverID && record.OccurredAt.After(since) {
			tally++
		}
	}
	return tally, nil
}

func (store *stubStore) GetActiveSuspension(ctx context.Context, driverID string, at time.Time) (Suspension, error) {
	for _, suspension := range store.suspensions {
		if suspension.DriverID == driverID && suspension.Until.After(at) {
			return suspension, nil
		}
	}
	return Suspension{}, fmt.Errorf("store: %w", ErrNotFound)
}

func (store *stubStore) SuspendDriver(ctx context.Context, suspension Suspension) error {
	store.suspensions = append(store.suspensions, suspension)
	return nil
}

func mustNewService(t *testing.T, store *stubStore) *Service {
	t.Helper()
	service, err := NewService(store, WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func recordCancellations(t *testing.T, service *Service, driverID string, count int) {
	t.Helper()
	for index := 0; index < count; index++ {
		bookingID := fmt.Sprintf("bk-%d", index)
		if err := service.RecordCancellation(context.Background(), driverID, bookingID, "late", "ride"); err != nil {
			t.Fatalf("record cancellation: %v", err)
		}
	}
}

func TestEvaluateSuspensionBelowThreshold(t *testing.T) {
	t.Parallel()
	store := &stubStore{}
	service := mustNewService(t, store)
	recordCancellations(t, service, "drv-1", SuspensionThreshold-1)

	suspended, err := service.EvaluateSuspension(context.Background(), "drv-1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if suspended {
		t.Fatalf("must not suspend below threshold")
	}
	if len(store.suspensions) != 0 {
		t.Fatalf("no suspension record expected")
	}
}

func TestEvaluateSuspensionAtThreshold(t *testing.T) {
	t.Parallel()
	store := &stubStore{}
	service := mustNewService(t, store)
	recordCancellations(t, service, "drv-1", SuspensionThreshold)

	suspended, err := service.EvaluateSuspension(context.Background(), "drv-1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !suspended {
		t.Fatalf("expected suspension at threshold")
	}
	if len(store.suspensions) != 1 {
		t.Fatalf("expected one suspension record, got %d", len(store.suspensions))
	}
	suspension := store.suspensions[0]
	if !suspension.Until.Equal(testNow.Add(SuspensionDuration)) {
		t.Fatalf("expected week-long suspension, got until %v", suspension.Until)
	}
}

func TestEvaluateSuspensionDoesNotExtendActiveOne(t *testing.T) {
	t.Parallel()
	store := &stubStore{}
	service := mustNewService(t, store)
	recordCancellations(t, service, "drv-1", SuspensionThreshold+2)

	if _, err := service.EvaluateSuspension(context.Background(), "drv-1"); err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	suspended, err := service.EvaluateSuspension(context.Background(), "drv-1")
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if !suspended {
		t.Fatalf("existing suspension must be reported")
	}
	if len(store.suspensions) != 1 {
		t.Fatalf("existing suspension must not be extended, got %d records", len(store.suspensions))
	}
}

func TestReviewCancellationsDoNotCount(t *testing.T) {
	t.Parallel()
	store := &stubStore{}
	service := mustNewService(t, store)
	for index := 0; index < SuspensionThreshold+1; index++ {
		bookingID := fmt.Sprintf("bk-%d", index)
		if err := service.RecordCancellationForReview(context.Background(), "drv-1", bookingID, "family", "tour"); err != nil {
			t.Fatalf("record review cancellation: %v", err)
		}
	}

	suspended, err := service.EvaluateSuspension(context.Background(), "drv-1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if suspended {
		t.Fatalf("review-only cancellations must not suspend")
	}
}

func TestOldCancellationsFallOutOfWindow(t *testing.T) {
	t.Parallel()
	store := &stubStore{}
	service := mustNewService(t, store)
	old := testNow.Add(-CancellationWindow - 24*time.Hour)
	for index := 0; index < SuspensionThreshold; index++ {
		store.cancellations = append(store.cancellations, CancellationRecord{
			DriverID:   "drv-1",
			BookingID:  fmt.Sprintf("bk-%d", index),
			Counted:    true,
			OccurredAt: old,
		})
	}

	suspended, err := service.EvaluateSuspension(context.Background(), "drv-1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if suspended {
		t.Fatalf("cancellations outside the window must not count")
	}
}

func TestDriverSummaryAggregatesWindow(t *testing.T) {
	t.Parallel()
	store := &stubStore{}
	service := mustNewService(t, store)
	if err := service.RecordCompletion(context.Background(), "drv-1", "bk-1", "tour"); err != nil {
		t.Fatalf("record completion: %v", err)
	}
	if err := service.RecordCancellation(context.Background(), "drv-1", "bk-2", "late", "ride"); err != nil {
		t.Fatalf("record cancellation: %v", err)
	}
	if err := service.RecordCancellationForReview(context.Background(), "drv-1", "bk-3", "family", "tour"); err != nil {
		t.Fatalf("record review cancellation: %v", err)
	}

	summary, err := service.DriverSummary(context.Background(), "drv-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Completions != 1 || summary.CountedCancellations != 1 || summary.ReviewCancellations != 1 {
		t.Fatalf("unexpected tallies: %+v", summary)
	}
	if summary.Suspended {
		t.Fatalf("driver is not suspended")
	}
}

func TestDriverSummaryReportsActiveSuspension(t *testing.T) {
	t.Parallel()
	store := &stubStore{}
	service := mustNewService(t, store)
	store.suspensions = append(store.suspensions, Suspension{
		DriverID: "drv-1",
		Until:    testNow.Add(48 * time.Hour),
		Reason:   "5 cancellations within 30 days",
		IssuedAt: testNow.Add(-24 * time.Hour),
	})

	summary, err := service.DriverSummary(context.Background(), "drv-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !summary.Suspended || summary.SuspendedUntil == nil {
		t.Fatalf("expected active suspension surfaced, got %+v", summary)
	}
}
