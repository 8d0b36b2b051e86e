package settlement

import (
	"context"
	"fmt"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type stubStore struct {
	earnings   map[string]Earning
	payouts    map[string]Payout
	links      map[string]PayoutEarningLink
	refunds    map[string]Refund
	percentage Percentage
	sequence   int

	// loseFinalize makes FinalizeEarningIf apply the update but report a
	// lost race, as when a concurrent caller finalized first.
	loseFinalize bool
	// linkInsertFailures fails that many InsertLink calls before
	// recovering, simulating a transient credit failure.
	linkInsertFailures int
}

func newStubStore() *stubStore {
	return &stubStore{
		earnings:   map[string]Earning{},
		payouts:    map[string]Payout{},
		links:      map[string]PayoutEarningLink{},
		refunds:    map[string]Refund{},
		percentage: 2000,
	}
}

func (store *stubStore) nextID(prefix string) string {
	store.sequence++
	return fmt.Sprintf("%s-%d", prefix, store.sequence)
}

func (store *stubStore) stale() error {
	return fmt.Errorf("store: %w", ErrStaleState)
}

func (store *stubStore) InsertEarning(ctx context.Context, earning Earning) (Earning, error) {
	for _, existing := range store.earnings {
		if existing.BookingID == earning.BookingID {
			return Earning{}, fmt.Errorf("store: %w", ErrDuplicate)
		}
	}
	earning.ID = store.nextID("earn")
	store.earnings[earning.ID] = earning
	return earning, nil
}

func (store *stubStore) GetEarning(ctx context.Context, earningID string) (Earning, error) {
	earning, ok := store.earnings[earningID]
	if !ok {
		return Earning{}, fmt.Errorf("store: %w", ErrNotFound)
	}
	return earning, nil
}

func (store *stubStore) GetEarningByBooking(ctx context.Context, bookingID string) (Earning, error) {
	for _, earning := range store.earnings {
		if earning.BookingID == bookingID {
			return earning, nil
		}
	}
	return Earning{}, fmt.Errorf("store: %w", ErrNotFound)
}

func (store *stubStore) UpdateEarningDriver(ctx context.Context, earningID string, driverID string, driverName string) error {
	earning, ok := store.earnings[earningID]
	if !ok {
		return fmt.Errorf("store: %w", ErrNotFound)
	}
	earning.DriverID = driverID
	earning.DriverName = driverName
	store.earnings[earningID] = earning
	return nil
}

func (store *stubStore) FinalizeEarningIf(ctx context.Context, earningID string, expected EarningStatus, finalization EarningFinalization) (Earning, error) {
	earning, ok := store.earnings[earningID]
	if !ok || earning.Status != expected {
		return Earning{}, store.stale()
	}
	earning.Status = EarningFinalized
	earning.DriverShareCents = finalization.DriverShareCents
	earning.AdminShareCents = finalization.AdminShareCents
	earning.PercentageBasisPoints = finalization.PercentageBasisPoints
	at := finalization.At
	earning.FinalizedAt = &at
	store.earnings[earningID] = earning
	if store.loseFinalize {
		return Earning{}, store.stale()
	}
	return earning, nil
}

func (store *stubStore) ReverseEarningIf(ctx context.Context, earningID string, expected []EarningStatus, at time.Time) (Earning, error) {
	earning, ok := store.earnings[earningID]
	if !ok {
		return Earning{}, store.stale()
	}
	allowed := false
	for _, status := range expected {
		if earning.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return Earning{}, store.stale()
	}
	earning.Status = EarningReversed
	earning.ReversedAt = &at
	store.earnings[earningID] = earning
	return earning, nil
}

func (store *stubStore) InsertPayout(ctx context.Context, payout Payout) (Payout, error) {
	for _, existing := range store.payouts {
		if existing.DriverID == payout.DriverID && existing.Status == PayoutPending {
			return Payout{}, fmt.Errorf("store: %w", ErrDuplicate)
		}
	}
	payout.ID = store.nextID("pay")
	store.payouts[payout.ID] = payout
	return payout, nil
}

func (store *stubStore) GetPayout(ctx context.Context, payoutID string) (Payout, error) {
	payout, ok := store.payouts[payoutID]
	if !ok {
		return Payout{}, fmt.Errorf("store: %w", ErrNotFound)
	}
	return payout, nil
}

func (store *stubStore) GetPendingPayoutForDriver(ctx context.Context, driverID string) (Payout, error) {
	for _, payout := range store.payouts {
		if payout.DriverID == driverID && payout.Status == PayoutPending {
			return payout, nil
		}
	}
	return Payout{}, fmt.Errorf("store: %w", ErrNotFound)
}

func (store *stubStore) AddToPendingPayout(ctx context.Context, payoutID string, amountCents int64) (Payout, error) {
	payout, ok := store.payouts[payoutID]
	if !ok || payout.Status != PayoutPending {
		return Payout{}, store.stale()
	}
	payout.AmountCents += amountCents
	store.payouts[payoutID] = payout
	return payout, nil
}

func (store *stubStore) DeductFromPendingPayoutClamped(ctx context.Context, payoutID string, amountCents int64) (Payout, error) {
	payout, ok := store.payouts[payoutID]
	if !ok {
		return Payout{}, fmt.Errorf("store: %w", ErrNotFound)
	}
	if payout.Status != PayoutPending {
		return Payout{}, store.stale()
	}
	payout.AmountCents -= amountCents
	if payout.AmountCents < 0 {
		payout.AmountCents = 0
	}
	store.payouts[payoutID] = payout
	return payout, nil
}

func (store *stubStore) InsertLink(ctx context.Context, link PayoutEarningLink) (PayoutEarningLink, error) {
	if store.linkInsertFailures > 0 {
		store.linkInsertFailures--
		return PayoutEarningLink{}, fmt.Errorf("store: link insert unavailable")
	}
	for _, existing := range store.links {
		if existing.EarningID == link.EarningID {
			return PayoutEarningLink{}, fmt.Errorf("store: %w", ErrDuplicate)
		}
	}
	link.ID = store.nextID("link")
	store.links[link.ID] = link
	return link, nil
}

func (store *stubStore) GetLinkByEarning(ctx context.Context, earningID string) (PayoutEarningLink, error) {
	for _, link := range store.links {
		if link.EarningID == earningID {
			return link, nil
		}
	}
	return PayoutEarningLink{}, fmt.Errorf("store: %w", ErrNotFound)
}

func (store *stubStore) MarkLinkReversedIf(ctx context.Context, linkID string) (PayoutEarningLink, error) {
	link, ok := store.links[linkID]
	if !ok || link.Reversed {
		return PayoutEarningLink{}, store.stale()
	}
	link.Reversed = true
	store.links[linkID] = link
	return link, nil
}

func (store *stubStore) InsertRefund(ctx context.Context, refund Refund) (Refund, error) {
	for _, existing := range store.refunds {
		if existing.BookingID == refund.BookingID {
			return Refund{}, fmt.Errorf("store: %w", ErrDuplicate)
		}
	}
	refund.ID = store.nextID("ref")
	store.refunds[refund.ID] = refund
	return refund, nil
}

func (store *stubStore) GetRefund(ctx context.Context, refundID string) (Refund, error) {
	refund, ok := store.refunds[refundID]
	if !ok {
		return Refund{}, fmt.Errorf("store: %w", ErrNotFound)
	}
	return refund, nil
}

func (store *stubStore) GetRefundByBooking(ctx context.Context, bookingID string) (Refund, error) {
	for _, refund := range store.refunds {
		if refund.BookingID == bookingID {
			return refund, nil
		}
	}
	return Refund{}, fmt.Errorf("store: %w", ErrNotFound)
}

func (store *stubStore) ListRefunds(ctx context.Context, filter RefundFilter) ([]Refund, error) {
	var out []Refund
	for _, refund := range store.refunds {
		if filter.Status != "" && refund.Status != filter.Status {
			continue
		}
		out = append(out, refund)
	}
	return out, nil
}

func (store *stubStore) ReviewRefundIf(ctx context.Context, refundID string, expected []RefundStatus, review RefundReview) (Refund, error) {
	refund, ok := store.refunds[refundID]
	if !ok {
		return Refund{}, store.stale()
	}
	allowed := false
	for _, status := range expected {
		if refund.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return Refund{}, store.stale()
	}
	refund.Status = review.NewStatus
	refund.ReviewedBy = review.ReviewedBy
	refund.ReviewRemarks = review.Remarks
	at := review.At
	refund.ReviewedAt = &at
	store.refunds[refundID] = refund
	return refund, nil
}

func (store *stubStore) OrganizationPercentage(ctx context.Context) (Percentage, error) {
	return store.percentage, nil
}

func (store *stubStore) UpdateOrganizationPercentage(ctx context.Context, percentage Percentage) error {
	store.percentage = percentage
	return nil
}

func mustNewService(t *testing.T, store *stubStore) *Service {
	t.Helper()
	service, err := NewService(store, store, WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}
