package settlement

import (
	"context"
	"time"
)

// EarningFinalization is the breakdown written when an earning settles.
type EarningFinalization struct {
	DriverShareCents      int64
	AdminShareCents       int64
	PercentageBasisPoints Percentage
	At                    time.Time
}

// RefundReview is the decision recorded against a pending refund.
type RefundReview struct {
	NewStatus  RefundStatus
	ReviewedBy string
	Remarks    string
	At         time.Time
}

// Store is the persistence surface for earnings, payouts, links, and refunds.
// Every ...If method applies a conditional single-row update and reports a
// wrapped ErrStaleState when zero rows matched.
type Store interface {
	InsertEarning(ctx context.Context, earning Earning) (Earning, error)
	GetEarning(ctx context.Context, earningID string) (Earning, error)
	GetEarningByBooking(ctx context.Context, bookingID string) (Earning, error)
	UpdateEarningDriver(ctx context.Context, earningID string, driverID string, driverName string) error
	FinalizeEarningIf(ctx context.Context, earningID string, expected EarningStatus, finalization EarningFinalization) (Earning, error)
	ReverseEarningIf(ctx context.Context, earningID string, expected []EarningStatus, at time.Time) (Earning, error)

	InsertPayout(ctx context.Context, payout Payout) (Payout, error)
	GetPayout(ctx context.Context, payoutID string) (Payout, error)
	GetPendingPayoutForDriver(ctx context.Context, driverID string) (Payout, error)
	AddToPendingPayout(ctx context.Context, payoutID string, amountCents int64) (Payout, error)
	DeductFromPendingPayoutClamped(ctx context.Context, payoutID string, amountCents int64) (Payout, error)

	InsertLink(ctx context.Context, link PayoutEarningLink) (PayoutEarningLink, error)
	GetLinkByEarning(ctx context.Context, earningID string) (PayoutEarningLink, error)
	MarkLinkReversedIf(ctx context.Context, linkID string) (PayoutEarningLink, error)

	InsertRefund(ctx context.Context, refund Refund) (Refund, error)
	GetRefund(ctx context.Context, refundID string) (Refund, error)
	GetRefundByBooking(ctx context.Context, bookingID string) (Refund, error)
	ListRefunds(ctx context.Context, filter RefundFilter) ([]Refund, error)
	ReviewRefundIf(ctx context.Context, refundID string, expected []RefundStatus, review RefundReview) (Refund, error)
}

// PercentageProvider reads and writes the organization share applied to tour
// earnings. Reads go to the live setting per call; the engine never caches it.
type PercentageProvider interface {
	OrganizationPercentage(ctx context.Context) (Percentage, error)
	UpdateOrganizationPercentage(ctx context.Context, percentage Percentage) error
}
