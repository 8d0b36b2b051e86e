package settlement

import (
	"fmt"
	"time"
)

// Percentage is an organization share expressed in basis points, so 20%
// is stored as 2000. Basis points keep the arithmetic integral.
type Percentage int64

const percentageScale = 10000

// NewPercentageFromPercent converts a human percentage in [0,100].
func NewPercentageFromPercent(value float64) (Percentage, error) {
	if value < 0 || value > 100 {
		return 0, fmt.Errorf("%w: %v is outside [0,100]", ErrInvalidPercentage, value)
	}
	return Percentage(value*100 + 0.5), nil
}

// Percent returns the value back in human percentage terms.
func (percentage Percentage) Percent() float64 {
	return float64(percentage) / 100
}

// SplitTotal divides a total into driver and admin shares. The admin share
// rounds half-up; the driver share is the remainder, so the two always sum
// to the total exactly.
func (percentage Percentage) SplitTotal(totalCents int64) (driverCents int64, adminCents int64) {
	adminCents = (totalCents*int64(percentage) + percentageScale/2) / percentageScale
	driverCents = totalCents - adminCents
	return driverCents, adminCents
}

// EarningStatus tracks an earning through its lifecycle.
type EarningStatus string

const (
	EarningPending   EarningStatus = "pending"
	EarningFinalized EarningStatus = "finalized"
	EarningReversed  EarningStatus = "reversed"
)

// Earning is the settlement record for one paid booking.
type Earning struct {
	ID                    string
	BookingID             string
	BookingType           string
	CustomerID            string
	CustomerName          string
	DriverID              string
	DriverName            string
	TotalAmountCents      int64
	DriverShareCents      int64
	AdminShareCents       int64
	PercentageBasisPoints Percentage
	Status                EarningStatus
	FinalizedAt           *time.Time
	ReversedAt            *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// PayoutStatus tracks whether a payout is still accumulating or was released.
type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "pending"
	PayoutReleased PayoutStatus = "released"
)

// Payout accumulates a driver's finalized shares until released. A driver has
// at most one pending payout at a time.
type Payout struct {
	ID          string
	DriverID    string
	AmountCents int64
	Status      PayoutStatus
	ReleasedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PayoutEarningLink records that an earning's driver share was added to a
// payout. Its earning id is unique, which makes the addition idempotent.
type PayoutEarningLink struct {
	ID          string
	PayoutID    string
	EarningID   string
	AmountCents int64
	Reversed    bool
	CreatedAt   time.Time
}

// RefundStatus tracks a refund through review.
type RefundStatus string

const (
	RefundPending  RefundStatus = "pending"
	RefundApproved RefundStatus = "approved"
	RefundRejected RefundStatus = "rejected"
	RefundVoided   RefundStatus = "voided"
)

// Refund is a customer's money back for a cancelled booking. Bookings carry
// at most one refund.
type Refund struct {
	ID            string
	BookingID     string
	EarningID     string
	CustomerID    string
	DriverID      string
	AmountCents   int64
	Reference     string
	Reason        string
	RequestedBy   string
	Status        RefundStatus
	ReviewedBy    string
	ReviewRemarks string
	ReviewedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RefundFilter narrows refund listings.
type RefundFilter struct {
	Status RefundStatus
	Limit  int
	Offset int
}
