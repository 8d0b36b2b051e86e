package settlement

import "errors"

// Domain-level error values returned by the settlement service.
var (
	ErrNotFound             = errors.New("settlement record not found")
	ErrStaleState           = errors.New("stale settlement state")
	ErrDuplicate            = errors.New("settlement record already exists")
	ErrInvalidPercentage    = errors.New("invalid percentage")
	ErrInvalidAmountCents   = errors.New("invalid amount cents")
	ErrRemarksRequired      = errors.New("review remarks required")
	ErrRefundNotReviewable  = errors.New("refund is not in a reviewable state")
	ErrEarningReversed      = errors.New("earning already reversed")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)
