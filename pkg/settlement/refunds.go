package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/SugboTransitLab/marketplace/pkg/booking"
)

// CreateRefundRequest opens a refund review for a booking that does not have
// one yet. The amount follows the standing policy: full refund when paid,
// zero otherwise.
func (service *Service) CreateRefundRequest(ctx context.Context, record booking.Booking, reason string, requestedBy string) (Refund, error) {
	if strings.TrimSpace(reason) == "" {
		return Refund{}, fmt.Errorf("%w: refund reason is required", ErrRemarksRequired)
	}
	existing, err := service.store.GetRefundByBooking(ctx, record.ID)
	if err == nil {
		return existing, fmt.Errorf("%w: booking %s already has refund %s", ErrDuplicate, record.ID, existing.ID)
	}
	if !errors.Is(err, ErrNotFound) {
		return Refund{}, err
	}
	earning, err := service.store.GetEarningByBooking(ctx, record.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Refund{}, err
	}
	return service.ensureRefund(ctx, record, earning, reason, requestedBy)
}

// ApproveRefund marks a pending refund approved.
func (service *Service) ApproveRefund(ctx context.Context, refundID string, reviewedBy string, remarks string) (Refund, error) {
	return service.reviewRefund(ctx, refundID, RefundApproved, reviewedBy, remarks, false)
}

// RejectRefund marks a pending refund rejected. Remarks are mandatory so the
// customer learns why.
func (service *Service) RejectRefund(ctx context.Context, refundID string, reviewedBy string, remarks string) (Refund, error) {
	return service.reviewRefund(ctx, refundID, RefundRejected, reviewedBy, remarks, true)
}

// VoidRefund voids a pending or approved refund. Voiding an already voided
// refund reports the existing record.
func (service *Service) VoidRefund(ctx context.Context, refundID string, reviewedBy string, remarks string) (Refund, error) {
	if strings.TrimSpace(remarks) == "" {
		return Refund{}, fmt.Errorf("%w: voiding requires remarks", ErrRemarksRequired)
	}
	refund, err := service.store.ReviewRefundIf(ctx, refundID,
		[]RefundStatus{RefundPending, RefundApproved},
		RefundReview{NewStatus: RefundVoided, ReviewedBy: reviewedBy, Remarks: remarks, At: service.nowFn()})
	if errors.Is(err, ErrStaleState) {
		current, readErr := service.store.GetRefund(ctx, refundID)
		if readErr != nil {
			return Refund{}, readErr
		}
		if current.Status == RefundVoided {
			return current, nil
		}
		return Refund{}, fmt.Errorf("%w: refund %s is %s", ErrRefundNotReviewable, refundID, current.Status)
	}
	return refund, err
}

func (service *Service) reviewRefund(ctx context.Context, refundID string, newStatus RefundStatus, reviewedBy string, remarks string, remarksRequired bool) (Refund, error) {
	if remarksRequired && strings.TrimSpace(remarks) == "" {
		return Refund{}, fmt.Errorf("%w: %s requires remarks", ErrRemarksRequired, newStatus)
	}
	refund, err := service.store.ReviewRefundIf(ctx, refundID,
		[]RefundStatus{RefundPending},
		RefundReview{NewStatus: newStatus, ReviewedBy: reviewedBy, Remarks: remarks, At: service.nowFn()})
	if errors.Is(err, ErrStaleState) {
		current, readErr := service.store.GetRefund(ctx, refundID)
		if readErr != nil {
			return Refund{}, readErr
		}
		return Refund{}, fmt.Errorf("%w: refund %s is %s", ErrRefundNotReviewable, refundID, current.Status)
	}
	return refund, err
}

// GetRefund returns a refund by id.
func (service *Service) GetRefund(ctx context.Context, refundID string) (Refund, error) {
	return service.store.GetRefund(ctx, refundID)
}

// ListRefunds returns refunds matching the filter, newest first.
func (service *Service) ListRefunds(ctx context.Context, filter RefundFilter) ([]Refund, error) {
	return service.store.ListRefunds(ctx, filter)
}

// OrganizationPercentage reads the live organization share.
func (service *Service) OrganizationPercentage(ctx context.Context) (Percentage, error) {
	return service.percentages.OrganizationPercentage(ctx)
}

// UpdateOrganizationPercentage validates and stores a new organization share,
// expressed as a human percentage in [0,100].
func (service *Service) UpdateOrganizationPercentage(ctx context.Context, percent float64) (Percentage, error) {
	percentage, err := NewPercentageFromPercent(percent)
	if err != nil {
		return 0, err
	}
	if err := service.percentages.UpdateOrganizationPercentage(ctx, percentage); err != nil {
		return 0, err
	}
	return percentage, nil
}
