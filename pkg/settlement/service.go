package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/SugboTransitLab/marketplace/pkg/booking"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithClock replaces the wall clock, primarily for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(service *Service) {
		service.nowFn = now
	}
}

// Service settles paid bookings into earnings, payouts, and refunds. It is
// the booking lifecycle's settlement collaborator.
type Service struct {
	store       Store
	percentages PercentageProvider
	nowFn       func() time.Time
}

var _ booking.Settlements = (*Service)(nil)

// NewService constructs a settlement service.
func NewService(store Store, percentages PercentageProvider, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidServiceConfig)
	}
	if percentages == nil {
		return nil, fmt.Errorf("%w: percentage provider is required", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:       store,
		percentages: percentages,
		nowFn:       time.Now,
	}
	for _, option := range options {
		option(service)
	}
	return service, nil
}

// EnsureEarning creates the pending earning for a paid booking. Unpaid
// bookings are skipped; an existing earning makes the call a no-op.
func (service *Service) EnsureEarning(ctx context.Context, record booking.Booking) error {
	if record.PaymentStatus != booking.PaymentPaid {
		return nil
	}
	if _, err := service.store.GetEarningByBooking(ctx, record.ID); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	snapshot := Percentage(0)
	if record.Type == booking.BookingTypeTour {
		percentage, err := service.percentages.OrganizationPercentage(ctx)
		if err != nil {
			return err
		}
		snapshot = percentage
	}
	_, err := service.store.InsertEarning(ctx, Earning{
		BookingID:             record.ID,
		BookingType:           record.Type.String(),
		CustomerID:            record.CustomerID,
		CustomerName:          record.CustomerName,
		DriverID:              record.DriverID,
		DriverName:            record.DriverName,
		TotalAmountCents:      record.TotalAmountCents,
		PercentageBasisPoints: snapshot,
		Status:                EarningPending,
		CreatedAt:             service.nowFn(),
	})
	if errors.Is(err, ErrDuplicate) {
		return nil
	}
	return err
}

// TagDriver records the accepting driver on the booking's earning. A missing
// earning is not an error; the booking may simply be unpaid.
func (service *Service) TagDriver(ctx context.Context, bookingID string, driverID string, driverName string) error {
	earning, err := service.store.GetEarningByBooking(ctx, bookingID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return service.store.UpdateEarningDriver(ctx, earning.ID, driverID, driverName)
}

// Finalize settles the booking's earning: computes the driver/admin split,
// finalizes the earning, and adds the driver share to the driver's single
// pending payout. Calling it twice reports the prior result.
func (service *Service) Finalize(ctx context.Context, record booking.Booking) (booking.SettlementSummary, error) {
	earning, err := service.store.GetEarningByBooking(ctx, record.ID)
	if errors.Is(err, ErrNotFound) {
		// Completion can outrun payment capture; make the earning now.
		if ensureErr := service.EnsureEarning(ctx, record); ensureErr != nil {
			return booking.SettlementSummary{}, ensureErr
		}
		earning, err = service.store.GetEarningByBooking(ctx, record.ID)
	}
	if err != nil {
		return booking.SettlementSummary{}, err
	}

	switch earning.Status {
	case EarningFinalized:
		return service.recoverFinalized(ctx, earning, record)
	case EarningReversed:
		return booking.SettlementSummary{}, fmt.Errorf("%w: earning %s", ErrEarningReversed, earning.ID)
	}

	driverShare, adminShare, percentage, err := service.computeSplit(ctx, record.Type, earning.TotalAmountCents)
	if err != nil {
		return booking.SettlementSummary{}, err
	}

	finalized, err := service.store.FinalizeEarningIf(ctx, earning.ID, EarningPending, EarningFinalization{
		DriverShareCents:      driverShare,
		AdminShareCents:       adminShare,
		PercentageBasisPoints: percentage,
		At:                    service.nowFn(),
	})
	if errors.Is(err, ErrStaleState) {
		current, readErr := service.store.GetEarning(ctx, earning.ID)
		if readErr != nil {
			return booking.SettlementSummary{}, readErr
		}
		if current.Status == EarningFinalized {
			return service.recoverFinalized(ctx, current, record)
		}
		return booking.SettlementSummary{}, fmt.Errorf("%w: earning %s", ErrEarningReversed, current.ID)
	}
	if err != nil {
		return booking.SettlementSummary{}, err
	}
	earning = finalized

	summary := booking.SettlementSummary{
		EarningID:        earning.ID,
		TotalCents:       earning.TotalAmountCents,
		DriverShareCents: driverShare,
		AdminShareCents:  adminShare,
	}
	driverID := earning.DriverID
	if driverID == "" {
		driverID = record.DriverID
	}
	if driverID == "" || driverShare == 0 {
		return summary, nil
	}
	payoutID, err := service.creditPayout(ctx, driverID, earning.ID, driverShare)
	if err != nil {
		return summary, err
	}
	summary.PayoutID = payoutID
	return summary, nil
}

// recoverFinalized reports a finalized earning's prior split and makes sure
// the payout leg landed. A finalize interrupted between marking the earning
// and crediting the payout converges here on the next call.
func (service *Service) recoverFinalized(ctx context.Context, earning Earning, record booking.Booking) (booking.SettlementSummary, error) {
	summary := booking.SettlementSummary{
		AlreadyFinalized: true,
		EarningID:        earning.ID,
		TotalCents:       earning.TotalAmountCents,
		DriverShareCents: earning.DriverShareCents,
		AdminShareCents:  earning.AdminShareCents,
	}
	driverID := earning.DriverID
	if driverID == "" {
		driverID = record.DriverID
	}
	if driverID == "" || earning.DriverShareCents == 0 {
		return summary, nil
	}
	link, err := service.store.GetLinkByEarning(ctx, earning.ID)
	if err == nil {
		summary.PayoutID = link.PayoutID
		return summary, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return summary, err
	}
	payoutID, err := service.creditPayout(ctx, driverID, earning.ID, earning.DriverShareCents)
	if err != nil {
		return summary, err
	}
	summary.PayoutID = payoutID
	return summary, nil
}

func (service *Service) computeSplit(ctx context.Context, bookingType booking.BookingType, totalCents int64) (int64, int64, Percentage, error) {
	if bookingType == booking.BookingTypeRide {
		return totalCents, 0, 0, nil
	}
	percentage, err := service.percentages.OrganizationPercentage(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	driverShare, adminShare := percentage.SplitTotal(totalCents)
	return driverShare, adminShare, percentage, nil
}

// creditPayout finds or creates the driver's pending payout and adds the
// share once. The link's unique earning id absorbs duplicate calls.
func (service *Service) creditPayout(ctx context.Context, driverID string, earningID string, amountCents int64) (string, error) {
	payout, err := service.store.GetPendingPayoutForDriver(ctx, driverID)
	if errors.Is(err, ErrNotFound) {
		payout, err = service.store.InsertPayout(ctx, Payout{
			DriverID:  driverID,
			Status:    PayoutPending,
			CreatedAt: service.nowFn(),
		})
		if errors.Is(err, ErrDuplicate) {
			payout, err = service.store.GetPendingPayoutForDriver(ctx, driverID)
		}
	}
	if err != nil {
		return "", err
	}

	_, err = service.store.InsertLink(ctx, PayoutEarningLink{
		PayoutID:    payout.ID,
		EarningID:   earningID,
		AmountCents: amountCents,
		CreatedAt:   service.nowFn(),
	})
	if errors.Is(err, ErrDuplicate) {
		// Another finalize already credited this earning.
		link, linkErr := service.store.GetLinkByEarning(ctx, earningID)
		if linkErr != nil {
			return payout.ID, nil
		}
		return link.PayoutID, nil
	}
	if err != nil {
		return "", err
	}
	if _, err := service.store.AddToPendingPayout(ctx, payout.ID, amountCents); err != nil {
		return payout.ID, err
	}
	return payout.ID, nil
}

// ReverseAndRefund unwinds settlement for a cancelled booking and ensures its
// refund record exists. Every leg is idempotent: a reversed earning stays
// reversed, a reversed link is never deducted twice, released payouts are
// untouched, and a booking gets exactly one refund.
func (service *Service) ReverseAndRefund(ctx context.Context, record booking.Booking, reason string, cancelledBy string) (booking.ReversalSummary, error) {
	summary := booking.ReversalSummary{}

	earning, err := service.store.GetEarningByBooking(ctx, record.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		// Nothing was ever earned; only the refund side applies.
	case err != nil:
		return summary, err
	case earning.Status == EarningReversed:
		summary.AlreadyReversed = true
		summary.EarningID = earning.ID
	default:
		wasFinalized := earning.Status == EarningFinalized
		_, err := service.store.ReverseEarningIf(ctx, earning.ID,
			[]EarningStatus{EarningPending, EarningFinalized}, service.nowFn())
		if errors.Is(err, ErrStaleState) {
			summary.AlreadyReversed = true
			summary.EarningID = earning.ID
		} else if err != nil {
			return summary, err
		} else {
			summary.EarningReversed = true
			summary.EarningID = earning.ID
			if wasFinalized {
				if err := service.debitPayout(ctx, earning.ID); err != nil {
					return summary, err
				}
			}
		}
	}

	refund, err := service.ensureRefund(ctx, record, earning, reason, cancelledBy)
	if err != nil {
		return summary, err
	}
	summary.RefundID = refund.ID
	summary.RefundAmountCents = refund.AmountCents
	return summary, nil
}

// debitPayout takes a finalized earning's share back out of the payout it was
// credited to. The deduction only touches pending payouts and never drives
// the amount below zero.
func (service *Service) debitPayout(ctx context.Context, earningID string) error {
	link, err := service.store.GetLinkByEarning(ctx, earningID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if link.Reversed {
		return nil
	}
	link, err = service.store.MarkLinkReversedIf(ctx, link.ID)
	if errors.Is(err, ErrStaleState) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = service.store.DeductFromPendingPayoutClamped(ctx, link.PayoutID, link.AmountCents)
	if errors.Is(err, ErrStaleState) || errors.Is(err, ErrNotFound) {
		// Payout already released; the money stays with the driver.
		return nil
	}
	return err
}

func (service *Service) ensureRefund(ctx context.Context, record booking.Booking, earning Earning, reason string, cancelledBy string) (Refund, error) {
	existing, err := service.store.GetRefundByBooking(ctx, record.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Refund{}, err
	}

	amount := int64(0)
	if record.PaymentStatus == booking.PaymentPaid {
		amount = record.TotalAmountCents
	}
	driverID := earning.DriverID
	if driverID == "" {
		driverID = record.DriverID
	}
	refund, err := service.store.InsertRefund(ctx, Refund{
		BookingID:   record.ID,
		EarningID:   earning.ID,
		CustomerID:  record.CustomerID,
		DriverID:    driverID,
		AmountCents: amount,
		Reference:   service.newRefundReference(),
		Reason:      reason,
		RequestedBy: cancelledBy,
		Status:      RefundPending,
		CreatedAt:   service.nowFn(),
	})
	if errors.Is(err, ErrDuplicate) {
		return service.store.GetRefundByBooking(ctx, record.ID)
	}
	return refund, err
}

// newRefundReference generates a reference like RF-20260901-48202.
func (service *Service) newRefundReference() string {
	return fmt.Sprintf("RF-%s-%05d", service.nowFn().Format("20060102"), rand.Intn(100000))
}
