package booking

import (
	"context"
	"errors"
	"fmt"
)

// SweepResult reports one periodic sweep pass.
type SweepResult struct {
	Examined int
	Changed  int
	Warnings []string
}

// ProcessUnpaidTimeouts cancels driver-assigned bookings whose payment never
// arrived within the unpaid assignment window. Each cancellation frees the
// driver and notifies the customer.
func (service *Service) ProcessUnpaidTimeouts(ctx context.Context) (SweepResult, error) {
	result, operationError := service.processUnpaidTimeouts(ctx)
	service.logOperation(ctx, OperationLog{
		Operation: operationUnpaidSweep,
		ActorRole: actorSystem,
		Warnings:  result.Warnings,
		Error:     operationError,
	})
	return result, operationError
}

func (service *Service) processUnpaidTimeouts(ctx context.Context) (SweepResult, error) {
	cutoff := service.nowFn().Add(-UnpaidAssignmentWindow)
	stale, err := service.store.ListUnpaidAssignedBefore(ctx, cutoff)
	if err != nil {
		return SweepResult{}, err
	}
	result := SweepResult{Examined: len(stale)}
	for _, candidate := range stale {
		cancelled, err := service.store.MarkCancelledIf(ctx, candidate.ID,
			[]BookingStatus{StatusDriverAssigned},
			Cancellation{
				Reason:      unpaidCancelReason,
				CancelledBy: actorSystem,
				At:          service.nowFn(),
				ClearDriver: true,
			})
		if err != nil {
			// A lost race means someone paid or cancelled first; skip quietly.
			if !errors.Is(err, ErrStaleState) {
				result.Warnings = append(result.Warnings, fmt.Sprintf("booking %s: %v", candidate.ID, err))
			}
			continue
		}
		result.Changed++
		if _, err := service.settlements.ReverseAndRefund(ctx, cancelled, unpaidCancelReason, actorSystem); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("booking %s reversal degraded: %v", cancelled.ID, err))
		}
		service.notifySweep(ctx, NotificationMessage{
			Title:         "Booking Cancelled - Payment Not Received",
			Body:          "Your booking was cancelled because payment was not completed within 3 hours.",
			Kind:          "booking",
			BookingID:     cancelled.ID,
			RecipientRole: "customer",
			RecipientIDs:  []string{cancelled.CustomerID},
		}, &result)
		if candidate.DriverID != "" {
			service.notifySweep(ctx, NotificationMessage{
				Title:         "Booking Released",
				Body:          "A booking you accepted was cancelled because the customer did not pay in time.",
				Kind:          "booking",
				BookingID:     cancelled.ID,
				RecipientRole: "driver",
				RecipientIDs:  []string{candidate.DriverID},
			}, &result)
		}
	}
	return result, nil
}

// ProcessPendingTimeouts marks pending bookings that no driver claimed within
// the unclaimed window as no_driver_available. The customer can then rebook or
// cancel for a refund.
func (service *Service) ProcessPendingTimeouts(ctx context.Context) (SweepResult, error) {
	result, operationError := service.processPendingTimeouts(ctx)
	service.logOperation(ctx, OperationLog{
		Operation: operationPendingSweep,
		ActorRole: actorSystem,
		Warnings:  result.Warnings,
		Error:     operationError,
	})
	return result, operationError
}

func (service *Service) processPendingTimeouts(ctx context.Context) (SweepResult, error) {
	cutoff := service.nowFn().Add(-UnclaimedWindow)
	stale, err := service.store.ListPendingCreatedBefore(ctx, cutoff)
	if err != nil {
		return SweepResult{}, err
	}
	result := SweepResult{Examined: len(stale)}
	for _, candidate := range stale {
		updated, err := service.store.MarkNoDriverAvailableIf(ctx, candidate.ID, unclaimedTimeoutMsg, service.nowFn())
		if err != nil {
			if !errors.Is(err, ErrStaleState) {
				result.Warnings = append(result.Warnings, fmt.Sprintf("booking %s: %v", candidate.ID, err))
			}
			continue
		}
		result.Changed++
		service.notifySweep(ctx, NotificationMessage{
			Title:         "No Driver Available",
			Body:          "No driver accepted your booking in time. You can rebook for another date or cancel for a full refund.",
			Kind:          "booking",
			BookingID:     updated.ID,
			RecipientRole: "customer",
			RecipientIDs:  []string{updated.CustomerID},
		}, &result)
	}
	return result, nil
}

func (service *Service) notifySweep(ctx context.Context, message NotificationMessage, result *SweepResult) {
	if service.notifier == nil {
		return
	}
	if err := service.notifier.Notify(ctx, message); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("notification degraded: %v", err))
	}
}
