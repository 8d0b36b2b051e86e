package booking

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var cancellableStatuses = []BookingStatus{
	StatusPending, StatusWaitingForDriver, StatusDriverAssigned,
	StatusInProgress, StatusNoDriverAvailable,
}

// CustomerCancel cancels the customer's own booking and reverses settlement.
// Customer cancellations always refund 100% of any paid amount.
func (service *Service) CustomerCancel(ctx context.Context, bookingID BookingID, customerID CustomerID, reason string) (TransitionResult, error) {
	result, operationError := service.customerCancel(ctx, bookingID, customerID, reason)
	service.logOperation(ctx, OperationLog{
		Operation: operationCustomerCancel,
		BookingID: bookingID.String(),
		ActorID:   customerID.String(),
		ActorRole: actorCustomer,
		Warnings:  result.Warnings,
		Error:     operationError,
	})
	return result, operationError
}

func (service *Service) customerCancel(ctx context.Context, bookingID BookingID, customerID CustomerID, reason string) (TransitionResult, error) {
	current, err := service.store.GetBooking(ctx, bookingID.String())
	if err != nil {
		return TransitionResult{}, err
	}
	if current.CustomerID != customerID.String() {
		return TransitionResult{}, GuardError{Precondition: "booking_owner", Detail: "only the booking's customer can cancel"}
	}
	if current.Status == StatusCompleted || current.Status == StatusCancelled {
		return TransitionResult{}, GuardError{
			Precondition: "status_cancellable",
			Detail:       fmt.Sprintf("booking already %s", current.Status),
		}
	}

	updated, err := service.store.MarkCancelledIf(ctx, bookingID.String(), cancellableStatuses, Cancellation{
		Reason:      reason,
		CancelledBy: actorCustomer,
		At:          service.nowFn(),
	})
	if errors.Is(err, ErrStaleState) {
		return TransitionResult{}, service.raceReport(ctx, bookingID.String())
	}
	if err != nil {
		return TransitionResult{}, err
	}

	result := TransitionResult{Booking: updated}
	if service.dispatcher != nil {
		service.dispatcher.CancelSchedule(updated.ID)
	}
	reversal, err := service.settlements.ReverseAndRefund(ctx, updated, reason, actorCustomer)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("reversal degraded: %v", err))
	} else {
		result.Reversal = &reversal
	}
	service.audit(ctx, AuditEvent{
		ActorID:    customerID.String(),
		ActorName:  updated.CustomerName,
		ActorRole:  actorCustomer,
		Action:     "CANCEL_BOOKING_CUSTOMER",
		EntityName: "bookings",
		EntityID:   updated.ID,
		OldData:    current,
		NewData:    updated,
	}, &result)
	return result, nil
}

// DriverCancel releases the driver from a booking and reopens it for
// reassignment, excluding the driver from further offers. Tour cancellations
// are logged for administrative review; ride cancellations count immediately
// and are evaluated for suspension.
func (service *Service) DriverCancel(ctx context.Context, bookingID BookingID, driverID DriverID, reason string) (TransitionResult, error) {
	result, operationError := service.driverCancel(ctx, bookingID, driverID, reason)
	service.logOperation(ctx, OperationLog{
		Operation: operationDriverCancel,
		BookingID: bookingID.String(),
		ActorID:   driverID.String(),
		ActorRole: actorDriver,
		Warnings:  result.Warnings,
		Error:     operationError,
	})
	return result, operationError
}

func (service *Service) driverCancel(ctx context.Context, bookingID BookingID, driverID DriverID, reason string) (TransitionResult, error) {
	current, err := service.store.GetBooking(ctx, bookingID.String())
	if err != nil {
		return TransitionResult{}, err
	}
	if current.DriverID != driverID.String() {
		return TransitionResult{}, GuardError{Precondition: "assigned_driver", Detail: "only the assigned driver can cancel"}
	}

	updated, err := service.store.ReleaseDriverIf(ctx, bookingID.String(), DriverRelease{
		NewStatus:       current.OpenStatus(),
		Reason:          reason,
		ExcludeDriverID: driverID.String(),
		At:              service.nowFn(),
	})
	if errors.Is(err, ErrStaleState) {
		return TransitionResult{}, service.raceReport(ctx, bookingID.String())
	}
	if err != nil {
		return TransitionResult{}, err
	}

	result := TransitionResult{Booking: updated}
	if current.Type == BookingTypeRide {
		if err := service.metrics.RecordCancellation(ctx, driverID.String(), updated.ID, reason, current.Type.String()); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("cancellation metrics degraded: %v", err))
		} else {
			suspended, err := service.metrics.EvaluateSuspension(ctx, driverID.String())
			if err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("suspension check degraded: %v", err))
			}
			result.DriverSuspended = suspended
		}
	} else {
		if err := service.metrics.RecordCancellationForReview(ctx, driverID.String(), updated.ID, reason, current.Type.String()); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("cancellation review log degraded: %v", err))
		}
	}

	if service.dispatcher != nil {
		service.dispatcher.DispatchBooking(ctx, updated)
	}
	service.notify(ctx, NotificationMessage{
		Title:         "Looking for a New Driver",
		Body:          "Your driver cancelled. We are reassigning your booking to another driver.",
		Kind:          "booking",
		BookingID:     updated.ID,
		RecipientRole: "customer",
		RecipientIDs:  []string{updated.CustomerID},
	}, &result)
	service.audit(ctx, AuditEvent{
		ActorID:    driverID.String(),
		ActorName:  current.DriverName,
		ActorRole:  actorDriver,
		Action:     "CANCEL_BOOKING_DRIVER",
		EntityName: "bookings",
		EntityID:   updated.ID,
		OldData:    current,
		NewData:    updated,
	}, &result)
	return result, nil
}

// CancellationPolicy is the fee/refund view surfaced before cancelling.
type CancellationPolicy struct {
	BookingID           string
	CancellationFee     int64
	RefundAmountCents   int64
	OriginalAmountCents int64
	Policy              string
}

// GetCancellationPolicy reports the refund a customer cancellation would yield.
// There is no cancellation fee; paid bookings always refund in full.
func (service *Service) GetCancellationPolicy(ctx context.Context, bookingID BookingID) (CancellationPolicy, error) {
	current, err := service.store.GetBooking(ctx, bookingID.String())
	if err != nil {
		return CancellationPolicy{}, err
	}
	refund := int64(0)
	if current.PaymentStatus == PaymentPaid {
		refund = current.TotalAmountCents
	}
	return CancellationPolicy{
		BookingID:           current.ID,
		CancellationFee:     0,
		RefundAmountCents:   refund,
		OriginalAmountCents: current.TotalAmountCents,
		Policy:              "No cancellation fee - full refund for all customer cancellations",
	}, nil
}

// Rebook reopens a timed-out booking with a new date and re-dispatches it.
func (service *Service) Rebook(ctx context.Context, bookingID BookingID, customerID CustomerID, newDate time.Time) (TransitionResult, error) {
	result, operationError := service.rebook(ctx, bookingID, customerID, newDate)
	service.logOperation(ctx, OperationLog{
		Operation: operationRebook,
		BookingID: bookingID.String(),
		ActorID:   customerID.String(),
		ActorRole: actorCustomer,
		Warnings:  result.Warnings,
		Error:     operationError,
	})
	return result, operationError
}

func (service *Service) rebook(ctx context.Context, bookingID BookingID, customerID CustomerID, newDate time.Time) (TransitionResult, error) {
	current, err := service.store.GetBooking(ctx, bookingID.String())
	if err != nil {
		return TransitionResult{}, err
	}
	if current.CustomerID != customerID.String() {
		return TransitionResult{}, GuardError{Precondition: "booking_owner"}
	}
	if current.Status != StatusNoDriverAvailable {
		return TransitionResult{}, GuardError{
			Precondition: "status_no_driver_available",
			Detail:       fmt.Sprintf("booking is %s", current.Status),
		}
	}
	updated, err := service.store.ReopenTimedOutIf(ctx, bookingID.String(), newDate, service.nowFn())
	if errors.Is(err, ErrStaleState) {
		return TransitionResult{}, service.raceReport(ctx, bookingID.String())
	}
	if err != nil {
		return TransitionResult{}, err
	}
	result := TransitionResult{Booking: updated}
	if service.dispatcher != nil {
		service.dispatcher.DispatchBooking(ctx, updated)
	}
	return result, nil
}

// CancelTimedOut cancels a timed-out booking at the customer's request,
// triggering the usual reversal and refund path.
func (service *Service) CancelTimedOut(ctx context.Context, bookingID BookingID, customerID CustomerID, reason string) (TransitionResult, error) {
	result, operationError := service.cancelTimedOut(ctx, bookingID, customerID, reason)
	service.logOperation(ctx, OperationLog{
		Operation: operationCancelTimedOut,
		BookingID: bookingID.String(),
		ActorID:   customerID.String(),
		ActorRole: actorCustomer,
		Warnings:  result.Warnings,
		Error:     operationError,
	})
	return result, operationError
}

func (service *Service) cancelTimedOut(ctx context.Context, bookingID BookingID, customerID CustomerID, reason string) (TransitionResult, error) {
	current, err := service.store.GetBooking(ctx, bookingID.String())
	if err != nil {
		return TransitionResult{}, err
	}
	if current.CustomerID != customerID.String() {
		return TransitionResult{}, GuardError{Precondition: "booking_owner"}
	}
	if current.Status != StatusNoDriverAvailable {
		return TransitionResult{}, GuardError{
			Precondition: "status_no_driver_available",
			Detail:       fmt.Sprintf("booking is %s", current.Status),
		}
	}
	updated, err := service.store.MarkCancelledIf(ctx, bookingID.String(),
		[]BookingStatus{StatusNoDriverAvailable},
		Cancellation{Reason: reason, CancelledBy: actorCustomer, At: service.nowFn()})
	if errors.Is(err, ErrStaleState) {
		return TransitionResult{}, service.raceReport(ctx, bookingID.String())
	}
	if err != nil {
		return TransitionResult{}, err
	}
	result := TransitionResult{Booking: updated}
	reversal, err := service.settlements.ReverseAndRefund(ctx, updated, reason, actorCustomer)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("reversal degraded: %v", err))
	} else {
		result.Reversal = &reversal
	}
	return result, nil
}
