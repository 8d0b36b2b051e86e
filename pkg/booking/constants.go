package booking

import "time"

const (
	operationCreate         = "create"
	operationDriverAccept   = "driver_accept"
	operationStart          = "start"
	operationComplete       = "complete"
	operationCustomerCancel = "customer_cancel"
	operationDriverCancel   = "driver_cancel"
	operationUnpaidSweep    = "unpaid_sweep"
	operationPendingSweep   = "pending_sweep"
	operationRebook         = "rebook"
	operationCancelTimedOut = "cancel_timed_out"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	actorSystem   = "system"
	actorCustomer = "customer"
	actorDriver   = "driver"

	// UnpaidAssignmentWindow is how long a driver-assigned booking may stay
	// unpaid before the sweep cancels it.
	UnpaidAssignmentWindow = 3 * time.Hour

	// UnclaimedWindow is how long a pending booking may stay unclaimed before
	// the sweep marks it no_driver_available.
	UnclaimedWindow = 6 * time.Hour

	unpaidCancelReason  = "Automatic cancellation - payment not completed within 3 hours"
	unclaimedTimeoutMsg = "No driver accepted within 6 hours"

	// Fixed fares for on-demand rides, in centavos.
	InstantRideFareCents   int64 = 4000
	SharedFarePerSeatCents int64 = 1000
	maxRidePassengers            = 4
	defaultRidePassengers        = 1
)
