package booking

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service contains the booking lifecycle logic over a Store. Consistency is
// achieved through conditional updates; a zero-row update is reported as a
// lost race, never silently retried into a different legal state.
type Service struct {
	store       Store
	settlements Settlements
	metrics     MetricsRecorder
	dispatcher  Dispatcher
	notifier    Notifier
	auditor     Auditor
	nowFn       func() time.Time
	logger      OperationLogger
}

// NewService wires a Service.
func NewService(store Store, settlements Settlements, metrics MetricsRecorder, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if settlements == nil {
		return nil, fmt.Errorf("%w: settlements dependency is nil", ErrInvalidServiceConfig)
	}
	if metrics == nil {
		return nil, fmt.Errorf("%w: metrics dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, settlements: settlements, metrics: metrics, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// CreateInput carries the fields accepted when creating a booking.
type CreateInput struct {
	Type             BookingType
	CustomerID       CustomerID
	CustomerName     string
	PaymentStatus    PaymentStatus
	TotalAmountCents int64
	PackageID        string
	PackageName      string
	// PackageCreatorID is the driver who owns the package, making it
	// exclusive to them. Admin-created packages leave it empty.
	PackageCreatorID string
	BookingDate      time.Time
	PickupTime       string
	PickupAddress    string
	DropoffAddress   string
	PickupLatitude   *float64
	PickupLongitude  *float64
	PassengerCount   int
	RideType         RideType
}

// TransitionResult reports a committed transition plus any degraded side effects.
type TransitionResult struct {
	Booking         Booking
	Warnings        []string
	Settlement      *SettlementSummary
	Reversal        *ReversalSummary
	DriverSuspended bool
}

// Create validates the input, inserts the booking in its opening status, and
// triggers dispatch. A pending earning is created up front when the booking is
// already paid.
func (service *Service) Create(ctx context.Context, input CreateInput) (TransitionResult, error) {
	result, operationError := service.create(ctx, input)
	service.logOperation(ctx, OperationLog{
		Operation: operationCreate,
		BookingID: result.Booking.ID,
		ActorID:   input.CustomerID.String(),
		ActorRole: actorCustomer,
		Warnings:  result.Warnings,
		Error:     operationError,
	})
	return result, operationError
}

func (service *Service) create(ctx context.Context, input CreateInput) (TransitionResult, error) {
	now := service.nowFn()
	record := Booking{
		Type:             input.Type,
		CustomerID:       input.CustomerID.String(),
		CustomerName:     input.CustomerName,
		PaymentStatus:    input.PaymentStatus,
		TotalAmountCents: input.TotalAmountCents,
		PackageID:        input.PackageID,
		PackageName:      input.PackageName,
		PackageCreatorID: input.PackageCreatorID,
		BookingDate:      input.BookingDate,
		PickupTime:       input.PickupTime,
		PickupAddress:    input.PickupAddress,
		DropoffAddress:   input.DropoffAddress,
		PickupLatitude:   input.PickupLatitude,
		PickupLongitude:  input.PickupLongitude,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if record.PaymentStatus == "" {
		record.PaymentStatus = PaymentPending
	}

	switch input.Type {
	case BookingTypeTour:
		if input.PackageID == "" {
			return TransitionResult{}, GuardError{Precondition: "package_required"}
		}
		if input.TotalAmountCents <= 0 {
			return TransitionResult{}, fmt.Errorf("%w: booking total must be positive", ErrInvalidAmountCents)
		}
		record.Status = StatusPending
	case BookingTypeRide:
		if input.PickupAddress == "" || input.DropoffAddress == "" {
			return TransitionResult{}, GuardError{Precondition: "addresses_required"}
		}
		active, err := service.store.ListActiveForCustomer(ctx, input.CustomerID.String())
		if err != nil {
			return TransitionResult{}, err
		}
		if len(active) > 0 {
			return TransitionResult{}, GuardError{
				Precondition: "no_active_ride",
				Detail:       "customer already has an active ride request",
			}
		}
		passengers := input.PassengerCount
		if passengers <= 0 || passengers > maxRidePassengers {
			passengers = defaultRidePassengers
		}
		rideType := input.RideType
		if rideType == "" {
			rideType = RideTypeShared
		}
		record.PassengerCount = passengers
		record.RideType = rideType
		if rideType == RideTypeInstant {
			record.FarePerPersonCents = InstantRideFareCents
			record.TotalAmountCents = InstantRideFareCents
		} else {
			record.FarePerPersonCents = SharedFarePerSeatCents
			record.TotalAmountCents = int64(passengers) * SharedFarePerSeatCents
		}
		record.Status = StatusWaitingForDriver
	default:
		return TransitionResult{}, fmt.Errorf("%w: %q", ErrInvalidBookingType, input.Type)
	}

	inserted, err := service.store.InsertBooking(ctx, record)
	if err != nil {
		return TransitionResult{}, err
	}

	result := TransitionResult{Booking: inserted}
	if inserted.PaymentStatus == PaymentPaid {
		if err := service.settlements.EnsureEarning(ctx, inserted); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("earning not created: %v", err))
		}
	}
	if service.dispatcher != nil {
		service.dispatcher.DispatchBooking(ctx, inserted)
	}
	service.audit(ctx, AuditEvent{
		ActorID:    inserted.CustomerID,
		ActorName:  inserted.CustomerName,
		ActorRole:  actorCustomer,
		Action:     "BOOKING_CREATE",
		EntityName: "bookings",
		EntityID:   inserted.ID,
		NewData:    inserted,
	}, &result)
	return result, nil
}

// DriverAccept assigns a driver to an open booking. The underlying update is
// predicated on the expected prior status so a losing concurrent accept
// observes zero rows and reports the now-current state.
func (service *Service) DriverAccept(ctx context.Context, bookingID BookingID, driverID DriverID, driverName string) (TransitionResult, error) {
	result, operationError := service.driverAccept(ctx, bookingID, driverID, driverName)
	service.logOperation(ctx, OperationLog{
		Operation: operationDriverAccept,
		BookingID: bookingID.String(),
		ActorID:   driverID.String(),
		ActorRole: actorDriver,
		Warnings:  result.Warnings,
		Error:     operationError,
	})
	return result, operationError
}

func (service *Service) driverAccept(ctx context.Context, bookingID BookingID, driverID DriverID, driverName string) (TransitionResult, error) {
	current, err := service.store.GetBooking(ctx, bookingID.String())
	if err != nil {
		return TransitionResult{}, err
	}
	if !current.IsOfferable() {
		if current.Status == StatusDriverAssigned {
			return TransitionResult{}, GuardError{Precondition: "status_offerable", Detail: "already assigned"}
		}
		return TransitionResult{}, GuardError{
			Precondition: "status_offerable",
			Detail:       fmt.Sprintf("booking is %s", current.Status),
		}
	}
	if current.ExcludesDriver(driverID.String()) {
		return TransitionResult{}, GuardError{Precondition: "driver_not_excluded", Detail: "driver previously cancelled this booking"}
	}
	if current.Type == BookingTypeTour && current.PackageCreatorID != "" && current.PackageCreatorID != driverID.String() {
		return TransitionResult{}, GuardError{Precondition: "package_creator", Detail: "package is exclusive to its creator"}
	}

	profile, err := service.store.GetDriverProfile(ctx, driverID.String())
	if err != nil {
		return TransitionResult{}, err
	}
	if !profile.Active || profile.Suspended {
		return TransitionResult{}, GuardError{Precondition: "driver_active"}
	}
	if !profile.HasEligibleVehicle {
		return TransitionResult{}, GuardError{Precondition: "vehicle_eligible", Detail: "no eligible vehicle assigned"}
	}

	activePaid, err := service.store.ListActivePaidForDriver(ctx, driverID.String())
	if err != nil {
		return TransitionResult{}, err
	}
	if len(activePaid) > 0 {
		return TransitionResult{}, GuardError{
			Precondition: "no_active_paid_booking",
			Detail:       "complete the active paid booking first",
		}
	}

	result := TransitionResult{}
	service.releaseUnpaidAssignments(ctx, driverID.String(), &result)

	now := service.nowFn()
	updated, err := service.store.AssignDriverIf(ctx, bookingID.String(),
		[]BookingStatus{StatusPending, StatusWaitingForDriver},
		DriverAssignment{DriverID: driverID.String(), DriverName: driverName, AssignedAt: now})
	if errors.Is(err, ErrStaleState) {
		return TransitionResult{}, service.raceReport(ctx, bookingID.String())
	}
	if err != nil {
		return TransitionResult{}, err
	}
	result.Booking = updated

	if service.dispatcher != nil {
		service.dispatcher.CancelSchedule(bookingID.String())
	}
	if err := service.settlements.TagDriver(ctx, updated.ID, driverID.String(), driverName); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("earning not tagged: %v", err))
	}
	service.notify(ctx, NotificationMessage{
		Title:         "Driver Assigned",
		Body:          fmt.Sprintf("%s has been assigned as your driver.", driverName),
		Kind:          "booking",
		BookingID:     updated.ID,
		RecipientRole: "customer",
		RecipientIDs:  []string{updated.CustomerID},
	}, &result)
	service.audit(ctx, AuditEvent{
		ActorID:    driverID.String(),
		ActorName:  driverName,
		ActorRole:  actorDriver,
		Action:     "ASSIGN_DRIVER",
		EntityName: "bookings",
		EntityID:   updated.ID,
		OldData:    current,
		NewData:    updated,
	}, &result)
	return result, nil
}

// releaseUnpaidAssignments auto-cancels the driver's other unpaid assigned
// bookings so a fresh acceptance is not blocked by stale unpaid holds.
func (service *Service) releaseUnpaidAssignments(ctx context.Context, driverID string, result *TransitionResult) {
	unpaid, err := service.store.ListUnpaidAssignedForDriver(ctx, driverID)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("unpaid assignment check failed: %v", err))
		return
	}
	for _, stale := range unpaid {
		cancelled, err := service.store.MarkCancelledIf(ctx, stale.ID,
			[]BookingStatus{StatusDriverAssigned},
			Cancellation{
				Reason:      "Driver accepted another booking before payment",
				CancelledBy: actorSystem,
				At:          service.nowFn(),
				ClearDriver: true,
			})
		if err != nil {
			if !errors.Is(err, ErrStaleState) {
				result.Warnings = append(result.Warnings, fmt.Sprintf("unpaid booking %s not released: %v", stale.ID, err))
			}
			continue
		}
		service.notify(ctx, NotificationMessage{
			Title:         "Booking Cancelled - Payment Required",
			Body:          "Your booking was cancelled because payment was not completed in time.",
			Kind:          "booking",
			BookingID:     cancelled.ID,
			RecipientRole: "customer",
			RecipientIDs:  []string{cancelled.CustomerID},
		}, result)
	}
}

// Start transitions a paid, driver-assigned booking to in_progress. Calling it
// on a booking that is already in progress reports success.
func (service *Service) Start(ctx context.Context, bookingID BookingID, driverID DriverID) (TransitionResult, error) {
	result, operationError := service.start(ctx, bookingID, driverID)
	service.logOperation(ctx, OperationLog{
		Operation: operationStart,
		BookingID: bookingID.String(),
		ActorID:   driverID.String(),
		ActorRole: actorDriver,
		Warnings:  result.Warnings,
		Error:     operationError,
	})
	return result, operationError
}

func (service *Service) start(ctx context.Context, bookingID BookingID, driverID DriverID) (TransitionResult, error) {
	current, err := service.store.GetBooking(ctx, bookingID.String())
	if err != nil {
		return TransitionResult{}, err
	}
	if current.DriverID != driverID.String() {
		return TransitionResult{}, GuardError{Precondition: "assigned_driver", Detail: "only the assigned driver can start"}
	}
	if current.Status == StatusInProgress {
		return TransitionResult{Booking: current}, nil
	}
	if current.Status != StatusDriverAssigned {
		return TransitionResult{}, GuardError{
			Precondition: "status_driver_assigned",
			Detail:       fmt.Sprintf("booking is %s", current.Status),
		}
	}
	if current.Type == BookingTypeTour && current.PaymentStatus != PaymentPaid {
		return TransitionResult{}, GuardError{Precondition: "payment_paid", Detail: "payment must be completed before starting"}
	}

	updated, err := service.store.MarkStartedIf(ctx, bookingID.String(), service.nowFn())
	if errors.Is(err, ErrStaleState) {
		reread, rereadErr := service.store.GetBooking(ctx, bookingID.String())
		if rereadErr != nil {
			return TransitionResult{}, rereadErr
		}
		if reread.Status == StatusInProgress && reread.DriverID == driverID.String() {
			return TransitionResult{Booking: reread}, nil
		}
		return TransitionResult{}, RaceError{CurrentStatus: reread.Status}
	}
	if err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{Booking: updated}, nil
}

// Complete finalizes an in-progress booking: conditional update to completed,
// then settlement and completion metrics. Settlement failure degrades the
// committed transition to a warning, never an error.
func (service *Service) Complete(ctx context.Context, bookingID BookingID, driverID DriverID, verificationPhotoRef string) (TransitionResult, error) {
	result, operationError := service.complete(ctx, bookingID, driverID, verificationPhotoRef)
	service.logOperation(ctx, OperationLog{
		Operation: operationComplete,
		BookingID: bookingID.String(),
		ActorID:   driverID.String(),
		ActorRole: actorDriver,
		Warnings:  result.Warnings,
		Error:     operationError,
	})
	return result, operationError
}

func (service *Service) complete(ctx context.Context, bookingID BookingID, driverID DriverID, verificationPhotoRef string) (TransitionResult, error) {
	current, err := service.store.GetBooking(ctx, bookingID.String())
	if err != nil {
		return TransitionResult{}, err
	}
	if current.Status == StatusCompleted {
		return TransitionResult{Booking: current}, nil
	}
	if current.Status == StatusCancelled {
		return TransitionResult{}, GuardError{Precondition: "status_not_cancelled", Detail: "cannot complete a cancelled booking"}
	}
	if current.DriverID != driverID.String() {
		return TransitionResult{}, GuardError{Precondition: "assigned_driver", Detail: "only the assigned driver can complete"}
	}

	expected := []BookingStatus{StatusInProgress}
	if current.Type == BookingTypeRide {
		// Rides may be completed straight from assignment.
		expected = []BookingStatus{StatusDriverAssigned, StatusInProgress}
	}
	allowed := false
	for _, status := range expected {
		if current.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return TransitionResult{}, GuardError{
			Precondition: "status_in_progress",
			Detail:       fmt.Sprintf("booking is %s", current.Status),
		}
	}

	result := TransitionResult{}
	if current.Type == BookingTypeTour {
		if verificationPhotoRef != "" {
			if err := service.store.SetVerificationPhoto(ctx, current.ID, verificationPhotoRef, service.nowFn()); err != nil {
				return TransitionResult{}, err
			}
			current.VerificationPhoto = verificationPhotoRef
		}
		if current.VerificationPhoto == "" {
			return TransitionResult{}, GuardError{Precondition: "verification_photo", Detail: "verification photo is required to complete a tour"}
		}
	}

	updated, err := service.store.MarkCompletedIf(ctx, bookingID.String(), expected, service.nowFn())
	if errors.Is(err, ErrStaleState) {
		reread, rereadErr := service.store.GetBooking(ctx, bookingID.String())
		if rereadErr != nil {
			return TransitionResult{}, rereadErr
		}
		if reread.Status == StatusCompleted {
			return TransitionResult{Booking: reread}, nil
		}
		return TransitionResult{}, RaceError{CurrentStatus: reread.Status}
	}
	if err != nil {
		return TransitionResult{}, err
	}
	result.Booking = updated

	summary, err := service.settlements.Finalize(ctx, updated)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("settlement degraded: %v", err))
	} else {
		result.Settlement = &summary
	}
	if err := service.metrics.RecordCompletion(ctx, driverID.String(), updated.ID, updated.Type.String()); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("completion metrics degraded: %v", err))
	}
	service.audit(ctx, AuditEvent{
		ActorID:    driverID.String(),
		ActorName:  updated.DriverName,
		ActorRole:  actorDriver,
		Action:     "COMPLETE_BOOKING",
		EntityName: "bookings",
		EntityID:   updated.ID,
		OldData:    current,
		NewData:    updated,
	}, &result)
	return result, nil
}

// raceReport re-reads the booking after a lost conditional update and reports
// its now-current status.
func (service *Service) raceReport(ctx context.Context, bookingID string) error {
	reread, err := service.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	return RaceError{CurrentStatus: reread.Status}
}

func (service *Service) notify(ctx context.Context, message NotificationMessage, result *TransitionResult) {
	if service.notifier == nil {
		return
	}
	if err := service.notifier.Notify(ctx, message); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("notification degraded: %v", err))
	}
}

func (service *Service) audit(ctx context.Context, event AuditEvent, result *TransitionResult) {
	if service.auditor == nil {
		return
	}
	if err := service.auditor.Record(ctx, event); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("audit degraded: %v", err))
	}
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
