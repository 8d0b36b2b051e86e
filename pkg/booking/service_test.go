package booking

import (
	"context"
	"errors"
	"testing"
)

func TestCreateTourBookingStartsPending(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)

	result, err := harness.service.Create(context.Background(), CreateInput{
		Type:             BookingTypeTour,
		CustomerID:       mustCustomerID(t, "cust-1"),
		CustomerName:     "Ana",
		TotalAmountCents: 250_000,
		PackageID:        "pkg-1",
		PackageName:      "Island Hopping",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Booking.Status != StatusPending {
		t.Fatalf("expected pending, got %s", result.Booking.Status)
	}
	if len(harness.dispatcher.dispatched) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(harness.dispatcher.dispatched))
	}
	if harness.settlements.callCount("ensure") != 0 {
		t.Fatalf("unpaid booking must not create an earning")
	}
}

func TestCreateTourRequiresPackage(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)

	_, err := harness.service.Create(context.Background(), CreateInput{
		Type:             BookingTypeTour,
		CustomerID:       mustCustomerID(t, "cust-1"),
		TotalAmountCents: 100,
	})
	if !errors.Is(err, ErrGuardViolation) {
		t.Fatalf("expected guard violation, got %v", err)
	}
}

func TestCreatePaidTourCreatesEarning(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)

	_, err := harness.service.Create(context.Background(), CreateInput{
		Type:             BookingTypeTour,
		CustomerID:       mustCustomerID(t, "cust-1"),
		TotalAmountCents: 100_000,
		PackageID:        "pkg-1",
		PaymentStatus:    PaymentPaid,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if harness.settlements.callCount("ensure") != 1 {
		t.Fatalf("expected pending earning for paid booking")
	}
}

func TestCreateSharedRideDerivesFareFromSeats(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)

	result, err := harness.service.Create(context.Background(), CreateInput{
		Type:           BookingTypeRide,
		CustomerID:     mustCustomerID(t, "cust-2"),
		PickupAddress:  "Carbon Market",
		DropoffAddress: "IT Park",
		PassengerCount: 3,
		RideType:       RideTypeShared,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Booking.Status != StatusWaitingForDriver {
		t.Fatalf("expected waiting_for_driver, got %s", result.Booking.Status)
	}
	if result.Booking.TotalAmountCents != 3*SharedFarePerSeatCents {
		t.Fatalf("expected fare %d, got %d", 3*SharedFarePerSeatCents, result.Booking.TotalAmountCents)
	}
}

func TestCreateInstantRideUsesFlatFare(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)

	result, err := harness.service.Create(context.Background(), CreateInput{
		Type:           BookingTypeRide,
		CustomerID:     mustCustomerID(t, "cust-3"),
		PickupAddress:  "Ayala",
		DropoffAddress: "SM Seaside",
		PassengerCount: 4,
		RideType:       RideTypeInstant,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Booking.TotalAmountCents != InstantRideFareCents {
		t.Fatalf("expected flat fare %d, got %d", InstantRideFareCents, result.Booking.TotalAmountCents)
	}
}

func TestCreateRideRejectsSecondActiveRide(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)
	harness.store.put(Booking{
		Type:       BookingTypeRide,
		CustomerID: "cust-4",
		Status:     StatusWaitingForDriver,
	})

	_, err := harness.service.Create(context.Background(), CreateInput{
		Type:           BookingTypeRide,
		CustomerID:     mustCustomerID(t, "cust-4"),
		PickupAddress:  "A",
		DropoffAddress: "B",
	})
	var guardError GuardError
	if !errors.As(err, &guardError) || guardError.Precondition != "no_active_ride" {
		t.Fatalf("expected no_active_ride guard, got %v", err)
	}
}

func TestDriverAcceptAssignsAndTagsEarning(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)
	record := harness.store.put(Booking{
		Type:          BookingTypeTour,
		CustomerID:    "cust-1",
		Status:        StatusPending,
		PaymentStatus: PaymentPaid,
	})

	result, err := harness.service.DriverAccept(context.Background(),
		mustBookingID(t, record.ID), mustDriverID(t, "drv-1"), "Berto")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if result.Booking.Status != StatusDriverAssigned || result.Booking.DriverID != "drv-1" {
		t.Fatalf("unexpected assignment: %+v", result.Booking)
	}
	if harness.settlements.callCount("tag") != 1 {
		t.Fatalf("expected earning tagged to driver")
	}
	if len(harness.dispatcher.cancelled) != 1 {
		t.Fatalf("expected offer schedule cancelled")
	}
	if len(harness.notifier.messages) != 1 || harness.notifier.messages[0].RecipientRole != "customer" {
		t.Fatalf("expected customer notification, got %+v", harness.notifier.messages)
	}
}

func TestDriverAcceptRejectsExcludedDriver(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)
	record := harness.store.put(Booking{
		Type:              BookingTypeRide,
		CustomerID:        "cust-1",
		Status:            StatusWaitingForDriver,
		ExcludedDriverIDs: []string{"drv-9"},
	})

	_, err := harness.service.DriverAccept(context.Background(),
		mustBookingID(t, record.ID), mustDriverID(t, "drv-9"), "Berto")
	var guardError GuardError
	if !errors.As(err, &guardError) || guardError.Precondition != "driver_not_excluded" {
		t.Fatalf("expected driver_not_excluded guard, got %v", err)
	}
}

func TestDriverAcceptRejectsSuspendedDriver(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)
	record := harness.store.put(Booking{
		Type:       BookingTypeTour,
		CustomerID: "cust-1",
		PackageID:  "pkg-1",
		Status:     StatusPending,
	})
	harness.store.profiles["drv-2"] = DriverProfile{
		DriverID: "drv-2", Active: true, Suspended: true, HasEligibleVehicle: true,
	}

	_, err := harness.service.DriverAccept(context.Background(),
		mustBookingID(t, record.ID), mustDriverID(t, "drv-2"), "Berto")
	var guardError GuardError
	if !errors.As(err, &guardError) || guardError.Precondition != "driver_active" {
		t.Fatalf("expected driver_active guard, got %v", err)
	}
}

func TestDriverAcceptRejectsCreatorExclusivePackage(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)
	record := harness.store.put(Booking{
		Type:             BookingTypeTour,
		CustomerID:       "cust-1",
		PackageID:        "pkg-1",
		PackageCreatorID: "drv-owner",
		Status:           StatusPending,
	})

	_, err := harness.service.DriverAccept(context.Background(),
		mustBookingID(t, record.ID), mustDriverID(t, "drv-other"), "Berto")
	var guardError GuardError
	if !errors.As(err, &guardError) || guardError.Precondition != "package_creator" {
		t.Fatalf("expected package_creator guard, got %v", err)
	}
}

func TestDriverAcceptLosesRaceReportsCurrentStatus(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)
	record := harness.store.put(Booking{
		Type:       BookingTypeRide,
		CustomerID: "cust-1",
		Status:     StatusWaitingForDriver,
	})

	first, err := harness.service.DriverAccept(context.Background(),
		mustBookingID(t, record.ID), mustDriverID(t, "drv-1"), "First")
	if err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if first.Booking.DriverID != "drv-1" {
		t.Fatalf("expected drv-1 assigned")
	}

	_, err = harness.service.DriverAccept(context.Background(),
		mustBookingID(t, record.ID), mustDriverID(t, "drv-2"), "Second")
	var guardError GuardError
	if !errors.As(err, &guardError) || guardError.Precondition != "status_offerable" {
		t.Fatalf("expected status_offerable guard for losing driver, got %v", err)
	}
}

func TestDriverAcceptReleasesStaleUnpaidAssignment(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)
	stale := harness.store.put(Booking{
		Type:          BookingTypeTour,
		CustomerID:    "cust-old",
		DriverID:      "drv-1",
		Status:        StatusDriverAssigned,
		PaymentStatus: PaymentPending,
	})
	fresh := harness.store.put(Booking{
		Type:       BookingTypeRide,
		CustomerID: "cust-new",
		Status:     StatusWaitingForDriver,
	})

	_, err := harness.service.DriverAccept(context.Background(),
		mustBookingID(t, fresh.ID), mustDriverID(t, "drv-1"), "Berto")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	released := harness.store.bookings[stale.ID]
	if released.Status != StatusCancelled || released.DriverID != "" {
		t.Fatalf("expected stale unpaid booking released, got %+v", released)
	}
}

func TestDriverAcceptBlockedByActivePaidBooking(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)
	harness.store.put(Booking{
		Type:          BookingTypeTour,
		CustomerID:    "cust-old",
		DriverID:      "drv-1",
		Status:        StatusInProgress,
		PaymentStatus: PaymentPaid,
	})
	fresh := harness.store.put(Booking{
		Type:       BookingTypeRide,
		CustomerID: "cust-new",
		Status:     StatusWaitingForDriver,
	})

	_, err := harness.service.DriverAccept(context.Background(),
		mustBookingID(t, fresh.ID), mustDriverID(t, "drv-1"), "Berto")
	var guardError GuardError
	if !errors.As(err, &guardError) || guardError.Precondition != "no_active_paid_booking" {
		t.Fatalf("expected no_active_paid_booking guard, got %v", err)
	}
}

func TestStartRequiresPaidTour(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)
	record := harness.store.put(Booking{
		Type:          BookingTypeTour,
		CustomerID:    "cust-1",
		DriverID:      "drv-1",
		Status:        StatusDriverAssigned,
		PaymentStatus: PaymentPending,
	})

	_, err := harness.service.Start(context.Background(),
		mustBookingID(t, record.ID), mustDriverID(t, "drv-1"))
	var guardError GuardError
	if !errors.As(err, &guardError) || guardError.Precondition != "payment_paid" {
		t.Fatalf("expected payment_paid guard, got %v", err)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)
	record := harness.store.put(Booking{
		Type:          BookingTypeTour,
		CustomerID:    "cust-1",
		DriverID:      "drv-1",
		Status:        StatusDriverAssigned,
		PaymentStatus: PaymentPaid,
	})

	if _, err := harness.service.Start(context.Background(),
		mustBookingID(t, record.ID), mustDriverID(t, "drv-1")); err != nil {
		t.Fatalf("first start: %v", err)
	}
	result, err := harness.service.Start(context.Background(),
		mustBookingID(t, record.ID), mustDriverID(t, "drv-1"))
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if result.Booking.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %s", result.Booking.Status)
	}
}

func TestStartRejectsOtherDriver(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)
	record := harness.store.put(Booking{
		Type:          BookingTypeTour,
		CustomerID:    "cust-1",
		DriverID:      "drv-1",
		Status:        StatusDriverAssigned,
		PaymentStatus: PaymentPaid,
	})

	_, err := harness.service.Start(context.Background(),
		mustBookingID(t, record.ID), mustDriverID(t, "drv-2"))
	var guardError GuardError
	if !errors.As(err, &guardError) || guardError.Precondition != "assigned_driver" {
		t.Fatalf("expected assigned_driver guard, got %v", err)
	}
}

func TestCompleteTourRequiresVerificationPhoto(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)
	record := harness.store.put(Booking{
		Type:          BookingTypeTour,
		CustomerID:    "cust-1",
		DriverID:      "drv-1",
		Status:        StatusInProgress,
		PaymentStatus: PaymentPaid,
	})

	_, err := harness.service.Complete(context.Background(),
		mustBookingID(t, record.ID), mustDriverID(t, "drv-1"), "")
	var guardError GuardError
	if !errors.As(err, &guardError) || guardError.Precondition != "verification_photo" {
		t.Fatalf("expected verification_photo guard, got %v", err)
	}
}

func TestCompleteTourFinalizesSettlement(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)
	harness.settlements.summary = SettlementSummary{
		EarningID:        "earn-1",
		TotalCents:       100_000,
		DriverShareCents: 80_000,
		AdminShareCents:  20_000,
	}
	record := harness.store.put(Booking{
		Type:             BookingTypeTour,
		CustomerID:       "cust-1",
		DriverID:         "drv-1",
		Status:           StatusInProgress,
		PaymentStatus:    PaymentPaid,
		TotalAmountCents: 100_000,
	})

	result, err := harness.service.Complete(context.Background(),
		mustBookingID(t, record.ID), mustDriverID(t, "drv-1"), "photos/proof.jpg")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.Booking.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Booking.Status)
	}
	if result.Settlement == nil || result.Settlement.DriverShareCents != 80_000 {
		t.Fatalf("expected settlement summary, got %+v", result.Settlement)
	}
	if len(harness.metrics.completions) != 1 {
		t.Fatalf("expected completion recorded")
	}
}

func TestCompleteRideAllowedFromAssignment(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)
	record := harness.store.put(Booking{
		Type:          BookingTypeRide,
		CustomerID:    "cust-1",
		DriverID:      "drv-1",
		Status:        StatusDriverAssigned,
		PaymentStatus: PaymentPaid,
	})

	result, err := harness.service.Complete(context.Background(),
		mustBookingID(t, record.ID), mustDriverID(t, "drv-1"), "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.Booking.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Booking.Status)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)
	record := harness.store.put(Booking{
		Type:       BookingTypeRide,
		CustomerID: "cust-1",
		DriverID:   "drv-1",
		Status:     StatusCompleted,
	})

	result, err := harness.service.Complete(context.Background(),
		mustBookingID(t, record.ID), mustDriverID(t, "drv-1"), "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.Booking.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Booking.Status)
	}
	if harness.settlements.callCount("finalize") != 0 {
		t.Fatalf("repeat completion must not re-finalize")
	}
}

func TestCompleteSettlementFailureDegradesToWarning(t *testing.T) {
	t.Parallel()
	harness := newTestHarness(t)
	harness.settlements.finalizeErr = errors.New("ledger offline")
	record := harness.store.put(Booking{
		Type:          BookingTypeRide,
		CustomerID:    "cust-1",
		DriverID:      "drv-1",
		Status:        StatusInProgress,
		PaymentStatus: PaymentPaid,
	})

	result, err := harness.service.Complete(context.Background(),
		mustBookingID(t, record.ID), mustDriverID(t, "drv-1"), "")
	if err != nil {
		t.Fatalf("complete must commit despite settlement failure, got %v", err)
	}
	if result.Booking.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Booking.Status)
	}
	if len(result.Warnings) == 0 {
		t.Fatalf("expected settlement warning")
	}
}
