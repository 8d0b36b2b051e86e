package booking

import (
	"fmt"
	"strings"
	"time"
)

// AmountCents is an integer currency amount in centavos.
type AmountCents int64

// Int64 returns the raw amount.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// BookingID identifies a booking.
type BookingID struct {
	value string
}

// CustomerID identifies the customer who owns a booking.
type CustomerID struct {
	value string
}

// DriverID identifies a driver.
type DriverID struct {
	value string
}

// BookingType distinguishes scheduled tour-package bookings from on-demand rides.
type BookingType string

const (
	BookingTypeTour BookingType = "tour"
	BookingTypeRide BookingType = "ride"
)

// BookingStatus enumerates the booking lifecycle.
type BookingStatus string

const (
	StatusPending           BookingStatus = "pending"
	StatusWaitingForDriver  BookingStatus = "waiting_for_driver"
	StatusDriverAssigned    BookingStatus = "driver_assigned"
	StatusInProgress        BookingStatus = "in_progress"
	StatusCompleted         BookingStatus = "completed"
	StatusCancelled         BookingStatus = "cancelled"
	StatusNoDriverAvailable BookingStatus = "no_driver_available"
)

// PaymentStatus enumerates payment states the engine cares about.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// RideType selects the fare model for on-demand bookings.
type RideType string

const (
	RideTypeInstant RideType = "instant"
	RideTypeShared  RideType = "shared"
)

// Booking is one customer's request for a scheduled tour or an on-demand ride.
type Booking struct {
	ID                 string
	Type               BookingType
	CustomerID         string
	CustomerName       string
	DriverID           string
	DriverName         string
	Status             BookingStatus
	PaymentStatus      PaymentStatus
	TotalAmountCents   int64
	PackageID          string
	PackageName        string
	PackageCreatorID   string
	BookingDate        time.Time
	PickupTime         string
	PickupAddress      string
	DropoffAddress     string
	PickupLatitude     *float64
	PickupLongitude    *float64
	PassengerCount     int
	RideType           RideType
	FarePerPersonCents int64
	VerificationPhoto  string
	ExcludedDriverIDs  []string
	CancelReason       string
	CancelledBy        string
	CancelledAt        *time.Time
	TimeoutReason      string
	TimedOutAt         *time.Time
	DriverAssignedAt   *time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsOfferable reports whether the booking can still be offered to drivers.
func (booking Booking) IsOfferable() bool {
	return booking.Status == StatusPending || booking.Status == StatusWaitingForDriver
}

// HasDriver reports whether a driver is currently assigned.
func (booking Booking) HasDriver() bool {
	return booking.DriverID != ""
}

// ExcludesDriver reports whether the driver previously cancelled this booking.
func (booking Booking) ExcludesDriver(driverID string) bool {
	for _, excluded := range booking.ExcludedDriverIDs {
		if excluded == driverID {
			return true
		}
	}
	return false
}

// OpenStatus is the offerable status matching the booking type.
func (booking Booking) OpenStatus() BookingStatus {
	if booking.Type == BookingTypeRide {
		return StatusWaitingForDriver
	}
	return StatusPending
}

// NewBookingID validates and normalizes a booking id.
func NewBookingID(raw string) (BookingID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return BookingID{}, fmt.Errorf("%w: empty value", ErrInvalidBookingID)
	}
	return BookingID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id BookingID) String() string {
	return id.value
}

// NewCustomerID validates and normalizes a customer id.
func NewCustomerID(raw string) (CustomerID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CustomerID{}, fmt.Errorf("%w: empty value", ErrInvalidCustomerID)
	}
	return CustomerID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id CustomerID) String() string {
	return id.value
}

// NewDriverID validates and normalizes a driver id.
func NewDriverID(raw string) (DriverID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DriverID{}, fmt.Errorf("%w: empty value", ErrInvalidDriverID)
	}
	return DriverID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id DriverID) String() string {
	return id.value
}

// ParseBookingType rejects unknown booking type strings at the boundary.
func ParseBookingType(raw string) (BookingType, error) {
	switch BookingType(raw) {
	case BookingTypeTour, BookingTypeRide:
		return BookingType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBookingType, raw)
}

// ParseBookingStatus rejects unknown status strings at the boundary.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	switch BookingStatus(raw) {
	case StatusPending, StatusWaitingForDriver, StatusDriverAssigned,
		StatusInProgress, StatusCompleted, StatusCancelled, StatusNoDriverAvailable:
		return BookingStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBookingStatus, raw)
}

// ParsePaymentStatus rejects unknown payment status strings at the boundary.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	switch PaymentStatus(raw) {
	case PaymentPending, PaymentPaid:
		return PaymentStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPaymentStatus, raw)
}

// ParseRideType rejects unknown ride type strings at the boundary.
func ParseRideType(raw string) (RideType, error) {
	switch RideType(raw) {
	case RideTypeInstant, RideTypeShared:
		return RideType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRideType, raw)
}

// String returns the status value.
func (status BookingStatus) String() string {
	return string(status)
}

// String returns the type value.
func (bookingType BookingType) String() string {
	return string(bookingType)
}
