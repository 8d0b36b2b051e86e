package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/SugboTransitLab/marketplace/pkg/booking"
)

var _ booking.Store = (*Store)(nil)

func wrapBookingError(code string, err error) error {
	return booking.WrapError(errorOperationStore, errorSubjectBooking, code, err)
}

// InsertBooking persists a new booking and returns it with its generated id.
func (store *Store) InsertBooking(ctx context.Context, record booking.Booking) (booking.Booking, error) {
	row, err := toBookingRow(record)
	if err != nil {
		return booking.Booking{}, wrapBookingError(errorCodeInvalid, err)
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	row.UpdatedAt = row.CreatedAt
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return booking.Booking{}, wrapBookingError(errorCodeInsert, err)
	}
	return toDomainBooking(row)
}

// GetBooking returns one booking by id.
func (store *Store) GetBooking(ctx context.Context, bookingID string) (booking.Booking, error) {
	var row BookingRecord
	err := store.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Booking{}, wrapBookingError(errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return booking.Booking{}, wrapBookingError(errorCodeGet, err)
	}
	return toDomainBooking(row)
}

// ListBookings returns bookings matching the filter, newest first.
func (store *Store) ListBookings(ctx context.Context, filter booking.Filter) ([]booking.Booking, error) {
	query := store.db.WithContext(ctx).Model(&BookingRecord{})
	if filter.Status != nil {
		query = query.Where("status = ?", filter.Status.String())
	}
	if filter.Type != nil {
		query = query.Where("booking_type = ?", filter.Type.String())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	var rows []BookingRecord
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, wrapBookingError(errorCodeList, err)
	}
	return toDomainBookings(rows)
}

// ListForCustomer returns all of a customer's bookings, newest first.
func (store *Store) ListForCustomer(ctx context.Context, customerID string) ([]booking.Booking, error) {
	var rows []BookingRecord
	err := store.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapBookingError(errorCodeList, err)
	}
	return toDomainBookings(rows)
}

// ListForDriver returns all bookings assigned to the driver, newest first.
func (store *Store) ListForDriver(ctx context.Context, driverID string) ([]booking.Booking, error) {
	var rows []BookingRecord
	err := store.db.WithContext(ctx).
		Where("driver_id = ?", driverID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapBookingError(errorCodeList, err)
	}
	return toDomainBookings(rows)
}

// AssignDriverIf writes the assignment only while the booking still holds one
// of the expected statuses.
func (store *Store) AssignDriverIf(ctx context.Context, bookingID string, expected []booking.BookingStatus, assignment booking.DriverAssignment) (booking.Booking, error) {
	return store.updateBookingIf(ctx, bookingID, expected, map[string]any{
		"status":             booking.StatusDriverAssigned.String(),
		"driver_id":          assignment.DriverID,
		"driver_name":        assignment.DriverName,
		"driver_assigned_at": assignment.AssignedAt,
		"updated_at":         assignment.AssignedAt,
	})
}

// MarkStartedIf moves driver_assigned to in_progress.
func (store *Store) MarkStartedIf(ctx context.Context, bookingID string, startedAt time.Time) (booking.Booking, error) {
	return store.updateBookingIf(ctx, bookingID,
		[]booking.BookingStatus{booking.StatusDriverAssigned},
		map[string]any{
			"status":     booking.StatusInProgress.String(),
			"started_at": startedAt,
			"updated_at": startedAt,
		})
}

// MarkCompletedIf closes a booking from one of the expected statuses.
func (store *Store) MarkCompletedIf(ctx context.Context, bookingID string, expected []booking.BookingStatus, completedAt time.Time) (booking.Booking, error) {
	return store.updateBookingIf(ctx, bookingID, expected, map[string]any{
		"status":       booking.StatusCompleted.String(),
		"completed_at": completedAt,
		"updated_at":   completedAt,
	})
}

// MarkCancelledIf cancels a booking from one of the expected statuses.
func (store *Store) MarkCancelledIf(ctx context.Context, bookingID string, expected []booking.BookingStatus, cancellation booking.Cancellation) (booking.Booking, error) {
	updates := map[string]any{
		"status":        booking.StatusCancelled.String(),
		"cancel_reason": cancellation.Reason,
		"cancelled_by":  cancellation.CancelledBy,
		"cancelled_at":  cancellation.At,
		"updated_at":    cancellation.At,
	}
	if cancellation.ClearDriver {
		updates["driver_id"] = nil
		updates["driver_name"] = ""
		updates["driver_assigned_at"] = nil
	}
	return store.updateBookingIf(ctx, bookingID, expected, updates)
}

// ReleaseDriverIf clears the assignment after a driver cancel, appending the
// driver to the exclusion list so reoffers skip them.
func (store *Store) ReleaseDriverIf(ctx context.Context, bookingID string, release booking.DriverRelease) (booking.Booking, error) {
	current, err := store.GetBooking(ctx, bookingID)
	if err != nil {
		return booking.Booking{}, err
	}
	excluded := current.ExcludedDriverIDs
	if release.ExcludeDriverID != "" && !current.ExcludesDriver(release.ExcludeDriverID) {
		excluded = append(excluded, release.ExcludeDriverID)
	}
	excludedJSON, err := json.Marshal(excluded)
	if err != nil {
		return booking.Booking{}, wrapBookingError(errorCodeInvalid, err)
	}
	return store.updateBookingIf(ctx, bookingID,
		[]booking.BookingStatus{booking.StatusDriverAssigned, booking.StatusInProgress},
		map[string]any{
			"status":              release.NewStatus.String(),
			"driver_id":           nil,
			"driver_name":         "",
			"driver_assigned_at":  nil,
			"started_at":          nil,
			"cancel_reason":       release.Reason,
			"excluded_driver_ids": excludedJSON,
			"updated_at":          release.At,
		})
}

// MarkNoDriverAvailableIf times out a booking nobody claimed.
func (store *Store) MarkNoDriverAvailableIf(ctx context.Context, bookingID string, reason string, at time.Time) (booking.Booking, error) {
	return store.updateBookingIf(ctx, bookingID,
		[]booking.BookingStatus{booking.StatusPending, booking.StatusWaitingForDriver},
		map[string]any{
			"status":         booking.StatusNoDriverAvailable.String(),
			"timeout_reason": reason,
			"timed_out_at":   at,
			"updated_at":     at,
		})
}

// ReopenTimedOutIf re-opens a timed-out booking with a fresh date.
func (store *Store) ReopenTimedOutIf(ctx context.Context, bookingID string, newDate time.Time, at time.Time) (booking.Booking, error) {
	current, err := store.GetBooking(ctx, bookingID)
	if err != nil {
		return booking.Booking{}, err
	}
	return store.updateBookingIf(ctx, bookingID,
		[]booking.BookingStatus{booking.StatusNoDriverAvailable},
		map[string]any{
			"status":         current.OpenStatus().String(),
			"booking_date":   newDate,
			"timeout_reason": "",
			"timed_out_at":   nil,
			"updated_at":     at,
		})
}

// SetVerificationPhoto stores the completion verification reference.
func (store *Store) SetVerificationPhoto(ctx context.Context, bookingID string, photoRef string, at time.Time) error {
	result := store.db.WithContext(ctx).
		Model(&BookingRecord{}).
		Where("booking_id = ?", bookingID).
		Updates(map[string]any{"verification_photo": photoRef, "updated_at": at})
	if result.Error != nil {
		return wrapBookingError(errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapBookingError(errorCodeUpdate, booking.ErrNotFound)
	}
	return nil
}

// ListActiveForCustomer returns the customer's bookings still in flight.
func (store *Store) ListActiveForCustomer(ctx context.Context, customerID string) ([]booking.Booking, error) {
	var rows []BookingRecord
	err := store.db.WithContext(ctx).
		Where("customer_id = ? AND status IN ?", customerID, openedStatuses()).
		Find(&rows).Error
	if err != nil {
		return nil, wrapBookingError(errorCodeList, err)
	}
	return toDomainBookings(rows)
}

// ListActivePaidForDriver returns paid bookings the driver is working.
func (store *Store) ListActivePaidForDriver(ctx context.Context, driverID string) ([]booking.Booking, error) {
	var rows []BookingRecord
	err := store.db.WithContext(ctx).
		Where("driver_id = ? AND payment_status = ? AND status IN ?",
			driverID, booking.PaymentPaid,
			[]string{booking.StatusDriverAssigned.String(), booking.StatusInProgress.String()}).
		Find(&rows).Error
	if err != nil {
		return nil, wrapBookingError(errorCodeList, err)
	}
	return toDomainBookings(rows)
}

// ListUnpaidAssignedForDriver returns the driver's assigned-but-unpaid holds.
func (store *Store) ListUnpaidAssignedForDriver(ctx context.Context, driverID string) ([]booking.Booking, error) {
	var rows []BookingRecord
	err := store.db.WithContext(ctx).
		Where("driver_id = ? AND payment_status = ? AND status = ?",
			driverID, booking.PaymentPending, booking.StatusDriverAssigned.String()).
		Find(&rows).Error
	if err != nil {
		return nil, wrapBookingError(errorCodeList, err)
	}
	return toDomainBookings(rows)
}

// ListUnpaidAssignedBefore returns assigned-but-unpaid bookings whose
// assignment predates the cutoff, for the unpaid sweep.
func (store *Store) ListUnpaidAssignedBefore(ctx context.Context, cutoff time.Time) ([]booking.Booking, error) {
	var rows []BookingRecord
	err := store.db.WithContext(ctx).
		Where("payment_status = ? AND status = ? AND driver_assigned_at < ?",
			booking.PaymentPending, booking.StatusDriverAssigned.String(), cutoff).
		Find(&rows).Error
	if err != nil {
		return nil, wrapBookingError(errorCodeList, err)
	}
	return toDomainBookings(rows)
}

// ListPendingCreatedBefore returns unclaimed bookings older than the cutoff,
// for the pending sweep.
func (store *Store) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]booking.Booking, error) {
	var rows []BookingRecord
	err := store.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]string{booking.StatusPending.String(), booking.StatusWaitingForDriver.String()}, cutoff).
		Find(&rows).Error
	if err != nil {
		return nil, wrapBookingError(errorCodeList, err)
	}
	return toDomainBookings(rows)
}

// GetDriverProfile returns the eligibility view consumed by accept guards.
func (store *Store) GetDriverProfile(ctx context.Context, driverID string) (booking.DriverProfile, error) {
	var driver DriverRecord
	err := store.db.WithContext(ctx).
		Where("driver_id = ?", driverID).
		Take(&driver).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.DriverProfile{}, booking.WrapError(errorOperationStore, errorSubjectDriver, errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return booking.DriverProfile{}, booking.WrapError(errorOperationStore, errorSubjectDriver, errorCodeGet, err)
	}

	var vehicleCount int64
	err = store.db.WithContext(ctx).
		Model(&VehicleRecord{}).
		Where("driver_id = ? AND eligible = ?", driverID, true).
		Count(&vehicleCount).Error
	if err != nil {
		return booking.DriverProfile{}, booking.WrapError(errorOperationStore, errorSubjectDriver, errorCodeCount, err)
	}

	var suspensionCount int64
	err = store.db.WithContext(ctx).
		Model(&DriverSuspensionRecord{}).
		Where("driver_id = ? AND until_at > ?", driverID, time.Now().UTC()).
		Count(&suspensionCount).Error
	if err != nil {
		return booking.DriverProfile{}, booking.WrapError(errorOperationStore, errorSubjectDriver, errorCodeCount, err)
	}

	return booking.DriverProfile{
		DriverID:           driver.DriverID,
		Name:               driver.Name,
		Active:             driver.Active,
		Suspended:          suspensionCount > 0,
		HasEligibleVehicle: vehicleCount > 0,
	}, nil
}

func (store *Store) updateBookingIf(ctx context.Context, bookingID string, expected []booking.BookingStatus, updates map[string]any) (booking.Booking, error) {
	statuses := make([]string, 0, len(expected))
	for _, status := range expected {
		statuses = append(statuses, status.String())
	}
	result := store.db.WithContext(ctx).
		Model(&BookingRecord{}).
		Where("booking_id = ? AND status IN ?", bookingID, statuses).
		Updates(updates)
	if result.Error != nil {
		return booking.Booking{}, wrapBookingError(errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return booking.Booking{}, wrapBookingError(errorCodeUpdateStatus, booking.ErrStaleState)
	}
	return store.GetBooking(ctx, bookingID)
}

func openedStatuses() []string {
	return []string{
		booking.StatusPending.String(),
		booking.StatusWaitingForDriver.String(),
		booking.StatusDriverAssigned.String(),
		booking.StatusInProgress.String(),
	}
}

func toBookingRow(record booking.Booking) (BookingRecord, error) {
	excluded := record.ExcludedDriverIDs
	if excluded == nil {
		excluded = []string{}
	}
	excludedJSON, err := json.Marshal(excluded)
	if err != nil {
		return BookingRecord{}, err
	}
	var driverID *string
	if record.DriverID != "" {
		value := record.DriverID
		driverID = &value
	}
	return BookingRecord{
		BookingID:          record.ID,
		BookingType:        record.Type.String(),
		CustomerID:         record.CustomerID,
		CustomerName:       record.CustomerName,
		DriverID:           driverID,
		DriverName:         record.DriverName,
		Status:             record.Status.String(),
		PaymentStatus:      string(record.PaymentStatus),
		TotalAmountCents:   record.TotalAmountCents,
		PackageID:          record.PackageID,
		PackageName:        record.PackageName,
		PackageCreatorID:   record.PackageCreatorID,
		BookingDate:        record.BookingDate,
		PickupTime:         record.PickupTime,
		PickupAddress:      record.PickupAddress,
		DropoffAddress:     record.DropoffAddress,
		PickupLatitude:     record.PickupLatitude,
		PickupLongitude:    record.PickupLongitude,
		PassengerCount:     record.PassengerCount,
		RideType:           string(record.RideType),
		FarePerPersonCents: record.FarePerPersonCents,
		VerificationPhoto:  record.VerificationPhoto,
		ExcludedDriverIDs:  excludedJSON,
		CancelReason:       record.CancelReason,
		CancelledBy:        record.CancelledBy,
		CancelledAt:        record.CancelledAt,
		TimeoutReason:      record.TimeoutReason,
		TimedOutAt:         record.TimedOutAt,
		DriverAssignedAt:   record.DriverAssignedAt,
		StartedAt:          record.StartedAt,
		CompletedAt:        record.CompletedAt,
		CreatedAt:          record.CreatedAt,
		UpdatedAt:          record.UpdatedAt,
	}, nil
}

func toDomainBooking(row BookingRecord) (booking.Booking, error) {
	var excluded []string
	if len(row.ExcludedDriverIDs) > 0 {
		if err := json.Unmarshal(row.ExcludedDriverIDs, &excluded); err != nil {
			return booking.Booking{}, wrapBookingError(errorCodeInvalid, err)
		}
	}
	driverID := ""
	if row.DriverID != nil {
		driverID = *row.DriverID
	}
	return booking.Booking{
		ID:                 row.BookingID,
		Type:               booking.BookingType(row.BookingType),
		CustomerID:         row.CustomerID,
		CustomerName:       row.CustomerName,
		DriverID:           driverID,
		DriverName:         row.DriverName,
		Status:             booking.BookingStatus(row.Status),
		PaymentStatus:      booking.PaymentStatus(row.PaymentStatus),
		TotalAmountCents:   row.TotalAmountCents,
		PackageID:          row.PackageID,
		PackageName:        row.PackageName,
		PackageCreatorID:   row.PackageCreatorID,
		BookingDate:        row.BookingDate,
		PickupTime:         row.PickupTime,
		PickupAddress:      row.PickupAddress,
		DropoffAddress:     row.DropoffAddress,
		PickupLatitude:     row.PickupLatitude,
		PickupLongitude:    row.PickupLongitude,
		PassengerCount:     row.PassengerCount,
		RideType:           booking.RideType(row.RideType),
		FarePerPersonCents: row.FarePerPersonCents,
		VerificationPhoto:  row.VerificationPhoto,
		ExcludedDriverIDs:  excluded,
		CancelReason:       row.CancelReason,
		CancelledBy:        row.CancelledBy,
		CancelledAt:        row.CancelledAt,
		TimeoutReason:      row.TimeoutReason,
		TimedOutAt:         row.TimedOutAt,
		DriverAssignedAt:   row.DriverAssignedAt,
		StartedAt:          row.StartedAt,
		CompletedAt:        row.CompletedAt,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}, nil
}

func toDomainBookings(rows []BookingRecord) ([]booking.Booking, error) {
	records := make([]booking.Booking, 0, len(rows))
	for _, row := range rows {
		record, err := toDomainBooking(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
