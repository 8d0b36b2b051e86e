package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/SugboTransitLab/marketplace/pkg/booking"
	"github.com/SugboTransitLab/marketplace/pkg/dispatch"
)

var _ dispatch.Store = (*Store)(nil)

func wrapDispatchError(code string, err error) error {
	return fmt.Errorf("%s.%s.%s: %w", errorOperationStore, errorSubjectDispatch, code, err)
}

type candidateRow struct {
	DriverID   string
	Name       string
	Latitude   *float64
	Longitude  *float64
	RecordedAt *time.Time
}

// ListCandidates returns active, non-suspended drivers holding an eligible
// vehicle, minus excluded ids. Tour packages created by a driver are offered
// only to that driver; anything else is open to the whole fleet.
func (store *Store) ListCandidates(ctx context.Context, criteria dispatch.Criteria) ([]dispatch.Candidate, error) {
	now := time.Now().UTC()
	query := store.db.WithContext(ctx).
		Model(&DriverRecord{}).
		Select("drivers.driver_id, drivers.name, driver_locations.latitude, driver_locations.longitude, driver_locations.recorded_at").
		Joins("LEFT JOIN driver_locations ON driver_locations.driver_id = drivers.driver_id").
		Where("drivers.active = ?", true).
		Where("EXISTS (SELECT 1 FROM vehicles WHERE vehicles.driver_id = drivers.driver_id AND vehicles.eligible = ?)", true).
		Where("NOT EXISTS (SELECT 1 FROM driver_suspensions WHERE driver_suspensions.driver_id = drivers.driver_id AND driver_suspensions.until_at > ?)", now)
	if len(criteria.ExcludedDriverIDs) > 0 {
		query = query.Where("drivers.driver_id NOT IN ?", criteria.ExcludedDriverIDs)
	}
	if criteria.BookingType == booking.BookingTypeTour && criteria.PackageCreatorID != "" {
		// Mirrors the accept guard: a creator-owned package is never
		// offered to anyone else.
		query = query.Where("drivers.driver_id = ?", criteria.PackageCreatorID)
	}

	var rows []candidateRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, wrapDispatchError(errorCodeList, err)
	}
	candidates := make([]dispatch.Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, dispatch.Candidate{
			DriverID:  row.DriverID,
			Name:      row.Name,
			Latitude:  row.Latitude,
			Longitude: row.Longitude,
			LocatedAt: row.RecordedAt,
		})
	}
	return candidates, nil
}

// GetBookingStatus returns just the booking's current status.
func (store *Store) GetBookingStatus(ctx context.Context, bookingID string) (booking.BookingStatus, error) {
	var row BookingRecord
	err := store.db.WithContext(ctx).
		Select("status").
		Where("booking_id = ?", bookingID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", wrapDispatchError(errorCodeGet, dispatch.ErrNotFound)
	}
	if err != nil {
		return "", wrapDispatchError(errorCodeGet, err)
	}
	return booking.BookingStatus(row.Status), nil
}

// CancelUnclaimedIf cancels a booking still waiting for a driver. Zero rows
// means a driver accepted first.
func (store *Store) CancelUnclaimedIf(ctx context.Context, bookingID string, reason string, at time.Time) (booking.Booking, error) {
	result := store.db.WithContext(ctx).
		Model(&BookingRecord{}).
		Where("booking_id = ? AND status IN ?", bookingID,
			[]string{booking.StatusPending.String(), booking.StatusWaitingForDriver.String()}).
		Updates(map[string]any{
			"status":        booking.StatusCancelled.String(),
			"cancel_reason": reason,
			"cancelled_by":  "system",
			"cancelled_at":  at,
			"updated_at":    at,
		})
	if result.Error != nil {
		return booking.Booking{}, wrapDispatchError(errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return booking.Booking{}, wrapDispatchError(errorCodeUpdateStatus, dispatch.ErrStaleState)
	}
	return store.GetBooking(ctx, bookingID)
}

// UpsertDriverLocation stores a driver's latest reported position.
func (store *Store) UpsertDriverLocation(ctx context.Context, driverID string, latitude float64, longitude float64, recordedAt time.Time) error {
	row := DriverLocationRecord{
		DriverID:   driverID,
		Latitude:   latitude,
		Longitude:  longitude,
		RecordedAt: recordedAt,
	}
	if err := store.db.WithContext(ctx).Save(&row).Error; err != nil {
		return wrapDispatchError(errorCodeUpdate, err)
	}
	return nil
}
