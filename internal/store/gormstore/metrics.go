package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/SugboTransitLab/marketplace/pkg/drivermetrics"
)

var _ drivermetrics.Store = (*Store)(nil)

func wrapMetricsError(code string, err error) error {
	return fmt.Errorf("%s.%s.%s: %w", errorOperationStore, errorSubjectMetrics, code, err)
}

// InsertCancellation logs one driver cancellation.
func (store *Store) InsertCancellation(ctx context.Context, record drivermetrics.CancellationRecord) error {
	row := DriverCancellationRecord{
		LogID:       record.ID,
		DriverID:    record.DriverID,
		BookingID:   record.BookingID,
		BookingType: record.BookingType,
		Reason:      record.Reason,
		Counted:     record.Counted,
		OccurredAt:  record.OccurredAt,
	}
	if row.OccurredAt.IsZero() {
		row.OccurredAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapMetricsError(errorCodeInsert, err)
	}
	return nil
}

// InsertCompletion logs one completed booking.
func (store *Store) InsertCompletion(ctx context.Context, record drivermetrics.CompletionRecord) error {
	row := DriverCompletionRecord{
		LogID:       record.ID,
		DriverID:    record.DriverID,
		BookingID:   record.BookingID,
		BookingType: record.BookingType,
		OccurredAt:  record.OccurredAt,
	}
	if row.OccurredAt.IsZero() {
		row.OccurredAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapMetricsError(errorCodeInsert, err)
	}
	return nil
}

// CountCancellations tallies a driver's cancellations since the cutoff,
// split by whether they count toward suspension.
func (store *Store) CountCancellations(ctx context.Context, driverID string, counted bool, since time.Time) (int64, error) {
	var tally int64
	err := store.db.WithContext(ctx).
		Model(&DriverCancellationRecord{}).
		Where("driver_id = ? AND counted = ? AND occurred_at >= ?", driverID, counted, since).
		Count(&tally).Error
	if err != nil {
		return 0, wrapMetricsError(errorCodeCount, err)
	}
	return tally, nil
}

// CountCompletions tallies a driver's completions since the cutoff.
func (store *Store) CountCompletions(ctx context.Context, driverID string, since time.Time) (int64, error) {
	var tally int64
	err := store.db.WithContext(ctx).
		Model(&DriverCompletionRecord{}).
		Where("driver_id = ? AND occurred_at >= ?", driverID, since).
		Count(&tally).Error
	if err != nil {
		return 0, wrapMetricsError(errorCodeCount, err)
	}
	return tally, nil
}

// GetActiveSuspension returns the driver's suspension still in force at the
// given time, newest first when history overlaps.
func (store *Store) GetActiveSuspension(ctx context.Context, driverID string, at time.Time) (drivermetrics.Suspension, error) {
	var row DriverSuspensionRecord
	err := store.db.WithContext(ctx).
		Where("driver_id = ? AND until_at > ?", driverID, at).
		Order("until_at DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return drivermetrics.Suspension{}, wrapMetricsError(errorCodeGet, drivermetrics.ErrNotFound)
	}
	if err != nil {
		return drivermetrics.Suspension{}, wrapMetricsError(errorCodeGet, err)
	}
	return drivermetrics.Suspension{
		DriverID: row.DriverID,
		Until:    row.UntilAt,
		Reason:   row.Reason,
		IssuedAt: row.IssuedAt,
	}, nil
}

// SuspendDriver records a new suspension window.
func (store *Store) SuspendDriver(ctx context.Context, suspension drivermetrics.Suspension) error {
	row := DriverSuspensionRecord{
		DriverID: suspension.DriverID,
		UntilAt:  suspension.Until,
		Reason:   suspension.Reason,
		IssuedAt: suspension.IssuedAt,
	}
	if row.IssuedAt.IsZero() {
		row.IssuedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapMetricsError(errorCodeInsert, err)
	}
	return nil
}
