package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/SugboTransitLab/marketplace/pkg/settlement"
)

var (
	_ settlement.Store              = (*Store)(nil)
	_ settlement.PercentageProvider = (*Store)(nil)
)

const (
	settingOrganizationPercentage = "organization_percentage"

	// defaultOrganizationBasisPoints applies when the setting row is absent.
	defaultOrganizationBasisPoints = 2000
)

func wrapSettlementError(subject string, code string, err error) error {
	return fmt.Errorf("%s.%s.%s: %w", errorOperationStore, subject, code, err)
}

// InsertEarning persists a new earning; a second earning for the same booking
// reports ErrDuplicate.
func (store *Store) InsertEarning(ctx context.Context, earning settlement.Earning) (settlement.Earning, error) {
	row := toEarningRow(earning)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	row.UpdatedAt = row.CreatedAt
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return settlement.Earning{}, wrapSettlementError(errorSubjectEarning, errorCodeDuplicate, settlement.ErrDuplicate)
	}
	if err != nil {
		return settlement.Earning{}, wrapSettlementError(errorSubjectEarning, errorCodeInsert, err)
	}
	return toDomainEarning(row), nil
}

// GetEarning returns one earning by id.
func (store *Store) GetEarning(ctx context.Context, earningID string) (settlement.Earning, error) {
	var row EarningRecord
	err := store.db.WithContext(ctx).Where("earning_id = ?", earningID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return settlement.Earning{}, wrapSettlementError(errorSubjectEarning, errorCodeGet, settlement.ErrNotFound)
	}
	if err != nil {
		return settlement.Earning{}, wrapSettlementError(errorSubjectEarning, errorCodeGet, err)
	}
	return toDomainEarning(row), nil
}

// GetEarningByBooking returns the booking's earning, if one exists.
func (store *Store) GetEarningByBooking(ctx context.Context, bookingID string) (settlement.Earning, error) {
	var row EarningRecord
	err := store.db.WithContext(ctx).Where("booking_id = ?", bookingID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return settlement.Earning{}, wrapSettlementError(errorSubjectEarning, errorCodeGet, settlement.ErrNotFound)
	}
	if err != nil {
		return settlement.Earning{}, wrapSettlementError(errorSubjectEarning, errorCodeGet, err)
	}
	return toDomainEarning(row), nil
}

// UpdateEarningDriver tags the accepting driver on an earning.
func (store *Store) UpdateEarningDriver(ctx context.Context, earningID string, driverID string, driverName string) error {
	result := store.db.WithContext(ctx).
		Model(&EarningRecord{}).
		Where("earning_id = ?", earningID).
		Updates(map[string]any{
			"driver_id":   driverID,
			"driver_name": driverName,
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapSettlementError(errorSubjectEarning, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapSettlementError(errorSubjectEarning, errorCodeUpdate, settlement.ErrNotFound)
	}
	return nil
}

// FinalizeEarningIf writes the split while the earning still holds the
// expected status.
func (store *Store) FinalizeEarningIf(ctx context.Context, earningID string, expected settlement.EarningStatus, finalization settlement.EarningFinalization) (settlement.Earning, error) {
	result := store.db.WithContext(ctx).
		Model(&EarningRecord{}).
		Where("earning_id = ? AND status = ?", earningID, string(expected)).
		Updates(map[string]any{
			"status":                  string(settlement.EarningFinalized),
			"driver_share_cents":      finalization.DriverShareCents,
			"admin_share_cents":       finalization.AdminShareCents,
			"percentage_basis_points": int64(finalization.PercentageBasisPoints),
			"finalized_at":            finalization.At,
			"updated_at":              finalization.At,
		})
	if result.Error != nil {
		return settlement.Earning{}, wrapSettlementError(errorSubjectEarning, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return settlement.Earning{}, wrapSettlementError(errorSubjectEarning, errorCodeUpdateStatus, settlement.ErrStaleState)
	}
	return store.GetEarning(ctx, earningID)
}

// ReverseEarningIf reverses an earning still in one of the expected statuses.
func (store *Store) ReverseEarningIf(ctx context.Context, earningID string, expected []settlement.EarningStatus, at time.Time) (settlement.Earning, error) {
	statuses := make([]string, 0, len(expected))
	for _, status := range expected {
		statuses = append(statuses, string(status))
	}
	result := store.db.WithContext(ctx).
		Model(&EarningRecord{}).
		Where("earning_id = ? AND status IN ?", earningID, statuses).
		Updates(map[string]any{
			"status":      string(settlement.EarningReversed),
			"reversed_at": at,
			"updated_at":  at,
		})
	if result.Error != nil {
		return settlement.Earning{}, wrapSettlementError(errorSubjectEarning, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return settlement.Earning{}, wrapSettlementError(errorSubjectEarning, errorCodeUpdateStatus, settlement.ErrStaleState)
	}
	return store.GetEarning(ctx, earningID)
}

// InsertPayout creates a payout; a second pending payout for the driver
// reports ErrDuplicate via the pending-driver unique index.
func (store *Store) InsertPayout(ctx context.Context, payout settlement.Payout) (settlement.Payout, error) {
	row := PayoutRecord{
		PayoutID:    payout.ID,
		DriverID:    payout.DriverID,
		AmountCents: payout.AmountCents,
		Status:      string(payout.Status),
		CreatedAt:   payout.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	row.UpdatedAt = row.CreatedAt
	if payout.Status == settlement.PayoutPending {
		pendingDriver := payout.DriverID
		row.PendingDriverID = &pendingDriver
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return settlement.Payout{}, wrapSettlementError(errorSubjectPayout, errorCodeDuplicate, settlement.ErrDuplicate)
	}
	if err != nil {
		return settlement.Payout{}, wrapSettlementError(errorSubjectPayout, errorCodeInsert, err)
	}
	return toDomainPayout(row), nil
}

// GetPayout returns one payout by id.
func (store *Store) GetPayout(ctx context.Context, payoutID string) (settlement.Payout, error) {
	var row PayoutRecord
	err := store.db.WithContext(ctx).Where("payout_id = ?", payoutID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return settlement.Payout{}, wrapSettlementError(errorSubjectPayout, errorCodeGet, settlement.ErrNotFound)
	}
	if err != nil {
		return settlement.Payout{}, wrapSettlementError(errorSubjectPayout, errorCodeGet, err)
	}
	return toDomainPayout(row), nil
}

// GetPendingPayoutForDriver returns the driver's single pending payout.
func (store *Store) GetPendingPayoutForDriver(ctx context.Context, driverID string) (settlement.Payout, error) {
	var row PayoutRecord
	err := store.db.WithContext(ctx).
		Where("driver_id = ? AND status = ?", driverID, string(settlement.PayoutPending)).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return settlement.Payout{}, wrapSettlementError(errorSubjectPayout, errorCodeGet, settlement.ErrNotFound)
	}
	if err != nil {
		return settlement.Payout{}, wrapSettlementError(errorSubjectPayout, errorCodeGet, err)
	}
	return toDomainPayout(row), nil
}

// AddToPendingPayout increments a pending payout's amount.
func (store *Store) AddToPendingPayout(ctx context.Context, payoutID string, amountCents int64) (settlement.Payout, error) {
	result := store.db.WithContext(ctx).
		Model(&PayoutRecord{}).
		Where("payout_id = ? AND status = ?", payoutID, string(settlement.PayoutPending)).
		Updates(map[string]any{
			"amount_cents": gorm.Expr("amount_cents + ?", amountCents),
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return settlement.Payout{}, wrapSettlementError(errorSubjectPayout, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return settlement.Payout{}, wrapSettlementError(errorSubjectPayout, errorCodeUpdate, settlement.ErrStaleState)
	}
	return store.GetPayout(ctx, payoutID)
}

// DeductFromPendingPayoutClamped subtracts from a pending payout without
// letting the amount drop below zero. Released payouts stay untouched.
func (store *Store) DeductFromPendingPayoutClamped(ctx context.Context, payoutID string, amountCents int64) (settlement.Payout, error) {
	result := store.db.WithContext(ctx).
		Model(&PayoutRecord{}).
		Where("payout_id = ? AND status = ?", payoutID, string(settlement.PayoutPending)).
		Updates(map[string]any{
			"amount_cents": gorm.Expr("CASE WHEN amount_cents > ? THEN amount_cents - ? ELSE 0 END", amountCents, amountCents),
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return settlement.Payout{}, wrapSettlementError(errorSubjectPayout, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return settlement.Payout{}, wrapSettlementError(errorSubjectPayout, errorCodeUpdate, settlement.ErrStaleState)
	}
	return store.GetPayout(ctx, payoutID)
}

// InsertLink records an earning's share inside a payout; the unique earning
// id reports ErrDuplicate on a second credit.
func (store *Store) InsertLink(ctx context.Context, link settlement.PayoutEarningLink) (settlement.PayoutEarningLink, error) {
	row := PayoutEarningRecord{
		LinkID:      link.ID,
		PayoutID:    link.PayoutID,
		EarningID:   link.EarningID,
		AmountCents: link.AmountCents,
		Reversed:    link.Reversed,
		CreatedAt:   link.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return settlement.PayoutEarningLink{}, wrapSettlementError(errorSubjectLink, errorCodeDuplicate, settlement.ErrDuplicate)
	}
	if err != nil {
		return settlement.PayoutEarningLink{}, wrapSettlementError(errorSubjectLink, errorCodeInsert, err)
	}
	return toDomainLink(row), nil
}

// GetLinkByEarning returns the link crediting an earning to a payout.
func (store *Store) GetLinkByEarning(ctx context.Context, earningID string) (settlement.PayoutEarningLink, error) {
	var row PayoutEarningRecord
	err := store.db.WithContext(ctx).Where("earning_id = ?", earningID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return settlement.PayoutEarningLink{}, wrapSettlementError(errorSubjectLink, errorCodeGet, settlement.ErrNotFound)
	}
	if err != nil {
		return settlement.PayoutEarningLink{}, wrapSettlementError(errorSubjectLink, errorCodeGet, err)
	}
	return toDomainLink(row), nil
}

// MarkLinkReversedIf flips a link to reversed exactly once.
func (store *Store) MarkLinkReversedIf(ctx context.Context, linkID string) (settlement.PayoutEarningLink, error) {
	result := store.db.WithContext(ctx).
		Model(&PayoutEarningRecord{}).
		Where("link_id = ? AND reversed = ?", linkID, false).
		Update("reversed", true)
	if result.Error != nil {
		return settlement.PayoutEarningLink{}, wrapSettlementError(errorSubjectLink, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return settlement.PayoutEarningLink{}, wrapSettlementError(errorSubjectLink, errorCodeUpdate, settlement.ErrStaleState)
	}
	var row PayoutEarningRecord
	if err := store.db.WithContext(ctx).Where("link_id = ?", linkID).Take(&row).Error; err != nil {
		return settlement.PayoutEarningLink{}, wrapSettlementError(errorSubjectLink, errorCodeGet, err)
	}
	return toDomainLink(row), nil
}

// InsertRefund creates a refund; a second refund for the booking reports
// ErrDuplicate.
func (store *Store) InsertRefund(ctx context.Context, refund settlement.Refund) (settlement.Refund, error) {
	row := toRefundRow(refund)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	row.UpdatedAt = row.CreatedAt
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return settlement.Refund{}, wrapSettlementError(errorSubjectRefund, errorCodeDuplicate, settlement.ErrDuplicate)
	}
	if err != nil {
		return settlement.Refund{}, wrapSettlementError(errorSubjectRefund, errorCodeInsert, err)
	}
	return toDomainRefund(row), nil
}

// GetRefund returns one refund by id.
func (store *Store) GetRefund(ctx context.Context, refundID string) (settlement.Refund, error) {
	var row RefundRecord
	err := store.db.WithContext(ctx).Where("refund_id = ?", refundID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return settlement.Refund{}, wrapSettlementError(errorSubjectRefund, errorCodeGet, settlement.ErrNotFound)
	}
	if err != nil {
		return settlement.Refund{}, wrapSettlementError(errorSubjectRefund, errorCodeGet, err)
	}
	return toDomainRefund(row), nil
}

// GetRefundByBooking returns the booking's refund, if one exists.
func (store *Store) GetRefundByBooking(ctx context.Context, bookingID string) (settlement.Refund, error) {
	var row RefundRecord
	err := store.db.WithContext(ctx).Where("booking_id = ?", bookingID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return settlement.Refund{}, wrapSettlementError(errorSubjectRefund, errorCodeGet, settlement.ErrNotFound)
	}
	if err != nil {
		return settlement.Refund{}, wrapSettlementError(errorSubjectRefund, errorCodeGet, err)
	}
	return toDomainRefund(row), nil
}

// ListRefunds returns refunds matching the filter, newest first.
func (store *Store) ListRefunds(ctx context.Context, filter settlement.RefundFilter) ([]settlement.Refund, error) {
	query := store.db.WithContext(ctx).Model(&RefundRecord{})
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	var rows []RefundRecord
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, wrapSettlementError(errorSubjectRefund, errorCodeList, err)
	}
	refunds := make([]settlement.Refund, 0, len(rows))
	for _, row := range rows {
		refunds = append(refunds, toDomainRefund(row))
	}
	return refunds, nil
}

// ReviewRefundIf applies a review decision while the refund still holds one
// of the expected statuses.
func (store *Store) ReviewRefundIf(ctx context.Context, refundID string, expected []settlement.RefundStatus, review settlement.RefundReview) (settlement.Refund, error) {
	statuses := make([]string, 0, len(expected))
	for _, status := range expected {
		statuses = append(statuses, string(status))
	}
	result := store.db.WithContext(ctx).
		Model(&RefundRecord{}).
		Where("refund_id = ? AND status IN ?", refundID, statuses).
		Updates(map[string]any{
			"status":         string(review.NewStatus),
			"reviewed_by":    review.ReviewedBy,
			"review_remarks": review.Remarks,
			"reviewed_at":    review.At,
			"updated_at":     review.At,
		})
	if result.Error != nil {
		return settlement.Refund{}, wrapSettlementError(errorSubjectRefund, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return settlement.Refund{}, wrapSettlementError(errorSubjectRefund, errorCodeUpdateStatus, settlement.ErrStaleState)
	}
	return store.GetRefund(ctx, refundID)
}

// OrganizationPercentage reads the live organization share setting. A missing
// row falls back to the standing default.
func (store *Store) OrganizationPercentage(ctx context.Context) (settlement.Percentage, error) {
	var row SystemSettingRecord
	err := store.db.WithContext(ctx).
		Where("key = ?", settingOrganizationPercentage).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return settlement.Percentage(defaultOrganizationBasisPoints), nil
	}
	if err != nil {
		return 0, wrapSettlementError(errorSubjectSetting, errorCodeGet, err)
	}
	percent, err := strconv.ParseFloat(row.Value, 64)
	if err != nil {
		return 0, wrapSettlementError(errorSubjectSetting, errorCodeInvalid, err)
	}
	return settlement.NewPercentageFromPercent(percent)
}

// UpdateOrganizationPercentage upserts the organization share setting, stored
// as a human percentage string.
func (store *Store) UpdateOrganizationPercentage(ctx context.Context, percentage settlement.Percentage) error {
	row := SystemSettingRecord{
		Key:       settingOrganizationPercentage,
		Value:     strconv.FormatFloat(percentage.Percent(), 'f', -1, 64),
		UpdatedAt: time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).Save(&row).Error
	if err != nil {
		return wrapSettlementError(errorSubjectSetting, errorCodeUpdate, err)
	}
	return nil
}

func toEarningRow(earning settlement.Earning) EarningRecord {
	return EarningRecord{
		EarningID:             earning.ID,
		BookingID:             earning.BookingID,
		BookingType:           earning.BookingType,
		CustomerID:            earning.CustomerID,
		CustomerName:          earning.CustomerName,
		DriverID:              earning.DriverID,
		DriverName:            earning.DriverName,
		TotalAmountCents:      earning.TotalAmountCents,
		DriverShareCents:      earning.DriverShareCents,
		AdminShareCents:       earning.AdminShareCents,
		PercentageBasisPoints: int64(earning.PercentageBasisPoints),
		Status:                string(earning.Status),
		FinalizedAt:           earning.FinalizedAt,
		ReversedAt:            earning.ReversedAt,
		CreatedAt:             earning.CreatedAt,
		UpdatedAt:             earning.UpdatedAt,
	}
}

func toDomainEarning(row EarningRecord) settlement.Earning {
	return settlement.Earning{
		ID:                    row.EarningID,
		BookingID:             row.BookingID,
		BookingType:           row.BookingType,
		CustomerID:            row.CustomerID,
		CustomerName:          row.CustomerName,
		DriverID:              row.DriverID,
		DriverName:            row.DriverName,
		TotalAmountCents:      row.TotalAmountCents,
		DriverShareCents:      row.DriverShareCents,
		AdminShareCents:       row.AdminShareCents,
		PercentageBasisPoints: settlement.Percentage(row.PercentageBasisPoints),
		Status:                settlement.EarningStatus(row.Status),
		FinalizedAt:           row.FinalizedAt,
		ReversedAt:            row.ReversedAt,
		CreatedAt:             row.CreatedAt,
		UpdatedAt:             row.UpdatedAt,
	}
}

func toDomainPayout(row PayoutRecord) settlement.Payout {
	return settlement.Payout{
		ID:          row.PayoutID,
		DriverID:    row.DriverID,
		AmountCents: row.AmountCents,
		Status:      settlement.PayoutStatus(row.Status),
		ReleasedAt:  row.ReleasedAt,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func toDomainLink(row PayoutEarningRecord) settlement.PayoutEarningLink {
	return settlement.PayoutEarningLink{
		ID:          row.LinkID,
		PayoutID:    row.PayoutID,
		EarningID:   row.EarningID,
		AmountCents: row.AmountCents,
		Reversed:    row.Reversed,
		CreatedAt:   row.CreatedAt,
	}
}

func toRefundRow(refund settlement.Refund) RefundRecord {
	return RefundRecord{
		RefundID:      refund.ID,
		BookingID:     refund.BookingID,
		EarningID:     refund.EarningID,
		CustomerID:    refund.CustomerID,
		DriverID:      refund.DriverID,
		AmountCents:   refund.AmountCents,
		Reference:     refund.Reference,
		Reason:        refund.Reason,
		RequestedBy:   refund.RequestedBy,
		Status:        string(refund.Status),
		ReviewedBy:    refund.ReviewedBy,
		ReviewRemarks: refund.ReviewRemarks,
		ReviewedAt:    refund.ReviewedAt,
		CreatedAt:     refund.CreatedAt,
		UpdatedAt:     refund.UpdatedAt,
	}
}

func toDomainRefund(row RefundRecord) settlement.Refund {
	return settlement.Refund{
		ID:            row.RefundID,
		BookingID:     row.BookingID,
		EarningID:     row.EarningID,
		CustomerID:    row.CustomerID,
		DriverID:      row.DriverID,
		AmountCents:   row.AmountCents,
		Reference:     row.Reference,
		Reason:        row.Reason,
		RequestedBy:   row.RequestedBy,
		Status:        settlement.RefundStatus(row.Status),
		ReviewedBy:    row.ReviewedBy,
		ReviewRemarks: row.ReviewRemarks,
		ReviewedAt:    row.ReviewedAt,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}
