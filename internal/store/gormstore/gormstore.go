package gormstore

import (
	"errors"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19

	errorOperationStore = "store"

	errorSubjectBooking      = "booking"
	errorSubjectEarning      = "earning"
	errorSubjectPayout       = "payout"
	errorSubjectLink         = "payout_link"
	errorSubjectRefund       = "refund"
	errorSubjectDriver       = "driver"
	errorSubjectMetrics      = "metrics"
	errorSubjectDispatch     = "dispatch"
	errorSubjectSetting      = "setting"
	errorSubjectNotification = "notification"
	errorSubjectAudit        = "audit"

	errorCodeInsert       = "insert"
	errorCodeDuplicate    = "duplicate"
	errorCodeGet          = "get"
	errorCodeList         = "list"
	errorCodeCount        = "count"
	errorCodeUpdate       = "update"
	errorCodeUpdateStatus = "update_status"
	errorCodeInvalid      = "invalid"
)

// Store implements the persistence contracts of the booking, settlement,
// dispatch, and driver metrics packages on one GORM handle.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates every table the engine persists to.
func (store *Store) AutoMigrate() error {
	return store.db.AutoMigrate(
		&BookingRecord{},
		&EarningRecord{},
		&PayoutRecord{},
		&PayoutEarningRecord{},
		&RefundRecord{},
		&DriverRecord{},
		&VehicleRecord{},
		&DriverLocationRecord{},
		&DriverCancellationRecord{},
		&DriverCompletionRecord{},
		&DriverSuspensionRecord{},
		&TourPackageRecord{},
		&SystemSettingRecord{},
		&NotificationRecord{},
		&NotificationRecipientRecord{},
		&AuditLogRecord{},
	)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
