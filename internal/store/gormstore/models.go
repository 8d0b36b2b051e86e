package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BookingRecord mirrors the bookings table.
type BookingRecord struct {
	BookingID          string         `gorm:"type:uuid;primaryKey"`
	BookingType        string         `gorm:"not null;index:idx_bookings_type_status,priority:1"`
	CustomerID         string         `gorm:"not null;index:idx_bookings_customer"`
	CustomerName       string         `gorm:"not null"`
	DriverID           *string        `gorm:"index:idx_bookings_driver"`
	DriverName         string         `gorm:"not null;default:''"`
	Status             string         `gorm:"not null;index:idx_bookings_type_status,priority:2"`
	PaymentStatus      string         `gorm:"not null"`
	TotalAmountCents   int64          `gorm:"not null"`
	PackageID          string         `gorm:"not null;default:''"`
	PackageName        string         `gorm:"not null;default:''"`
	PackageCreatorID   string         `gorm:"not null;default:''"`
	BookingDate        time.Time      `gorm:"not null"`
	PickupTime         string         `gorm:"not null;default:''"`
	PickupAddress      string         `gorm:"not null;default:''"`
	DropoffAddress     string         `gorm:"not null;default:''"`
	PickupLatitude     *float64       `gorm:""`
	PickupLongitude    *float64       `gorm:""`
	PassengerCount     int            `gorm:"not null;default:1"`
	RideType           string         `gorm:"not null;default:''"`
	FarePerPersonCents int64          `gorm:"not null;default:0"`
	VerificationPhoto  string         `gorm:"not null;default:''"`
	ExcludedDriverIDs  datatypes.JSON `gorm:"not null"`
	CancelReason       string         `gorm:"not null;default:''"`
	CancelledBy        string         `gorm:"not null;default:''"`
	CancelledAt        *time.Time     `gorm:""`
	TimeoutReason      string         `gorm:"not null;default:''"`
	TimedOutAt         *time.Time     `gorm:""`
	DriverAssignedAt   *time.Time     `gorm:""`
	StartedAt          *time.Time     `gorm:""`
	CompletedAt        *time.Time     `gorm:""`
	CreatedAt          time.Time      `gorm:"not null;index:idx_bookings_created"`
	UpdatedAt          time.Time      `gorm:"not null"`
}

func (BookingRecord) TableName() string { return "bookings" }

func (record *BookingRecord) BeforeCreate(tx *gorm.DB) error {
	if record.BookingID == "" {
		record.BookingID = uuid.NewString()
	}
	return nil
}

// EarningRecord mirrors the earnings table. One earning per paid booking.
type EarningRecord struct {
	EarningID             string     `gorm:"type:uuid;primaryKey"`
	BookingID             string     `gorm:"type:uuid;not null;index:uniq_earnings_booking,unique"`
	BookingType           string     `gorm:"not null"`
	CustomerID            string     `gorm:"not null"`
	CustomerName          string     `gorm:"not null;default:''"`
	DriverID              string     `gorm:"not null;default:'';index:idx_earnings_driver"`
	DriverName            string     `gorm:"not null;default:''"`
	TotalAmountCents      int64      `gorm:"not null"`
	DriverShareCents      int64      `gorm:"not null;default:0"`
	AdminShareCents       int64      `gorm:"not null;default:0"`
	PercentageBasisPoints int64      `gorm:"not null;default:0"`
	Status                string     `gorm:"not null"`
	FinalizedAt           *time.Time `gorm:""`
	ReversedAt            *time.Time `gorm:""`
	CreatedAt             time.Time  `gorm:"not null"`
	UpdatedAt             time.Time  `gorm:"not null"`
}

func (EarningRecord) TableName() string { return "earnings" }

func (record *EarningRecord) BeforeCreate(tx *gorm.DB) error {
	if record.EarningID == "" {
		record.EarningID = uuid.NewString()
	}
	return nil
}

// PayoutRecord mirrors the payouts table. PendingDriverID carries the driver
// id while the payout is pending and goes NULL on release, so the unique
// index holds a driver to one pending payout without blocking history.
type PayoutRecord struct {
	PayoutID        string     `gorm:"type:uuid;primaryKey"`
	DriverID        string     `gorm:"not null;index:idx_payouts_driver"`
	PendingDriverID *string    `gorm:"index:uniq_payouts_pending_driver,unique"`
	AmountCents     int64      `gorm:"not null;default:0"`
	Status          string     `gorm:"not null"`
	ReleasedAt      *time.Time `gorm:""`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time  `gorm:"not null"`
}

func (PayoutRecord) TableName() string { return "payouts" }

func (record *PayoutRecord) BeforeCreate(tx *gorm.DB) error {
	if record.PayoutID == "" {
		record.PayoutID = uuid.NewString()
	}
	return nil
}

// PayoutEarningRecord links an earning's share into a payout exactly once.
type PayoutEarningRecord struct {
	LinkID      string    `gorm:"type:uuid;primaryKey"`
	PayoutID    string    `gorm:"type:uuid;not null;index:idx_payout_earnings_payout"`
	EarningID   string    `gorm:"type:uuid;not null;index:uniq_payout_earnings_earning,unique"`
	AmountCents int64     `gorm:"not null"`
	Reversed    bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (PayoutEarningRecord) TableName() string { return "payout_earnings" }

func (record *PayoutEarningRecord) BeforeCreate(tx *gorm.DB) error {
	if record.LinkID == "" {
		record.LinkID = uuid.NewString()
	}
	return nil
}

// RefundRecord mirrors the refunds table. One refund per booking. The earning
// and driver ids are empty when the booking was cancelled before settlement.
type RefundRecord struct {
	RefundID      string     `gorm:"type:uuid;primaryKey"`
	BookingID     string     `gorm:"type:uuid;not null;index:uniq_refunds_booking,unique"`
	EarningID     string     `gorm:"not null;default:'';index:idx_refunds_earning"`
	CustomerID    string     `gorm:"not null;index:idx_refunds_customer"`
	DriverID      string     `gorm:"not null;default:'';index:idx_refunds_driver"`
	AmountCents   int64      `gorm:"not null"`
	Reference     string     `gorm:"not null"`
	Reason        string     `gorm:"not null;default:''"`
	RequestedBy   string     `gorm:"not null;default:''"`
	Status        string     `gorm:"not null;index:idx_refunds_status"`
	ReviewedBy    string     `gorm:"not null;default:''"`
	ReviewRemarks string     `gorm:"not null;default:''"`
	ReviewedAt    *time.Time `gorm:""`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null"`
}

func (RefundRecord) TableName() string { return "refunds" }

func (record *RefundRecord) BeforeCreate(tx *gorm.DB) error {
	if record.RefundID == "" {
		record.RefundID = uuid.NewString()
	}
	return nil
}

// DriverRecord mirrors the drivers table.
type DriverRecord struct {
	DriverID  string    `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null"`
	Active    bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (DriverRecord) TableName() string { return "drivers" }

func (record *DriverRecord) BeforeCreate(tx *gorm.DB) error {
	if record.DriverID == "" {
		record.DriverID = uuid.NewString()
	}
	return nil
}

// VehicleRecord mirrors the vehicles table. A driver needs at least one
// eligible vehicle to receive offers.
type VehicleRecord struct {
	VehicleID string    `gorm:"type:uuid;primaryKey"`
	DriverID  string    `gorm:"type:uuid;not null;index:idx_vehicles_driver"`
	Plate     string    `gorm:"not null;default:''"`
	Eligible  bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (VehicleRecord) TableName() string { return "vehicles" }

func (record *VehicleRecord) BeforeCreate(tx *gorm.DB) error {
	if record.VehicleID == "" {
		record.VehicleID = uuid.NewString()
	}
	return nil
}

// DriverLocationRecord is the latest reported position per driver.
type DriverLocationRecord struct {
	DriverID   string    `gorm:"type:uuid;primaryKey"`
	Latitude   float64   `gorm:"not null"`
	Longitude  float64   `gorm:"not null"`
	RecordedAt time.Time `gorm:"not null;index:idx_driver_locations_recorded"`
}

func (DriverLocationRecord) TableName() string { return "driver_locations" }

// DriverCancellationRecord logs a driver cancellation. Counted rows feed the
// suspension tally.
type DriverCancellationRecord struct {
	LogID       string    `gorm:"type:uuid;primaryKey"`
	DriverID    string    `gorm:"type:uuid;not null;index:idx_driver_cancellations_driver,priority:1"`
	BookingID   string    `gorm:"type:uuid;not null"`
	BookingType string    `gorm:"not null"`
	Reason      string    `gorm:"not null;default:''"`
	Counted     bool      `gorm:"not null"`
	OccurredAt  time.Time `gorm:"not null;index:idx_driver_cancellations_driver,priority:2"`
}

func (DriverCancellationRecord) TableName() string { return "driver_cancellation_logs" }

func (record *DriverCancellationRecord) BeforeCreate(tx *gorm.DB) error {
	if record.LogID == "" {
		record.LogID = uuid.NewString()
	}
	return nil
}

// DriverCompletionRecord logs a completed booking per driver.
type DriverCompletionRecord struct {
	LogID       string    `gorm:"type:uuid;primaryKey"`
	DriverID    string    `gorm:"type:uuid;not null;index:idx_driver_completions_driver,priority:1"`
	BookingID   string    `gorm:"type:uuid;not null"`
	BookingType string    `gorm:"not null"`
	OccurredAt  time.Time `gorm:"not null;index:idx_driver_completions_driver,priority:2"`
}

func (DriverCompletionRecord) TableName() string { return "driver_completion_logs" }

func (record *DriverCompletionRecord) BeforeCreate(tx *gorm.DB) error {
	if record.LogID == "" {
		record.LogID = uuid.NewString()
	}
	return nil
}

// DriverSuspensionRecord is one issued suspension window.
type DriverSuspensionRecord struct {
	SuspensionID string    `gorm:"type:uuid;primaryKey"`
	DriverID     string    `gorm:"type:uuid;not null;index:idx_driver_suspensions_driver,priority:1"`
	UntilAt      time.Time `gorm:"not null;index:idx_driver_suspensions_driver,priority:2"`
	Reason       string    `gorm:"not null;default:''"`
	IssuedAt     time.Time `gorm:"not null"`
}

func (DriverSuspensionRecord) TableName() string { return "driver_suspensions" }

func (record *DriverSuspensionRecord) BeforeCreate(tx *gorm.DB) error {
	if record.SuspensionID == "" {
		record.SuspensionID = uuid.NewString()
	}
	return nil
}

// TourPackageRecord mirrors the tour_packages table.
type TourPackageRecord struct {
	PackageID  string    `gorm:"type:uuid;primaryKey"`
	Name       string    `gorm:"not null"`
	CreatorID  string    `gorm:"not null;default:''"`
	PriceCents int64     `gorm:"not null;default:0"`
	Active     bool      `gorm:"not null;default:true"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (TourPackageRecord) TableName() string { return "tour_packages" }

func (record *TourPackageRecord) BeforeCreate(tx *gorm.DB) error {
	if record.PackageID == "" {
		record.PackageID = uuid.NewString()
	}
	return nil
}

// SystemSettingRecord is a key/value configuration row.
type SystemSettingRecord struct {
	Key       string    `gorm:"primaryKey"`
	Value     string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (SystemSettingRecord) TableName() string { return "system_settings" }

// NotificationRecord is one stored outbound message.
type NotificationRecord struct {
	NotificationID   string    `gorm:"type:uuid;primaryKey"`
	Title            string    `gorm:"not null"`
	Body             string    `gorm:"not null"`
	Kind             string    `gorm:"not null"`
	BookingID        string    `gorm:"not null;default:'';index:idx_notifications_booking"`
	PriorityDriverID string    `gorm:"not null;default:''"`
	RecipientRole    string    `gorm:"not null;default:''"`
	CreatedAt        time.Time `gorm:"not null"`
}

func (NotificationRecord) TableName() string { return "notifications" }

func (record *NotificationRecord) BeforeCreate(tx *gorm.DB) error {
	if record.NotificationID == "" {
		record.NotificationID = uuid.NewString()
	}
	return nil
}

// NotificationRecipientRecord fans one notification out to one recipient.
type NotificationRecipientRecord struct {
	RecipientRowID string     `gorm:"type:uuid;primaryKey"`
	NotificationID string     `gorm:"type:uuid;not null;index:idx_notification_recipients_notification"`
	RecipientID    string     `gorm:"not null;index:idx_notification_recipients_recipient"`
	ReadAt         *time.Time `gorm:""`
	CreatedAt      time.Time  `gorm:"not null"`
}

func (NotificationRecipientRecord) TableName() string { return "notification_recipients" }

func (record *NotificationRecipientRecord) BeforeCreate(tx *gorm.DB) error {
	if record.RecipientRowID == "" {
		record.RecipientRowID = uuid.NewString()
	}
	return nil
}

// AuditLogRecord is one audit trail entry.
type AuditLogRecord struct {
	AuditID    string         `gorm:"type:uuid;primaryKey"`
	ActorID    string         `gorm:"not null;default:''"`
	ActorName  string         `gorm:"not null;default:''"`
	ActorRole  string         `gorm:"not null;default:''"`
	Action     string         `gorm:"not null;index:idx_audit_logs_action"`
	EntityName string         `gorm:"not null;index:idx_audit_logs_entity,priority:1"`
	EntityID   string         `gorm:"not null;index:idx_audit_logs_entity,priority:2"`
	OldData    datatypes.JSON `gorm:""`
	NewData    datatypes.JSON `gorm:""`
	CreatedAt  time.Time      `gorm:"not null"`
}

func (AuditLogRecord) TableName() string { return "audit_logs" }

func (record *AuditLogRecord) BeforeCreate(tx *gorm.DB) error {
	if record.AuditID == "" {
		record.AuditID = uuid.NewString()
	}
	return nil
}
