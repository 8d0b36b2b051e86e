package drivermetrics

import (
	"errors"
	"time"
)

const (
	// SuspensionThreshold is how many counted cancellations inside the
	// trailing window trigger a suspension.
	SuspensionThreshold = 5

	// CancellationWindow is the trailing period counted cancellations are
	// tallied over.
	CancellationWindow = 30 * 24 * time.Hour

	// SuspensionDuration is how long a triggered suspension lasts.
	SuspensionDuration = 7 * 24 * time.Hour
)

var (
	ErrNotFound             = errors.New("driver metrics record not found")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// CancellationRecord logs one driver cancellation. Counted records feed the
// suspension tally; review-only records are kept for administrators.
type CancellationRecord struct {
	ID          string
	DriverID    string
	BookingID   string
	BookingType string
	Reason      string
	Counted     bool
	OccurredAt  time.Time
}

// CompletionRecord logs one completed booking for a driver.
type CompletionRecord struct {
	ID          string
	DriverID    string
	BookingID   string
	BookingType string
	OccurredAt  time.Time
}

// Suspension is a driver's active or historical suspension window.
type Suspension struct {
	DriverID string
	Until    time.Time
	Reason   string
	IssuedAt time.Time
}

// Summary aggregates a driver's trailing-window activity.
type Summary struct {
	DriverID             string
	WindowDays           int
	Completions          int64
	CountedCancellations int64
	ReviewCancellations  int64
	Suspended            bool
	SuspendedUntil       *time.Time
}
