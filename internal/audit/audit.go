// Package audit records who did what to which entity.
package audit

import (
	"context"
	"time"

	"github.com/SugboTransitLab/marketplace/pkg/booking"
)

// AuditStore persists audit trail entries.
type AuditStore interface {
	InsertAuditLog(ctx context.Context, event booking.AuditEvent, at time.Time) error
}

// Sink writes audit events to the store. It is best-effort by contract; the
// caller treats failures as warnings.
type Sink struct {
	store AuditStore
	nowFn func() time.Time
}

var _ booking.Auditor = (*Sink)(nil)

// NewSink returns a store-backed audit sink.
func NewSink(store AuditStore) *Sink {
	return &Sink{store: store, nowFn: time.Now}
}

// Record persists one audit event.
func (sink *Sink) Record(ctx context.Context, event booking.AuditEvent) error {
	return sink.store.InsertAuditLog(ctx, event, sink.nowFn())
}
