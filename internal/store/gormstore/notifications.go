package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/SugboTransitLab/marketplace/pkg/booking"
)

// InsertNotification stores one outbound message and fans it out to its
// recipient rows in a single transaction.
func (store *Store) InsertNotification(ctx context.Context, message booking.NotificationMessage, at time.Time) (string, error) {
	notification := NotificationRecord{
		Title:            message.Title,
		Body:             message.Body,
		Kind:             message.Kind,
		BookingID:        message.BookingID,
		PriorityDriverID: message.PriorityDriverID,
		RecipientRole:    message.RecipientRole,
		CreatedAt:        at,
	}
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := transaction.Create(&notification).Error; err != nil {
			return err
		}
		for _, recipientID := range message.RecipientIDs {
			recipient := NotificationRecipientRecord{
				NotificationID: notification.NotificationID,
				RecipientID:    recipientID,
				CreatedAt:      at,
			}
			if err := transaction.Create(&recipient).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s.%s.%s: %w", errorOperationStore, errorSubjectNotification, errorCodeInsert, err)
	}
	return notification.NotificationID, nil
}

// InsertAuditLog stores one audit trail entry with JSON before/after images.
func (store *Store) InsertAuditLog(ctx context.Context, event booking.AuditEvent, at time.Time) error {
	oldData, err := json.Marshal(event.OldData)
	if err != nil {
		return fmt.Errorf("%s.%s.%s: %w", errorOperationStore, errorSubjectAudit, errorCodeInvalid, err)
	}
	newData, err := json.Marshal(event.NewData)
	if err != nil {
		return fmt.Errorf("%s.%s.%s: %w", errorOperationStore, errorSubjectAudit, errorCodeInvalid, err)
	}
	row := AuditLogRecord{
		ActorID:    event.ActorID,
		ActorName:  event.ActorName,
		ActorRole:  event.ActorRole,
		Action:     event.Action,
		EntityName: event.EntityName,
		EntityID:   event.EntityID,
		OldData:    oldData,
		NewData:    newData,
		CreatedAt:  at,
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("%s.%s.%s: %w", errorOperationStore, errorSubjectAudit, errorCodeInsert, err)
	}
	return nil
}
