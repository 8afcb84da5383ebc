package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/realjules/SpeakWise/internal/domain"
	"gorm.io/gorm"
)

// SMSRecordRepository defines the interface for SMS record persistence
type SMSRecordRepository interface {
	Create(ctx context.Context, record *domain.SMSRecord) error
	ListByRecipient(ctx context.Context, recipient string, limit int) ([]*domain.SMSRecord, error)
}

// GormSMSRecordRepository implements SMSRecordRepository with GORM
type GormSMSRecordRepository struct {
	db *gorm.DB
}

// NewSMSRecordRepository creates a new SMS record repository
func NewSMSRecordRepository(db *gorm.DB) *GormSMSRecordRepository {
	return &GormSMSRecordRepository{db: db}
}

// Create stores the outcome of an SMS send
func (r *GormSMSRecordRepository) Create(ctx context.Context, record *domain.SMSRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create sms record: %w", err)
	}
	return nil
}

// ListByRecipient retrieves the most recent SMS records for a recipient
func (r *GormSMSRecordRepository) ListByRecipient(ctx context.Context, recipient string, limit int) ([]*domain.SMSRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []*domain.SMSRecord
	err := r.db.WithContext(ctx).
		Where("recipient = ?", recipient).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sms records: %w", err)
	}
	return records, nil
}
