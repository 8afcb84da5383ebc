package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/realjules/SpeakWise/internal/domain"
	"gorm.io/gorm"
)

// CallRecordRepository defines the interface for call record persistence
type CallRecordRepository interface {
	Create(ctx context.Context, record *domain.CallRecord) error
	GetByCallID(ctx context.Context, callID string) (*domain.CallRecord, error)
	ListByPhone(ctx context.Context, phoneNumber string, limit int) ([]*domain.CallRecord, error)
	ListRecent(ctx context.Context, since time.Time, limit int) ([]*domain.CallRecord, error)
}

// GormCallRecordRepository implements CallRecordRepository with GORM
type GormCallRecordRepository struct {
	db *gorm.DB
}

// NewCallRecordRepository creates a new call record repository
func NewCallRecordRepository(db *gorm.DB) *GormCallRecordRepository {
	return &GormCallRecordRepository{db: db}
}

// Create stores a terminal call snapshot
func (r *GormCallRecordRepository) Create(ctx context.Context, record *domain.CallRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create call record: %w", err)
	}
	return nil
}

// GetByCallID retrieves the record for a provider call identifier
func (r *GormCallRecordRepository) GetByCallID(ctx context.Context, callID string) (*domain.CallRecord, error) {
	var record domain.CallRecord
	err := r.db.WithContext(ctx).
		Where("call_id = ?", callID).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get call record: %w", err)
	}
	return &record, nil
}

// ListByPhone retrieves the most recent records for a phone number
func (r *GormCallRecordRepository) ListByPhone(ctx context.Context, phoneNumber string, limit int) ([]*domain.CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []*domain.CallRecord
	err := r.db.WithContext(ctx).
		Where("phone_number = ?", phoneNumber).
		Order("started_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list call records by phone: %w", err)
	}
	return records, nil
}

// ListRecent retrieves records that started after the given time
func (r *GormCallRecordRepository) ListRecent(ctx context.Context, since time.Time, limit int) ([]*domain.CallRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []*domain.CallRecord
	err := r.db.WithContext(ctx).
		Where("started_at >= ?", since).
		Order("started_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent call records: %w", err)
	}
	return records, nil
}
