package repository

import (
	"gorm.io/gorm"
)

// RepositoryManager provides access to all repositories
type RepositoryManager interface {
	CallRecords() CallRecordRepository
	SMSRecords() SMSRecordRepository
	Close() error
}

// GormRepositoryManager implements RepositoryManager using GORM
type GormRepositoryManager struct {
	db          *gorm.DB
	callRecords CallRecordRepository
	smsRecords  SMSRecordRepository
}

// NewGormRepositoryManager creates a new repository manager
func NewGormRepositoryManager(db *gorm.DB) *GormRepositoryManager {
	return &GormRepositoryManager{
		db:          db,
		callRecords: NewCallRecordRepository(db),
		smsRecords:  NewSMSRecordRepository(db),
	}
}

// CallRecords returns the call record repository
func (m *GormRepositoryManager) CallRecords() CallRecordRepository {
	return m.callRecords
}

// SMSRecords returns the SMS record repository
func (m *GormRepositoryManager) SMSRecords() SMSRecordRepository {
	return m.smsRecords
}

// Close closes the database connection
func (m *GormRepositoryManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
