package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB represents a PostgreSQL JSONB field
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}
	return json.Unmarshal(bytes, j)
}

// CallRecord is the persisted terminal snapshot of a call session.
type CallRecord struct {
	ID              string        `json:"id" db:"id" gorm:"column:id;primaryKey"`
	CallID          string        `json:"call_id" db:"call_id" gorm:"column:call_id;index"`
	SessionID       string        `json:"session_id" db:"session_id" gorm:"column:session_id"`
	PhoneNumber     string        `json:"phone_number" db:"phone_number" gorm:"column:phone_number"`
	Direction       CallDirection `json:"direction" db:"direction" gorm:"column:direction"`
	Status          CallStatus    `json:"status" db:"status" gorm:"column:status"`
	Service         string        `json:"service" db:"service" gorm:"column:service"`
	StartedAt       time.Time     `json:"started_at" db:"started_at" gorm:"column:started_at"`
	EndedAt         time.Time     `json:"ended_at" db:"ended_at" gorm:"column:ended_at"`
	DurationSeconds int           `json:"duration_seconds" db:"duration_seconds" gorm:"column:duration_seconds"`
	Metadata        JSONB         `json:"metadata,omitempty" db:"metadata" gorm:"column:metadata;type:jsonb"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at" gorm:"column:created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at" gorm:"column:updated_at"`
}

func (CallRecord) TableName() string {
	return "call_records"
}

// SMSRecord is the persisted outcome of an SMS sent through the carrier.
type SMSRecord struct {
	ID        string    `json:"id" db:"id" gorm:"column:id;primaryKey"`
	SMSID     string    `json:"sms_id" db:"sms_id" gorm:"column:sms_id;index"`
	Recipient string    `json:"recipient" db:"recipient" gorm:"column:recipient"`
	Service   string    `json:"service" db:"service" gorm:"column:service"`
	Status    string    `json:"status" db:"status" gorm:"column:status"` // delivered, failed
	CreatedAt time.Time `json:"created_at" db:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" gorm:"column:updated_at"`
}

func (SMSRecord) TableName() string {
	return "sms_records"
}
