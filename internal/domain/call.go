package domain

import (
	"time"
)

// CallDirection indicates who originated a call.
type CallDirection string

const (
	DirectionInbound  CallDirection = "inbound"
	DirectionOutbound CallDirection = "outbound"
)

// CallStatus represents the lifecycle state of a call session.
type CallStatus string

const (
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
)

// IsTerminal reports whether the status ends the call lifecycle.
func (s CallStatus) IsTerminal() bool {
	return s == CallStatusCompleted || s == CallStatusFailed
}

// CallSession is the tracked lifecycle of one phone call, owned
// exclusively by the call registry. A session exists from the first
// inbound/outbound call event until a terminal event removes it.
type CallSession struct {
	CallID      string                 `json:"call_id"`
	SessionID   string                 `json:"session_id"`
	PhoneNumber string                 `json:"phone_number"`
	Direction   CallDirection          `json:"direction"`
	Status      CallStatus             `json:"status"`
	StartTime   time.Time              `json:"start_time"`
	EndTime     *time.Time             `json:"end_time,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Service returns the requested service from metadata, if any.
func (s *CallSession) Service() string {
	if s.Metadata == nil {
		return ""
	}
	if svc, ok := s.Metadata["service"].(string); ok {
		return svc
	}
	return ""
}

// Duration returns the elapsed call time. For a session without an
// end time it is measured against now.
func (s *CallSession) Duration(now time.Time) time.Duration {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	return end.Sub(s.StartTime)
}
