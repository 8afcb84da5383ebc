// Package telephony defines the normalized carrier contract consumed by
// the call registry and the HTTP handlers. No call-control logic outside
// a carrier adapter may depend on a specific carrier's payload shape.
package telephony

import (
	"context"
	"encoding/json"
	"fmt"
)

// EventType is a normalized call lifecycle event from the carrier.
type EventType string

const (
	EventInitiated EventType = "initiated"
	EventAnswered  EventType = "answered"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// WebhookEvent is the uniform shape every carrier webhook is normalized
// into. It is transient: it exists only to drive one state transition.
type WebhookEvent struct {
	CallID    string          `json:"call_id"`
	Event     EventType       `json:"event"`
	Direction string          `json:"direction,omitempty"`
	From      string          `json:"from,omitempty"`
	Service   string          `json:"service,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// CallInfo is the carrier's view of a call after a control operation.
type CallInfo struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`
}

// Provider is the carrier-facing call control contract.
type Provider interface {
	Name() string
	InitiateCall(ctx context.Context, to, from string) (*CallInfo, error)
	EndCall(ctx context.Context, callID string) (*CallInfo, error)
	SendDTMF(ctx context.Context, callID, digits string) error
	PlayAudio(ctx context.Context, callID, audioURL string) error
	ParseWebhook(payload []byte) (*WebhookEvent, error)
}

// SMSMessage is an outbound SMS request for carriers that support it.
type SMSMessage struct {
	To       string `json:"to"`
	Text     string `json:"text"`
	SenderID string `json:"sender,omitempty"`
}

// SMSResult is the carrier's acknowledgement of an SMS submission.
type SMSResult struct {
	SMSID  string `json:"sms_id"`
	Status string `json:"status"`
}

// SMSSender is implemented by carriers whose API also carries SMS.
type SMSSender interface {
	SendSMS(ctx context.Context, msg SMSMessage) (*SMSResult, error)
}

// ProviderError wraps a failed carrier API call. It is propagated to the
// direct caller for explicit control operations and logged-and-continued
// for internal housekeeping.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a ProviderError for the given operation.
func NewProviderError(provider, op string, statusCode int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, StatusCode: statusCode, Err: err}
}
