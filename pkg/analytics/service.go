// Package analytics publishes best-effort call and SMS outcome events to
// a Pub/Sub topic consumed by the reporting pipeline. Delivery failure is
// logged and never surfaced to the call path.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/realjules/SpeakWise/pkg/logger"
	"go.uber.org/zap"
)

type Config struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
	// EventPrefix is prepended to the message name attribute to align
	// with subscription filters (e.g. "beta", "stage"). Optional.
	EventPrefix string `mapstructure:"event_prefix"`
}

// CallEvent is the terminal snapshot of one call, as delivered to the
// analytics pipeline.
type CallEvent struct {
	CallID          string    `json:"call_id"`
	Phone           string    `json:"phone"`
	Status          string    `json:"status"`
	Service         string    `json:"service,omitempty"`
	Direction       string    `json:"direction,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds int       `json:"duration"`
}

// SMSEvent reports one SMS submission outcome.
type SMSEvent struct {
	SMSID     string    `json:"sms_id"`
	Recipient string    `json:"recipient"`
	Service   string    `json:"service,omitempty"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives call/SMS outcome events. Implementations must be safe
// for concurrent use.
type Sink interface {
	PublishCallEvent(ctx context.Context, event CallEvent) error
	PublishSMSEvent(ctx context.Context, event SMSEvent) error
	Close() error
}

// PubSubSink implements Sink on a Google Cloud Pub/Sub topic.
type PubSubSink struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	config *Config
}

func NewPubSubSink(ctx context.Context, cfg *Config) (*PubSubSink, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("analytics project ID is required")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create PubSub client: %w", err)
	}

	topic := client.Topic(cfg.TopicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to check if topic exists: %w", err)
	}

	if !exists {
		logger.Base().Info("Analytics topic does not exist, creating", zap.String("topic", cfg.TopicName))
		topic, err = client.CreateTopic(ctx, cfg.TopicName)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to create topic %s: %w", cfg.TopicName, err)
		}
	}

	return &PubSubSink{
		client: client,
		topic:  topic,
		config: cfg,
	}, nil
}

// PublishCallEvent publishes a terminal call snapshot
func (s *PubSubSink) PublishCallEvent(ctx context.Context, event CallEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return s.publish(ctx, "call", event.CallID, event)
}

// PublishSMSEvent publishes an SMS submission outcome
func (s *PubSubSink) PublishSMSEvent(ctx context.Context, event SMSEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return s.publish(ctx, "sms", event.SMSID, event)
}

func (s *PubSubSink) publish(ctx context.Context, kind, id string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", kind, err)
	}

	taskID := uuid.New().String()

	namePrefix := strings.TrimSuffix(s.config.EventPrefix, ":")
	if namePrefix != "" {
		namePrefix += ":"
	}

	message := &pubsub.Message{
		Attributes: map[string]string{
			"name": fmt.Sprintf("%stelephony:%s:%s", namePrefix, kind, taskID),
		},
		Data: data,
	}

	result := s.topic.Publish(ctx, message)
	if _, err := result.Get(ctx); err != nil {
		logger.Base().Error("Failed to publish analytics event",
			zap.String("kind", kind),
			zap.String("id", id),
			zap.String("task_id", taskID),
			zap.Error(err))
		return fmt.Errorf("failed to publish %s event: %w", kind, err)
	}

	logger.Base().Info("Published analytics event",
		zap.String("kind", kind),
		zap.String("id", id),
		zap.String("task_id", taskID))
	return nil
}

func (s *PubSubSink) Close() error {
	if s.topic != nil {
		s.topic.Stop()
	}
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
