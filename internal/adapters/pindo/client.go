// Package pindo implements the telephony provider contract against the
// Pindo voice and SMS API.
package pindo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/realjules/SpeakWise/internal/adapters/telephony"
	"github.com/realjules/SpeakWise/pkg/logger"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the Pindo API base URL.
	DefaultBaseURL = "https://api.pindo.io"

	providerName = "pindo"
)

// Client handles communication with the Pindo API for voice calls and
// messaging.
type Client struct {
	BaseURL       string
	APIKey        string
	DefaultSender string
	WebhookURL    string
	HTTPClient    *http.Client
}

// Config holds the Pindo client configuration.
type Config struct {
	BaseURL       string
	APIKey        string
	DefaultSender string
	WebhookURL    string
	Timeout       time.Duration
}

// NewClient creates a new Pindo API client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	sender := cfg.DefaultSender
	if sender == "" {
		sender = "PindoTest"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		BaseURL:       strings.TrimSuffix(baseURL, "/"),
		APIKey:        cfg.APIKey,
		DefaultSender: sender,
		WebhookURL:    cfg.WebhookURL,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return providerName
}

func (c *Client) voiceURL(parts ...string) string {
	return c.BaseURL + "/v1/voice" + strings.Join(parts, "")
}

// doJSON performs an authenticated JSON request against the Pindo API
// and decodes the response body into out (when out is non-nil).
func (c *Client) doJSON(ctx context.Context, op, method, url string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return telephony.NewProviderError(providerName, op, 0, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return telephony.NewProviderError(providerName, op, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return telephony.NewProviderError(providerName, op, resp.StatusCode,
			fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(bodyBytes))))
	}

	if out != nil && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return telephony.NewProviderError(providerName, op, resp.StatusCode,
				fmt.Errorf("failed to decode response: %w", err))
		}
	}
	return nil
}

// InitiateCall starts an outbound call to a phone number.
func (c *Client) InitiateCall(ctx context.Context, to, from string) (*telephony.CallInfo, error) {
	payload := map[string]string{"to": to}
	if from != "" {
		payload["from"] = from
	}
	if c.WebhookURL != "" {
		payload["webhook_url"] = c.WebhookURL
	}

	var info telephony.CallInfo
	if err := c.doJSON(ctx, "initiate_call", http.MethodPost, c.voiceURL("/calls"), payload, &info); err != nil {
		logger.Base().Error("Failed to initiate call", zap.String("to", to), zap.Error(err))
		return nil, err
	}

	logger.Base().Info("Call initiated", zap.String("to", to), zap.String("call_id", info.CallID))
	return &info, nil
}

// EndCall hangs up an active call.
func (c *Client) EndCall(ctx context.Context, callID string) (*telephony.CallInfo, error) {
	var info telephony.CallInfo
	if err := c.doJSON(ctx, "end_call", http.MethodPost, c.voiceURL("/calls/", callID, "/hangup"), nil, &info); err != nil {
		logger.Base().Error("Failed to end call", zap.String("call_id", callID), zap.Error(err))
		return nil, err
	}
	if info.CallID == "" {
		info.CallID = callID
	}

	logger.Base().Info("Call ended", zap.String("call_id", callID))
	return &info, nil
}

// SendDTMF sends DTMF tones to an active call.
func (c *Client) SendDTMF(ctx context.Context, callID, digits string) error {
	payload := map[string]string{"digits": digits}
	if err := c.doJSON(ctx, "send_dtmf", http.MethodPost, c.voiceURL("/calls/", callID, "/dtmf"), payload, nil); err != nil {
		logger.Base().Error("Failed to send DTMF", zap.String("call_id", callID), zap.Error(err))
		return err
	}

	logger.Base().Info("DTMF digits sent", zap.String("call_id", callID), zap.String("digits", digits))
	return nil
}

// PlayAudio plays an audio file in an active call.
func (c *Client) PlayAudio(ctx context.Context, callID, audioURL string) error {
	payload := map[string]string{"url": audioURL}
	if err := c.doJSON(ctx, "play_audio", http.MethodPost, c.voiceURL("/calls/", callID, "/play"), payload, nil); err != nil {
		logger.Base().Error("Failed to play audio", zap.String("call_id", callID), zap.Error(err))
		return err
	}

	logger.Base().Info("Playing audio on call", zap.String("call_id", callID), zap.String("url", audioURL))
	return nil
}

// webhookPayload is Pindo's raw webhook shape. Some carrier payloads use
// Twilio-style field names, so the aliases are accepted too.
type webhookPayload struct {
	CallID     string `json:"call_id"`
	CallSid    string `json:"CallSid"`
	Event      string `json:"event"`
	CallStatus string `json:"CallStatus"`
	Caller     string `json:"caller"`
	From       string `json:"From"`
	Direction  string `json:"direction"`
	Service    string `json:"service"`
}

// ParseWebhook normalizes a raw Pindo webhook body into a WebhookEvent.
// Pindo event names carry a "call." prefix (call.initiated, call.answered,
// call.completed, call.failed).
func (c *Client) ParseWebhook(payload []byte) (*telephony.WebhookEvent, error) {
	var raw webhookPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}

	callID := raw.CallID
	if callID == "" {
		callID = raw.CallSid
	}
	if callID == "" {
		return nil, fmt.Errorf("webhook payload missing call_id")
	}

	eventName := raw.Event
	if eventName == "" {
		eventName = raw.CallStatus
	}

	event, err := normalizeEvent(eventName)
	if err != nil {
		return nil, err
	}

	from := raw.Caller
	if from == "" {
		from = raw.From
	}

	return &telephony.WebhookEvent{
		CallID:    callID,
		Event:     event,
		Direction: raw.Direction,
		From:      from,
		Service:   raw.Service,
		Raw:       json.RawMessage(payload),
	}, nil
}

func normalizeEvent(name string) (telephony.EventType, error) {
	switch strings.TrimPrefix(strings.ToLower(name), "call.") {
	case "initiated", "ringing":
		return telephony.EventInitiated, nil
	case "answered", "in-progress":
		return telephony.EventAnswered, nil
	case "completed":
		return telephony.EventCompleted, nil
	case "failed", "busy", "no-answer":
		return telephony.EventFailed, nil
	default:
		return "", fmt.Errorf("unknown webhook event: %q", name)
	}
}

// smsResponse is Pindo's SMS submission acknowledgement.
type smsResponse struct {
	SMSID  string `json:"sms_id"`
	Status string `json:"status"`
}

// SendSMS submits an SMS message through the Pindo SMS API.
func (c *Client) SendSMS(ctx context.Context, msg telephony.SMSMessage) (*telephony.SMSResult, error) {
	sender := msg.SenderID
	if sender == "" {
		sender = c.DefaultSender
	}
	payload := map[string]string{
		"to":     msg.To,
		"text":   msg.Text,
		"sender": sender,
	}

	var resp smsResponse
	if err := c.doJSON(ctx, "send_sms", http.MethodPost, c.BaseURL+"/v1/sms/", payload, &resp); err != nil {
		logger.Base().Error("Failed to send SMS", zap.String("to", msg.To), zap.Error(err))
		return nil, err
	}

	logger.Base().Info("SMS sent", zap.String("to", msg.To), zap.String("sms_id", resp.SMSID))
	return &telephony.SMSResult{SMSID: resp.SMSID, Status: resp.Status}, nil
}
