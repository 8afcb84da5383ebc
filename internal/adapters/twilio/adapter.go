// Package twilio implements the telephony provider contract on top of
// the Twilio REST API.
package twilio

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/realjules/SpeakWise/internal/adapters/telephony"
	"github.com/realjules/SpeakWise/pkg/logger"
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

const providerName = "twilio"

// Adapter wraps the Twilio SDK behind the normalized provider contract.
type Adapter struct {
	client     *twilio.RestClient
	callerID   string
	webhookURL string
}

// Config holds Twilio credentials and call defaults.
type Config struct {
	AccountSID string
	AuthToken  string
	CallerID   string
	WebhookURL string
}

// NewAdapter creates a Twilio-backed provider adapter.
func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio credentials are required")
	}

	return &Adapter{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		}),
		callerID:   cfg.CallerID,
		webhookURL: cfg.WebhookURL,
	}, nil
}

// Name returns the provider name.
func (a *Adapter) Name() string {
	return providerName
}

// InitiateCall starts an outbound call through the Twilio API.
// The Twilio SDK manages its own request deadlines, so ctx is unused.
func (a *Adapter) InitiateCall(_ context.Context, to, from string) (*telephony.CallInfo, error) {
	if from == "" {
		from = a.callerID
	}

	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(from)
	if a.webhookURL != "" {
		params.SetUrl(a.webhookURL)
	}

	resp, err := a.client.Api.CreateCall(params)
	if err != nil {
		logger.Base().Error("Failed to initiate call", zap.String("to", to), zap.Error(err))
		return nil, telephony.NewProviderError(providerName, "initiate_call", 0, err)
	}

	info := &telephony.CallInfo{}
	if resp.Sid != nil {
		info.CallID = *resp.Sid
	}
	if resp.Status != nil {
		info.Status = *resp.Status
	}

	logger.Base().Info("Call initiated", zap.String("to", to), zap.String("call_id", info.CallID))
	return info, nil
}

// EndCall hangs up an active call by forcing its status to completed.
func (a *Adapter) EndCall(_ context.Context, callID string) (*telephony.CallInfo, error) {
	params := &api.UpdateCallParams{}
	params.SetStatus("completed")

	resp, err := a.client.Api.UpdateCall(callID, params)
	if err != nil {
		logger.Base().Error("Failed to end call", zap.String("call_id", callID), zap.Error(err))
		return nil, telephony.NewProviderError(providerName, "end_call", 0, err)
	}

	info := &telephony.CallInfo{CallID: callID}
	if resp.Status != nil {
		info.Status = *resp.Status
	}

	logger.Base().Info("Call ended", zap.String("call_id", callID))
	return info, nil
}

// SendDTMF sends DTMF tones into an active call via a TwiML update.
func (a *Adapter) SendDTMF(_ context.Context, callID, digits string) error {
	params := &api.UpdateCallParams{}
	params.SetTwiml(fmt.Sprintf(`<Response><Play digits="%s"/></Response>`, digits))

	if _, err := a.client.Api.UpdateCall(callID, params); err != nil {
		logger.Base().Error("Failed to send DTMF", zap.String("call_id", callID), zap.Error(err))
		return telephony.NewProviderError(providerName, "send_dtmf", 0, err)
	}

	logger.Base().Info("DTMF digits sent", zap.String("call_id", callID), zap.String("digits", digits))
	return nil
}

// PlayAudio plays an audio file into an active call via a TwiML update.
func (a *Adapter) PlayAudio(_ context.Context, callID, audioURL string) error {
	params := &api.UpdateCallParams{}
	params.SetTwiml(fmt.Sprintf(`<Response><Play>%s</Play></Response>`, audioURL))

	if _, err := a.client.Api.UpdateCall(callID, params); err != nil {
		logger.Base().Error("Failed to play audio", zap.String("call_id", callID), zap.Error(err))
		return telephony.NewProviderError(providerName, "play_audio", 0, err)
	}

	logger.Base().Info("Playing audio on call", zap.String("call_id", callID), zap.String("url", audioURL))
	return nil
}

// ParseWebhook normalizes Twilio's form-encoded status callback into a
// WebhookEvent.
func (a *Adapter) ParseWebhook(payload []byte) (*telephony.WebhookEvent, error) {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	callID := values.Get("CallSid")
	if callID == "" {
		return nil, fmt.Errorf("webhook payload missing CallSid")
	}

	event, err := normalizeCallStatus(values.Get("CallStatus"))
	if err != nil {
		return nil, err
	}

	direction := ""
	if d := values.Get("Direction"); d != "" {
		direction = "inbound"
		if strings.HasPrefix(d, "outbound") {
			direction = "outbound"
		}
	}

	return &telephony.WebhookEvent{
		CallID:    callID,
		Event:     event,
		Direction: direction,
		From:      values.Get("From"),
		Raw:       payload,
	}, nil
}

func normalizeCallStatus(status string) (telephony.EventType, error) {
	switch strings.ToLower(status) {
	case "queued", "initiated", "ringing":
		return telephony.EventInitiated, nil
	case "in-progress", "answered":
		return telephony.EventAnswered, nil
	case "completed":
		return telephony.EventCompleted, nil
	case "busy", "failed", "no-answer", "canceled":
		return telephony.EventFailed, nil
	default:
		return "", fmt.Errorf("unknown call status: %q", status)
	}
}
