package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/realjules/SpeakWise/internal/adapters/telephony"
	"github.com/realjules/SpeakWise/internal/domain"
	"github.com/realjules/SpeakWise/internal/repository"
	"github.com/realjules/SpeakWise/internal/services/audio"
	"github.com/realjules/SpeakWise/internal/services/call"
	"github.com/realjules/SpeakWise/internal/session"
	"github.com/realjules/SpeakWise/pkg/analytics"
	"github.com/realjules/SpeakWise/pkg/logger"
	"go.uber.org/zap"
)

// maxRequestBodyBytes bounds webhook and audio ingress request bodies.
const maxRequestBodyBytes = 1 << 20

// TelephonyHandler handles webhook, call-control and audio ingress requests
type TelephonyHandler struct {
	registry      *call.Registry
	router        *audio.Router
	provider      telephony.Provider
	smsSender     telephony.SMSSender
	analyticsSink analytics.Sink
	repo          repository.RepositoryManager
	sessions      *session.Manager
}

// NewTelephonyHandler creates a new telephony handler. The SMS sender,
// analytics sink, repository and session manager may be nil.
func NewTelephonyHandler(registry *call.Registry, router *audio.Router, provider telephony.Provider, smsSender telephony.SMSSender, sink analytics.Sink, repo repository.RepositoryManager, sessions *session.Manager) *TelephonyHandler {
	return &TelephonyHandler{
		registry:      registry,
		router:        router,
		provider:      provider,
		smsSender:     smsSender,
		analyticsSink: sink,
		repo:          repo,
		sessions:      sessions,
	}
}

// WebhookAck is the response body for carrier webhooks. The webhook is
// always acknowledged with 200 so the carrier never retries indefinitely;
// status distinguishes success from an internal failure.
type WebhookAck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// InitiateCallRequest represents the request to start an outbound call
type InitiateCallRequest struct {
	PhoneNumber string                 `json:"phone_number"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// CallResponse represents the response for call control operations
type CallResponse struct {
	CallID    string `json:"call_id"`
	SessionID string `json:"session_id,omitempty"`
	Status    string `json:"status"`
}

// SendDTMFRequest carries the digits for an in-call DTMF send
type SendDTMFRequest struct {
	Digits string `json:"digits"`
}

// PlayAudioRequest carries the audio URL to play into a call
type PlayAudioRequest struct {
	URL string `json:"url"`
}

// SendSMSRequest represents the request to send an SMS through the carrier
type SendSMSRequest struct {
	To      string `json:"to"`
	Text    string `json:"text"`
	Sender  string `json:"sender,omitempty"`
	Service string `json:"service,omitempty"`
}

// HandleWebhook ingests a carrier webhook, normalizes it and drives the
// call state machine. The response is always 200.
func (h *TelephonyHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		h.ackWebhook(w, "error", "failed to read webhook body")
		return
	}

	event, err := h.provider.ParseWebhook(body)
	if err != nil {
		logger.Base().Warn("Failed to parse carrier webhook",
			zap.String("provider", h.provider.Name()),
			zap.Error(err))
		h.ackWebhook(w, "error", "unrecognized webhook payload")
		return
	}

	logger.Base().Info("Received call webhook",
		zap.String("call_id", event.CallID),
		zap.String("event", string(event.Event)))

	if err := h.registry.HandleCallEvent(r.Context(), event); err != nil {
		logger.Base().Error("Failed to handle call event",
			zap.String("call_id", event.CallID),
			zap.String("event", string(event.Event)),
			zap.Error(err))
		h.ackWebhook(w, "error", "internal failure handling event")
		return
	}

	h.ackWebhook(w, "ok", "")
}

func (h *TelephonyHandler) ackWebhook(w http.ResponseWriter, status, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(WebhookAck{Status: status, Message: message})
}

// InitiateCall starts an outbound call to the given phone number
func (h *TelephonyHandler) InitiateCall(w http.ResponseWriter, r *http.Request) {
	var req InitiateCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PhoneNumber == "" {
		http.Error(w, "phone_number is required", http.StatusBadRequest)
		return
	}

	sess, err := h.registry.InitiateOutboundCall(r.Context(), req.PhoneNumber, req.Metadata)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusCreated, CallResponse{
		CallID:    sess.CallID,
		SessionID: sess.SessionID,
		Status:    string(sess.Status),
	})
}

// EndCall hangs up an active call
func (h *TelephonyHandler) EndCall(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["call_id"]

	if err := h.registry.EndCall(r.Context(), callID); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, CallResponse{
		CallID: callID,
		Status: string(domain.CallStatusCompleted),
	})
}

// SendDTMF forwards touch-tone digits to an active call
func (h *TelephonyHandler) SendDTMF(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["call_id"]

	var req SendDTMFRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Digits == "" {
		http.Error(w, "digits is required", http.StatusBadRequest)
		return
	}

	if err := h.registry.SendDTMF(r.Context(), callID, req.Digits); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// PlayAudio plays an audio URL into an active call
func (h *TelephonyHandler) PlayAudio(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["call_id"]

	var req PlayAudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	if err := h.registry.PlayAudio(r.Context(), callID, req.URL); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "playing"})
}

// IngestAudio accepts one raw inbound audio chunk and responds with the
// next synthesized reply chunk, or 204 when none is ready.
func (h *TelephonyHandler) IngestAudio(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["call_id"]

	chunk, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		http.Error(w, "failed to read audio body", http.StatusBadRequest)
		return
	}

	reply := h.router.RouteAudio(callID, chunk)
	if reply == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(reply)
}

// ListCalls returns summaries of all active calls
func (h *TelephonyHandler) ListCalls(w http.ResponseWriter, r *http.Request) {
	calls := h.registry.GetActiveCalls()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"calls": calls,
		"total": len(calls),
	})
}

// GetCall returns the summary for one active call
func (h *TelephonyHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["call_id"]

	sess := h.registry.GetCallInfo(callID)
	if sess == nil {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// SendSMS sends an SMS through the carrier and records the outcome
func (h *TelephonyHandler) SendSMS(w http.ResponseWriter, r *http.Request) {
	if h.smsSender == nil {
		http.Error(w, "sms is not supported by the configured provider", http.StatusNotImplemented)
		return
	}

	var req SendSMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.To == "" || req.Text == "" {
		http.Error(w, "to and text are required", http.StatusBadRequest)
		return
	}

	result, err := h.smsSender.SendSMS(r.Context(), telephony.SMSMessage{
		To:       req.To,
		Text:     req.Text,
		SenderID: req.Sender,
	})
	if err != nil {
		h.recordSMS(&domain.SMSRecord{
			Recipient: req.To,
			Service:   req.Service,
			Status:    "failed",
		})
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	h.recordSMS(&domain.SMSRecord{
		SMSID:     result.SMSID,
		Recipient: req.To,
		Service:   req.Service,
		Status:    result.Status,
	})

	if h.analyticsSink != nil {
		event := analytics.SMSEvent{
			SMSID:     result.SMSID,
			Recipient: req.To,
			Service:   req.Service,
			Status:    result.Status,
			Timestamp: time.Now(),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := h.analyticsSink.PublishSMSEvent(ctx, event); err != nil {
				logger.Base().Warn("Failed to publish sms analytics event",
					zap.String("sms_id", event.SMSID),
					zap.Error(err))
			}
		}()
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *TelephonyHandler) recordSMS(record *domain.SMSRecord) {
	if h.repo == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.repo.SMSRecords().Create(ctx, record); err != nil {
			logger.Base().Warn("Failed to persist sms record",
				zap.String("recipient", record.Recipient),
				zap.Error(err))
		}
	}()
}

// Status reports gateway runtime counters. When Redis session mirroring
// is enabled the count of calls across all instances is included.
func (h *TelephonyHandler) Status(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"provider":       h.provider.Name(),
		"active_calls":   len(h.registry.GetActiveCalls()),
		"active_streams": h.router.ActiveStreams(),
		"sms_enabled":    h.smsSender != nil,
	}

	if h.sessions != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if infos, err := h.sessions.ListActive(ctx); err != nil {
			logger.Base().Warn("Failed to list cluster call sessions", zap.Error(err))
		} else {
			payload["cluster_calls"] = len(infos)
		}
	}

	writeJSON(w, http.StatusOK, payload)
}

// Health is the liveness endpoint
func (h *TelephonyHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "speakwise-telephony",
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
