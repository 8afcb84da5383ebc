package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/realjules/SpeakWise/internal/adapters/telephony"
	"github.com/realjules/SpeakWise/internal/services/audio"
	"github.com/realjules/SpeakWise/internal/services/call"
	"github.com/realjules/SpeakWise/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	parseErr error
	smsErr   error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) InitiateCall(_ context.Context, to, _ string) (*telephony.CallInfo, error) {
	return &telephony.CallInfo{CallID: "call-" + to, Status: "initiated"}, nil
}

func (p *stubProvider) EndCall(_ context.Context, callID string) (*telephony.CallInfo, error) {
	return &telephony.CallInfo{CallID: callID, Status: "completed"}, nil
}

func (p *stubProvider) SendDTMF(_ context.Context, _, _ string) error  { return nil }
func (p *stubProvider) PlayAudio(_ context.Context, _, _ string) error { return nil }

func (p *stubProvider) ParseWebhook(payload []byte) (*telephony.WebhookEvent, error) {
	if p.parseErr != nil {
		return nil, p.parseErr
	}
	var event telephony.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (p *stubProvider) SendSMS(_ context.Context, msg telephony.SMSMessage) (*telephony.SMSResult, error) {
	if p.smsErr != nil {
		return nil, p.smsErr
	}
	return &telephony.SMSResult{SMSID: "sms-1", Status: "delivered"}, nil
}

type stubSpeech struct{}

func (stubSpeech) Transcribe(_ context.Context, audio []byte) (string, error) {
	return string(audio), nil
}

func (stubSpeech) GenerateResponse(_ context.Context, _ string, text string) (string, error) {
	return text, nil
}

func (stubSpeech) Synthesize(_ context.Context, text string) ([]byte, error) {
	return []byte(text), nil
}

func newTestRouter(t *testing.T, provider *stubProvider) (*mux.Router, *call.Registry, *audio.Router) {
	t.Helper()

	audioRouter := audio.NewRouter(stubSpeech{})
	registry := call.NewRegistry(provider, audioRouter, stubSpeech{})
	t.Cleanup(audioRouter.Shutdown)

	handler := NewTelephonyHandler(registry, audioRouter, provider, provider, nil, nil, nil)
	streamHandler := NewStreamHandler(registry, audioRouter)

	router := mux.NewRouter()
	tele := router.PathPrefix("/telephony").Subrouter()
	tele.HandleFunc("/webhook", handler.HandleWebhook).Methods("POST")
	tele.HandleFunc("/audio/{call_id}", handler.IngestAudio).Methods("POST")
	tele.HandleFunc("/stream/{call_id}", streamHandler.StreamAudio).Methods("GET")
	tele.HandleFunc("/call", handler.InitiateCall).Methods("POST")
	tele.HandleFunc("/call/{call_id}", handler.GetCall).Methods("GET")
	tele.HandleFunc("/call/{call_id}", handler.EndCall).Methods("DELETE")
	tele.HandleFunc("/calls", handler.ListCalls).Methods("GET")
	tele.HandleFunc("/sms", handler.SendSMS).Methods("POST")
	tele.HandleFunc("/status", handler.Status).Methods("GET")
	tele.HandleFunc("/health", handler.Health).Methods("GET")

	return router, registry, audioRouter
}

func decodeAck(t *testing.T, rec *httptest.ResponseRecorder) WebhookAck {
	t.Helper()
	var ack WebhookAck
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ack))
	return ack
}

func TestHandleWebhook_AcksValidEvent(t *testing.T) {
	router, registry, _ := newTestRouter(t, &stubProvider{})

	body := `{"call_id":"c1","event":"initiated","from":"+250788111111"}`
	req := httptest.NewRequest(http.MethodPost, "/telephony/webhook", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeAck(t, rec).Status)
	require.NotNil(t, registry.GetCallInfo("c1"))
}

func TestHandleWebhook_AcksUnparseablePayloadWith200(t *testing.T) {
	router, _, _ := newTestRouter(t, &stubProvider{parseErr: errors.New("bad payload")})

	req := httptest.NewRequest(http.MethodPost, "/telephony/webhook", bytes.NewBufferString("garbage"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// The carrier must never be told to retry indefinitely.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "error", decodeAck(t, rec).Status)
}

func TestHandleWebhook_UnknownCallIsAcked(t *testing.T) {
	router, _, _ := newTestRouter(t, &stubProvider{})

	body := `{"call_id":"never-seen","event":"completed"}`
	req := httptest.NewRequest(http.MethodPost, "/telephony/webhook", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeAck(t, rec).Status)
}

func TestInitiateCallEndpoint(t *testing.T) {
	router, registry, _ := newTestRouter(t, &stubProvider{})

	body := `{"phone_number":"+250788000000"}`
	req := httptest.NewRequest(http.MethodPost, "/telephony/call", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CallResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "call-+250788000000", resp.CallID)
	assert.Equal(t, "initiated", resp.Status)
	assert.NotEmpty(t, resp.SessionID)
	require.NotNil(t, registry.GetCallInfo(resp.CallID))
}

func TestInitiateCallEndpoint_RequiresPhoneNumber(t *testing.T) {
	router, _, _ := newTestRouter(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodPost, "/telephony/call", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEndCallEndpoint(t *testing.T) {
	router, registry, _ := newTestRouter(t, &stubProvider{})

	sess, err := registry.InitiateOutboundCall(context.Background(), "+250788000000", nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/telephony/call/"+sess.CallID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, registry.GetCallInfo(sess.CallID))
}

func TestGetCallEndpoint_NotFound(t *testing.T) {
	router, _, _ := newTestRouter(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/telephony/call/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestAudio_NoReplyReady(t *testing.T) {
	router, registry, _ := newTestRouter(t, &stubProvider{})

	sess, err := registry.InitiateOutboundCall(context.Background(), "+250788000000", nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/telephony/audio/"+sess.CallID, bytes.NewBuffer(nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestIngestAudio_ReturnsQueuedReply(t *testing.T) {
	router, registry, audioRouter := newTestRouter(t, &stubProvider{})

	sess, err := registry.InitiateOutboundCall(context.Background(), "+250788000000", nil)
	require.NoError(t, err)

	audioRouter.QueueOutgoingAudio(sess.CallID, []byte("synthesized"))

	req := httptest.NewRequest(http.MethodPost, "/telephony/audio/"+sess.CallID, bytes.NewBuffer(nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "synthesized", rec.Body.String())
}

func TestIngestAudio_UnknownCallReturns204(t *testing.T) {
	router, _, _ := newTestRouter(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodPost, "/telephony/audio/unknown", bytes.NewBufferString("chunk"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestListCallsEndpoint(t *testing.T) {
	router, registry, _ := newTestRouter(t, &stubProvider{})

	_, err := registry.InitiateOutboundCall(context.Background(), "+250788000000", nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/telephony/calls", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Total)
}

func TestSendSMSEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t, &stubProvider{})

	body := `{"to":"+250788000000","text":"your receipt"}`
	req := httptest.NewRequest(http.MethodPost, "/telephony/sms", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result telephony.SMSResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, "sms-1", result.SMSID)
}

func TestSendSMSEndpoint_NotSupportedWithoutSender(t *testing.T) {
	provider := &stubProvider{}
	audioRouter := audio.NewRouter(stubSpeech{})
	registry := call.NewRegistry(provider, audioRouter, stubSpeech{})
	t.Cleanup(audioRouter.Shutdown)

	handler := NewTelephonyHandler(registry, audioRouter, provider, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/telephony/sms", bytes.NewBufferString(`{"to":"x","text":"y"}`))
	rec := httptest.NewRecorder()
	handler.SendSMS(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

type stubRedis struct {
	mu     sync.Mutex
	values map[string]string
}

func newStubRedis() *stubRedis {
	return &stubRedis{values: make(map[string]string)}
}

func (s *stubRedis) GetValue(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key], nil
}

func (s *stubRedis) SetValue(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *stubRedis) DelValue(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *stubRedis) Keys(_ context.Context, _ string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *stubRedis) Publish(_ context.Context, _ string, _ interface{}) error { return nil }

func (s *stubRedis) Subscribe(_ context.Context, _ string, _ func(string)) error { return nil }

func TestStatusIncludesClusterCalls(t *testing.T) {
	provider := &stubProvider{}
	audioRouter := audio.NewRouter(stubSpeech{})
	registry := call.NewRegistry(provider, audioRouter, stubSpeech{})
	t.Cleanup(audioRouter.Shutdown)

	sessions := session.NewManager(newStubRedis(), "pod-1")
	require.NoError(t, sessions.Register(context.Background(), session.CallInfo{CallID: "c1"}))
	require.NoError(t, sessions.Register(context.Background(), session.CallInfo{CallID: "c2"}))

	handler := NewTelephonyHandler(registry, audioRouter, provider, nil, nil, nil, sessions)

	req := httptest.NewRequest(http.MethodGet, "/telephony/status", nil)
	rec := httptest.NewRecorder()
	handler.Status(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		ClusterCalls int `json:"cluster_calls"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, 2, status.ClusterCalls)
}

func TestStatusAndHealthEndpoints(t *testing.T) {
	router, _, _ := newTestRouter(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/telephony/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		Provider   string `json:"provider"`
		SMSEnabled bool   `json:"sms_enabled"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "stub", status.Provider)
	assert.True(t, status.SMSEnabled)

	req = httptest.NewRequest(http.MethodGet, "/telephony/health", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
