package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/realjules/SpeakWise/internal/adapters/telephony"
	"github.com/realjules/SpeakWise/internal/domain"
	"github.com/realjules/SpeakWise/internal/repository"
	"github.com/realjules/SpeakWise/internal/services/audio"
	"github.com/realjules/SpeakWise/internal/session"
	"github.com/realjules/SpeakWise/pkg/analytics"
	"github.com/realjules/SpeakWise/pkg/logger"
	"github.com/realjules/SpeakWise/pkg/speech"
	"go.uber.org/zap"
)

// DefaultGreeting is played to the caller when a call is answered.
const DefaultGreeting = "Welcome to SpeakWise. How can I assist you today?"

// Registry is the call session orchestrator. It owns call state, reacts
// to carrier webhook events, drives audio stream registration and
// reports terminal outcomes to the analytics sink.
//
// The analytics sink, session manager and repository are optional; a nil
// value means the gateway runs without that capability.
type Registry struct {
	provider telephony.Provider
	router   *audio.Router
	speech   speech.Processor

	analyticsSink analytics.Sink
	sessions      *session.Manager
	repo          repository.RepositoryManager

	greeting   string
	callerID   string
	instanceID string
	now        func() time.Time

	mu    sync.RWMutex
	calls map[string]*domain.CallSession
}

// Option configures a Registry.
type Option func(*Registry)

// WithAnalytics attaches an analytics sink for terminal call events.
func WithAnalytics(sink analytics.Sink) Option {
	return func(r *Registry) { r.analyticsSink = sink }
}

// WithSessionManager attaches the Redis-backed cross-instance session manager.
func WithSessionManager(m *session.Manager) Option {
	return func(r *Registry) { r.sessions = m }
}

// WithRepository attaches a persistence layer for terminal call records.
func WithRepository(repo repository.RepositoryManager) Option {
	return func(r *Registry) { r.repo = repo }
}

// WithGreeting overrides the welcome message synthesized on answer.
func WithGreeting(text string) Option {
	return func(r *Registry) {
		if text != "" {
			r.greeting = text
		}
	}
}

// WithCallerID sets the outbound caller identity passed to the provider.
func WithCallerID(from string) Option {
	return func(r *Registry) { r.callerID = from }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates the call session registry.
func NewRegistry(provider telephony.Provider, router *audio.Router, processor speech.Processor, opts ...Option) *Registry {
	r := &Registry{
		provider:   provider,
		router:     router,
		speech:     processor,
		greeting:   DefaultGreeting,
		instanceID: uuid.New().String(),
		now:        time.Now,
		calls:      make(map[string]*domain.CallSession),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InitiateOutboundCall asks the provider to dial the given number and
// tracks the resulting call. Provider failures are propagated to the caller.
func (r *Registry) InitiateOutboundCall(ctx context.Context, phoneNumber string, metadata map[string]interface{}) (*domain.CallSession, error) {
	info, err := r.provider.InitiateCall(ctx, phoneNumber, r.callerID)
	if err != nil {
		logger.Base().Error("Failed to initiate outbound call",
			zap.String("phone_number", phoneNumber),
			zap.Error(err))
		return nil, err
	}

	sess := r.track(info.CallID, phoneNumber, domain.DirectionOutbound, metadata)

	logger.Base().Info("Initiated outbound call",
		zap.String("call_id", sess.CallID),
		zap.String("phone_number", phoneNumber))
	return sess, nil
}

// ProcessInboundCall registers a carrier-originated call.
func (r *Registry) ProcessInboundCall(ctx context.Context, callID, phoneNumber string, metadata map[string]interface{}) (*domain.CallSession, error) {
	if callID == "" {
		return nil, fmt.Errorf("inbound call is missing a call id")
	}

	sess := r.track(callID, phoneNumber, domain.DirectionInbound, metadata)

	logger.Base().Info("Registered inbound call",
		zap.String("call_id", sess.CallID),
		zap.String("phone_number", phoneNumber))
	return sess, nil
}

// track creates the session, registers the audio stream and publishes the
// cross-instance snapshot. Re-tracking an existing call returns it unchanged.
func (r *Registry) track(callID, phoneNumber string, direction domain.CallDirection, metadata map[string]interface{}) *domain.CallSession {
	r.mu.Lock()
	if existing, ok := r.calls[callID]; ok {
		r.mu.Unlock()
		return existing
	}

	sess := &domain.CallSession{
		CallID:      callID,
		SessionID:   uuid.New().String(),
		PhoneNumber: phoneNumber,
		Direction:   direction,
		Status:      domain.CallStatusInitiated,
		StartTime:   r.now(),
		Metadata:    metadata,
	}
	r.calls[callID] = sess
	r.mu.Unlock()

	r.router.RegisterCall(callID)

	if r.sessions != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.sessions.Register(ctx, session.CallInfo{
				CallID:      sess.CallID,
				InstanceID:  r.instanceID,
				PhoneNumber: sess.PhoneNumber,
				Direction:   string(sess.Direction),
				StartTime:   sess.StartTime,
			}); err != nil {
				logger.Base().Warn("Failed to register call session snapshot",
					zap.String("call_id", sess.CallID),
					zap.Error(err))
			}
		}()
	}

	return sess
}

// HandleCallEvent is the state machine's sole transition entry point.
// Events for unknown call ids are acknowledged as benign no-ops because
// carriers retry and race with local cleanup.
func (r *Registry) HandleCallEvent(ctx context.Context, event *telephony.WebhookEvent) error {
	if event == nil || event.CallID == "" {
		return fmt.Errorf("webhook event is missing a call id")
	}

	switch event.Event {
	case telephony.EventInitiated:
		r.mu.RLock()
		_, known := r.calls[event.CallID]
		r.mu.RUnlock()
		if known {
			return nil
		}
		// A carrier-originated call announces itself with the first event.
		metadata := map[string]interface{}{}
		if event.Service != "" {
			metadata["service"] = event.Service
		}
		_, err := r.ProcessInboundCall(ctx, event.CallID, event.From, metadata)
		return err

	case telephony.EventAnswered:
		return r.handleAnswered(ctx, event.CallID)

	case telephony.EventCompleted:
		r.finalize(event.CallID, domain.CallStatusCompleted)
		return nil

	case telephony.EventFailed:
		r.finalize(event.CallID, domain.CallStatusFailed)
		return nil

	default:
		logger.Base().Warn("Ignoring unrecognized call event",
			zap.String("call_id", event.CallID),
			zap.String("event", string(event.Event)))
		return nil
	}
}

// handleAnswered moves the call to InProgress and queues the synthesized
// welcome message on the call's outbound audio path.
func (r *Registry) handleAnswered(ctx context.Context, callID string) error {
	r.mu.Lock()
	sess, ok := r.calls[callID]
	if !ok {
		r.mu.Unlock()
		logger.Base().Warn("Answered event for unknown call",
			zap.String("call_id", callID))
		return nil
	}
	sess.Status = domain.CallStatusInProgress
	r.mu.Unlock()

	logger.Base().Info("Call answered",
		zap.String("call_id", callID))

	welcome, err := r.speech.Synthesize(ctx, r.greeting)
	if err != nil {
		logger.Base().Error("Failed to synthesize welcome message",
			zap.String("call_id", callID),
			zap.Error(err))
		return nil
	}
	r.router.QueueOutgoingAudio(callID, welcome)
	return nil
}

// EndCall issues a provider hangup and finalizes the session as Completed
// immediately. The terminal webhook the provider later delivers for the
// same call id is treated as a duplicate no-op. Calling EndCall for a
// call that is no longer tracked is benign.
func (r *Registry) EndCall(ctx context.Context, callID string) error {
	r.mu.RLock()
	_, known := r.calls[callID]
	r.mu.RUnlock()

	if !known {
		logger.Base().Info("End call requested for inactive call",
			zap.String("call_id", callID))
		return nil
	}

	if _, err := r.provider.EndCall(ctx, callID); err != nil {
		logger.Base().Error("Provider hangup failed",
			zap.String("call_id", callID),
			zap.Error(err))
		return err
	}

	r.finalize(callID, domain.CallStatusCompleted)

	if r.sessions != nil {
		if err := r.sessions.NotifyHangup(ctx, callID); err != nil {
			logger.Base().Warn("Failed to broadcast hangup",
				zap.String("call_id", callID),
				zap.Error(err))
		}
	}
	return nil
}

// SendDTMF forwards touch-tone digits to the provider for an active call.
func (r *Registry) SendDTMF(ctx context.Context, callID, digits string) error {
	r.mu.RLock()
	_, known := r.calls[callID]
	r.mu.RUnlock()
	if !known {
		return fmt.Errorf("call %s is not active", callID)
	}
	return r.provider.SendDTMF(ctx, callID, digits)
}

// PlayAudio asks the provider to play an audio URL into an active call.
func (r *Registry) PlayAudio(ctx context.Context, callID, audioURL string) error {
	r.mu.RLock()
	_, known := r.calls[callID]
	r.mu.RUnlock()
	if !known {
		return fmt.Errorf("call %s is not active", callID)
	}
	return r.provider.PlayAudio(ctx, callID, audioURL)
}

// GetActiveCalls returns a snapshot of all tracked sessions.
func (r *Registry) GetActiveCalls() []*domain.CallSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	calls := make([]*domain.CallSession, 0, len(r.calls))
	for _, sess := range r.calls {
		copied := *sess
		calls = append(calls, &copied)
	}
	return calls
}

// GetCallInfo returns the tracked session for a call id, or nil if the
// call is not active.
func (r *Registry) GetCallInfo(callID string) *domain.CallSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sess, ok := r.calls[callID]; ok {
		copied := *sess
		return &copied
	}
	return nil
}

// Shutdown finalizes every tracked call and stops the audio router.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	callIDs := make([]string, 0, len(r.calls))
	for callID := range r.calls {
		callIDs = append(callIDs, callID)
	}
	r.mu.RUnlock()

	for _, callID := range callIDs {
		r.finalize(callID, domain.CallStatusCompleted)
	}
	r.router.Shutdown()
}

// finalize removes a session, tears down its audio stream and fires the
// terminal bookkeeping. Duplicate terminal events find no session and
// return without effect.
func (r *Registry) finalize(callID string, status domain.CallStatus) {
	r.mu.Lock()
	sess, ok := r.calls[callID]
	if !ok {
		r.mu.Unlock()
		logger.Base().Debug("Terminal event for inactive call",
			zap.String("call_id", callID),
			zap.String("status", string(status)))
		return
	}
	delete(r.calls, callID)

	endTime := r.now()
	sess.Status = status
	sess.EndTime = &endTime
	r.mu.Unlock()

	duration := sess.Duration(endTime)

	logger.Base().Info("Call ended",
		zap.String("call_id", callID),
		zap.String("status", string(status)),
		zap.Duration("duration", duration))

	r.router.UnregisterCall(callID)

	if r.sessions != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.sessions.Unregister(ctx, callID); err != nil {
				logger.Base().Warn("Failed to remove call session snapshot",
					zap.String("call_id", callID),
					zap.Error(err))
			}
		}()
	}

	if r.analyticsSink != nil {
		event := analytics.CallEvent{
			CallID:          sess.CallID,
			Phone:           sess.PhoneNumber,
			Status:          string(status),
			Service:         sess.Service(),
			Direction:       string(sess.Direction),
			Timestamp:       endTime,
			DurationSeconds: int(duration.Seconds()),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := r.analyticsSink.PublishCallEvent(ctx, event); err != nil {
				logger.Base().Warn("Failed to publish call analytics event",
					zap.String("call_id", event.CallID),
					zap.Error(err))
			}
		}()
	}

	if r.repo != nil {
		record := &domain.CallRecord{
			CallID:          sess.CallID,
			SessionID:       sess.SessionID,
			PhoneNumber:     sess.PhoneNumber,
			Direction:       sess.Direction,
			Status:          status,
			Service:         sess.Service(),
			StartedAt:       sess.StartTime,
			EndedAt:         endTime,
			DurationSeconds: int(duration.Seconds()),
			Metadata:        domain.JSONB(sess.Metadata),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.repo.CallRecords().Create(ctx, record); err != nil {
				logger.Base().Warn("Failed to persist call record",
					zap.String("call_id", record.CallID),
					zap.Error(err))
			}
		}()
	}
}
