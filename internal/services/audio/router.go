package audio

import (
	"context"
	"sync"
	"time"

	"github.com/realjules/SpeakWise/pkg/logger"
	"github.com/realjules/SpeakWise/pkg/speech"
	"go.uber.org/zap"
)

const (
	// DefaultIdleTimeout is how long a call may go without inbound audio
	// before its stream is torn down.
	DefaultIdleTimeout = 30 * time.Second

	// DefaultQueueSize bounds each per-call audio queue.
	DefaultQueueSize = 64

	// workerPollInterval is the dequeue timeout inside the worker loop.
	// It paces idle checks and shutdown observation.
	workerPollInterval = 1 * time.Second
)

// streamContext holds the duplex audio pipeline for one active call.
// Queues are never shared between calls.
type streamContext struct {
	callID       string
	inbound      chan []byte
	outbound     chan []byte
	stop         chan struct{}
	done         chan struct{}
	stopOnce     sync.Once
	mu           sync.Mutex
	lastActivity time.Time
	active       bool
}

func (s *streamContext) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *streamContext) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

func (s *streamContext) markInactive() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// Router owns one audio pipeline per active call. Each call gets its own
// worker goroutine and its own bounded queue pair so a stalled speech
// pipeline on one call cannot delay audio for any other call.
type Router struct {
	processor   speech.Processor
	idleTimeout time.Duration
	queueSize   int
	poll        time.Duration
	now         func() time.Time

	mu      sync.RWMutex
	streams map[string]*streamContext
}

// Option configures a Router.
type Option func(*Router)

// WithIdleTimeout overrides the inbound-audio idle timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Router) { r.idleTimeout = d }
}

// WithQueueSize overrides the per-call queue capacity.
func WithQueueSize(n int) Option {
	return func(r *Router) { r.queueSize = n }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// NewRouter creates an audio router backed by the given speech processor.
func NewRouter(processor speech.Processor, opts ...Option) *Router {
	r := &Router{
		processor:   processor,
		idleTimeout: DefaultIdleTimeout,
		queueSize:   DefaultQueueSize,
		poll:        workerPollInterval,
		now:         time.Now,
		streams:     make(map[string]*streamContext),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterCall creates the audio stream for a call and starts its worker.
// Registering an already registered call is a no-op.
func (r *Router) RegisterCall(callID string) {
	r.mu.Lock()
	if _, exists := r.streams[callID]; exists {
		r.mu.Unlock()
		logger.Base().Debug("Audio stream already registered",
			zap.String("call_id", callID))
		return
	}

	stream := &streamContext{
		callID:       callID,
		inbound:      make(chan []byte, r.queueSize),
		outbound:     make(chan []byte, r.queueSize),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		lastActivity: r.now(),
		active:       true,
	}
	r.streams[callID] = stream
	r.mu.Unlock()

	go r.runWorker(stream)

	logger.Base().Info("Registered audio stream",
		zap.String("call_id", callID))
}

// UnregisterCall tears down the audio stream for a call and waits briefly
// for its worker to exit. Unknown or already unregistered calls are a no-op.
func (r *Router) UnregisterCall(callID string) {
	r.mu.Lock()
	stream, exists := r.streams[callID]
	if exists {
		delete(r.streams, callID)
	}
	r.mu.Unlock()

	if !exists {
		return
	}

	stream.markInactive()
	stream.stopOnce.Do(func() { close(stream.stop) })

	select {
	case <-stream.done:
	case <-time.After(2 * time.Second):
		logger.Base().Warn("Timed out waiting for audio worker to exit",
			zap.String("call_id", callID))
	}

	logger.Base().Info("Unregistered audio stream",
		zap.String("call_id", callID))
}

// RouteAudio enqueues an inbound audio chunk for a call and returns the
// next synthesized reply chunk if one is ready. For an unknown call it
// logs a warning and returns nil.
func (r *Router) RouteAudio(callID string, chunk []byte) []byte {
	if !r.QueueIncomingAudio(callID, chunk) {
		return nil
	}
	return r.GetOutgoingAudio(callID)
}

// QueueIncomingAudio enqueues an inbound audio chunk without touching
// the outbound queue. Transports that deliver replies on their own
// writer loop use this so a reply is never consumed on the read path.
// It reports whether the call has a registered stream.
func (r *Router) QueueIncomingAudio(callID string, chunk []byte) bool {
	r.mu.RLock()
	stream, exists := r.streams[callID]
	r.mu.RUnlock()

	if !exists {
		logger.Base().Warn("Audio received for unknown call",
			zap.String("call_id", callID),
			zap.Int("chunk_bytes", len(chunk)))
		return false
	}

	stream.touch(r.now())

	select {
	case stream.inbound <- chunk:
	default:
		// Queue full: drop the oldest chunk to keep ingress latency bounded.
		select {
		case <-stream.inbound:
			logger.Base().Warn("Inbound audio queue full, dropped oldest chunk",
				zap.String("call_id", callID))
		default:
		}
		select {
		case stream.inbound <- chunk:
		default:
		}
	}
	return true
}

// QueueOutgoingAudio pushes a synthesized chunk onto a call's outbound
// queue. Unknown calls are a no-op.
func (r *Router) QueueOutgoingAudio(callID string, chunk []byte) {
	r.mu.RLock()
	stream, exists := r.streams[callID]
	r.mu.RUnlock()

	if !exists {
		logger.Base().Warn("Outgoing audio for unknown call",
			zap.String("call_id", callID))
		return
	}

	select {
	case stream.outbound <- chunk:
	default:
		select {
		case <-stream.outbound:
			logger.Base().Warn("Outbound audio queue full, dropped oldest chunk",
				zap.String("call_id", callID))
		default:
		}
		select {
		case stream.outbound <- chunk:
		default:
		}
	}
}

// GetOutgoingAudio returns the next synthesized chunk for a call without
// blocking, or nil when none is ready or the call is unknown.
func (r *Router) GetOutgoingAudio(callID string) []byte {
	r.mu.RLock()
	stream, exists := r.streams[callID]
	r.mu.RUnlock()

	if !exists {
		return nil
	}

	select {
	case chunk := <-stream.outbound:
		return chunk
	default:
		return nil
	}
}

// IsActive reports whether a call currently has a live audio stream.
func (r *Router) IsActive(callID string) bool {
	r.mu.RLock()
	stream, exists := r.streams[callID]
	r.mu.RUnlock()
	if !exists {
		return false
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	return stream.active
}

// ActiveStreams returns the number of registered audio streams.
func (r *Router) ActiveStreams() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// Shutdown tears down all audio streams.
func (r *Router) Shutdown() {
	r.mu.Lock()
	callIDs := make([]string, 0, len(r.streams))
	for callID := range r.streams {
		callIDs = append(callIDs, callID)
	}
	r.mu.Unlock()

	for _, callID := range callIDs {
		r.UnregisterCall(callID)
	}

	logger.Base().Info("Audio router shut down",
		zap.Int("streams_closed", len(callIDs)))
}

// runWorker drains one call's inbound queue through the speech pipeline.
// A failure on one chunk never terminates the worker.
func (r *Router) runWorker(stream *streamContext) {
	defer close(stream.done)

	timer := time.NewTimer(r.poll)
	defer timer.Stop()

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(r.poll)

		select {
		case <-stream.stop:
			return
		case chunk := <-stream.inbound:
			stream.touch(r.now())
			r.processChunk(stream, chunk)
		case <-timer.C:
			if stream.idleSince(r.now()) > r.idleTimeout {
				stream.markInactive()
				logger.Base().Info("Audio stream idle, stopping worker",
					zap.String("call_id", stream.callID),
					zap.Duration("idle_timeout", r.idleTimeout))
				return
			}
		}
	}
}

// processChunk runs one inbound chunk through transcribe, respond and
// synthesize, queueing the reply audio on success.
func (r *Router) processChunk(stream *streamContext, chunk []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	text, err := r.processor.Transcribe(ctx, chunk)
	if err != nil {
		logger.Base().Error("Failed to transcribe audio chunk",
			zap.String("call_id", stream.callID),
			zap.Error(err))
		return
	}
	if text == "" {
		return
	}

	reply, err := r.processor.GenerateResponse(ctx, stream.callID, text)
	if err != nil {
		logger.Base().Error("Failed to generate dialog response",
			zap.String("call_id", stream.callID),
			zap.Error(err))
		return
	}
	if reply == "" {
		return
	}

	replyAudio, err := r.processor.Synthesize(ctx, reply)
	if err != nil {
		logger.Base().Error("Failed to synthesize reply audio",
			zap.String("call_id", stream.callID),
			zap.Error(err))
		return
	}

	r.QueueOutgoingAudio(stream.callID, replyAudio)
}
