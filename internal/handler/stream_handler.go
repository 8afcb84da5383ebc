package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/realjules/SpeakWise/internal/services/audio"
	"github.com/realjules/SpeakWise/internal/services/call"
	"github.com/realjules/SpeakWise/pkg/logger"
	"go.uber.org/zap"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
	streamPollInterval = 100 * time.Millisecond
	maxStreamFrameSize = 1 << 20
)

// StreamHandler serves the websocket duplex audio stream for an active
// call. Binary frames from the client are inbound audio chunks; binary
// frames to the client are synthesized reply chunks.
type StreamHandler struct {
	registry *call.Registry
	router   *audio.Router
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(registry *call.Registry, router *audio.Router) *StreamHandler {
	return &StreamHandler{
		registry: registry,
		router:   router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// StreamAudio upgrades the connection and bridges it to the call's audio
// queues until the client disconnects or the call ends.
func (h *StreamHandler) StreamAudio(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["call_id"]

	if h.registry.GetCallInfo(callID) == nil {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Base().Warn("Failed to upgrade audio stream connection",
			zap.String("call_id", callID),
			zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxStreamFrameSize)

	logger.Base().Info("Audio stream connected",
		zap.String("call_id", callID),
		zap.String("remote_addr", r.RemoteAddr))

	done := make(chan struct{})

	// Reader: inbound audio frames into the router. Enqueue only, so
	// replies are delivered solely by the writer loop below.
	go func() {
		defer close(done)
		for {
			messageType, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			h.router.QueueIncomingAudio(callID, frame)
		}
	}()

	// Writer: synthesized replies back to the client.
	pollTicker := time.NewTicker(streamPollInterval)
	defer pollTicker.Stop()
	pingTicker := time.NewTicker(streamPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			logger.Base().Info("Audio stream disconnected",
				zap.String("call_id", callID))
			return

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-pollTicker.C:
			// Stop streaming once the call has been removed.
			if h.registry.GetCallInfo(callID) == nil {
				conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"))
				return
			}

			for {
				chunk := h.router.GetOutgoingAudio(callID)
				if chunk == nil {
					break
				}
				conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
				if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
					return
				}
			}
		}
	}
}
