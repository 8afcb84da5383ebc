package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamURL(serverURL, callID string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/telephony/stream/" + callID
}

func TestStreamAudio_UnknownCallRejected(t *testing.T) {
	router, _, _ := newTestRouter(t, &stubProvider{})
	server := httptest.NewServer(router)
	defer server.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(streamURL(server.URL, "missing"), nil)
	if conn != nil {
		conn.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamAudio_DeliversQueuedReplyAfterInboundFrame(t *testing.T) {
	router, registry, audioRouter := newTestRouter(t, &stubProvider{})

	sess, err := registry.InitiateOutboundCall(context.Background(), "+250788000000", nil)
	require.NoError(t, err)

	// A reply queued before the client sends anything must reach the
	// client, not be swallowed by the read path.
	audioRouter.QueueOutgoingAudio(sess.CallID, []byte("queued-reply"))

	server := httptest.NewServer(router)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(streamURL(server.URL, sess.CallID), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("hello")))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "queued-reply", string(frame))

	// The inbound frame still flows through the pipeline and its reply
	// follows on the same connection.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(frame))
}
