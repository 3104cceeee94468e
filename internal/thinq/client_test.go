package thinq

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cleanbot/internal/device"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// mockGatewayServer creates a mock cloud gateway WebSocket server
func mockGatewayServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		defer conn.Close()

		handler(conn)
	}))
}

// standardAuthFlow handles the gateway authentication handshake
func standardAuthFlow(t *testing.T, conn *websocket.Conn, token string) {
	err := conn.WriteJSON(Message{Type: "auth_required"})
	require.NoError(t, err)

	var auth AuthMessage
	err = conn.ReadJSON(&auth)
	require.NoError(t, err)
	require.Equal(t, "auth", auth.Type)

	if auth.AccessToken != token {
		err = conn.WriteJSON(Message{Type: "auth_invalid"})
		require.NoError(t, err)
		return
	}

	err = conn.WriteJSON(Message{Type: "auth_ok"})
	require.NoError(t, err)
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func boolPtr(v bool) *bool { return &v }

func TestClientConnect(t *testing.T) {
	done := make(chan struct{})
	server := mockGatewayServer(t, func(conn *websocket.Conn) {
		standardAuthFlow(t, conn, "secret")
		<-done
	})
	defer server.Close()
	defer close(done)

	client := NewClient(wsURL(server), "secret", "robot-1", zap.NewNop())
	require.NoError(t, client.Connect())
	defer client.Disconnect()

	assert.True(t, client.IsConnected())
	assert.Error(t, client.Connect(), "double connect must fail")
}

func TestClientConnectInvalidToken(t *testing.T) {
	server := mockGatewayServer(t, func(conn *websocket.Conn) {
		standardAuthFlow(t, conn, "secret")
	})
	defer server.Close()

	client := NewClient(wsURL(server), "wrong", "robot-1", zap.NewNop())
	err := client.Connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token")
	assert.False(t, client.IsConnected())
}

func TestClientRequestPayload(t *testing.T) {
	server := mockGatewayServer(t, func(conn *websocket.Conn) {
		standardAuthFlow(t, conn, "secret")

		var req StatusRequest
		require.NoError(t, conn.ReadJSON(&req))
		assert.Equal(t, "device_status", req.Type)
		assert.Equal(t, "robot-1", req.DeviceID)
		assert.Equal(t, "robotKing", req.Category)
		assert.Equal(t, 300, req.AuxIntervalV1)
		assert.Equal(t, 300, req.AuxIntervalV2)
		assert.True(t, req.RichQuery)

		require.NoError(t, conn.WriteJSON(Message{
			ID:      req.ID,
			Type:    "result",
			Success: boolPtr(true),
			Result:  map[string]any{"State": "STATE_WORKING"},
		}))
	})
	defer server.Close()

	client := NewClient(wsURL(server), "secret", "robot-1", zap.NewNop())
	require.NoError(t, client.Connect())
	defer client.Disconnect()

	payload, err := client.RequestPayload(context.Background(), "robotKing", 5*time.Minute, 5*time.Minute, true)
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, "STATE_WORKING", payload["State"])
}

func TestClientRequestPayloadEmptyResult(t *testing.T) {
	server := mockGatewayServer(t, func(conn *websocket.Conn) {
		standardAuthFlow(t, conn, "secret")

		var req StatusRequest
		require.NoError(t, conn.ReadJSON(&req))
		require.NoError(t, conn.WriteJSON(Message{
			ID:      req.ID,
			Type:    "result",
			Success: boolPtr(true),
		}))
	})
	defer server.Close()

	client := NewClient(wsURL(server), "secret", "robot-1", zap.NewNop())
	require.NoError(t, client.Connect())
	defer client.Disconnect()

	payload, err := client.RequestPayload(context.Background(), "robotKing", 5*time.Minute, 5*time.Minute, true)
	require.NoError(t, err)
	assert.Nil(t, payload, "empty result must read as nothing-new")
}

func TestClientSendCommand(t *testing.T) {
	server := mockGatewayServer(t, func(conn *websocket.Conn) {
		standardAuthFlow(t, conn, "secret")

		var req CommandRequest
		require.NoError(t, conn.ReadJSON(&req))
		assert.Equal(t, "device_control", req.Type)
		assert.Equal(t, "Config", req.Group)
		assert.Equal(t, "Wakeup", req.Command)

		require.NoError(t, conn.WriteJSON(Message{
			ID:      req.ID,
			Type:    "result",
			Success: boolPtr(true),
		}))
	})
	defer server.Close()

	client := NewClient(wsURL(server), "secret", "robot-1", zap.NewNop())
	require.NoError(t, client.Connect())
	defer client.Disconnect()

	err := client.SendCommand(context.Background(), device.Command{Group: "Config", Command: "Wakeup"})
	require.NoError(t, err)
}

func TestClientSendCommandRejected(t *testing.T) {
	server := mockGatewayServer(t, func(conn *websocket.Conn) {
		standardAuthFlow(t, conn, "secret")

		var req CommandRequest
		require.NoError(t, conn.ReadJSON(&req))
		require.NoError(t, conn.WriteJSON(Message{
			ID:      req.ID,
			Type:    "result",
			Success: boolPtr(false),
			Error:   &Error{Code: "not_supported", Message: "unsupported command"},
		}))
	})
	defer server.Close()

	client := NewClient(wsURL(server), "secret", "robot-1", zap.NewNop())
	require.NoError(t, client.Connect())
	defer client.Disconnect()

	err := client.SendCommand(context.Background(), device.Command{Group: "WakeUp"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported command")
}

func TestClientRequestWithoutConnection(t *testing.T) {
	client := NewClient("ws://localhost:1", "secret", "robot-1", zap.NewNop())

	_, err := client.RequestPayload(context.Background(), "robotKing", 5*time.Minute, 5*time.Minute, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestClientRequestContextCancelled(t *testing.T) {
	done := make(chan struct{})
	server := mockGatewayServer(t, func(conn *websocket.Conn) {
		standardAuthFlow(t, conn, "secret")
		// Swallow the request and never answer.
		var req StatusRequest
		_ = conn.ReadJSON(&req)
		<-done
	})
	defer server.Close()
	defer close(done)

	client := NewClient(wsURL(server), "secret", "robot-1", zap.NewNop())
	require.NoError(t, client.Connect())
	defer client.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.RequestPayload(ctx, "robotKing", 5*time.Minute, 5*time.Minute, true)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientReconnect(t *testing.T) {
	var conns atomic.Int32
	firstRequest := make(chan struct{})
	release := make(chan struct{})
	server := mockGatewayServer(t, func(conn *websocket.Conn) {
		n := conns.Add(1)
		standardAuthFlow(t, conn, "secret")

		for {
			var req StatusRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if n == 1 {
				// Stall the first session so its caller is still
				// waiting when the connection is torn down.
				close(firstRequest)
				<-release
				continue
			}
			require.NoError(t, conn.WriteJSON(Message{
				ID:      req.ID,
				Type:    "result",
				Success: boolPtr(true),
				Result:  map[string]any{"State": "STATE_WORKING"},
			}))
		}
	})
	defer server.Close()
	defer close(release)

	client := NewClient(wsURL(server), "secret", "robot-1", zap.NewNop())
	require.NoError(t, client.Connect())

	inFlight := make(chan error, 1)
	go func() {
		_, err := client.RequestPayload(context.Background(), "robotKing", 5*time.Minute, 5*time.Minute, true)
		inFlight <- err
	}()

	<-firstRequest
	require.NoError(t, client.Disconnect())
	err := <-inFlight
	require.Error(t, err, "in-flight request must fail when the connection closes")
	assert.Contains(t, err.Error(), "connection closed")

	require.NoError(t, client.Connect())
	defer client.Disconnect()

	payload, err := client.RequestPayload(context.Background(), "robotKing", 5*time.Minute, 5*time.Minute, true)
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, "STATE_WORKING", payload["State"])
}
