package thinq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cleanbot/internal/device"
)

// requestTimeout bounds a single request/response round-trip when the
// caller's context carries no earlier deadline.
const requestTimeout = 10 * time.Second

// Client is a WebSocket client for the appliance cloud gateway. It owns
// the session handshake and the request/response plumbing; it satisfies
// device.Session for one device.
type Client struct {
	url      string
	token    string
	deviceID string
	logger   *zap.Logger

	conn      *websocket.Conn
	connected bool
	connMu    sync.RWMutex

	msgID   int
	msgIDMu sync.Mutex

	pending   map[int]chan Message
	pendingMu sync.Mutex

	writeMu sync.Mutex // protects websocket writes

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a gateway client for one device
func NewClient(url, token, deviceID string, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:      url,
		token:    token,
		deviceID: deviceID,
		logger:   logger.Named("gateway"),
		pending:  make(map[int]chan Message),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Connect establishes the WebSocket connection and authenticates
func (c *Client) Connect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.connected {
		return fmt.Errorf("already connected")
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to gateway: %w", err)
	}
	c.conn = conn

	// Receive auth_required
	var authRequired Message
	if err := c.conn.ReadJSON(&authRequired); err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to read auth_required: %w", err)
	}
	if authRequired.Type != "auth_required" {
		c.conn.Close()
		return fmt.Errorf("expected auth_required, got %s", authRequired.Type)
	}

	// Send authentication
	c.writeMu.Lock()
	err = c.conn.WriteJSON(AuthMessage{Type: "auth", AccessToken: c.token})
	c.writeMu.Unlock()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to send auth: %w", err)
	}

	// Receive auth response
	var authResponse Message
	if err := c.conn.ReadJSON(&authResponse); err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to read auth response: %w", err)
	}
	if authResponse.Type == "auth_invalid" {
		c.conn.Close()
		return fmt.Errorf("authentication failed: invalid token")
	}
	if authResponse.Type != "auth_ok" {
		c.conn.Close()
		return fmt.Errorf("expected auth_ok, got %s", authResponse.Type)
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.connected = true
	c.logger.Info("Connected to gateway", zap.String("device_id", c.deviceID))

	go c.receiveMessages(c.ctx, conn)

	return nil
}

// Disconnect closes the WebSocket connection
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.connected {
		return nil
	}

	c.cancel()
	c.connected = false

	if c.conn != nil {
		c.writeMu.Lock()
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		c.conn.Close()
		c.conn = nil
	}

	c.logger.Info("Disconnected from gateway")
	return nil
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// RequestPayload implements device.Session. A response with an empty
// result means the gateway had nothing new and yields a nil payload.
func (c *Client) RequestPayload(ctx context.Context, category string, auxV1, auxV2 time.Duration, richQuery bool) (device.Payload, error) {
	msgID := c.nextMsgID()
	resp, err := c.sendMessage(ctx, msgID, &StatusRequest{
		ID:            msgID,
		Type:          "device_status",
		DeviceID:      c.deviceID,
		Category:      category,
		AuxIntervalV1: int(auxV1.Seconds()),
		AuxIntervalV2: int(auxV2.Seconds()),
		RichQuery:     richQuery,
	})
	if err != nil {
		return nil, err
	}
	if resp.Success != nil && !*resp.Success {
		return nil, responseError("status request", resp)
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}
	return device.Payload(resp.Result), nil
}

// SendCommand implements device.Session
func (c *Client) SendCommand(ctx context.Context, cmd device.Command) error {
	msgID := c.nextMsgID()
	resp, err := c.sendMessage(ctx, msgID, &CommandRequest{
		ID:       msgID,
		Type:     "device_control",
		DeviceID: c.deviceID,
		Group:    cmd.Group,
		Command:  cmd.Command,
		Value:    cmd.Value,
	})
	if err != nil {
		return err
	}
	if resp.Success != nil && !*resp.Success {
		return responseError("command", resp)
	}
	return nil
}

// nextMsgID returns the next message ID
func (c *Client) nextMsgID() int {
	c.msgIDMu.Lock()
	defer c.msgIDMu.Unlock()
	c.msgID++
	return c.msgID
}

// sendMessage sends a request frame and waits for the matching response.
// The connection context is snapshotted under the lock: Connect swaps
// c.ctx on reconnect.
func (c *Client) sendMessage(ctx context.Context, msgID int, msg any) (*Message, error) {
	c.connMu.RLock()
	if !c.connected {
		c.connMu.RUnlock()
		return nil, fmt.Errorf("not connected")
	}
	conn := c.conn
	connCtx := c.ctx
	c.connMu.RUnlock()

	respChan := make(chan Message, 1)
	c.pendingMu.Lock()
	c.pending[msgID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, msgID)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err := conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	select {
	case resp := <-respChan:
		return &resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-connCtx.Done():
		return nil, fmt.Errorf("connection closed")
	case <-time.After(requestTimeout):
		return nil, fmt.Errorf("timeout waiting for response to message %d", msgID)
	}
}

// receiveMessages dispatches response frames to their pending callers.
// ctx and conn are the connection context and socket captured at
// Connect time, so a receiver never outlives its own connection.
func (c *Client) receiveMessages(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-ctx.Done():
				// Expected on Disconnect.
			default:
				c.logger.Warn("Read error, stopping receiver", zap.Error(err))
			}
			return
		}

		if msg.ID == 0 {
			c.logger.Debug("Ignoring unsolicited frame", zap.String("type", msg.Type))
			continue
		}

		c.pendingMu.Lock()
		respChan, ok := c.pending[msg.ID]
		c.pendingMu.Unlock()
		if !ok {
			c.logger.Debug("No pending request for frame", zap.Int("id", msg.ID))
			continue
		}

		select {
		case respChan <- msg:
		default:
		}
	}
}

func responseError(op string, resp *Message) error {
	if resp.Error != nil {
		return fmt.Errorf("%s failed: %s (%s)", op, resp.Error.Message, resp.Error.Code)
	}
	return fmt.Errorf("%s failed", op)
}
