package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/waveline-app/notify-core/internal/models"
	"github.com/waveline-app/notify-core/pkg/logger"
)

// Frame kinds pushed to the connected user agent.
const (
	FrameToast             = "notification-arrived" // transient toast, independent of read state
	FrameAlert             = "local-alert"          // render a user-agent alert
	FrameRecord            = "notification"         // in-app list/state update
	FramePermissionRequest = "permission-request"   // ask the user agent to prompt
)

// Frame is one message on the per-user websocket.
type Frame struct {
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload,omitempty"`
}

// Toast is the payload of a FrameToast frame.
type Toast struct {
	ID      string                  `json:"id"`
	Type    models.NotificationType `json:"type"`
	Content string                  `json:"content"`
}

// Alert is the payload of a FrameAlert frame.
type Alert struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

const sendBuffer = 32

// Client is one attached websocket connection. Writes go through a buffered
// channel drained by a single writer goroutine, so hub callers never block on
// a slow socket.
type Client struct {
	userID uint
	conn   *websocket.Conn
	send   chan Frame
	once   sync.Once
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.send)
	})
}

func (c *Client) writePump() {
	for f := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteJSON(f); err != nil {
			logger.Log.WithError(err).WithField("user_id", c.userID).Debug("Websocket write failed")
			_ = c.conn.Close()
			// keep draining so senders never block
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.Close()
}

// Hub tracks the websocket connections of logged-in users and routes frames
// to them. It also brokers permission prompts: a prompt frame goes out, the
// client reports the user's decision over the REST surface, and the waiting
// caller is resolved (or times out, permission requests must never hang).
type Hub struct {
	mu      sync.Mutex
	clients map[uint]map[*Client]struct{}
	pending map[string]chan models.PermissionState
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[uint]map[*Client]struct{}),
		pending: make(map[string]chan models.PermissionState),
	}
}

// Attach registers conn for userID and starts its writer. The caller owns the
// read loop and must call Detach when it ends.
func (h *Hub) Attach(userID uint, conn *websocket.Conn) *Client {
	c := &Client{userID: userID, conn: conn, send: make(chan Frame, sendBuffer)}
	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	return c
}

func (h *Hub) Detach(c *Client) {
	h.mu.Lock()
	if set, ok := h.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	c.Close()
}

// Connected reports whether the user has at least one attached socket.
func (h *Hub) Connected(userID uint) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID]) > 0
}

// Send queues f for every socket of userID. Returns an error when the user
// has no attached socket, so callers that need delivery (the local alert
// channel) can fall through.
func (h *Hub) Send(userID uint, f Frame) error {
	h.mu.Lock()
	set := h.clients[userID]
	targets := make([]*Client, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		return fmt.Errorf("user %d has no active connection", userID)
	}
	for _, c := range targets {
		select {
		case c.send <- f:
		default:
			logger.Log.WithField("user_id", userID).Warn("Websocket send buffer full, dropping frame")
		}
	}
	return nil
}

// SendToast emits the transient notification-arrived event.
func (h *Hub) SendToast(userID uint, t Toast) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	// Best effort: a toast with nobody connected is simply lost.
	_ = h.Send(userID, Frame{Kind: FrameToast, Payload: t})
}

// SendAlert asks the user agent to render a local notification.
func (h *Hub) SendAlert(ctx context.Context, userID uint, a Alert) error {
	return h.Send(userID, Frame{Kind: FrameAlert, Payload: a})
}

// SendRecord pushes an in-app list update.
func (h *Hub) SendRecord(userID uint, change models.NotificationChange) {
	_ = h.Send(userID, Frame{Kind: FrameRecord, Payload: change})
}

// PromptPermission sends a permission-request frame and waits for the client
// to report the decision via ResolvePermission, bounded by ctx.
func (h *Hub) PromptPermission(ctx context.Context, userID uint, channelID string) (models.PermissionState, error) {
	key := promptKey(userID, channelID)

	h.mu.Lock()
	ch, exists := h.pending[key]
	if !exists {
		ch = make(chan models.PermissionState, 1)
		h.pending[key] = ch
	}
	h.mu.Unlock()

	if err := h.Send(userID, Frame{Kind: FramePermissionRequest, Payload: map[string]string{"channel_id": channelID}}); err != nil {
		h.dropPrompt(key)
		return models.PermissionUndetermined, err
	}

	select {
	case state := <-ch:
		h.dropPrompt(key)
		return state, nil
	case <-ctx.Done():
		h.dropPrompt(key)
		return models.PermissionUndetermined, ctx.Err()
	}
}

// ResolvePermission completes a pending prompt, if any. Also called for
// unsolicited permission reports, which simply have no waiter.
func (h *Hub) ResolvePermission(userID uint, channelID string, state models.PermissionState) {
	h.mu.Lock()
	ch := h.pending[promptKey(userID, channelID)]
	h.mu.Unlock()
	if ch != nil {
		select {
		case ch <- state:
		default:
		}
	}
}

func (h *Hub) dropPrompt(key string) {
	h.mu.Lock()
	delete(h.pending, key)
	h.mu.Unlock()
}

func promptKey(userID uint, channelID string) string {
	return fmt.Sprintf("%d:%s", userID, channelID)
}
