package channels

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/waveline-app/notify-core/internal/models"
	"github.com/waveline-app/notify-core/internal/notify"
	"github.com/waveline-app/notify-core/internal/realtime"
)

const LocalAlertChannelID = "localalert"

// LocalAlertChannel renders user-agent alerts through the user's websocket.
// Permission is ephemeral per session: the client reports the browser's
// Notification permission after attach, and the state machine guards the
// transitions. There is no provider, so there is no subscription handle.
type LocalAlertChannel struct {
	alerts        AlertSender
	prompter      Prompter
	promptTimeout time.Duration

	mu     sync.Mutex
	states map[uint]*StateMachine
}

func NewLocalAlertChannel(alerts AlertSender, prompter Prompter, promptTimeout time.Duration) *LocalAlertChannel {
	if promptTimeout <= 0 {
		promptTimeout = 10 * time.Second
	}
	return &LocalAlertChannel{
		alerts:        alerts,
		prompter:      prompter,
		promptTimeout: promptTimeout,
		states:        make(map[uint]*StateMachine),
	}
}

func (c *LocalAlertChannel) ID() string { return LocalAlertChannelID }

func (c *LocalAlertChannel) Kind() Kind { return KindLocal }

func (c *LocalAlertChannel) state(userID uint) *StateMachine {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.states[userID]
	if !ok {
		m = NewStateMachine()
		c.states[userID] = m
	}
	return m
}

// Reset drops the session state for a user (logout, socket teardown).
func (c *LocalAlertChannel) Reset(userID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, userID)
}

func (c *LocalAlertChannel) PermissionState(ctx context.Context, userID uint) (models.PermissionState, error) {
	return c.state(userID).Permission(), nil
}

// ReportPermission applies a client-reported user-agent decision.
func (c *LocalAlertChannel) ReportPermission(userID uint, state models.PermissionState) error {
	return c.state(userID).Apply(state)
}

func (c *LocalAlertChannel) RequestPermission(ctx context.Context, userID uint) (models.PermissionState, error) {
	m := c.state(userID)
	if cur := m.Permission(); cur != models.PermissionUndetermined {
		return cur, nil
	}

	promptCtx, cancel := context.WithTimeout(ctx, c.promptTimeout)
	defer cancel()
	state, err := c.prompter.PromptPermission(promptCtx, userID, c.ID())
	if err != nil {
		return models.PermissionUndetermined, err
	}
	if aerr := m.Apply(state); aerr != nil {
		return m.Permission(), nil
	}
	return state, nil
}

func (c *LocalAlertChannel) Subscribe(ctx context.Context, userID uint, token string) (string, error) {
	return "", fmt.Errorf("channel %s has no provider subscription", c.ID())
}

func (c *LocalAlertChannel) Unsubscribe(ctx context.Context, userID uint) error {
	return nil
}

// Subscribed is always false: the local alert never wins the remote-channel
// selection, it is only a fallback target.
func (c *LocalAlertChannel) Subscribed(ctx context.Context, userID uint) bool {
	return false
}

func (c *LocalAlertChannel) Deliver(ctx context.Context, userID uint, title, body string, metadata map[string]string) error {
	// Re-read: the client may have reported a revocation since last check.
	if c.state(userID).Permission() != models.PermissionGranted {
		return notify.NewChannelError(c.ID(), notify.ErrPermissionDenied)
	}
	err := c.alerts.SendAlert(ctx, userID, realtime.Alert{Title: title, Body: body, Metadata: metadata})
	return notify.NewChannelError(c.ID(), err)
}
