package channels

import (
	"context"
	"time"

	"firebase.google.com/go/v4/messaging"

	"github.com/waveline-app/notify-core/internal/models"
	"github.com/waveline-app/notify-core/internal/notify"
	"github.com/waveline-app/notify-core/internal/repositories"
	"github.com/waveline-app/notify-core/pkg/logger"
)

const FCMChannelID = "fcm"

// MessageSender is the slice of *messaging.Client this channel needs.
type MessageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMOptions shapes the webpush payload handed to the background delivery
// agent (service worker): fixed icon/badge and a click action that focuses
// or opens the application.
type FCMOptions struct {
	Icon          string
	Badge         string
	ClickLink     string
	PromptTimeout time.Duration
}

// FCMChannel delivers remote pushes through Firebase Cloud Messaging. The
// registration token comes from the client (the provider hands it out on the
// user-agent side) and is persisted as the subscription handle; permission
// state lives alongside it and is re-read before every send.
type FCMChannel struct {
	sender   MessageSender
	subs     repositories.SubscriptionRepository
	prompter Prompter
	opts     FCMOptions
}

func NewFCMChannel(sender MessageSender, subs repositories.SubscriptionRepository, prompter Prompter, opts FCMOptions) *FCMChannel {
	if opts.PromptTimeout <= 0 {
		opts.PromptTimeout = 10 * time.Second
	}
	return &FCMChannel{sender: sender, subs: subs, prompter: prompter, opts: opts}
}

func (c *FCMChannel) ID() string { return FCMChannelID }

func (c *FCMChannel) Kind() Kind { return KindRemote }

func (c *FCMChannel) PermissionState(ctx context.Context, userID uint) (models.PermissionState, error) {
	sub, err := c.subs.GetOrCreate(ctx, userID, c.ID())
	if err != nil {
		return models.PermissionUndetermined, err
	}
	return sub.PermissionState, nil
}

func (c *FCMChannel) RequestPermission(ctx context.Context, userID uint) (models.PermissionState, error) {
	sub, err := c.subs.GetOrCreate(ctx, userID, c.ID())
	if err != nil {
		return models.PermissionUndetermined, err
	}
	if sub.PermissionState != models.PermissionUndetermined {
		// Denied is terminal and granted needs no prompt.
		return sub.PermissionState, nil
	}

	promptCtx, cancel := context.WithTimeout(ctx, c.opts.PromptTimeout)
	defer cancel()
	state, err := c.prompter.PromptPermission(promptCtx, userID, c.ID())
	if err != nil {
		return models.PermissionUndetermined, err
	}
	if !ValidTransition(sub.PermissionState, state) {
		return sub.PermissionState, nil
	}
	if err := c.subs.SetPermission(ctx, userID, c.ID(), state); err != nil {
		return models.PermissionUndetermined, err
	}
	return state, nil
}

// ReportPermission records a decision the client observed on the user-agent
// side (prompt answered, or an external revocation noticed on page load).
func (c *FCMChannel) ReportPermission(ctx context.Context, userID uint, state models.PermissionState) error {
	sub, err := c.subs.GetOrCreate(ctx, userID, c.ID())
	if err != nil {
		return err
	}
	if !ValidTransition(sub.PermissionState, state) {
		return notify.ErrPermissionDenied
	}
	if err := c.subs.SetPermission(ctx, userID, c.ID(), state); err != nil {
		return err
	}
	if state != models.PermissionGranted && sub.Subscribed() {
		return c.subs.ClearHandle(ctx, userID, c.ID())
	}
	return nil
}

func (c *FCMChannel) Subscribe(ctx context.Context, userID uint, token string) (string, error) {
	sub, err := c.subs.GetOrCreate(ctx, userID, c.ID())
	if err != nil {
		return "", err
	}
	if sub.PermissionState != models.PermissionGranted {
		return "", notify.ErrPermissionDenied
	}
	if err := c.subs.SetHandle(ctx, userID, c.ID(), token); err != nil {
		return "", err
	}
	return token, nil
}

func (c *FCMChannel) Unsubscribe(ctx context.Context, userID uint) error {
	return c.subs.ClearHandle(ctx, userID, c.ID())
}

func (c *FCMChannel) Subscribed(ctx context.Context, userID uint) bool {
	sub, err := c.subs.GetOrCreate(ctx, userID, c.ID())
	if err != nil {
		logger.Log.WithError(err).WithField("user_id", userID).Warn("Could not read FCM subscription state")
		return false
	}
	return sub.PermissionState == models.PermissionGranted && sub.Subscribed()
}

func (c *FCMChannel) Deliver(ctx context.Context, userID uint, title, body string, metadata map[string]string) error {
	// Permission can be revoked outside the app at any time; re-read, never
	// trust a cached state.
	sub, err := c.subs.GetOrCreate(ctx, userID, c.ID())
	if err != nil {
		return notify.NewChannelError(c.ID(), err)
	}
	if sub.PermissionState != models.PermissionGranted || !sub.Subscribed() {
		return notify.NewChannelError(c.ID(), notify.ErrPermissionDenied)
	}

	msg := &messaging.Message{
		Token: sub.SubscriptionHandle,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: metadata,
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Icon:  c.opts.Icon,
				Badge: c.opts.Badge,
			},
			FCMOptions: &messaging.WebpushFCMOptions{
				Link: c.opts.ClickLink,
			},
		},
	}

	if _, err := c.sender.Send(ctx, msg); err != nil {
		if messaging.IsUnregistered(err) {
			// Provider-reported revocation: drop the dead token.
			if cerr := c.subs.ClearHandle(ctx, userID, c.ID()); cerr != nil {
				logger.Log.WithError(cerr).WithField("user_id", userID).Warn("Could not clear revoked FCM token")
			}
		}
		return notify.NewChannelError(c.ID(), err)
	}
	return nil
}
