package channels

import (
	"context"

	"github.com/waveline-app/notify-core/internal/models"
	"github.com/waveline-app/notify-core/internal/realtime"
)

// Kind separates remote push providers from the local user-agent alert.
type Kind string

const (
	KindRemote Kind = "remote"
	KindLocal  Kind = "local"
)

// Channel is one delivery mechanism outside the in-app list. Permission is
// owned by the user agent and can be revoked at any time outside this system,
// so implementations re-read it on every Deliver instead of caching it.
type Channel interface {
	ID() string
	Kind() Kind

	// PermissionState returns the current permission, creating tracking
	// state on first access.
	PermissionState(ctx context.Context, userID uint) (models.PermissionState, error)

	// RequestPermission drives the user-agent prompt. Denied is terminal:
	// once denied, the prompt is never re-raised automatically. The call is
	// bounded by ctx; a provider that never answers yields an error.
	RequestPermission(ctx context.Context, userID uint) (models.PermissionState, error)

	// Subscribe stores the provider opt-in. token is the provider-issued
	// registration token where the provider hands it to the client (FCM);
	// channels without provider handles reject the call. Valid only while
	// permission is granted.
	Subscribe(ctx context.Context, userID uint, token string) (string, error)

	// Unsubscribe clears the provider handle. Idempotent.
	Unsubscribe(ctx context.Context, userID uint) error

	// Subscribed reports whether the channel can deliver for this user right
	// now (active handle and granted permission, both re-read).
	Subscribed(ctx context.Context, userID uint) bool

	// Deliver sends one notification. Failures come back as *notify.ChannelError
	// and trigger dispatcher fallback, never a user-visible error.
	Deliver(ctx context.Context, userID uint, title, body string, metadata map[string]string) error
}

// Prompter asks the connected user agent for a permission decision. The
// realtime hub implements it over the per-user websocket.
type Prompter interface {
	PromptPermission(ctx context.Context, userID uint, channelID string) (models.PermissionState, error)
}

// AlertSender renders a local user-agent alert. The realtime hub implements
// it by pushing an alert frame to the client.
type AlertSender interface {
	SendAlert(ctx context.Context, userID uint, a realtime.Alert) error
}
