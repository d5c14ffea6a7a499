package channels

import (
	"context"

	"github.com/waveline-app/notify-core/internal/models"
)

// Registry holds every configured channel in explicit priority order. The
// dispatcher always picks the single highest-priority subscribed remote
// channel, so two providers that both report subscribed can never double-fire
// a push.
type Registry struct {
	ordered []Channel
}

func NewRegistry(ordered ...Channel) *Registry {
	return &Registry{ordered: ordered}
}

// Channels returns the channels in priority order.
func (r *Registry) Channels() []Channel {
	return r.ordered
}

// ByID returns the channel with the given id, or nil.
func (r *Registry) ByID(id string) Channel {
	for _, ch := range r.ordered {
		if ch.ID() == id {
			return ch
		}
	}
	return nil
}

// ActiveRemote returns the highest-priority remote channel currently
// subscribed for the user, or nil when none is.
func (r *Registry) ActiveRemote(ctx context.Context, userID uint) Channel {
	for _, ch := range r.ordered {
		if ch.Kind() != KindRemote {
			continue
		}
		if ch.Subscribed(ctx, userID) {
			return ch
		}
	}
	return nil
}

// Local returns the local alert channel, or nil when none is configured.
func (r *Registry) Local() Channel {
	for _, ch := range r.ordered {
		if ch.Kind() == KindLocal {
			return ch
		}
	}
	return nil
}

// PermissionGranted reports whether any channel currently has granted
// permission: the facade's logical-OR permission flag.
func (r *Registry) PermissionGranted(ctx context.Context, userID uint) bool {
	for _, ch := range r.ordered {
		if state, err := ch.PermissionState(ctx, userID); err == nil && state == models.PermissionGranted {
			return true
		}
	}
	return false
}
