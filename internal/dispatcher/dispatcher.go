// Package dispatcher fans a freshly stored notification record out to its
// delivery channels. It observes the notifications table change-feed rather
// than being called by the watcher, so records inserted by anything else (an
// administrative broadcast, a backfill) are delivered the same way.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/waveline-app/notify-core/internal/channels"
	"github.com/waveline-app/notify-core/internal/feed"
	"github.com/waveline-app/notify-core/internal/models"
	"github.com/waveline-app/notify-core/internal/realtime"
	"github.com/waveline-app/notify-core/pkg/logger"
)

const dispatchTimeout = 15 * time.Second

// Hub is the slice of *realtime.Hub the dispatcher needs.
type Hub interface {
	SendRecord(userID uint, change models.NotificationChange)
	SendToast(userID uint, t realtime.Toast)
}

// Dispatcher delivers one record to at most one of {remote push, local
// alert}, always updates the in-app path, and always emits a toast. In-app
// only is a valid terminal state, not an error.
type Dispatcher struct {
	registry *channels.Registry
	hub      Hub
}

func New(registry *channels.Registry, hub Hub) *Dispatcher {
	return &Dispatcher{registry: registry, hub: hub}
}

// Register attaches the dispatcher to the notifications table feed.
func (d *Dispatcher) Register(ctx context.Context, lv *feed.Liveness) error {
	return lv.Register(ctx, feed.Subscription{
		Table:   models.NotificationRecord{}.TableName(),
		Actions: []feed.Action{feed.ActionInsert},
		Handler: d.onInsert,
	})
}

func (d *Dispatcher) onInsert(ev feed.Event) {
	var change models.NotificationChange
	if err := ev.DecodeRow(&change); err != nil {
		logger.Log.WithError(err).WithField("event", ev.ID).Warn("Undecodable notification change event")
		return
	}
	if change.Record == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	d.Dispatch(ctx, change.Record)
}

// Dispatch runs the delivery algorithm for one record.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *models.NotificationRecord) {
	// In-app list/state update happens first and is never skipped.
	d.hub.SendRecord(rec.UserID, models.NotificationChange{UserID: rec.UserID, Record: rec})

	title := titleFor(rec.Type)
	metadata := map[string]string{
		"notification_id": fmt.Sprint(rec.ID),
		"type":            string(rec.Type),
	}
	if rec.ReferenceID != "" {
		metadata["reference_id"] = rec.ReferenceID
	}

	// A remote push and the local alert are alternatives: at most one fires.
	remote := d.registry.ActiveRemote(ctx, rec.UserID)
	switch {
	case remote != nil:
		if err := remote.Deliver(ctx, rec.UserID, title, rec.Content, metadata); err != nil {
			logger.Log.WithError(err).WithFields(logrus.Fields{
				"channel": remote.ID(),
				"user_id": rec.UserID,
			}).Warn("Remote delivery failed, falling back to local alert")
			d.deliverLocal(ctx, rec, title, metadata)
		}
	default:
		d.deliverLocal(ctx, rec, title, metadata)
	}

	// Immediate feedback regardless of channel outcome; independent of the
	// record's read state.
	d.hub.SendToast(rec.UserID, realtime.Toast{Type: rec.Type, Content: rec.Content})
}

func (d *Dispatcher) deliverLocal(ctx context.Context, rec *models.NotificationRecord, title string, metadata map[string]string) {
	local := d.registry.Local()
	if local == nil {
		return
	}
	if state, err := local.PermissionState(ctx, rec.UserID); err != nil || state != models.PermissionGranted {
		return // in-app only, valid terminal state
	}
	if err := local.Deliver(ctx, rec.UserID, title, rec.Content, metadata); err != nil {
		logger.Log.WithError(err).WithField("user_id", rec.UserID).Debug("Local alert delivery failed")
	}
}

func titleFor(t models.NotificationType) string {
	switch t {
	case models.NotificationMessage:
		return "New message"
	case models.NotificationFriendRequest:
		return "Friend request"
	case models.NotificationFriendAccepted:
		return "Friend request accepted"
	case models.NotificationFriendRejected:
		return "Friend request declined"
	case models.NotificationLike:
		return "New like"
	case models.NotificationComment:
		return "New comment"
	case models.NotificationAdminBroadcast:
		return "Announcement"
	default:
		return "Notification"
	}
}
