// Package watcher translates raw change-feed events on the domain tables
// into persisted notification records. It is fire-and-forget by design: a
// failed lookup or store write costs one notification and a warn log, never
// a crash and never an error back into the domain action that caused the
// event.
package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/waveline-app/notify-core/internal/feed"
	"github.com/waveline-app/notify-core/internal/models"
	"github.com/waveline-app/notify-core/internal/repositories"
	"github.com/waveline-app/notify-core/pkg/logger"
)

// Tables observed by the watcher.
const (
	TableMessages       = "messages"
	TableFriendRequests = "friend_requests"
	TableLikes          = "likes"
	TableComments       = "comments"
)

const eventTimeout = 10 * time.Second

// Watcher owns the one-rule-per-event-class mapping from domain mutations to
// notification records.
type Watcher struct {
	store repositories.NotificationRepository
	users repositories.UserRepository
	posts repositories.PostRepository
	dedup Deduper
}

func New(store repositories.NotificationRepository, users repositories.UserRepository, posts repositories.PostRepository, dedup Deduper) *Watcher {
	return &Watcher{store: store, users: users, posts: posts, dedup: dedup}
}

// Register attaches the watcher's subscriptions to the liveness manager.
func (w *Watcher) Register(ctx context.Context, lv *feed.Liveness) error {
	subs := []feed.Subscription{
		{Table: TableMessages, Actions: []feed.Action{feed.ActionInsert}, Handler: w.onMessage},
		{Table: TableFriendRequests, Actions: []feed.Action{feed.ActionInsert, feed.ActionUpdate}, Handler: w.onFriendRequest},
		{Table: TableLikes, Actions: []feed.Action{feed.ActionInsert}, Handler: w.onLike},
		{Table: TableComments, Actions: []feed.Action{feed.ActionInsert}, Handler: w.onComment},
	}
	for _, sub := range subs {
		if err := lv.Register(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) onMessage(ev feed.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	var msg models.Message
	if err := ev.DecodeRow(&msg); err != nil {
		w.warn(ev, err, "undecodable message row")
		return
	}
	if msg.SenderID == msg.ReceiverID {
		return // never notify a user about their own action
	}

	w.synthesize(ctx, ev, synthesis{
		dedupKey:  fmt.Sprintf("%s:%d:%d", TableMessages, msg.ID, msg.ReceiverID),
		recipient: msg.ReceiverID,
		actor:     msg.SenderID,
		kind:      models.NotificationMessage,
		template:  "%s sent you a message",
		reference: fmt.Sprint(msg.ID),
	})
}

func (w *Watcher) onFriendRequest(ev feed.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	var req models.FriendRequest
	if err := ev.DecodeRow(&req); err != nil {
		w.warn(ev, err, "undecodable friend request row")
		return
	}
	if req.SenderID == req.ReceiverID {
		return
	}

	switch ev.Action {
	case feed.ActionInsert:
		if req.Status != models.FriendStatusPending {
			return
		}
		w.synthesize(ctx, ev, synthesis{
			dedupKey:  fmt.Sprintf("%s:%d:%s:%d", TableFriendRequests, req.ID, req.Status, req.ReceiverID),
			recipient: req.ReceiverID,
			actor:     req.SenderID,
			kind:      models.NotificationFriendRequest,
			template:  "%s sent you a friend request",
			reference: fmt.Sprint(req.ID),
		})

	case feed.ActionUpdate:
		var old models.FriendRequest
		if err := ev.DecodeOldRow(&old); err == nil && old.Status == req.Status {
			return // no status transition, nothing to announce
		}
		s := synthesis{
			dedupKey:  fmt.Sprintf("%s:%d:%s:%d", TableFriendRequests, req.ID, req.Status, req.SenderID),
			recipient: req.SenderID, // the original sender learns the outcome
			actor:     req.ReceiverID,
			reference: fmt.Sprint(req.ID),
		}
		switch req.Status {
		case models.FriendStatusAccepted:
			s.kind = models.NotificationFriendAccepted
			s.template = "%s accepted your friend request"
		case models.FriendStatusRejected:
			s.kind = models.NotificationFriendRejected
			s.template = "%s declined your friend request"
		default:
			return
		}
		w.synthesize(ctx, ev, s)
	}
}

func (w *Watcher) onLike(ev feed.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	var like models.Like
	if err := ev.DecodeRow(&like); err != nil {
		w.warn(ev, err, "undecodable like row")
		return
	}

	post, err := w.posts.GetPostByID(ctx, like.PostID)
	if err != nil {
		w.warn(ev, err, "could not resolve liked post")
		return
	}
	if like.UserID == post.AuthorID {
		return
	}

	w.synthesize(ctx, ev, synthesis{
		dedupKey:  fmt.Sprintf("%s:%d:%d", TableLikes, like.ID, post.AuthorID),
		recipient: post.AuthorID,
		actor:     like.UserID,
		kind:      models.NotificationLike,
		template:  "%s liked your post",
		reference: like.PostID,
	})
}

func (w *Watcher) onComment(ev feed.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	var comment models.Comment
	if err := ev.DecodeRow(&comment); err != nil {
		w.warn(ev, err, "undecodable comment row")
		return
	}

	post, err := w.posts.GetPostByID(ctx, comment.PostID)
	if err != nil {
		w.warn(ev, err, "could not resolve commented post")
		return
	}
	if comment.UserID == post.AuthorID {
		return
	}

	w.synthesize(ctx, ev, synthesis{
		dedupKey:  fmt.Sprintf("%s:%d:%d", TableComments, comment.ID, post.AuthorID),
		recipient: post.AuthorID,
		actor:     comment.UserID,
		kind:      models.NotificationComment,
		template:  "%s commented on your post",
		reference: comment.PostID,
	})
}

// synthesis is one pending notification: actor still unresolved, content
// still a template.
type synthesis struct {
	dedupKey  string
	recipient uint
	actor     uint
	kind      models.NotificationType
	template  string
	reference string
}

// synthesize claims the idempotency key, resolves the actor's display name
// and writes the record. Every failure aborts just this one notification.
func (w *Watcher) synthesize(ctx context.Context, ev feed.Event, s synthesis) {
	ok, err := w.dedup.Acquire(ctx, s.dedupKey)
	if err != nil {
		w.warn(ev, err, "dedup check failed")
		return
	}
	if !ok {
		return // already synthesized for this event
	}

	actor, err := w.users.GetUserByID(ctx, s.actor)
	if err != nil {
		w.warn(ev, err, "could not resolve actor profile")
		return
	}

	record := &models.NotificationRecord{
		UserID:      s.recipient,
		Type:        s.kind,
		Content:     fmt.Sprintf(s.template, actor.Name),
		ReferenceID: s.reference,
	}
	if err := w.store.Create(ctx, record); err != nil {
		w.warn(ev, err, "could not store notification")
		return
	}
}

func (w *Watcher) warn(ev feed.Event, err error, msg string) {
	logger.Log.WithError(err).WithFields(logrus.Fields{
		"event": ev.ID,
		"table": ev.Table,
	}).Warn("Skipping notification: " + msg)
}
