package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waveline-app/notify-core/internal/feed"
	"github.com/waveline-app/notify-core/internal/models"
	"github.com/waveline-app/notify-core/internal/repositories"
)

type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newMemoryDeduper() *memoryDeduper {
	return &memoryDeduper{seen: make(map[string]bool)}
}

func (d *memoryDeduper) Acquire(ctx context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

type fakeUsers struct {
	users map[uint]*models.User
	err   error
}

func (f *fakeUsers) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

type fakePosts struct {
	posts map[string]*models.Post
}

func (f *fakePosts) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return nil, errors.New("post not found")
	}
	return p, nil
}

type fixture struct {
	watcher *Watcher
	store   *repositories.MemoryNotificationRepository
	users   *fakeUsers
	posts   *fakePosts
	dedup   *memoryDeduper
}

func newFixture() *fixture {
	store := repositories.NewMemoryNotificationRepository(nil)
	users := &fakeUsers{users: map[uint]*models.User{
		1: {ID: 1, Name: "Alice"},
		2: {ID: 2, Name: "Bob"},
	}}
	posts := &fakePosts{posts: map[string]*models.Post{
		"p1": {AuthorID: 2, Content: "hello"},
	}}
	dedup := newMemoryDeduper()
	return &fixture{
		watcher: New(store, users, posts, dedup),
		store:   store,
		users:   users,
		posts:   posts,
		dedup:   dedup,
	}
}

func event(t *testing.T, table string, action feed.Action, row interface{}, old interface{}) feed.Event {
	t.Helper()
	ev := feed.Event{ID: "ev-" + table, Table: table, Action: action, At: time.Now()}
	b, err := json.Marshal(row)
	require.NoError(t, err)
	ev.Row = b
	if old != nil {
		ob, err := json.Marshal(old)
		require.NoError(t, err)
		ev.OldRow = ob
	}
	return ev
}

func listFor(t *testing.T, store *repositories.MemoryNotificationRepository, userID uint) []models.NotificationRecord {
	t.Helper()
	recs, err := store.ListByUser(context.Background(), userID, 0)
	require.NoError(t, err)
	return recs
}

func TestMessageInsertNotifiesReceiver(t *testing.T) {
	f := newFixture()
	f.watcher.onMessage(event(t, TableMessages, feed.ActionInsert,
		models.Message{ID: 10, SenderID: 1, ReceiverID: 2, Content: "hi"}, nil))

	recs := listFor(t, f.store, 2)
	require.Len(t, recs, 1)
	assert.Equal(t, models.NotificationMessage, recs[0].Type)
	assert.Equal(t, "Alice sent you a message", recs[0].Content)
	assert.Equal(t, "10", recs[0].ReferenceID)
	assert.False(t, recs[0].Read)
	assert.Empty(t, listFor(t, f.store, 1), "sender gets nothing")
}

func TestSelfActionsAreSuppressed(t *testing.T) {
	f := newFixture()

	f.watcher.onMessage(event(t, TableMessages, feed.ActionInsert,
		models.Message{ID: 10, SenderID: 2, ReceiverID: 2}, nil))
	f.watcher.onLike(event(t, TableLikes, feed.ActionInsert,
		models.Like{ID: 5, PostID: "p1", UserID: 2}, nil)) // author likes own post
	f.watcher.onComment(event(t, TableComments, feed.ActionInsert,
		models.Comment{ID: 6, PostID: "p1", UserID: 2}, nil))

	assert.Empty(t, listFor(t, f.store, 2))
}

func TestRedeliveredEventSynthesizesOnce(t *testing.T) {
	f := newFixture()
	ev := event(t, TableMessages, feed.ActionInsert,
		models.Message{ID: 10, SenderID: 1, ReceiverID: 2}, nil)

	f.watcher.onMessage(ev)
	f.watcher.onMessage(ev)

	assert.Len(t, listFor(t, f.store, 2), 1)
}

func TestDedupFailureAbortsSynthesis(t *testing.T) {
	f := newFixture()
	f.dedup.err = errors.New("redis down")

	f.watcher.onMessage(event(t, TableMessages, feed.ActionInsert,
		models.Message{ID: 10, SenderID: 1, ReceiverID: 2}, nil))

	assert.Empty(t, listFor(t, f.store, 2), "at-most-once: an unclaimed key never writes")
}

func TestActorLookupFailureSkipsNotification(t *testing.T) {
	f := newFixture()
	f.users.err = errors.New("users table unreachable")

	f.watcher.onMessage(event(t, TableMessages, feed.ActionInsert,
		models.Message{ID: 10, SenderID: 1, ReceiverID: 2}, nil))

	assert.Empty(t, listFor(t, f.store, 2))
}

func TestFriendRequestLifecycle(t *testing.T) {
	f := newFixture()

	pending := models.FriendRequest{ID: 3, SenderID: 1, ReceiverID: 2, Status: models.FriendStatusPending}
	f.watcher.onFriendRequest(event(t, TableFriendRequests, feed.ActionInsert, pending, nil))

	recs := listFor(t, f.store, 2)
	require.Len(t, recs, 1)
	assert.Equal(t, models.NotificationFriendRequest, recs[0].Type)
	assert.Equal(t, "Alice sent you a friend request", recs[0].Content)

	accepted := pending
	accepted.Status = models.FriendStatusAccepted
	f.watcher.onFriendRequest(event(t, TableFriendRequests, feed.ActionUpdate, accepted, pending))

	recs = listFor(t, f.store, 1)
	require.Len(t, recs, 1)
	assert.Equal(t, models.NotificationFriendAccepted, recs[0].Type)
	assert.Equal(t, "Bob accepted your friend request", recs[0].Content)
}

func TestFriendRequestUpdateWithoutTransitionIsIgnored(t *testing.T) {
	f := newFixture()
	req := models.FriendRequest{ID: 3, SenderID: 1, ReceiverID: 2, Status: models.FriendStatusAccepted}

	f.watcher.onFriendRequest(event(t, TableFriendRequests, feed.ActionUpdate, req, req))
	assert.Empty(t, listFor(t, f.store, 1))
}

func TestFriendRequestRejected(t *testing.T) {
	f := newFixture()
	old := models.FriendRequest{ID: 3, SenderID: 1, ReceiverID: 2, Status: models.FriendStatusPending}
	rejected := old
	rejected.Status = models.FriendStatusRejected

	f.watcher.onFriendRequest(event(t, TableFriendRequests, feed.ActionUpdate, rejected, old))

	recs := listFor(t, f.store, 1)
	require.Len(t, recs, 1)
	assert.Equal(t, models.NotificationFriendRejected, recs[0].Type)
	assert.Equal(t, "Bob declined your friend request", recs[0].Content)
}

func TestLikeNotifiesPostAuthor(t *testing.T) {
	f := newFixture()
	f.watcher.onLike(event(t, TableLikes, feed.ActionInsert,
		models.Like{ID: 5, PostID: "p1", UserID: 1}, nil))

	recs := listFor(t, f.store, 2)
	require.Len(t, recs, 1)
	assert.Equal(t, models.NotificationLike, recs[0].Type)
	assert.Equal(t, "Alice liked your post", recs[0].Content)
	assert.Equal(t, "p1", recs[0].ReferenceID)
}

func TestCommentOnUnknownPostIsSkipped(t *testing.T) {
	f := newFixture()
	f.watcher.onComment(event(t, TableComments, feed.ActionInsert,
		models.Comment{ID: 6, PostID: "gone", UserID: 1}, nil))

	assert.Empty(t, listFor(t, f.store, 2))
}

func TestRegisterAttachesAllTables(t *testing.T) {
	f := newFixture()
	mf := feed.NewMemoryFeed()
	lv := feed.NewLiveness(mf, mf, nil, time.Hour, time.Hour)

	ctx := context.Background()
	require.NoError(t, f.watcher.Register(ctx, lv))
	require.NoError(t, lv.Start(ctx))
	defer lv.Stop()
	assert.Equal(t, 4, mf.SubscriberCount())

	ev := event(t, TableMessages, feed.ActionInsert,
		models.Message{ID: 10, SenderID: 1, ReceiverID: 2}, nil)
	require.NoError(t, mf.Publish(ctx, ev))
	assert.Len(t, listFor(t, f.store, 2), 1)
}
