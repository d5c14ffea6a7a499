package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waveline-app/notify-core/internal/feed"
	"github.com/waveline-app/notify-core/internal/models"
	"github.com/waveline-app/notify-core/internal/notify"
)

// MemoryNotificationRepository is an in-memory NotificationRepository with
// the same contract as the Postgres implementation, including publishing
// store-originated change events. Tests use it directly; FailOps injects
// store outages to exercise degradation paths.
type MemoryNotificationRepository struct {
	mu      sync.Mutex
	records map[uint]*models.NotificationRecord
	nextID  uint
	pub     feed.Feed

	// FailOps makes every operation return a StoreError, simulating an
	// unreachable datastore.
	FailOps bool
}

func NewMemoryNotificationRepository(pub feed.Feed) *MemoryNotificationRepository {
	return &MemoryNotificationRepository{
		records: make(map[uint]*models.NotificationRecord),
		nextID:  1,
		pub:     pub,
	}
}

var errStoreDown = errors.New("store unreachable")

func (r *MemoryNotificationRepository) Create(ctx context.Context, n *models.NotificationRecord) error {
	r.mu.Lock()
	if r.FailOps {
		r.mu.Unlock()
		return notify.NewStoreError("create", errStoreDown)
	}
	n.ID = r.nextID
	r.nextID++
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	stored := *n
	r.records[n.ID] = &stored
	r.mu.Unlock()

	r.publish(ctx, feed.ActionInsert, models.NotificationChange{UserID: n.UserID, Record: n})
	return nil
}

func (r *MemoryNotificationRepository) ListByUser(ctx context.Context, userID uint, limit int) ([]models.NotificationRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailOps {
		return nil, notify.NewStoreError("list", errStoreDown)
	}
	var out []models.NotificationRecord
	for _, rec := range r.records {
		if rec.UserID == userID && !rec.Deleted() {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryNotificationRepository) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailOps {
		return 0, notify.NewStoreError("unread_count", errStoreDown)
	}
	var count int64
	for _, rec := range r.records {
		if rec.UserID == userID && !rec.Deleted() && !rec.Read {
			count++
		}
	}
	return count, nil
}

func (r *MemoryNotificationRepository) MarkRead(ctx context.Context, userID, id uint) error {
	r.mu.Lock()
	if r.FailOps {
		r.mu.Unlock()
		return notify.NewStoreError("mark_read", errStoreDown)
	}
	rec, ok := r.records[id]
	if !ok || rec.UserID != userID || rec.Deleted() || rec.Read {
		r.mu.Unlock()
		return nil
	}
	rec.Read = true
	copied := *rec
	r.mu.Unlock()

	r.publish(ctx, feed.ActionUpdate, models.NotificationChange{UserID: copied.UserID, Record: &copied})
	return nil
}

func (r *MemoryNotificationRepository) MarkAllRead(ctx context.Context, userID uint) error {
	r.mu.Lock()
	if r.FailOps {
		r.mu.Unlock()
		return notify.NewStoreError("mark_all_read", errStoreDown)
	}
	changed := false
	for _, rec := range r.records {
		if rec.UserID == userID && !rec.Deleted() && !rec.Read {
			rec.Read = true
			changed = true
		}
	}
	r.mu.Unlock()

	if changed {
		r.publish(ctx, feed.ActionUpdate, models.NotificationChange{UserID: userID, Bulk: models.BulkReadAll})
	}
	return nil
}

func (r *MemoryNotificationRepository) SoftDelete(ctx context.Context, userID, id uint) error {
	r.mu.Lock()
	if r.FailOps {
		r.mu.Unlock()
		return notify.NewStoreError("soft_delete", errStoreDown)
	}
	rec, ok := r.records[id]
	if !ok || rec.UserID != userID || rec.Deleted() {
		r.mu.Unlock()
		return nil
	}
	now := time.Now()
	rec.DeletedAt = &now
	copied := *rec
	r.mu.Unlock()

	r.publish(ctx, feed.ActionUpdate, models.NotificationChange{UserID: copied.UserID, Record: &copied})
	return nil
}

func (r *MemoryNotificationRepository) SoftDeleteAll(ctx context.Context, userID uint) error {
	r.mu.Lock()
	if r.FailOps {
		r.mu.Unlock()
		return notify.NewStoreError("soft_delete_all", errStoreDown)
	}
	now := time.Now()
	changed := false
	for _, rec := range r.records {
		if rec.UserID == userID && !rec.Deleted() {
			rec.DeletedAt = &now
			changed = true
		}
	}
	r.mu.Unlock()

	if changed {
		r.publish(ctx, feed.ActionUpdate, models.NotificationChange{UserID: userID, Bulk: models.BulkClearAll})
	}
	return nil
}

func (r *MemoryNotificationRepository) publish(ctx context.Context, action feed.Action, change models.NotificationChange) {
	if r.pub == nil {
		return
	}
	row, err := json.Marshal(change)
	if err != nil {
		return
	}
	_ = r.pub.Publish(ctx, feed.Event{
		ID:     uuid.NewString(),
		Table:  models.NotificationRecord{}.TableName(),
		Action: action,
		Row:    row,
		At:     time.Now(),
	})
}

var _ NotificationRepository = (*MemoryNotificationRepository)(nil)

// MemorySubscriptionRepository is an in-memory SubscriptionRepository for
// tests and single-binary deployments.
type MemorySubscriptionRepository struct {
	mu   sync.Mutex
	subs map[string]*models.ChannelSubscription
	next uint

	FailOps bool
}

func NewMemorySubscriptionRepository() *MemorySubscriptionRepository {
	return &MemorySubscriptionRepository{subs: make(map[string]*models.ChannelSubscription), next: 1}
}

func subKey(userID uint, channelID string) string {
	return fmt.Sprintf("%d:%s", userID, channelID)
}

func (r *MemorySubscriptionRepository) GetOrCreate(ctx context.Context, userID uint, channelID string) (*models.ChannelSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailOps {
		return nil, notify.NewStoreError("get_subscription", errStoreDown)
	}
	key := subKey(userID, channelID)
	sub, ok := r.subs[key]
	if !ok {
		sub = &models.ChannelSubscription{
			ID:              r.next,
			UserID:          userID,
			ChannelID:       channelID,
			PermissionState: models.PermissionUndetermined,
			CreatedAt:       time.Now(),
		}
		r.next++
		r.subs[key] = sub
	}
	copied := *sub
	return &copied, nil
}

func (r *MemorySubscriptionRepository) SetPermission(ctx context.Context, userID uint, channelID string, state models.PermissionState) error {
	if _, err := r.GetOrCreate(ctx, userID, channelID); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sub := r.subs[subKey(userID, channelID)]
	sub.PermissionState = state
	sub.UpdatedAt = time.Now()
	return nil
}

func (r *MemorySubscriptionRepository) SetHandle(ctx context.Context, userID uint, channelID, handle string) error {
	if _, err := r.GetOrCreate(ctx, userID, channelID); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sub := r.subs[subKey(userID, channelID)]
	sub.SubscriptionHandle = handle
	sub.UpdatedAt = time.Now()
	return nil
}

func (r *MemorySubscriptionRepository) ClearHandle(ctx context.Context, userID uint, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailOps {
		return notify.NewStoreError("clear_handle", errStoreDown)
	}
	if sub, ok := r.subs[subKey(userID, channelID)]; ok {
		sub.SubscriptionHandle = ""
		sub.UpdatedAt = time.Now()
	}
	return nil
}

var _ SubscriptionRepository = (*MemorySubscriptionRepository)(nil)
