// Package facade is the surface the UI consumes: the ordered notification
// list, the unread counter, permission state and the mutating operations.
// Each logged-in user gets one Session; its in-memory snapshot is owned by
// the session alone and re-derived from store-originated change-feed events,
// so there is a single writer per piece of state.
package facade

import (
	"context"
	"sort"
	"sync"

	"github.com/waveline-app/notify-core/internal/channels"
	"github.com/waveline-app/notify-core/internal/feed"
	"github.com/waveline-app/notify-core/internal/models"
	"github.com/waveline-app/notify-core/internal/notify"
	"github.com/waveline-app/notify-core/internal/repositories"
	"github.com/waveline-app/notify-core/pkg/logger"
)

// Manager tracks the per-user sessions and routes notifications-table feed
// events to the right one.
type Manager struct {
	store    repositories.NotificationRepository
	registry *channels.Registry
	online   func() bool

	mu       sync.Mutex
	sessions map[uint]*Session
}

func NewManager(store repositories.NotificationRepository, registry *channels.Registry, online func() bool) *Manager {
	return &Manager{
		store:    store,
		registry: registry,
		online:   online,
		sessions: make(map[uint]*Session),
	}
}

// Register attaches the manager to the notifications table feed.
func (m *Manager) Register(ctx context.Context, lv *feed.Liveness) error {
	return lv.Register(ctx, feed.Subscription{
		Table:   models.NotificationRecord{}.TableName(),
		Actions: []feed.Action{feed.ActionInsert, feed.ActionUpdate},
		Handler: m.onChange,
	})
}

func (m *Manager) onChange(ev feed.Event) {
	var change models.NotificationChange
	if err := ev.DecodeRow(&change); err != nil {
		logger.Log.WithError(err).WithField("event", ev.ID).Warn("Undecodable notification change event")
		return
	}

	m.mu.Lock()
	s := m.sessions[change.UserID]
	m.mu.Unlock()
	if s != nil {
		s.applyChange(change)
	}
}

// Session returns the session for userID, creating and loading it on first
// access.
func (m *Manager) Session(ctx context.Context, userID uint) *Session {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if !ok {
		s = newSession(userID, m.store, m.registry, m.online)
		m.sessions[userID] = s
	}
	m.mu.Unlock()

	if !ok {
		if err := s.Refresh(ctx); err != nil {
			logger.Log.WithError(err).WithField("user_id", userID).Warn("Initial notification load failed")
		}
	}
	return s
}

// Drop discards a session (logout). Feed events arriving afterwards are
// ignored for that user until a new session is created.
func (m *Manager) Drop(userID uint) {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
}

// RefreshAll re-fetches every active session from the store. Wired as the
// liveness manager's polling backstop.
func (m *Manager) RefreshAll(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		if err := s.Refresh(ctx); err != nil {
			logger.Log.WithError(err).WithField("user_id", s.userID).Warn("Backstop refresh failed")
		}
	}
}

// Session is the per-user facade. All mutating calls are optimistic: the
// local snapshot updates immediately and rolls back when the store call
// fails, with the error surfaced to the caller.
type Session struct {
	userID   uint
	store    repositories.NotificationRepository
	registry *channels.Registry
	online   func() bool

	mu      sync.Mutex
	records []models.NotificationRecord
	unread  int64
}

func newSession(userID uint, store repositories.NotificationRepository, registry *channels.Registry, online func() bool) *Session {
	return &Session{userID: userID, store: store, registry: registry, online: online}
}

// Notifications returns the ordered, non-deleted snapshot.
func (s *Session) Notifications() []models.NotificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.NotificationRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Session) UnreadCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// IsPermissionGranted is the logical OR of permission across all channels.
func (s *Session) IsPermissionGranted(ctx context.Context) bool {
	return s.registry.PermissionGranted(ctx, s.userID)
}

func (s *Session) IsOnline() bool {
	return s.online()
}

// Refresh re-derives the snapshot from the store. Used on login, after
// reconnect, and by the polling backstop.
func (s *Session) Refresh(ctx context.Context) error {
	records, err := s.store.ListByUser(ctx, s.userID, repositories.DefaultListLimit)
	if err != nil {
		return err
	}
	unread, err := s.store.UnreadCount(ctx, s.userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.records = records
	sortRecords(s.records)
	s.unread = unread
	s.mu.Unlock()
	return nil
}

func (s *Session) MarkAsRead(ctx context.Context, id uint) error {
	// Ids come from the client; only ids visible in this user's snapshot are
	// accepted, so a foreign or stale id never reaches the store.
	if !s.holds(id) {
		return notify.ErrRecordNotFound
	}
	return s.mutate(ctx, func() {
		for i := range s.records {
			if s.records[i].ID == id {
				if !s.records[i].Read {
					s.records[i].Read = true
					s.unread--
				}
				return
			}
		}
	}, func(ctx context.Context) error {
		return s.store.MarkRead(ctx, s.userID, id)
	})
}

func (s *Session) MarkAllAsRead(ctx context.Context) error {
	return s.mutate(ctx, func() {
		for i := range s.records {
			s.records[i].Read = true
		}
		s.unread = 0
	}, func(ctx context.Context) error {
		return s.store.MarkAllRead(ctx, s.userID)
	})
}

func (s *Session) Delete(ctx context.Context, id uint) error {
	if !s.holds(id) {
		return notify.ErrRecordNotFound
	}
	return s.mutate(ctx, func() {
		for i := range s.records {
			if s.records[i].ID == id {
				if !s.records[i].Read {
					s.unread--
				}
				s.records = append(s.records[:i], s.records[i+1:]...)
				return
			}
		}
	}, func(ctx context.Context) error {
		return s.store.SoftDelete(ctx, s.userID, id)
	})
}

// holds reports whether id is currently in the snapshot.
func (s *Session) holds(id uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			return true
		}
	}
	return false
}

func (s *Session) ClearAll(ctx context.Context) error {
	return s.mutate(ctx, func() {
		s.records = nil
		s.unread = 0
	}, func(ctx context.Context) error {
		return s.store.SoftDeleteAll(ctx, s.userID)
	})
}

// RequestPermission walks the channels in priority order until one grants.
func (s *Session) RequestPermission(ctx context.Context) (models.PermissionState, error) {
	result := models.PermissionUndetermined
	var firstErr error
	for _, ch := range s.registry.Channels() {
		state, err := ch.RequestPermission(ctx, s.userID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if state == models.PermissionGranted {
			return state, nil
		}
		if state == models.PermissionDenied {
			result = state
		}
	}
	if result == models.PermissionUndetermined && firstErr != nil {
		return result, firstErr
	}
	return result, nil
}

// mutate is the single optimistic-mutation helper: snapshot, apply locally,
// run the store call, restore the snapshot and surface the error on failure.
func (s *Session) mutate(ctx context.Context, apply func(), op func(context.Context) error) error {
	s.mu.Lock()
	prevRecords := make([]models.NotificationRecord, len(s.records))
	copy(prevRecords, s.records)
	prevUnread := s.unread
	apply()
	s.mu.Unlock()

	if err := op(ctx); err != nil {
		s.mu.Lock()
		s.records = prevRecords
		s.unread = prevUnread
		s.mu.Unlock()
		return err
	}
	return nil
}

// applyChange folds one store-originated feed event into the snapshot. The
// store also publishes events for this session's own mutations; re-applying
// them is harmless because the snapshot already holds the same state.
func (s *Session) applyChange(change models.NotificationChange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case change.Bulk == models.BulkReadAll:
		for i := range s.records {
			s.records[i].Read = true
		}
		s.unread = 0
	case change.Bulk == models.BulkClearAll:
		s.records = nil
		s.unread = 0
	case change.Record != nil:
		s.upsert(*change.Record)
	}
}

func (s *Session) upsert(rec models.NotificationRecord) {
	for i := range s.records {
		if s.records[i].ID == rec.ID {
			prior := s.records[i]
			if rec.Deleted() {
				s.records = append(s.records[:i], s.records[i+1:]...)
				if !prior.Read {
					s.unread--
				}
			} else {
				s.records[i] = rec
				if prior.Read != rec.Read {
					if rec.Read {
						s.unread--
					} else {
						s.unread++
					}
				}
			}
			sortRecords(s.records)
			return
		}
	}
	if rec.Deleted() {
		return
	}
	s.records = append(s.records, rec)
	if !rec.Read {
		s.unread++
	}
	sortRecords(s.records)
}

// sortRecords keeps display order: created_at descending, ties broken by id
// descending, regardless of arrival order.
func sortRecords(records []models.NotificationRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
