package feed

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) handle(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func publishTestEvent(t *testing.T, f *MemoryFeed, table string) {
	t.Helper()
	require.NoError(t, f.Publish(context.Background(), Event{
		ID:     "ev",
		Table:  table,
		Action: ActionInsert,
		Row:    json.RawMessage(`{}`),
		At:     time.Now(),
	}))
}

func TestLivenessStartEstablishesSubscriptions(t *testing.T) {
	f := NewMemoryFeed()
	lv := NewLiveness(f, f, nil, time.Hour, time.Hour)
	sink := &eventSink{}

	ctx := context.Background()
	require.NoError(t, lv.Register(ctx, Subscription{Table: "messages", Handler: sink.handle}))
	assert.Equal(t, 0, f.SubscriberCount(), "registration before Start must not subscribe")

	require.NoError(t, lv.Start(ctx))
	defer lv.Stop()
	assert.Equal(t, 1, f.SubscriberCount())
	assert.True(t, lv.Online())

	publishTestEvent(t, f, "messages")
	assert.Equal(t, 1, sink.count())
}

func TestLivenessRegisterAfterStart(t *testing.T) {
	f := NewMemoryFeed()
	lv := NewLiveness(f, f, nil, time.Hour, time.Hour)
	ctx := context.Background()

	require.NoError(t, lv.Start(ctx))
	defer lv.Stop()

	sink := &eventSink{}
	require.NoError(t, lv.Register(ctx, Subscription{Table: "likes", Handler: sink.handle}))
	assert.Equal(t, 1, f.SubscriberCount())

	publishTestEvent(t, f, "likes")
	assert.Equal(t, 1, sink.count())
}

func TestLivenessResubscribesAfterReconnect(t *testing.T) {
	f := NewMemoryFeed()
	refreshed := 0
	lv := NewLiveness(f, f, func(context.Context) { refreshed++ }, time.Hour, time.Hour)
	sink := &eventSink{}

	ctx := context.Background()
	require.NoError(t, lv.Register(ctx, Subscription{Table: "messages", Handler: sink.handle}))
	require.NoError(t, lv.Start(ctx))
	defer lv.Stop()

	f.SetDown(true)
	lv.check(ctx)
	assert.False(t, lv.Online())

	f.SetDown(false)
	lv.check(ctx)
	assert.True(t, lv.Online())
	assert.Equal(t, 1, f.SubscriberCount(), "reconnect must tear down and re-establish, not double-subscribe")
	assert.Equal(t, 1, refreshed, "a refresh must follow every reconnect to fill the gap")

	publishTestEvent(t, f, "messages")
	assert.Equal(t, 1, sink.count())
}

func TestLivenessDegradedStartRecovers(t *testing.T) {
	f := NewMemoryFeed()
	f.SetDown(true)
	lv := NewLiveness(f, f, nil, time.Hour, time.Hour)
	sink := &eventSink{}

	ctx := context.Background()
	require.NoError(t, lv.Register(ctx, Subscription{Table: "messages", Handler: sink.handle}))
	require.Error(t, lv.Start(ctx))
	defer lv.Stop()
	assert.False(t, lv.Online())

	f.SetDown(false)
	lv.check(ctx)
	assert.True(t, lv.Online())
	assert.Equal(t, 1, f.SubscriberCount())
}

func TestLivenessStaleWindowTriggersPoll(t *testing.T) {
	f := NewMemoryFeed()
	refreshed := 0
	lv := NewLiveness(f, f, func(context.Context) { refreshed++ }, time.Hour, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, lv.Start(ctx))
	defer lv.Stop()

	lv.check(ctx)
	assert.Equal(t, 0, refreshed, "no poll while inside the staleness window")

	time.Sleep(20 * time.Millisecond)
	lv.check(ctx)
	assert.Equal(t, 1, refreshed)

	// The refresh resets the window; the next tick stays quiet.
	lv.check(ctx)
	assert.Equal(t, 1, refreshed)
}

func TestLivenessStopDiscardsLateEvents(t *testing.T) {
	f := NewMemoryFeed()
	lv := NewLiveness(f, f, nil, time.Hour, time.Hour)
	sink := &eventSink{}

	ctx := context.Background()
	require.NoError(t, lv.Register(ctx, Subscription{Table: "messages", Handler: sink.handle}))
	require.NoError(t, lv.Start(ctx))

	// Capture the guarded handler before teardown, then invoke it afterwards
	// the way an in-flight delivery would.
	var live Subscription
	f.mu.Lock()
	for _, ms := range f.subs {
		live = ms.sub
	}
	f.mu.Unlock()
	require.NotNil(t, live.Handler)

	lv.Stop()
	live.Handler(Event{Table: "messages", Action: ActionInsert, Row: json.RawMessage(`{}`)})
	assert.Equal(t, 0, sink.count(), "events from a torn-down generation must be discarded")
}
