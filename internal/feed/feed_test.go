package feed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEvent(table string, action Action, row string) Event {
	return Event{
		ID:     "ev-1",
		Table:  table,
		Action: action,
		Row:    json.RawMessage(row),
		At:     time.Now(),
	}
}

func TestFilterMatches(t *testing.T) {
	row := json.RawMessage(`{"user_id": 7, "content": "hi"}`)

	var nilFilter *Filter
	assert.True(t, nilFilter.matches(row))

	assert.True(t, (&Filter{Column: "user_id", Value: "7"}).matches(row))
	assert.False(t, (&Filter{Column: "user_id", Value: "8"}).matches(row))
	assert.False(t, (&Filter{Column: "missing", Value: "7"}).matches(row))
	assert.False(t, (&Filter{Column: "user_id", Value: "7"}).matches(json.RawMessage("not json")))
}

func TestSubscriptionWants(t *testing.T) {
	sub := Subscription{
		Table:   "messages",
		Actions: []Action{ActionInsert},
		Handler: func(Event) {},
	}

	assert.True(t, sub.wants(makeEvent("messages", ActionInsert, `{}`)))
	assert.False(t, sub.wants(makeEvent("messages", ActionUpdate, `{}`)))
	assert.False(t, sub.wants(makeEvent("likes", ActionInsert, `{}`)))

	// No action list means every action.
	any := Subscription{Table: "messages", Handler: func(Event) {}}
	assert.True(t, any.wants(makeEvent("messages", ActionDelete, `{}`)))
}

func TestEventDecodeRow(t *testing.T) {
	ev := makeEvent("messages", ActionInsert, `{"id": 3}`)

	var row struct {
		ID uint `json:"id"`
	}
	require.NoError(t, ev.DecodeRow(&row))
	assert.Equal(t, uint(3), row.ID)

	assert.Error(t, Event{ID: "empty"}.DecodeRow(&row))
	assert.Error(t, ev.DecodeOldRow(&row))
}

func TestMemoryFeedDelivery(t *testing.T) {
	f := NewMemoryFeed()
	ctx := context.Background()

	var got []Event
	h, err := f.Subscribe(ctx, Subscription{
		Table:   "messages",
		Actions: []Action{ActionInsert},
		Filter:  &Filter{Column: "receiver_id", Value: "2"},
		Handler: func(ev Event) { got = append(got, ev) },
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.SubscriberCount())

	require.NoError(t, f.Publish(ctx, makeEvent("messages", ActionInsert, `{"receiver_id": 2}`)))
	require.NoError(t, f.Publish(ctx, makeEvent("messages", ActionInsert, `{"receiver_id": 9}`)))
	require.NoError(t, f.Publish(ctx, makeEvent("likes", ActionInsert, `{"receiver_id": 2}`)))
	assert.Len(t, got, 1)

	h.Close()
	assert.Equal(t, 0, f.SubscriberCount())
	require.NoError(t, f.Publish(ctx, makeEvent("messages", ActionInsert, `{"receiver_id": 2}`)))
	assert.Len(t, got, 1)
}

func TestMemoryFeedDown(t *testing.T) {
	f := NewMemoryFeed()
	ctx := context.Background()

	f.SetDown(true)
	assert.Error(t, f.Ping(ctx))
	_, err := f.Subscribe(ctx, Subscription{Table: "messages", Handler: func(Event) {}})
	assert.Error(t, err)

	f.SetDown(false)
	assert.NoError(t, f.Ping(ctx))
}
