package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Action is the kind of row mutation carried by a change-feed event.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Event is one row-level mutation published by the domain backend after a
// commit. Row holds the row after the mutation; OldRow holds the previous
// version on updates and deletes, nil otherwise. Events for the same table
// arrive in commit order; no ordering holds across tables.
type Event struct {
	ID     string          `json:"id"`
	Table  string          `json:"table"`
	Action Action          `json:"action"`
	Row    json.RawMessage `json:"row"`
	OldRow json.RawMessage `json:"old_row,omitempty"`
	At     time.Time       `json:"at"`
}

// DecodeRow unmarshals the post-mutation row into dst.
func (e Event) DecodeRow(dst interface{}) error {
	if len(e.Row) == 0 {
		return fmt.Errorf("feed: event %s has no row payload", e.ID)
	}
	return json.Unmarshal(e.Row, dst)
}

// DecodeOldRow unmarshals the pre-mutation row into dst.
func (e Event) DecodeOldRow(dst interface{}) error {
	if len(e.OldRow) == 0 {
		return fmt.Errorf("feed: event %s has no old row payload", e.ID)
	}
	return json.Unmarshal(e.OldRow, dst)
}

// Filter restricts a subscription to rows whose named column equals Value.
// Columns are matched against the JSON keys of the row payload.
type Filter struct {
	Column string
	Value  string
}

func (f *Filter) matches(row json.RawMessage) bool {
	if f == nil {
		return true
	}
	var cols map[string]interface{}
	if err := json.Unmarshal(row, &cols); err != nil {
		return false
	}
	v, ok := cols[f.Column]
	if !ok {
		return false
	}
	return fmt.Sprint(v) == f.Value
}

// Subscription describes interest in a table's change-feed. Handler is called
// sequentially, in arrival order, from the subscription's delivery goroutine.
type Subscription struct {
	Table   string
	Actions []Action
	Filter  *Filter
	Handler func(Event)
}

func (s Subscription) wants(ev Event) bool {
	if ev.Table != s.Table {
		return false
	}
	if len(s.Actions) > 0 {
		found := false
		for _, a := range s.Actions {
			if a == ev.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return s.Filter.matches(ev.Row)
}

// Handle controls an established subscription. Close synchronously stops
// further handler invocations; events already in flight are discarded.
type Handle interface {
	Close()
}

// Feed is the realtime change-feed over the relational store. The notification
// repository publishes store-originated events through the same interface so
// watchers, the dispatcher, and facade sessions all observe one stream.
type Feed interface {
	Subscribe(ctx context.Context, sub Subscription) (Handle, error)
	Publish(ctx context.Context, ev Event) error
}
