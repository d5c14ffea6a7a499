package notify

import (
	"errors"
	"fmt"
)

// ErrPermissionDenied means the user (or user agent) refused notification
// permission for a channel. Denied is terminal for the session; callers must
// not retry automatically.
var ErrPermissionDenied = errors.New("notification permission denied")

// ErrRecordNotFound means the notification id is not in the caller's visible
// list: unknown, already deleted, or owned by another user. The three cases
// are deliberately indistinguishable to the caller.
var ErrRecordNotFound = errors.New("notification not found")

// ErrFeedDisconnected means a change-feed subscription dropped. The liveness
// manager reconnects; callers only surface it when reconnection keeps failing.
var ErrFeedDisconnected = errors.New("change feed disconnected")

// StoreError wraps a failure from the notification record store. It is
// non-fatal everywhere: synthesis skips the record, the facade rolls back an
// optimistic update.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("notification store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err; returns nil when err is nil.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// ChannelError wraps a failure from a single delivery channel. The dispatcher
// treats it as a trigger for fallback, never as a user-visible failure.
type ChannelError struct {
	Channel string
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// NewChannelError wraps err; returns nil when err is nil.
func NewChannelError(channel string, err error) error {
	if err == nil {
		return nil
	}
	return &ChannelError{Channel: channel, Err: err}
}
