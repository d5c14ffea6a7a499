package channels

import (
	"fmt"
	"sync"

	"github.com/waveline-app/notify-core/internal/models"
)

// ValidTransition encodes the permission lifecycle: undetermined may move to
// granted or denied; granted may be revoked to denied by the user agent;
// denied is terminal. Re-applying the current state is always allowed
// (idempotent reports from the client).
func ValidTransition(from, to models.PermissionState) bool {
	if from == to {
		return true
	}
	switch from {
	case models.PermissionUndetermined:
		return to == models.PermissionGranted || to == models.PermissionDenied
	case models.PermissionGranted:
		return to == models.PermissionDenied
	default: // denied
		return false
	}
}

// StateMachine tracks permission and subscription handle for one user on one
// channel. Used directly by session-scoped channels (local alert); channels
// with persisted state apply ValidTransition against their stored rows.
type StateMachine struct {
	mu     sync.Mutex
	perm   models.PermissionState
	handle string
}

func NewStateMachine() *StateMachine {
	return &StateMachine{perm: models.PermissionUndetermined}
}

func (m *StateMachine) Permission() models.PermissionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perm
}

// Apply transitions the permission state, rejecting anything the lifecycle
// forbids (in particular any move out of denied).
func (m *StateMachine) Apply(to models.PermissionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !ValidTransition(m.perm, to) {
		return fmt.Errorf("invalid permission transition %s -> %s", m.perm, to)
	}
	m.perm = to
	if to != models.PermissionGranted {
		m.handle = ""
	}
	return nil
}

// SetHandle stores a provider handle; only valid while granted.
func (m *StateMachine) SetHandle(handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.perm != models.PermissionGranted {
		return fmt.Errorf("cannot subscribe while permission is %s", m.perm)
	}
	m.handle = handle
	return nil
}

func (m *StateMachine) ClearHandle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handle = ""
}

func (m *StateMachine) Handle() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

func (m *StateMachine) Subscribed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perm == models.PermissionGranted && m.handle != ""
}
