package channels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waveline-app/notify-core/internal/models"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from, to models.PermissionState
		ok       bool
	}{
		{models.PermissionUndetermined, models.PermissionUndetermined, true},
		{models.PermissionUndetermined, models.PermissionGranted, true},
		{models.PermissionUndetermined, models.PermissionDenied, true},
		{models.PermissionGranted, models.PermissionGranted, true},
		{models.PermissionGranted, models.PermissionDenied, true},
		{models.PermissionGranted, models.PermissionUndetermined, false},
		{models.PermissionDenied, models.PermissionDenied, true},
		{models.PermissionDenied, models.PermissionGranted, false},
		{models.PermissionDenied, models.PermissionUndetermined, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, ValidTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestStateMachineDeniedIsTerminal(t *testing.T) {
	m := NewStateMachine()
	assert.Equal(t, models.PermissionUndetermined, m.Permission())

	require.NoError(t, m.Apply(models.PermissionDenied))
	assert.Error(t, m.Apply(models.PermissionGranted))
	assert.Error(t, m.Apply(models.PermissionUndetermined))
	assert.Equal(t, models.PermissionDenied, m.Permission())
}

func TestStateMachineHandleLifecycle(t *testing.T) {
	m := NewStateMachine()

	assert.Error(t, m.SetHandle("tok"), "handle requires granted permission")
	assert.False(t, m.Subscribed())

	require.NoError(t, m.Apply(models.PermissionGranted))
	require.NoError(t, m.SetHandle("tok"))
	assert.True(t, m.Subscribed())
	assert.Equal(t, "tok", m.Handle())

	// Revocation drops the handle with the permission.
	require.NoError(t, m.Apply(models.PermissionDenied))
	assert.False(t, m.Subscribed())
	assert.Empty(t, m.Handle())
}
