package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStoreError("create", cause)

	var serr *StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "create", serr.Op)
	assert.ErrorIs(t, err, cause)

	assert.Nil(t, NewStoreError("create", nil))
}

func TestChannelErrorWrapping(t *testing.T) {
	err := NewChannelError("fcm", ErrPermissionDenied)

	var cerr *ChannelError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "fcm", cerr.Channel)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	assert.Nil(t, NewChannelError("fcm", nil))
}
