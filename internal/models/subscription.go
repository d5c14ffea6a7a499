package models

import "time"

// PermissionState tracks the user-agent permission for a delivery channel.
// Transitions are one-directional from undetermined; granted can be revoked
// by the user agent outside this system, so it must be re-read before use,
// never assumed.
type PermissionState string

const (
	PermissionUndetermined PermissionState = "undetermined"
	PermissionGranted      PermissionState = "granted"
	PermissionDenied       PermissionState = "denied"
)

// ChannelSubscription holds the per-user opt-in state for one remote push
// channel (PostgreSQL). SubscriptionHandle is the provider's opaque token;
// empty when not subscribed. A row is created implicitly on first permission
// check.
type ChannelSubscription struct {
	ID                 uint            `json:"id" gorm:"primaryKey"`
	UserID             uint            `json:"user_id" gorm:"index;uniqueIndex:idx_user_channel"`
	ChannelID          string          `json:"channel_id" gorm:"size:30;uniqueIndex:idx_user_channel"`
	SubscriptionHandle string          `json:"subscription_handle,omitempty"`
	PermissionState    PermissionState `json:"permission_state" gorm:"size:20;default:'undetermined'"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Subscribed reports whether the channel holds an active provider handle.
func (s *ChannelSubscription) Subscribed() bool { return s.SubscriptionHandle != "" }

// RegisterPushRequest defines the request body for registering a push
// provider device token.
type RegisterPushRequest struct {
	ChannelID string `json:"channel_id" validate:"required"`
	Token     string `json:"token" validate:"required"`
}

// ReportPermissionRequest defines the request body for the client reporting
// the user agent's permission decision for a channel.
type ReportPermissionRequest struct {
	ChannelID string `json:"channel_id" validate:"required"`
	State     string `json:"state" validate:"required,oneof=granted denied"`
}
