package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/waveline-app/notify-core/internal/models"
	"github.com/waveline-app/notify-core/internal/notify"
)

// SubscriptionRepository persists per-user, per-channel push opt-in state.
type SubscriptionRepository interface {
	// GetOrCreate returns the subscription row for (userID, channelID),
	// creating it in the undetermined state on first access.
	GetOrCreate(ctx context.Context, userID uint, channelID string) (*models.ChannelSubscription, error)
	SetPermission(ctx context.Context, userID uint, channelID string, state models.PermissionState) error
	SetHandle(ctx context.Context, userID uint, channelID, handle string) error
	ClearHandle(ctx context.Context, userID uint, channelID string) error
}

type postgresSubscriptionRepository struct {
	db *gorm.DB
}

func NewPostgresSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &postgresSubscriptionRepository{db: db}
}

func (r *postgresSubscriptionRepository) GetOrCreate(ctx context.Context, userID uint, channelID string) (*models.ChannelSubscription, error) {
	var sub models.ChannelSubscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND channel_id = ?", userID, channelID).
		First(&sub).Error
	if err == nil {
		return &sub, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, notify.NewStoreError("get_subscription", err)
	}

	sub = models.ChannelSubscription{
		UserID:          userID,
		ChannelID:       channelID,
		PermissionState: models.PermissionUndetermined,
	}
	if err := r.db.WithContext(ctx).Create(&sub).Error; err != nil {
		return nil, notify.NewStoreError("create_subscription", err)
	}
	return &sub, nil
}

func (r *postgresSubscriptionRepository) SetPermission(ctx context.Context, userID uint, channelID string, state models.PermissionState) error {
	if _, err := r.GetOrCreate(ctx, userID, channelID); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).Model(&models.ChannelSubscription{}).
		Where("user_id = ? AND channel_id = ?", userID, channelID).
		Update("permission_state", state).Error
	return notify.NewStoreError("set_permission", err)
}

func (r *postgresSubscriptionRepository) SetHandle(ctx context.Context, userID uint, channelID, handle string) error {
	if _, err := r.GetOrCreate(ctx, userID, channelID); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).Model(&models.ChannelSubscription{}).
		Where("user_id = ? AND channel_id = ?", userID, channelID).
		Update("subscription_handle", handle).Error
	return notify.NewStoreError("set_handle", err)
}

func (r *postgresSubscriptionRepository) ClearHandle(ctx context.Context, userID uint, channelID string) error {
	err := r.db.WithContext(ctx).Model(&models.ChannelSubscription{}).
		Where("user_id = ? AND channel_id = ?", userID, channelID).
		Update("subscription_handle", "").Error
	return notify.NewStoreError("clear_handle", err)
}
