package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yudapramadita/lokapasar/internal/models"
	"github.com/yudapramadita/lokapasar/internal/realtime"
)

// UnreadNotificationCount is the authoritative scalar the badge engine
// reconciles against.
func (s *Store) UnreadNotificationCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = false", userID).
		Count(&count).Error
	return count, err
}

// NotificationsForUser returns the alarm feed, newest first.
func (s *Store) NotificationsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var notifs []models.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifs).Error
	return notifs, err
}

// CreateNotification writes one feed entry and publishes it to the owner's
// notification channel.
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}
	s.publishNotification(ctx, realtime.EventInsert, n)
	return n, nil
}

// MarkAllNotificationsRead flips every unread entry of the user. Terminal and
// all-or-nothing, which is why the badge engine may zero its scalar
// immediately after.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) error {
	now := time.Now()
	err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = false", userID).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": now,
		}).Error
	if err != nil {
		return err
	}
	s.publishNotification(ctx, realtime.EventUpdate, &models.Notification{UserID: userID, IsRead: true})
	return nil
}

// DeleteNotification removes one entry, owner only.
func (s *Store) DeleteNotification(ctx context.Context, id, userID uuid.UUID) error {
	var n models.Notification
	if err := s.db.WithContext(ctx).First(&n, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&n).Error; err != nil {
		return err
	}
	s.publishNotification(ctx, realtime.EventDelete, &n)
	return nil
}

func (s *Store) publishNotification(ctx context.Context, typ realtime.EventType, n *models.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		s.log.Error("store: marshal notification event", zap.Error(err))
		return
	}
	ev := realtime.Event{Table: "notifications", Type: typ, New: payload}
	if typ == realtime.EventDelete {
		ev = realtime.Event{Table: "notifications", Type: typ, Old: payload}
	}
	if err := s.bus.Publish(ctx, realtime.NotificationChannel(n.UserID), ev); err != nil {
		s.log.Warn("store: publish notification event",
			zap.String("user", n.UserID.String()), zap.Error(err))
	}
}
