package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yudapramadita/lokapasar/internal/models"
	"github.com/yudapramadita/lokapasar/internal/realtime"
)

// UnreadCounts is the authoritative grouping the unread engine reconciles
// against: unread messages authored by someone other than userID, grouped by
// conversation. Conversations with zero unread are simply absent.
func (s *Store) UnreadCounts(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int64, error) {
	type row struct {
		ConversationID uuid.UUID
		Count          int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Select("messages.conversation_id, count(*) as count").
		Joins("JOIN conversations ON messages.conversation_id = conversations.id").
		Where("(conversations.buyer_id = ? OR conversations.seller_id = ?) AND messages.sender_id != ? AND messages.is_read = false",
			userID, userID, userID).
		Group("messages.conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uuid.UUID]int64, len(rows))
	for _, r := range rows {
		if r.Count > 0 {
			counts[r.ConversationID] = r.Count
		}
	}
	return counts, nil
}

// MessagesForConversation returns the full message list in display order.
func (s *Store) MessagesForConversation(ctx context.Context, convID uuid.UUID) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

// CreateMessage persists a message, bumps the conversation's denormalized
// last-message fields, and publishes the insert to both participants. A
// message-kind notification row is written for the recipient as well.
func (s *Store) CreateMessage(ctx context.Context, conv *models.Conversation, senderID uuid.UUID, text string) (*models.Message, error) {
	msg := models.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Text:           text,
		IsRead:         false,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conv.ID).
			Updates(map[string]interface{}{
				"last_message":    text,
				"last_message_at": msg.CreatedAt,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	s.publishMessage(ctx, realtime.EventInsert, conv, &msg, nil)

	recipientID := conv.Other(senderID)
	data, _ := json.Marshal(map[string]string{"conversation_id": conv.ID.String()})
	if _, nerr := s.CreateNotification(ctx, &models.Notification{
		UserID:  recipientID,
		Kind:    models.NotificationMessage,
		Title:   "New message",
		Content: text,
		Data:    datatypes.JSON(data),
	}); nerr != nil {
		s.log.Warn("store: create message notification", zap.Error(nerr))
	}

	return &msg, nil
}

// MarkConversationRead is the primary, idempotent mark-read path: a database
// procedure that flips every unread counterparty message of the conversation.
func (s *Store) MarkConversationRead(ctx context.Context, convID, userID uuid.UUID) error {
	return s.db.WithContext(ctx).
		Exec("SELECT mark_conversation_read(?, ?)", convID, userID).Error
}

// MarkMessagesRead is the fallback direct bulk update used when the procedure
// path fails. Affected rows are published as UPDATE events so other sessions
// can decrement optimistically.
func (s *Store) MarkMessagesRead(ctx context.Context, convID, userID uuid.UUID) error {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", convID).Error; err != nil {
		return err
	}

	var unread []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND sender_id != ? AND is_read = false", convID, userID).
		Find(&unread).Error
	if err != nil {
		return err
	}
	if len(unread) == 0 {
		return nil
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id != ? AND is_read = false", convID, userID).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": now,
		}).Error
	if err != nil {
		return err
	}

	for i := range unread {
		old := unread[i]
		updated := old
		updated.IsRead = true
		updated.ReadAt = &now
		s.publishMessage(ctx, realtime.EventUpdate, &conv, &updated, &old)
	}
	return nil
}

func (s *Store) publishMessage(ctx context.Context, typ realtime.EventType, conv *models.Conversation, msg, old *models.Message) {
	newPayload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("store: marshal message event", zap.Error(err))
		return
	}
	ev := realtime.Event{Table: "messages", Type: typ, New: newPayload}
	if old != nil {
		if oldPayload, oerr := json.Marshal(old); oerr == nil {
			ev.Old = oldPayload
		}
	}
	for _, uid := range []uuid.UUID{conv.BuyerID, conv.SellerID} {
		if err := s.bus.Publish(ctx, realtime.UserChannel(uid), ev); err != nil {
			s.log.Warn("store: publish message event",
				zap.String("user", uid.String()), zap.Error(err))
		}
	}
}
