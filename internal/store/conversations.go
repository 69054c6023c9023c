package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yudapramadita/lokapasar/internal/models"
	"github.com/yudapramadita/lokapasar/internal/realtime"
)

// GetOrCreateConversation returns the conversation between buyer and seller for
// the given listing, creating it on first contact. The unique identity index
// on (buyer, seller, listing) turns a concurrent first contact from two
// devices into a no-op insert: the loser re-reads the winner's row.
func (s *Store) GetOrCreateConversation(ctx context.Context, buyerID, sellerID uuid.UUID, listingID *uint) (*models.Conversation, bool, error) {
	q := s.db.WithContext(ctx).
		Where("buyer_id = ? AND seller_id = ?", buyerID, sellerID)
	if listingID != nil {
		q = q.Where("listing_id = ?", *listingID)
	} else {
		q = q.Where("listing_id IS NULL")
	}

	var conv models.Conversation
	err := q.First(&conv).Error
	if err == nil {
		return &conv, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, err
	}

	conv = models.Conversation{
		BuyerID:       buyerID,
		SellerID:      sellerID,
		ListingID:     listingID,
		LastMessageAt: time.Now(),
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&conv)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		// lost the race; the winner's row is the truth
		if err := q.First(&conv).Error; err != nil {
			return nil, false, err
		}
		return &conv, false, nil
	}

	s.publishConversation(ctx, realtime.EventInsert, &conv)
	return &conv, true, nil
}

// ConversationByID loads one conversation with its listing.
func (s *Store) ConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).Preload("Listing").First(&conv, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// ConversationsForUser returns the user's conversations, most recent first,
// with participants preloaded for the list view.
func (s *Store) ConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Buyer").
		Preload("Seller").
		Preload("Listing").
		Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Order("last_message_at DESC").
		Find(&convs).Error
	return convs, err
}

// DeleteConversation removes a conversation and its messages for an explicit
// user action. Other sessions learn about it from the conversations event.
func (s *Store) DeleteConversation(ctx context.Context, id, userID uuid.UUID) error {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return ErrNotParticipant
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&conv).Error
	})
	if err != nil {
		return err
	}

	s.publishConversation(ctx, realtime.EventDelete, &conv)
	return nil
}

// publishConversation fans a conversation change out to both participants.
// Only structural changes (create/delete) are published here; the per-message
// last_message bump deliberately rides the messages channel instead, so that
// message bursts stay debounced on the consumer side.
func (s *Store) publishConversation(ctx context.Context, typ realtime.EventType, conv *models.Conversation) {
	payload, err := json.Marshal(conv)
	if err != nil {
		s.log.Error("store: marshal conversation event", zap.Error(err))
		return
	}
	ev := realtime.Event{Table: "conversations", Type: typ, New: payload}
	if typ == realtime.EventDelete {
		ev = realtime.Event{Table: "conversations", Type: typ, Old: payload}
	}
	for _, uid := range []uuid.UUID{conv.BuyerID, conv.SellerID} {
		if err := s.bus.Publish(ctx, realtime.UserChannel(uid), ev); err != nil {
			s.log.Warn("store: publish conversation event",
				zap.String("user", uid.String()), zap.Error(err))
		}
	}
}
