package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yudapramadita/lokapasar/internal/models"
	"github.com/yudapramadita/lokapasar/internal/realtime"
	"github.com/yudapramadita/lokapasar/internal/transaction"
)

// FindTransactionByConversation returns the workflow row tied to convID, or
// ErrNotFound.
func (s *Store) FindTransactionByConversation(ctx context.Context, convID uuid.UUID) (*models.Transaction, error) {
	var t models.Transaction
	if err := s.db.WithContext(ctx).First(&t, "conversation_id = ?", convID).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTransaction loads one transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var t models.Transaction
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTransaction inserts the lazily-created workflow row. The unique index
// on conversation_id turns the two-devices-create-at-once race into a no-op:
// the loser re-reads the winner's row.
func (s *Store) CreateTransaction(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}},
			DoNothing: true,
		}).
		Create(t).Error
	if err != nil {
		return nil, err
	}
	return s.FindTransactionByConversation(ctx, t.ConversationID)
}

// The three transition procedures below each load the row under a row lock,
// apply the role/status guard, and perform a status-preconditioned update so
// that of two concurrent transitions exactly one wins.

func (s *Store) RequestCompletion(ctx context.Context, txID, userID uuid.UUID) (*models.Transaction, error) {
	return s.transition(ctx, txID, func(t *models.Transaction) error {
		return transaction.CanRequest(t, userID)
	}, func(tx *gorm.DB, t *models.Transaction) *gorm.DB {
		return tx.Model(&models.Transaction{}).
			Where("id = ? AND status IN ?", t.ID,
				[]models.TransactionStatus{models.TransactionStatusOpen, models.TransactionStatusDisputed}).
			Updates(map[string]interface{}{
				"status":                  models.TransactionStatusCompletionRequested,
				"completion_requested_by": userID,
			})
	})
}

func (s *Store) ConfirmCompletion(ctx context.Context, txID, userID uuid.UUID) (*models.Transaction, error) {
	return s.transition(ctx, txID, func(t *models.Transaction) error {
		return transaction.CanConfirm(t, userID)
	}, func(tx *gorm.DB, t *models.Transaction) *gorm.DB {
		return tx.Model(&models.Transaction{}).
			Where("id = ? AND status = ?", t.ID, models.TransactionStatusCompletionRequested).
			Update("status", models.TransactionStatusCompleted)
	})
}

func (s *Store) RejectCompletion(ctx context.Context, txID, userID uuid.UUID) (*models.Transaction, error) {
	return s.transition(ctx, txID, func(t *models.Transaction) error {
		return transaction.CanReject(t, userID)
	}, func(tx *gorm.DB, t *models.Transaction) *gorm.DB {
		return tx.Model(&models.Transaction{}).
			Where("id = ? AND status = ?", t.ID, models.TransactionStatusCompletionRequested).
			Update("status", models.TransactionStatusDisputed)
	})
}

func (s *Store) transition(
	ctx context.Context,
	txID uuid.UUID,
	guard func(*models.Transaction) error,
	update func(*gorm.DB, *models.Transaction) *gorm.DB,
) (*models.Transaction, error) {
	var out models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&out, "id = ?", txID).Error; err != nil {
			return err
		}
		if err := guard(&out); err != nil {
			return err
		}
		res := update(tx, &out)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return transaction.ErrInvalidTransition
		}
		return tx.First(&out, "id = ?", txID).Error
	})
	if err != nil {
		return nil, err
	}

	s.publishTransaction(ctx, &out)
	return &out, nil
}

// HasRated reports whether userID already submitted a review for this
// transaction.
func (s *Store) HasRated(ctx context.Context, txID, userID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Review{}).
		Where("transaction_id = ? AND reviewer_id = ?", txID, userID).
		Count(&count).Error
	return count > 0, err
}

// CreateReview stores a rating; the unique (transaction, reviewer) index keeps
// the prompt one-time.
func (s *Store) CreateReview(ctx context.Context, r *models.Review) error {
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *Store) publishTransaction(ctx context.Context, t *models.Transaction) {
	payload, err := json.Marshal(t)
	if err != nil {
		s.log.Error("store: marshal transaction event", zap.Error(err))
		return
	}
	ev := realtime.Event{Table: "transactions", Type: realtime.EventUpdate, New: payload}
	if err := s.bus.Publish(ctx, realtime.TransactionChannel(t.ID), ev); err != nil {
		s.log.Warn("store: publish transaction event",
			zap.String("transaction", t.ID.String()), zap.Error(err))
	}
}
