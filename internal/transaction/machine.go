package transaction

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yudapramadita/lokapasar/internal/models"
	"github.com/yudapramadita/lokapasar/internal/realtime"
)

// Store is the slice of the persistence gateway the machine needs. The
// transition methods are the centralized procedures; the machine never writes
// the table directly.
type Store interface {
	FindTransactionByConversation(ctx context.Context, convID uuid.UUID) (*models.Transaction, error)
	CreateTransaction(ctx context.Context, t *models.Transaction) (*models.Transaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	RequestCompletion(ctx context.Context, txID, userID uuid.UUID) (*models.Transaction, error)
	ConfirmCompletion(ctx context.Context, txID, userID uuid.UUID) (*models.Transaction, error)
	RejectCompletion(ctx context.Context, txID, userID uuid.UUID) (*models.Transaction, error)
	HasRated(ctx context.Context, txID, userID uuid.UUID) (bool, error)
}

// Machine drives the completion workflow of listing-backed conversations.
type Machine struct {
	store Store
	bus   realtime.Subscriber
	log   *zap.Logger
}

func NewMachine(store Store, bus realtime.Subscriber, log *zap.Logger) *Machine {
	return &Machine{store: store, bus: bus, log: log}
}

// EnsureForConversation lazily creates the workflow row on first chat-room
// entry for a listing-backed conversation: owner is the listing owner, the
// other party the participant, status implicitly open. Exactly one row per
// conversation survives even when two devices enter concurrently.
func (m *Machine) EnsureForConversation(ctx context.Context, conv *models.Conversation, listing *models.Listing) (*models.Transaction, error) {
	if conv == nil || listing == nil {
		return nil, nil
	}

	existing, err := m.store.FindTransactionByConversation(ctx, conv.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return m.store.CreateTransaction(ctx, &models.Transaction{
		ListingID:      listing.ID,
		Category:       string(listing.Category),
		OwnerID:        listing.UserID,
		ParticipantID:  conv.Other(listing.UserID),
		ConversationID: conv.ID,
		Status:         models.TransactionStatusOpen,
	})
}

// Request transitions open|disputed -> completion_requested, recording who
// asked.
func (m *Machine) Request(ctx context.Context, txID, userID uuid.UUID) (*models.Transaction, error) {
	return m.store.RequestCompletion(ctx, txID, userID)
}

// Confirm transitions completion_requested -> completed; only valid for the
// participant who did not request it.
func (m *Machine) Confirm(ctx context.Context, txID, userID uuid.UUID) (*models.Transaction, error) {
	return m.store.ConfirmCompletion(ctx, txID, userID)
}

// Reject transitions completion_requested -> disputed; the requester may then
// re-request.
func (m *Machine) Reject(ctx context.Context, txID, userID uuid.UUID) (*models.Transaction, error) {
	return m.store.RejectCompletion(ctx, txID, userID)
}

// HasRated reports whether userID already rated this transaction; the UI uses
// it to show the rating prompt at most once after completion.
func (m *Machine) HasRated(ctx context.Context, txID, userID uuid.UUID) (bool, error) {
	return m.store.HasRated(ctx, txID, userID)
}

// Watch subscribes to the transaction's own channel; every UPDATE replaces
// the whole local object (authoritative overwrite). Returns the unsubscribe
// func, which the chat room must call on leave.
func (m *Machine) Watch(ctx context.Context, txID uuid.UUID, onUpdate func(models.Transaction)) (func(), error) {
	l := realtime.NewListener().
		On("transactions", realtime.EventUpdate, func(ev realtime.Event) {
			var t models.Transaction
			if err := ev.DecodeNew(&t); err != nil {
				m.log.Warn("transaction: bad update payload",
					zap.String("transaction", txID.String()), zap.Error(err))
				return
			}
			onUpdate(t)
		})

	return m.bus.Subscribe(ctx, realtime.TransactionChannel(txID), l, nil)
}
