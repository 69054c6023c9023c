package transaction

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yudapramadita/lokapasar/internal/models"
	"github.com/yudapramadita/lokapasar/internal/realtime"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindTransactionByConversation(ctx context.Context, convID uuid.UUID) (*models.Transaction, error) {
	args := m.Called(ctx, convID)
	if t, ok := args.Get(0).(*models.Transaction); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) CreateTransaction(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	args := m.Called(ctx, t)
	if out, ok := args.Get(0).(*models.Transaction); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	args := m.Called(ctx, id)
	if t, ok := args.Get(0).(*models.Transaction); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) RequestCompletion(ctx context.Context, txID, userID uuid.UUID) (*models.Transaction, error) {
	args := m.Called(ctx, txID, userID)
	if t, ok := args.Get(0).(*models.Transaction); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) ConfirmCompletion(ctx context.Context, txID, userID uuid.UUID) (*models.Transaction, error) {
	args := m.Called(ctx, txID, userID)
	if t, ok := args.Get(0).(*models.Transaction); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) RejectCompletion(ctx context.Context, txID, userID uuid.UUID) (*models.Transaction, error) {
	args := m.Called(ctx, txID, userID)
	if t, ok := args.Get(0).(*models.Transaction); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) HasRated(ctx context.Context, txID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, txID, userID)
	return args.Bool(0), args.Error(1)
}

type fakeBus struct {
	mu        sync.Mutex
	listeners map[string]*realtime.Listener
	closes    map[string]int
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		listeners: make(map[string]*realtime.Listener),
		closes:    make(map[string]int),
	}
}

func (b *fakeBus) Subscribe(_ context.Context, channel string, l *realtime.Listener, onReady func()) (func(), error) {
	b.mu.Lock()
	b.listeners[channel] = l
	b.mu.Unlock()
	if onReady != nil {
		onReady()
	}
	return func() {
		b.mu.Lock()
		b.closes[channel]++
		b.mu.Unlock()
	}, nil
}

func (b *fakeBus) emit(t *testing.T, channel string, ev realtime.Event) {
	t.Helper()
	b.mu.Lock()
	l := b.listeners[channel]
	b.mu.Unlock()
	require.NotNil(t, l, "no listener on %s", channel)
	l.Dispatch(ev)
}

func TestEnsureForConversationReturnsExisting(t *testing.T) {
	store := new(mockStore)
	m := NewMachine(store, newFakeBus(), zap.NewNop())

	conv := &models.Conversation{ID: uuid.New(), BuyerID: uuid.New(), SellerID: uuid.New()}
	listing := &models.Listing{ID: 7, UserID: conv.SellerID, Category: models.CategoryUsedGoods}
	existing := &models.Transaction{ID: uuid.New(), ConversationID: conv.ID}

	store.On("FindTransactionByConversation", mock.Anything, conv.ID).Return(existing, nil)

	got, err := m.EnsureForConversation(context.Background(), conv, listing)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, got.ID)
	store.AssertNotCalled(t, "CreateTransaction", mock.Anything, mock.Anything)
}

func TestEnsureForConversationCreatesLazily(t *testing.T) {
	store := new(mockStore)
	m := NewMachine(store, newFakeBus(), zap.NewNop())

	buyer, seller := uuid.New(), uuid.New()
	conv := &models.Conversation{ID: uuid.New(), BuyerID: buyer, SellerID: seller}
	listing := &models.Listing{ID: 7, UserID: seller, Category: models.CategoryTutoring}

	store.On("FindTransactionByConversation", mock.Anything, conv.ID).Return(nil, gorm.ErrRecordNotFound)
	store.On("CreateTransaction", mock.Anything, mock.MatchedBy(func(tx *models.Transaction) bool {
		return tx.ConversationID == conv.ID &&
			tx.ListingID == listing.ID &&
			tx.OwnerID == seller &&
			tx.ParticipantID == buyer &&
			tx.Status == models.TransactionStatusOpen
	})).Return(&models.Transaction{ID: uuid.New(), ConversationID: conv.ID}, nil)

	got, err := m.EnsureForConversation(context.Background(), conv, listing)
	require.NoError(t, err)
	require.NotNil(t, got)
	store.AssertExpectations(t)
}

func TestEnsureForConversationWithoutListing(t *testing.T) {
	store := new(mockStore)
	m := NewMachine(store, newFakeBus(), zap.NewNop())

	// meetup chats and listing-less conversations have no workflow
	got, err := m.EnsureForConversation(context.Background(), &models.Conversation{ID: uuid.New()}, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
	store.AssertNotCalled(t, "FindTransactionByConversation", mock.Anything, mock.Anything)
}

func TestTransitionsDelegateToStore(t *testing.T) {
	store := new(mockStore)
	m := NewMachine(store, newFakeBus(), zap.NewNop())

	txID, userID := uuid.New(), uuid.New()
	requested := &models.Transaction{ID: txID, Status: models.TransactionStatusCompletionRequested}

	store.On("RequestCompletion", mock.Anything, txID, userID).Return(requested, nil)
	got, err := m.Request(context.Background(), txID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompletionRequested, got.Status)

	store.On("ConfirmCompletion", mock.Anything, txID, userID).Return(nil, ErrSelfConfirm)
	_, err = m.Confirm(context.Background(), txID, userID)
	assert.ErrorIs(t, err, ErrSelfConfirm)

	store.On("RejectCompletion", mock.Anything, txID, userID).Return(nil, ErrInvalidTransition)
	_, err = m.Reject(context.Background(), txID, userID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	store.On("HasRated", mock.Anything, txID, userID).Return(true, nil)
	rated, err := m.HasRated(context.Background(), txID, userID)
	require.NoError(t, err)
	assert.True(t, rated)
}

func TestWatchReplacesWholeObject(t *testing.T) {
	store := new(mockStore)
	bus := newFakeBus()
	m := NewMachine(store, bus, zap.NewNop())

	txID := uuid.New()
	var mu sync.Mutex
	var seen []models.Transaction

	stop, err := m.Watch(context.Background(), txID, func(tx models.Transaction) {
		mu.Lock()
		seen = append(seen, tx)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer stop()

	updated := models.Transaction{ID: txID, Status: models.TransactionStatusCompleted}
	payload, err := json.Marshal(updated)
	require.NoError(t, err)
	ch := realtime.TransactionChannel(txID)
	bus.emit(t, ch, realtime.Event{Table: "transactions", Type: realtime.EventUpdate, New: payload})

	// inserts and other tables are not the watcher's business
	bus.emit(t, ch, realtime.Event{Table: "transactions", Type: realtime.EventInsert, New: payload})
	bus.emit(t, ch, realtime.Event{Table: "messages", Type: realtime.EventUpdate, New: payload})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, models.TransactionStatusCompleted, seen[0].Status)
}

func TestWatchStopClosesSubscription(t *testing.T) {
	store := new(mockStore)
	bus := newFakeBus()
	m := NewMachine(store, bus, zap.NewNop())

	txID := uuid.New()
	stop, err := m.Watch(context.Background(), txID, func(models.Transaction) {})
	require.NoError(t, err)

	stop()
	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Equal(t, 1, bus.closes[realtime.TransactionChannel(txID)])
}
