package transaction

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/yudapramadita/lokapasar/internal/models"
)

func tx(status models.TransactionStatus, owner, participant uuid.UUID, requestedBy *uuid.UUID) *models.Transaction {
	return &models.Transaction{
		ID:                    uuid.New(),
		OwnerID:               owner,
		ParticipantID:         participant,
		Status:                status,
		CompletionRequestedBy: requestedBy,
	}
}

func TestCanRequest(t *testing.T) {
	owner, participant, stranger := uuid.New(), uuid.New(), uuid.New()

	assert.NoError(t, CanRequest(tx(models.TransactionStatusOpen, owner, participant, nil), owner))
	assert.NoError(t, CanRequest(tx(models.TransactionStatusOpen, owner, participant, nil), participant))
	// a rejected request may be re-requested
	assert.NoError(t, CanRequest(tx(models.TransactionStatusDisputed, owner, participant, &owner), participant))

	assert.ErrorIs(t, CanRequest(tx(models.TransactionStatusOpen, owner, participant, nil), stranger), ErrNotParticipant)
	assert.ErrorIs(t, CanRequest(tx(models.TransactionStatusCompletionRequested, owner, participant, &owner), participant), ErrInvalidTransition)
	assert.ErrorIs(t, CanRequest(tx(models.TransactionStatusCompleted, owner, participant, &owner), owner), ErrInvalidTransition)
}

func TestCanConfirm(t *testing.T) {
	owner, participant, stranger := uuid.New(), uuid.New(), uuid.New()

	assert.NoError(t, CanConfirm(tx(models.TransactionStatusCompletionRequested, owner, participant, &owner), participant))

	// the requester cannot complete their own request
	assert.ErrorIs(t, CanConfirm(tx(models.TransactionStatusCompletionRequested, owner, participant, &owner), owner), ErrSelfConfirm)

	assert.ErrorIs(t, CanConfirm(tx(models.TransactionStatusCompletionRequested, owner, participant, &owner), stranger), ErrNotParticipant)
	assert.ErrorIs(t, CanConfirm(tx(models.TransactionStatusOpen, owner, participant, nil), participant), ErrInvalidTransition)
	assert.ErrorIs(t, CanConfirm(tx(models.TransactionStatusCompleted, owner, participant, &owner), participant), ErrInvalidTransition)
	assert.ErrorIs(t, CanConfirm(tx(models.TransactionStatusDisputed, owner, participant, &owner), participant), ErrInvalidTransition)
}

func TestCanReject(t *testing.T) {
	owner, participant, stranger := uuid.New(), uuid.New(), uuid.New()

	assert.NoError(t, CanReject(tx(models.TransactionStatusCompletionRequested, owner, participant, &owner), participant))

	assert.ErrorIs(t, CanReject(tx(models.TransactionStatusCompletionRequested, owner, participant, &owner), owner), ErrSelfReject)
	assert.ErrorIs(t, CanReject(tx(models.TransactionStatusCompletionRequested, owner, participant, &owner), stranger), ErrNotParticipant)
	assert.ErrorIs(t, CanReject(tx(models.TransactionStatusOpen, owner, participant, nil), participant), ErrInvalidTransition)
	assert.ErrorIs(t, CanReject(tx(models.TransactionStatusDisputed, owner, participant, &owner), participant), ErrInvalidTransition)
}

// The dispute branch cycles: request -> reject -> request again with a
// possibly different requester.
func TestDisputeReRequestCycle(t *testing.T) {
	owner, participant := uuid.New(), uuid.New()
	w := tx(models.TransactionStatusOpen, owner, participant, nil)

	assert.NoError(t, CanRequest(w, owner))
	w.Status = models.TransactionStatusCompletionRequested
	w.CompletionRequestedBy = &owner

	assert.NoError(t, CanReject(w, participant))
	w.Status = models.TransactionStatusDisputed

	// this time the other side asks
	assert.NoError(t, CanRequest(w, participant))
	w.Status = models.TransactionStatusCompletionRequested
	w.CompletionRequestedBy = &participant

	assert.ErrorIs(t, CanConfirm(w, participant), ErrSelfConfirm)
	assert.NoError(t, CanConfirm(w, owner))
}
