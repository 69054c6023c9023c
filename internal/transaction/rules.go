// Package transaction implements the per-conversation completion workflow:
// open -> completion_requested -> completed, with a disputed side branch that
// allows re-requesting. Transitions are guarded centrally so no caller can
// double-transition or act outside its role.
package transaction

import (
	"errors"

	"github.com/google/uuid"

	"github.com/yudapramadita/lokapasar/internal/models"
)

var (
	ErrNotParticipant    = errors.New("transaction: user is not a participant")
	ErrInvalidTransition = errors.New("transaction: status does not allow this transition")
	ErrSelfConfirm       = errors.New("transaction: requester cannot confirm their own completion request")
	ErrSelfReject        = errors.New("transaction: requester cannot reject their own completion request")
)

// CanRequest checks open|disputed -> completion_requested for userID.
func CanRequest(t *models.Transaction, userID uuid.UUID) error {
	if !t.HasParticipant(userID) {
		return ErrNotParticipant
	}
	if t.Status != models.TransactionStatusOpen && t.Status != models.TransactionStatusDisputed {
		return ErrInvalidTransition
	}
	return nil
}

// CanConfirm checks completion_requested -> completed. Only the participant
// who did not request completion may confirm.
func CanConfirm(t *models.Transaction, userID uuid.UUID) error {
	if !t.HasParticipant(userID) {
		return ErrNotParticipant
	}
	if t.Status != models.TransactionStatusCompletionRequested {
		return ErrInvalidTransition
	}
	if t.CompletionRequestedBy != nil && *t.CompletionRequestedBy == userID {
		return ErrSelfConfirm
	}
	return nil
}

// CanReject checks completion_requested -> disputed. Only the non-requesting
// participant may reject.
func CanReject(t *models.Transaction, userID uuid.UUID) error {
	if !t.HasParticipant(userID) {
		return ErrNotParticipant
	}
	if t.Status != models.TransactionStatusCompletionRequested {
		return ErrInvalidTransition
	}
	if t.CompletionRequestedBy != nil && *t.CompletionRequestedBy == userID {
		return ErrSelfReject
	}
	return nil
}
