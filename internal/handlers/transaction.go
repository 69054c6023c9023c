package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yudapramadita/lokapasar/internal/models"
	"github.com/yudapramadita/lokapasar/internal/store"
	"github.com/yudapramadita/lokapasar/internal/transaction"
)

type TransactionHandler struct {
	Store   *store.Store
	Machine *transaction.Machine
	Log     *zap.Logger
}

func NewTransactionHandler(st *store.Store, machine *transaction.Machine, log *zap.Logger) *TransactionHandler {
	return &TransactionHandler{Store: st, Machine: machine, Log: log}
}

// GetForConversation returns the workflow for a listing-backed conversation,
// lazily creating it on first chat-room entry.
func (h *TransactionHandler) GetForConversation(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	convUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid conversation ID")
	}

	conv, err := h.Store.ConversationByID(c.Context(), convUUID)
	if err != nil {
		return fail(c, fiber.StatusNotFound, "Conversation not found")
	}
	if !conv.HasParticipant(userUUID) {
		return fail(c, fiber.StatusForbidden, "Access denied")
	}
	if conv.Listing == nil {
		return c.JSON(fiber.Map{"success": true, "data": nil})
	}

	t, err := h.Machine.EnsureForConversation(c.Context(), conv, conv.Listing)
	if err != nil {
		h.Log.Error("transaction: ensure", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to load transaction")
	}

	return c.JSON(fiber.Map{"success": true, "data": t})
}

// transition runs one state-machine transition and maps its sentinel errors.
// Transition failures are surfaced, never retried — a blind retry could
// violate the single-actor rules.
func (h *TransactionHandler) transition(
	c *fiber.Ctx,
	run func(ctx *fiber.Ctx, txID, userID uuid.UUID) (*models.Transaction, error),
) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	txID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid transaction ID")
	}

	t, err := run(c, txID, userUUID)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"success": true, "data": t})
	case errors.Is(err, transaction.ErrNotParticipant):
		return fail(c, fiber.StatusForbidden, "Not a participant of this transaction")
	case errors.Is(err, transaction.ErrSelfConfirm), errors.Is(err, transaction.ErrSelfReject):
		return fail(c, fiber.StatusForbidden, "The other party must respond to this request")
	case errors.Is(err, transaction.ErrInvalidTransition):
		return fail(c, fiber.StatusConflict, "Transaction does not allow this transition")
	default:
		h.Log.Error("transaction: transition", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Transition failed")
	}
}

func (h *TransactionHandler) RequestCompletion(c *fiber.Ctx) error {
	return h.transition(c, func(ctx *fiber.Ctx, txID, userID uuid.UUID) (*models.Transaction, error) {
		return h.Machine.Request(ctx.Context(), txID, userID)
	})
}

func (h *TransactionHandler) ConfirmCompletion(c *fiber.Ctx) error {
	return h.transition(c, func(ctx *fiber.Ctx, txID, userID uuid.UUID) (*models.Transaction, error) {
		return h.Machine.Confirm(ctx.Context(), txID, userID)
	})
}

func (h *TransactionHandler) RejectCompletion(c *fiber.Ctx) error {
	return h.transition(c, func(ctx *fiber.Ctx, txID, userID uuid.UUID) (*models.Transaction, error) {
		return h.Machine.Reject(ctx.Context(), txID, userID)
	})
}

// RateReq is the one-time post-completion rating.
type RateReq struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *TransactionHandler) Rate(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	txID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid transaction ID")
	}

	var req RateReq
	if err := c.BodyParser(&req); err != nil || req.Rating < 1 || req.Rating > 5 {
		return fail(c, fiber.StatusBadRequest, "Rating must be between 1 and 5")
	}

	t, err := h.Store.GetTransaction(c.Context(), txID)
	if err != nil {
		return fail(c, fiber.StatusNotFound, "Transaction not found")
	}
	if !t.HasParticipant(userUUID) {
		return fail(c, fiber.StatusForbidden, "Not a participant of this transaction")
	}
	if t.Status != models.TransactionStatusCompleted {
		return fail(c, fiber.StatusConflict, "Transaction is not completed yet")
	}

	rated, err := h.Machine.HasRated(c.Context(), txID, userUUID)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to check rating")
	}
	if rated {
		return fail(c, fiber.StatusConflict, "Already rated")
	}

	review := models.Review{
		TransactionID: txID,
		ReviewerID:    userUUID,
		RevieweeID:    t.OwnerID,
		Rating:        req.Rating,
		Comment:       req.Comment,
	}
	if review.RevieweeID == userUUID {
		review.RevieweeID = t.ParticipantID
	}

	if err := h.Store.CreateReview(c.Context(), &review); err != nil {
		return fail(c, fiber.StatusConflict, "Already rated")
	}

	return c.JSON(fiber.Map{"success": true, "data": review})
}

// HasRated tells the UI whether to show the one-time rating prompt.
func (h *TransactionHandler) HasRated(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	txID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid transaction ID")
	}

	rated, err := h.Machine.HasRated(c.Context(), txID, userUUID)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to check rating")
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"has_rated": rated}})
}
