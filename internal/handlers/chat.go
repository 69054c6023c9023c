package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yudapramadita/lokapasar/internal/models"
	"github.com/yudapramadita/lokapasar/internal/realtime"
	"github.com/yudapramadita/lokapasar/internal/session"
	"github.com/yudapramadita/lokapasar/internal/store"
)

type ChatHandler struct {
	Store    *store.Store
	Hub      *realtime.Hub
	Sessions *session.Manager
	Log      *zap.Logger
}

func NewChatHandler(st *store.Store, hub *realtime.Hub, sessions *session.Manager, log *zap.Logger) *ChatHandler {
	return &ChatHandler{Store: st, Hub: hub, Sessions: sessions, Log: log}
}

// CreateOrGetConversation creates a new conversation or returns the existing
// one — first contact between two users is idempotent.
func (h *ChatHandler) CreateOrGetConversation(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var req struct {
		SellerID  *string `json:"seller_id"`
		ListingID *uint   `json:"listing_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request")
	}

	var sellerID uuid.UUID
	switch {
	case req.ListingID != nil:
		var listing models.Listing
		if err := h.Store.DB().First(&listing, "id = ?", *req.ListingID).Error; err != nil {
			return fail(c, fiber.StatusNotFound, "Listing not found")
		}
		sellerID = listing.UserID
	case req.SellerID != nil:
		sellerID, err = uuid.Parse(*req.SellerID)
		if err != nil {
			return fail(c, fiber.StatusBadRequest, "Invalid seller ID")
		}
	default:
		return fail(c, fiber.StatusBadRequest, "seller_id or listing_id required")
	}

	if sellerID == userUUID {
		return fail(c, fiber.StatusBadRequest, "Cannot start a conversation with yourself")
	}

	conv, created, err := h.Store.GetOrCreateConversation(c.Context(), userUUID, sellerID, req.ListingID)
	if err != nil {
		h.Log.Error("chat: create conversation", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to create conversation")
	}

	return c.JSON(fiber.Map{"success": true, "created": created, "data": conv})
}

type UserMini struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Nickname string `json:"nickname,omitempty"`
}

type ConversationOut struct {
	ID            string    `json:"id"`
	BuyerID       string    `json:"buyer_id"`
	SellerID      string    `json:"seller_id"`
	ListingID     *uint     `json:"listing_id,omitempty"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int64     `json:"unread_count"`

	Buyer  *UserMini `json:"buyer,omitempty"`
	Seller *UserMini `json:"seller,omitempty"`
}

// GetConversations returns the user's conversations with per-conversation
// unread counts. Counts come from the live session engine when one exists
// (same numbers the badge shows), falling back to the authoritative query.
func (h *ChatHandler) GetConversations(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	convs, err := h.Store.ConversationsForUser(c.Context(), userUUID)
	if err != nil {
		h.Log.Error("chat: fetch conversations", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch conversations")
	}

	var counts map[uuid.UUID]int64
	if s, ok := h.Sessions.Get(userUUID); ok {
		counts = s.Unread.Snapshot().Counts
	} else if counts, err = h.Store.UnreadCounts(c.Context(), userUUID); err != nil {
		h.Log.Warn("chat: unread counts unavailable", zap.Error(err))
		counts = map[uuid.UUID]int64{}
	}

	out := make([]ConversationOut, 0, len(convs))
	for _, conv := range convs {
		co := ConversationOut{
			ID:            conv.ID.String(),
			BuyerID:       conv.BuyerID.String(),
			SellerID:      conv.SellerID.String(),
			ListingID:     conv.ListingID,
			LastMessage:   conv.LastMessage,
			LastMessageAt: conv.LastMessageAt,
			UnreadCount:   counts[conv.ID],
		}
		if conv.Buyer != nil {
			co.Buyer = &UserMini{ID: conv.Buyer.ID.String(), Name: conv.Buyer.Name, Nickname: conv.Buyer.Nickname}
		}
		if conv.Seller != nil {
			co.Seller = &UserMini{ID: conv.Seller.ID.String(), Name: conv.Seller.Name, Nickname: conv.Seller.Nickname}
		}
		out = append(out, co)
	}

	return c.JSON(fiber.Map{"success": true, "data": out})
}

// GetUnreadTotal returns the derived total across all conversations.
func (h *ChatHandler) GetUnreadTotal(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	if s, ok := h.Sessions.Get(userUUID); ok {
		return c.JSON(fiber.Map{"success": true, "data": s.Unread.Snapshot().Total})
	}

	counts, err := h.Store.UnreadCounts(c.Context(), userUUID)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to count unread messages")
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return c.JSON(fiber.Map{"success": true, "data": total})
}

type MessageOut struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

func messageOut(msg *models.Message) MessageOut {
	return MessageOut{
		ID:             msg.ID.String(),
		ConversationID: msg.ConversationID.String(),
		SenderID:       msg.SenderID.String(),
		Text:           msg.Text,
		IsRead:         msg.IsRead,
		CreatedAt:      msg.CreatedAt,
	}
}

// GetMessages returns the messages of a conversation in display order and
// marks the counterparty's messages read (entering a room reads it).
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
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

	messages, err := h.Store.MessagesForConversation(c.Context(), convUUID)
	if err != nil {
		h.Log.Error("chat: fetch messages", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch messages")
	}

	// keep the open room view consistent with what this fetch returns
	if s, ok := h.Sessions.Get(userUUID); ok {
		if room, ok := s.Room(); ok && room.ConvID == convUUID {
			room.View.MergeServer(messages)
		}
	}

	h.markRead(c, userUUID, convUUID)

	out := make([]MessageOut, 0, len(messages))
	for i := range messages {
		out = append(out, messageOut(&messages[i]))
	}

	return c.JSON(fiber.Map{"success": true, "data": out})
}

// MarkAsRead marks all counterparty messages of a conversation read.
func (h *ChatHandler) MarkAsRead(c *fiber.Ctx) error {
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

	h.markRead(c, userUUID, convUUID)
	return c.JSON(fiber.Map{"success": true})
}

// markRead routes through the session engine when one is live so its local
// state refreshes too; otherwise straight to the gateway. Errors are logged
// only — this is background reconciliation, the next poll self-heals.
func (h *ChatHandler) markRead(c *fiber.Ctx, userUUID, convUUID uuid.UUID) {
	if s, ok := h.Sessions.Get(userUUID); ok {
		if err := s.Unread.MarkAsRead(c.Context(), convUUID); err != nil {
			h.Log.Warn("chat: mark read", zap.Error(err))
		}
		return
	}
	if err := h.Store.MarkConversationRead(c.Context(), convUUID, userUUID); err != nil {
		if ferr := h.Store.MarkMessagesRead(c.Context(), convUUID, userUUID); ferr != nil {
			h.Log.Warn("chat: mark read fallback", zap.Error(ferr))
		}
	}
}

// SendMessage persists a message and pushes it to both participants.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	convUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid conversation ID")
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil || req.Text == "" {
		return fail(c, fiber.StatusBadRequest, "Text is required")
	}

	conv, err := h.Store.ConversationByID(c.Context(), convUUID)
	if err != nil {
		return fail(c, fiber.StatusNotFound, "Conversation not found")
	}
	if !conv.HasParticipant(userUUID) {
		return fail(c, fiber.StatusForbidden, "Access denied")
	}

	msg, err := h.Store.CreateMessage(c.Context(), conv, userUUID, req.Text)
	if err != nil {
		h.Log.Error("chat: create message", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to send message")
	}

	out := messageOut(msg)
	h.Hub.SendToConversation(conv.BuyerID, conv.SellerID, fiber.Map{
		"type":    "new_message",
		"message": out,
	})

	return c.JSON(fiber.Map{"success": true, "data": out})
}

// DeleteConversation removes a conversation and its messages for the caller.
func (h *ChatHandler) DeleteConversation(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	convUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid conversation ID")
	}

	if err := h.Store.DeleteConversation(c.Context(), convUUID, userUUID); err != nil {
		if err == store.ErrNotParticipant {
			return fail(c, fiber.StatusForbidden, "Access denied")
		}
		return fail(c, fiber.StatusNotFound, "Conversation not found")
	}

	return c.JSON(fiber.Map{"success": true})
}
