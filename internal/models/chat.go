// internal/models/chat.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation represents a chat between two users, optionally tied to a listing.
// Created idempotently on first contact; last message fields are denormalized for
// the conversation-list view.
type Conversation struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`

	BuyerID  uuid.UUID `gorm:"type:uuid;index" json:"buyer_id"`
	SellerID uuid.UUID `gorm:"type:uuid;index" json:"seller_id"`

	ListingID *uint `gorm:"index" json:"listing_id,omitempty"`

	LastMessage   string    `gorm:"type:text" json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Buyer    *User     `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
	Seller   *User     `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
	Listing  *Listing  `gorm:"foreignKey:ListingID" json:"listing,omitempty"`
	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

// Other returns the counterparty of userID in this conversation.
func (c *Conversation) Other(userID uuid.UUID) uuid.UUID {
	if c.BuyerID == userID {
		return c.SellerID
	}
	return c.BuyerID
}

// HasParticipant reports whether userID is one of the two members.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.BuyerID == userID || c.SellerID == userID
}

// Message represents a message in a conversation
type Message struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ConversationID uuid.UUID  `gorm:"type:uuid;index" json:"conversation_id"`
	SenderID       uuid.UUID  `gorm:"type:uuid;index" json:"sender_id"`
	Text           string     `gorm:"type:text" json:"text"`
	IsRead         bool       `gorm:"default:false" json:"is_read"`
	ReadAt         *time.Time `json:"read_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}
