package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TransactionStatus string

const (
	TransactionStatusOpen                TransactionStatus = "open"
	TransactionStatusCompletionRequested TransactionStatus = "completion_requested"
	TransactionStatusCompleted           TransactionStatus = "completed"
	TransactionStatusDisputed            TransactionStatus = "disputed"
)

// Transaction is the per-conversation completion workflow for a listing
// (unrelated to database transactions). Created lazily on first chat-room entry;
// the unique index on ConversationID makes concurrent creation from two devices
// collapse into one row.
type Transaction struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ListingID      uint      `gorm:"index" json:"listing_id"`
	Category       string    `gorm:"type:varchar(20)" json:"category"`
	OwnerID        uuid.UUID `gorm:"type:uuid;index" json:"owner_id"`
	ParticipantID  uuid.UUID `gorm:"type:uuid;index" json:"participant_id"`
	ConversationID uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"conversation_id"`

	Status                TransactionStatus `gorm:"type:varchar(30);default:'open'" json:"status"`
	CompletionRequestedBy *uuid.UUID        `gorm:"type:uuid" json:"completion_requested_by"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Listing      *Listing      `gorm:"foreignKey:ListingID" json:"listing,omitempty"`
	Conversation *Conversation `gorm:"foreignKey:ConversationID" json:"conversation,omitempty"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return
}

// HasParticipant reports whether userID is one of the two parties.
func (t *Transaction) HasParticipant(userID uuid.UUID) bool {
	return t.OwnerID == userID || t.ParticipantID == userID
}
