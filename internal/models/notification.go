package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type NotificationKind string

const (
	NotificationMessage     NotificationKind = "message"
	NotificationLike        NotificationKind = "like"
	NotificationTransaction NotificationKind = "transaction"
)

// Notification is one entry of a user's alarm feed. The target of the
// notification is carried in Kind + Data (e.g. {"conversation_id": "..."} or
// {"transaction_id": "..."}), resolved once at creation time rather than
// re-parsed from the display title.
type Notification struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Kind    NotificationKind `gorm:"type:varchar(20);not null;index" json:"kind"`
	Title   string           `gorm:"not null" json:"title"`
	Content string           `gorm:"type:text" json:"content"`
	Data    datatypes.JSON   `gorm:"type:jsonb" json:"data"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
