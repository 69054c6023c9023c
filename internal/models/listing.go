package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ListingCategory string

const (
	CategoryUsedGoods ListingCategory = "used_goods"
	CategoryJob       ListingCategory = "job"
	CategoryTutoring  ListingCategory = "tutoring"
	CategoryMeetup    ListingCategory = "meetup"
)

// Listing is a classifieds post. Conversations and transactions hang off it.
type Listing struct {
	ID     uint      `gorm:"primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Title    string          `json:"title"`
	Category ListingCategory `gorm:"type:varchar(20);index" json:"category"`
	Price    int64           `json:"price"`
	Content  string          `gorm:"type:text" json:"content"`
	Region   string          `gorm:"type:varchar(60)" json:"region"`

	// image urls + crop/transform info, filled by the (out of scope) upload flow
	Images datatypes.JSON `json:"images"`

	Status string `gorm:"type:varchar(20);default:'active'" json:"status"` // active | reserved | closed

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
