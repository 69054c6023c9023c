package db

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yudapramadita/lokapasar/internal/models"
)

// Connect opens the postgres connection used by the whole app.
func Connect(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

// ddl holds the statements AutoMigrate cannot express. The conversation
// identity index needs COALESCE so that two listing-less conversations of the
// same pair still collide (NULLs are distinct in a plain unique index), and
// mark_conversation_read is the idempotent mark-read procedure the engines
// call before falling back to the bulk update.
var ddl = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_identity
		ON conversations (buyer_id, seller_id, COALESCE(listing_id, 0))`,

	`CREATE OR REPLACE FUNCTION mark_conversation_read(conv uuid, reader uuid)
		RETURNS void AS $$
			UPDATE messages
			SET is_read = true, read_at = now()
			WHERE conversation_id = conv
			  AND sender_id <> reader
			  AND is_read = false;
		$$ LANGUAGE sql`,
}

// Migrate brings the schema up: model tables first, then the raw DDL.
func Migrate(g *gorm.DB) error {
	if err := g.AutoMigrate(
		&models.User{},
		&models.Listing{},
		&models.Conversation{},
		&models.Message{},
		&models.Notification{},
		&models.Transaction{},
		&models.Review{},
	); err != nil {
		return err
	}
	for _, stmt := range ddl {
		if err := g.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
