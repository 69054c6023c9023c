// Package store is the persistence/query gateway: every table write goes
// through here so that row-level change events are published alongside it.
package store

import (
	"errors"

	"gorm.io/gorm"

	"github.com/yudapramadita/lokapasar/internal/realtime"
	"go.uber.org/zap"
)

var (
	ErrNotFound       = gorm.ErrRecordNotFound
	ErrNotParticipant = errors.New("store: user is not a participant")
)

type Store struct {
	db  *gorm.DB
	bus realtime.Publisher
	log *zap.Logger
}

func New(db *gorm.DB, bus realtime.Publisher, log *zap.Logger) *Store {
	return &Store{db: db, bus: bus, log: log}
}

// DB exposes the raw handle for migrations in main.
func (s *Store) DB() *gorm.DB {
	return s.db
}
