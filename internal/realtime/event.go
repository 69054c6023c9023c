// internal/realtime/event.go
package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	EventAll    EventType = "*"
)

// Event is a row-level change notification. Delivery is at-least-once and
// unordered across channels; consumers must not trust payload sequencing.
type Event struct {
	Table string          `json:"table"`
	Type  EventType       `json:"type"`
	Old   json.RawMessage `json:"old,omitempty"`
	New   json.RawMessage `json:"new,omitempty"`
}

// DecodeNew unmarshals the new-row payload into v.
func (e Event) DecodeNew(v interface{}) error {
	return json.Unmarshal(e.New, v)
}

// DecodeOld unmarshals the old-row payload into v.
func (e Event) DecodeOld(v interface{}) error {
	return json.Unmarshal(e.Old, v)
}

// Channel names. Message and conversation changes fan out per participant,
// notification changes per owner, transaction changes per transaction.
func UserChannel(userID uuid.UUID) string {
	return "changes:user:" + userID.String()
}

func NotificationChannel(userID uuid.UUID) string {
	return "changes:notifications:" + userID.String()
}

func TransactionChannel(txID uuid.UUID) string {
	return "changes:transactions:" + txID.String()
}
