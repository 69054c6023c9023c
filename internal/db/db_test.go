package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// One conversation per (buyer, seller, listing): the identity index is what
// collapses a concurrent first contact from two devices into a single row, so
// its shape is load-bearing for the get-or-create path.
func TestConversationIdentityIndex(t *testing.T) {
	stmt := findDDL(t, "idx_conversations_identity")

	assert.Contains(t, stmt, "CREATE UNIQUE INDEX", "identity must be unique, not just indexed")
	assert.Contains(t, stmt, "ON conversations")
	assert.Contains(t, stmt, "buyer_id")
	assert.Contains(t, stmt, "seller_id")
	// plain unique indexes treat NULLs as distinct, so listing-less
	// conversations must be normalized into the key
	assert.Contains(t, stmt, "COALESCE(listing_id, 0)")
	assert.Contains(t, stmt, "IF NOT EXISTS", "migration must be re-runnable")
}

func TestMarkConversationReadProcedure(t *testing.T) {
	stmt := findDDL(t, "mark_conversation_read")

	assert.Contains(t, stmt, "CREATE OR REPLACE FUNCTION", "migration must be re-runnable")
	// flips only the counterparty's unread rows
	assert.Contains(t, stmt, "sender_id <> reader")
	assert.Contains(t, stmt, "is_read = false")
	assert.Contains(t, stmt, "read_at = now()")
}

func findDDL(t *testing.T, needle string) string {
	t.Helper()
	for _, stmt := range ddl {
		if strings.Contains(stmt, needle) {
			return stmt
		}
	}
	require.Failf(t, "missing ddl", "no statement mentioning %q", needle)
	return ""
}
