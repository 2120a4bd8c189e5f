package scylla

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateTransitionsAreConditional(t *testing.T) {
	assert.Contains(t, statements.MarkCodeUsed, "IF used = false")
	assert.Contains(t, statements.DeactivateSession, "IF active = true")
	assert.Contains(t, statements.InsertCode, "IF NOT EXISTS")
	assert.Contains(t, statements.InsertSession, "IF NOT EXISTS")
}

func TestSelectCodesBoundedByCreatedAt(t *testing.T) {
	assert.True(t, strings.HasSuffix(strings.TrimSpace(statements.SelectCodes), "WHERE contact_hash = ? AND created_at >= ?"))
}

func TestPlaceholderCounts(t *testing.T) {
	cases := map[string]int{
		statements.InsertCode:        12,
		statements.InsertCodeLog:     10,
		statements.SelectCodes:       2,
		statements.MarkCodeUsed:      5,
		statements.MarkCodeLogUsed:   5,
		statements.SelectCodeLog:     2,
		statements.InsertSession:     9,
		statements.SelectSession:     1,
		statements.DeactivateSession: 1,
	}
	for stmt, want := range cases {
		assert.Equal(t, want, strings.Count(stmt, "?"), stmt)
	}
}

func TestSchemaCoversEveryTable(t *testing.T) {
	joined := strings.Join(schema, "\n")
	for _, table := range []string{"access_codes", "access_code_log", "access_sessions"} {
		assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
	assert.Contains(t, joined, "CLUSTERING ORDER BY (created_at DESC")
}
