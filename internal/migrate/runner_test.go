package migrate

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"godex/internal/chat"
)

func newLegacyDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
	CREATE TABLE message (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);`)
	require.NoError(t, err)
	return db
}

func insertLegacy(t *testing.T, db *sql.DB, id, role, content string) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO message (id, chat_id, role, content, created_at) VALUES (?, 'chat-1', ?, ?, '2024-01-01T00:00:00Z')",
		id, role, content,
	)
	require.NoError(t, err)
}

func readMigratedParts(t *testing.T, db *sql.DB, id string) []chat.Part {
	t.Helper()
	var raw string
	require.NoError(t, db.QueryRow("SELECT parts FROM message_v2 WHERE id = ?", id).Scan(&raw))
	var parts []chat.Part
	require.NoError(t, json.Unmarshal([]byte(raw), &parts))
	return parts
}

func TestRun_MigratesEveryShape(t *testing.T) {
	db := newLegacyDB(t)
	insertLegacy(t, db, "m1", "user", `"plain text blob"`)
	insertLegacy(t, db, "m2", "assistant", `{"content":"record blob"}`)
	insertLegacy(t, db, "m3", "assistant",
		`{"parts":[{"type":"tool_call","toolName":"search","toolCallId":"t1","args":{"q":"go"}}]}`)
	// Not JSON at all: treated as a bare string blob, never skipped.
	insertLegacy(t, db, "m4", "user", "raw unquoted text")

	result, err := Run(db, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Found)
	assert.Equal(t, 4, result.Migrated)
	assert.Zero(t, result.Skipped)

	parts := readMigratedParts(t, db, "m1")
	require.Len(t, parts, 1)
	assert.Equal(t, chat.TextPart("plain text blob"), parts[0])

	parts = readMigratedParts(t, db, "m2")
	require.Len(t, parts, 1)
	assert.Equal(t, chat.TextPart("record blob"), parts[0])

	parts = readMigratedParts(t, db, "m3")
	require.Len(t, parts, 1)
	assert.Equal(t, chat.PartToolInvocation, parts[0].Type)
	assert.Equal(t, "search", parts[0].ToolInvocation.ToolName)

	parts = readMigratedParts(t, db, "m4")
	require.Len(t, parts, 1)
	assert.Equal(t, chat.TextPart("raw unquoted text"), parts[0])
}

func TestRun_CarriesAttachments(t *testing.T) {
	db := newLegacyDB(t)
	insertLegacy(t, db, "m1", "user",
		`{"content":"see file","attachments":[{"id":"a1","name":"notes.txt","type":"text/plain","url":"blob:1"}]}`)

	_, err := Run(db, nil)
	require.NoError(t, err)

	var raw string
	require.NoError(t, db.QueryRow("SELECT attachments FROM message_v2 WHERE id = 'm1'").Scan(&raw))
	var attachments []chat.Attachment
	require.NoError(t, json.Unmarshal([]byte(raw), &attachments))
	require.Len(t, attachments, 1)
	assert.Equal(t, "notes.txt", attachments[0].Name)
}

func TestRun_IsIdempotent(t *testing.T) {
	db := newLegacyDB(t)
	insertLegacy(t, db, "m1", "user", `"first"`)

	_, err := Run(db, nil)
	require.NoError(t, err)

	// The source row changed; a re-run must update in place, not duplicate.
	_, err = db.Exec("UPDATE message SET content = ? WHERE id = 'm1'", `"second"`)
	require.NoError(t, err)

	result, err := Run(db, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Migrated)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM message_v2").Scan(&count))
	assert.Equal(t, 1, count)

	parts := readMigratedParts(t, db, "m1")
	require.Len(t, parts, 1)
	assert.Equal(t, "second", parts[0].Text)
}

func TestRun_EmptyLegacyTable(t *testing.T) {
	db := newLegacyDB(t)

	result, err := Run(db, nil)
	require.NoError(t, err)
	assert.Zero(t, result.Found)
	assert.Zero(t, result.Migrated)
}
