package migrate

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Result summarizes one migration run.
type Result struct {
	Found    int
	Migrated int
	Skipped  int
}

// Run copies every row of the legacy message table into message_v2,
// transforming the single-blob content column into parts and attachments
// columns. The copy is idempotent: re-running upserts the same rows. Rows
// whose content blob cannot be decoded are skipped with a warning rather
// than aborting the run.
func Run(db *sql.DB, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS message_v2 (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		role TEXT NOT NULL,
		parts TEXT NOT NULL,
		attachments TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);`); err != nil {
		return nil, fmt.Errorf("failed to create message_v2 table: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT id, chat_id, role, content, created_at FROM message")
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy messages: %w", err)
	}
	defer rows.Close()

	type legacyRow struct {
		id, chatID, role, content, createdAt string
	}
	var legacy []legacyRow
	for rows.Next() {
		var r legacyRow
		if err := rows.Scan(&r.id, &r.chatID, &r.role, &r.content, &r.createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan legacy message: %w", err)
		}
		legacy = append(legacy, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate legacy messages: %w", err)
	}
	rows.Close()

	result := &Result{Found: len(legacy)}
	logger.Info("Migrating legacy messages", zap.Int("count", result.Found))

	for _, r := range legacy {
		var content interface{}
		if err := json.Unmarshal([]byte(r.content), &content); err != nil {
			// Blobs were stored as JSON; a bare string blob is still valid content.
			content = r.content
		}

		parts, attachments := TransformLegacyContent(content)
		partsJSON, err := json.Marshal(parts)
		if err != nil {
			logger.Warn("Skipping message with unserializable parts",
				zap.String("id", r.id), zap.Error(err))
			result.Skipped++
			continue
		}
		attachmentsJSON, err := json.Marshal(attachments)
		if err != nil {
			logger.Warn("Skipping message with unserializable attachments",
				zap.String("id", r.id), zap.Error(err))
			result.Skipped++
			continue
		}

		_, err = tx.Exec(`
		INSERT INTO message_v2 (id, chat_id, role, parts, attachments, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chat_id = excluded.chat_id,
			role = excluded.role,
			parts = excluded.parts,
			attachments = excluded.attachments,
			created_at = excluded.created_at`,
			r.id, r.chatID, r.role, string(partsJSON), string(attachmentsJSON), r.createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert message %s: %w", r.id, err)
		}
		result.Migrated++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit migration: %w", err)
	}

	logger.Info("Migration complete",
		zap.Int("migrated", result.Migrated),
		zap.Int("skipped", result.Skipped))
	return result, nil
}
