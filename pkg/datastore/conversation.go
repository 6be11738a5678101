// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oracle/wayflow-sub001/pkg/wferrors"
)

// ConversationRecord is one row of the conversation persistence table: a
// single turn of a conversation, keyed by (conversation_id, turn_id).
type ConversationRecord struct {
	AgentID               string
	ConversationID        string
	TurnID                string
	IsLastTurn            bool
	CreatedAt             time.Time
	ConversationTurnState json.RawMessage // serialized Conversation
	ExtraMetadata         map[string]any  // A2A task status, history, artifacts
}

const createConversationTurnsSchemaSQL = `
CREATE TABLE IF NOT EXISTS conversation_turns (
    agent_id VARCHAR(255) NOT NULL,
    conversation_id VARCHAR(255) NOT NULL,
    turn_id VARCHAR(255) NOT NULL,
    is_last_turn INTEGER NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL,
    conversation_turn_state TEXT,
    extra_metadata TEXT,
    PRIMARY KEY (conversation_id, turn_id)
)`

const createConversationTurnsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_conversation_turns_last ON conversation_turns(conversation_id, is_last_turn)`

// ConversationStore persists Conversation turns for the A2A and Responses
// servers, keeping exactly one "last turn" marker per conversation id (I7:
// after UpdateTaskConversation, exactly one row with this conversation_id
// has is_last_turn=1).
type ConversationStore struct {
	db      *sql.DB
	dialect string
}

// NewConversationStore opens the conversation_turns table over db,
// creating it if it does not already exist.
func NewConversationStore(db *sql.DB, dialect string) (*ConversationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("datastore: database connection is required")
	}
	switch dialect {
	case "sqlite3":
		dialect = "sqlite"
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("datastore: unsupported dialect %q", dialect)
	}

	c := &ConversationStore{db: db, dialect: dialect}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, stmt := range []string{createConversationTurnsSchemaSQL, createConversationTurnsIndexSQL} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("datastore: initializing conversation_turns schema: %w", err)
		}
	}
	return c, nil
}

func (c *ConversationStore) placeholders(query string) string {
	if c.dialect != "postgres" {
		return query
	}
	out := make([]byte, 0, len(query)+20)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			out = append(out, []byte(fmt.Sprintf("$%d", n))...)
			n++
		} else {
			out = append(out, query[i])
		}
	}
	return string(out)
}

// UpdateTaskConversation records rec as the new last turn for its
// conversation: inside a single transaction it clears the previous
// is_last_turn marker for rec.ConversationID and inserts (or replaces) rec
// with is_last_turn=1, so the clear and the set can never be observed
// independently.
func (c *ConversationStore) UpdateTaskConversation(ctx context.Context, rec ConversationRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return &wferrors.DatastoreError{Collection: "conversation_turns", Cause: err}
	}
	defer tx.Rollback()

	clearQuery := c.placeholders(`UPDATE conversation_turns SET is_last_turn = 0 WHERE conversation_id = ?`)
	if _, err := tx.ExecContext(ctx, clearQuery, rec.ConversationID); err != nil {
		return &wferrors.DatastoreError{Collection: "conversation_turns", Cause: err}
	}

	metadataJSON, err := json.Marshal(rec.ExtraMetadata)
	if err != nil {
		return &wferrors.DatastoreError{Collection: "conversation_turns", Cause: err}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	upsertQuery := c.placeholders(c.upsertQuery())
	if _, err := tx.ExecContext(ctx, upsertQuery,
		rec.AgentID, rec.ConversationID, rec.TurnID, 1, rec.CreatedAt.Unix(),
		string(rec.ConversationTurnState), string(metadataJSON),
	); err != nil {
		return &wferrors.DatastoreError{Collection: "conversation_turns", Cause: err}
	}

	if err := tx.Commit(); err != nil {
		return &wferrors.DatastoreError{Collection: "conversation_turns", Cause: err}
	}
	return nil
}

func (c *ConversationStore) upsertQuery() string {
	switch c.dialect {
	case "postgres":
		return `INSERT INTO conversation_turns (agent_id, conversation_id, turn_id, is_last_turn, created_at, conversation_turn_state, extra_metadata)
                VALUES (?, ?, ?, ?, ?, ?, ?)
                ON CONFLICT (conversation_id, turn_id) DO UPDATE SET
                    agent_id = excluded.agent_id, is_last_turn = excluded.is_last_turn,
                    created_at = excluded.created_at, conversation_turn_state = excluded.conversation_turn_state,
                    extra_metadata = excluded.extra_metadata`
	case "mysql":
		return `INSERT INTO conversation_turns (agent_id, conversation_id, turn_id, is_last_turn, created_at, conversation_turn_state, extra_metadata)
                VALUES (?, ?, ?, ?, ?, ?, ?)
                ON DUPLICATE KEY UPDATE agent_id = VALUES(agent_id), is_last_turn = VALUES(is_last_turn),
                    created_at = VALUES(created_at), conversation_turn_state = VALUES(conversation_turn_state),
                    extra_metadata = VALUES(extra_metadata)`
	default: // sqlite
		return `INSERT INTO conversation_turns (agent_id, conversation_id, turn_id, is_last_turn, created_at, conversation_turn_state, extra_metadata)
                VALUES (?, ?, ?, ?, ?, ?, ?)
                ON CONFLICT (conversation_id, turn_id) DO UPDATE SET
                    agent_id = excluded.agent_id, is_last_turn = excluded.is_last_turn,
                    created_at = excluded.created_at, conversation_turn_state = excluded.conversation_turn_state,
                    extra_metadata = excluded.extra_metadata`
	}
}

// LastTurn returns the row marked is_last_turn=1 for conversationID, or nil
// if the conversation has no recorded turns.
func (c *ConversationStore) LastTurn(ctx context.Context, conversationID string) (*ConversationRecord, error) {
	query := c.placeholders(`SELECT agent_id, conversation_id, turn_id, is_last_turn, created_at, conversation_turn_state, extra_metadata
              FROM conversation_turns WHERE conversation_id = ? AND is_last_turn = 1`)
	row := c.db.QueryRowContext(ctx, query, conversationID)
	return scanConversationRow(row)
}

// Turn returns the specific (conversationID, turnID) row, or nil if absent.
func (c *ConversationStore) Turn(ctx context.Context, conversationID, turnID string) (*ConversationRecord, error) {
	query := c.placeholders(`SELECT agent_id, conversation_id, turn_id, is_last_turn, created_at, conversation_turn_state, extra_metadata
              FROM conversation_turns WHERE conversation_id = ? AND turn_id = ?`)
	row := c.db.QueryRowContext(ctx, query, conversationID, turnID)
	return scanConversationRow(row)
}

func scanConversationRow(row *sql.Row) (*ConversationRecord, error) {
	var rec ConversationRecord
	var isLast int
	var createdAt int64
	var stateJSON, metadataJSON string
	err := row.Scan(&rec.AgentID, &rec.ConversationID, &rec.TurnID, &isLast, &createdAt, &stateJSON, &metadataJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &wferrors.DatastoreError{Collection: "conversation_turns", Cause: err}
	}

	rec.IsLastTurn = isLast != 0
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.ConversationTurnState = json.RawMessage(stateJSON)
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &rec.ExtraMetadata); err != nil {
			return nil, &wferrors.DatastoreError{Collection: "conversation_turns", Cause: err}
		}
	}
	return &rec, nil
}
