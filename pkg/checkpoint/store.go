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

package checkpoint

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/oracle/wayflow-sub001/pkg/datastore"
	"github.com/oracle/wayflow-sub001/pkg/flow"
	"github.com/oracle/wayflow-sub001/pkg/wfagent"
)

// Store persists Checkpoints through a datastore.ConversationStore,
// reusing its conversation_turns table and its I7 last-turn-uniqueness
// transaction rather than introducing a second schema.
type Store struct {
	conversations *datastore.ConversationStore
}

// NewStore wraps an already-opened ConversationStore for checkpointing.
func NewStore(conversations *datastore.ConversationStore) *Store {
	return &Store{conversations: conversations}
}

// Save snapshots conv as the new last turn for its conversation, tagging
// the row with agentID and status for operator visibility, and returns the
// generated turn id.
func (s *Store) Save(ctx context.Context, agentID string, conv *wfagent.Conversation) (string, error) {
	snap, err := snapshotOf(conv)
	if err != nil {
		return "", fmt.Errorf("checkpoint: snapshotting conversation %s: %w", conv.ID, err)
	}
	state, err := marshalSnapshot(snap)
	if err != nil {
		return "", err
	}

	turnID := uuid.NewString()
	statusName := statusTypeName(conv.Status)
	rec := datastore.ConversationRecord{
		AgentID:               agentID,
		ConversationID:        conv.ID,
		TurnID:                turnID,
		ConversationTurnState: state,
		ExtraMetadata: map[string]any{
			"status": statusName,
		},
	}
	if err := s.conversations.UpdateTaskConversation(ctx, rec); err != nil {
		return "", fmt.Errorf("checkpoint: saving conversation %s: %w", conv.ID, err)
	}
	return turnID, nil
}

// LoadLatest loads the most recent checkpoint for conversationID, if any,
// and restores it against f (the caller's already-compiled flow looked up
// by the checkpoint's recorded flow name). ok is false if the conversation
// has no recorded checkpoint.
func (s *Store) LoadLatest(ctx context.Context, conversationID string, f *flow.Flow) (conv *wfagent.Conversation, agentID string, ok bool, err error) {
	rec, err := s.conversations.LastTurn(ctx, conversationID)
	if err != nil {
		return nil, "", false, fmt.Errorf("checkpoint: loading conversation %s: %w", conversationID, err)
	}
	if rec == nil {
		return nil, "", false, nil
	}

	snap, err := unmarshalSnapshot(rec.ConversationTurnState)
	if err != nil {
		return nil, "", false, fmt.Errorf("checkpoint: restoring conversation %s: %w", conversationID, err)
	}
	if snap.FlowName != f.Name {
		return nil, "", false, fmt.Errorf("checkpoint: conversation %s was checkpointed against flow %q, not %q", conversationID, snap.FlowName, f.Name)
	}

	restored, err := snap.Restore(conversationID, f)
	if err != nil {
		return nil, "", false, fmt.Errorf("checkpoint: restoring conversation %s: %w", conversationID, err)
	}
	return restored, rec.AgentID, true, nil
}

func statusTypeName(status wfagent.ExecutionStatus) string {
	switch status.(type) {
	case wfagent.FinishedStatus:
		return "finished"
	case wfagent.UserMessageRequestStatus:
		return "user_message_request"
	case wfagent.ToolRequestStatus:
		return "tool_request"
	case wfagent.ToolExecutionConfirmationStatus:
		return "tool_execution_confirmation"
	case wfagent.InterruptedExecutionStatus:
		return "interrupted"
	case wfagent.AuthChallengeStatus:
		return "auth_challenge"
	case wfagent.FailedStatus:
		return "failed"
	default:
		return "unknown"
	}
}
