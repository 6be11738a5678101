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
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oracle/wayflow-sub001/pkg/datastore"
	"github.com/oracle/wayflow-sub001/pkg/flow"
	"github.com/oracle/wayflow-sub001/pkg/message"
	"github.com/oracle/wayflow-sub001/pkg/wfagent"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func testFlow() *flow.Flow {
	start := &flow.StartStep{StepName: "start"}
	complete := &flow.CompleteStep{StepName: "done"}
	return &flow.Flow{
		Name:      "greeter",
		BeginStep: "start",
		Steps:     map[string]flow.Step{"start": start, "done": complete},
		ControlEdges: []flow.ControlEdge{
			{Src: "start", SourceBranch: flow.DefaultBranch, Dst: "done"},
		},
	}
}

func TestSaveAndLoadLatestRoundTripsConversationState(t *testing.T) {
	f := testFlow()
	conv := wfagent.New("conv-1", f, map[string]any{"greeting": "hi"})
	conv.CurrentStep = "done"
	conv.RC.AppendMessage(message.NewText(message.RoleUser, message.TypeUser, "hello there"))
	conv.RC.SetVariable("turns", 1)
	conv.Status = wfagent.UserMessageRequestStatus{}

	db := openTestDB(t)
	cstore, err := datastore.NewConversationStore(db, "sqlite")
	require.NoError(t, err)
	store := NewStore(cstore)

	ctx := context.Background()
	turnID, err := store.Save(ctx, "agent-1", conv)
	require.NoError(t, err)
	assert.NotEmpty(t, turnID)

	restored, agentID, ok, err := store.LoadLatest(ctx, "conv-1", f)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "agent-1", agentID)
	assert.Equal(t, "done", restored.CurrentStep)
	assert.Equal(t, "hi", restored.IOValues["greeting"])

	msgs := restored.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello there", msgs[0].Text())

	turns, ok := restored.RC.Variable("turns")
	require.True(t, ok)
	assert.Equal(t, float64(1), turns) // round-tripped through JSON as float64
}

func TestLoadLatestMissingConversationReturnsNotOK(t *testing.T) {
	db := openTestDB(t)
	cstore, err := datastore.NewConversationStore(db, "sqlite")
	require.NoError(t, err)
	store := NewStore(cstore)

	_, _, ok, err := store.LoadLatest(context.Background(), "ghost", testFlow())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadLatestRejectsFlowMismatch(t *testing.T) {
	f := testFlow()
	conv := wfagent.New("conv-2", f, nil)

	db := openTestDB(t)
	cstore, err := datastore.NewConversationStore(db, "sqlite")
	require.NoError(t, err)
	store := NewStore(cstore)

	_, err = store.Save(context.Background(), "agent-1", conv)
	require.NoError(t, err)

	other := testFlow()
	other.Name = "different-flow"
	_, _, _, err = store.LoadLatest(context.Background(), "conv-2", other)
	require.Error(t, err)
}
