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

package tool

import (
	"context"
	"fmt"
)

// DefaultMaxStreamChunks is the default cap on chunks a streaming server
// tool may emit: ServerTool.Stream stops forwarding chunks past the cap and
// returns an error once the tool body returns. -1 disables the cap.
const DefaultMaxStreamChunks = 300

// streamChunkLimit is process-wide configuration, mutable for test-time
// reconfiguration (spec §9's "thread-local override stack" maps to a simple
// package variable here since the executor is single-conversation
// cooperative, not truly multi-threaded per conversation).
var streamChunkLimit = DefaultMaxStreamChunks

// SetMaxToolStreamChunks overrides the global streaming chunk cap. Pass -1
// for unbounded.
func SetMaxToolStreamChunks(n int) { streamChunkLimit = n }

// MaxToolStreamChunks returns the current streaming chunk cap.
func MaxToolStreamChunks() int { return streamChunkLimit }

// Func is a server-local callable tool body. Implementations that need to
// stream should instead implement ServerTool.Stream via StreamFunc.
type Func func(ctx context.Context, args map[string]any) (any, error)

// StreamFunc is a server-local callable tool body that emits intermediate
// chunks before returning its final value.
type StreamFunc func(ctx context.Context, args map[string]any, emit func(StreamChunk)) (any, error)

// ServerTool adapts a Go function into a KindServer Tool. Sync callables are
// expected to be cheap or to manage their own goroutine dispatch: the
// executor's steps and Agents call Run synchronously on the goroutine
// driving the conversation, so a blocking callable holds up that
// conversation until it returns (see pkg/wfagent).
type ServerTool struct {
	Def    Definition
	Call   Func
	Stream_ StreamFunc
}

// NewServerTool builds a ServerTool, defaulting Kind to KindServer.
func NewServerTool(def Definition, call Func) *ServerTool {
	def.Kind = KindServer
	return &ServerTool{Def: def, Call: call}
}

// NewStreamingServerTool builds a ServerTool whose execution streams
// intermediate chunks via emit before returning its final value.
func NewStreamingServerTool(def Definition, stream StreamFunc) *ServerTool {
	def.Kind = KindServer
	def.SupportsStreaming = true
	return &ServerTool{Def: def, Stream_: stream}
}

func (t *ServerTool) Definition() Definition { return t.Def }

func (t *ServerTool) Run(ctx context.Context, args map[string]any) (any, error) {
	if t.Call != nil {
		return t.Call(ctx, args)
	}
	if t.Stream_ != nil {
		return t.Stream_(ctx, args, func(StreamChunk) {})
	}
	return nil, fmt.Errorf("server tool %q has no implementation", t.Def.Name)
}

func (t *ServerTool) Stream(ctx context.Context, args map[string]any, emit func(StreamChunk)) (any, error) {
	if t.Stream_ == nil {
		v, err := t.Run(ctx, args)
		if err != nil {
			return nil, err
		}
		emit(StreamChunk{Index: 0, Content: v, Final: true})
		return v, nil
	}

	limit := MaxToolStreamChunks()
	count := 0
	wrapped := func(c StreamChunk) {
		count++
		if limit >= 0 && count > limit {
			return
		}
		emit(c)
	}
	v, err := t.Stream_(ctx, args, wrapped)
	if err == nil && limit >= 0 && count > limit {
		return nil, fmt.Errorf("server tool %q exceeded max stream chunks (%d)", t.Def.Name, limit)
	}
	return v, err
}

var _ StreamingTool = (*ServerTool)(nil)
