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

package a2aserver

import (
	"fmt"

	"github.com/oracle/wayflow-sub001/pkg/message"
)

// toInternalMessage converts a wire Message into pkg/message's internal
// representation. Text parts become TextContent; file parts become
// ImageContent (the only binary content kind pkg/message supports); a data
// part tagged metadata.type=="tool_result" carries a client tool's result
// back to a suspended conversation instead of new conversational content.
func toInternalMessage(m Message) (message.Message, error) {
	role := message.RoleUser
	if m.Role == "agent" || m.Role == "assistant" {
		role = message.RoleAssistant
	}

	var contents []message.Content
	var toolResult *message.ToolResult
	for _, p := range m.Parts {
		switch p.Kind {
		case PartKindText:
			contents = append(contents, message.TextContent{Text: p.Text})
		case PartKindFile:
			if p.File == nil {
				return message.Message{}, fmt.Errorf("a2aserver: file part missing file payload")
			}
			mime, _ := p.Metadata["mime_type"].(string)
			contents = append(contents, message.ImageContent{Base64Data: p.File.Bytes, MIMEType: mime})
		case PartKindData:
			if p.Metadata["type"] == "tool_result" {
				toolResult = dataPartToToolResult(p)
			}
		default:
			return message.Message{}, fmt.Errorf("a2aserver: unknown part kind %q", p.Kind)
		}
	}

	if toolResult != nil {
		return message.New(role, message.TypeToolResult, nil, message.WithToolResult(toolResult))
	}
	return message.New(role, message.TypeUser, contents)
}

func dataPartToToolResult(p Part) *message.ToolResult {
	content, _ := p.Data["content"].(string)
	toolRequestID, _ := p.Data["tool_request_id"].(string)
	isError, _ := p.Data["is_error"].(bool)
	return &message.ToolResult{ToolRequestID: toolRequestID, Content: content, IsError: isError}
}

// fromInternalMessage converts an internal message.Message back onto the
// A2A wire shape for task history.
func fromInternalMessage(m message.Message) Message {
	role := "user"
	if m.Role == message.RoleAssistant {
		role = "agent"
	}

	out := Message{MessageID: m.ID, Role: role}
	for _, c := range m.Contents {
		switch v := c.(type) {
		case message.TextContent:
			out.Parts = append(out.Parts, Part{Kind: PartKindText, Text: v.Text})
		case message.ImageContent:
			out.Parts = append(out.Parts, Part{Kind: PartKindFile, File: &FilePayload{Bytes: v.Base64Data}, Metadata: map[string]any{"mime_type": v.MIMEType}})
		}
	}
	for _, req := range m.ToolRequests {
		out.Parts = append(out.Parts, Part{
			Kind: PartKindData,
			Data: map[string]any{"name": req.Name, "args": req.Args, "tool_request_id": req.ToolRequestID},
			Metadata: map[string]any{"type": "tool_request"},
		})
	}
	if m.ToolResult != nil {
		out.Parts = append(out.Parts, Part{
			Kind: PartKindData,
			Data: map[string]any{"content": m.ToolResult.Content, "tool_request_id": m.ToolResult.ToolRequestID, "is_error": m.ToolResult.IsError},
			Metadata: map[string]any{"type": "tool_result"},
		})
	}
	return out
}
