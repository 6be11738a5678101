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

// Package wfagent implements the conversation executor and the agentic
// components (Agent, Swarm, ManagerWorkers) that compose flow.Step bodies
// into a running conversation.
package wfagent

import "github.com/oracle/wayflow-sub001/pkg/flow"

// ExecutionStatus is the sum type a conversation settles into after each
// scheduling pass: exactly one terminal or suspend kind.
type ExecutionStatus interface {
	isExecutionStatus()
	// ConversationID identifies which conversation this status belongs to.
	ConversationID() string
}

type baseStatus struct {
	conversationID string
}

func (b baseStatus) ConversationID() string { return b.conversationID }

// FinishedStatus means the flow reached a CompleteStep or an edge to exit;
// OutputValues are the flow's resolved output descriptors.
type FinishedStatus struct {
	baseStatus
	OutputValues map[string]any
	BranchName   string
}

func (FinishedStatus) isExecutionStatus() {}

// UserMessageRequestStatus suspends the conversation awaiting a user reply.
type UserMessageRequestStatus struct {
	baseStatus
	Prompt string
}

func (UserMessageRequestStatus) isExecutionStatus() {}

// ToolRequestStatus suspends the conversation awaiting the caller to submit
// a ToolResult for a client tool.
type ToolRequestStatus struct {
	baseStatus
	ToolRequests []flow.ToolRequestRef
}

func (ToolRequestStatus) isExecutionStatus() {}

// ToolExecutionConfirmationStatus suspends the conversation awaiting the
// caller to approve or reject one or more pending tool calls.
type ToolExecutionConfirmationStatus struct {
	baseStatus
	ToolRequests []flow.ToolRequestRef
}

func (ToolExecutionConfirmationStatus) isExecutionStatus() {}

// InterruptedExecutionStatus means an ExecutionInterrupt fired before a
// step ran.
type InterruptedExecutionStatus struct {
	baseStatus
	Reason string
}

func (InterruptedExecutionStatus) isExecutionStatus() {}

// AuthChallengeStatus suspends the conversation awaiting an out-of-band
// OAuth authorization (an MCP tool requiring user consent).
type AuthChallengeStatus struct {
	baseStatus
	AuthorizationURL string
}

func (AuthChallengeStatus) isExecutionStatus() {}

// FailedStatus means the step loop aborted with an unrecoverable error.
type FailedStatus struct {
	baseStatus
	Err error
}

func (FailedStatus) isExecutionStatus() {}

func newStatus(conversationID string, yield *flow.Yield) ExecutionStatus {
	base := baseStatus{conversationID: conversationID}
	switch yield.Kind {
	case flow.YieldUserMessageRequest:
		return UserMessageRequestStatus{baseStatus: base}
	case flow.YieldToolRequest:
		return ToolRequestStatus{baseStatus: base, ToolRequests: yield.ToolRequests}
	case flow.YieldToolExecutionConfirmation:
		return ToolExecutionConfirmationStatus{baseStatus: base, ToolRequests: yield.ToolRequests}
	case flow.YieldInterruptedExecution:
		return InterruptedExecutionStatus{baseStatus: base, Reason: yield.Reason}
	case flow.YieldAuthChallenge:
		return AuthChallengeStatus{baseStatus: base, AuthorizationURL: yield.AuthorizationURL}
	default:
		return InterruptedExecutionStatus{baseStatus: base, Reason: "unknown yield kind"}
	}
}
