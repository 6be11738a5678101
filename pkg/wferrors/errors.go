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

// Package wferrors defines the error category sentinels shared across the
// engine, so callers can classify failures with errors.Is/errors.As instead
// of string matching, and servers can map a category onto a wire-level
// status (A2A task state, JSON-RPC error code, HTTP status).
package wferrors

import "errors"

// Category sentinels. Wrap with fmt.Errorf("...: %w", Category) or use the
// typed wrappers below to preserve structured detail.
var (
	// ErrValidation covers bad flow topology, bad property types, unknown
	// tools, duplicate names. Raised at compile/construction time.
	ErrValidation = errors.New("validation error")

	// ErrExecution covers a runtime failure inside a step or tool body.
	ErrExecution = errors.New("execution error")

	// ErrRemote covers LLM/HTTP/MCP transport failures after the retry
	// ladder is exhausted.
	ErrRemote = errors.New("remote error")

	// ErrTimeout covers blocking message/send, OAuth callback collection,
	// and HTTP transport deadlines.
	ErrTimeout = errors.New("timeout error")

	// ErrDatastore covers constraint violations, type mismatches, and
	// connection failures in the datastore layer.
	ErrDatastore = errors.New("datastore error")
)

// ValidationError names the component that failed validation.
type ValidationError struct {
	Component string
	Reason    string
}

func (e *ValidationError) Error() string {
	return "validation error in " + e.Component + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ExecutionError names the step/tool whose execution failed and the
// underlying cause.
type ExecutionError struct {
	Step  string
	Cause error
}

func (e *ExecutionError) Error() string {
	return "execution error in step " + e.Step + ": " + e.Cause.Error()
}

func (e *ExecutionError) Unwrap() error { return errors.Join(ErrExecution, e.Cause) }

// RemoteError carries the decoded status/body of a failed remote call.
type RemoteError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Cause      error
}

func (e *RemoteError) Error() string {
	if e.Cause != nil {
		return "remote error calling " + e.Endpoint + ": " + e.Cause.Error()
	}
	return "remote error calling " + e.Endpoint
}

func (e *RemoteError) Unwrap() error { return ErrRemote }

// TimeoutError names the operation that exceeded its deadline.
type TimeoutError struct {
	Operation string
}

func (e *TimeoutError) Error() string {
	return "timeout waiting for " + e.Operation
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// DatastoreError names the collection/table involved in a failed operation.
type DatastoreError struct {
	Collection string
	Cause      error
}

func (e *DatastoreError) Error() string {
	return "datastore error on " + e.Collection + ": " + e.Cause.Error()
}

func (e *DatastoreError) Unwrap() error { return errors.Join(ErrDatastore, e.Cause) }
