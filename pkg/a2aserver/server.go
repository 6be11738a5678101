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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/oracle/wayflow-sub001/pkg/observability"
	"github.com/oracle/wayflow-sub001/pkg/wferrors"
)

// Server is the net/http handler exposing one Worker's agent over A2A
// JSON-RPC 2.0, grounded on the teacher's legacy hand-rolled a2a.Server
// (mux routing, a respondJSON helper, request logging middleware) rather
// than a2a-go's own server-side handler machinery, whose exact HTTP/RPC
// API surface this module's corpus does not show.
type Server struct {
	Worker  *Worker
	Card    AgentCard
	Logger  *slog.Logger
	Metrics *observability.Metrics

	mux *http.ServeMux
}

// NewServer builds a Server ready to ListenAndServe. metrics may be nil; a
// nil Metrics answers /metrics with 404 Not Found rather than panicking.
func NewServer(worker *Worker, card AgentCard, metrics *observability.Metrics) *Server {
	s := &Server{Worker: worker, Card: card, Logger: slog.Default(), Metrics: metrics}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/", s.handleRPC)
	s.mux.HandleFunc("/.well-known/agent-card.json", s.handleAgentCard)
	s.mux.Handle("/metrics", s.Metrics.Handler())
	return s
}

// ServeHTTP implements http.Handler, logging every request the way the
// teacher's a2a.Server.loggingMiddleware does.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.Logger.Debug("a2a request handled", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, http.StatusOK, s.Card)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, nil, codeInvalidParams, "malformed JSON-RPC request")
		return
	}

	switch req.Method {
	case "message/send":
		s.handleMessageSend(w, r, req)
	case "tasks/get":
		s.handleTasksGet(w, r, req)
	case "tasks/cancel":
		s.handleTasksCancel(w, r, req)
	default:
		writeRPCError(w, req.ID, codeMethodNotFound, "method not implemented: "+req.Method)
	}
}

func (s *Server) handleMessageSend(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var params MessageSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeRPCError(w, req.ID, codeInvalidParams, "invalid message/send params: "+err.Error())
		return
	}
	if len(params.Message.Parts) == 0 {
		writeRPCError(w, req.ID, codeInvalidParams, "message must have at least one part")
		return
	}

	task, err := s.Worker.SendMessage(r.Context(), params.Message, params.Configuration)
	if err != nil {
		s.writeExecutionError(w, req.ID, err)
		return
	}
	writeRPCResult(w, req.ID, task)
}

func (s *Server) handleTasksGet(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var params TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
		writeRPCError(w, req.ID, codeInvalidParams, "tasks/get requires an id")
		return
	}
	task, err := s.Worker.Get(r.Context(), params.ID)
	if err != nil {
		s.writeExecutionError(w, req.ID, err)
		return
	}
	writeRPCResult(w, req.ID, task)
}

func (s *Server) handleTasksCancel(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var params TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
		writeRPCError(w, req.ID, codeInvalidParams, "tasks/cancel requires an id")
		return
	}
	task, err := s.Worker.Cancel(r.Context(), params.ID)
	if err != nil {
		s.writeExecutionError(w, req.ID, err)
		return
	}
	writeRPCResult(w, req.ID, task)
}

func (s *Server) writeExecutionError(w http.ResponseWriter, id json.RawMessage, err error) {
	var notFound *taskNotFoundError
	if errors.As(err, &notFound) {
		writeRPCError(w, id, codeTaskNotFound, err.Error())
		return
	}
	var timeout *wferrors.TimeoutError
	if errors.As(err, &timeout) {
		writeRPCError(w, id, codeInternalError, err.Error())
		return
	}
	writeRPCError(w, id, codeInternalError, err.Error())
}

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	respondJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	respondJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
