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

package responsesserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oracle/wayflow-sub001/pkg/observability"
)

// Server is the net/http handler exposing a Worker's agents over the
// OpenAI-Responses-compatible wire protocol, grounded the same way
// pkg/a2aserver's Server is: an http.ServeMux plus a respondJSON helper and
// request logging, the teacher's legacy a2a.Server style generalized to a
// second wire protocol rather than imported from a framework.
type Server struct {
	Worker  *Worker
	Logger  *slog.Logger
	Metrics *observability.Metrics

	mux *http.ServeMux
}

// NewServer builds a Server ready to ListenAndServe. metrics may be nil.
func NewServer(worker *Worker, metrics *observability.Metrics) *Server {
	s := &Server{Worker: worker, Logger: slog.Default(), Metrics: metrics}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /v1/models", s.handleListModels)
	s.mux.HandleFunc("POST /v1/responses", s.handleCreateResponse)
	s.mux.HandleFunc("GET /v1/responses/{id}", s.handleGetResponse)
	s.mux.HandleFunc("DELETE /v1/responses/{id}", s.handleDeleteResponse)
	s.mux.HandleFunc("POST /v1/responses/{id}/cancel", s.handleCancelResponse)
	s.mux.Handle("GET /metrics", s.Metrics.Handler())
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.Logger.Debug("responses request handled", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ListModelsResponse{Object: "list", Data: s.Worker.Models()})
}

func (s *Server) handleCreateResponse(w http.ResponseWriter, r *http.Request) {
	var req CreateResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Model == "" {
		respondError(w, http.StatusBadRequest, "model is required")
		return
	}

	events, err := s.Worker.CreateResponse(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Stream {
		writeSSE(w, events)
		return
	}

	for _, e := range events {
		if e.isTerminal() && e.Response != nil {
			respondJSON(w, http.StatusOK, *e.Response)
			return
		}
	}
	respondError(w, http.StatusInternalServerError, "no terminal event produced")
}

// writeSSE streams events as `data: ...\n\n` frames, assigning each one a
// monotonically increasing sequence_number as it is written — spec §6's
// requirement, and the same point in the pipeline the distilled source's
// iterate_and_yield_sse_event counter lives at — followed by a terminating
// `data: [DONE]\n\n` frame (spec §4.7's streaming format).
func writeSSE(w http.ResponseWriter, events []ResponseStreamEvent) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, canFlush := w.(http.Flusher)
	for i, e := range events {
		e.SequenceNumber = i
		payload, err := e.marshal()
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		if canFlush {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if canFlush {
		flusher.Flush()
	}
}

func (s *Server) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	resp, err := s.Worker.Get(id)
	if err != nil {
		s.writeResponseError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteResponse(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Worker.Delete(id); err != nil {
		s.writeResponseError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelResponse(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	resp, err := s.Worker.Cancel(id)
	if err != nil {
		s.writeResponseError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) writeResponseError(w http.ResponseWriter, err error) {
	var notFound *notFoundError
	if errors.As(err, &notFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ResponseError{Code: strings.ReplaceAll(http.StatusText(status), " ", "_"), Message: message})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
