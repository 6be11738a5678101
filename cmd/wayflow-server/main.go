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

// Command wayflow-server hosts one agent's flow over either the A2A
// JSON-RPC transport or the OpenAI-Responses-compatible REST/SSE transport.
//
// Usage:
//
//	wayflow-server --agent assistant --mode a2a --port 8080
//	wayflow-server --agent assistant --mode responses --connections connections.yaml
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/oracle/wayflow-sub001/pkg/a2aserver"
	"github.com/oracle/wayflow-sub001/pkg/checkpoint"
	"github.com/oracle/wayflow-sub001/pkg/compiler"
	"github.com/oracle/wayflow-sub001/pkg/config"
	"github.com/oracle/wayflow-sub001/pkg/datastore"
	"github.com/oracle/wayflow-sub001/pkg/flow"
	"github.com/oracle/wayflow-sub001/pkg/llmadapter"
	"github.com/oracle/wayflow-sub001/pkg/observability"
	"github.com/oracle/wayflow-sub001/pkg/property"
	"github.com/oracle/wayflow-sub001/pkg/responsesserver"
	"github.com/oracle/wayflow-sub001/pkg/wfagent"
)

func main() {
	if err := run(); err != nil {
		slog.Error("wayflow-server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = config.LoadDotEnv("")

	cfg, err := config.ParseServerFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	if cfg.Agent == "" {
		return fmt.Errorf("--agent is required")
	}

	conns, err := config.LoadConnectionConfig(cfg.Connections)
	if err != nil {
		slog.Warn("no connections file loaded, falling back to an in-process sqlite store and no LLMs", "path", cfg.Connections, "error", err)
		conns = &config.ConnectionConfig{}
	}

	db, dialect, err := openDatastore(conns)
	if err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer db.Close()

	cstore, err := datastore.NewConversationStore(db, dialect)
	if err != nil {
		return fmt.Errorf("opening conversation store: %w", err)
	}
	store := checkpoint.NewStore(cstore)

	llms, err := buildLLMResolver(conns)
	if err != nil {
		return fmt.Errorf("building LLM resolver: %w", err)
	}

	agentFlow, err := compileAgentFlow(cfg.Agent)
	if err != nil {
		return fmt.Errorf("compiling agent flow: %w", err)
	}

	metrics := observability.NewMetrics()
	executor := wfagent.NewExecutor()
	executor.Metrics = metrics

	// Authentication is deliberately absent from both server transports:
	// neither the A2A JSON-RPC endpoint nor the Responses REST endpoint
	// checks any credential on incoming requests. Anything exposing this
	// process beyond a trusted network must terminate auth in front of it.
	slog.Warn("starting with no authentication on either server transport; do not expose this process directly to an untrusted network")

	handler, addr, err := buildHandler(cfg, agentFlow, executor, store, llms, metrics)
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: addr, Handler: handler}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("wayflow-server listening", "addr", addr, "mode", cfg.Mode, "agent", cfg.Agent)
		if cfg.TLSConfigured() {
			errCh <- srv.ListenAndServeTLS(cfg.SSLCertFile, cfg.SSLKeyFile)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// openDatastore opens the "default" datastore entry from conns, or a local
// sqlite file (wayflow.db) if none is configured — enough to run a
// checkpointed agent without requiring a connections file for local use.
func openDatastore(conns *config.ConnectionConfig) (*sql.DB, string, error) {
	dsCfg, ok := conns.Datastores["default"]
	if !ok {
		db, err := sql.Open("sqlite3", "file:wayflow.db?cache=shared&_journal_mode=WAL")
		if err != nil {
			return nil, "", err
		}
		return db, "sqlite", nil
	}
	db, err := sql.Open(driverName(dsCfg.Driver), dsCfg.DSN)
	if err != nil {
		return nil, "", err
	}
	if dsCfg.PoolSize > 0 {
		db.SetMaxOpenConns(dsCfg.PoolSize)
	}
	return db, dsCfg.Driver, nil
}

func driverName(dialect string) string {
	switch dialect {
	case "postgres":
		return "postgres"
	case "mysql":
		return "mysql"
	default:
		return "sqlite3"
	}
}

// staticLLMResolver implements flow.LLMResolver over the fixed set of
// adapters built from the connections file at startup.
type staticLLMResolver map[string]llmadapter.Adapter

func (r staticLLMResolver) ResolveLLM(name string) (llmadapter.Adapter, error) {
	adapter, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("no LLM named %q configured", name)
	}
	return adapter, nil
}

// buildLLMResolver builds one ChatCompletionsAdapter per configured LLM,
// keyed by its configured name — the same name an Agent's LLMName field
// references. Vendor quirks are inferred from the name since
// config.LLMConfig carries no separate vendor field; an operator naming an
// LLM "gemini-flash" or "cohere-command" gets the matching quirk handling.
func buildLLMResolver(conns *config.ConnectionConfig) (staticLLMResolver, error) {
	resolver := make(staticLLMResolver, len(conns.LLMs))
	for name, llmCfg := range conns.LLMs {
		apiKey, err := llmCfg.APIKey()
		if err != nil {
			return nil, err
		}
		resolver[name] = llmadapter.NewChatCompletionsAdapter(llmCfg.BaseURL, apiKey, name, vendorForName(name))
	}
	return resolver, nil
}

func vendorForName(name string) llmadapter.Vendor {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "gemini"):
		return llmadapter.VendorGemini
	case strings.Contains(lower, "cohere"):
		return llmadapter.VendorCohere
	case strings.Contains(lower, "llama"):
		return llmadapter.VendorLlama
	default:
		return llmadapter.VendorGeneric
	}
}

// compileAgentFlow wraps a single LLM-driven wfagent.Agent named agentID in
// a four-step flow (start -> agent -> done/failed), the minimal shape
// compiler.Compile accepts for a conversational agent with no declared
// sub-flows or tools beyond what the agent's own Tools field carries.
// Richer topologies (multi-step flows, tool boxes, sub-agents) are built the
// same way, by constructing a larger compiler.Spec; this is the zero-config
// default when no flow definition is supplied.
func compileAgentFlow(agentID string) (*flow.Flow, error) {
	agent := &wfagent.Agent{
		AgentName:       agentID,
		LLMName:         agentID,
		CallerInputMode: wfagent.CallerInputDefault,
	}

	spec := compiler.Spec{
		Name:      agentID,
		BeginStep: "start",
		Steps: []flow.Step{
			&flow.StartStep{StepName: "start"},
			agent,
			&flow.CompleteStep{
				StepName: "done",
				Outputs:  agent.OutputDescriptors(),
			},
			&flow.CompleteStep{
				StepName: "failed",
				Outputs: map[string]property.Property{
					"error": property.New("error", property.KindString, "the agent's failure message"),
				},
			},
		},
		ControlEdges: []flow.ControlEdge{
			{Src: "start", SourceBranch: flow.DefaultBranch, Dst: agentID},
			{Src: agentID, SourceBranch: "success", Dst: "done"},
			{Src: agentID, SourceBranch: "error", Dst: "failed"},
		},
	}

	return compiler.Compile(spec)
}

// buildHandler wires the compiled flow into whichever transport cfg.Mode
// names, both sharing the same executor, checkpoint store, and metrics
// registry.
func buildHandler(cfg *config.ServerConfig, f *flow.Flow, executor *wfagent.Executor, store *checkpoint.Store, llms staticLLMResolver, metrics *observability.Metrics) (http.Handler, string, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	switch cfg.Mode {
	case "a2a":
		worker := a2aserver.NewWorker(cfg.Agent, f, executor, store)
		worker.LLMs = llms
		card := a2aserver.AgentCard{
			Name:               cfg.Agent,
			Version:            "0.1.0",
			DefaultInputModes:  []string{"text"},
			DefaultOutputModes: []string{"text"},
		}
		return a2aserver.NewServer(worker, card, metrics), addr, nil

	case "responses":
		binding := responsesserver.AgentBinding{
			ModelID:  cfg.Agent,
			Flow:     f,
			Executor: executor,
			Store:    store,
			LLMs:     llms,
		}
		return responsesserver.NewServer(responsesserver.NewWorker(binding), metrics), addr, nil

	default:
		return nil, "", fmt.Errorf("unknown --mode %q: must be \"a2a\" or \"responses\"", cfg.Mode)
	}
}
