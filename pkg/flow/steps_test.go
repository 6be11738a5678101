package flow

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oracle/wayflow-sub001/pkg/datastore"
	"github.com/oracle/wayflow-sub001/pkg/llmadapter"
	"github.com/oracle/wayflow-sub001/pkg/message"
	"github.com/oracle/wayflow-sub001/pkg/property"
	"github.com/oracle/wayflow-sub001/pkg/tool"
)

func TestStartAndCompleteSteps(t *testing.T) {
	rc := NewRunContext("c1")
	start := &StartStep{StepName: "start"}
	branch, out, yield, err := start.Run(context.Background(), rc, map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Nil(t, yield)
	assert.Equal(t, DefaultBranch, branch)
	assert.Equal(t, 1, out["x"])

	complete := &CompleteStep{StepName: "done", BranchName: "ok"}
	branch, out, yield, err = complete.Run(context.Background(), rc, map[string]any{"y": 2})
	require.NoError(t, err)
	assert.Nil(t, yield)
	assert.Equal(t, "ok", branch)
	assert.Equal(t, 2, out["y"])
}

func TestBranchingStep(t *testing.T) {
	step := &BranchingStep{
		StepName: "route",
		Conditions: []BranchCondition{
			{Branch: "big", When: func(in map[string]any) bool { return in["n"].(int) > 10 }},
			{Branch: "small", When: func(in map[string]any) bool { return in["n"].(int) <= 10 }},
		},
	}
	branch, _, _, err := step.Run(context.Background(), nil, map[string]any{"n": 20})
	require.NoError(t, err)
	assert.Equal(t, "big", branch)

	branch, _, _, err = step.Run(context.Background(), nil, map[string]any{"n": 3})
	require.NoError(t, err)
	assert.Equal(t, "small", branch)
}

func TestRegexExtractionStep(t *testing.T) {
	step := &RegexExtractionStep{
		StepName: "extract",
		Input:    "text",
		Pattern:  regexp.MustCompile(`order (?P<id>\d+)`),
		Groups:   []string{"id"},
	}
	branch, out, _, err := step.Run(context.Background(), nil, map[string]any{"text": "order 42 shipped"})
	require.NoError(t, err)
	assert.Equal(t, "matched", branch)
	assert.Equal(t, "42", out["id"])

	branch, _, _, err = step.Run(context.Background(), nil, map[string]any{"text": "nothing here"})
	require.NoError(t, err)
	assert.Equal(t, "no_match", branch)
}

func TestInputAndOutputMessageSteps(t *testing.T) {
	rc := NewRunContext("c1")
	in := &InputMessageStep{StepName: "ask", Template: "Hello {{.name}}"}
	branch, out, yield, err := in.Run(context.Background(), rc, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Nil(t, out)
	require.NotNil(t, yield)
	assert.Equal(t, YieldUserMessageRequest, yield.Kind)
	assert.Equal(t, DefaultBranch, branch)
	require.Len(t, rc.Messages(), 1)
	assert.Equal(t, "Hello Ada", rc.Messages()[0].Text())

	outStep := &OutputMessageStep{StepName: "tell", Template: "Bye {{.name}}"}
	branch, out, yield, err = outStep.Run(context.Background(), rc, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Nil(t, yield)
	assert.Equal(t, DefaultBranch, branch)
	assert.Equal(t, "Bye Ada", out["message"])
	assert.Len(t, rc.Messages(), 2)
}

type fakeServerTool struct {
	def    tool.Definition
	output any
	err    error
}

func (f *fakeServerTool) Definition() tool.Definition { return f.def }
func (f *fakeServerTool) Run(ctx context.Context, args map[string]any) (any, error) {
	return f.output, f.err
}

type fakeToolResolver struct{ tools map[string]tool.Tool }

func (f *fakeToolResolver) ResolveTool(name string) (tool.Tool, error) { return f.tools[name], nil }

func TestToolExecutionStepServerTool(t *testing.T) {
	rc := NewRunContext("c1")
	rc.Tools = &fakeToolResolver{tools: map[string]tool.Tool{
		"echo": &fakeServerTool{def: tool.Definition{Name: "echo", Kind: tool.KindServer}, output: "hi"},
	}}
	step := &ToolExecutionStep{StepName: "call_echo", ToolName: "echo"}
	branch, out, yield, err := step.Run(context.Background(), rc, map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Nil(t, yield)
	assert.Equal(t, "success", branch)
	assert.Equal(t, "hi", out[tool.UnnamedOutputSentinel])
}

func TestToolExecutionStepClientToolYields(t *testing.T) {
	rc := NewRunContext("c1")
	rc.Tools = &fakeToolResolver{tools: map[string]tool.Tool{
		"confirm": &fakeServerTool{def: tool.Definition{Name: "confirm", Kind: tool.KindClient}},
	}}
	step := &ToolExecutionStep{StepName: "call_confirm", ToolName: "confirm"}
	_, out, yield, err := step.Run(context.Background(), rc, map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Nil(t, out)
	require.NotNil(t, yield)
	assert.Equal(t, YieldToolRequest, yield.Kind)
	require.Len(t, yield.ToolRequests, 1)
	assert.Equal(t, "confirm", yield.ToolRequests[0].Name)
}

type fakeAgent struct {
	name    string
	outputs map[string]any
	yield   *Yield
	err     error
}

func (f *fakeAgent) Name() string { return f.name }
func (f *fakeAgent) RunTurn(rc *RunContext, inputs map[string]any) (map[string]any, *Yield, error) {
	return f.outputs, f.yield, f.err
}

func TestAgentExecutionStep(t *testing.T) {
	rc := NewRunContext("c1")
	rc.Agents = map[string]AgentRunner{
		"helper": &fakeAgent{name: "helper", outputs: map[string]any{"response": "done"}},
	}
	step := &AgentExecutionStep{StepName: "delegate", AgentName: "helper"}
	branch, out, yield, err := step.Run(context.Background(), rc, nil)
	require.NoError(t, err)
	assert.Nil(t, yield)
	assert.Equal(t, "success", branch)
	assert.Equal(t, "done", out["response"])
}

func TestVariableReadWriteSteps(t *testing.T) {
	rc := NewRunContext("c1")
	write := &VariableWriteStep{StepName: "w", Var: Variable{Name: "counter", Type: property.New("counter", property.KindInt, "")}}
	_, _, _, err := write.Run(context.Background(), rc, map[string]any{"counter": int64(5)})
	require.NoError(t, err)

	read := &VariableReadStep{StepName: "r", Var: Variable{Name: "counter", Type: property.New("counter", property.KindInt, "")}}
	_, out, _, err := read.Run(context.Background(), rc, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), out["counter"])
}

func TestVariableReadStepFallsBackToDefault(t *testing.T) {
	rc := NewRunContext("c1")
	read := &VariableReadStep{StepName: "r", Var: Variable{
		Name: "missing", Type: property.New("missing", property.KindInt, "").WithDefault(int64(0)),
	}}
	_, out, _, err := read.Run(context.Background(), rc, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), out["missing"])
}

type fakeVectorStore struct{ results []datastore.SearchResult }

func (f *fakeVectorStore) Describe(ctx context.Context, collection string) (datastore.Entity, error) {
	return datastore.Entity{}, nil
}
func (f *fakeVectorStore) List(ctx context.Context, collection string, where datastore.Where, limit int) ([]map[string]any, error) {
	return nil, nil
}
func (f *fakeVectorStore) Create(ctx context.Context, collection string, entities []map[string]any) error {
	return nil
}
func (f *fakeVectorStore) Update(ctx context.Context, collection string, where datastore.Where, update map[string]any) (int64, error) {
	return 0, nil
}
func (f *fakeVectorStore) Delete(ctx context.Context, collection string, where datastore.Where) (int64, error) {
	return 0, nil
}
func (f *fakeVectorStore) Search(ctx context.Context, collection string, query []float64, k int, metric datastore.Metric, where datastore.Where) ([]datastore.SearchResult, error) {
	return f.results, nil
}

type fakeDatastoreResolver struct{ stores map[string]datastore.Store }

func (f *fakeDatastoreResolver) ResolveDatastore(name string) (datastore.Store, error) {
	return f.stores[name], nil
}

func TestSearchStep(t *testing.T) {
	rc := NewRunContext("c1")
	rc.Datastores = &fakeDatastoreResolver{stores: map[string]datastore.Store{
		"docs": &fakeVectorStore{results: []datastore.SearchResult{{Row: map[string]any{"id": "1"}, Score: 0.9}}},
	}}
	step := &SearchStep{StepName: "search", DatastoreName: "docs", Collection: "docs", K: 5, Metric: datastore.MetricCosine}
	branch, out, _, err := step.Run(context.Background(), rc, map[string]any{"query": []float64{1, 0}})
	require.NoError(t, err)
	assert.Equal(t, "success", branch)
	results := out["results"].([]any)
	require.Len(t, results, 1)
}

type fakeFlowRunner struct {
	outputs map[string]any
	yield   *Yield
	err     error
	calls   int
}

func (f *fakeFlowRunner) RunFlow(ctx context.Context, rc *RunContext, flow *Flow, inputs map[string]any) (map[string]any, *Yield, error) {
	f.calls++
	return f.outputs, f.yield, f.err
}

func TestMapStepSequential(t *testing.T) {
	runner := &fakeFlowRunner{outputs: map[string]any{"doubled": 1}}
	rc := NewRunContext("c1")
	rc.Flows = map[string]*Flow{"double": {Name: "double"}}
	step := NewMapStep("mapper", "double", "items", "item", false, runner)
	branch, out, yield, err := step.Run(context.Background(), rc, map[string]any{"items": []any{1, 2, 3}})
	require.NoError(t, err)
	assert.Nil(t, yield)
	assert.Equal(t, "success", branch)
	assert.Equal(t, 3, runner.calls)
	results := out["results"].([]any)
	assert.Len(t, results, 3)
}

func TestMapStepParallel(t *testing.T) {
	runner := &fakeFlowRunner{outputs: map[string]any{"doubled": 1}}
	rc := NewRunContext("c1")
	rc.Flows = map[string]*Flow{"double": {Name: "double"}}
	step := NewMapStep("mapper", "double", "items", "item", true, runner)
	branch, out, yield, err := step.Run(context.Background(), rc, map[string]any{"items": []any{1, 2, 3, 4}})
	require.NoError(t, err)
	assert.Nil(t, yield)
	assert.Equal(t, "success", branch)
	assert.Equal(t, 4, runner.calls)
	results := out["results"].([]any)
	assert.Len(t, results, 4)
}

type flakyStep struct {
	failures int
	calls    int
}

func (s *flakyStep) Name() string                                  { return "flaky" }
func (s *flakyStep) InputDescriptors() map[string]property.Property { return nil }
func (s *flakyStep) OutputDescriptors() map[string]property.Property {
	return map[string]property.Property{"result": property.New("result", property.KindString, "")}
}
func (s *flakyStep) Branches() []string { return []string{DefaultBranch} }
func (s *flakyStep) MightYield() bool   { return false }

func (s *flakyStep) Run(ctx context.Context, rc *RunContext, inputs map[string]any) (string, map[string]any, *Yield, error) {
	s.calls++
	if s.calls <= s.failures {
		return "", nil, nil, assertErr("transient failure")
	}
	return DefaultBranch, map[string]any{"result": "ok"}, nil, nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestRetryStepSucceedsAfterFailures(t *testing.T) {
	body := &flakyStep{failures: 2}
	step := &RetryStep{StepName: "retry", Body: body, MaxRetries: 3, InitialWait: 1, MaxWait: 2, Factor: 1}
	branch, out, yield, err := step.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, yield)
	assert.Equal(t, DefaultBranch, branch)
	assert.Equal(t, "ok", out["result"])
	assert.Equal(t, 3, body.calls)
}

func TestRetryStepExhausted(t *testing.T) {
	body := &flakyStep{failures: 10}
	step := &RetryStep{StepName: "retry", Body: body, MaxRetries: 1, InitialWait: 1, MaxWait: 2, Factor: 1}
	branch, out, yield, err := step.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, yield)
	assert.Equal(t, "exhausted", branch)
	assert.Contains(t, out["error"], "transient failure")
}

type fakeAdapter struct{ reply string }

func (f *fakeAdapter) Send(ctx context.Context, p llmadapter.Prompt) (llmadapter.Completion, error) {
	return llmadapter.Completion{Message: message.NewText(message.RoleAssistant, message.TypeAgent, f.reply)}, nil
}
func (f *fakeAdapter) Stream(ctx context.Context, p llmadapter.Prompt) (<-chan llmadapter.Chunk, error) {
	return nil, nil
}
func (f *fakeAdapter) Name() string { return "fake" }

type fakeLLMResolver struct{ adapters map[string]llmadapter.Adapter }

func (f *fakeLLMResolver) ResolveLLM(name string) (llmadapter.Adapter, error) { return f.adapters[name], nil }

func TestPromptExecutionStep(t *testing.T) {
	rc := NewRunContext("c1")
	rc.LLMs = &fakeLLMResolver{adapters: map[string]llmadapter.Adapter{"gpt": &fakeAdapter{reply: "42"}}}
	step := &PromptExecutionStep{StepName: "ask", LLMName: "gpt", PromptTemplate: "What is {{.q}}?"}
	branch, out, _, err := step.Run(context.Background(), rc, map[string]any{"q": "6*7"})
	require.NoError(t, err)
	assert.Equal(t, "success", branch)
	assert.Equal(t, "42", out["response"])
}

func TestChoiceSelectionStep(t *testing.T) {
	rc := NewRunContext("c1")
	rc.LLMs = &fakeLLMResolver{adapters: map[string]llmadapter.Adapter{"gpt": &fakeAdapter{reply: "refund"}}}
	step := &ChoiceSelectionStep{
		StepName: "classify", LLMName: "gpt", PromptTemplate: "Classify: {{.text}}",
		Choices: []string{"refund", "complaint", "other"},
	}
	branch, out, _, err := step.Run(context.Background(), rc, map[string]any{"text": "I want my money back"})
	require.NoError(t, err)
	assert.Equal(t, "refund", branch)
	assert.Equal(t, "refund", out["choice"])
}

func TestChoiceSelectionStepUnresolved(t *testing.T) {
	rc := NewRunContext("c1")
	rc.LLMs = &fakeLLMResolver{adapters: map[string]llmadapter.Adapter{"gpt": &fakeAdapter{reply: "???"}}}
	step := &ChoiceSelectionStep{
		StepName: "classify", LLMName: "gpt", PromptTemplate: "Classify: {{.text}}",
		Choices: []string{"refund", "complaint"},
	}
	branch, _, _, err := step.Run(context.Background(), rc, map[string]any{"text": "garbled"})
	require.NoError(t, err)
	assert.Equal(t, "unresolved", branch)
}
