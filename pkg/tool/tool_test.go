package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oracle/wayflow-sub001/pkg/property"
)

func TestServerToolRun(t *testing.T) {
	def := Definition{
		Name:              "add",
		InputDescriptors:  map[string]property.Property{"a": property.New("a", property.KindInt, "")},
		OutputDescriptors: map[string]property.Property{UnnamedOutputSentinel: property.New(UnnamedOutputSentinel, property.KindInt, "")},
	}
	st := NewServerTool(def, func(ctx context.Context, args map[string]any) (any, error) {
		return args["a"].(int64) + 1, nil
	})
	out, err := st.Run(context.Background(), map[string]any{"a": int64(4)})
	require.NoError(t, err)
	assert.Equal(t, int64(5), out)
}

func TestStreamingServerToolRespectsChunkCap(t *testing.T) {
	SetMaxToolStreamChunks(2)
	defer SetMaxToolStreamChunks(DefaultMaxStreamChunks)

	st := NewStreamingServerTool(Definition{Name: "stream"}, func(ctx context.Context, args map[string]any, emit func(StreamChunk)) (any, error) {
		for i := 0; i < 5; i++ {
			emit(StreamChunk{Index: i, Content: i})
		}
		return "done", nil
	})

	var chunks int
	_, err := st.Stream(context.Background(), nil, func(StreamChunk) { chunks++ })
	assert.Error(t, err)
	assert.Equal(t, 2, chunks)
}

func TestClientToolRunErrors(t *testing.T) {
	ct := NewClientTool(Definition{Name: "ask_user"})
	_, err := ct.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestRemoteToolTemplatesURL(t *testing.T) {
	rt := NewRemoteTool("weather", "get weather", "https://weatherforecast.com/city/{{city}}", "GET", false)
	assert.Contains(t, rt.Def.InputDescriptors, "city")
	assert.Contains(t, rt.Def.RequiredInputs, "city")

	url, err := render(rt.URLTemplate, map[string]any{"city": "zurich"})
	require.NoError(t, err)
	assert.Equal(t, "https://weatherforecast.com/city/zurich", url)
}

func TestExtractJQPath(t *testing.T) {
	doc := map[string]any{
		"wind": map[string]any{
			"speeds": []any{float64(10), float64(45)},
		},
	}
	v, err := extractJQPath(doc, ".wind.speeds[1]")
	require.NoError(t, err)
	assert.Equal(t, float64(45), v)
}

func TestValidNameAndNormalize(t *testing.T) {
	assert.True(t, ValidName("search_docs"))
	assert.False(t, ValidName("search docs"))

	def := Definition{Name: "t", OutputDescriptors: map[string]property.Property{"": property.New("", property.KindString, "")}}
	require.NoError(t, def.Normalize(true))
	_, ok := def.OutputDescriptors[UnnamedOutputSentinel]
	assert.True(t, ok)
}

func TestStaticBoxConfirmationOverride(t *testing.T) {
	yes := true
	box := &StaticBox{
		BoxName: "box",
		Items:   []Tool{NewServerTool(Definition{Name: "t", RequiresConfirmation: false}, nil)},
		ConfirmationOverride: &yes,
	}
	tools, err := box.Tools(context.Background())
	require.NoError(t, err)
	assert.True(t, tools[0].Definition().RequiresConfirmation)
}
