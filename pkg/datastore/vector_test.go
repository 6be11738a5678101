package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oracle/wayflow-sub001/pkg/property"
)

func vectorEntity() Entity {
	return Entity{Properties: map[string]property.Property{
		"embedding": property.Vector("embedding", 4, ""),
	}}
}

func TestResolveVectorConfigPrefersExplicitMatch(t *testing.T) {
	candidates := []VectorConfig{
		{Collection: "", VectorColumn: "universal_col"},
		{Collection: "docs", VectorColumn: "docs_col"},
	}
	cfg, err := ResolveVectorConfig(candidates, vectorEntity(), "docs")
	require.NoError(t, err)
	assert.Equal(t, "docs_col", cfg.VectorColumn)
}

func TestResolveVectorConfigFallsBackToUniversal(t *testing.T) {
	candidates := []VectorConfig{{Collection: "", VectorColumn: "universal_col"}}
	cfg, err := ResolveVectorConfig(candidates, vectorEntity(), "notes")
	require.NoError(t, err)
	assert.Equal(t, "universal_col", cfg.VectorColumn)
}

func TestResolveVectorConfigInfersSingleVectorColumn(t *testing.T) {
	cfg, err := ResolveVectorConfig(nil, vectorEntity(), "docs")
	require.NoError(t, err)
	assert.Equal(t, "embedding", cfg.VectorColumn)
	assert.Equal(t, 4, cfg.Dimension)
}

func TestResolveVectorConfigAmbiguousExplicitMatchesFail(t *testing.T) {
	candidates := []VectorConfig{
		{Collection: "docs", VectorColumn: "a"},
		{Collection: "docs", VectorColumn: "b"},
	}
	_, err := ResolveVectorConfig(candidates, vectorEntity(), "docs")
	assert.Error(t, err)
}

func TestResolveVectorConfigNoVectorColumnFails(t *testing.T) {
	_, err := ResolveVectorConfig(nil, Entity{Properties: map[string]property.Property{
		"title": property.New("title", property.KindString, ""),
	}}, "docs")
	assert.Error(t, err)
}

func TestCosineAndL2Scoring(t *testing.T) {
	s, err := score(MetricCosine, []float64{1, 0}, []float64{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 1e-9)

	s, err = score(MetricL2, []float64{0, 0}, []float64{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, -5.0, s, 1e-9)
}

func TestScoreDimensionMismatch(t *testing.T) {
	_, err := score(MetricCosine, []float64{1, 0}, []float64{1, 0, 0})
	assert.Error(t, err)
}
