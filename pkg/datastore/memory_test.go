package datastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oracle/wayflow-sub001/pkg/property"
)

func docsEntity() Entity {
	return Entity{
		Name: "docs",
		Properties: map[string]property.Property{
			"id":        property.New("id", property.KindString, ""),
			"title":     property.New("title", property.KindString, ""),
			"embedding": property.Vector("embedding", 3, ""),
		},
	}
}

func TestMemoryStoreCRUD(t *testing.T) {
	store := NewMemoryStore()
	store.Register("docs", docsEntity())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "docs", []map[string]any{
		{"id": "1", "title": "alpha"},
		{"id": "2", "title": "beta"},
	}))

	rows, err := store.List(ctx, "docs", nil, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	n, err := store.Update(ctx, "docs", Where{"id": "1"}, map[string]any{"title": "alpha-v2"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rows, err = store.List(ctx, "docs", Where{"id": "1"}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alpha-v2", rows[0]["title"])

	n, err = store.Delete(ctx, "docs", Where{"id": "2"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rows, err = store.List(ctx, "docs", nil, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMemoryStoreCreateRejectsUnknownProperty(t *testing.T) {
	store := NewMemoryStore()
	store.Register("docs", docsEntity())

	err := store.Create(context.Background(), "docs", []map[string]any{{"nope": 1}})
	assert.Error(t, err)
}

func TestMemoryStoreUnknownCollection(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Describe(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestMemoryStoreSearch(t *testing.T) {
	store := NewMemoryStore()
	store.Register("docs", docsEntity())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "docs", []map[string]any{
		{"id": "near", "title": "a", "embedding": []float64{1, 0, 0}},
		{"id": "far", "title": "b", "embedding": []float64{0, 1, 0}},
	}))

	results, err := store.Search(ctx, "docs", []float64{1, 0, 0}, 1, MetricCosine, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "near", results[0].Row["id"])
}

func TestMemoryStoreSearchAppliesWhereBeforeRanking(t *testing.T) {
	store := NewMemoryStore()
	store.Register("docs", docsEntity())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "docs", []map[string]any{
		{"id": "near-excluded", "title": "excluded", "embedding": []float64{1, 0, 0}},
		{"id": "far-included", "title": "included", "embedding": []float64{0, 1, 0}},
	}))

	results, err := store.Search(ctx, "docs", []float64{1, 0, 0}, 5, MetricCosine, Where{"title": "included"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "far-included", results[0].Row["id"])
}
