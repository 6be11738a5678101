package datastore

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"

	"github.com/oracle/wayflow-sub001/pkg/property"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func booksEntity() Entity {
	return Entity{
		Name: "books",
		Properties: map[string]property.Property{
			"id":     property.New("id", property.KindString, ""),
			"title":  property.New("title", property.KindString, ""),
			"rating": property.New("rating", property.KindFloat, ""),
			"tags":   property.List("tags", property.New("", property.KindString, ""), ""),
		},
	}
}

func newBoundSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE books (
        id TEXT PRIMARY KEY,
        title TEXT,
        rating REAL,
        tags TEXT
    )`)
	require.NoError(t, err)

	store, err := NewSQLStore(db, "sqlite")
	require.NoError(t, err)
	require.NoError(t, store.Bind(ctx, "books", "books", booksEntity()))
	return store
}

func TestSQLStoreBindRejectsMissingColumn(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE incomplete (id TEXT)`)
	require.NoError(t, err)

	store, err := NewSQLStore(db, "sqlite")
	require.NoError(t, err)

	err = store.Bind(ctx, "incomplete", "incomplete", booksEntity())
	assert.Error(t, err)
}

func TestSQLStoreBindRejectsTypeMismatch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE wrongtype (id TEXT, title TEXT, rating TEXT, tags TEXT)`)
	require.NoError(t, err)

	store, err := NewSQLStore(db, "sqlite")
	require.NoError(t, err)

	err = store.Bind(ctx, "wrongtype", "wrongtype", booksEntity())
	assert.Error(t, err)
}

func TestSQLStoreCRUD(t *testing.T) {
	store := newBoundSQLStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "books", []map[string]any{
		{"id": "1", "title": "Dune", "rating": 4.8, "tags": []any{"scifi", "classic"}},
		{"id": "2", "title": "Neuromancer", "rating": 4.5, "tags": []any{"scifi"}},
	}))

	rows, err := store.List(ctx, "books", nil, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rows, err = store.List(ctx, "books", Where{"id": "1"}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Dune", rows[0]["title"])
	assert.Equal(t, []any{"scifi", "classic"}, rows[0]["tags"])

	n, err := store.Update(ctx, "books", Where{"id": "2"}, map[string]any{"rating": 4.9})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rows, err = store.List(ctx, "books", Where{"id": "2"}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 4.9, rows[0]["rating"], 1e-9)

	n, err = store.Delete(ctx, "books", Where{"id": "1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rows, err = store.List(ctx, "books", nil, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSQLStoreDescribeUnbound(t *testing.T) {
	db := openTestDB(t)
	store, err := NewSQLStore(db, "sqlite")
	require.NoError(t, err)

	_, err = store.Describe(context.Background(), "missing")
	assert.Error(t, err)
}
