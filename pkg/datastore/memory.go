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

package datastore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oracle/wayflow-sub001/pkg/wferrors"
)

// MemoryStore is a process-local Store: schema-typed dictionaries per
// collection with brute-force vector search. Concurrency is handled by a
// single mutex guarding the whole collection map, mirroring the session
// package's in-memory session guard.
type MemoryStore struct {
	mu      sync.RWMutex
	schemas map[string]Entity
	rows    map[string][]map[string]any
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		schemas: make(map[string]Entity),
		rows:    make(map[string][]map[string]any),
	}
}

// Register declares collection's schema. Registering an already-known
// collection replaces its schema but keeps existing rows.
func (m *MemoryStore) Register(collection string, entity Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemas[collection] = entity
	if _, ok := m.rows[collection]; !ok {
		m.rows[collection] = nil
	}
}

func (m *MemoryStore) entity(collection string) (Entity, error) {
	entity, ok := m.schemas[collection]
	if !ok {
		return Entity{}, &wferrors.DatastoreError{Collection: collection, Cause: fmt.Errorf("unknown collection")}
	}
	return entity, nil
}

// Describe returns the Entity schema bound to collection.
func (m *MemoryStore) Describe(ctx context.Context, collection string) (Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entity(collection)
}

// List returns rows matching where, capped at limit (0 = unbounded).
func (m *MemoryStore) List(ctx context.Context, collection string, where Where, limit int) ([]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, err := m.entity(collection); err != nil {
		return nil, err
	}

	var out []map[string]any
	for _, row := range m.rows[collection] {
		if matchesWhere(row, where) {
			out = append(out, cloneRow(row))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Create inserts entities as new rows, validating and coercing each one
// against the collection's schema.
func (m *MemoryStore) Create(ctx context.Context, collection string, entities []map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entity, err := m.entity(collection)
	if err != nil {
		return err
	}

	validated := make([]map[string]any, 0, len(entities))
	for _, row := range entities {
		v, err := validateRow(entity, row)
		if err != nil {
			return err
		}
		validated = append(validated, v)
	}
	m.rows[collection] = append(m.rows[collection], validated...)
	return nil
}

// Update applies update to every row matching where.
func (m *MemoryStore) Update(ctx context.Context, collection string, where Where, update map[string]any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entity, err := m.entity(collection)
	if err != nil {
		return 0, err
	}

	var n int64
	rows := m.rows[collection]
	for i, row := range rows {
		if !matchesWhere(row, where) {
			continue
		}
		merged := cloneRow(row)
		for k, v := range update {
			merged[k] = v
		}
		validated, err := validateRow(entity, merged)
		if err != nil {
			return n, err
		}
		rows[i] = validated
		n++
	}
	return n, nil
}

// Delete removes every row matching where.
func (m *MemoryStore) Delete(ctx context.Context, collection string, where Where) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.entity(collection); err != nil {
		return 0, err
	}

	rows := m.rows[collection]
	kept := rows[:0:0]
	var n int64
	for _, row := range rows {
		if matchesWhere(row, where) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	m.rows[collection] = kept
	return n, nil
}

// Search performs brute-force nearest-neighbour search over collection's
// vector column, applying where as a pre-filter before ranking.
func (m *MemoryStore) Search(ctx context.Context, collection string, query []float64, k int, metric Metric, where Where) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entity, err := m.entity(collection)
	if err != nil {
		return nil, err
	}

	cfg, err := ResolveVectorConfig(nil, entity, collection)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, row := range m.rows[collection] {
		if !matchesWhere(row, where) {
			continue
		}
		raw, ok := row[cfg.VectorColumn]
		if !ok {
			continue
		}
		vec, ok := vectorOf(raw)
		if !ok {
			continue
		}
		s, err := score(metric, query, vec)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{Row: cloneRow(row), Score: s})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func cloneRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

var (
	_ Store          = (*MemoryStore)(nil)
	_ VectorSearcher = (*MemoryStore)(nil)
)
