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

// Package datastore implements WayFlow's collection-oriented persistence
// layer: a uniform CRUD + query interface over either a process-local
// in-memory store (MemoryStore) or an external relational database bound to
// existing tables (SQLStore).
package datastore

import (
	"context"
	"fmt"

	"github.com/oracle/wayflow-sub001/pkg/property"
	"github.com/oracle/wayflow-sub001/pkg/wferrors"
)

// Entity describes one collection's shape: its name, a human description,
// and the typed properties each row must satisfy.
type Entity struct {
	Name        string
	Description string
	Properties  map[string]property.Property
}

// Where is an equality filter: every key/value pair must match for a row to
// be selected. Both stores apply filter predicates before any
// nearest-neighbour ranking, so a vector search always scopes its candidate
// set with Where first.
type Where map[string]any

// Metric names a vector distance function.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
)

// SearchResult pairs a matched row with its similarity score. Higher is
// better for both metrics: MetricCosine reports the cosine similarity and
// MetricL2 the negated Euclidean distance, so Search returns results
// best-first by descending Score regardless of metric.
type SearchResult struct {
	Row   map[string]any
	Score float64
}

// Store is the CRUD + query surface every datastore backend implements.
type Store interface {
	// Describe returns the Entity schema bound to collection.
	Describe(ctx context.Context, collection string) (Entity, error)

	// List returns rows matching where, in no particular order, capped at
	// limit (0 = unbounded).
	List(ctx context.Context, collection string, where Where, limit int) ([]map[string]any, error)

	// Create inserts entities as new rows. Each row is validated and
	// coerced against the collection's Entity schema before insertion.
	Create(ctx context.Context, collection string, entities []map[string]any) error

	// Update applies update to every row matching where, returning the
	// number of rows affected.
	Update(ctx context.Context, collection string, where Where, update map[string]any) (int64, error)

	// Delete removes every row matching where, returning the number of
	// rows affected.
	Delete(ctx context.Context, collection string, where Where) (int64, error)
}

// VectorSearcher is implemented by stores that support nearest-neighbour
// search over a vector-typed column. Support is optional — not every Store
// need implement it, and callers type-assert before using it.
type VectorSearcher interface {
	Search(ctx context.Context, collection string, query []float64, k int, metric Metric, where Where) ([]SearchResult, error)
}

// validateRow coerces every value in row against entity's declared
// properties, rejecting unknown columns and type mismatches that cannot be
// cast. The returned map uses the canonical (coerced) values.
func validateRow(entity Entity, row map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(row))
	for name, value := range row {
		prop, ok := entity.Properties[name]
		if !ok {
			return nil, fmt.Errorf("%w: collection %q has no property %q", wferrors.ErrValidation, entity.Name, name)
		}
		cast, err := prop.CastValueInto(value)
		if err != nil {
			return nil, &wferrors.DatastoreError{Collection: entity.Name, Cause: err}
		}
		out[name] = cast
	}
	return out, nil
}

// matchesWhere reports whether row satisfies every equality predicate in
// where.
func matchesWhere(row map[string]any, where Where) bool {
	for k, want := range where {
		got, ok := row[k]
		if !ok {
			return false
		}
		if !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
