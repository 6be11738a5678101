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
	"fmt"
	"math"

	"github.com/oracle/wayflow-sub001/pkg/property"
)

// VectorConfig binds an embedding model to a collection and the column that
// holds its vectors. Collection == "" marks a universal (collection-less)
// config that applies to any collection lacking a more specific one.
type VectorConfig struct {
	Collection     string
	VectorColumn   string
	EmbeddingModel string
	Dimension      int
}

// Retriever names the model and metric a SearchConfig uses, plus an
// optional restriction on which non-vector columns are returned alongside a
// hit.
type Retriever struct {
	Model   string
	Metric  Metric
	Columns []string // optional; empty means all columns
}

// SearchConfig combines a Retriever with an optional collection scope.
type SearchConfig struct {
	Retriever       Retriever
	CollectionScope string // "" applies to any collection
}

// ResolveVectorConfig picks the VectorConfig to use for collection among
// candidates, following the priority order: (1) an explicit collection
// match, (2) a universal (collection-less) config, (3) a single vector
// property inferred from entity's schema. Multiple candidates at the same
// priority level with no way to disambiguate is a fatal error.
func ResolveVectorConfig(candidates []VectorConfig, entity Entity, collection string) (VectorConfig, error) {
	var explicit, universal []VectorConfig
	for _, c := range candidates {
		switch c.Collection {
		case collection:
			explicit = append(explicit, c)
		case "":
			universal = append(universal, c)
		}
	}

	switch len(explicit) {
	case 1:
		return explicit[0], nil
	default:
		if len(explicit) > 1 {
			return VectorConfig{}, fmt.Errorf("datastore: collection %q matches %d vector configs with no disambiguator", collection, len(explicit))
		}
	}

	switch len(universal) {
	case 1:
		cfg := universal[0]
		cfg.Collection = collection
		return cfg, nil
	default:
		if len(universal) > 1 {
			return VectorConfig{}, fmt.Errorf("datastore: %d universal vector configs apply to collection %q with no disambiguator", len(universal), collection)
		}
	}

	return inferVectorConfig(entity, collection)
}

// inferVectorConfig looks for exactly one KindVector property on entity and
// builds a VectorConfig from it. More than one vector column is ambiguous.
func inferVectorConfig(entity Entity, collection string) (VectorConfig, error) {
	var found string
	var dim int
	count := 0
	for _, name := range property.SortedNames(entity.Properties) {
		p := entity.Properties[name]
		if p.Kind == property.KindVector {
			found = name
			dim = p.Dimension
			count++
		}
	}
	switch count {
	case 0:
		return VectorConfig{}, fmt.Errorf("datastore: no vector config resolves for collection %q and no vector column to infer from", collection)
	case 1:
		return VectorConfig{Collection: collection, VectorColumn: found, Dimension: dim}, nil
	default:
		return VectorConfig{}, fmt.Errorf("datastore: collection %q has %d vector columns, cannot infer without an explicit VectorConfig", collection, count)
	}
}

// score computes the similarity of query against candidate under metric.
// Higher is always better in the returned value: cosine similarity is used
// directly, while L2 distance is negated so both metrics sort descending.
func score(metric Metric, query, candidate []float64) (float64, error) {
	if len(query) != len(candidate) {
		return 0, fmt.Errorf("datastore: vector dimension mismatch: query has %d, row has %d", len(query), len(candidate))
	}
	switch metric {
	case MetricCosine:
		return cosineSimilarity(query, candidate), nil
	case MetricL2, "":
		return -l2Distance(query, candidate), nil
	default:
		return 0, fmt.Errorf("datastore: unknown metric %q", metric)
	}
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func l2Distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// vectorOf extracts a []float64 from a property value that may have arrived
// as []float64 (native) or []any (decoded from JSON).
func vectorOf(v any) ([]float64, bool) {
	switch vec := v.(type) {
	case []float64:
		return vec, true
	case []any:
		out := make([]float64, len(vec))
		for i, x := range vec {
			f, ok := toFloat(x)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}
