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
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/oracle/wayflow-sub001/pkg/property"
	"github.com/oracle/wayflow-sub001/pkg/wferrors"

	// SQL drivers: the relational backend binds to whichever of these the
	// caller's *sql.DB was opened with.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore is a Store backed by an existing relational table per
// collection, bound by reflection rather than owning the schema: the
// caller points Bind at a pre-existing table and SQLStore matches its
// columns case-insensitively against the collection's Entity properties.
type SQLStore struct {
	db      *sql.DB
	dialect string

	mu     sync.RWMutex
	tables map[string]boundTable
}

type boundTable struct {
	table   string
	entity  Entity
	columns map[string]string // property name -> actual db column name
}

// NewSQLStore opens a relational store over db. dialect selects the
// placeholder style and information-schema dialect: "postgres", "mysql", or
// "sqlite" (accepted as "sqlite3" too).
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("datastore: database connection is required")
	}
	switch dialect {
	case "sqlite3":
		dialect = "sqlite"
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("datastore: unsupported dialect %q (supported: postgres, mysql, sqlite)", dialect)
	}
	return &SQLStore{db: db, dialect: dialect, tables: make(map[string]boundTable)}, nil
}

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateIdentifier(name string) error {
	if !identifierRE.MatchString(name) {
		return fmt.Errorf("datastore: %q is not a valid identifier", name)
	}
	return nil
}

// typeMatchers maps a property Kind to the substrings a matching database
// column type name may contain (case-insensitive). Kinds absent from this
// map (dict, list, object, union, any) are stored as JSON text and accept
// any column type, since no single SQL type represents them across
// dialects.
var typeMatchers = map[property.Kind][]string{
	property.KindString: {"char", "text", "clob"},
	property.KindInt:    {"int"},
	property.KindFloat:  {"numeric", "real", "double", "float", "decimal"},
	property.KindBool:   {"bool"},
	property.KindVector: {"vector"},
}

func typeMatches(kind property.Kind, dbType string) bool {
	list, ok := typeMatchers[kind]
	if !ok {
		return true
	}
	dbType = strings.ToLower(dbType)
	for _, want := range list {
		if strings.Contains(dbType, want) {
			return true
		}
	}
	return false
}

type dbColumn struct {
	Name string
	Type string
}

// Bind points collection at an existing table, matching table's columns
// case-insensitively against entity's declared properties and validating
// each column's declared type against the fixed Kind -> SQL type map.
func (s *SQLStore) Bind(ctx context.Context, collection, table string, entity Entity) error {
	if err := validateIdentifier(table); err != nil {
		return err
	}
	dbCols, err := s.introspectColumns(ctx, table)
	if err != nil {
		return fmt.Errorf("datastore: binding %q to table %q: %w", collection, table, err)
	}

	byLower := make(map[string]dbColumn, len(dbCols))
	for _, c := range dbCols {
		byLower[strings.ToLower(c.Name)] = c
	}

	columns := make(map[string]string, len(entity.Properties))
	for name, prop := range entity.Properties {
		col, ok := byLower[strings.ToLower(name)]
		if !ok {
			return fmt.Errorf("datastore: table %q has no column matching property %q", table, name)
		}
		if !typeMatches(prop.Kind, col.Type) {
			return fmt.Errorf("datastore: column %q (%s) does not match property %q of kind %s", col.Name, col.Type, name, prop.Kind)
		}
		columns[name] = col.Name
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[collection] = boundTable{table: table, entity: entity, columns: columns}
	return nil
}

func (s *SQLStore) introspectColumns(ctx context.Context, table string) ([]dbColumn, error) {
	switch s.dialect {
	case "sqlite":
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []dbColumn
		for rows.Next() {
			var cid, notnull, pk int
			var name, ctype string
			var dflt sql.NullString
			if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
				return nil, err
			}
			out = append(out, dbColumn{Name: name, Type: ctype})
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("table not found or has no columns")
		}
		return out, nil

	case "postgres", "mysql":
		query := `SELECT column_name, data_type FROM information_schema.columns WHERE table_name = ?`
		query = s.placeholders(query)
		rows, err := s.db.QueryContext(ctx, query, table)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []dbColumn
		for rows.Next() {
			var c dbColumn
			if err := rows.Scan(&c.Name, &c.Type); err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("table not found or has no columns")
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported dialect %q", s.dialect)
	}
}

func (s *SQLStore) bound(collection string) (boundTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bt, ok := s.tables[collection]
	if !ok {
		return boundTable{}, &wferrors.DatastoreError{Collection: collection, Cause: fmt.Errorf("no table bound")}
	}
	return bt, nil
}

// placeholders rewrites "?" placeholders into "$1, $2, ..." for postgres;
// mysql and sqlite use "?" natively.
func (s *SQLStore) placeholders(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 20)
	n := 1
	for _, c := range query {
		if c == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// Describe returns the Entity schema bound to collection.
func (s *SQLStore) Describe(ctx context.Context, collection string) (Entity, error) {
	bt, err := s.bound(collection)
	if err != nil {
		return Entity{}, err
	}
	return bt.entity, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// List returns rows matching where, capped at limit (0 = unbounded).
func (s *SQLStore) List(ctx context.Context, collection string, where Where, limit int) ([]map[string]any, error) {
	bt, err := s.bound(collection)
	if err != nil {
		return nil, err
	}

	names := property.SortedNames(bt.entity.Properties)
	colExprs := make([]string, len(names))
	for i, name := range names {
		colExprs[i] = bt.columns[name]
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(colExprs, ", "), bt.table)
	var args []any
	if len(where) > 0 {
		conds, whereArgs, err := s.whereClause(bt, where)
		if err != nil {
			return nil, err
		}
		query += " WHERE " + conds
		args = whereArgs
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	query = s.placeholders(query)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &wferrors.DatastoreError{Collection: collection, Cause: err}
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		scanned := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range scanned {
			ptrs[i] = &scanned[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &wferrors.DatastoreError{Collection: collection, Cause: err}
		}

		row := make(map[string]any, len(names))
		for i, name := range names {
			decoded, err := decodeColumnValue(bt.entity.Properties[name], scanned[i])
			if err != nil {
				return nil, &wferrors.DatastoreError{Collection: collection, Cause: err}
			}
			row[name] = decoded
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *SQLStore) whereClause(bt boundTable, where Where) (string, []any, error) {
	names := make([]string, 0, len(where))
	for k := range where {
		names = append(names, k)
	}
	sort.Strings(names)

	var conds []string
	var args []any
	for _, name := range names {
		col, ok := bt.columns[name]
		if !ok {
			return "", nil, fmt.Errorf("datastore: table %q has no column for property %q", bt.table, name)
		}
		conds = append(conds, col+" = ?")
		encoded, err := encodeColumnValue(bt.entity.Properties[name], where[name])
		if err != nil {
			return "", nil, err
		}
		args = append(args, encoded)
	}
	return strings.Join(conds, " AND "), args, nil
}

// Create inserts entities as new rows inside one transaction.
func (s *SQLStore) Create(ctx context.Context, collection string, entities []map[string]any) error {
	bt, err := s.bound(collection)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &wferrors.DatastoreError{Collection: collection, Cause: err}
	}
	defer tx.Rollback()

	for _, row := range entities {
		validated, err := validateRow(bt.entity, row)
		if err != nil {
			return err
		}

		names := sortedKeys(validated)
		colExprs := make([]string, len(names))
		placeholders := make([]string, len(names))
		args := make([]any, len(names))
		for i, name := range names {
			colExprs[i] = bt.columns[name]
			placeholders[i] = "?"
			encoded, err := encodeColumnValue(bt.entity.Properties[name], validated[name])
			if err != nil {
				return &wferrors.DatastoreError{Collection: collection, Cause: err}
			}
			args[i] = encoded
		}

		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", bt.table, strings.Join(colExprs, ", "), strings.Join(placeholders, ", "))
		query = s.placeholders(query)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return &wferrors.DatastoreError{Collection: collection, Cause: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &wferrors.DatastoreError{Collection: collection, Cause: err}
	}
	return nil
}

// Update applies update to every row matching where, returning the number
// of rows affected.
func (s *SQLStore) Update(ctx context.Context, collection string, where Where, update map[string]any) (int64, error) {
	bt, err := s.bound(collection)
	if err != nil {
		return 0, err
	}

	validated, err := validateRow(bt.entity, update)
	if err != nil {
		return 0, err
	}
	if len(validated) == 0 {
		return 0, nil
	}

	setNames := sortedKeys(validated)
	var setClauses []string
	var args []any
	for _, name := range setNames {
		setClauses = append(setClauses, bt.columns[name]+" = ?")
		encoded, err := encodeColumnValue(bt.entity.Properties[name], validated[name])
		if err != nil {
			return 0, &wferrors.DatastoreError{Collection: collection, Cause: err}
		}
		args = append(args, encoded)
	}

	query := fmt.Sprintf("UPDATE %s SET %s", bt.table, strings.Join(setClauses, ", "))
	if len(where) > 0 {
		conds, whereArgs, err := s.whereClause(bt, where)
		if err != nil {
			return 0, err
		}
		query += " WHERE " + conds
		args = append(args, whereArgs...)
	}
	query = s.placeholders(query)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &wferrors.DatastoreError{Collection: collection, Cause: err}
	}
	return res.RowsAffected()
}

// Delete removes every row matching where, returning the number of rows
// affected.
func (s *SQLStore) Delete(ctx context.Context, collection string, where Where) (int64, error) {
	bt, err := s.bound(collection)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("DELETE FROM %s", bt.table)
	var args []any
	if len(where) > 0 {
		conds, whereArgs, err := s.whereClause(bt, where)
		if err != nil {
			return 0, err
		}
		query += " WHERE " + conds
		args = whereArgs
	}
	query = s.placeholders(query)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &wferrors.DatastoreError{Collection: collection, Cause: err}
	}
	return res.RowsAffected()
}

// Search filters with where via SQL, then ranks candidates in Go against
// query — the same brute-force-after-filter approach as MemoryStore, since
// no single vector operator syntax is portable across postgres/mysql/sqlite.
func (s *SQLStore) Search(ctx context.Context, collection string, query []float64, k int, metric Metric, where Where) ([]SearchResult, error) {
	bt, err := s.bound(collection)
	if err != nil {
		return nil, err
	}
	cfg, err := ResolveVectorConfig(nil, bt.entity, collection)
	if err != nil {
		return nil, err
	}

	candidates, err := s.List(ctx, collection, where, 0)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, row := range candidates {
		raw, ok := row[cfg.VectorColumn]
		if !ok {
			continue
		}
		vec, ok := vectorOf(raw)
		if !ok {
			continue
		}
		sc, err := score(metric, query, vec)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{Row: row, Score: sc})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func decodeColumnValue(prop property.Property, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	switch prop.Kind {
	case property.KindDict, property.KindList, property.KindObject, property.KindUnion, property.KindAny:
		s, ok := raw.(string)
		if !ok || s == "" {
			return raw, nil
		}
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("decoding %q: %w", prop.Name, err)
		}
		return v, nil
	case property.KindVector:
		s, ok := raw.(string)
		if !ok {
			return raw, nil
		}
		return parseVectorLiteral(s)
	case property.KindBool:
		switch v := raw.(type) {
		case int64:
			return v != 0, nil
		case int:
			return v != 0, nil
		}
		return raw, nil
	default:
		return raw, nil
	}
}

func encodeColumnValue(prop property.Property, value any) (any, error) {
	switch prop.Kind {
	case property.KindDict, property.KindList, property.KindObject, property.KindUnion, property.KindAny:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encoding %q: %w", prop.Name, err)
		}
		return string(b), nil
	case property.KindVector:
		vec, ok := vectorOf(value)
		if !ok {
			return nil, fmt.Errorf("encoding %q: value is not a vector", prop.Name)
		}
		return formatVectorLiteral(vec), nil
	default:
		return value, nil
	}
}

func formatVectorLiteral(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func parseVectorLiteral(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing vector literal: %w", err)
		}
		out[i] = f
	}
	return out, nil
}

var (
	_ Store          = (*SQLStore)(nil)
	_ VectorSearcher = (*SQLStore)(nil)
)
