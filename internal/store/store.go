// Package store reads record snapshots from a DuckDB table and writes
// attribute edits back to it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-recmap/internal/record"
)

var (
	// ErrRecordNotFound is returned when an update matches no row.
	ErrRecordNotFound = errors.New("record not found")
	// ErrUnknownColumn is returned for updates naming a column the table lacks.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrReadOnlyColumn is returned for updates to columns without edit permission.
	ErrReadOnlyColumn = errors.New("column is read-only")
	// ErrTableNotFound is returned when the record table does not exist.
	ErrTableNotFound = errors.New("table not found")
)

const geometryType = "GEOMETRY"

// Options configures a Store.
type Options struct {
	Table   string
	IDField string
	// Columns override the label, permission and geometry flag of table
	// columns with the same key. Unlisted columns default to view.
	Columns []record.Column
	// GeometryColumns are flagged as geometry regardless of their type.
	GeometryColumns []string
	Logger          *zap.Logger
}

// Store is the record source and update sink for one table.
type Store struct {
	db        *sql.DB
	table     string
	idField   string
	overrides map[string]record.Column
	geometry  map[string]bool
	log       *zap.Logger
}

// New creates a store over table in db.
func New(db *sql.DB, opts Options) (*Store, error) {
	if opts.Table == "" {
		return nil, errors.New("table name is required")
	}
	if opts.IDField == "" {
		opts.IDField = "id"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Store{
		db:        db,
		table:     opts.Table,
		idField:   opts.IDField,
		overrides: make(map[string]record.Column, len(opts.Columns)),
		geometry:  make(map[string]bool, len(opts.GeometryColumns)),
		log:       opts.Logger.Named("store"),
	}
	for _, c := range opts.Columns {
		s.overrides[c.Key] = c
	}
	for _, g := range opts.GeometryColumns {
		s.geometry[g] = true
	}
	return s, nil
}

// Table returns the table name.
func (s *Store) Table() string { return s.table }

type columnInfo struct {
	record.Column
	dataType string
}

func (s *Store) describe(ctx context.Context) ([]columnInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns
		 WHERE table_name = ? ORDER BY ordinal_position`, s.table)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", s.table, err)
	}
	defer rows.Close()

	var cols []columnInfo
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, fmt.Errorf("describe %s: %w", s.table, err)
		}
		col := record.Column{Key: name, Label: name, Permission: record.PermissionView}
		if o, ok := s.overrides[name]; ok {
			if o.Label != "" {
				col.Label = o.Label
			}
			if o.Permission != "" {
				col.Permission = o.Permission
			}
			col.IsGeometry = o.IsGeometry
		}
		if s.geometry[name] || strings.EqualFold(dataType, geometryType) {
			col.IsGeometry = true
		}
		cols = append(cols, columnInfo{Column: col, dataType: dataType})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, s.table)
	}
	return cols, nil
}

// Columns returns the column descriptors of the table in table order.
func (s *Store) Columns(ctx context.Context) ([]record.Column, error) {
	info, err := s.describe(ctx)
	if err != nil {
		return nil, err
	}
	cols := make([]record.Column, len(info))
	for i, c := range info {
		cols[i] = c.Column
	}
	return cols, nil
}

// Records returns every row as a complete snapshot, ordered by the id field
// when the table has one. GEOMETRY columns are returned as WKT.
func (s *Store) Records(ctx context.Context) ([]record.Record, error) {
	info, err := s.describe(ctx)
	if err != nil {
		return nil, err
	}

	selects := make([]string, len(info))
	hasID := false
	for i, c := range info {
		q := quoteIdent(c.Key)
		if strings.EqualFold(c.dataType, geometryType) {
			selects[i] = fmt.Sprintf("ST_AsText(%s) AS %s", q, q)
		} else {
			selects[i] = q
		}
		if c.Key == s.idField {
			hasID = true
		}
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selects, ", "), quoteIdent(s.table))
	if hasID {
		query += " ORDER BY " + quoteIdent(s.idField)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	var records []record.Record
	for rows.Next() {
		values := make([]any, len(info))
		ptrs := make([]any, len(info))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		r := make(record.Record, len(info))
		for i, c := range info {
			r[c.Key] = normalize(values[i])
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.log.Debug("records loaded", zap.String("table", s.table), zap.Int("count", len(records)))
	return records, nil
}

// Update writes updates to the row whose id field stringifies to id.
func (s *Store) Update(ctx context.Context, id string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	cols, err := s.Columns(ctx)
	if err != nil {
		return err
	}
	byKey := make(map[string]record.Column, len(cols))
	for _, c := range cols {
		byKey[c.Key] = c
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		c, ok := byKey[k]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownColumn, k)
		}
		if !c.Editable() {
			return fmt.Errorf("%w: %s", ErrReadOnlyColumn, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+1)
	for i, k := range keys {
		sets[i] = quoteIdent(k) + " = ?"
		args = append(args, updates[k])
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE CAST(%s AS VARCHAR) = ?",
		quoteIdent(s.table), strings.Join(sets, ", "), quoteIdent(s.idField))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", s.table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	s.log.Info("record updated", zap.String("table", s.table), zap.String("id", id), zap.Strings("fields", keys))
	return nil
}

// Import replaces the table with the contents of a CSV, Parquet or JSON file.
func (s *Store) Import(ctx context.Context, path string) (int64, error) {
	var reader string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		reader = "read_csv_auto"
	case ".parquet", ".geoparquet":
		reader = "read_parquet"
	case ".json", ".ndjson":
		reader = "read_json_auto"
	default:
		return 0, fmt.Errorf("unsupported import format %q", filepath.Ext(path))
	}

	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s(%s)",
		quoteIdent(s.table), reader, quoteLiteral(path))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return 0, fmt.Errorf("import %s: %w", path, err)
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+quoteIdent(s.table)).Scan(&n); err != nil {
		return 0, err
	}
	s.log.Info("table imported", zap.String("table", s.table), zap.String("path", path), zap.Int64("rows", n))
	return n, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	default:
		return x
	}
}
