// Package db manages the DuckDB connection holding the record table.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// DefaultExtensions are loaded on first connect. spatial provides
// ST_AsText for GEOMETRY columns, parquet the import reader.
var DefaultExtensions = []string{"spatial", "parquet"}

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
	// Extensions overrides DefaultExtensions when non-nil.
	Extensions []string
}

// Get returns the singleton DuckDB connection.
func Get(cfg Config) (*sql.DB, error) {
	once.Do(func() {
		instance, initErr = Open(cfg)
	})
	return instance, initErr
}

// Open opens a new DuckDB database under cfg.DataDir/duckdb. An empty
// DataDir opens an in-memory database.
func Open(cfg Config) (*sql.DB, error) {
	dsn := ""
	if cfg.DataDir != "" {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		name := cfg.DBName
		if name == "" {
			name = "recmap"
		}
		dsn = filepath.Join(duckdbDir, name+".duckdb")
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}

	extensions := cfg.Extensions
	if extensions == nil {
		extensions = DefaultExtensions
	}
	for _, ext := range extensions {
		if _, err := conn.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			// Extensions are optional: offline hosts fall back to plain columns.
			continue
		}
	}
	return conn, nil
}

// Close closes the singleton connection.
func Close() error {
	if instance != nil {
		return instance.Close()
	}
	return nil
}
