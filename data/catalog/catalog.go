// Package catalog implements data ingest + table catalog (C9, spec.md
// §4.9): upload a file, detect sheets, persist per-sheet columnar storage
// in a pure-Go SQLite database, and resolve aliases ("latest", id,
// filename) back to a dataset.
package catalog

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, substitutes the original's DuckDB/parquet stack

	"github.com/deckgen/deckgen/internal/atomicfile"
)

// Column describes one sheet column (spec.md §3 Dataset).
type Column struct {
	Name  string `json:"name"`
	Dtype string `json:"dtype"`
}

// Sheet is one table within a Dataset.
type Sheet struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Dataset is the catalog entry for one ingested file (spec.md §3).
type Dataset struct {
	DatasetID  string           `json:"dataset_id"`
	SourceName string           `json:"source_name"`
	Sheets     []Sheet          `json:"sheets"`
	TablePaths map[string]string `json:"table_paths"`
	CreatedAt  int64            `json:"created_at"`
}

// Catalog ingests files into per-sheet SQLite tables and resolves dataset
// aliases, with an append-only JSON catalog file for metadata.
type Catalog struct {
	dir          string // root dir; sqlite db lives at dir/catalog.db, metadata at dir/catalog.json
	catalogPath  string
	db           *sql.DB
	mu           sync.Mutex
	nowFunc      func() time.Time
}

// New opens (creating if absent) the catalog rooted at dir (suggested:
// out/data).
func New(dir string) (*Catalog, error) {
	dbPath := filepath.Join(dir, "catalog.db")
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("catalog: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &Catalog{
		dir:         dir,
		catalogPath: filepath.Join(dir, "catalog.json"),
		db:          db,
		nowFunc:     time.Now,
	}, nil
}

func ensureDir(dir string) error {
	return atomicfile.Write(filepath.Join(dir, ".keep"), []byte{}, 0o644)
}

// Ingest detects sheets in sourceBytes (CSV; the only tabular format in the
// dependency pack, spec.md §9 Open Questions notwithstanding), creates one
// SQLite table per sheet, and appends an atomic catalog entry.
func (c *Catalog) Ingest(ctx context.Context, sourceBytes []byte, filename string) (Dataset, error) {
	id, err := newDatasetID()
	if err != nil {
		return Dataset{}, fmt.Errorf("catalog: generate dataset id: %w", err)
	}

	sheetName := sheetNameFromFilename(filename)
	columns, rows, err := parseCSV(sourceBytes)
	if err != nil {
		return Dataset{}, fmt.Errorf("catalog: parse csv: %w", err)
	}

	tableName := tableNameFor(id, sheetName)
	if err := c.createTable(ctx, tableName, columns, rows); err != nil {
		return Dataset{}, fmt.Errorf("catalog: create table: %w", err)
	}

	ds := Dataset{
		DatasetID:  id,
		SourceName: filename,
		Sheets:     []Sheet{{Name: sheetName, Columns: columns}},
		TablePaths: map[string]string{sheetName: tableName},
		CreatedAt:  c.nowFunc().Unix(),
	}
	if err := c.appendEntry(ds); err != nil {
		return Dataset{}, fmt.Errorf("catalog: append entry: %w", err)
	}
	return ds, nil
}

// Resolve maps hint to a dataset_id, trying literal id, then source
// filename, then the "latest" sentinel (spec.md §4.9).
func (c *Catalog) Resolve(hint string) (string, error) {
	entries, err := c.loadEntries()
	if err != nil {
		return "", err
	}
	if hint != "" {
		for _, e := range entries {
			if e.DatasetID == hint {
				return e.DatasetID, nil
			}
		}
		for _, e := range entries {
			if e.SourceName == hint {
				return e.DatasetID, nil
			}
		}
	}
	if hint == "" || hint == "latest" {
		return latestID(entries)
	}
	return "", fmt.Errorf("catalog: no dataset matches hint %q", hint)
}

// Get returns the full Dataset for id.
func (c *Catalog) Get(id string) (Dataset, bool, error) {
	entries, err := c.loadEntries()
	if err != nil {
		return Dataset{}, false, err
	}
	for _, e := range entries {
		if e.DatasetID == id {
			return e, true, nil
		}
	}
	return Dataset{}, false, nil
}

// QueryHandle exposes the underlying *sql.DB for the NL→SQL pipeline (C10).
func (c *Catalog) QueryHandle() *sql.DB { return c.db }

// TableFor returns the SQLite table name backing dataset_id/sheet.
func (c *Catalog) TableFor(datasetID, sheet string) (string, error) {
	ds, ok, err := c.Get(datasetID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("catalog: dataset %q not found", datasetID)
	}
	if sheet == "" {
		for name, table := range ds.TablePaths {
			_ = name
			return table, nil
		}
		return "", fmt.Errorf("catalog: dataset %q has no sheets", datasetID)
	}
	table, ok := ds.TablePaths[sheet]
	if !ok {
		return "", fmt.Errorf("catalog: dataset %q has no sheet %q", datasetID, sheet)
	}
	return table, nil
}

func (c *Catalog) createTable(ctx context.Context, tableName string, columns []Column, rows [][]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ddl strings.Builder
	ddl.WriteString("CREATE TABLE IF NOT EXISTS " + quoteIdent(tableName) + " (")
	for i, col := range columns {
		if i > 0 {
			ddl.WriteString(", ")
		}
		ddl.WriteString(quoteIdent(col.Name) + " " + sqliteType(col.Dtype))
	}
	ddl.WriteString(")")
	if _, err := c.db.ExecContext(ctx, ddl.String()); err != nil {
		return err
	}

	if len(rows) == 0 {
		return nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(columns)), ",")
	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(tableName), placeholders)
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, row := range rows {
		args := make([]any, len(row))
		for i, v := range row {
			args[i] = coerce(v, columns[i].Dtype)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *Catalog) appendEntry(ds Dataset) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.loadEntriesLocked()
	if err != nil {
		return err
	}
	entries = append(entries, ds)
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.Write(c.catalogPath, data, 0o644)
}

func (c *Catalog) loadEntries() ([]Dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadEntriesLocked()
}

func (c *Catalog) loadEntriesLocked() ([]Dataset, error) {
	data, err := atomicfile.Read(c.catalogPath)
	if err != nil {
		return nil, nil
	}
	var entries []Dataset
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil
	}
	return entries, nil
}

func latestID(entries []Dataset) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("catalog: no datasets ingested yet")
	}
	best := entries[0]
	for _, e := range entries[1:] {
		if e.CreatedAt > best.CreatedAt || (e.CreatedAt == best.CreatedAt && e.DatasetID < best.DatasetID) {
			best = e
		}
	}
	return best.DatasetID, nil
}

func newDatasetID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "ds_" + hex.EncodeToString(buf), nil
}

func sheetNameFromFilename(filename string) string {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	if name == "" {
		return "sheet1"
	}
	return name
}

func tableNameFor(datasetID, sheetName string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, sheetName)
	return "t_" + datasetID + "_" + sanitized
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// parseCSV reads the whole CSV, inferring a column's dtype as "int64",
// "float64", or "text" from all of its non-empty data values.
func parseCSV(data []byte) ([]Column, [][]string, error) {
	r := csv.NewReader(strings.NewReader(string(data)))
	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}

	columns := make([]Column, len(header))
	for i, name := range header {
		columns[i] = Column{Name: name, Dtype: inferDtype(rows, i)}
	}
	return columns, rows, nil
}

func inferDtype(rows [][]string, col int) string {
	if len(rows) == 0 {
		return "text"
	}
	allInt, allFloat := true, true
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		v := row[col]
		if v == "" {
			continue
		}
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			allFloat = false
		}
	}
	switch {
	case allInt:
		return "int64"
	case allFloat:
		return "float64"
	default:
		return "text"
	}
}

func sqliteType(dtype string) string {
	switch dtype {
	case "int64":
		return "INTEGER"
	case "float64":
		return "REAL"
	default:
		return "TEXT"
	}
}

func coerce(v, dtype string) any {
	switch dtype {
	case "int64":
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case "float64":
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return v
}

// sortedTableNames returns the sheet names of paths in sorted order.
func sortedTableNames(paths map[string]string) []string {
	names := make([]string, 0, len(paths))
	for n := range paths {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
