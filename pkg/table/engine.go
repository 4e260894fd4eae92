package table

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cuemby/cave/internal/caveerr"
	"github.com/cuemby/cave/pkg/log"
	"github.com/cuemby/cave/pkg/types"
	"github.com/cuemby/cave/pkg/wal"
)

// tableData is a table's in-memory row store: a fixed column schema
// (set by the first write ever made to the table) plus its rows, kept in
// the same column order as the schema.
type tableData struct {
	columns []string
	rows    [][]types.ScalarValue
}

type walEventKind string

const (
	walInsert walEventKind = "insert"
	walUpdate walEventKind = "update"
	walDelete walEventKind = "delete"
)

// walEntry is the JSON payload framed into the write-ahead log for every
// row-level mutation. Insert sets RowAfter only, Delete sets RowBefore
// only, Update sets both.
type walEntry struct {
	Event      walEventKind        `json:"event"`
	Table      string              `json:"table"`
	Columns    []string            `json:"columns"`
	RowBefore  []types.ScalarValue `json:"row_before,omitempty"`
	RowAfter   []types.ScalarValue `json:"row_after,omitempty"`
}

// Engine owns the write-ahead log and the in-memory table cache rebuilt
// from it at startup. One Engine backs one logical database file.
type Engine struct {
	mu     sync.RWMutex
	wal    *wal.Log
	tables map[string]*tableData
}

// Open opens (or creates) the WAL at path and replays it into an
// in-memory table cache.
func Open(path string) (*Engine, error) {
	logger := log.WithComponent("table")

	walLog, entries, err := wal.Open(path)
	if err != nil {
		return nil, err
	}

	e := &Engine{wal: walLog, tables: make(map[string]*tableData)}
	for _, entry := range entries {
		if err := e.applyWALEntry(entry); err != nil {
			return nil, caveerr.NewStorageFailure("table.Open", fmt.Errorf("wal replay: %w", err))
		}
	}

	logger.Info().Int("frames", len(entries)).Int("tables", len(e.tables)).Msg("wal replay complete")
	return e, nil
}

func (e *Engine) applyWALEntry(raw wal.Entry) error {
	var entry walEntry
	if err := json.Unmarshal(raw.Payload, &entry); err != nil {
		return err
	}

	data, ok := e.tables[entry.Table]
	if !ok {
		data = &tableData{}
		e.tables[entry.Table] = data
	}
	if len(data.columns) == 0 {
		data.columns = entry.Columns
	} else if !stringSlicesEqual(data.columns, entry.Columns) {
		return fmt.Errorf("column mismatch for table %q during replay", entry.Table)
	}

	switch entry.Event {
	case walInsert:
		if entry.RowAfter == nil {
			return fmt.Errorf("insert entry missing row_after")
		}
		data.rows = append(data.rows, entry.RowAfter)
	case walUpdate:
		if entry.RowBefore == nil || entry.RowAfter == nil {
			return fmt.Errorf("update entry missing row_before/row_after")
		}
		idx := findRow(data.rows, entry.RowBefore)
		if idx < 0 {
			return fmt.Errorf("update entry row not found during replay")
		}
		data.rows[idx] = entry.RowAfter
	case walDelete:
		if entry.RowBefore == nil {
			return fmt.Errorf("delete entry missing row_before")
		}
		if idx := findRow(data.rows, entry.RowBefore); idx >= 0 {
			data.rows = append(data.rows[:idx], data.rows[idx+1:]...)
		}
	default:
		return fmt.Errorf("unknown wal event kind %q", entry.Event)
	}
	return nil
}

func findRow(rows [][]types.ScalarValue, target []types.ScalarValue) int {
	for i, row := range rows {
		if rowEqual(row, target) {
			return i
		}
	}
	return -1
}

func rowEqual(a, b []types.ScalarValue) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// appendEntry serializes and appends a WAL entry, durable once it returns.
func (e *Engine) appendEntry(entry walEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return caveerr.NewStorageFailure("table.appendEntry", err)
	}
	_, err = e.wal.Append(payload)
	if err != nil {
		return err
	}
	return nil
}

// Close closes the underlying WAL.
func (e *Engine) Close() error {
	return e.wal.Close()
}

// TableSummary describes a managed table's current shape.
type TableSummary struct {
	Name     string
	Columns  []string
	RowCount int
}

// TableSummaries lists every table currently tracked by the engine.
func (e *Engine) TableSummaries() []TableSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]TableSummary, 0, len(e.tables))
	for name, data := range e.tables {
		out = append(out, TableSummary{Name: name, Columns: append([]string(nil), data.columns...), RowCount: len(data.rows)})
	}
	return out
}

func findColumnIndex(columns []string, column string) (int, error) {
	for i, c := range columns {
		if c == column {
			return i, nil
		}
	}
	return -1, fmt.Errorf("column %q not found", column)
}

func rowToRecord(columns []string, row []types.ScalarValue) types.Row {
	record := make(types.Row, len(columns))
	for i, col := range columns {
		if i < len(row) {
			record[col] = row[i]
		}
	}
	return record
}
