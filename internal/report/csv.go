// Package report reads the engine's CSV artifacts and computes the
// comparative statistics behind the regime figures: per-level aggregates,
// critical-point detection, regime differences, and welfare metrics.
package report

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// The engine emits European-locale CSVs: semicolon separators and decimal
// commas ("0,42" is 0.42).
const fieldSeparator = ';'

// Table is a numeric table loaded from one engine CSV. Non-numeric or empty
// cells are NaN.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]float64
}

// ReadTable loads an engine CSV.
func ReadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = fieldSeparator
	r.TrimLeadingSpace = true
	// Seeds that crashed mid-write can leave short rows; missing cells become NaN.
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("parse %s: empty table", path)
	}

	header := records[0]
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		header[i] = name
		if name == "" {
			return nil, fmt.Errorf("parse %s: empty column name at position %d", path, i)
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("parse %s: duplicate column %q", path, name)
		}
		index[name] = i
	}

	rows := make([][]float64, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]float64, len(header))
		for i := range header {
			if i >= len(rec) {
				row[i] = math.NaN()
				continue
			}
			row[i] = parseDecimal(rec[i])
		}
		rows = append(rows, row)
	}

	return &Table{columns: header, index: index, rows: rows}, nil
}

// parseDecimal converts a decimal-comma cell to a float; unparseable cells
// become NaN.
func parseDecimal(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Columns returns the header in file order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Len is the number of data rows (one per seed in terminal tables, one per
// month in time-series tables).
func (t *Table) Len() int { return len(t.rows) }

// Has reports whether the column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns one column's values.
func (t *Table) Column(name string) ([]float64, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("unknown column %q", name)
	}
	out := make([]float64, len(t.rows))
	for r, row := range t.rows {
		out[r] = row[i]
	}
	return out, nil
}

// Value returns a single cell.
func (t *Table) Value(row int, name string) (float64, error) {
	if row < 0 || row >= len(t.rows) {
		return 0, fmt.Errorf("row %d out of range (table has %d rows)", row, len(t.rows))
	}
	i, ok := t.index[name]
	if !ok {
		return 0, fmt.Errorf("unknown column %q", name)
	}
	return t.rows[row][i], nil
}
