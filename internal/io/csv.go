package io

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/gonum/matrix/mat64"
)

// Table is a delimited text table held as strings
type Table struct {
	Header []string
	Rows   [][]string
}

// Index returns the position of a header name, -1 if absent
func (t *Table) Index(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Column returns one column by header name
func (t *Table) Column(name string) ([]string, bool) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, false
	}

	col := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			col[i] = row[idx]
		}
	}
	return col, true
}

// ReadTable reads a delimited file with a header line
func ReadTable(path string, sep rune) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("[ReadTable] failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = sep
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("[ReadTable] failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("[ReadTable] %s has no header", path)
	}

	t := &Table{Header: make([]string, len(records[0]))}
	for i, h := range records[0] {
		t.Header[i] = strings.TrimSpace(h)
	}
	for _, rec := range records[1:] {
		row := make([]string, len(rec))
		for i, v := range rec {
			row[i] = strings.TrimSpace(v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// WriteTable writes a table through a temporary file and renames it into place
func WriteTable(path string, sep rune, t *Table) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("[WriteTable] failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	w.Comma = sep
	if err := w.Write(t.Header); err != nil {
		tmp.Close()
		return fmt.Errorf("[WriteTable] %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		tmp.Close()
		return fmt.Errorf("[WriteTable] %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("[WriteTable] sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[WriteTable] close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("[WriteTable] rename to %s: %w", path, err)
	}
	return nil
}

// Mat64toCSV saves Mat64 as a delimited file with a header line, through a
// temporary file renamed into place
func Mat64toCSV(path string, sep rune, header []string, matrix *mat64.Dense) error {
	_, cols := matrix.Dims()
	if header != nil && len(header) != cols {
		return fmt.Errorf("[Mat64toCSV] header has %d names for %d columns", len(header), cols)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("[Mat64toCSV] failed to open %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := writeLines(tmp, sep, header, matrix); err != nil {
		tmp.Close()
		return fmt.Errorf("[Mat64toCSV] failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("[Mat64toCSV] sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[Mat64toCSV] close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("[Mat64toCSV] rename to %s: %w", path, err)
	}
	return nil
}

func writeLines(f *os.File, sep rune, header []string, matrix *mat64.Dense) error {
	rows, _ := matrix.Dims()
	delim := string(sep)
	if header != nil {
		if _, err := fmt.Fprintf(f, "%s\n", strings.Join(header, delim)); err != nil {
			return err
		}
	}

	stride := runtime.NumCPU()
	parsed := make([]string, stride)

	for row := 0; row < rows; row += stride {
		var wg sync.WaitGroup
		jobMark := stride

		if row+stride >= rows {
			jobMark = rows - row
		}

		wg.Add(jobMark)
		for offset := 0; offset < jobMark; offset++ {
			go parseLine(matrix, parsed, offset, row, delim, &wg)
		}
		wg.Wait()

		for i := 0; i < jobMark; i++ {
			if _, err := fmt.Fprintf(f, "%s\n", parsed[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseLine(matrix *mat64.Dense, parsed []string, offset int, row int, delim string, wg *sync.WaitGroup) {
	defer wg.Done()
	_, cols := matrix.Dims()

	fields := make([]string, cols)
	for i := 0; i < cols; i++ {
		fields[i] = strconv.FormatFloat(matrix.At(row+offset, i), 'g', -1, 64)
	}
	parsed[offset] = strings.Join(fields, delim)
}
