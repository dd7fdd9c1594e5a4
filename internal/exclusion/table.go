// Package exclusion persists design QA failures: an append-only CSV table
// per task output directory, and a SQLite ledger for cross-task aggregation.
package exclusion

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/KyungWonPark/FirstLevel/internal/io"
)

// KeyColumn holds the subject_task_session key of every row.
const KeyColumn = "subid_task"

// FileName is the exclusion table written into each task output directory.
const FileName = "excluded_subject.csv"

// Pass is the cell value of an indicator that did not fail.
const Pass = "0"

// Key joins subject, task and session into a row key.
func Key(subject, task, session string) string {
	return fmt.Sprintf("%s_%s_%s", subject, task, session)
}

// Record is one failing evaluation: a key and named indicator values.
type Record struct {
	Key     string
	Columns []string
	Values  map[string]string
}

// Table is an exclusion table file guarded by a lock file next to it.
type Table struct {
	path string
	lock *flock.Flock
	log  *zap.Logger
}

// NewTable returns the exclusion table stored at path.
func NewTable(path string, log *zap.Logger) *Table {
	if log == nil {
		log = zap.NewNop()
	}
	return &Table{path: path, lock: flock.New(path + ".lock"), log: log}
}

// Path returns the location of the table file.
func (t *Table) Path() string { return t.path }

// Append adds r as a new row. Columns new to the file are added with
// earlier rows set to Pass; columns missing from r are written as Pass.
func (t *Table) Append(r Record) error {
	if err := t.lock.Lock(); err != nil {
		return fmt.Errorf("[Append] failed to lock %s: %w", t.path, err)
	}
	defer t.lock.Unlock()

	cur, err := readIfExists(t.path)
	if err != nil {
		return err
	}

	next := Merge(cur, r.Table())
	if err := io.WriteTable(t.path, ',', next); err != nil {
		return err
	}

	t.log.Info("exclusion recorded",
		zap.String("path", t.path),
		zap.String("key", r.Key),
		zap.Int("rows", len(next.Rows)))
	return nil
}

// Read returns the current contents, an empty table when the file is absent.
func (t *Table) Read() (*io.Table, error) {
	if err := t.lock.RLock(); err != nil {
		return nil, fmt.Errorf("[Read] failed to lock %s: %w", t.path, err)
	}
	defer t.lock.Unlock()

	cur, err := readIfExists(t.path)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return &io.Table{Header: []string{KeyColumn}}, nil
	}
	return cur, nil
}

// Table renders the record as a single-row table.
func (r Record) Table() *io.Table {
	header := append([]string{KeyColumn}, r.Columns...)
	row := []string{r.Key}
	for _, c := range r.Columns {
		v, ok := r.Values[c]
		if !ok || v == "" {
			v = Pass
		}
		row = append(row, v)
	}
	return &io.Table{Header: header, Rows: [][]string{row}}
}

// Merge stacks tables, taking the union of their columns in order of first
// appearance. Cells of columns a table lacks are Pass. Nil tables are skipped.
func Merge(tables ...*io.Table) *io.Table {
	out := &io.Table{}
	index := map[string]int{}
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, h := range t.Header {
			if _, ok := index[h]; !ok {
				index[h] = len(out.Header)
				out.Header = append(out.Header, h)
			}
		}
	}

	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, row := range t.Rows {
			merged := make([]string, len(out.Header))
			for i := range merged {
				merged[i] = Pass
			}
			for j, h := range t.Header {
				if j < len(row) && row[j] != "" {
					merged[index[h]] = row[j]
				}
			}
			out.Rows = append(out.Rows, merged)
		}
	}
	return out
}

// ReadFile reads an exclusion table without locking.
func ReadFile(path string) (*io.Table, error) {
	return io.ReadTable(path, ',')
}

func readIfExists(path string) (*io.Table, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return ReadFile(path)
}
