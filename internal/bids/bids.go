// Package bids locates the per-run inputs of a subject and task in a BIDS
// derivatives tree and reads run metadata.
package bids

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KyungWonPark/nifti"
)

var (
	// ErrMissingFiles is returned when a subject has no run of the task.
	ErrMissingFiles = errors.New("bids: missing input files")
	// ErrFileCountMismatch is returned when events, confounds and BOLD
	// files cannot be paired run by run.
	ErrFileCountMismatch = errors.New("bids: events, confounds and bold file counts differ")
	// ErrNoSidecar is returned when no BOLD sidecar JSON is found for a task.
	ErrNoSidecar = errors.New("bids: no bold sidecar")
)

// Files are the input paths of one subject and task. Events are sorted;
// index i of Confounds and Bold holds the file with the same run key.
type Files struct {
	Events    []string
	Confounds []string
	Masks     []string
	Bold      []string
}

// Runs returns the number of paired runs.
func (f Files) Runs() int { return len(f.Events) }

func glob(pattern string) ([]string, error) {
	out, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("[glob] %s: %w", pattern, err)
	}
	sort.Strings(out)
	return out, nil
}

// Find globs the run files of subject for task under root.
func Find(root, subject, task string) (Files, error) {
	dir := filepath.Join(root, "sub-"+subject, "ses-*", "func")

	var f Files
	var err error
	if f.Events, err = glob(filepath.Join(dir, "*"+task+"_*events*tsv")); err != nil {
		return Files{}, err
	}
	if f.Confounds, err = glob(filepath.Join(dir, "*"+task+"_*confounds*.tsv")); err != nil {
		return Files{}, err
	}
	if f.Masks, err = glob(filepath.Join(dir, "*"+task+"_*mask*.nii.gz")); err != nil {
		return Files{}, err
	}
	if f.Bold, err = glob(filepath.Join(dir, "*"+task+"_*_bold.nii.gz")); err != nil {
		return Files{}, err
	}

	if len(f.Events) == 0 || len(f.Confounds) == 0 || len(f.Bold) == 0 {
		return f, fmt.Errorf("%w: sub-%s task %s has %d events, %d confounds, %d bold",
			ErrMissingFiles, subject, task, len(f.Events), len(f.Confounds), len(f.Bold))
	}
	if len(f.Events) != len(f.Confounds) || len(f.Events) != len(f.Bold) {
		return f, fmt.Errorf("%w: sub-%s task %s has %d events, %d confounds, %d bold",
			ErrFileCountMismatch, subject, task, len(f.Events), len(f.Confounds), len(f.Bold))
	}
	confounds, err := pair(f.Events, f.Confounds)
	if err != nil {
		return f, fmt.Errorf("%w: sub-%s task %s confounds: %v", ErrFileCountMismatch, subject, task, err)
	}
	bold, err := pair(f.Events, f.Bold)
	if err != nil {
		return f, fmt.Errorf("%w: sub-%s task %s bold: %v", ErrFileCountMismatch, subject, task, err)
	}
	f.Confounds, f.Bold = confounds, bold
	return f, nil
}

// RunKey identifies the run of path by its session and run entities.
func RunKey(path string) string {
	run := ""
	for _, part := range strings.Split(filepath.Base(path), "_") {
		if strings.HasPrefix(part, "run-") {
			run = part
			break
		}
	}
	return Session(path) + "/" + run
}

// pair orders paths so that index i has the run key of events[i].
func pair(events, paths []string) ([]string, error) {
	byKey := make(map[string]string, len(paths))
	for _, p := range paths {
		k := RunKey(p)
		if prev, ok := byKey[k]; ok {
			return nil, fmt.Errorf("%s and %s share run %s", prev, p, k)
		}
		byKey[k] = p
	}

	out := make([]string, len(events))
	for i, e := range events {
		p, ok := byKey[RunKey(e)]
		if !ok {
			return nil, fmt.Errorf("no file for run %s of %s", RunKey(e), e)
		}
		out[i] = p
	}
	return out, nil
}

// Session returns the ses-* component of path, "" when there is none.
func Session(path string) string {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if strings.HasPrefix(part, "ses-") {
			return part
		}
	}
	return ""
}

// BoldFiles globs the BOLD images of every subject for task.
func BoldFiles(root, task string) ([]string, error) {
	return glob(filepath.Join(root, "*", "*", "func", "*task-"+task+"_*_bold.nii.gz"))
}

// EventFiles globs the events files of every subject for task.
func EventFiles(root, task string) ([]string, error) {
	return glob(filepath.Join(root, "*", "*", "func", "*"+task+"_*events.tsv"))
}

type sidecar struct {
	RepetitionTime float64 `json:"RepetitionTime"`
}

// RepetitionTime reads RepetitionTime from the first BOLD sidecar of task.
func RepetitionTime(root, task string) (float64, error) {
	var paths []string
	for _, pattern := range []string{
		filepath.Join(root, "sub-*", "ses-*", "*"+task+"_bold.json"),
		filepath.Join(root, "sub-*", "ses-*", "func", "*"+task+"*_bold.json"),
	} {
		found, err := glob(pattern)
		if err != nil {
			return 0, err
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return 0, fmt.Errorf("%w for task %s under %s", ErrNoSidecar, task, root)
	}

	raw, err := os.ReadFile(paths[0])
	if err != nil {
		return 0, fmt.Errorf("[RepetitionTime] %w", err)
	}
	var s sidecar
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("[RepetitionTime] failed to parse %s: %w", paths[0], err)
	}
	if s.RepetitionTime <= 0 {
		return 0, fmt.Errorf("[RepetitionTime] %s has no positive RepetitionTime", paths[0])
	}
	return s.RepetitionTime, nil
}

// NScans returns the number of volumes of a 4D NIfTI image.
func NScans(path string) (n int, err error) {
	if err := checkGzip(path); err != nil {
		return 0, err
	}

	// The reader dereferences a nil stream on some corrupt files.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("[NScans] failed to read %s: %v", path, r)
		}
	}()

	var img nifti.Nifti1Image
	img.LoadImage(path, false)

	dims := img.GetDims()
	if len(dims) < 4 || dims[3] < 1 {
		return 0, fmt.Errorf("[NScans] %s is not a 4D image: dims %v", path, dims)
	}
	return int(dims[3]), nil
}

// checkGzip verifies that path exists and, for .gz files, starts with a
// valid gzip header.
func checkGzip(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("[NScans] %w", err)
	}
	defer f.Close()

	if !strings.HasSuffix(path, ".gz") {
		return nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("[NScans] %s: %w", path, err)
	}
	return zr.Close()
}
