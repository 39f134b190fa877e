// Package dataset manages the labeled feature vectors collected for one
// model task and their on-disk file.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/banshee-data/stress.report/internal/features"
	"github.com/banshee-data/stress.report/internal/fsutil"
	"github.com/banshee-data/stress.report/internal/monitoring"
	"github.com/banshee-data/stress.report/internal/timeutil"
)

var logf = monitoring.Component("dataset")

// ErrEmptyClass is returned by Balanced when a requested class has no couples.
var ErrEmptyClass = errors.New("class has no samples")

// PersistenceError reports a failed dataset read or write. The in-memory
// dataset stays authoritative when it occurs.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("dataset %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Couple pairs a feature vector with its label.
type Couple[L any] struct {
	Sample features.ModelSample `json:"sample"`
	Label  L                    `json:"label"`
}

type fileFormat[L any] struct {
	Couples []Couple[L] `json:"couples"`
}

// Dataset is an append-only list of couples. It is not synchronized.
type Dataset[L comparable] struct {
	fs      fsutil.FileSystem
	path    string
	couples []Couple[L]
	counts  map[L]int // nil when stale
}

// New returns an empty dataset persisted at path. An empty path keeps it in
// memory only.
func New[L comparable](fs fsutil.FileSystem, path string) *Dataset[L] {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &Dataset[L]{fs: fs, path: path}
}

// Load reads the dataset at path. A missing or unreadable file yields an
// empty dataset; the file is rewritten on the next append.
func Load[L comparable](fs fsutil.FileSystem, path string) *Dataset[L] {
	d := New[L](fs, path)
	if path == "" || !d.fs.Exists(path) {
		return d
	}
	data, err := d.fs.ReadFile(path)
	if err != nil {
		logf("%v", &PersistenceError{Op: "read", Path: path, Err: err})
		return d
	}
	var f fileFormat[L]
	if err := json.Unmarshal(data, &f); err != nil {
		logf("%v; starting empty", &PersistenceError{Op: "decode", Path: path, Err: err})
		return d
	}
	if len(f.Couples) > 0 {
		d.couples = f.Couples
	}
	return d
}

// Path returns the backing file, or "" for in-memory datasets.
func (d *Dataset[L]) Path() string { return d.path }

// Len returns the number of couples.
func (d *Dataset[L]) Len() int { return len(d.couples) }

// Couples returns a copy in append order.
func (d *Dataset[L]) Couples() []Couple[L] { return slices.Clone(d.couples) }

// Append adds a couple and rewrites the file. A write failure is returned
// as a *PersistenceError after the couple has been added in memory.
func (d *Dataset[L]) Append(sample features.ModelSample, label L) error {
	d.couples = append(d.couples, Couple[L]{Sample: sample, Label: label})
	d.counts = nil
	return d.Save()
}

// Save writes the dataset atomically.
func (d *Dataset[L]) Save() error {
	if d.path == "" {
		return nil
	}
	couples := d.couples
	if couples == nil {
		couples = []Couple[L]{}
	}
	data, err := json.Marshal(fileFormat[L]{Couples: couples})
	if err != nil {
		return &PersistenceError{Op: "encode", Path: d.path, Err: err}
	}
	if err := fsutil.WriteFileAtomic(d.fs, d.path, data, 0o644); err != nil {
		return &PersistenceError{Op: "write", Path: d.path, Err: err}
	}
	return nil
}

// Delete empties the dataset and removes its file.
func (d *Dataset[L]) Delete() error {
	d.couples = nil
	d.counts = nil
	if d.path == "" {
		return nil
	}
	if err := fsutil.RemoveIfExists(d.fs, d.path); err != nil {
		return &PersistenceError{Op: "remove", Path: d.path, Err: err}
	}
	return nil
}

// ClassCount returns how many couples carry label.
func (d *Dataset[L]) ClassCount(label L) int {
	if d.counts == nil {
		d.counts = make(map[L]int)
		for _, c := range d.couples {
			d.counts[c.Label]++
		}
	}
	return d.counts[label]
}

// Balanced returns an in-memory copy in which every listed class has been
// oversampled, by drawing existing couples uniformly with replacement, up to
// the size of the largest one. The receiver is not modified.
func (d *Dataset[L]) Balanced(rng *rand.Rand, classes ...L) (*Dataset[L], error) {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	out := New[L](d.fs, "")
	out.couples = slices.Clone(d.couples)

	byClass := make(map[L][]Couple[L], len(classes))
	for _, c := range d.couples {
		byClass[c.Label] = append(byClass[c.Label], c)
	}
	target := 0
	for _, label := range classes {
		n := len(byClass[label])
		if n == 0 {
			return nil, fmt.Errorf("balance %v: %w", label, ErrEmptyClass)
		}
		target = max(target, n)
	}
	for _, label := range classes {
		pool := byClass[label]
		for n := len(pool); n < target; n++ {
			out.couples = append(out.couples, pool[rng.IntN(len(pool))])
		}
	}
	return out, nil
}

// Chronological returns the couples ordered by window end; ties keep append
// order.
func (d *Dataset[L]) Chronological() []Couple[L] {
	out := slices.Clone(d.couples)
	slices.SortStableFunc(out, func(a, b Couple[L]) int {
		switch {
		case a.Sample.TimestampEnd < b.Sample.TimestampEnd:
			return -1
		case a.Sample.TimestampEnd > b.Sample.TimestampEnd:
			return 1
		}
		return 0
	})
	return out
}

// Latest returns the couple with the newest window end.
func (d *Dataset[L]) Latest() (Couple[L], bool) {
	if len(d.couples) == 0 {
		return Couple[L]{}, false
	}
	chron := d.Chronological()
	return chron[len(chron)-1], true
}

// SamplesAheadOf counts couples whose window ended strictly after t. A zero
// t means no training happened yet and every couple counts.
func (d *Dataset[L]) SamplesAheadOf(t time.Time) int {
	if t.IsZero() {
		return len(d.couples)
	}
	cutoff := timeutil.UnixSeconds(t)
	n := 0
	for _, c := range d.couples {
		if c.Sample.TimestampEnd > cutoff {
			n++
		}
	}
	return n
}

// Exists reports whether the backing file is present.
func (d *Dataset[L]) Exists() bool {
	if d.path == "" {
		return false
	}
	return d.fs.Exists(d.path)
}
