// Package model coordinates a labeled dataset, a classifier backend and the
// training bookkeeping for each prediction task.
package model

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/stress.report/internal/acquisition"
	"github.com/banshee-data/stress.report/internal/classifier"
	"github.com/banshee-data/stress.report/internal/dataset"
	"github.com/banshee-data/stress.report/internal/features"
	"github.com/banshee-data/stress.report/internal/fsutil"
	"github.com/banshee-data/stress.report/internal/monitoring"
	"github.com/banshee-data/stress.report/internal/timeutil"
)

// Defaults for Policy.
const (
	DefaultMinSamplesPerClass = 5
	DefaultMinSamples         = 5
	DefaultCooldown           = 2 * time.Minute
)

// Policy holds the data-sufficiency and rate-limit thresholds.
type Policy struct {
	// MinSamplesPerClass is the count each class needs (classification).
	MinSamplesPerClass int
	// MinSamples must be exceeded by the total count (regression).
	MinSamples      int
	Cooldown        time.Duration
	DisableCooldown bool
}

func (p Policy) withDefaults() Policy {
	if p.MinSamplesPerClass <= 0 {
		p.MinSamplesPerClass = DefaultMinSamplesPerClass
	}
	if p.MinSamples <= 0 {
		p.MinSamples = DefaultMinSamples
	}
	if p.Cooldown <= 0 {
		p.Cooldown = DefaultCooldown
	}
	return p
}

// Config wires a Controller.
type Config[L comparable] struct {
	Task    Task[L]
	Dir     string // dataset and artifact directory
	FS      fsutil.FileSystem
	Backend classifier.Backend
	Dates   TrainingDateStore
	Clock   timeutil.Clock
	Policy  Policy
	Rand    *rand.Rand // used for balancing
}

// State is the coarse training state of a controller.
type State string

const (
	Untrained              State = "untrained"
	Trained                State = "trained"
	TrainedWithPendingData State = "trained_with_pending_data"
)

// Controller owns one task's dataset and trained artifacts. All methods are
// safe for concurrent use; they serialize on the controller.
type Controller[L comparable] struct {
	task    Task[L]
	dir     string
	fs      fsutil.FileSystem
	backend classifier.Backend
	dates   TrainingDateStore
	clock   timeutil.Clock
	policy  Policy
	logf    func(format string, v ...interface{})

	mu           sync.Mutex
	rng          *rand.Rand
	data         *dataset.Dataset[L]
	artifacts    []classifier.Artifact // nil until trained
	lastTraining time.Time             // zero when never trained
	ahead        int
	training     bool
	pending      int     // appends since the running training started
	pendingEnd   float64 // oldest TimestampEnd among those appends
	generation   uint64  // bumped by Clear
}

// Open loads the task's dataset, artifacts and last training date. Missing
// or unreadable files leave the controller empty or untrained.
func Open[L comparable](ctx context.Context, cfg Config[L]) (*Controller[L], error) {
	if cfg.Backend == nil {
		return nil, errors.New("model: backend is required")
	}
	if cfg.Task.Name == "" || len(cfg.Task.ArtifactFiles) == 0 {
		return nil, errors.New("model: task is incomplete")
	}
	if cfg.FS == nil {
		cfg.FS = fsutil.OSFileSystem{}
	}
	if cfg.Dates == nil {
		cfg.Dates = NewMemoryDateStore()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	c := &Controller[L]{
		task:    cfg.Task,
		dir:     cfg.Dir,
		fs:      cfg.FS,
		backend: cfg.Backend,
		dates:   cfg.Dates,
		clock:   cfg.Clock,
		policy:  cfg.Policy.withDefaults(),
		logf:    monitoring.Component("model/" + cfg.Task.Name),
		rng:     cfg.Rand,
	}
	c.data = dataset.Load[L](c.fs, c.DatasetPath())
	c.artifacts = c.loadArtifacts()

	last, ok, err := c.dates.LastTraining(ctx, c.task.TrainingKey)
	if err != nil {
		c.logf("reading last training date: %v", err)
	} else if ok {
		c.lastTraining = last
	}
	c.ahead = c.data.SamplesAheadOf(c.lastTraining)
	c.logf("loaded %d samples, trained=%t, %d ahead of training", c.data.Len(), c.artifacts != nil, c.ahead)
	return c, nil
}

func (c *Controller[L]) loadArtifacts() []classifier.Artifact {
	out := make([]classifier.Artifact, 0, len(c.task.ArtifactFiles))
	for _, p := range c.ArtifactPaths() {
		if !c.fs.Exists(p) {
			return nil
		}
		a, err := c.backend.Load(p)
		if err != nil {
			c.logf("loading artifact %s: %v", p, err)
			return nil
		}
		out = append(out, a)
	}
	return out
}

// Name returns the task name.
func (c *Controller[L]) Name() string { return c.task.Name }

// DatasetPath is where the dataset file lives.
func (c *Controller[L]) DatasetPath() string {
	return filepath.Join(c.dir, c.task.DatasetFile)
}

// ArtifactPaths lists the artifact files, one per target.
func (c *Controller[L]) ArtifactPaths() []string {
	out := make([]string, len(c.task.ArtifactFiles))
	for i, f := range c.task.ArtifactFiles {
		out[i] = filepath.Join(c.dir, f)
	}
	return out
}

// AddSample extracts the snapshot's features and appends them with label.
// It never triggers training. A failure to persist the dataset is logged and
// the sample is kept in memory.
func (c *Controller[L]) AddSample(snap *acquisition.Snapshot, label L) (features.ModelSample, error) {
	return c.addSample(snap, label, false)
}

func (c *Controller[L]) addSample(snap *acquisition.Snapshot, label L, cooldown bool) (features.ModelSample, error) {
	if snap.HasNoise {
		return features.ModelSample{}, ErrNoisySnapshot
	}
	if c.task.Validate != nil {
		if err := c.task.Validate(label); err != nil {
			return features.ModelSample{}, err
		}
	}
	sample, err := features.FromSnapshot(snap)
	if err != nil {
		return features.ModelSample{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cooldown {
		if d := c.cooldownLocked(); d > 0 {
			return features.ModelSample{}, &CooldownError{Task: c.task.Name, Remaining: d}
		}
	}
	if err := c.data.Append(sample, label); err != nil {
		c.logf("%v; continuing in memory", err)
	}
	c.countAppendLocked(sample.TimestampEnd)
	return sample, nil
}

// countAppendLocked keeps every untrained couple strictly after the training
// date, so that Open recomputes the same ahead count from the dataset. A
// snapshot cut before the last training moves the date back below it.
func (c *Controller[L]) countAppendLocked(end float64) {
	if !c.lastTraining.IsZero() && end <= timeutil.UnixSeconds(c.lastTraining) {
		c.setTrainingDateLocked(context.Background(), justBefore(end))
	} else {
		c.ahead++
	}
	if c.training {
		if c.pending == 0 || end < c.pendingEnd {
			c.pendingEnd = end
		}
		c.pending++
	}
}

// setTrainingDateLocked stores t and recounts the couples after it.
func (c *Controller[L]) setTrainingDateLocked(ctx context.Context, t time.Time) {
	c.lastTraining = t
	if err := c.dates.SetLastTraining(ctx, c.task.TrainingKey, t); err != nil {
		c.logf("storing training date: %v", err)
	}
	c.ahead = c.data.SamplesAheadOf(t)
}

// justBefore returns a time strictly earlier than the unix-seconds value end,
// with a margin wide enough to survive float rounding.
func justBefore(end float64) time.Time {
	return timeutil.FromUnixSeconds(end).Add(-time.Millisecond)
}

// TrainingReadiness returns nil when Train may proceed, otherwise a
// *TrainingUnavailableError naming the missing data.
func (c *Controller[L]) TrainingReadiness() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readinessLocked()
}

// CanTrain reports whether TrainingReadiness passes.
func (c *Controller[L]) CanTrain() bool {
	return c.TrainingReadiness() == nil
}

func (c *Controller[L]) readinessLocked() error {
	e := &TrainingUnavailableError{Task: c.task.Name, Total: c.data.Len(), Ahead: c.ahead}
	enough := true
	if len(c.task.Classes) > 0 {
		e.Need = c.policy.MinSamplesPerClass
		e.Counts = make(map[string]int, len(c.task.Classes))
		for _, class := range c.task.Classes {
			n := c.data.ClassCount(class)
			e.Counts[fmt.Sprint(class)] = n
			if n < e.Need {
				enough = false
			}
		}
	} else {
		e.Need = c.policy.MinSamples
		enough = e.Total > e.Need
	}
	if enough && c.ahead > 0 {
		return nil
	}
	return e
}

// Train fits new artifacts on the current dataset. The backend keeps running
// if ctx is cancelled; only the wait is abandoned. On success the artifacts
// are persisted and the training date is recorded below every sample added
// while training ran, so those stay ahead. If the controller is cleared in
// the meantime the result is discarded.
func (c *Controller[L]) Train(ctx context.Context) error {
	c.mu.Lock()
	if c.training {
		c.mu.Unlock()
		return ErrTrainingInProgress
	}
	if err := c.readinessLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	src := c.data
	if c.task.Kind == classifier.Classification {
		balanced, err := c.data.Balanced(c.rng, c.task.Classes...)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		src = balanced
	}
	sets := c.trainingData(src.Couples())
	gen := c.generation
	start := c.clock.Now()
	c.training = true
	c.pending = 0
	c.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- c.runTraining(context.WithoutCancel(ctx), gen, start, sets)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller[L]) trainingData(couples []dataset.Couple[L]) []classifier.TrainingData {
	sets := make([]classifier.TrainingData, len(c.task.ArtifactFiles))
	for i := range sets {
		sets[i] = classifier.TrainingData{
			Samples: make([][]float64, len(couples)),
			Labels:  make([]float64, len(couples)),
			Layout:  classifier.RowLayout,
			Kind:    c.task.Kind,
		}
	}
	for j, couple := range couples {
		targets := c.task.Targets(couple.Label)
		for i := range sets {
			sets[i].Samples[j] = couple.Sample.Values()
			sets[i].Labels[j] = targets[i]
		}
	}
	return sets
}

func (c *Controller[L]) runTraining(ctx context.Context, gen uint64, start time.Time, sets []classifier.TrainingData) error {
	trained := make([]classifier.Artifact, len(sets))
	var trainErr error
	for i, set := range sets {
		a, err := c.backend.Train(ctx, set)
		if err != nil {
			trainErr = fmt.Errorf("%s: training %s: %w", c.task.Name, c.task.ArtifactFiles[i], err)
			break
		}
		trained[i] = a
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.training = false

	if trainErr != nil {
		c.logf("%v; keeping previous model", trainErr)
		return trainErr
	}
	if gen != c.generation {
		c.logf("model was reset during training; discarding result")
		return ErrTrainingDiscarded
	}

	cutoff := start
	if c.pending > 0 && c.pendingEnd <= timeutil.UnixSeconds(cutoff) {
		cutoff = justBefore(c.pendingEnd)
	}
	c.pending = 0
	c.artifacts = trained
	if err := c.saveArtifacts(trained); err != nil {
		// The training date and ahead count keep describing the artifacts on
		// disk, so the next Train retries the save.
		c.logf("%v; new model kept in memory only", err)
	} else {
		c.setTrainingDateLocked(ctx, cutoff)
	}
	c.logf("trained on %d samples in %s", len(sets[0].Labels), c.clock.Now().Sub(start))
	return nil
}

// saveArtifacts writes every artifact to a staging file before any is renamed
// into place, so a failed write leaves the previous set untouched.
func (c *Controller[L]) saveArtifacts(trained []classifier.Artifact) error {
	paths := c.ArtifactPaths()
	staged := make([]string, len(paths))
	for i, p := range paths {
		staged[i] = filepath.Join(filepath.Dir(p), "."+filepath.Base(p)+".staged")
		if err := c.backend.Save(trained[i], staged[i]); err != nil {
			c.removeFiles(staged[:i+1])
			return fmt.Errorf("saving artifact %s: %w", p, err)
		}
	}
	for i, p := range paths {
		if err := c.fs.Rename(staged[i], p); err != nil {
			c.removeFiles(staged[i:])
			if i > 0 {
				// old and new artifacts must never be loaded as a pair
				c.removeFiles(paths)
			}
			return fmt.Errorf("installing artifact %s: %w", p, err)
		}
	}
	return nil
}

func (c *Controller[L]) removeFiles(paths []string) {
	for _, p := range paths {
		if err := fsutil.RemoveIfExists(c.fs, p); err != nil {
			c.logf("remove %s: %v", p, err)
		}
	}
}

// Predict runs the trained artifacts on the snapshot's features.
func (c *Controller[L]) Predict(snap *acquisition.Snapshot) (L, error) {
	var zero L
	c.mu.Lock()
	artifacts := c.artifacts
	c.mu.Unlock()
	if artifacts == nil {
		return zero, ErrPredictUnavailable
	}

	sample, err := features.FromSnapshot(snap)
	if err != nil {
		return zero, err
	}
	outputs := make([]float64, len(artifacts))
	for i, a := range artifacts {
		if outputs[i], err = a.Predict(sample.Values()); err != nil {
			return zero, fmt.Errorf("%s: predict: %w", c.task.Name, err)
		}
	}
	return c.task.FromOutputs(outputs), nil
}

// IsTrained reports whether artifacts are available.
func (c *Controller[L]) IsTrained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifacts != nil
}

// SamplesAheadOfTraining counts samples added since the last training.
func (c *Controller[L]) SamplesAheadOfTraining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ahead
}

// LastTraining returns the last training time; zero if never trained.
func (c *Controller[L]) LastTraining() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTraining
}

// CooldownRemaining is how long until another labeled sample is accepted.
func (c *Controller[L]) CooldownRemaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cooldownLocked()
}

// CooldownActive is true while the newest sample is younger than the cooldown.
func (c *Controller[L]) CooldownActive() bool {
	return c.CooldownRemaining() > 0
}

func (c *Controller[L]) cooldownLocked() time.Duration {
	if c.policy.DisableCooldown {
		return 0
	}
	latest, ok := c.data.Latest()
	if !ok {
		return 0
	}
	until := timeutil.FromUnixSeconds(latest.Sample.TimestampEnd).Add(c.policy.Cooldown)
	if d := until.Sub(c.clock.Now()); d > 0 {
		return d
	}
	return 0
}

// State reports the coarse training state.
func (c *Controller[L]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller[L]) stateLocked() State {
	switch {
	case c.artifacts == nil:
		return Untrained
	case c.ahead > 0:
		return TrainedWithPendingData
	}
	return Trained
}

// Clear deletes the dataset and artifacts and forgets the training date. A
// training run in flight is discarded when it completes.
func (c *Controller[L]) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	var errs []error
	if err := c.data.Delete(); err != nil {
		errs = append(errs, err)
	}
	for _, p := range c.ArtifactPaths() {
		if err := fsutil.RemoveIfExists(c.fs, p); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
		}
	}
	if err := c.dates.ClearLastTraining(ctx, c.task.TrainingKey); err != nil {
		errs = append(errs, err)
	}
	c.artifacts = nil
	c.lastTraining = time.Time{}
	c.ahead = 0
	c.pending = 0
	c.logf("cleared")
	return errors.Join(errs...)
}

// Couples returns the dataset in append order.
func (c *Controller[L]) Couples() []dataset.Couple[L] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Couples()
}

// Status summarizes the controller for display.
func (c *Controller[L]) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Task:              c.task.Name,
		Kind:              c.task.Kind.String(),
		State:             c.stateLocked(),
		Trained:           c.artifacts != nil,
		Training:          c.training,
		Samples:           c.data.Len(),
		Ahead:             c.ahead,
		CooldownRemaining: c.cooldownLocked().Seconds(),
	}
	if len(c.task.Classes) > 0 {
		s.Classes = make(map[string]int, len(c.task.Classes))
		for _, class := range c.task.Classes {
			s.Classes[fmt.Sprint(class)] = c.data.ClassCount(class)
		}
	}
	if !c.lastTraining.IsZero() {
		t := c.lastTraining
		s.LastTraining = &t
	}
	if err := c.readinessLocked(); err != nil {
		s.TrainingBlockedBy = err.Error()
	} else {
		s.CanTrain = true
	}
	return s
}
