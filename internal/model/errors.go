package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

var (
	ErrNoisySnapshot      = errors.New("snapshot contains synthetic samples")
	ErrInvalidLabel       = errors.New("invalid label")
	ErrPredictUnavailable = errors.New("model is not trained")
	ErrTrainingInProgress = errors.New("training already in progress")
	// ErrTrainingDiscarded is returned when the model was cleared while a
	// training run was in flight.
	ErrTrainingDiscarded = errors.New("training result discarded after reset")
	// ErrCooldown is returned when a labeled sample arrives too soon after
	// the previous one.
	ErrCooldown = errors.New("sample cooldown active")
	// ErrTrainingUnavailable matches any *TrainingUnavailableError.
	ErrTrainingUnavailable = errors.New("not enough data to train")
)

// TrainingUnavailableError explains which data is missing before a model can
// be trained.
type TrainingUnavailableError struct {
	Task   string         `json:"task"`
	Counts map[string]int `json:"counts,omitempty"` // per class, classification only
	Total  int            `json:"total"`
	Need   int            `json:"need"`
	Ahead  int            `json:"ahead"`
}

func (e *TrainingUnavailableError) Error() string {
	var reasons []string
	if len(e.Counts) > 0 {
		classes := make([]string, 0, len(e.Counts))
		for c := range e.Counts {
			classes = append(classes, c)
		}
		sort.Strings(classes)
		for _, c := range classes {
			if n := e.Counts[c]; n < e.Need {
				reasons = append(reasons, fmt.Sprintf("%s has %d/%d samples", c, n, e.Need))
			}
		}
	} else if e.Total <= e.Need {
		reasons = append(reasons, fmt.Sprintf("%d samples, need more than %d", e.Total, e.Need))
	}
	if e.Ahead == 0 {
		reasons = append(reasons, "no new samples since last training")
	}
	return fmt.Sprintf("%s: cannot train: %s", e.Task, strings.Join(reasons, "; "))
}

func (e *TrainingUnavailableError) Is(target error) bool {
	return target == ErrTrainingUnavailable
}

// CooldownError rejects a labeled sample that arrived too soon after the
// previous one.
type CooldownError struct {
	Task      string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: %v: retry in %.0fs", e.Task, ErrCooldown, math.Ceil(e.Remaining.Seconds()))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldown
}
