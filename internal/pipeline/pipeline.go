// Package pipeline sequences the harness stages. The pipeline is a straight
// line (simulate feeds figures), executed strictly in order with validated
// state transitions so an aborted run leaves an explainable state snapshot.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// StageState is the lifecycle state of one stage.
type StageState string

const (
	StagePending   StageState = "PENDING"
	StageRunning   StageState = "RUNNING"
	StageSucceeded StageState = "SUCCEEDED"
	StageFailed    StageState = "FAILED"
	StageSkipped   StageState = "SKIPPED"
)

// Stage is one named unit of work in the pipeline.
type Stage struct {
	Name string
	Run  func(ctx context.Context) error
}

// StageError identifies which stage failed and wraps its cause.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline runs stages in declaration order, failing fast: a stage failure
// marks every later stage SKIPPED and returns a StageError.
type Pipeline struct {
	stages []Stage
	state  map[string]StageState
	log    *zap.Logger
}

// New builds a pipeline over the given stages. Stage names must be unique.
func New(log *zap.Logger, stages ...Stage) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("pipeline needs at least one stage")
	}
	if log == nil {
		log = zap.NewNop()
	}
	state := make(map[string]StageState, len(stages))
	for _, s := range stages {
		if s.Name == "" {
			return nil, fmt.Errorf("stage with empty name")
		}
		if s.Run == nil {
			return nil, fmt.Errorf("stage %q has no run function", s.Name)
		}
		if _, dup := state[s.Name]; dup {
			return nil, fmt.Errorf("duplicate stage name %q", s.Name)
		}
		state[s.Name] = StagePending
	}
	return &Pipeline{stages: stages, state: state, log: log}, nil
}

// Run executes the stages sequentially. On failure the remaining stages are
// marked SKIPPED and the failing stage's error is returned wrapped in a
// StageError.
func (p *Pipeline) Run(ctx context.Context) error {
	for i, s := range p.stages {
		if err := ctx.Err(); err != nil {
			p.skipFrom(i)
			return &StageError{Stage: s.Name, Err: err}
		}

		if err := p.transition(s.Name, StagePending, StageRunning); err != nil {
			return err
		}
		p.log.Info("stage started", zap.String("stage", s.Name))

		if err := s.Run(ctx); err != nil {
			if terr := p.transition(s.Name, StageRunning, StageFailed); terr != nil {
				return terr
			}
			p.skipFrom(i + 1)
			p.log.Error("stage failed", zap.String("stage", s.Name), zap.Error(err))
			return &StageError{Stage: s.Name, Err: err}
		}

		if err := p.transition(s.Name, StageRunning, StageSucceeded); err != nil {
			return err
		}
		p.log.Info("stage succeeded", zap.String("stage", s.Name))
	}
	return nil
}

// States returns a snapshot of every stage's current state.
func (p *Pipeline) States() map[string]StageState {
	out := make(map[string]StageState, len(p.state))
	for k, v := range p.state {
		out[k] = v
	}
	return out
}

func (p *Pipeline) skipFrom(i int) {
	for _, s := range p.stages[i:] {
		if p.state[s.Name] == StagePending {
			p.state[s.Name] = StageSkipped
		}
	}
}

// transition validates the move against the expected prior state so a
// programming error surfaces immediately instead of corrupting the snapshot.
func (p *Pipeline) transition(name string, from, to StageState) error {
	cur, ok := p.state[name]
	if !ok {
		return fmt.Errorf("unknown stage %q", name)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", name, from, cur)
	}
	if !allowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", name, from, to)
	}
	p.state[name] = to
	return nil
}

func allowedTransition(from, to StageState) bool {
	switch from {
	case StagePending:
		return to == StageRunning || to == StageSkipped
	case StageRunning:
		return to == StageSucceeded || to == StageFailed
	default:
		return false
	}
}
