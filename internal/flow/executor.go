// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flow

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/probetable"
	"github.com/cockroachdb/probetable/internal/keyfile"
	"go.uber.org/zap"
)

// StepResult is the outcome of one executed step. Exactly one of Inserts
// and Deletes is set, matching Step.Op, and Inserts[i] or Deletes[i]
// corresponds to Keys.Views[i].
type StepResult struct {
	Index      int
	Step       Step
	Keys       *keyfile.Keys
	Elapsed    time.Duration
	Collisions uint64
	Inserts    []probetable.InsertOutcome
	Deletes    []probetable.DeleteOutcome
	// Stats is the table occupancy after the step.
	Stats probetable.Stats
}

// Sink consumes step results as they are produced. A Sink error stops the
// flow.
type Sink interface {
	StepDone(r *StepResult) error
}

// Executor runs a flow.
type Executor struct {
	cfg    Config
	logger *zap.Logger
	sinks  []Sink
}

// NewExecutor validates cfg and returns an Executor that reports every
// completed step to sinks in order.
func NewExecutor(cfg Config, logger *zap.Logger, sinks ...Sink) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{cfg: cfg, logger: logger, sinks: sinks}, nil
}

// Run creates the table, executes every step in order and destroys the
// table. Steps whose input file is empty are skipped. The first failing
// step ends the flow; keys applied by earlier steps, or by the failing step
// before it aborted, are not rolled back. The context is checked between
// steps.
func (e *Executor) Run(ctx context.Context) error {
	t, err := probetable.New(e.cfg.TableSize, probetable.WithLockStripes(e.cfg.LockStripes))
	if err != nil {
		return err
	}
	defer t.Close()

	e.logger.Info("starting flow",
		zap.Int("data-size", e.cfg.DataSize),
		zap.Int("threads", e.cfg.Threads),
		zap.Int("table-size", e.cfg.TableSize),
		zap.Int("steps", len(e.cfg.Steps)))

	for i, s := range e.cfg.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.runStep(t, i, s); err != nil {
			return errors.Wrapf(err, "step %d (%s %s)", i, s.Op, s.File)
		}
	}
	return nil
}

func (e *Executor) runStep(t *probetable.Table, i int, s Step) error {
	log := e.logger.With(zap.Int("step", i), zap.Stringer("op", s.Op), zap.String("file", s.File))

	keys, err := keyfile.Load(s.File)
	if err != nil {
		return err
	}
	if keys.Len() == 0 {
		log.Warn("input file is empty; skipping step")
		return nil
	}
	log.Info("starting step", zap.Int("keys", keys.Len()))

	r := &StepResult{Index: i, Step: s, Keys: keys}
	start := time.Now()
	switch s.Op {
	case Insert:
		var res probetable.InsertResult
		res, err = t.BulkInsert(keys.Views, e.cfg.Threads)
		r.Inserts, r.Collisions = res.Outcomes, res.Collisions
	case Delete:
		var res probetable.DeleteResult
		res, err = t.BulkDelete(keys.Views, e.cfg.Threads)
		r.Deletes, r.Collisions = res.Outcomes, res.Collisions
	default:
		return errors.AssertionFailedf("unexpected op %q", s.Op)
	}
	r.Elapsed = time.Since(start)
	if err != nil {
		return err
	}
	r.Stats = t.Stats()

	log.Info("finished step",
		zap.Duration("elapsed", r.Elapsed),
		zap.Uint64("collisions", r.Collisions),
		zap.Int("occupied", r.Stats.Occupied),
		zap.Int("tombstones", r.Stats.Tombstones))

	for _, sink := range e.sinks {
		if err := sink.StepDone(r); err != nil {
			return err
		}
	}
	return nil
}
