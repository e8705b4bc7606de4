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

// Package flow runs an ordered sequence of bulk insert and delete steps
// against a single key table.
package flow

import (
	"math"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
)

// MaxSteps is the maximum number of steps in a flow.
const MaxSteps = 16

// Op is the kind of bulk operation a step performs.
type Op string

const (
	Insert Op = "insert"
	Delete Op = "delete"
)

func (op Op) String() string {
	return string(op)
}

// ParseOp parses an operation name.
func ParseOp(s string) (Op, error) {
	switch op := Op(s); op {
	case Insert, Delete:
		return op, nil
	}
	return "", errors.Newf("unknown action %q (expected %q or %q)", s, Insert, Delete)
}

// Step is one bulk operation applied to the keys of one input file.
type Step struct {
	Op   Op
	File string
}

// Config describes a flow.
type Config struct {
	// DataSize is the nominal dataset size. It only labels results.
	DataSize int
	// Threads is the number of workers per step.
	Threads int
	// TableSize is the number of slots in the table.
	TableSize int
	// LockStripes selects striped slot locks. Zero means one lock per slot.
	LockStripes int
	Steps       []Step
	// ResultsDir is where the results file is written. Empty disables the
	// results file.
	ResultsDir string
}

// MakeSteps pairs each action with the input file at the same position.
func MakeSteps(actions, files []string) ([]Step, error) {
	if len(actions) != len(files) {
		return nil, errors.Newf("number of input files (%d) must match number of actions (%d)",
			len(files), len(actions))
	}
	steps := make([]Step, len(actions))
	for i := range actions {
		op, err := ParseOp(actions[i])
		if err != nil {
			return nil, err
		}
		steps[i] = Step{Op: op, File: files[i]}
	}
	return steps, nil
}

// Validate checks the configuration before any table is created.
func (c *Config) Validate() error {
	switch {
	case c.DataSize < 0:
		return errors.Newf("invalid data size %d", c.DataSize)
	case c.Threads < 1:
		return errors.Newf("invalid thread count %d: must be at least 1", c.Threads)
	case c.TableSize < 1:
		return errors.Newf("invalid table size %d: must be positive", c.TableSize)
	case c.LockStripes < 0:
		return errors.Newf("invalid lock stripe count %d", c.LockStripes)
	case len(c.Steps) == 0:
		return errors.New("flow must contain at least one action")
	case len(c.Steps) > MaxSteps:
		return errors.Newf("too many flow actions: %d (max %d)", len(c.Steps), MaxSteps)
	}
	for i, s := range c.Steps {
		if _, err := ParseOp(string(s.Op)); err != nil {
			return errors.Wrapf(err, "step %d", i)
		}
		if s.File == "" {
			return errors.Newf("step %d: missing input file", i)
		}
	}
	return nil
}

// Ops returns the operation of every step.
func (c *Config) Ops() []Op {
	ops := make([]Op, len(c.Steps))
	for i := range c.Steps {
		ops[i] = c.Steps[i].Op
	}
	return ops
}

// ParseSize parses a count such as "150K" or "2M". Suffixes are decimal:
// 1K is 1000.
func ParseSize(s string) (int, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size %q", s)
	}
	if n > math.MaxInt {
		return 0, errors.Newf("size %q out of range", s)
	}
	return int(n), nil
}

// FormatSize is the inverse of ParseSize for exact multiples of 1K and 1M.
// Other values are formatted as plain integers.
func FormatSize(n int) string {
	switch {
	case n != 0 && n%1000000 == 0:
		return strconv.Itoa(n/1000000) + "M"
	case n != 0 && n%1000 == 0:
		return strconv.Itoa(n/1000) + "K"
	}
	return strconv.Itoa(n)
}
