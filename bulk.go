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

package probetable

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidWorkers is returned by the bulk operations when asked to run
// with fewer than one worker.
var ErrInvalidWorkers = errors.New("probetable: worker count must be at least 1")

// InsertOutcome is the result of inserting a single key.
type InsertOutcome struct {
	// Index is the slot holding the key after the insert.
	Index int
	// Existed is true if the key was already present.
	Existed bool
	// Collisions is this key's contribution to the collision total.
	Collisions int
}

// InsertResult is the result of BulkInsert. Outcomes[i] corresponds to
// keys[i].
type InsertResult struct {
	Outcomes   []InsertOutcome
	Collisions uint64
}

// DeleteOutcome is the result of deleting a single key.
type DeleteOutcome struct {
	// Index is the slot the key was removed from, or -1 if the key was not
	// present.
	Index int
	// Removed is true if the key was found and removed.
	Removed bool
	// Collisions is this key's contribution to the collision total.
	Collisions int
}

// DeleteResult is the result of BulkDelete. Outcomes[i] corresponds to
// keys[i].
type DeleteResult struct {
	Outcomes   []DeleteOutcome
	Collisions uint64
}

// BulkInsert inserts keys using the given number of concurrent workers. The
// keys are split into contiguous ranges, one per worker, and each outcome is
// stored at its key's input index regardless of completion order. When the
// same key appears in more than one range, exactly one occurrence reports
// Existed=false; which one is unspecified.
//
// If any insert fails the remaining workers stop at their next key and the
// first error is returned. Keys inserted before the failure stay inserted.
func (t *Table) BulkInsert(keys [][]byte, workers int) (InsertResult, error) {
	if workers < 1 {
		return InsertResult{}, errors.Wrapf(ErrInvalidWorkers, "workers=%d", workers)
	}
	res := InsertResult{Outcomes: make([]InsertOutcome, len(keys))}
	var err error
	res.Collisions, err = t.run(len(keys), workers, func(i int) (int, error) {
		index, existed, collisions, err := t.Insert(keys[i])
		if err != nil {
			return 0, err
		}
		res.Outcomes[i] = InsertOutcome{Index: index, Existed: existed, Collisions: collisions}
		return collisions, nil
	})
	return res, err
}

// BulkDelete deletes keys using the given number of concurrent workers,
// partitioned as in BulkInsert. Deleting a key that is not present is
// reported through the outcome, not as an error.
func (t *Table) BulkDelete(keys [][]byte, workers int) (DeleteResult, error) {
	if workers < 1 {
		return DeleteResult{}, errors.Wrapf(ErrInvalidWorkers, "workers=%d", workers)
	}
	res := DeleteResult{Outcomes: make([]DeleteOutcome, len(keys))}
	var err error
	res.Collisions, err = t.run(len(keys), workers, func(i int) (int, error) {
		index, removed, collisions := t.Delete(keys[i])
		res.Outcomes[i] = DeleteOutcome{Index: index, Removed: removed, Collisions: collisions}
		return collisions, nil
	})
	return res, err
}

// run applies fn to every index in [0, n) on one goroutine per span and
// returns the sum of the collisions reported by fn.
func (t *Table) run(n, workers int, fn func(i int) (int, error)) (uint64, error) {
	spans := partition(n, workers)
	totals := make([]uint64, len(spans))

	var g errgroup.Group
	var failed atomic.Bool
	for w, s := range spans {
		g.Go(func() error {
			var local uint64
			for i := s.start; i < s.end && !failed.Load(); i++ {
				c, err := fn(i)
				if err != nil {
					failed.Store(true)
					return err
				}
				local += uint64(c)
			}
			totals[w] = local
			return nil
		})
	}
	err := g.Wait()

	var total uint64
	for _, c := range totals {
		total += c
	}
	if err == nil {
		t.checkInvariants()
	}
	return total, err
}

// span is a half-open range [start, end) of key indexes.
type span struct {
	start, end int
}

// partition splits [0, n) into contiguous, order-preserving spans of
// ceil(n/workers) indexes each, the last one truncated. It returns at most
// min(workers, n) spans and no empty ones.
func partition(n, workers int) []span {
	if n <= 0 || workers <= 0 {
		return nil
	}
	workers = min(workers, n)
	chunk := (n + workers - 1) / workers
	spans := make([]span, 0, workers)
	for start := 0; start < n; start += chunk {
		spans = append(spans, span{start: start, end: min(start+chunk, n)})
	}
	return spans
}
