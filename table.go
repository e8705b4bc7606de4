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

// Package probetable implements a fixed-size, open-addressing key table that
// is safe for concurrent inserts, or concurrent deletes, from many goroutines,
// together with bulk operations that partition a key sequence across workers.
//
// # Layout
//
// A Table is a fixed array of slots. Each slot is in one of three states:
// empty (never occupied), occupied (holding a private copy of a key) or
// deleted (a tombstone left behind by Delete). The legal transitions are
//
//	empty    -> occupied   (Insert)
//	occupied -> deleted    (Delete)
//	deleted  -> occupied   (Insert reusing a tombstone)
//
// A slot never becomes empty again: there is no compaction and no resizing.
// Tombstones keep probe sequences intact for keys that were inserted past the
// deleted key.
//
// # Probing
//
// A key's home slot is hash(key) mod size. Probing is linear: the sequence
// visits home, home+1, ... wrapping at the end of the array, so a probe
// visits every slot exactly once per cycle. Insert remembers the first
// tombstone it crosses and places the key there once an empty slot proves
// that the key is absent. Delete and Lookup cross tombstones and stop at the
// first empty slot.
//
// # Concurrency
//
// Each slot's state is a single atomically published pointer, so a probe can
// peek at a slot without holding its guard. Peeks are only hints: every
// mutation acquires the slot's guard, re-reads the slot and re-validates the
// decision it made from the peek. A probe holds at most one guard at a time
// and always releases it before moving to a different slot, so the lack of a
// global lock order across probe sequences cannot deadlock.
//
// Inserts may run concurrently with other inserts and deletes with other
// deletes, and Lookup with either. Inserts must not overlap deletes: an
// insert that decided a key was absent from what it peeked earlier in its
// probe can be invalidated by a delete that opens a tombstone behind it, and
// the key may then be placed twice. The bulk operations honor this because
// each runs a single kind of operation and returns only after every worker
// has finished.
//
// By default each slot has its own mutex. WithLockStripes trades memory for
// contention by sharing a fixed set of mutexes between slots.
//
// # Collisions
//
// Insert, Delete and the bulk operations report collisions: the number of
// probe steps that compared the key against a different key. On insert,
// tombstones are never counted and a key that was already present
// contributes nothing. On delete, crossing a tombstone counts, and only a
// delete that removed its key contributes its count.
package probetable

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidSize is returned by New when the requested size is not
	// positive.
	ErrInvalidSize = errors.New("probetable: table size must be positive")
	// ErrTableFull is returned by Insert when a complete probe cycle found
	// neither the key nor a free slot. Callers must size the table to exceed
	// the number of distinct live keys.
	ErrTableFull = errors.New("probetable: table is full")
)

// entry is the published content of an occupied slot. The key bytes are
// immutable once the entry is stored.
type entry struct {
	key []byte
}

// tombstone is the shared marker for deleted slots. It is compared by
// pointer identity and never holds a key.
var tombstone = &entry{}

// slot holds nil (empty), tombstone (deleted) or an owned entry (occupied).
type slot struct {
	p atomic.Pointer[entry]
}

func (s *slot) load() *entry {
	return s.p.Load()
}

func (s *slot) store(e *entry) {
	s.p.Store(e)
}

// Table is a fixed-size open-addressing set of byte-string keys. Insert may
// be called concurrently with Insert and Lookup, and Delete concurrently with
// Delete and Lookup. Insert and Delete must not run concurrently with each
// other, and Close must not run concurrently with anything.
type Table struct {
	// The hash function applied to every key. Defaults to Hash.
	hash hashFn
	// The allocator to use for the private key copies.
	allocator KeyAllocator
	// The number of lock stripes requested via WithLockStripes.
	stripes int
	slots   []slot
	// locks[i%len(locks)] guards slots[i].
	locks []sync.Mutex
	// The number of occupied slots.
	used atomic.Int64
	// The number of tombstones.
	deleted atomic.Int64
}

// New constructs a Table with size slots. The size is fixed for the lifetime
// of the table.
func New(size int, options ...option) (*Table, error) {
	if size <= 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "size=%d", size)
	}
	t := &Table{
		hash:      Hash,
		allocator: defaultAllocator{},
	}
	for _, op := range options {
		op.apply(t)
	}

	nlocks := t.stripes
	if nlocks <= 0 || nlocks > size {
		nlocks = size
	}
	t.slots = make([]slot, size)
	t.locks = make([]sync.Mutex, nlocks)
	t.checkInvariants()
	return t, nil
}

// Close releases every resident key back to the table's allocator. It is
// invalid to use a Table after it has been closed, though Close itself is
// idempotent. Close must not run concurrently with other operations.
func (t *Table) Close() {
	for i := range t.slots {
		if e := t.slots[i].load(); e != nil && e != tombstone {
			t.allocator.FreeKey(e.key)
		}
	}
	t.slots = nil
	t.locks = nil
	t.used.Store(0)
	t.deleted.Store(0)
}

// Size returns the fixed number of slots in the table.
func (t *Table) Size() int {
	return len(t.slots)
}

// Len returns the number of keys in the table.
func (t *Table) Len() int {
	return int(t.used.Load())
}

// Tombstones returns the number of deleted slots.
func (t *Table) Tombstones() int {
	return int(t.deleted.Load())
}

// home returns the first slot of key's probe sequence.
func (t *Table) home(key []byte) int {
	return int(t.hash(key) % uint64(len(t.slots)))
}

// next returns the slot following i in probe order.
func (t *Table) next(i int) int {
	i++
	if i == len(t.slots) {
		i = 0
	}
	return i
}

func (t *Table) lock(i int) *sync.Mutex {
	return &t.locks[i%len(t.locks)]
}

// Insert adds key to the table, returning the index of the slot that holds
// it. If the key was already present, existed is true, the table is not
// modified and collisions is zero. Otherwise collisions is the number of
// distinct keys the probe compared against. The table stores a private copy
// of key; the caller may reuse key afterwards.
//
// Insert returns ErrTableFull if no slot is available, or the allocator's
// error if the key copy could not be allocated. In both cases the table is
// unchanged.
//
// Insert must not run concurrently with Delete.
func (t *Table) Insert(key []byte) (index int, existed bool, collisions int, err error) {
	home := t.home(key)
	for {
		index, existed, n, retry, err := t.probeInsert(key, home)
		if existed {
			return index, true, 0, nil
		}
		collisions += n
		if !retry {
			return index, false, collisions, err
		}
	}
}

// probeInsert runs one probe pass for Insert. It returns retry=true when the
// tombstone it meant to reuse was claimed by another goroutine, in which case
// the key may have been inserted by that goroutine and the probe must start
// over from the home slot.
func (t *Table) probeInsert(
	key []byte, home int,
) (index int, existed bool, collisions int, retry bool, err error) {
	firstDeleted := -1
	pos := home
	for probes := 0; ; {
		if probes == len(t.slots) {
			// A full cycle without an empty slot. If we crossed a tombstone
			// the key is known to be absent and can take it.
			if firstDeleted < 0 {
				return -1, false, collisions, false, errors.Wrapf(ErrTableFull,
					"inserting %d byte key into %d slots", len(key), len(t.slots))
			}
			ok, err := t.claim(firstDeleted, tombstone, key)
			if err != nil || ok {
				return firstDeleted, false, collisions, false, err
			}
			return -1, false, collisions, true, nil
		}

		e := t.slots[pos].load()
		switch {
		case e == nil:
			target, want := pos, (*entry)(nil)
			if firstDeleted >= 0 {
				target, want = firstDeleted, tombstone
			}
			ok, err := t.claim(target, want, key)
			if err != nil || ok {
				return target, false, collisions, false, err
			}
			if target != pos {
				return -1, false, collisions, true, nil
			}
			// Lost the race for this empty slot. Re-evaluate it: the winner
			// may have inserted this very key.
			continue
		case e == tombstone:
			if firstDeleted < 0 {
				firstDeleted = pos
			}
		case bytes.Equal(e.key, key):
			return pos, true, 0, false, nil
		default:
			collisions++
		}
		probes++
		pos = t.next(pos)
	}
}

// claim stores a private copy of key in slot i if the slot still holds want
// (nil or tombstone) once its guard is held.
func (t *Table) claim(i int, want *entry, key []byte) (bool, error) {
	mu := t.lock(i)
	mu.Lock()
	defer mu.Unlock()

	if t.slots[i].load() != want {
		return false, nil
	}
	buf, err := t.allocator.AllocKey(len(key))
	if err != nil {
		return false, errors.Wrapf(err, "allocating %d byte key", len(key))
	}
	copy(buf, key)
	t.slots[i].store(&entry{key: buf})
	if want == tombstone {
		t.deleted.Add(-1)
	}
	t.used.Add(1)
	return true, nil
}

// Delete removes key from the table, leaving a tombstone in its slot. It
// returns the index of the slot the key was removed from and removed=true,
// or index=-1 and removed=false if the key was not present. A missing key is
// not an error. collisions is the number of tombstones and distinct keys the
// probe crossed, and is zero when nothing was removed.
//
// Delete must not run concurrently with Insert.
func (t *Table) Delete(key []byte) (index int, removed bool, collisions int) {
	pos := t.home(key)
	for probes := 0; probes < len(t.slots); {
		e := t.slots[pos].load()
		switch {
		case e == nil:
			return -1, false, 0
		case e == tombstone:
			collisions++
		case bytes.Equal(e.key, key):
			if t.release(pos, e) {
				return pos, true, collisions
			}
			// The slot changed under us; re-evaluate it.
			continue
		default:
			collisions++
		}
		probes++
		pos = t.next(pos)
	}
	return -1, false, 0
}

// release tombstones slot i if it still holds e once its guard is held, and
// returns e's key to the allocator.
func (t *Table) release(i int, e *entry) bool {
	mu := t.lock(i)
	mu.Lock()
	defer mu.Unlock()

	if t.slots[i].load() != e {
		return false
	}
	t.slots[i].store(tombstone)
	t.allocator.FreeKey(e.key)
	t.used.Add(-1)
	t.deleted.Add(1)
	return true
}

// Lookup returns the index of the slot holding key, or ok=false if the key
// is not present. Lookup never acquires a guard; under concurrent mutation
// its answer reflects some interleaving of the probe with those mutations.
func (t *Table) Lookup(key []byte) (index int, ok bool) {
	pos := t.home(key)
	for probes := 0; probes < len(t.slots); probes++ {
		e := t.slots[pos].load()
		if e == nil {
			return -1, false
		}
		if e != tombstone && bytes.Equal(e.key, key) {
			return pos, true
		}
		pos = t.next(pos)
	}
	return -1, false
}

// All calls yield sequentially, in slot order, for each key present in the
// table. If yield returns false, iteration stops. The key slice is owned by
// the table and must not be modified or retained past the call.
func (t *Table) All(yield func(index int, key []byte) bool) {
	for i := range t.slots {
		if e := t.slots[i].load(); e != nil && e != tombstone {
			if !yield(i, e.key) {
				return
			}
		}
	}
}

// Stats describes the occupancy of a Table.
type Stats struct {
	Size       int
	Occupied   int
	Tombstones int
	Empty      int
	// LongestRun is the length of the longest run of consecutive non-empty
	// slots, wrapping at the end of the table. It bounds the length of an
	// unsuccessful probe.
	LongestRun int
}

// LoadFactor returns the fraction of slots that are not empty.
func (s Stats) LoadFactor() float64 {
	if s.Size == 0 {
		return 0
	}
	return float64(s.Occupied+s.Tombstones) / float64(s.Size)
}

// Stats scans the table and returns its occupancy. The scan is not atomic
// with respect to concurrent mutation.
func (t *Table) Stats() Stats {
	s := Stats{Size: len(t.slots)}
	var run, leading int
	leadingDone := false
	for i := range t.slots {
		switch e := t.slots[i].load(); {
		case e == nil:
			s.Empty++
			if !leadingDone {
				leading, leadingDone = run, true
			}
			run = 0
			continue
		case e == tombstone:
			s.Tombstones++
		default:
			s.Occupied++
		}
		run++
		s.LongestRun = max(s.LongestRun, run)
	}
	if !leadingDone {
		// No empty slot at all.
		s.LongestRun = len(t.slots)
	} else {
		// The trailing run wraps around into the leading one.
		s.LongestRun = max(s.LongestRun, run+leading)
	}
	return s
}

func (t *Table) checkInvariants() {
	if invariants {
		var used, deleted int
		seen := make(map[string]int)
		for i := range t.slots {
			e := t.slots[i].load()
			switch {
			case e == nil:
			case e == tombstone:
				deleted++
			default:
				if j, ok := seen[string(e.key)]; ok {
					panic(errors.AssertionFailedf("invariant failed: key %q in slots %d and %d\n%s",
						e.key, j, i, t.debugString()))
				}
				seen[string(e.key)] = i
				if j, ok := t.Lookup(e.key); !ok || j != i {
					panic(errors.AssertionFailedf("invariant failed: slot(%d): %q not found [home=%d]\n%s",
						i, e.key, t.home(e.key), t.debugString()))
				}
				used++
			}
		}
		if n := t.Len(); used != n {
			panic(errors.AssertionFailedf("invariant failed: found %d used slots, but used count is %d\n%s",
				used, n, t.debugString()))
		}
		if n := t.Tombstones(); deleted != n {
			panic(errors.AssertionFailedf("invariant failed: found %d tombstones, but deleted count is %d\n%s",
				deleted, n, t.debugString()))
		}
	}
}

func (t *Table) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "size=%d  used=%d  deleted=%d\n", len(t.slots), t.Len(), t.Tombstones())
	for i := range t.slots {
		switch e := t.slots[i].load(); {
		case e == nil:
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
		case e == tombstone:
			fmt.Fprintf(&buf, "  %4d: deleted\n", i)
		default:
			fmt.Fprintf(&buf, "  %4d: %q [home=%d]\n", i, e.key, t.home(e.key))
		}
	}
	return buf.String()
}
