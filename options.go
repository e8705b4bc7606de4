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

// option provide an interface to do work on Table while it is being created.
type option interface {
	apply(t *Table)
}

type hashOption struct {
	hash hashFn
}

func (op hashOption) apply(t *Table) {
	t.hash = op.hash
}

// WithHash is an option to specify the hash function to use for a Table.
// The function must be deterministic. Tests use degenerate hash functions to
// force every key onto the same probe sequence.
func WithHash(hash func(key []byte) uint64) option {
	return hashOption{hash}
}

type lockStripesOption struct {
	stripes int
}

func (op lockStripesOption) apply(t *Table) {
	t.stripes = op.stripes
}

// WithLockStripes is an option to guard the slots with a fixed set of n
// mutexes (slot i is guarded by mutex i%n) instead of one mutex per slot. A
// value <= 0, or one larger than the table size, selects one mutex per slot.
func WithLockStripes(n int) option {
	return lockStripesOption{n}
}

// KeyAllocator specifies an interface for allocating and releasing the
// private key copies owned by a Table. The default allocator utilizes Go's
// builtin make() and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory then Table.Close must be
// called in order to ensure FreeKey is called for every key still resident.
type KeyAllocator interface {
	// AllocKey should return a slice equivalent to make([]byte, n). A
	// non-nil error aborts the insert that requested the memory.
	AllocKey(n int) ([]byte, error)

	// FreeKey releases a slice previously returned by AllocKey. It is called
	// exactly once per key, when its slot is tombstoned or the table is
	// closed. Concurrent probes may still be reading a key when it is freed,
	// so memory must not be reused until the operation in flight returns.
	FreeKey(b []byte)
}

type defaultAllocator struct{}

func (defaultAllocator) AllocKey(n int) ([]byte, error) {
	return make([]byte, n), nil
}

func (defaultAllocator) FreeKey(b []byte) {
}

type allocatorOption struct {
	allocator KeyAllocator
}

func (op allocatorOption) apply(t *Table) {
	t.allocator = op.allocator
}

// WithAllocator is an option for specify the KeyAllocator to use for a Table.
func WithAllocator(allocator KeyAllocator) option {
	return allocatorOption{allocator}
}
