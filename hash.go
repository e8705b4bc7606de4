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

const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

// hashFn maps a key to a 64-bit digest. It must be pure: equal byte strings
// always hash identically.
type hashFn func(key []byte) uint64

// Hash is the default hash function used by a Table. It is 64-bit FNV-1a
// followed by the fmix64 finalizer from MurmurHash3. FNV-1a alone leaves the
// low bits weakly mixed, which shows up as clustering once the digest is
// reduced modulo a table size that is not a large prime.
func Hash(key []byte) uint64 {
	h := uint64(fnvOffset64)
	for _, c := range key {
		h ^= uint64(c)
		h *= fnvPrime64
	}
	return mix(h)
}

// mix is the fmix64 avalanche step.
func mix(h uint64) uint64 {
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}
