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

// Package keyfile loads newline-delimited key files.
//
// A file is read into a single contiguous buffer and every key is a view
// into that buffer, so loading N keys costs two allocations regardless of
// N. Keys are the raw bytes between newlines: no trimming is performed
// beyond dropping the '\n' itself, and a final newline does not produce a
// trailing empty key.
package keyfile

import (
	"bytes"
	"os"

	"github.com/cockroachdb/errors"
)

// Keys is the content of one key file.
type Keys struct {
	// Path is the file the keys were loaded from.
	Path string
	// Views holds one entry per line. Each view aliases buf.
	Views [][]byte
	// Bytes is the total number of key bytes, excluding newlines.
	Bytes int

	buf []byte
}

// Len returns the number of keys.
func (k *Keys) Len() int {
	return len(k.Views)
}

// Load reads the file at path.
func Load(path string) (*Keys, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "loading keys")
	}
	return Parse(path, buf), nil
}

// Parse splits buf into keys. The returned Keys retains buf.
func Parse(path string, buf []byte) *Keys {
	k := &Keys{Path: path, buf: buf}
	if len(buf) == 0 {
		return k
	}
	n := bytes.Count(buf, []byte{'\n'})
	if buf[len(buf)-1] != '\n' {
		n++
	}
	k.Views = make([][]byte, 0, n)
	for rest := buf; len(rest) > 0; {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			i = len(rest)
		}
		// Cap each view at its own length so an append by a consumer cannot
		// overwrite the following key.
		k.Views = append(k.Views, rest[:i:i])
		k.Bytes += i
		if i == len(rest) {
			break
		}
		rest = rest[i+1:]
	}
	return k
}
