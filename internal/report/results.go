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

// Package report writes and reads flow results.
//
// A results file holds one record per executed step:
//
//	Actions: insert
//	ExecutionTime: 12 ms
//	NumberOfHandledCollision: 3402
//	k1:17:F, k2:4:F, k1:17:T
//
// Insert entries are key:index:existed. Delete entries are key:index:T for
// a removed key and key:F for a key that was not found.
package report

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/probetable/internal/flow"
)

const (
	fileNamePrefix = "Results"
	fileNameSuffix = ".txt"
)

// FileName returns the results file name for a flow, for example
// Results_150K_8_300K_insert_delete.txt.
func FileName(cfg *flow.Config) string {
	parts := []string{
		fileNamePrefix,
		flow.FormatSize(cfg.DataSize),
		strconv.Itoa(cfg.Threads),
		flow.FormatSize(cfg.TableSize),
	}
	for _, op := range cfg.Ops() {
		parts = append(parts, op.String())
	}
	return strings.Join(parts, "_") + fileNameSuffix
}

// ResultsWriter is a flow.Sink that records every step in the flow's
// results file. The first step written truncates the file and later steps
// append to it.
type ResultsWriter struct {
	path  string
	wrote bool
}

var _ flow.Sink = (*ResultsWriter)(nil)

// NewResultsWriter returns a writer for cfg's results file in cfg.ResultsDir.
func NewResultsWriter(cfg *flow.Config) *ResultsWriter {
	return &ResultsWriter{path: filepath.Join(cfg.ResultsDir, FileName(cfg))}
}

// Path returns the results file path.
func (w *ResultsWriter) Path() string {
	return w.path
}

// StepDone implements flow.Sink.
func (w *ResultsWriter) StepDone(r *flow.StepResult) (err error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if !w.wrote {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
			return errors.Wrap(err, "creating results directory")
		}
	}
	f, err := os.OpenFile(w.path, flags, 0644)
	if err != nil {
		return errors.Wrap(err, "opening results file")
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "closing results file")
		}
	}()
	w.wrote = true

	return WriteStep(f, r)
}

// WriteStep writes the record for one step.
func WriteStep(w io.Writer, r *flow.StepResult) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("Actions: ")
	bw.WriteString(r.Step.Op.String())
	bw.WriteString("\nExecutionTime: ")
	bw.WriteString(strconv.FormatInt(r.Elapsed.Milliseconds(), 10))
	bw.WriteString(" ms\nNumberOfHandledCollision: ")
	bw.WriteString(strconv.FormatUint(r.Collisions, 10))
	bw.WriteByte('\n')

	var buf []byte
	for i, key := range r.Keys.Views {
		buf = buf[:0]
		if i > 0 {
			buf = append(buf, ", "...)
		}
		buf = append(buf, key...)
		switch r.Step.Op {
		case flow.Insert:
			o := r.Inserts[i]
			buf = append(buf, ':')
			buf = strconv.AppendInt(buf, int64(o.Index), 10)
			buf = append(buf, ':', flag(o.Existed))
		case flow.Delete:
			o := r.Deletes[i]
			if o.Removed {
				buf = append(buf, ':')
				buf = strconv.AppendInt(buf, int64(o.Index), 10)
			}
			buf = append(buf, ':', flag(o.Removed))
		}
		if _, err := bw.Write(buf); err != nil {
			return errors.Wrap(err, "writing results")
		}
	}
	bw.WriteByte('\n')
	return errors.Wrap(bw.Flush(), "writing results")
}

func flag(b bool) byte {
	if b {
		return 'T'
	}
	return 'F'
}
