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

package report

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/probetable/internal/flow"
)

// StepRecord is one step read back from a results file.
type StepRecord struct {
	Op         flow.Op
	ElapsedMS  int64
	Collisions uint64
}

// ResultsFile is a parsed results file.
type ResultsFile struct {
	Path      string
	DataSize  int
	Threads   int
	TableSize int
	Ops       []flow.Op
	Steps     []StepRecord
}

// TotalMS returns the summed execution time of every step.
func (f *ResultsFile) TotalMS() int64 {
	var n int64
	for _, s := range f.Steps {
		n += s.ElapsedMS
	}
	return n
}

// TotalCollisions returns the summed collisions of every step.
func (f *ResultsFile) TotalCollisions() uint64 {
	var n uint64
	for _, s := range f.Steps {
		n += s.Collisions
	}
	return n
}

// ParseFileName extracts the flow parameters encoded in a results file
// name.
func ParseFileName(name string) (ResultsFile, error) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, fileNamePrefix+"_") || !strings.HasSuffix(base, fileNameSuffix) {
		return ResultsFile{}, errors.Newf("%q is not a results file name", base)
	}
	parts := strings.Split(strings.TrimSuffix(base, fileNameSuffix), "_")
	if len(parts) < 5 {
		return ResultsFile{}, errors.Newf("%q: too few fields", base)
	}
	f := ResultsFile{Path: name}
	var err error
	if f.DataSize, err = flow.ParseSize(parts[1]); err != nil {
		return ResultsFile{}, errors.Wrapf(err, "%q: data size", base)
	}
	if f.Threads, err = strconv.Atoi(parts[2]); err != nil {
		return ResultsFile{}, errors.Wrapf(err, "%q: threads", base)
	}
	if f.TableSize, err = flow.ParseSize(parts[3]); err != nil {
		return ResultsFile{}, errors.Wrapf(err, "%q: table size", base)
	}
	for _, p := range parts[4:] {
		op, err := flow.ParseOp(p)
		if err != nil {
			return ResultsFile{}, errors.Wrapf(err, "%q", base)
		}
		f.Ops = append(f.Ops, op)
	}
	return f, nil
}

// ReadStepRecords parses the step records of a results file.
func ReadStepRecords(r io.Reader) ([]StepRecord, error) {
	// Entry lines hold every key of a step and can be very long, so read
	// whole lines rather than scanning with a bounded token size.
	br := bufio.NewReader(r)
	var steps []StepRecord
	var cur *StepRecord
	expectEntries := false
	for lineno := 1; ; lineno++ {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, errors.Wrap(err, "reading results")
		}
		if line == "" && err == io.EOF {
			break
		}
		line = strings.TrimSuffix(line, "\n")

		switch {
		case expectEntries:
			// The entry list is not parsed: keys are arbitrary bytes and may
			// contain the separator.
			expectEntries = false
		case strings.HasPrefix(line, "Actions: "):
			op, perr := flow.ParseOp(strings.TrimPrefix(line, "Actions: "))
			if perr != nil {
				return nil, errors.Wrapf(perr, "line %d", lineno)
			}
			steps = append(steps, StepRecord{Op: op})
			cur = &steps[len(steps)-1]
		case cur == nil:
			return nil, errors.Newf("line %d: expected Actions record", lineno)
		case strings.HasPrefix(line, "ExecutionTime: "):
			v := strings.TrimSuffix(strings.TrimPrefix(line, "ExecutionTime: "), " ms")
			ms, perr := strconv.ParseInt(v, 10, 64)
			if perr != nil {
				return nil, errors.Wrapf(perr, "line %d", lineno)
			}
			cur.ElapsedMS = ms
		case strings.HasPrefix(line, "NumberOfHandledCollision: "):
			n, perr := strconv.ParseUint(strings.TrimPrefix(line, "NumberOfHandledCollision: "), 10, 64)
			if perr != nil {
				return nil, errors.Wrapf(perr, "line %d", lineno)
			}
			cur.Collisions = n
			expectEntries = true
		case line == "":
		default:
			return nil, errors.Newf("line %d: unexpected content", lineno)
		}

		if err == io.EOF {
			break
		}
	}
	return steps, nil
}

// ReadFile parses the results file at path.
func ReadFile(path string) (ResultsFile, error) {
	f, err := ParseFileName(path)
	if err != nil {
		return ResultsFile{}, err
	}
	file, err := os.Open(path)
	if err != nil {
		return ResultsFile{}, errors.Wrap(err, "opening results file")
	}
	defer file.Close()
	if f.Steps, err = ReadStepRecords(file); err != nil {
		return ResultsFile{}, errors.Wrapf(err, "%s", path)
	}
	return f, nil
}

// ReadDir parses every results file in dir, sorted by data size, thread
// count and table size. Files whose name does not parse are skipped.
func ReadDir(dir string) ([]ResultsFile, error) {
	matches, err := filepath.Glob(filepath.Join(dir, fileNamePrefix+"_*"+fileNameSuffix))
	if err != nil {
		return nil, errors.Wrap(err, "listing results")
	}
	var files []ResultsFile
	for _, path := range matches {
		if _, err := ParseFileName(path); err != nil {
			continue
		}
		f, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		a, b := &files[i], &files[j]
		if a.DataSize != b.DataSize {
			return a.DataSize < b.DataSize
		}
		if a.Threads != b.Threads {
			return a.Threads < b.Threads
		}
		if a.TableSize != b.TableSize {
			return a.TableSize < b.TableSize
		}
		return a.Path < b.Path
	})
	return files, nil
}
