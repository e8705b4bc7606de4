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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/probetable"
	"github.com/cockroachdb/probetable/internal/flow"
	"github.com/cockroachdb/probetable/internal/keyfile"
	"github.com/stretchr/testify/require"
)

func insertStep(index int) *flow.StepResult {
	return &flow.StepResult{
		Index:      index,
		Step:       flow.Step{Op: flow.Insert, File: "in.txt"},
		Keys:       keyfile.Parse("in.txt", []byte("a\nb\na\n")),
		Elapsed:    12 * time.Millisecond,
		Collisions: 1,
		Inserts: []probetable.InsertOutcome{
			{Index: 0},
			{Index: 1, Collisions: 1},
			{Index: 0, Existed: true},
		},
		Stats: probetable.Stats{Size: 8, Occupied: 2, Empty: 6, LongestRun: 2},
	}
}

func deleteStep(index int) *flow.StepResult {
	return &flow.StepResult{
		Index:      index,
		Step:       flow.Step{Op: flow.Delete, File: "del.txt"},
		Keys:       keyfile.Parse("del.txt", []byte("a\nz\n")),
		Elapsed:    1500 * time.Microsecond,
		Collisions: 0,
		Deletes: []probetable.DeleteOutcome{
			{Index: 0, Removed: true},
			{Index: -1},
		},
		Stats: probetable.Stats{Size: 8, Occupied: 1, Tombstones: 1, Empty: 6, LongestRun: 2},
	}
}

const expectedResults = `Actions: insert
ExecutionTime: 12 ms
NumberOfHandledCollision: 1
a:0:F, b:1:F, a:0:T
Actions: delete
ExecutionTime: 1 ms
NumberOfHandledCollision: 0
a:0:T, z:F
`

func TestFileName(t *testing.T) {
	cfg := &flow.Config{
		DataSize:  150000,
		Threads:   8,
		TableSize: 2000000,
		Steps:     []flow.Step{{Op: flow.Insert}, {Op: flow.Delete}, {Op: flow.Insert}},
	}
	name := FileName(cfg)
	require.Equal(t, "Results_150K_8_2M_insert_delete_insert.txt", name)

	f, err := ParseFileName(name)
	require.NoError(t, err)
	require.Equal(t, 150000, f.DataSize)
	require.Equal(t, 8, f.Threads)
	require.Equal(t, 2000000, f.TableSize)
	require.Equal(t, cfg.Ops(), f.Ops)

	for _, bad := range []string{
		"notes.txt",
		"Results_1K_8_2K.txt",
		"Results_1K_x_2K_insert.txt",
		"Results_1K_8_2K_upsert.txt",
	} {
		_, err := ParseFileName(bad)
		require.Error(t, err, bad)
	}
}

func TestWriteStep(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, WriteStep(&buf, insertStep(0)))
	require.NoError(t, WriteStep(&buf, deleteStep(1)))
	require.Equal(t, expectedResults, buf.String())

	steps, err := ReadStepRecords(strings.NewReader(buf.String()))
	require.NoError(t, err)
	require.Equal(t, []StepRecord{
		{Op: flow.Insert, ElapsedMS: 12, Collisions: 1},
		{Op: flow.Delete, ElapsedMS: 1, Collisions: 0},
	}, steps)
}

// Entry lists are skipped whole, so keys that look like separators or
// record headers do not disturb the records that follow.
func TestReadStepRecordsOddKeys(t *testing.T) {
	r := &flow.StepResult{
		Step:       flow.Step{Op: flow.Insert},
		Keys:       keyfile.Parse("odd.txt", []byte("a, b\nActions: delete\n\n")),
		Elapsed:    3 * time.Millisecond,
		Collisions: 2,
		Inserts:    []probetable.InsertOutcome{{Index: 0}, {Index: 1, Collisions: 1}, {Index: 2, Collisions: 1}},
	}
	var buf strings.Builder
	require.NoError(t, WriteStep(&buf, r))
	require.NoError(t, WriteStep(&buf, deleteStep(1)))

	steps, err := ReadStepRecords(strings.NewReader(buf.String()))
	require.NoError(t, err)
	require.Equal(t, []StepRecord{
		{Op: flow.Insert, ElapsedMS: 3, Collisions: 2},
		{Op: flow.Delete, ElapsedMS: 1, Collisions: 0},
	}, steps)
}

func TestReadStepRecordsErrors(t *testing.T) {
	for _, in := range []string{
		"ExecutionTime: 1 ms\n",
		"Actions: upsert\n",
		"Actions: insert\nExecutionTime: x ms\n",
		"Actions: insert\nNumberOfHandledCollision: -1\n",
		"Actions: insert\nbogus\n",
	} {
		_, err := ReadStepRecords(strings.NewReader(in))
		require.Error(t, err, in)
	}
}

func TestResultsWriter(t *testing.T) {
	dir := t.TempDir()
	cfg := &flow.Config{
		DataSize:   3,
		Threads:    2,
		TableSize:  8,
		Steps:      []flow.Step{{Op: flow.Insert}, {Op: flow.Delete}},
		ResultsDir: filepath.Join(dir, "results"),
	}

	// A stale file from an earlier run is truncated by the first step.
	w := NewResultsWriter(cfg)
	require.NoError(t, os.MkdirAll(cfg.ResultsDir, 0755))
	require.NoError(t, os.WriteFile(w.Path(), []byte("stale\n"), 0644))

	require.NoError(t, w.StepDone(insertStep(0)))
	require.NoError(t, w.StepDone(deleteStep(1)))

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	require.Equal(t, expectedResults, string(data))

	// A second flow with more threads sorts after the first.
	cfg2 := *cfg
	cfg2.Threads = 4
	require.NoError(t, NewResultsWriter(&cfg2).StepDone(insertStep(0)))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ResultsDir, "README"), nil, 0644))

	files, err := ReadDir(cfg.ResultsDir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, 2, files[0].Threads)
	require.Equal(t, int64(13), files[0].TotalMS())
	require.Equal(t, uint64(1), files[0].TotalCollisions())
	require.Len(t, files[0].Steps, 2)
	require.Equal(t, 4, files[1].Threads)
	require.Len(t, files[1].Steps, 1)

	var buf strings.Builder
	RenderFiles(&buf, files)
	out := buf.String()
	require.Contains(t, out, "time (ms)")
	require.Contains(t, out, "insert,delete")
	require.Contains(t, out, "(2 files)")
}

func TestSummary(t *testing.T) {
	var s Summary
	require.NoError(t, s.StepDone(insertStep(0)))
	require.NoError(t, s.StepDone(deleteStep(2)))
	require.Len(t, s.Steps, 2)

	ins := s.Steps[0]
	require.Equal(t, flow.Insert, ins.Op)
	require.Equal(t, 3, ins.Keys)
	require.Equal(t, uint64(1), ins.Collisions)
	require.Equal(t, int64(0), ins.P50)
	require.Equal(t, int64(1), ins.Max)
	require.Equal(t, 0.25, ins.LoadFactor)

	del := s.Steps[1]
	require.Equal(t, 2, del.Index)
	require.Equal(t, int64(0), del.Max)
	require.Equal(t, 1, del.Tombstones)

	var buf strings.Builder
	s.Render(&buf)
	out := buf.String()
	require.Contains(t, out, "collisions")
	require.Contains(t, out, "insert")
	require.Contains(t, out, "delete")
	require.Contains(t, out, "25.0%")
}
