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
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/codahale/hdrhistogram"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/probetable/internal/flow"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// StepSummary condenses one step for display.
type StepSummary struct {
	Index      int
	Op         flow.Op
	Keys       int
	Elapsed    time.Duration
	Collisions uint64
	// P50, P99 and Max describe the distribution of per-key collisions.
	P50, P99, Max int64
	Occupied      int
	Tombstones    int
	LoadFactor    float64
}

// Summary is a flow.Sink that accumulates a StepSummary per step.
type Summary struct {
	Steps []StepSummary
}

var _ flow.Sink = (*Summary)(nil)

// StepDone implements flow.Sink.
func (s *Summary) StepDone(r *flow.StepResult) error {
	h, err := collisionHistogram(r)
	if err != nil {
		return err
	}
	s.Steps = append(s.Steps, StepSummary{
		Index:      r.Index,
		Op:         r.Step.Op,
		Keys:       r.Keys.Len(),
		Elapsed:    r.Elapsed,
		Collisions: r.Collisions,
		P50:        h.ValueAtQuantile(50),
		P99:        h.ValueAtQuantile(99),
		Max:        h.Max(),
		Occupied:   r.Stats.Occupied,
		Tombstones: r.Stats.Tombstones,
		LoadFactor: r.Stats.LoadFactor(),
	})
	return nil
}

// collisionHistogram records the collisions of every key in a step. Values
// beyond the trackable range are clamped to it.
func collisionHistogram(r *flow.StepResult) (*hdrhistogram.Histogram, error) {
	highest := 4 * int64(max(r.Stats.Size, 2))
	h := hdrhistogram.New(1, highest, 2)
	record := func(v int) error {
		if err := h.RecordValue(min(int64(v), highest)); err != nil {
			return errors.Wrap(err, "recording collisions")
		}
		return nil
	}
	for i := range r.Inserts {
		if err := record(r.Inserts[i].Collisions); err != nil {
			return nil, err
		}
	}
	for i := range r.Deletes {
		if err := record(r.Deletes[i].Collisions); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Render writes the step summaries as a table.
func (s *Summary) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetHeader([]string{
		"step", "op", "keys", "elapsed", "collisions", "p50", "p99", "max", "occupied", "tombstones", "load",
	})
	for _, st := range s.Steps {
		table.Append([]string{
			strconv.Itoa(st.Index),
			st.Op.String(),
			humanize.Comma(int64(st.Keys)),
			st.Elapsed.Round(time.Microsecond).String(),
			humanize.Comma(int64(st.Collisions)),
			strconv.FormatInt(st.P50, 10),
			strconv.FormatInt(st.P99, 10),
			strconv.FormatInt(st.Max, 10),
			humanize.Comma(int64(st.Occupied)),
			humanize.Comma(int64(st.Tombstones)),
			fmt.Sprintf("%.1f%%", 100*st.LoadFactor),
		})
	}
	table.Render()
}

// RenderFiles writes one row per results file with its total execution
// time and collisions.
func RenderFiles(w io.Writer, files []ResultsFile) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{
		"data size", "threads", "table size", "flow", "steps", "time (ms)", "collisions",
	})
	for i := range files {
		f := &files[i]
		ops := make([]string, len(f.Ops))
		for j, op := range f.Ops {
			ops[j] = op.String()
		}
		table.Append([]string{
			flow.FormatSize(f.DataSize),
			strconv.Itoa(f.Threads),
			flow.FormatSize(f.TableSize),
			strings.Join(ops, ","),
			strconv.Itoa(len(f.Steps)),
			humanize.Comma(f.TotalMS()),
			humanize.Comma(int64(f.TotalCollisions())),
		})
	}
	table.Render()
	fmt.Fprintf(w, "(%d file%s)\n", len(files), plural(len(files)))
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
