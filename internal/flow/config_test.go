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

package flow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	testCases := []struct {
		in       string
		expected int
	}{
		{"0", 0},
		{"150", 150},
		{"150K", 150000},
		{"150k", 150000},
		{"2M", 2000000},
		{"1.5K", 1500},
	}
	for _, c := range testCases {
		t.Run(c.in, func(t *testing.T) {
			n, err := ParseSize(c.in)
			require.NoError(t, err)
			require.Equal(t, c.expected, n)
		})
	}

	for _, in := range []string{"", "K", "-1", "12Q"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseSize(in)
			require.Error(t, err)
		})
	}
}

func TestFormatSize(t *testing.T) {
	testCases := []struct {
		n        int
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1K"},
		{150000, "150K"},
		{1500, "1500"},
		{2000000, "2M"},
		{2500000, "2500K"},
	}
	for _, c := range testCases {
		t.Run(c.expected, func(t *testing.T) {
			require.Equal(t, c.expected, FormatSize(c.n))
			n, err := ParseSize(c.expected)
			require.NoError(t, err)
			require.Equal(t, c.n, n)
		})
	}
}

func TestMakeSteps(t *testing.T) {
	steps, err := MakeSteps([]string{"insert", "delete"}, []string{"a.txt", "b.txt"})
	require.NoError(t, err)
	require.Equal(t, []Step{{Insert, "a.txt"}, {Delete, "b.txt"}}, steps)

	_, err = MakeSteps([]string{"insert"}, []string{"a.txt", "b.txt"})
	require.ErrorContains(t, err, "must match")

	_, err = MakeSteps([]string{"upsert"}, []string{"a.txt"})
	require.ErrorContains(t, err, "unknown action")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DataSize:  1000,
			Threads:   4,
			TableSize: 2000,
			Steps:     []Step{{Insert, "a.txt"}},
		}
	}
	cfg := valid()
	require.NoError(t, cfg.Validate())

	cfg.Steps = make([]Step, 16)
	for i := range cfg.Steps {
		cfg.Steps[i] = Step{Delete, fmt.Sprintf("%d.txt", i)}
	}
	require.NoError(t, cfg.Validate())
	cfg.Steps = append(cfg.Steps, Step{Insert, "16.txt"})
	require.ErrorContains(t, cfg.Validate(), "too many flow actions: 17 (max 16)")

	manySteps := make([]Step, MaxSteps+1)
	for i := range manySteps {
		manySteps[i] = Step{Insert, fmt.Sprintf("%d.txt", i)}
	}

	testCases := []struct {
		name   string
		mutate func(c *Config)
		errStr string
	}{
		{"threads", func(c *Config) { c.Threads = 0 }, "thread count"},
		{"table-size", func(c *Config) { c.TableSize = 0 }, "table size"},
		{"data-size", func(c *Config) { c.DataSize = -1 }, "data size"},
		{"stripes", func(c *Config) { c.LockStripes = -1 }, "lock stripe"},
		{"no-steps", func(c *Config) { c.Steps = nil }, "at least one action"},
		{"too-many-steps", func(c *Config) { c.Steps = manySteps }, "too many flow actions"},
		{"bad-op", func(c *Config) { c.Steps[0].Op = "upsert" }, "unknown action"},
		{"no-file", func(c *Config) { c.Steps[0].File = "" }, "missing input file"},
	}
	for _, c := range testCases {
		t.Run(c.name, func(t *testing.T) {
			cfg := valid()
			c.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), c.errStr)
		})
	}
}
