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

package main

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/probetable/internal/report"
	"github.com/spf13/cobra"
)

func makeSummarizeCommand() *cobra.Command {
	runCmdFunc := func(cmd *cobra.Command, args []string) error {
		dir := "results"
		if len(args) > 0 {
			dir = args[0]
		}
		files, err := report.ReadDir(dir)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return errors.Newf("no results files found in %s", dir)
		}
		report.RenderFiles(cmd.OutOrStdout(), files)
		return nil
	}

	return &cobra.Command{
		Use:   "summarize [results-dir]",
		Short: "Summarize the results files written by run.",
		Long: `Summarize the results files written by run.

Prints the total execution time and handled collisions of every results file
in the directory (default "results"), ordered by data size, thread count and
table size.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCmdFunc,
	}
}
