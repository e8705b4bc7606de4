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
	"github.com/cockroachdb/probetable/internal/flow"
	"github.com/cockroachdb/probetable/internal/report"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runConfig struct {
	dataSize   string
	tableSize  string
	threads    int
	actions    []string
	inputs     []string
	stripes    int
	resultsDir string
	noResults  bool
	quiet      bool
}

func defaultRunConfig() runConfig {
	return runConfig{
		threads:    1,
		resultsDir: "results",
	}
}

// flowConfig converts the command line into a validated flow.Config.
func (c *runConfig) flowConfig() (flow.Config, error) {
	var cfg flow.Config
	var err error
	if c.dataSize == "" || c.tableSize == "" || len(c.actions) == 0 || len(c.inputs) == 0 {
		return cfg, errors.New("--data_size, --tsize, --flow and --input are required")
	}
	if cfg.DataSize, err = flow.ParseSize(c.dataSize); err != nil {
		return cfg, errors.Wrap(err, "--data_size")
	}
	if cfg.TableSize, err = flow.ParseSize(c.tableSize); err != nil {
		return cfg, errors.Wrap(err, "--tsize")
	}
	if cfg.Steps, err = flow.MakeSteps(c.actions, c.inputs); err != nil {
		return cfg, err
	}
	cfg.Threads = c.threads
	cfg.LockStripes = c.stripes
	if !c.noResults {
		cfg.ResultsDir = c.resultsDir
	}
	return cfg, cfg.Validate()
}

func makeRunCommand() *cobra.Command {
	config := defaultRunConfig()
	runCmdFunc := func(cmd *cobra.Command, args []string) error {
		cfg, err := config.flowConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		summary := &report.Summary{}
		sinks := []flow.Sink{summary}
		var results *report.ResultsWriter
		if cfg.ResultsDir != "" {
			results = report.NewResultsWriter(&cfg)
			sinks = append(sinks, results)
		}
		e, err := flow.NewExecutor(cfg, logger, sinks...)
		if err != nil {
			return err
		}
		runErr := e.Run(cmd.Context())
		if !config.quiet && len(summary.Steps) > 0 {
			summary.Render(cmd.OutOrStdout())
		}
		if runErr != nil {
			return runErr
		}
		if results != nil {
			logger.Info("wrote results", zap.String("path", results.Path()))
		}
		return nil
	}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a flow of bulk insert and delete steps against one table.",
		Long: `Run a flow of bulk insert and delete steps against one table.

Each action in --flow is applied to the keys of the input file at the same
position in --input. Sizes accept K and M suffixes (1K = 1000).`,
		Args: cobra.NoArgs,
		RunE: runCmdFunc,
	}
	cmd.Flags().StringVar(&config.dataSize, "data_size", config.dataSize, "nominal dataset size, used to label results (e.g. 150K)")
	cmd.Flags().IntVar(&config.threads, "threads", config.threads, "number of workers per step")
	cmd.Flags().StringVar(&config.tableSize, "tsize", config.tableSize, "number of table slots (e.g. 300K)")
	cmd.Flags().StringSliceVar(&config.actions, "flow", config.actions, "ordered actions, each insert or delete")
	cmd.Flags().StringSliceVar(&config.inputs, "input", config.inputs, "input key files, one per action")
	cmd.Flags().IntVar(&config.stripes, "lock-stripes", config.stripes, "number of striped slot locks (0 for one lock per slot)")
	cmd.Flags().StringVar(&config.resultsDir, "results-dir", config.resultsDir, "directory for the results file")
	cmd.Flags().BoolVar(&config.noResults, "no-results", config.noResults, "do not write a results file")
	cmd.Flags().BoolVar(&config.quiet, "quiet", config.quiet, "do not print the step summary")
	return cmd
}
