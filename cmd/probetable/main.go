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

// probetable drives flows of bulk insert and delete steps against a
// concurrent open-addressing key table and reports their cost.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var verbose bool

func makeProbetableCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "probetable [command] (flags)",
		Short: "probetable benchmarks a concurrent open-addressing key table.",
		Long: `probetable benchmarks a concurrent open-addressing key table.

Typical usage:
    probetable gen keys.txt --count=150K --dup-ratio=0.1
        Write 150000 random keys, roughly 10% of them repeats, to keys.txt.

    probetable run --data_size=150K --threads=8 --tsize=300K \
        --flow=insert,delete --input=keys.txt,keys.txt
        Insert the keys then delete them again using 8 workers per step and
        record the results in results/Results_150K_8_300K_insert_delete.txt.

    probetable summarize results
        Print the total time and collisions of every results file.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	command.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable development logging")

	command.AddCommand(makeRunCommand())
	command.AddCommand(makeGenCommand())
	command.AddCommand(makeSummarizeCommand())
	return command
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	return cfg.Build()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := makeProbetableCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %+v\n", err)
		stop()
		os.Exit(1)
	}
}
