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
	"bufio"
	"io"
	"math/rand/v2"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/probetable/internal/flow"
	"github.com/spf13/cobra"
)

const keyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type genConfig struct {
	count    string
	dupRatio float64
	minLen   int
	maxLen   int
	seed     uint64
}

func defaultGenConfig() genConfig {
	return genConfig{
		count:  "1K",
		minLen: 8,
		maxLen: 16,
		seed:   1,
	}
}

func (c *genConfig) validate() (int, error) {
	n, err := flow.ParseSize(c.count)
	if err != nil {
		return 0, errors.Wrap(err, "--count")
	}
	switch {
	case c.dupRatio < 0 || c.dupRatio >= 1:
		return 0, errors.Newf("--dup-ratio must be in [0, 1), got %v", c.dupRatio)
	case c.minLen < 1 || c.maxLen < c.minLen:
		return 0, errors.Newf("invalid key length range [%d, %d]", c.minLen, c.maxLen)
	}
	return n, nil
}

// generateKeys writes n newline-terminated keys to w. Each key after the
// first repeats a previously written key with probability dupRatio.
func generateKeys(w io.Writer, n int, c genConfig) error {
	rng := rand.New(rand.NewPCG(c.seed, c.seed))
	bw := bufio.NewWriter(w)
	var written [][]byte
	key := make([]byte, c.maxLen)
	for i := 0; i < n; i++ {
		if len(written) > 0 && rng.Float64() < c.dupRatio {
			bw.Write(written[rng.IntN(len(written))])
			bw.WriteByte('\n')
			continue
		}
		k := key[:c.minLen+rng.IntN(c.maxLen-c.minLen+1)]
		for j := range k {
			k[j] = keyAlphabet[rng.IntN(len(keyAlphabet))]
		}
		if c.dupRatio > 0 {
			written = append(written, append([]byte(nil), k...))
		}
		bw.Write(k)
		bw.WriteByte('\n')
	}
	return errors.Wrap(bw.Flush(), "writing keys")
}

func makeGenCommand() *cobra.Command {
	config := defaultGenConfig()
	runCmdFunc := func(cmd *cobra.Command, args []string) (err error) {
		n, err := config.validate()
		if err != nil {
			return err
		}
		f, err := os.Create(args[0])
		if err != nil {
			return errors.Wrap(err, "creating key file")
		}
		defer func() {
			if cerr := f.Close(); err == nil && cerr != nil {
				err = errors.Wrap(cerr, "closing key file")
			}
		}()
		return generateKeys(f, n, config)
	}

	cmd := &cobra.Command{
		Use:   "gen <output-file>",
		Short: "Generate a file of random keys.",
		Long: `Generate a file of random alphanumeric keys, one per line.

The same seed always produces the same file.`,
		Args: cobra.ExactArgs(1),
		RunE: runCmdFunc,
	}
	cmd.Flags().StringVar(&config.count, "count", config.count, "number of keys to write (e.g. 150K)")
	cmd.Flags().Float64Var(&config.dupRatio, "dup-ratio", config.dupRatio, "probability that a key repeats an earlier one")
	cmd.Flags().IntVar(&config.minLen, "min-len", config.minLen, "minimum key length")
	cmd.Flags().IntVar(&config.maxLen, "max-len", config.maxLen, "maximum key length")
	cmd.Flags().Uint64Var(&config.seed, "seed", config.seed, "random seed")
	return cmd
}
