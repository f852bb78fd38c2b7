/*
 *     Copyright 2023 The Dragonfly Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cmd

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"d7y.io/ddgtrainer/pkg/msa"
)

var (
	sampleNSeq int
	sampleSeed int64
)

var sampleCmd = &cobra.Command{
	Use:               "sample <file>",
	Short:             "print a sampled alignment",
	Long:              `sample reads an a3m or fasta alignment and prints the rows a training step would draw from it.`,
	Args:              cobra.ExactArgs(1),
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	RunE: func(cmd *cobra.Command, args []string) error {
		seed := sampleSeed
		if !cmd.Flags().Changed("seed") {
			seed = time.Now().UnixNano()
		}

		sampler := msa.NewSampler(sampleNSeq, rand.New(rand.NewSource(seed)))
		alignment, err := sampler.Sample(args[0])
		if err != nil {
			return err
		}

		return printAlignment(cmd.OutOrStdout(), alignment)
	},
}

func init() {
	flags := sampleCmd.Flags()
	flags.IntVar(&sampleNSeq, "nseq", 8, "number of rows including the reference row")
	flags.Int64Var(&sampleSeed, "seed", 0, "seed of the row sampling, random when unset")
}

func printAlignment(w io.Writer, alignment *msa.Alignment) error {
	for _, record := range alignment.Records {
		if _, err := fmt.Fprintf(w, ">%s\n%s\n", record.Description, record.Sequence); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "# %d rows, sampled %v\n", alignment.N, alignment.Indices)
	return err
}
