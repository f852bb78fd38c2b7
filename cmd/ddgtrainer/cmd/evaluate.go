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
	"context"

	"github.com/spf13/cobra"

	"d7y.io/ddgtrainer/cmd/dependency"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "evaluate a snapshot on the validation splits",
	Long: `evaluate loads model.snapshot, or the best snapshot of the output directory when it is unset,
and writes the predictions of every validation split next to the metrics logs.`,
	Args:              cobra.NoArgs,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		svr, err := initServer(ctx)
		if err != nil {
			return err
		}
		defer svr.Stop()

		dependency.SetupQuitSignalHandler(cancel)
		return svr.Evaluate(ctx)
	},
}
