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
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"d7y.io/ddgtrainer/cmd/dependency"
	logger "d7y.io/ddgtrainer/internal/dflog"
	"d7y.io/ddgtrainer/pkg/dfpath"
	"d7y.io/ddgtrainer/trainer"
	"d7y.io/ddgtrainer/trainer/config"
	"d7y.io/ddgtrainer/version"
)

const name = "ddgtrainer"

var (
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   name,
	Short: "distributed ddG regression trainer",
	Long: `ddgtrainer trains a model predicting the stability change of point mutations. It shards the
training table across workers, averages gradients after every step, evaluates every validation split
after every epoch, keeps the snapshot with the lowest validation MAE and renders a summary of the run.`,
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

		ff := dependency.InitMonitor(cfg.Verbose, cfg.PProfPort)
		defer ff()

		if err := svr.Serve(); err != nil {
			return err
		}

		dependency.SetupQuitSignalHandler(cancel)
		return svr.Train(ctx)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func init() {
	// Initialize default trainer config.
	cfg = config.New()

	// Initialize command and config.
	dependency.InitCommandAndConfig(rootCmd, true, cfg)
	rootCmd.AddCommand(evaluateCmd, sampleCmd)
}

// initServer prepares the config, paths and loggers shared by the commands
// and builds the server.
func initServer(ctx context.Context) (*trainer.Server, error) {
	// Convert config.
	if err := cfg.Convert(); err != nil {
		return nil, err
	}

	// Validate config.
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Initialize dfpath.
	d, err := initDfpath(&cfg.Server)
	if err != nil {
		return nil, err
	}

	rotateConfig := logger.LogRotateConfig{
		MaxSize:    cfg.Server.LogMaxSize,
		MaxAge:     cfg.Server.LogMaxAge,
		MaxBackups: cfg.Server.LogMaxBackups,
	}

	// Initialize logger.
	if err := logger.InitTrainer(cfg.Verbose, cfg.Console, d.LogDir(), cfg.Distributed.Rank, rotateConfig); err != nil {
		return nil, fmt.Errorf("init trainer logger: %w", err)
	}
	logger.RedirectStdoutAndStderr(cfg.Console, path.Join(d.LogDir(), name))

	logger.Infof("version:\n%s", version.Version())
	logger.WithJob(cfg.Distributed.JobID).Infof("backend %s with %d workers", cfg.Distributed.Backend, cfg.Distributed.WorldSize)

	return trainer.New(ctx, cfg, d)
}

func initDfpath(cfg *config.ServerConfig) (dfpath.Dfpath, error) {
	var options []dfpath.Option
	if cfg.WorkHome != "" {
		options = append(options, dfpath.WithWorkHome(cfg.WorkHome))
	}

	if cfg.LogDir != "" {
		options = append(options, dfpath.WithLogDir(cfg.LogDir))
	}

	if cfg.OutputDir != "" {
		options = append(options, dfpath.WithOutputDir(cfg.OutputDir))
	}

	return dfpath.New(options...)
}
