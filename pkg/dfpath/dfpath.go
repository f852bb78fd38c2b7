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

package dfpath

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Dfpath is the interface used for init project path.
type Dfpath interface {
	WorkHome() string
	WorkHomeMode() fs.FileMode
	LogDir() string
	DataDir() string
	OutputDir() string
	OutputDirMode() fs.FileMode
	LockPath() string
}

// Dfpath provides init project path function.
type dfpath struct {
	workHome      string
	workHomeMode  fs.FileMode
	logDir        string
	dataDir       string
	outputDir     string
	outputDirMode fs.FileMode
	lockPath      string
}

// Cache of the dfpath.
var cache struct {
	sync.Once
	d   *dfpath
	err *multierror.Error
}

// Option is a functional option for configuring the dfpath.
type Option func(d *dfpath)

// WithWorkHome set the workhome directory.
func WithWorkHome(dir string) Option {
	return func(d *dfpath) {
		d.workHome = dir
	}
}

// WithWorkHomeMode sets the workHome directory mode
func WithWorkHomeMode(mode fs.FileMode) Option {
	return func(d *dfpath) {
		d.workHomeMode = mode
	}
}

// WithLogDir set the log directory.
func WithLogDir(dir string) Option {
	return func(d *dfpath) {
		d.logDir = dir
	}
}

// WithDataDir set the dataset directory.
func WithDataDir(dir string) Option {
	return func(d *dfpath) {
		d.dataDir = dir
	}
}

// WithOutputDir set the directory holding results and snapshots.
func WithOutputDir(dir string) Option {
	return func(d *dfpath) {
		d.outputDir = dir
	}
}

// WithOutputDirMode sets the outputDir mode
func WithOutputDirMode(mode fs.FileMode) Option {
	return func(d *dfpath) {
		d.outputDirMode = mode
	}
}

// New returns a new dfpath interface.
func New(options ...Option) (Dfpath, error) {
	cache.Do(func() {
		d := &dfpath{
			workHome:      DefaultWorkHome,
			workHomeMode:  DefaultWorkHomeMode,
			logDir:        DefaultLogDir,
			dataDir:       DefaultDataDir,
			outputDir:     DefaultOutputDir,
			outputDirMode: DefaultOutputDirMode,
		}

		for _, opt := range options {
			opt(d)
		}

		d.lockPath = filepath.Join(d.outputDir, ".lock")

		// Create workhome directory.
		if err := os.MkdirAll(d.workHome, d.workHomeMode); err != nil {
			cache.err = multierror.Append(cache.err, err)
		}

		// Create log directory.
		if err := os.MkdirAll(d.logDir, fs.FileMode(0700)); err != nil {
			cache.err = multierror.Append(cache.err, err)
		}

		// Create output directory.
		if err := os.MkdirAll(d.outputDir, d.outputDirMode); err != nil {
			cache.err = multierror.Append(cache.err, err)
		}

		cache.d = d
	})

	if cache.err.ErrorOrNil() != nil {
		return nil, cache.err
	}

	d := *cache.d
	return &d, nil
}

func (d *dfpath) WorkHome() string {
	return d.workHome
}

func (d *dfpath) WorkHomeMode() fs.FileMode {
	return d.workHomeMode
}

func (d *dfpath) LogDir() string {
	return d.logDir
}

func (d *dfpath) DataDir() string {
	return d.dataDir
}

func (d *dfpath) OutputDir() string {
	return d.outputDir
}

func (d *dfpath) OutputDirMode() fs.FileMode {
	return d.outputDirMode
}

func (d *dfpath) LockPath() string {
	return d.lockPath
}
