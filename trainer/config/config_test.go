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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"

	"d7y.io/ddgtrainer/cmd/dependency/base"
	"d7y.io/ddgtrainer/pkg/dataset"
	"d7y.io/ddgtrainer/pkg/nn"
)

var (
	mockDataConfig = DataConfig{
		Dir:     "foo",
		Variant: dataset.KindSequence,
		Train: SplitConfig{
			Name: "train",
			Path: "train.csv",
		},
		Validations: []SplitConfig{
			{Name: "ssym", Path: "ssym.csv"},
		},
		MaxLength:      DefaultMaxLength,
		MaxTokens:      DefaultMaxTokens,
		PrefetchFactor: DefaultPrefetchFactor,
	}

	mockRedisConfig = RedisConfig{
		Addrs: []string{"127.0.0.1:6379"},
	}

	mockObjectStorageConfig = ObjectStorageConfig{
		Enable:   true,
		Name:     ObjectStorageOSS,
		Endpoint: "127.0.0.1",
		Bucket:   "foo",
	}
)

func TestConfig_Load(t *testing.T) {
	config := &Config{
		Options: base.Options{
			Console:   true,
			Verbose:   true,
			PProfPort: 6060,
		},
		Server: ServerConfig{
			WorkHome:      "foo",
			LogDir:        "foo",
			LogMaxSize:    512,
			LogMaxAge:     5,
			LogMaxBackups: 3,
			OutputDir:     "foo",
		},
		Data: DataConfig{
			Dir:     "datasets/S1465",
			Variant: dataset.KindTokenized,
			Train: SplitConfig{
				Name: "s1465",
				Path: "train/db_s1465.csv",
			},
			Validations: []SplitConfig{
				{Name: "ssym", Path: "test/db_ssym.csv"},
				{Name: "p53", Path: "test/db_p53.csv"},
			},
			MaxLength:      1024,
			MaxTokens:      15000,
			NSeq:           14,
			NumWorkers:     4,
			PrefetchFactor: 2,
			Shuffle:        true,
		},
		Model: ModelConfig{
			Name:     "linear",
			Device:   nn.DeviceTypeCUDA,
			Snapshot: "snapshots/snapshot.pt",
		},
		Training: TrainingConfig{
			LearningRate: 0.001,
			MaxEpochs:    10,
			Loss:         "L1",
			Optimizer:    "AdamW",
			WeightDecay:  0.01,
			Momentum:     0.9,
			Scheduler: SchedulerConfig{
				Name:        "step",
				StepSize:    100,
				Gamma:       0.5,
				WarmupSteps: 10,
				MinLR:       0.0001,
			},
			BatchSize:        1,
			MaxGradNorm:      0.1,
			ClipAfterUnscale: true,
			MixedPrecision:   false,
			Seed:             7,
			Progress:         false,
		},
		Distributed: DistributedConfig{
			Backend:   BackendRedis,
			Rank:      1,
			LocalRank: 1,
			WorldSize: 2,
			JobID:     "foo",
			InboxTTL:  5 * time.Minute,
			Redis: RedisConfig{
				Addrs:      []string{"127.0.0.1:6379"},
				MasterName: "master",
				Username:   "foo",
				Password:   "bar",
				DB:         1,
			},
		},
		Metrics: MetricsConfig{
			Enable: true,
			Addr:   ":8000",
		},
		ObjectStorage: ObjectStorageConfig{
			Enable:    true,
			Name:      ObjectStorageS3,
			Region:    "us-west-1",
			Endpoint:  "127.0.0.1",
			AccessKey: "foo",
			SecretKey: "bar",
			Bucket:    "ddg",
		},
	}

	trainerConfigYAML := &Config{}
	contentYAML, _ := os.ReadFile("./testdata/trainer.yaml")
	if err := yaml.Unmarshal(contentYAML, &trainerConfigYAML); err != nil {
		t.Fatal(err)
	}
	assert := assert.New(t)
	assert.EqualValues(config, trainerConfigYAML)
}

func TestConfig_Convert(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
		mock   func(cfg *Config)
		expect func(t *testing.T, cfg *Config)
	}{
		{
			name:   "derive nseq and job id",
			config: New(),
			mock:   func(cfg *Config) {},
			expect: func(t *testing.T, cfg *Config) {
				assert := assert.New(t)
				assert.Equal(14, cfg.Data.NSeq)
				assert.NotEmpty(cfg.Distributed.JobID)
			},
		},
		{
			name:   "keep explicit values",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Data.NSeq = 3
				cfg.Distributed.JobID = "foo"
			},
			expect: func(t *testing.T, cfg *Config) {
				assert := assert.New(t)
				assert.Equal(3, cfg.Data.NSeq)
				assert.Equal("foo", cfg.Distributed.JobID)
			},
		},
		{
			name:   "resolve split paths against the dataset dir",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Data = mockDataConfig
				cfg.Data.Validations = []SplitConfig{
					{Name: "ssym", Path: "ssym.csv"},
					{Name: "p53", Path: "/abs/p53.csv"},
				}
			},
			expect: func(t *testing.T, cfg *Config) {
				assert := assert.New(t)
				assert.Equal(filepath.Join("foo", "train.csv"), cfg.Data.Train.Path)
				assert.Equal(filepath.Join("foo", "ssym.csv"), cfg.Data.Validations[0].Path)
				assert.Equal("/abs/p53.csv", cfg.Data.Validations[1].Path)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.mock(tc.config)
			assert.NoError(t, tc.config.Convert())
			tc.expect(t, tc.config)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
		mock   func(cfg *Config)
		expect func(t *testing.T, err error)
	}{
		{
			name:   "valid config",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Data = mockDataConfig
			},
			expect: func(t *testing.T, err error) {
				assert := assert.New(t)
				assert.NoError(err)
			},
		},
		{
			name:   "data requires parameter variant",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Data = mockDataConfig
				cfg.Data.Variant = "foo"
			},
			expect: func(t *testing.T, err error) {
				assert.EqualError(t, err, "data requires parameter variant")
			},
		},
		{
			name:   "data requires parameter train.path",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Data = mockDataConfig
				cfg.Data.Train.Path = ""
			},
			expect: func(t *testing.T, err error) {
				assert.EqualError(t, err, "data requires parameter train.path")
			},
		},
		{
			name:   "data requires parameter validations",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Data = mockDataConfig
				cfg.Data.Validations = nil
			},
			expect: func(t *testing.T, err error) {
				assert.EqualError(t, err, "data requires parameter validations")
			},
		},
		{
			name:   "split names must be unique",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Data = mockDataConfig
				cfg.Data.Validations = []SplitConfig{{Name: "train", Path: "foo.csv"}}
			},
			expect: func(t *testing.T, err error) {
				assert.EqualError(t, err, "split names must be unique")
			},
		},
		{
			name:   "model requires parameter device",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Data = mockDataConfig
				cfg.Model.Device = "tpu"
			},
			expect: func(t *testing.T, err error) {
				assert.EqualError(t, err, "model requires parameter device")
			},
		},
		{
			name:   "training requires parameter loss",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Data = mockDataConfig
				cfg.Training.Loss = "Huber"
			},
			expect: func(t *testing.T, err error) {
				assert.EqualError(t, err, "training requires parameter loss")
			},
		},
		{
			name:   "training requires parameter optimizer",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Data = mockDataConfig
				cfg.Training.Optimizer = "LBFGS"
			},
			expect: func(t *testing.T, err error) {
				assert.EqualError(t, err, "training requires parameter optimizer")
			},
		},
		{
			name:   "training requires parameter scheduler.name",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Data = mockDataConfig
				cfg.Training.Scheduler.Name = "foo"
			},
			expect: func(t *testing.T, err error) {
				assert.EqualError(t, err, "training requires parameter scheduler.name")
			},
		},
		{
			name:   "training requires parameter maxEpochs",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Data = mockDataConfig
				cfg.Training.MaxEpochs = 0
			},
			expect: func(t *testing.T, err error) {
				assert.EqualError(t, err, "training requires parameter maxEpochs")
			},
		},
		{
			name:   "redis requires parameter addrs",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Data = mockDataConfig
				cfg.Distributed.Backend = BackendRedis
			},
			expect: func(t *testing.T, err error) {
				assert.EqualError(t, err, "redis requires parameter addrs")
			},
		},
		{
			name:   "distributed requires parameter rank",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Data = mockDataConfig
				cfg.Distributed.Backend = BackendRedis
				cfg.Distributed.Redis = mockRedisConfig
				cfg.Distributed.WorldSize = 2
				cfg.Distributed.Rank = 2
			},
			expect: func(t *testing.T, err error) {
				assert.EqualError(t, err, "distributed requires parameter rank")
			},
		},
		{
			name:   "redis requires parameter jobID",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Data = mockDataConfig
				cfg.Distributed.Backend = BackendRedis
				cfg.Distributed.Redis = mockRedisConfig
				cfg.Distributed.WorldSize = 2
				cfg.Distributed.Rank = 1
			},
			expect: func(t *testing.T, err error) {
				assert.EqualError(t, err, "redis requires parameter jobID")
			},
		},
		{
			name:   "metrics requires parameter addr",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Data = mockDataConfig
				cfg.Metrics.Enable = true
				cfg.Metrics.Addr = ""
			},
			expect: func(t *testing.T, err error) {
				assert.EqualError(t, err, "metrics requires parameter addr")
			},
		},
		{
			name:   "objectStorage requires parameter bucket",
			config: New(),
			mock: func(cfg *Config) {
				cfg.Data = mockDataConfig
				cfg.ObjectStorage = mockObjectStorageConfig
				cfg.ObjectStorage.Bucket = ""
			},
			expect: func(t *testing.T, err error) {
				assert.EqualError(t, err, "objectStorage requires parameter bucket")
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.mock(tc.config)
			if err := tc.config.Convert(); err != nil {
				t.Fatal(err)
			}

			tc.expect(t, tc.config.Validate())
		})
	}
}
