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
	"errors"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"d7y.io/ddgtrainer/cmd/dependency/base"
	"d7y.io/ddgtrainer/pkg/dataset"
	"d7y.io/ddgtrainer/pkg/nn"
	"d7y.io/ddgtrainer/pkg/optim"
	pkgredis "d7y.io/ddgtrainer/pkg/redis"
)

type Config struct {
	// Base options.
	base.Options `yaml:",inline" mapstructure:",squash"`

	// Server configuration.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Data configuration.
	Data DataConfig `yaml:"data" mapstructure:"data"`

	// Model configuration.
	Model ModelConfig `yaml:"model" mapstructure:"model"`

	// Training configuration.
	Training TrainingConfig `yaml:"training" mapstructure:"training"`

	// Distributed configuration.
	Distributed DistributedConfig `yaml:"distributed" mapstructure:"distributed"`

	// Metrics configuration.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// ObjectStorage configuration.
	ObjectStorage ObjectStorageConfig `yaml:"objectStorage" mapstructure:"objectStorage"`
}

type ServerConfig struct {
	// Server work directory.
	WorkHome string `yaml:"workHome" mapstructure:"workHome"`

	// Server log directory.
	LogDir string `yaml:"logDir" mapstructure:"logDir"`

	// Maximum size in megabytes of log files before rotation (default: 300)
	LogMaxSize int `yaml:"logMaxSize" mapstructure:"logMaxSize"`

	// Maximum number of days to retain old log files (default: 7)
	LogMaxAge int `yaml:"logMaxAge" mapstructure:"logMaxAge"`

	// Maximum number of old log files to keep (default: 50)
	LogMaxBackups int `yaml:"logMaxBackups" mapstructure:"logMaxBackups"`

	// OutputDir holds results, snapshots and prediction dumps.
	OutputDir string `yaml:"outputDir" mapstructure:"outputDir"`
}

type SplitConfig struct {
	// Name of the split, used in log and chart names.
	Name string `yaml:"name" mapstructure:"name"`

	// Path of the csv table, relative paths are resolved against data.dir.
	Path string `yaml:"path" mapstructure:"path"`
}

type DataConfig struct {
	// Dir is the dataset directory. Alignment paths are relative to it.
	Dir string `yaml:"dir" mapstructure:"dir"`

	// Variant selects the input representation: sequence, msa or tokenized.
	Variant dataset.Kind `yaml:"variant" mapstructure:"variant"`

	// Train is the training split.
	Train SplitConfig `yaml:"train" mapstructure:"train"`

	// Validations are the validation splits, the first one drives checkpointing.
	Validations []SplitConfig `yaml:"validations" mapstructure:"validations"`

	// MaxLength is the maximum length of one sequence.
	MaxLength int `yaml:"maxLength" mapstructure:"maxLength"`

	// MaxTokens is the token budget of one sampled alignment.
	MaxTokens int `yaml:"maxTokens" mapstructure:"maxTokens"`

	// NSeq is the number of sampled alignment rows, derived from
	// maxTokens / maxLength when zero.
	NSeq int `yaml:"nseq" mapstructure:"nseq"`

	// NumWorkers is the number of prefetch goroutines per loader.
	NumWorkers int `yaml:"numWorkers" mapstructure:"numWorkers"`

	// PrefetchFactor is the number of batches prefetched per worker.
	PrefetchFactor int `yaml:"prefetchFactor" mapstructure:"prefetchFactor"`

	// Shuffle enables the per epoch permutation of the training split.
	Shuffle bool `yaml:"shuffle" mapstructure:"shuffle"`
}

type ModelConfig struct {
	// Name of the model.
	Name string `yaml:"name" mapstructure:"name"`

	// Device type, cpu or cuda.
	Device nn.DeviceType `yaml:"device" mapstructure:"device"`

	// Snapshot to load the weights from before training or evaluation.
	Snapshot string `yaml:"snapshot" mapstructure:"snapshot"`
}

type SchedulerConfig struct {
	// Name of the scheduler.
	Name string `yaml:"name" mapstructure:"name"`

	// StepSize of the step scheduler.
	StepSize int `yaml:"stepSize" mapstructure:"stepSize"`

	// Gamma of the step and exponential schedulers.
	Gamma float64 `yaml:"gamma" mapstructure:"gamma"`

	// WarmupSteps of the linear warmup scheduler.
	WarmupSteps int `yaml:"warmupSteps" mapstructure:"warmupSteps"`

	// MinLR of the cosine scheduler.
	MinLR float64 `yaml:"minLR" mapstructure:"minLR"`
}

type TrainingConfig struct {
	// LearningRate of the optimizer.
	LearningRate float64 `yaml:"learningRate" mapstructure:"learningRate"`

	// MaxEpochs is the number of epochs.
	MaxEpochs int `yaml:"maxEpochs" mapstructure:"maxEpochs"`

	// Loss function, MSE or L1.
	Loss string `yaml:"loss" mapstructure:"loss"`

	// Optimizer name, Adam, AdamW or SGD.
	Optimizer string `yaml:"optimizer" mapstructure:"optimizer"`

	// WeightDecay of the optimizer.
	WeightDecay float64 `yaml:"weightDecay" mapstructure:"weightDecay"`

	// Momentum of the optimizer.
	Momentum float64 `yaml:"momentum" mapstructure:"momentum"`

	// Scheduler of the learning rate.
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`

	// BatchSize is the number of examples per batch.
	BatchSize int `yaml:"batchSize" mapstructure:"batchSize"`

	// MaxGradNorm is the gradient clipping norm.
	MaxGradNorm float64 `yaml:"maxGradNorm" mapstructure:"maxGradNorm"`

	// ClipAfterUnscale clips the unscaled gradients instead of the stale ones.
	ClipAfterUnscale bool `yaml:"clipAfterUnscale" mapstructure:"clipAfterUnscale"`

	// MixedPrecision enables bfloat16 autocast and loss scaling.
	MixedPrecision bool `yaml:"mixedPrecision" mapstructure:"mixedPrecision"`

	// Seed of shuffling and alignment sampling.
	Seed int64 `yaml:"seed" mapstructure:"seed"`

	// Progress renders a progress bar on rank 0.
	Progress bool `yaml:"progress" mapstructure:"progress"`
}

type RedisConfig struct {
	// Addrs is server addresses.
	Addrs []string `yaml:"addrs" mapstructure:"addrs"`

	// MasterName is the sentinel master name.
	MasterName string `yaml:"masterName" mapstructure:"masterName"`

	// Username is server username.
	Username string `yaml:"username" mapstructure:"username"`

	// Password is server password.
	Password string `yaml:"password" mapstructure:"password"`

	// DB is server db.
	DB int `yaml:"db" mapstructure:"db"`
}

type DistributedConfig struct {
	// Backend is local or redis.
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Rank of this process, bound to RANK.
	Rank int `yaml:"rank" mapstructure:"rank"`

	// LocalRank of this process, bound to LOCAL_RANK.
	LocalRank int `yaml:"localRank" mapstructure:"localRank"`

	// WorldSize is the number of workers, bound to WORLD_SIZE.
	WorldSize int `yaml:"worldSize" mapstructure:"worldSize"`

	// JobID is shared by every process of a job, generated when empty.
	JobID string `yaml:"jobID" mapstructure:"jobID"`

	// InboxTTL bounds the lifetime of collective messages in redis.
	InboxTTL time.Duration `yaml:"inboxTTL" mapstructure:"inboxTTL"`

	// Redis configuration of the redis backend.
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

type MetricsConfig struct {
	// Enable metrics service.
	Enable bool `yaml:"enable" mapstructure:"enable"`

	// Metrics service address.
	Addr string `yaml:"addr" mapstructure:"addr"`
}

type ObjectStorageConfig struct {
	// Enable uploads results and snapshots after training.
	Enable bool `yaml:"enable" mapstructure:"enable"`

	// Name is object storage name of type, it can be s3 or oss.
	Name string `yaml:"name" mapstructure:"name"`

	// Region is storage region.
	Region string `yaml:"region" mapstructure:"region"`

	// Endpoint is datacenter endpoint.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`

	// AccessKey is access key ID.
	AccessKey string `yaml:"accessKey" mapstructure:"accessKey"`

	// SecretKey is access key secret.
	SecretKey string `yaml:"secretKey" mapstructure:"secretKey"`

	// Bucket receives the artifacts under a prefix per job.
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
}

// New default configuration.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			LogMaxSize:    DefaultLogRotateConfig.MaxSize,
			LogMaxAge:     DefaultLogRotateConfig.MaxAge,
			LogMaxBackups: DefaultLogRotateConfig.MaxBackups,
		},
		Data: DataConfig{
			Variant:        dataset.KindMSA,
			Train:          SplitConfig{Name: DefaultTrainSplit},
			MaxLength:      DefaultMaxLength,
			MaxTokens:      DefaultMaxTokens,
			PrefetchFactor: DefaultPrefetchFactor,
			Shuffle:        true,
		},
		Model: ModelConfig{
			Name:   DefaultModel,
			Device: DefaultDevice,
		},
		Training: TrainingConfig{
			LearningRate: DefaultLearningRate,
			MaxEpochs:    DefaultMaxEpochs,
			Loss:         DefaultLoss,
			Optimizer:    DefaultOptimizer,
			Scheduler: SchedulerConfig{
				Name: DefaultScheduler,
			},
			BatchSize:      DefaultBatchSize,
			MaxGradNorm:    DefaultMaxGradNorm,
			MixedPrecision: true,
			Seed:           DefaultSeed,
			Progress:       true,
		},
		Distributed: DistributedConfig{
			Backend:   BackendLocal,
			WorldSize: DefaultWorldSize,
			InboxTTL:  DefaultInboxTTL,
		},
		Metrics: MetricsConfig{
			Enable: false,
			Addr:   DefaultMetricsAddr,
		},
	}
}

// Validate config parameters.
func (cfg *Config) Validate() error {
	switch cfg.Data.Variant {
	case dataset.KindSequence, dataset.KindMSA, dataset.KindTokenized:
	default:
		return errors.New("data requires parameter variant")
	}

	if cfg.Data.Train.Path == "" {
		return errors.New("data requires parameter train.path")
	}

	if len(cfg.Data.Validations) == 0 {
		return errors.New("data requires parameter validations")
	}

	names := map[string]struct{}{cfg.Data.Train.Name: {}}
	for _, split := range cfg.Data.Validations {
		if split.Name == "" || split.Path == "" {
			return errors.New("validation split requires parameters name and path")
		}

		if _, ok := names[split.Name]; ok {
			return errors.New("split names must be unique")
		}
		names[split.Name] = struct{}{}
	}

	if cfg.Data.MaxLength <= 0 {
		return errors.New("data requires parameter maxLength")
	}

	if cfg.Data.NSeq <= 0 {
		return errors.New("data requires parameter nseq")
	}

	if cfg.Data.NumWorkers < 0 {
		return errors.New("data requires parameter numWorkers")
	}

	if cfg.Data.PrefetchFactor <= 0 {
		return errors.New("data requires parameter prefetchFactor")
	}

	if cfg.Model.Name == "" {
		return errors.New("model requires parameter name")
	}

	if cfg.Model.Device != nn.DeviceTypeCPU && cfg.Model.Device != nn.DeviceTypeCUDA {
		return errors.New("model requires parameter device")
	}

	if cfg.Training.LearningRate <= 0 {
		return errors.New("training requires parameter learningRate")
	}

	if cfg.Training.MaxEpochs <= 0 {
		return errors.New("training requires parameter maxEpochs")
	}

	if cfg.Training.Loss != nn.LossMSE && cfg.Training.Loss != nn.LossL1 {
		return errors.New("training requires parameter loss")
	}

	switch cfg.Training.Optimizer {
	case optim.OptimizerAdam, optim.OptimizerAdamW, optim.OptimizerSGD:
	default:
		return errors.New("training requires parameter optimizer")
	}

	switch cfg.Training.Scheduler.Name {
	case optim.SchedulerConstant, optim.SchedulerStep, optim.SchedulerExponential, optim.SchedulerCosine, optim.SchedulerLinearWarmup:
	default:
		return errors.New("training requires parameter scheduler.name")
	}

	if cfg.Training.BatchSize <= 0 {
		return errors.New("training requires parameter batchSize")
	}

	if cfg.Training.MaxGradNorm <= 0 {
		return errors.New("training requires parameter maxGradNorm")
	}

	switch cfg.Distributed.Backend {
	case BackendLocal:
	case BackendRedis:
		if !pkgredis.IsEnabled(cfg.Distributed.Redis.Addrs) {
			return errors.New("redis requires parameter addrs")
		}
	default:
		return errors.New("distributed requires parameter backend")
	}

	if cfg.Distributed.WorldSize <= 0 {
		return errors.New("distributed requires parameter worldSize")
	}

	if cfg.Distributed.Rank < 0 || cfg.Distributed.Rank >= cfg.Distributed.WorldSize {
		return errors.New("distributed requires parameter rank")
	}

	// Processes of a redis job rendezvous on the job id.
	if cfg.Distributed.Backend == BackendRedis && cfg.Distributed.JobID == "" {
		return errors.New("redis requires parameter jobID")
	}

	if cfg.Metrics.Enable {
		if cfg.Metrics.Addr == "" {
			return errors.New("metrics requires parameter addr")
		}
	}

	if cfg.ObjectStorage.Enable {
		if cfg.ObjectStorage.Name != ObjectStorageS3 && cfg.ObjectStorage.Name != ObjectStorageOSS {
			return errors.New("objectStorage requires parameter name")
		}

		if cfg.ObjectStorage.Endpoint == "" {
			return errors.New("objectStorage requires parameter endpoint")
		}

		if cfg.ObjectStorage.Bucket == "" {
			return errors.New("objectStorage requires parameter bucket")
		}
	}

	return nil
}

// Convert derives runtime values from the loaded configuration.
func (cfg *Config) Convert() error {
	if cfg.Data.NSeq == 0 && cfg.Data.MaxLength > 0 {
		cfg.Data.NSeq = cfg.Data.MaxTokens / cfg.Data.MaxLength
	}

	if cfg.Data.Dir != "" {
		for _, split := range append([]*SplitConfig{&cfg.Data.Train}, validationRefs(cfg.Data.Validations)...) {
			if split.Path != "" && !filepath.IsAbs(split.Path) {
				split.Path = filepath.Join(cfg.Data.Dir, split.Path)
			}
		}
	}

	if cfg.Data.Train.Name == "" {
		cfg.Data.Train.Name = DefaultTrainSplit
	}

	if cfg.Distributed.JobID == "" && cfg.Distributed.Backend == BackendLocal {
		cfg.Distributed.JobID = uuid.NewString()
	}

	if cfg.Distributed.InboxTTL <= 0 {
		cfg.Distributed.InboxTTL = DefaultInboxTTL
	}

	return nil
}

func validationRefs(splits []SplitConfig) []*SplitConfig {
	refs := make([]*SplitConfig, 0, len(splits))
	for i := range splits {
		refs = append(refs, &splits[i])
	}

	return refs
}
