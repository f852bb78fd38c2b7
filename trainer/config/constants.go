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
	"time"

	logger "d7y.io/ddgtrainer/internal/dflog"
	"d7y.io/ddgtrainer/pkg/nn"
	"d7y.io/ddgtrainer/pkg/optim"
)

const (
	// DefaultLearningRate is default learning rate of the optimizer.
	DefaultLearningRate = 1e-5

	// DefaultMaxEpochs is default number of epochs.
	DefaultMaxEpochs = 5

	// DefaultLoss is default loss function.
	DefaultLoss = nn.LossMSE

	// DefaultOptimizer is default optimizer.
	DefaultOptimizer = optim.OptimizerAdam

	// DefaultScheduler is default learning rate scheduler.
	DefaultScheduler = optim.SchedulerConstant

	// DefaultBatchSize is default batch size.
	DefaultBatchSize = 1

	// DefaultMaxGradNorm is default gradient clipping norm.
	DefaultMaxGradNorm = 0.1

	// DefaultSeed is default seed of shuffling and alignment sampling.
	DefaultSeed = 42
)

const (
	// DefaultMaxLength is default max length of one sequence.
	DefaultMaxLength = 1024

	// DefaultMaxTokens is default token budget of one sampled alignment.
	DefaultMaxTokens = 15000

	// DefaultPrefetchFactor is default number of batches prefetched per worker.
	DefaultPrefetchFactor = 2

	// DefaultTrainSplit is default name of the training split.
	DefaultTrainSplit = "train"
)

const (
	// DefaultModel is default model name.
	DefaultModel = "linear"

	// DefaultDevice is default device type.
	DefaultDevice = nn.DeviceTypeCPU
)

const (
	// BackendLocal runs every worker as a goroutine of one process.
	BackendLocal = "local"

	// BackendRedis runs one process per worker rendezvousing through redis.
	BackendRedis = "redis"

	// DefaultWorldSize is default number of workers.
	DefaultWorldSize = 1

	// DefaultInboxTTL is default lifetime of collective messages in redis.
	DefaultInboxTTL = 10 * time.Minute
)

const (
	// DefaultMetricsAddr is default address for metrics server.
	DefaultMetricsAddr = ":8000"
)

const (
	// ObjectStorageS3 is the aws s3 backend.
	ObjectStorageS3 = "s3"

	// ObjectStorageOSS is the aliyun oss backend.
	ObjectStorageOSS = "oss"
)

var (
	// DefaultLogRotateConfig is default rotation of log files.
	DefaultLogRotateConfig = logger.DefaultLogRotateConfig()
)
