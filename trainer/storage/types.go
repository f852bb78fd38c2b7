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

package storage

import (
	"d7y.io/ddgtrainer/pkg/nn"
)

// MetricRecord is one row of a metrics log.
type MetricRecord struct {
	// Epoch is 1-based.
	Epoch int     `csv:"epoch"`
	RMSE  float64 `csv:"rmse"`
	MAE   float64 `csv:"mae"`
	Corr  float64 `csv:"corr"`
}

// Snapshot is the persisted state of the best model so far.
type Snapshot struct {
	ModelState nn.StateDict `msgpack:"MODEL_STATE"`

	// EpochsRun is the 0-based epoch the state was taken at.
	EpochsRun int `msgpack:"EPOCHS_RUN"`
}

// Prediction is one row of a prediction dump.
type Prediction struct {
	Code string  `csv:"code"`
	Pos  int     `csv:"pos"`
	DDG  float64 `csv:"ddg"`
	Pred float64 `csv:"pred"`
}
