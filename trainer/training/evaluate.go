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

package training

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	logger "d7y.io/ddgtrainer/internal/dflog"
)

// ErrEmptyBuffer is returned when metrics are requested over no predictions.
var ErrEmptyBuffer = errors.New("metrics buffer is empty")

// Metrics is the regression quality of one split at one epoch.
type Metrics struct {
	RMSE float64
	MAE  float64
	Corr float64
}

// Evaluate computes RMSE, MAE and the Pearson correlation of preds against
// labels. The correlation is NaN when either side has zero variance.
func Evaluate(labels, preds []float64) (Metrics, error) {
	if len(labels) == 0 || len(preds) == 0 {
		return Metrics{}, ErrEmptyBuffer
	}

	if len(labels) != len(preds) {
		return Metrics{}, errors.Errorf("metrics over %d labels and %d predictions", len(labels), len(preds))
	}

	squared := make([]float64, len(labels))
	absolute := make([]float64, len(labels))
	for i := range labels {
		diff := preds[i] - labels[i]
		squared[i] = diff * diff
		absolute[i] = math.Abs(diff)
	}

	mse, err := stats.Mean(squared)
	if err != nil {
		return Metrics{}, err
	}

	mae, err := stats.Mean(absolute)
	if err != nil {
		return Metrics{}, err
	}

	return Metrics{
		RMSE: math.Sqrt(mse),
		MAE:  mae,
		Corr: pearson(labels, preds),
	}, nil
}

func pearson(labels, preds []float64) float64 {
	labelsStd, err := stats.StandardDeviationPopulation(labels)
	if err != nil {
		return math.NaN()
	}

	predsStd, err := stats.StandardDeviationPopulation(preds)
	if err != nil {
		return math.NaN()
	}

	if labelsStd == 0 || predsStd == 0 {
		logger.Warnf("correlation is undefined over %d values: labels std %v, predictions std %v", len(labels), labelsStd, predsStd)
		return math.NaN()
	}

	corr, err := stats.Pearson(labels, preds)
	if err != nil {
		logger.Warnf("correlation failed: %s", err.Error())
		return math.NaN()
	}

	return corr
}
