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
	"d7y.io/ddgtrainer/trainer/storage"
)

// History holds the global metrics of every completed epoch.
type History struct {
	TrainName       string
	ValidationNames []string
	Train           []Metrics
	Validations     [][]Metrics
}

// NewHistory returns an empty history for the given splits.
func NewHistory(trainName string, validationNames []string) *History {
	return &History{
		TrainName:       trainName,
		ValidationNames: append([]string(nil), validationNames...),
		Train:           []Metrics{},
		Validations:     make([][]Metrics, len(validationNames)),
	}
}

// Epochs returns the number of completed epochs.
func (h *History) Epochs() int {
	return len(h.Train)
}

// Append records the metrics of one epoch.
func (h *History) Append(train Metrics, validations []Metrics) {
	h.Train = append(h.Train, train)
	for i, m := range validations {
		h.Validations[i] = append(h.Validations[i], m)
	}
}

// Records converts a metric series to metrics log rows with 1-based epochs.
func Records(series []Metrics) []storage.MetricRecord {
	records := make([]storage.MetricRecord, 0, len(series))
	for i, m := range series {
		records = append(records, storage.MetricRecord{
			Epoch: i + 1,
			RMSE:  m.RMSE,
			MAE:   m.MAE,
			Corr:  m.Corr,
		})
	}

	return records
}
