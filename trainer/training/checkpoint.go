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

import "math"

// checkpointTracker keeps the best validation MAE seen so far.
type checkpointTracker struct {
	best float64
}

func newCheckpointTracker() *checkpointTracker {
	return &checkpointTracker{best: math.Inf(1)}
}

// Improve reports whether mae strictly improves on the best score and
// records it if so. NaN never improves.
func (c *checkpointTracker) Improve(mae float64) bool {
	if !(mae < c.best) {
		return false
	}

	c.best = mae
	return true
}

// Best returns the best score, +Inf before any improvement.
func (c *checkpointTracker) Best() float64 {
	return c.best
}
