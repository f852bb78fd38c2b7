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

package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMax(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(1, Max(1))
	assert.Equal(3, Max(1, 2, 3))
	assert.Equal(int64(3), Max(int64(1), int64(2), int64(3)))
	assert.Equal(uint32(3), Max(uint32(1), uint32(2), uint32(3)))
	assert.Equal(float64(1.3), Max(1.1, 1.2, 1.3))
	assert.Equal("c", Max("a", "b", "c"))
}

func TestMin(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(1, Min(1))
	assert.Equal(1, Min(3, 2, 1))
	assert.Equal(int64(1), Min(int64(1), int64(2), int64(3)))
	assert.Equal(float32(1.1), Min(float32(1.1), float32(1.2), float32(1.3)))
	assert.Equal("a", Min("a", "b", "c"))
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name   string
		value  int
		lo     int
		hi     int
		expect int
	}{
		{name: "below", value: -1, lo: 0, hi: 5, expect: 0},
		{name: "inside", value: 3, lo: 0, hi: 5, expect: 3},
		{name: "above", value: 9, lo: 0, hi: 5, expect: 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, Clamp(tc.value, tc.lo, tc.hi))
		})
	}
}

func TestCeilDiv(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(0, CeilDiv(0, 4))
	assert.Equal(3, CeilDiv(10, 4))
	assert.Equal(2, CeilDiv(8, 4))
	assert.Equal(uint64(1), CeilDiv(uint64(1), uint64(7)))
}

func TestSum(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(0, Sum[int]())
	assert.Equal(6, Sum(1, 2, 3))
	assert.InDelta(0.6, Sum(0.1, 0.2, 0.3), 1e-12)
}
