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

package nn

import (
	"context"
	"math"
)

// Precision is the compute precision of a forward pass.
type Precision int

const (
	Float32 Precision = iota
	BFloat16
)

func (p Precision) String() string {
	switch p {
	case BFloat16:
		return "bfloat16"
	default:
		return "float32"
	}
}

type autocastKey struct{}

// WithAutocast returns a context under which models compute at precision.
func WithAutocast(ctx context.Context, precision Precision) context.Context {
	return context.WithValue(ctx, autocastKey{}, precision)
}

// AutocastFrom returns the precision requested by ctx, Float32 by default.
func AutocastFrom(ctx context.Context) Precision {
	if p, ok := ctx.Value(autocastKey{}).(Precision); ok {
		return p
	}

	return Float32
}

// RoundBFloat16 rounds x to the nearest bfloat16 value, ties to even.
func RoundBFloat16(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}

	bits := math.Float32bits(float32(x))
	bits += 0x7fff + ((bits >> 16) & 1)
	bits &= 0xffff0000
	return float64(math.Float32frombits(bits))
}

// Cast rounds values in place when precision is BFloat16.
func Cast(values []float64, precision Precision) []float64 {
	if precision != BFloat16 {
		return values
	}

	for i, v := range values {
		values[i] = RoundBFloat16(v)
	}

	return values
}
