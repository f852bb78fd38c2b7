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

//go:generate mockgen -destination mocks/communicator_mock.go -source communicator.go -package mocks

// Package collective provides the blocking group operations that keep data
// parallel workers in lockstep.
package collective

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrShapeMismatch is returned when ranks contribute vectors of different
// lengths to a reduction.
var ErrShapeMismatch = errors.New("ranks contributed vectors of different lengths")

// Communicator is the membership of one worker in a fixed size group. Every
// call blocks until all ranks have made the same call, and calls must be
// issued in the same order on every rank.
type Communicator interface {
	// Rank returns the index of this worker in [0, WorldSize).
	Rank() int

	// WorldSize returns the number of workers in the group.
	WorldSize() int

	// Barrier blocks until every rank reaches it.
	Barrier(ctx context.Context) error

	// AllGather returns the payload of every rank indexed by rank.
	AllGather(ctx context.Context, payload []byte) ([][]byte, error)

	// Close releases the resources of the communicator.
	Close() error
}

// Broadcast returns the payload of root on every rank. Payloads of other
// ranks are ignored.
func Broadcast(ctx context.Context, c Communicator, root int, payload []byte) ([]byte, error) {
	if root < 0 || root >= c.WorldSize() {
		return nil, errors.Errorf("invalid root %d for world size %d", root, c.WorldSize())
	}

	if c.Rank() != root {
		payload = nil
	}

	parts, err := c.AllGather(ctx, payload)
	if err != nil {
		return nil, err
	}

	return parts[root], nil
}

func gatherFloat64s(ctx context.Context, c Communicator, values []float64) ([][]float64, error) {
	payload, err := msgpack.Marshal(values)
	if err != nil {
		return nil, errors.Wrap(err, "encode values")
	}

	parts, err := c.AllGather(ctx, payload)
	if err != nil {
		return nil, err
	}

	gathered := make([][]float64, len(parts))
	for rank, part := range parts {
		if err := msgpack.Unmarshal(part, &gathered[rank]); err != nil {
			return nil, errors.Wrapf(err, "decode values of rank %d", rank)
		}
	}

	return gathered, nil
}

// AllGatherFloat64s concatenates the values of every rank in rank order.
func AllGatherFloat64s(ctx context.Context, c Communicator, values []float64) ([]float64, error) {
	gathered, err := gatherFloat64s(ctx, c, values)
	if err != nil {
		return nil, err
	}

	var n int
	for _, part := range gathered {
		n += len(part)
	}

	all := make([]float64, 0, n)
	for _, part := range gathered {
		all = append(all, part...)
	}

	return all, nil
}

// AllReduceMean returns the element wise mean of values over all ranks.
func AllReduceMean(ctx context.Context, c Communicator, values []float64) ([]float64, error) {
	gathered, err := gatherFloat64s(ctx, c, values)
	if err != nil {
		return nil, err
	}

	mean := make([]float64, len(values))
	for rank, part := range gathered {
		if len(part) != len(values) {
			return nil, errors.Wrapf(ErrShapeMismatch, "rank %d has %d values, want %d", rank, len(part), len(values))
		}

		for i, v := range part {
			mean[i] += v
		}
	}

	for i := range mean {
		mean[i] /= float64(len(gathered))
	}

	return mean, nil
}
