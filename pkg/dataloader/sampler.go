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

package dataloader

import (
	"math/rand"

	"github.com/pkg/errors"

	pkgmath "d7y.io/ddgtrainer/pkg/math"
)

// DistributedSampler shards dataset indices across workers. Every epoch each
// rank sees a disjoint slice of a shared permutation, padded by wrapping so
// all ranks see the same number of samples.
type DistributedSampler struct {
	size      int
	rank      int
	worldSize int
	shuffle   bool
	seed      int64
	epoch     int
}

// NewDistributedSampler returns a sampler over a dataset of size items.
func NewDistributedSampler(size, rank, worldSize int, shuffle bool, seed int64) (*DistributedSampler, error) {
	if worldSize < 1 {
		return nil, errors.Errorf("invalid world size %d", worldSize)
	}

	if rank < 0 || rank >= worldSize {
		return nil, errors.Errorf("invalid rank %d for world size %d", rank, worldSize)
	}

	return &DistributedSampler{
		size:      size,
		rank:      rank,
		worldSize: worldSize,
		shuffle:   shuffle,
		seed:      seed,
	}, nil
}

// SetEpoch changes the permutation of the next Indices call.
func (s *DistributedSampler) SetEpoch(epoch int) {
	s.epoch = epoch
}

// Epoch returns the current epoch.
func (s *DistributedSampler) Epoch() int {
	return s.epoch
}

// Len returns the number of samples of this rank per epoch.
func (s *DistributedSampler) Len() int {
	return pkgmath.CeilDiv(s.size, s.worldSize)
}

// Indices returns the dataset indices of this rank for the current epoch.
func (s *DistributedSampler) Indices() []int {
	if s.size == 0 {
		return nil
	}

	var indices []int
	if s.shuffle {
		indices = rand.New(rand.NewSource(s.seed + int64(s.epoch))).Perm(s.size)
	} else {
		indices = make([]int, s.size)
		for i := range indices {
			indices[i] = i
		}
	}

	total := s.Len() * s.worldSize
	for len(indices) < total {
		indices = append(indices, indices[:pkgmath.Min(total-len(indices), len(indices))]...)
	}

	sharded := make([]int, 0, s.Len())
	for i := s.rank; i < total; i += s.worldSize {
		sharded = append(sharded, indices[i])
	}

	return sharded
}
