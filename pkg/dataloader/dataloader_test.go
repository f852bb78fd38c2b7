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
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"d7y.io/ddgtrainer/pkg/dataset"
)

func mockRecords(n int) []*dataset.Record {
	records := make([]*dataset.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, &dataset.Record{
			Code:    fmt.Sprintf("M%03d", i),
			Pos:     1,
			DDG:     float64(i),
			WildSeq: "MKV",
			MutSeq:  "MAV",
		})
	}

	return records
}

type failingDataset struct {
	dataset.Dataset
	failAt int
}

func (d *failingDataset) Get(idx int) (*dataset.Example, error) {
	if idx == d.failAt {
		return nil, errors.New("foo")
	}

	return d.Dataset.Get(idx)
}

func TestDistributedSampler_Indices(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		worldSize int
		shuffle   bool
		expect    func(t *testing.T, shards [][]int)
	}{
		{
			name:      "even split without shuffle",
			size:      6,
			worldSize: 2,
			expect: func(t *testing.T, shards [][]int) {
				assert := assert.New(t)
				assert.Equal([]int{0, 2, 4}, shards[0])
				assert.Equal([]int{1, 3, 5}, shards[1])
			},
		},
		{
			name:      "padding wraps from the start",
			size:      5,
			worldSize: 4,
			expect: func(t *testing.T, shards [][]int) {
				assert := assert.New(t)
				assert.Equal([]int{0, 4}, shards[0])
				assert.Equal([]int{1, 0}, shards[1])
				assert.Equal([]int{2, 1}, shards[2])
				assert.Equal([]int{3, 2}, shards[3])
			},
		},
		{
			name:      "padding larger than the dataset",
			size:      2,
			worldSize: 5,
			expect: func(t *testing.T, shards [][]int) {
				assert := assert.New(t)
				for _, shard := range shards {
					assert.Len(shard, 1)
				}
				assert.Equal([]int{0}, shards[4])
			},
		},
		{
			name:      "shuffled shards cover the dataset",
			size:      11,
			worldSize: 3,
			shuffle:   true,
			expect: func(t *testing.T, shards [][]int) {
				assert := assert.New(t)
				seen := map[int]bool{}
				for _, shard := range shards {
					assert.Len(shard, 4)
					for _, idx := range shard {
						seen[idx] = true
					}
				}
				assert.Len(seen, 11)
			},
		},
		{
			name:      "empty dataset",
			size:      0,
			worldSize: 2,
			expect: func(t *testing.T, shards [][]int) {
				assert.Empty(t, shards[0])
				assert.Empty(t, shards[1])
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			shards := make([][]int, tc.worldSize)
			for rank := 0; rank < tc.worldSize; rank++ {
				s, err := NewDistributedSampler(tc.size, rank, tc.worldSize, tc.shuffle, 42)
				require.NoError(t, err)
				shards[rank] = s.Indices()
			}
			tc.expect(t, shards)
		})
	}
}

func TestDistributedSampler_SetEpoch(t *testing.T) {
	assert := assert.New(t)
	a, err := NewDistributedSampler(64, 0, 2, true, 7)
	require.NoError(t, err)
	b, err := NewDistributedSampler(64, 0, 2, true, 7)
	require.NoError(t, err)

	assert.Equal(a.Indices(), b.Indices())

	first := a.Indices()
	a.SetEpoch(1)
	assert.Equal(1, a.Epoch())
	assert.NotEqual(first, a.Indices())

	b.SetEpoch(1)
	assert.Equal(a.Indices(), b.Indices())
}

func TestNewDistributedSampler(t *testing.T) {
	tests := []struct {
		name      string
		rank      int
		worldSize int
		ok        bool
	}{
		{name: "single worker", rank: 0, worldSize: 1, ok: true},
		{name: "last rank", rank: 3, worldSize: 4, ok: true},
		{name: "rank out of range", rank: 4, worldSize: 4},
		{name: "negative rank", rank: -1, worldSize: 4},
		{name: "zero world size", rank: 0, worldSize: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDistributedSampler(10, tc.rank, tc.worldSize, false, 0)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
		})
	}
}

func TestCollate(t *testing.T) {
	ds, err := dataset.New(dataset.KindSequence, "train", mockRecords(2))
	require.NoError(t, err)
	first, err := ds.Get(0)
	require.NoError(t, err)
	second, err := ds.Get(1)
	require.NoError(t, err)

	tests := []struct {
		name     string
		collate  CollateFunc
		examples []*dataset.Example
		expect   func(t *testing.T, b *Batch, err error)
	}{
		{
			name:     "single example",
			collate:  SingleCollate,
			examples: []*dataset.Example{first},
			expect: func(t *testing.T, b *Batch, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(1, b.Len())
				assert.Equal([]string{"M000"}, b.Codes)
				assert.Equal(first.Inputs, b.Inputs[0])
			},
		},
		{
			name:     "single collate rejects two examples",
			collate:  SingleCollate,
			examples: []*dataset.Example{first, second},
			expect: func(t *testing.T, b *Batch, err error) {
				assert.ErrorIs(t, err, ErrBatchSize)
			},
		},
		{
			name:     "single collate rejects empty batch",
			collate:  SingleCollate,
			examples: nil,
			expect: func(t *testing.T, b *Batch, err error) {
				assert.ErrorIs(t, err, ErrBatchSize)
			},
		},
		{
			name:     "stack keeps order",
			collate:  StackCollate,
			examples: []*dataset.Example{second, first},
			expect: func(t *testing.T, b *Batch, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal([]float64{1, 0}, b.Labels)
				assert.Equal([]string{"M001", "M000"}, b.Codes)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, err := tc.collate(tc.examples)
			tc.expect(t, b, err)
		})
	}
}

func TestLoader_Iterate(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		options []Option
		expect  func(t *testing.T, l *Loader, codes []string, err error)
	}{
		{
			name: "synchronous singleton batches",
			size: 5,
			expect: func(t *testing.T, l *Loader, codes []string, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(5, l.Len())
				assert.Len(codes, 5)
			},
		},
		{
			name:    "prefetch keeps sampler order",
			size:    37,
			options: []Option{WithNumWorkers(4), WithPrefetchFactor(1)},
			expect: func(t *testing.T, l *Loader, codes []string, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				expected := make([]string, 0, 37)
				for _, idx := range l.Sampler().Indices() {
					expected = append(expected, fmt.Sprintf("M%03d", idx))
				}
				assert.Equal(expected, codes)
			},
		},
		{
			name:    "stacked batches with a short tail",
			size:    7,
			options: []Option{WithBatchSize(3), WithCollate(StackCollate), WithNumWorkers(2)},
			expect: func(t *testing.T, l *Loader, codes []string, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(3, l.Len())
				sorted := append([]string(nil), codes...)
				sort.Strings(sorted)
				assert.Equal([]string{"M000", "M001", "M002", "M003", "M004", "M005", "M006"}, sorted)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ds, err := dataset.New(dataset.KindSequence, "train", mockRecords(tc.size))
			require.NoError(t, err)
			sampler, err := NewDistributedSampler(ds.Len(), 0, 1, true, 42)
			require.NoError(t, err)
			l, err := New(ds, sampler, tc.options...)
			require.NoError(t, err)
			assert.Equal(t, "train", l.Name())

			var codes []string
			err = l.Iterate(context.Background(), func(idx int, b *Batch) error {
				codes = append(codes, b.Codes...)
				return nil
			})
			tc.expect(t, l, codes, err)
		})
	}
}

func TestLoader_IterateErrors(t *testing.T) {
	ds, err := dataset.New(dataset.KindSequence, "train", mockRecords(20))
	require.NoError(t, err)

	tests := []struct {
		name       string
		numWorkers int
		ctx        func() context.Context
		fn         func(idx int, b *Batch) error
		failAt     int
		expect     func(t *testing.T, err error)
	}{
		{
			name:       "lookup error with workers",
			numWorkers: 3,
			failAt:     9,
			expect: func(t *testing.T, err error) {
				assert.EqualError(t, err, "load train[9]: foo")
			},
		},
		{
			name:   "lookup error without workers",
			failAt: 0,
			expect: func(t *testing.T, err error) {
				assert.EqualError(t, err, "load train[0]: foo")
			},
		},
		{
			name:       "callback error stops iteration",
			numWorkers: 2,
			failAt:     -1,
			fn: func(idx int, b *Batch) error {
				if idx == 3 {
					return errors.New("bar")
				}
				return nil
			},
			expect: func(t *testing.T, err error) {
				assert.EqualError(t, err, "bar")
			},
		},
		{
			name:       "canceled context",
			numWorkers: 2,
			failAt:     -1,
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			expect: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, context.Canceled)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sampler, err := NewDistributedSampler(ds.Len(), 0, 1, false, 0)
			require.NoError(t, err)
			l, err := New(&failingDataset{Dataset: ds, failAt: tc.failAt}, sampler, WithNumWorkers(tc.numWorkers))
			require.NoError(t, err)

			ctx := context.Background()
			if tc.ctx != nil {
				ctx = tc.ctx()
			}

			fn := tc.fn
			if fn == nil {
				fn = func(int, *Batch) error { return nil }
			}

			tc.expect(t, l.Iterate(ctx, fn))
		})
	}
}

func TestNew(t *testing.T) {
	ds, err := dataset.New(dataset.KindSequence, "train", mockRecords(1))
	require.NoError(t, err)
	sampler, err := NewDistributedSampler(ds.Len(), 0, 1, false, 0)
	require.NoError(t, err)

	tests := []struct {
		name    string
		options []Option
	}{
		{name: "zero batch size", options: []Option{WithBatchSize(0)}},
		{name: "negative workers", options: []Option{WithNumWorkers(-1)}},
		{name: "zero prefetch factor", options: []Option{WithPrefetchFactor(0)}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(ds, sampler, tc.options...)
			assert.Error(t, err)
		})
	}
}
