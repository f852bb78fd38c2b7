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

// Package dataloader iterates a dataset in sharded, collated batches with
// parallel prefetching.
package dataloader

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"d7y.io/ddgtrainer/pkg/dataset"
	pkgmath "d7y.io/ddgtrainer/pkg/math"
)

const (
	// DefaultBatchSize is the batch size of the single example collate.
	DefaultBatchSize = 1

	// DefaultPrefetchFactor is the number of batches loaded ahead per worker.
	DefaultPrefetchFactor = 2
)

// Option is a functional option for configuring the loader.
type Option func(l *Loader)

// WithBatchSize sets the number of examples per batch.
func WithBatchSize(batchSize int) Option {
	return func(l *Loader) {
		l.batchSize = batchSize
	}
}

// WithNumWorkers sets the number of prefetch goroutines. Zero loads on the
// calling goroutine.
func WithNumWorkers(numWorkers int) Option {
	return func(l *Loader) {
		l.numWorkers = numWorkers
	}
}

// WithPrefetchFactor sets how many batches each worker loads ahead.
func WithPrefetchFactor(factor int) Option {
	return func(l *Loader) {
		l.prefetchFactor = factor
	}
}

// WithCollate sets the collate function.
func WithCollate(collate CollateFunc) Option {
	return func(l *Loader) {
		l.collate = collate
	}
}

// Loader yields the batches of one rank's shard of a dataset.
type Loader struct {
	dataset        dataset.Dataset
	sampler        *DistributedSampler
	batchSize      int
	numWorkers     int
	prefetchFactor int
	collate        CollateFunc
}

// New returns a loader over ds sharded by sampler.
func New(ds dataset.Dataset, sampler *DistributedSampler, options ...Option) (*Loader, error) {
	l := &Loader{
		dataset:        ds,
		sampler:        sampler,
		batchSize:      DefaultBatchSize,
		prefetchFactor: DefaultPrefetchFactor,
		collate:        SingleCollate,
	}

	for _, opt := range options {
		opt(l)
	}

	if l.batchSize < 1 {
		return nil, errors.Errorf("invalid batch size %d", l.batchSize)
	}

	if l.numWorkers < 0 {
		return nil, errors.Errorf("invalid number of workers %d", l.numWorkers)
	}

	if l.prefetchFactor < 1 {
		return nil, errors.Errorf("invalid prefetch factor %d", l.prefetchFactor)
	}

	return l, nil
}

// Name returns the name of the wrapped dataset.
func (l *Loader) Name() string {
	return l.dataset.Name()
}

// Dataset returns the wrapped dataset.
func (l *Loader) Dataset() dataset.Dataset {
	return l.dataset
}

// Sampler returns the distributed sampler.
func (l *Loader) Sampler() *DistributedSampler {
	return l.sampler
}

// Len returns the number of batches per epoch of this rank.
func (l *Loader) Len() int {
	return pkgmath.CeilDiv(l.sampler.Len(), l.batchSize)
}

type fetchResult struct {
	example *dataset.Example
	err     error
}

// Iterate calls fn with every batch of the current epoch in sampler order.
// Iteration stops at the first error of a lookup, the collate or fn.
func (l *Loader) Iterate(ctx context.Context, fn func(idx int, batch *Batch) error) error {
	indices := l.sampler.Indices()
	if l.numWorkers == 0 {
		return l.iterate(ctx, indices, func(i int) (*dataset.Example, error) {
			return l.dataset.Get(indices[i])
		}, fn)
	}

	ctx, cancel := context.WithCancel(ctx)
	results := make([]chan fetchResult, len(indices))
	for i := range results {
		results[i] = make(chan fetchResult, 1)
	}

	window := semaphore.NewWeighted(int64(l.numWorkers * l.prefetchFactor * l.batchSize))
	jobs := make(chan int)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer close(jobs)
		for i := range indices {
			if err := window.Acquire(egCtx, 1); err != nil {
				return nil
			}

			select {
			case jobs <- i:
			case <-egCtx.Done():
				return nil
			}
		}

		return nil
	})

	for w := 0; w < l.numWorkers; w++ {
		eg.Go(func() error {
			for i := range jobs {
				example, err := l.dataset.Get(indices[i])
				results[i] <- fetchResult{example: example, err: err}
			}

			return nil
		})
	}

	defer func() {
		cancel()
		_ = eg.Wait()
	}()

	return l.iterate(ctx, indices, func(i int) (*dataset.Example, error) {
		select {
		case r := <-results[i]:
			window.Release(1)
			return r.example, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, fn)
}

func (l *Loader) iterate(ctx context.Context, indices []int, fetch func(i int) (*dataset.Example, error), fn func(idx int, batch *Batch) error) error {
	for b := 0; b*l.batchSize < len(indices); b++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := pkgmath.Min((b+1)*l.batchSize, len(indices))
		examples := make([]*dataset.Example, 0, end-b*l.batchSize)
		for i := b * l.batchSize; i < end; i++ {
			example, err := fetch(i)
			if err != nil {
				return errors.Wrapf(err, "load %s[%d]", l.Name(), indices[i])
			}

			examples = append(examples, example)
		}

		batch, err := l.collate(examples)
		if err != nil {
			return err
		}

		if err := fn(b, batch); err != nil {
			return err
		}
	}

	return nil
}
