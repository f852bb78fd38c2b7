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
	"github.com/pkg/errors"

	"d7y.io/ddgtrainer/pkg/dataset"
	"d7y.io/ddgtrainer/pkg/nn"
)

// ErrBatchSize is returned by SingleCollate for batches not holding exactly
// one example.
var ErrBatchSize = errors.New("collate expects exactly one example per batch")

// Batch is the collated form of one or more examples.
type Batch struct {
	Inputs []nn.Input
	Labels []float64
	Codes  []string
}

// Len returns the number of examples in the batch.
func (b *Batch) Len() int {
	return len(b.Labels)
}

// CollateFunc packs examples into a batch.
type CollateFunc func(examples []*dataset.Example) (*Batch, error)

// SingleCollate repackages exactly one example as a singleton batch.
func SingleCollate(examples []*dataset.Example) (*Batch, error) {
	if len(examples) != 1 {
		return nil, errors.Wrapf(ErrBatchSize, "got %d", len(examples))
	}

	example := examples[0]
	return &Batch{
		Inputs: []nn.Input{example.Inputs},
		Labels: []float64{example.Label},
		Codes:  []string{example.Code},
	}, nil
}

// StackCollate packs any number of examples in order.
func StackCollate(examples []*dataset.Example) (*Batch, error) {
	if len(examples) == 0 {
		return nil, errors.Wrap(ErrBatchSize, "empty batch")
	}

	b := &Batch{
		Inputs: make([]nn.Input, 0, len(examples)),
		Labels: make([]float64, 0, len(examples)),
		Codes:  make([]string, 0, len(examples)),
	}

	for _, example := range examples {
		b.Inputs = append(b.Inputs, example.Inputs)
		b.Labels = append(b.Labels, example.Label)
		b.Codes = append(b.Codes, example.Code)
	}

	return b, nil
}
