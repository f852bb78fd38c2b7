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

// Package linear implements a baseline linear regressor over mutation
// features.
package linear

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"

	"d7y.io/ddgtrainer/pkg/nn"
)

// Name is the registered name of the linear model.
const Name = "linear"

const (
	weightsName = "weights"
	biasName    = "bias"
	initStddev  = 0.01
)

// Model predicts ddG as a linear function of the mutation features.
type Model struct {
	weights *nn.Parameter
	bias    *nn.Parameter
	train   bool
}

// New returns a model with small random weights drawn from seed.
func New(seed int64) *Model {
	rnd := rand.New(rand.NewSource(seed))
	weights := nn.NewParameter(weightsName, NumFeatures)
	for i := range weights.Data {
		weights.Data[i] = rnd.NormFloat64() * initStddev
	}

	return &Model{
		weights: weights,
		bias:    nn.NewParameter(biasName, 1),
	}
}

func (m *Model) Name() string {
	return Name
}

func (m *Model) SetTrain(train bool) {
	m.train = train
}

// Training reports whether the model is in training mode.
func (m *Model) Training() bool {
	return m.train
}

// Forward predicts every input. Under bfloat16 autocast the predictions are
// rounded to bfloat16.
func (m *Model) Forward(ctx context.Context, inputs []nn.Input, device nn.Device) (nn.Output, error) {
	out := &output{
		model:    m,
		features: make([][]float64, 0, len(inputs)),
		values:   make([]float64, 0, len(inputs)),
	}

	for _, input := range inputs {
		x, err := Features(input)
		if err != nil {
			return nil, err
		}

		y := m.bias.Data[0]
		for j, w := range m.weights.Data {
			y += w * x[j]
		}

		out.features = append(out.features, x)
		out.values = append(out.values, y)
	}

	nn.Cast(out.values, nn.AutocastFrom(ctx))
	return out, nil
}

func (m *Model) Parameters() []*nn.Parameter {
	return []*nn.Parameter{m.weights, m.bias}
}

func (m *Model) StateDict() nn.StateDict {
	return nn.StateDictOf(m.Parameters())
}

func (m *Model) LoadStateDict(state nn.StateDict) error {
	return state.LoadInto(m.Parameters())
}

type output struct {
	model    *Model
	features [][]float64
	values   []float64
}

func (o *output) Values() []float64 {
	return o.values
}

// Backward accumulates the gradients of the weights and the bias.
func (o *output) Backward(grad []float64) error {
	if len(grad) != len(o.values) {
		return errors.Errorf("gradient of size %d for %d predictions", len(grad), len(o.values))
	}

	for i, g := range grad {
		for j, x := range o.features[i] {
			o.model.weights.Grad[j] += g * x
		}
		o.model.bias.Grad[0] += g
	}

	return nil
}
