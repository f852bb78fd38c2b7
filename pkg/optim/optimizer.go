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

// Package optim implements gradient descent optimizers and learning rate
// schedulers over nn parameters.
package optim

import (
	"strings"

	"github.com/pkg/errors"

	"d7y.io/ddgtrainer/pkg/nn"
)

const (
	OptimizerAdam  = "Adam"
	OptimizerAdamW = "AdamW"
	OptimizerSGD   = "SGD"
)

// Optimizer updates parameters from their gradients.
type Optimizer interface {
	Name() string
	Parameters() []*nn.Parameter
	ZeroGrad()
	Step() error
	LR() float64
	SetLR(lr float64)
}

// Options holds the hyper parameters shared by every optimizer.
type Options struct {
	LR          float64
	WeightDecay float64
	Momentum    float64
}

// New returns the optimizer registered under name.
func New(name string, params []*nn.Parameter, opts Options) (Optimizer, error) {
	if opts.LR <= 0 {
		return nil, errors.Errorf("invalid learning rate %g", opts.LR)
	}

	switch strings.ToLower(name) {
	case strings.ToLower(OptimizerAdam):
		return NewAdam(params, opts.LR, opts.WeightDecay), nil
	case strings.ToLower(OptimizerAdamW):
		return NewAdamW(params, opts.LR, opts.WeightDecay), nil
	case strings.ToLower(OptimizerSGD):
		return NewSGD(params, opts.LR, opts.Momentum, opts.WeightDecay), nil
	default:
		return nil, errors.Errorf("unknown optimizer %q", name)
	}
}

type base struct {
	params []*nn.Parameter
	lr     float64
}

func (b *base) Parameters() []*nn.Parameter {
	return b.params
}

func (b *base) ZeroGrad() {
	nn.ZeroGrad(b.params)
}

func (b *base) LR() float64 {
	return b.lr
}

func (b *base) SetLR(lr float64) {
	b.lr = lr
}
