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

package optim

import (
	"math"

	"d7y.io/ddgtrainer/pkg/nn"
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// Adam implements Adam. With decoupled set, weight decay is applied to the
// weights directly instead of through the gradient (AdamW).
type Adam struct {
	base
	weightDecay float64
	decoupled   bool
	step        int
	m           [][]float64
	v           [][]float64
}

// NewAdam returns Adam with L2 regularization folded into the gradient.
func NewAdam(params []*nn.Parameter, lr, weightDecay float64) *Adam {
	return newAdam(params, lr, weightDecay, false)
}

// NewAdamW returns Adam with decoupled weight decay.
func NewAdamW(params []*nn.Parameter, lr, weightDecay float64) *Adam {
	return newAdam(params, lr, weightDecay, true)
}

func newAdam(params []*nn.Parameter, lr, weightDecay float64, decoupled bool) *Adam {
	a := &Adam{
		base:        base{params: params, lr: lr},
		weightDecay: weightDecay,
		decoupled:   decoupled,
		m:           make([][]float64, len(params)),
		v:           make([][]float64, len(params)),
	}

	for i, p := range params {
		a.m[i] = make([]float64, len(p.Data))
		a.v[i] = make([]float64, len(p.Data))
	}

	return a
}

func (a *Adam) Name() string {
	if a.decoupled {
		return OptimizerAdamW
	}

	return OptimizerAdam
}

func (a *Adam) Step() error {
	a.step++
	bias1 := 1 - math.Pow(adamBeta1, float64(a.step))
	bias2 := 1 - math.Pow(adamBeta2, float64(a.step))

	for i, p := range a.params {
		m, v := a.m[i], a.v[i]
		for j := range p.Data {
			g := p.Grad[j]
			if a.decoupled {
				p.Data[j] *= 1 - a.lr*a.weightDecay
			} else if a.weightDecay != 0 {
				g += a.weightDecay * p.Data[j]
			}

			m[j] = adamBeta1*m[j] + (1-adamBeta1)*g
			v[j] = adamBeta2*v[j] + (1-adamBeta2)*g*g
			mHat := m[j] / bias1
			vHat := v[j] / bias2
			p.Data[j] -= a.lr * mHat / (math.Sqrt(vHat) + adamEpsilon)
		}
	}

	return nil
}
