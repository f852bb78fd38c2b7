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

import "d7y.io/ddgtrainer/pkg/nn"

// SGD implements stochastic gradient descent with optional momentum.
type SGD struct {
	base
	momentum    float64
	weightDecay float64
	velocity    [][]float64
}

// NewSGD returns a SGD optimizer.
func NewSGD(params []*nn.Parameter, lr, momentum, weightDecay float64) *SGD {
	s := &SGD{
		base:        base{params: params, lr: lr},
		momentum:    momentum,
		weightDecay: weightDecay,
		velocity:    make([][]float64, len(params)),
	}

	for i, p := range params {
		s.velocity[i] = make([]float64, len(p.Data))
	}

	return s
}

func (s *SGD) Name() string {
	return OptimizerSGD
}

func (s *SGD) Step() error {
	for i, p := range s.params {
		velocity := s.velocity[i]
		for j := range p.Data {
			g := p.Grad[j] + s.weightDecay*p.Data[j]
			if s.momentum != 0 {
				velocity[j] = s.momentum*velocity[j] + g
				g = velocity[j]
			}

			p.Data[j] -= s.lr * g
		}
	}

	return nil
}
