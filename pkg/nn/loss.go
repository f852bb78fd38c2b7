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
	"math"
	"strings"

	"github.com/pkg/errors"
)

const (
	LossMSE = "MSE"
	LossL1  = "L1"
)

// Loss is a scalar loss that can propagate its gradient back to the model.
type Loss interface {
	Value() float64
	Backward(scale float64) error
}

// LossFunc computes a loss between model output and labels.
type LossFunc interface {
	Name() string
	Compute(out Output, labels []float64) (Loss, error)
}

// NewLoss returns the loss function registered under name.
func NewLoss(name string) (LossFunc, error) {
	switch strings.ToUpper(name) {
	case LossMSE:
		return MSELoss{}, nil
	case LossL1:
		return L1Loss{}, nil
	default:
		return nil, errors.Errorf("unknown loss function %q", name)
	}
}

type loss struct {
	value float64
	grad  []float64
	out   Output
}

func (l *loss) Value() float64 {
	return l.value
}

func (l *loss) Backward(scale float64) error {
	grad := make([]float64, len(l.grad))
	for i, g := range l.grad {
		grad[i] = g * scale
	}

	return l.out.Backward(grad)
}

func checkShape(preds, labels []float64) error {
	if len(preds) != len(labels) {
		return errors.Errorf("predictions have %d values, labels have %d", len(preds), len(labels))
	}

	if len(preds) == 0 {
		return errors.New("empty batch")
	}

	return nil
}

// MSELoss is the mean squared error.
type MSELoss struct{}

func (MSELoss) Name() string {
	return LossMSE
}

func (MSELoss) Compute(out Output, labels []float64) (Loss, error) {
	preds := out.Values()
	if err := checkShape(preds, labels); err != nil {
		return nil, err
	}

	n := float64(len(preds))
	l := &loss{out: out, grad: make([]float64, len(preds))}
	for i := range preds {
		diff := preds[i] - labels[i]
		l.value += diff * diff / n
		l.grad[i] = 2 * diff / n
	}

	return l, nil
}

// L1Loss is the mean absolute error.
type L1Loss struct{}

func (L1Loss) Name() string {
	return LossL1
}

func (L1Loss) Compute(out Output, labels []float64) (Loss, error) {
	preds := out.Values()
	if err := checkShape(preds, labels); err != nil {
		return nil, err
	}

	n := float64(len(preds))
	l := &loss{out: out, grad: make([]float64, len(preds))}
	for i := range preds {
		diff := preds[i] - labels[i]
		l.value += math.Abs(diff) / n
		switch {
		case diff > 0:
			l.grad[i] = 1 / n
		case diff < 0:
			l.grad[i] = -1 / n
		}
	}

	return l, nil
}
