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

	"github.com/pkg/errors"
)

const (
	DefaultInitScale      = 65536.0
	DefaultGrowthFactor   = 2.0
	DefaultBackoffFactor  = 0.5
	DefaultGrowthInterval = 2000
)

// Stepper is an optimizer as seen by the grad scaler.
type Stepper interface {
	Parameters() []*Parameter
	Step() error
}

type scalerStage int

const (
	stageReady scalerStage = iota
	stageUnscaled
	stageStepped
)

// GradScalerOption is a functional option for configuring the scaler.
type GradScalerOption func(s *GradScaler)

// WithInitScale sets the initial scale.
func WithInitScale(scale float64) GradScalerOption {
	return func(s *GradScaler) {
		s.scale = scale
	}
}

// WithGrowthInterval sets how many clean steps double the scale.
func WithGrowthInterval(interval int) GradScalerOption {
	return func(s *GradScaler) {
		s.growthInterval = interval
	}
}

// WithEnabled toggles scaling. A disabled scaler uses scale 1 and never
// skips a step.
func WithEnabled(enabled bool) GradScalerOption {
	return func(s *GradScaler) {
		s.enabled = enabled
	}
}

// GradScaler scales the loss before backward so small gradients survive
// reduced precision, then unscales them and skips optimizer steps whose
// gradients overflowed.
type GradScaler struct {
	enabled        bool
	scale          float64
	growthFactor   float64
	backoffFactor  float64
	growthInterval int
	growthTracker  int

	stage    scalerStage
	foundInf bool
}

// NewGradScaler returns a scaler with the standard defaults.
func NewGradScaler(options ...GradScalerOption) *GradScaler {
	s := &GradScaler{
		enabled:        true,
		scale:          DefaultInitScale,
		growthFactor:   DefaultGrowthFactor,
		backoffFactor:  DefaultBackoffFactor,
		growthInterval: DefaultGrowthInterval,
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Scale returns the factor the loss gradient must be multiplied by.
func (s *GradScaler) Scale() float64 {
	if !s.enabled {
		return 1
	}

	return s.scale
}

// FoundInf reports whether the last unscale saw a non-finite gradient.
func (s *GradScaler) FoundInf() bool {
	return s.foundInf
}

// Unscale divides the gradients of the optimizer's parameters by the scale.
func (s *GradScaler) Unscale(opt Stepper) error {
	if !s.enabled {
		return nil
	}

	switch s.stage {
	case stageUnscaled:
		return errors.New("unscale already called since the last update")
	case stageStepped:
		return errors.New("unscale called after step")
	}

	inv := 1 / s.scale
	for _, p := range opt.Parameters() {
		for i, g := range p.Grad {
			g *= inv
			if math.IsInf(g, 0) || math.IsNaN(g) {
				s.foundInf = true
			}
			p.Grad[i] = g
		}
	}

	s.stage = stageUnscaled
	return nil
}

// Step runs the optimizer step unless the gradients overflowed. It reports
// whether the step was taken.
func (s *GradScaler) Step(opt Stepper) (bool, error) {
	if !s.enabled {
		return true, opt.Step()
	}

	if s.stage == stageStepped {
		return false, errors.New("step already called since the last update")
	}

	if s.stage == stageReady {
		if err := s.Unscale(opt); err != nil {
			return false, err
		}
	}

	s.stage = stageStepped
	if s.foundInf {
		return false, nil
	}

	return true, opt.Step()
}

// Update adjusts the scale for the next iteration.
func (s *GradScaler) Update() {
	if !s.enabled {
		return
	}

	if s.foundInf {
		s.scale *= s.backoffFactor
		s.growthTracker = 0
	} else {
		s.growthTracker++
		if s.growthTracker == s.growthInterval {
			s.scale *= s.growthFactor
			s.growthTracker = 0
		}
	}

	s.foundInf = false
	s.stage = stageReady
}
