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
	"strings"

	"github.com/pkg/errors"
)

const (
	SchedulerConstant     = "constant"
	SchedulerStep         = "step"
	SchedulerExponential  = "exponential"
	SchedulerCosine       = "cosine"
	SchedulerLinearWarmup = "linear-warmup"
)

// Scheduler adjusts the optimizer learning rate once per training step.
type Scheduler interface {
	Name() string
	Step()
	LastLR() float64
}

// SchedulerOptions parameterizes the built-in schedules.
type SchedulerOptions struct {
	// StepSize is the number of steps between decays of the step schedule.
	StepSize int

	// Gamma is the multiplicative decay of the step and exponential schedules.
	Gamma float64

	// TotalSteps is the horizon of the cosine and warmup schedules.
	TotalSteps int

	// WarmupSteps is the length of the linear warmup.
	WarmupSteps int

	// MinLR is the floor of the cosine schedule.
	MinLR float64
}

// LRFunc returns the learning rate for a step given the base rate.
type LRFunc func(step int, baseLR float64) float64

// NewScheduler returns the schedule registered under name bound to opt.
func NewScheduler(name string, opt Optimizer, opts SchedulerOptions) (Scheduler, error) {
	key := strings.ToLower(name)
	if key == "" {
		key = SchedulerConstant
	}

	var fn LRFunc
	switch key {
	case SchedulerConstant:
		fn = func(_ int, lr float64) float64 {
			return lr
		}
	case SchedulerStep:
		if opts.StepSize <= 0 {
			return nil, errors.New("step scheduler requires a positive step size")
		}
		fn = func(step int, lr float64) float64 {
			return lr * math.Pow(opts.Gamma, float64(step/opts.StepSize))
		}
	case SchedulerExponential:
		fn = func(step int, lr float64) float64 {
			return lr * math.Pow(opts.Gamma, float64(step))
		}
	case SchedulerCosine:
		if opts.TotalSteps <= 0 {
			return nil, errors.New("cosine scheduler requires positive total steps")
		}
		fn = func(step int, lr float64) float64 {
			if step >= opts.TotalSteps {
				return opts.MinLR
			}
			return opts.MinLR + (lr-opts.MinLR)*(1+math.Cos(math.Pi*float64(step)/float64(opts.TotalSteps)))/2
		}
	case SchedulerLinearWarmup:
		if opts.WarmupSteps < 0 || opts.TotalSteps <= opts.WarmupSteps {
			return nil, errors.New("linear-warmup scheduler requires 0 <= warmup steps < total steps")
		}
		fn = func(step int, lr float64) float64 {
			if step < opts.WarmupSteps {
				return lr * float64(step+1) / float64(opts.WarmupSteps)
			}
			remaining := float64(opts.TotalSteps-step) / float64(opts.TotalSteps-opts.WarmupSteps)
			return lr * math.Max(remaining, 0)
		}
	default:
		return nil, errors.Errorf("unknown scheduler %q", name)
	}

	return NewLambdaScheduler(key, opt, fn), nil
}

// NewLambdaScheduler returns a scheduler driven by fn.
func NewLambdaScheduler(name string, opt Optimizer, fn LRFunc) Scheduler {
	s := &lambdaScheduler{
		name:   name,
		opt:    opt,
		baseLR: opt.LR(),
		fn:     fn,
	}

	opt.SetLR(fn(0, s.baseLR))
	return s
}

type lambdaScheduler struct {
	name   string
	opt    Optimizer
	baseLR float64
	step   int
	fn     LRFunc
}

func (s *lambdaScheduler) Name() string {
	return s.name
}

func (s *lambdaScheduler) Step() {
	s.step++
	s.opt.SetLR(s.fn(s.step, s.baseLR))
}

func (s *lambdaScheduler) LastLR() float64 {
	return s.opt.LR()
}
