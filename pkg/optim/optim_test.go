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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"d7y.io/ddgtrainer/pkg/nn"
)

func newParam(data, grad float64) *nn.Parameter {
	p := nn.NewParameter("w", 1)
	p.Data[0] = data
	p.Grad[0] = grad
	return p
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		opt    string
		opts   Options
		expect func(t *testing.T, o Optimizer, err error)
	}{
		{
			name: "adam",
			opt:  "Adam",
			opts: Options{LR: 1e-5},
			expect: func(t *testing.T, o Optimizer, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(OptimizerAdam, o.Name())
				assert.Equal(1e-5, o.LR())
			},
		},
		{
			name: "adamw",
			opt:  "adamw",
			opts: Options{LR: 1e-3, WeightDecay: 0.01},
			expect: func(t *testing.T, o Optimizer, err error) {
				assert.NoError(t, err)
				assert.Equal(t, OptimizerAdamW, o.Name())
			},
		},
		{
			name: "sgd",
			opt:  "SGD",
			opts: Options{LR: 0.1, Momentum: 0.9},
			expect: func(t *testing.T, o Optimizer, err error) {
				assert.NoError(t, err)
				assert.Equal(t, OptimizerSGD, o.Name())
			},
		},
		{
			name: "unknown optimizer",
			opt:  "rmsprop",
			opts: Options{LR: 0.1},
			expect: func(t *testing.T, o Optimizer, err error) {
				assert.Error(t, err)
			},
		},
		{
			name: "invalid learning rate",
			opt:  "Adam",
			opts: Options{LR: 0},
			expect: func(t *testing.T, o Optimizer, err error) {
				assert.Error(t, err)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o, err := New(tc.opt, []*nn.Parameter{newParam(0, 0)}, tc.opts)
			tc.expect(t, o, err)
		})
	}
}

func TestAdam_Step(t *testing.T) {
	assert := assert.New(t)
	p := newParam(1, 0.5)
	a := NewAdam([]*nn.Parameter{p}, 0.1, 0)
	require.NoError(t, a.Step())
	// The first bias corrected Adam step moves by lr in the gradient sign.
	assert.InDelta(0.9, p.Data[0], 1e-6)

	a.ZeroGrad()
	assert.Equal(0.0, p.Grad[0])
}

func TestAdamW_DecoupledDecay(t *testing.T) {
	assert := assert.New(t)
	p := newParam(1, 0)
	a := NewAdamW([]*nn.Parameter{p}, 0.1, 0.5)
	require.NoError(t, a.Step())
	assert.InDelta(0.95, p.Data[0], 1e-9)
}

func TestSGD_Step(t *testing.T) {
	assert := assert.New(t)
	p := newParam(1, 1)
	s := NewSGD([]*nn.Parameter{p}, 0.1, 0.9, 0)
	require.NoError(t, s.Step())
	assert.InDelta(0.9, p.Data[0], 1e-12)
	require.NoError(t, s.Step())
	assert.InDelta(0.9-0.1*1.9, p.Data[0], 1e-12)
}

func TestNewScheduler(t *testing.T) {
	tests := []struct {
		name   string
		sched  string
		opts   SchedulerOptions
		steps  int
		expect func(t *testing.T, s Scheduler, err error)
	}{
		{
			name:  "constant",
			sched: "",
			steps: 5,
			expect: func(t *testing.T, s Scheduler, err error) {
				assert.NoError(t, err)
				assert.Equal(t, SchedulerConstant, s.Name())
				assert.Equal(t, 1.0, s.LastLR())
			},
		},
		{
			name:  "step",
			sched: "step",
			opts:  SchedulerOptions{StepSize: 2, Gamma: 0.5},
			steps: 5,
			expect: func(t *testing.T, s Scheduler, err error) {
				assert.NoError(t, err)
				assert.InDelta(t, 0.25, s.LastLR(), 1e-12)
			},
		},
		{
			name:  "step without step size",
			sched: "step",
			expect: func(t *testing.T, s Scheduler, err error) {
				assert.Error(t, err)
			},
		},
		{
			name:  "exponential",
			sched: "exponential",
			opts:  SchedulerOptions{Gamma: 0.5},
			steps: 3,
			expect: func(t *testing.T, s Scheduler, err error) {
				assert.NoError(t, err)
				assert.InDelta(t, 0.125, s.LastLR(), 1e-12)
			},
		},
		{
			name:  "cosine halfway",
			sched: "cosine",
			opts:  SchedulerOptions{TotalSteps: 10},
			steps: 5,
			expect: func(t *testing.T, s Scheduler, err error) {
				assert.NoError(t, err)
				assert.InDelta(t, 0.5, s.LastLR(), 1e-12)
			},
		},
		{
			name:  "cosine past horizon",
			sched: "cosine",
			opts:  SchedulerOptions{TotalSteps: 4, MinLR: 0.01},
			steps: 10,
			expect: func(t *testing.T, s Scheduler, err error) {
				assert.NoError(t, err)
				assert.Equal(t, 0.01, s.LastLR())
			},
		},
		{
			name:  "linear warmup",
			sched: "linear-warmup",
			opts:  SchedulerOptions{WarmupSteps: 4, TotalSteps: 8},
			steps: 1,
			expect: func(t *testing.T, s Scheduler, err error) {
				assert.NoError(t, err)
				assert.InDelta(t, 0.5, s.LastLR(), 1e-12)
			},
		},
		{
			name:  "linear warmup decays to zero",
			sched: "linear-warmup",
			opts:  SchedulerOptions{WarmupSteps: 4, TotalSteps: 8},
			steps: 12,
			expect: func(t *testing.T, s Scheduler, err error) {
				assert.NoError(t, err)
				assert.Equal(t, 0.0, s.LastLR())
			},
		},
		{
			name:  "unknown",
			sched: "plateau",
			expect: func(t *testing.T, s Scheduler, err error) {
				assert.Error(t, err)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opt := NewSGD([]*nn.Parameter{newParam(0, 0)}, 1, 0, 0)
			s, err := NewScheduler(tc.sched, opt, tc.opts)
			if err == nil {
				for i := 0; i < tc.steps; i++ {
					s.Step()
				}
			}
			tc.expect(t, s, err)
		})
	}
}

func TestLambdaScheduler_InitialLR(t *testing.T) {
	opt := NewSGD([]*nn.Parameter{newParam(0, 0)}, 1, 0, 0)
	s := NewLambdaScheduler("half", opt, func(step int, lr float64) float64 {
		return lr * math.Pow(0.5, float64(step+1))
	})
	assert.Equal(t, 0.5, s.LastLR())
	s.Step()
	assert.Equal(t, 0.25, s.LastLR())
}
