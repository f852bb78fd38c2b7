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
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutput struct {
	values []float64
	grad   []float64
}

func (o *fakeOutput) Values() []float64 {
	return o.values
}

func (o *fakeOutput) Backward(grad []float64) error {
	o.grad = grad
	return nil
}

type fakeStepper struct {
	params []*Parameter
	steps  int
}

func (s *fakeStepper) Parameters() []*Parameter {
	return s.params
}

func (s *fakeStepper) Step() error {
	s.steps++
	return nil
}

func TestDevice_String(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("cpu", NewDevice(DeviceTypeCPU, 3).String())
	assert.Equal("cuda:3", NewDevice(DeviceTypeCUDA, 3).String())
}

func TestStateDict(t *testing.T) {
	tests := []struct {
		name   string
		state  StateDict
		expect func(t *testing.T, params []*Parameter, err error)
	}{
		{
			name:  "load matching state",
			state: StateDict{"w": {1, 2}, "b": {3}},
			expect: func(t *testing.T, params []*Parameter, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal([]float64{1, 2}, params[0].Data)
				assert.Equal([]float64{3}, params[1].Data)
			},
		},
		{
			name:  "missing parameter",
			state: StateDict{"w": {1, 2}},
			expect: func(t *testing.T, params []*Parameter, err error) {
				assert.Error(t, err)
			},
		},
		{
			name:  "size mismatch",
			state: StateDict{"w": {1}, "b": {3}},
			expect: func(t *testing.T, params []*Parameter, err error) {
				assert.Error(t, err)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := []*Parameter{NewParameter("w", 2), NewParameter("b", 1)}
			tc.expect(t, params, tc.state.LoadInto(params))
		})
	}
}

func TestStateDictOf_Copies(t *testing.T) {
	p := NewParameter("w", 2)
	p.Data[0] = 1
	state := StateDictOf([]*Parameter{p})
	p.Data[0] = 5
	assert.Equal(t, []float64{1, 0}, state["w"])
}

func TestNewLoss(t *testing.T) {
	tests := []struct {
		name   string
		loss   string
		expect func(t *testing.T, fn LossFunc, err error)
	}{
		{
			name: "mse",
			loss: "MSE",
			expect: func(t *testing.T, fn LossFunc, err error) {
				assert.NoError(t, err)
				assert.Equal(t, LossMSE, fn.Name())
			},
		},
		{
			name: "l1 lowercase",
			loss: "l1",
			expect: func(t *testing.T, fn LossFunc, err error) {
				assert.NoError(t, err)
				assert.Equal(t, LossL1, fn.Name())
			},
		},
		{
			name: "unknown",
			loss: "huber",
			expect: func(t *testing.T, fn LossFunc, err error) {
				assert.Error(t, err)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fn, err := NewLoss(tc.loss)
			tc.expect(t, fn, err)
		})
	}
}

func TestMSELoss(t *testing.T) {
	assert := assert.New(t)
	out := &fakeOutput{values: []float64{1.5, 1.5}}
	l, err := MSELoss{}.Compute(out, []float64{1, 2})
	require.NoError(t, err)
	assert.InDelta(0.25, l.Value(), 1e-12)

	require.NoError(t, l.Backward(4))
	assert.InDeltaSlice([]float64{2, -2}, out.grad, 1e-12)
}

func TestL1Loss(t *testing.T) {
	assert := assert.New(t)
	out := &fakeOutput{values: []float64{1.5, 1.5, 3}}
	l, err := L1Loss{}.Compute(out, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.InDelta(1.0/3, l.Value(), 1e-12)

	require.NoError(t, l.Backward(1))
	assert.InDeltaSlice([]float64{1.0 / 3, -1.0 / 3, 0}, out.grad, 1e-12)

	_, err = L1Loss{}.Compute(out, []float64{1})
	assert.Error(err)
}

func TestClipGradNorm(t *testing.T) {
	tests := []struct {
		name     string
		grad     []float64
		maxNorm  float64
		expect   []float64
		expected float64
	}{
		{name: "clipped", grad: []float64{3, 4}, maxNorm: 0.1, expect: []float64{0.06, 0.08}, expected: 5},
		{name: "under the ceiling", grad: []float64{0.03, 0.04}, maxNorm: 0.1, expect: []float64{0.03, 0.04}, expected: 0.05},
		{name: "zero", grad: []float64{0, 0}, maxNorm: 0.1, expect: []float64{0, 0}, expected: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			p := NewParameter("w", len(tc.grad))
			copy(p.Grad, tc.grad)
			total := ClipGradNorm([]*Parameter{p}, tc.maxNorm)
			assert.InDelta(tc.expected, total, 1e-9)
			assert.InDeltaSlice(tc.expect, p.Grad, 1e-6)
		})
	}
}

func TestGradScaler(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T, s *GradScaler, opt *fakeStepper)
	}{
		{
			name: "unscale and step",
			run: func(t *testing.T, s *GradScaler, opt *fakeStepper) {
				assert := assert.New(t)
				opt.params[0].Grad[0] = s.Scale() * 0.5
				assert.NoError(s.Unscale(opt))
				assert.InDelta(0.5, opt.params[0].Grad[0], 1e-12)
				stepped, err := s.Step(opt)
				assert.NoError(err)
				assert.True(stepped)
				assert.Equal(1, opt.steps)
				s.Update()
				assert.Equal(DefaultInitScale, s.Scale())
			},
		},
		{
			name: "skip on overflow and back off",
			run: func(t *testing.T, s *GradScaler, opt *fakeStepper) {
				assert := assert.New(t)
				opt.params[0].Grad[0] = math.Inf(1)
				stepped, err := s.Step(opt)
				assert.NoError(err)
				assert.False(stepped)
				assert.True(s.FoundInf())
				assert.Equal(0, opt.steps)
				s.Update()
				assert.Equal(DefaultInitScale*DefaultBackoffFactor, s.Scale())
				assert.False(s.FoundInf())
			},
		},
		{
			name: "double unscale",
			run: func(t *testing.T, s *GradScaler, opt *fakeStepper) {
				assert := assert.New(t)
				assert.NoError(s.Unscale(opt))
				assert.Error(s.Unscale(opt))
			},
		},
		{
			name: "grow after interval",
			run: func(t *testing.T, _ *GradScaler, opt *fakeStepper) {
				assert := assert.New(t)
				s := NewGradScaler(WithInitScale(8), WithGrowthInterval(2))
				for i := 0; i < 2; i++ {
					_, err := s.Step(opt)
					assert.NoError(err)
					s.Update()
				}
				assert.Equal(16.0, s.Scale())
			},
		},
		{
			name: "disabled",
			run: func(t *testing.T, _ *GradScaler, opt *fakeStepper) {
				assert := assert.New(t)
				s := NewGradScaler(WithEnabled(false))
				assert.Equal(1.0, s.Scale())
				opt.params[0].Grad[0] = math.NaN()
				stepped, err := s.Step(opt)
				assert.NoError(err)
				assert.True(stepped)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.run(t, NewGradScaler(), &fakeStepper{params: []*Parameter{NewParameter("w", 1)}})
		})
	}
}

func TestRoundBFloat16(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(1.0, RoundBFloat16(1.0))
	assert.Equal(0.0, RoundBFloat16(0))
	assert.InDelta(3.140625, RoundBFloat16(math.Pi), 1e-12)
	assert.True(math.IsNaN(RoundBFloat16(math.NaN())))
	assert.True(math.IsInf(RoundBFloat16(math.Inf(-1)), -1))
}

func TestAutocast(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	assert.Equal(Float32, AutocastFrom(ctx))
	ctx = WithAutocast(ctx, BFloat16)
	assert.Equal(BFloat16, AutocastFrom(ctx))
	assert.Equal("bfloat16", BFloat16.String())

	values := Cast([]float64{math.Pi}, BFloat16)
	assert.InDelta(3.140625, values[0], 1e-12)
	values = Cast([]float64{math.Pi}, Float32)
	assert.Equal(math.Pi, values[0])
}
