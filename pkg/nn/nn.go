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

// Package nn defines the contracts the trainer consumes from a model and
// the numerical helpers shared by every model: losses, gradient clipping and
// loss scaling.
package nn

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// DeviceType is the kind of accelerator a replica runs on.
type DeviceType string

const (
	DeviceTypeCPU  DeviceType = "cpu"
	DeviceTypeCUDA DeviceType = "cuda"
)

// Device identifies the accelerator of one worker.
type Device struct {
	Type  DeviceType
	Index int
}

// NewDevice returns the device bound to a local rank.
func NewDevice(deviceType DeviceType, localRank int) Device {
	return Device{Type: deviceType, Index: localRank}
}

func (d Device) String() string {
	if d.Type == DeviceTypeCPU {
		return string(d.Type)
	}

	return fmt.Sprintf("%s:%d", d.Type, d.Index)
}

// Input is one example's model input. Every representation carries the
// mutation position.
type Input interface {
	Position() int
}

// Parameter is a named trainable tensor with its gradient.
type Parameter struct {
	Name string
	Data []float64
	Grad []float64
}

// NewParameter returns a zero initialized parameter of size n.
func NewParameter(name string, n int) *Parameter {
	return &Parameter{
		Name: name,
		Data: make([]float64, n),
		Grad: make([]float64, n),
	}
}

// ZeroGrad resets the gradient.
func (p *Parameter) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// StateDict maps parameter names to their values.
type StateDict map[string][]float64

// StateDictOf copies the values of params.
func StateDictOf(params []*Parameter) StateDict {
	state := make(StateDict, len(params))
	for _, p := range params {
		state[p.Name] = append([]float64(nil), p.Data...)
	}

	return state
}

// LoadInto copies the state into params, every parameter must be present
// with a matching size.
func (s StateDict) LoadInto(params []*Parameter) error {
	for _, p := range params {
		values, ok := s[p.Name]
		if !ok {
			return errors.Errorf("missing parameter %s in state dict", p.Name)
		}

		if len(values) != len(p.Data) {
			return errors.Errorf("parameter %s has size %d, state dict has %d", p.Name, len(p.Data), len(values))
		}

		copy(p.Data, values)
	}

	return nil
}

// Output is the result of a forward pass. Backward receives the gradient of
// the loss with respect to Values and accumulates parameter gradients.
type Output interface {
	Values() []float64
	Backward(grad []float64) error
}

// Model is a regression model over mutation inputs.
type Model interface {
	Name() string
	SetTrain(train bool)
	Forward(ctx context.Context, inputs []Input, device Device) (Output, error)
	Parameters() []*Parameter
	StateDict() StateDict
	LoadStateDict(state StateDict) error
}

// ZeroGrad resets the gradients of params.
func ZeroGrad(params []*Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
