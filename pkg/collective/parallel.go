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

package collective

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"d7y.io/ddgtrainer/pkg/nn"
)

// DataParallel wraps a model replica so that every rank starts from the
// parameters of rank 0 and applies the same averaged gradients.
type DataParallel struct {
	module nn.Model
	comm   Communicator
}

// NewDataParallel broadcasts the parameters of rank 0 into model.
func NewDataParallel(ctx context.Context, model nn.Model, comm Communicator) (*DataParallel, error) {
	var payload []byte
	if comm.Rank() == 0 {
		var err error
		if payload, err = msgpack.Marshal(model.StateDict()); err != nil {
			return nil, errors.Wrap(err, "encode state dict")
		}
	}

	data, err := Broadcast(ctx, comm, 0, payload)
	if err != nil {
		return nil, errors.Wrap(err, "broadcast parameters")
	}

	if comm.Rank() != 0 {
		var state nn.StateDict
		if err := msgpack.Unmarshal(data, &state); err != nil {
			return nil, errors.Wrap(err, "decode state dict")
		}

		if err := model.LoadStateDict(state); err != nil {
			return nil, err
		}
	}

	return &DataParallel{module: model, comm: comm}, nil
}

// Module returns the wrapped model.
func (dp *DataParallel) Module() nn.Model {
	return dp.module
}

// SyncGradients replaces the gradient of every parameter by its mean over
// all ranks.
func (dp *DataParallel) SyncGradients(ctx context.Context) error {
	if dp.comm.WorldSize() == 1 {
		return nil
	}

	params := dp.module.Parameters()
	var n int
	for _, p := range params {
		n += len(p.Grad)
	}

	flat := make([]float64, 0, n)
	for _, p := range params {
		flat = append(flat, p.Grad...)
	}

	mean, err := AllReduceMean(ctx, dp.comm, flat)
	if err != nil {
		return errors.Wrap(err, "average gradients")
	}

	var offset int
	for _, p := range params {
		offset += copy(p.Grad, mean[offset:offset+len(p.Grad)])
	}

	return nil
}

func (dp *DataParallel) Name() string {
	return dp.module.Name()
}

func (dp *DataParallel) SetTrain(train bool) {
	dp.module.SetTrain(train)
}

func (dp *DataParallel) Forward(ctx context.Context, inputs []nn.Input, device nn.Device) (nn.Output, error) {
	return dp.module.Forward(ctx, inputs, device)
}

func (dp *DataParallel) Parameters() []*nn.Parameter {
	return dp.module.Parameters()
}

func (dp *DataParallel) StateDict() nn.StateDict {
	return dp.module.StateDict()
}

func (dp *DataParallel) LoadStateDict(state nn.StateDict) error {
	return dp.module.LoadStateDict(state)
}
