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

package training

import (
	"errors"

	"github.com/looplab/fsm"

	logger "d7y.io/ddgtrainer/internal/dflog"
)

const (
	// Trainer has been created but not started.
	StateIdle = "Idle"

	// Output directories exist and the metrics logs are truncated.
	StateInitialized = "Initialized"

	// Trainer is running the training pass of an epoch.
	StateTrainingEpoch = "TrainingEpoch"

	// Trainer is running the validation passes of an epoch.
	StateValidatingEpoch = "ValidatingEpoch"

	// Every epoch has finished and the metrics logs are written.
	StateCompleted = "Completed"
)

const (
	EventInitialize    = "Initialize"
	EventTrainEpoch    = "TrainEpoch"
	EventValidateEpoch = "ValidateEpoch"
	EventComplete      = "Complete"
)

func newStateMachine(log *logger.SugaredLoggerOnWith) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EventInitialize, Src: []string{StateIdle, StateCompleted}, Dst: StateInitialized},
			{Name: EventTrainEpoch, Src: []string{StateInitialized, StateValidatingEpoch}, Dst: StateTrainingEpoch},
			{Name: EventValidateEpoch, Src: []string{StateTrainingEpoch, StateValidatingEpoch}, Dst: StateValidatingEpoch},
			{Name: EventComplete, Src: []string{StateValidatingEpoch}, Dst: StateCompleted},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				log.Debugf("trainer state is %s after event %s", e.Dst, e.Event)
			},
		},
	)
}

// fire runs event, a transition into the current state is not an error.
func fire(machine *fsm.FSM, event string) error {
	if err := machine.Event(event); err != nil {
		var noTransition fsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return nil
		}

		return err
	}

	return nil
}
