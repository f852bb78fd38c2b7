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

// Package training runs the data parallel training loop of one worker.
package training

import (
	"context"
	"fmt"
	"os"

	"github.com/looplab/fsm"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/vmihailenco/msgpack/v5"

	logger "d7y.io/ddgtrainer/internal/dflog"
	"d7y.io/ddgtrainer/pkg/collective"
	"d7y.io/ddgtrainer/pkg/dataloader"
	"d7y.io/ddgtrainer/pkg/nn"
	"d7y.io/ddgtrainer/pkg/optim"
	"d7y.io/ddgtrainer/trainer/metrics"
	"d7y.io/ddgtrainer/trainer/storage"
)

// TrainLogName is the metrics log key of the training split.
const TrainLogName = "train"

// Reporter renders the summary of a finished run into resultDir.
type Reporter func(ctx context.Context, history *History, resultDir, modelName string) error

// Options configures a trainer.
type Options struct {
	Rank      int
	LocalRank int
	MaxEpochs int
	Device    nn.DeviceType

	// MaxGradNorm is the gradient clipping threshold.
	MaxGradNorm float64

	// ClipAfterUnscale clips the unscaled gradients of the current batch
	// instead of clipping before zeroing them.
	ClipAfterUnscale bool

	MixedPrecision bool

	// Progress renders a progress bar on rank 0.
	Progress bool
}

// Trainer drives training, validation and checkpointing of one rank.
type Trainer interface {
	// Train runs every epoch over trainLoader and valLoaders. Validation split
	// 0 decides checkpoints.
	Train(ctx context.Context, model nn.Model, trainLoader *dataloader.Loader, valLoaders []*dataloader.Loader) error

	// Describe renders the summary of the last run on rank 0.
	Describe(ctx context.Context) error

	// EvaluateSplits runs a validation pass over every loader and dumps the
	// gathered predictions on rank 0.
	EvaluateSplits(ctx context.Context, model nn.Model, loaders []*dataloader.Loader) ([]Metrics, error)

	// History returns the global metrics of every completed epoch.
	History() *History

	// State returns the current trainer state.
	State() string
}

// Option is a functional option for configuring the trainer.
type Option func(t *trainer)

// WithReporter sets the reporter used by Describe.
func WithReporter(reporter Reporter) Option {
	return func(t *trainer) {
		t.reporter = reporter
	}
}

type trainer struct {
	opts       Options
	device     nn.Device
	comm       collective.Communicator
	optimizer  optim.Optimizer
	scheduler  optim.Scheduler
	lossFn     nn.LossFunc
	storage    storage.Storage
	reporter   Reporter
	fsm        *fsm.FSM
	history    *History
	checkpoint *checkpointTracker
	modelName  string
	log        *logger.SugaredLoggerOnWith
}

// New returns a trainer for the rank of comm.
func New(opts Options, comm collective.Communicator, optimizer optim.Optimizer, scheduler optim.Scheduler,
	lossFn nn.LossFunc, store storage.Storage, options ...Option) (Trainer, error) {
	if comm == nil || optimizer == nil || scheduler == nil || lossFn == nil || store == nil {
		return nil, errors.New("trainer requires a communicator, optimizer, scheduler, loss and storage")
	}

	if opts.MaxEpochs < 1 {
		return nil, errors.Errorf("invalid max epochs %d", opts.MaxEpochs)
	}

	if opts.MaxGradNorm <= 0 {
		return nil, errors.Errorf("invalid max grad norm %g", opts.MaxGradNorm)
	}

	if opts.Rank != comm.Rank() {
		return nil, errors.Errorf("rank %d does not match communicator rank %d", opts.Rank, comm.Rank())
	}

	if opts.Device == "" {
		opts.Device = nn.DeviceTypeCPU
	}

	log := logger.WithRank(comm.Rank(), comm.WorldSize())
	t := &trainer{
		opts:       opts,
		device:     nn.NewDevice(opts.Device, opts.LocalRank),
		comm:       comm,
		optimizer:  optimizer,
		scheduler:  scheduler,
		lossFn:     lossFn,
		storage:    store,
		fsm:        newStateMachine(log),
		history:    NewHistory(TrainLogName, nil),
		checkpoint: newCheckpointTracker(),
		log:        log,
	}

	for _, opt := range options {
		opt(t)
	}

	return t, nil
}

func (t *trainer) isMaster() bool {
	return t.opts.Rank == 0
}

// Train runs every epoch over trainLoader and valLoaders.
func (t *trainer) Train(ctx context.Context, model nn.Model, trainLoader *dataloader.Loader, valLoaders []*dataloader.Loader) error {
	if len(valLoaders) == 0 {
		return errors.New("training requires at least one validation split")
	}

	names := make([]string, 0, len(valLoaders))
	for _, loader := range valLoaders {
		if loader.Name() == TrainLogName {
			return errors.Errorf("validation split must not be named %s", TrainLogName)
		}

		names = append(names, loader.Name())
	}

	dp, err := collective.NewDataParallel(ctx, model, t.comm)
	if err != nil {
		return err
	}

	if err := t.initialize(ctx, model.Name(), trainLoader.Name(), names); err != nil {
		return err
	}

	for epoch := 0; epoch < t.opts.MaxEpochs; epoch++ {
		train, err := t.trainEpoch(ctx, dp, trainLoader, epoch)
		if err != nil {
			return err
		}

		validations := make([]Metrics, 0, len(valLoaders))
		for _, loader := range valLoaders {
			m, err := t.validateEpoch(ctx, dp, loader, epoch)
			if err != nil {
				return err
			}

			validations = append(validations, m)
		}

		t.history.Append(train, validations)
		if err := t.saveCheckpoint(ctx, dp, epoch, validations[0].MAE); err != nil {
			return err
		}
	}

	return t.complete(ctx)
}

func (t *trainer) initialize(ctx context.Context, modelName, trainName string, validationNames []string) error {
	if err := fire(t.fsm, EventInitialize); err != nil {
		return err
	}

	t.modelName = modelName
	t.history = NewHistory(trainName, validationNames)
	t.checkpoint = newCheckpointTracker()

	if t.isMaster() {
		if err := t.storage.Init(append([]string{TrainLogName}, validationNames...)...); err != nil {
			return errors.Wrap(err, "initialize storage")
		}
	}

	t.log.Infof("initialized %s on %s with %d validation splits", modelName, t.device, len(validationNames))
	return t.comm.Barrier(ctx)
}

func (t *trainer) trainEpoch(ctx context.Context, dp *collective.DataParallel, loader *dataloader.Loader, epoch int) (Metrics, error) {
	if err := fire(t.fsm, EventTrainEpoch); err != nil {
		return Metrics{}, err
	}

	loader.Sampler().SetEpoch(epoch)
	scaler := nn.NewGradScaler(nn.WithEnabled(t.opts.MixedPrecision))
	dp.SetTrain(true)

	bar := t.newProgressBar(loader, epoch)
	var preds, labels []float64
	if err := loader.Iterate(ctx, func(_ int, batch *dataloader.Batch) error {
		values, err := t.trainBatch(ctx, dp, scaler, batch)
		if err != nil {
			return err
		}

		preds = append(preds, values...)
		labels = append(labels, batch.Labels...)
		metrics.BatchCount.WithLabelValues(loader.Name()).Inc()
		if bar != nil {
			_ = bar.Add(1)
		}

		return nil
	}); err != nil {
		return Metrics{}, errors.Wrapf(err, "train epoch %d", epoch)
	}

	if bar != nil {
		_ = bar.Finish()
	}

	return t.aggregate(ctx, loader.Name(), epoch, preds, labels)
}

// trainBatch runs one optimization step and returns the predictions of the
// forward pass.
func (t *trainer) trainBatch(ctx context.Context, dp *collective.DataParallel, scaler *nn.GradScaler, batch *dataloader.Batch) ([]float64, error) {
	forwardCtx := ctx
	if t.opts.MixedPrecision {
		forwardCtx = nn.WithAutocast(ctx, nn.BFloat16)
	}

	out, err := dp.Forward(forwardCtx, batch.Inputs, t.device)
	if err != nil {
		return nil, err
	}

	loss, err := t.lossFn.Compute(out, batch.Labels)
	if err != nil {
		return nil, err
	}

	params := dp.Parameters()
	if !t.opts.ClipAfterUnscale {
		nn.ClipGradNorm(params, t.opts.MaxGradNorm)
	}

	t.optimizer.ZeroGrad()
	if err := loss.Backward(scaler.Scale()); err != nil {
		return nil, err
	}

	if err := dp.SyncGradients(ctx); err != nil {
		return nil, err
	}

	if err := scaler.Unscale(t.optimizer); err != nil {
		return nil, err
	}

	if t.opts.ClipAfterUnscale {
		nn.ClipGradNorm(params, t.opts.MaxGradNorm)
	}

	stepped, err := scaler.Step(t.optimizer)
	if err != nil {
		return nil, err
	}

	if !stepped {
		metrics.SkippedStepCount.Inc()
		t.log.Debugf("skip optimizer step on non-finite gradients, scale %v", scaler.Scale())
	}

	t.scheduler.Step()
	scaler.Update()
	return out.Values(), nil
}

func (t *trainer) validateEpoch(ctx context.Context, dp *collective.DataParallel, loader *dataloader.Loader, epoch int) (Metrics, error) {
	if err := fire(t.fsm, EventValidateEpoch); err != nil {
		return Metrics{}, err
	}

	preds, labels, _, err := t.predict(ctx, dp, loader, epoch)
	if err != nil {
		return Metrics{}, errors.Wrapf(err, "validate epoch %d", epoch)
	}

	return t.aggregate(ctx, loader.Name(), epoch, preds, labels)
}

// predict runs a forward pass without gradients over the shard of this rank.
func (t *trainer) predict(ctx context.Context, model nn.Model, loader *dataloader.Loader, epoch int) ([]float64, []float64, []storage.Prediction, error) {
	loader.Sampler().SetEpoch(epoch)
	model.SetTrain(false)

	var (
		preds       []float64
		labels      []float64
		predictions []storage.Prediction
	)
	err := loader.Iterate(ctx, func(_ int, batch *dataloader.Batch) error {
		out, err := model.Forward(ctx, batch.Inputs, t.device)
		if err != nil {
			return err
		}

		values := out.Values()
		if len(values) != batch.Len() {
			return errors.Errorf("model returned %d predictions for %d examples", len(values), batch.Len())
		}

		for i, value := range values {
			predictions = append(predictions, storage.Prediction{
				Code: batch.Codes[i],
				Pos:  batch.Inputs[i].Position(),
				DDG:  batch.Labels[i],
				Pred: value,
			})
		}

		preds = append(preds, values...)
		labels = append(labels, batch.Labels...)
		metrics.BatchCount.WithLabelValues(loader.Name()).Inc()
		return nil
	})

	return preds, labels, predictions, err
}

// aggregate gathers preds and labels of every rank and returns the global
// metrics. Local metrics are only logged.
func (t *trainer) aggregate(ctx context.Context, split string, epoch int, preds, labels []float64) (Metrics, error) {
	allPreds, err := collective.AllGatherFloat64s(ctx, t.comm, preds)
	if err != nil {
		return Metrics{}, errors.Wrapf(err, "gather %s predictions", split)
	}

	allLabels, err := collective.AllGatherFloat64s(ctx, t.comm, labels)
	if err != nil {
		return Metrics{}, errors.Wrapf(err, "gather %s labels", split)
	}

	global, err := Evaluate(allLabels, allPreds)
	if err != nil {
		return Metrics{}, errors.Wrapf(err, "evaluate %s", split)
	}

	local, err := Evaluate(labels, preds)
	if err != nil {
		return Metrics{}, errors.Wrapf(err, "evaluate %s on rank %d", split, t.opts.Rank)
	}

	t.log.Infof("%s GPU:%d epoch:%d/%d rmse = %.4f / %.4f mae = %.4f / %.4f corr = %.4f / %.4f",
		split, t.opts.Rank, epoch+1, t.opts.MaxEpochs,
		global.RMSE, local.RMSE, global.MAE, local.MAE, global.Corr, local.Corr)

	if t.isMaster() {
		metrics.ObserveEpoch(split, global.RMSE, global.MAE, global.Corr)
	}

	return global, nil
}

func (t *trainer) saveCheckpoint(ctx context.Context, dp *collective.DataParallel, epoch int, mae float64) error {
	if err := t.comm.Barrier(ctx); err != nil {
		return err
	}

	if t.checkpoint.Improve(mae) && t.isMaster() {
		if err := t.storage.SaveSnapshot(&storage.Snapshot{
			ModelState: dp.Module().StateDict(),
			EpochsRun:  epoch,
		}); err != nil {
			return errors.Wrapf(err, "save snapshot of epoch %d", epoch)
		}

		metrics.SnapshotCount.Inc()
		t.log.Infof("epoch %d | training snapshot saved at %s, best mae %.4f", epoch, t.storage.SnapshotPath(), mae)
	}

	return t.comm.Barrier(ctx)
}

func (t *trainer) complete(ctx context.Context) error {
	if err := fire(t.fsm, EventComplete); err != nil {
		return err
	}

	if err := t.comm.Barrier(ctx); err != nil {
		return err
	}

	if t.isMaster() {
		if err := t.storage.AppendMetrics(TrainLogName, Records(t.history.Train)); err != nil {
			return err
		}

		for i, name := range t.history.ValidationNames {
			if err := t.storage.AppendMetrics(name, Records(t.history.Validations[i])); err != nil {
				return err
			}
		}
	}

	return t.comm.Barrier(ctx)
}

// Describe renders the summary of the last run on rank 0.
func (t *trainer) Describe(ctx context.Context) error {
	if err := t.comm.Barrier(ctx); err != nil {
		return err
	}

	if t.isMaster() && t.reporter != nil {
		if err := t.reporter(ctx, t.history, t.storage.ResultDir(), t.modelName); err != nil {
			return errors.Wrap(err, "report")
		}
	}

	return t.comm.Barrier(ctx)
}

// EvaluateSplits runs a validation pass over every loader and dumps the
// gathered predictions on rank 0.
func (t *trainer) EvaluateSplits(ctx context.Context, model nn.Model, loaders []*dataloader.Loader) ([]Metrics, error) {
	results := make([]Metrics, 0, len(loaders))
	for _, loader := range loaders {
		_, _, predictions, err := t.predict(ctx, model, loader, 0)
		if err != nil {
			return nil, errors.Wrapf(err, "evaluate %s", loader.Name())
		}

		all, err := t.gatherPredictions(ctx, predictions)
		if err != nil {
			return nil, err
		}

		labels := make([]float64, 0, len(all))
		preds := make([]float64, 0, len(all))
		for _, p := range all {
			labels = append(labels, p.DDG)
			preds = append(preds, p.Pred)
		}

		m, err := Evaluate(labels, preds)
		if err != nil {
			return nil, errors.Wrapf(err, "evaluate %s", loader.Name())
		}

		if t.isMaster() {
			if err := t.storage.WritePredictions(loader.Name(), all); err != nil {
				return nil, err
			}
		}

		t.log.Infof("%s GPU:%d rmse = %.4f mae = %.4f corr = %.4f", loader.Name(), t.opts.Rank, m.RMSE, m.MAE, m.Corr)
		results = append(results, m)
		if err := t.comm.Barrier(ctx); err != nil {
			return nil, err
		}
	}

	return results, nil
}

func (t *trainer) gatherPredictions(ctx context.Context, predictions []storage.Prediction) ([]storage.Prediction, error) {
	payload, err := msgpack.Marshal(predictions)
	if err != nil {
		return nil, err
	}

	payloads, err := t.comm.AllGather(ctx, payload)
	if err != nil {
		return nil, errors.Wrap(err, "gather predictions")
	}

	var all []storage.Prediction
	for rank, p := range payloads {
		var part []storage.Prediction
		if err := msgpack.Unmarshal(p, &part); err != nil {
			return nil, errors.Wrapf(err, "decode predictions of rank %d", rank)
		}

		all = append(all, part...)
	}

	return all, nil
}

// History returns the global metrics of every completed epoch.
func (t *trainer) History() *History {
	return t.history
}

// State returns the current trainer state.
func (t *trainer) State() string {
	return t.fsm.Current()
}

func (t *trainer) newProgressBar(loader *dataloader.Loader, epoch int) *progressbar.ProgressBar {
	if !t.opts.Progress || !t.isMaster() {
		return nil
	}

	return progressbar.NewOptions(loader.Len(),
		progressbar.OptionSetDescription(fmt.Sprintf("%s epoch %d/%d", loader.Name(), epoch+1, t.opts.MaxEpochs)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
