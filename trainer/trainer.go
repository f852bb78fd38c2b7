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

package trainer

import (
	"context"
	"math/rand"
	"net/http"
	"path"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	logger "d7y.io/ddgtrainer/internal/dflog"
	"d7y.io/ddgtrainer/pkg/collective"
	"d7y.io/ddgtrainer/pkg/dataloader"
	"d7y.io/ddgtrainer/pkg/dataset"
	"d7y.io/ddgtrainer/pkg/dfpath"
	"d7y.io/ddgtrainer/pkg/msa"
	"d7y.io/ddgtrainer/pkg/nn"
	"d7y.io/ddgtrainer/pkg/objectstorage"
	"d7y.io/ddgtrainer/pkg/optim"
	pkgredis "d7y.io/ddgtrainer/pkg/redis"
	"d7y.io/ddgtrainer/trainer/artifact"
	"d7y.io/ddgtrainer/trainer/config"
	"d7y.io/ddgtrainer/trainer/metrics"
	"d7y.io/ddgtrainer/trainer/models/linear"
	"d7y.io/ddgtrainer/trainer/report"
	"d7y.io/ddgtrainer/trainer/storage"
	"d7y.io/ddgtrainer/trainer/training"
)

type Server struct {
	// Server configuration.
	config *config.Config

	// Paths of the run.
	dfpath dfpath.Dfpath

	// Metrics server.
	metricsServer *http.Server

	// Storage of rank 0, holding the output dir lock.
	storage storage.Storage

	// Redis client of the redis backend.
	rdb redis.UniversalClient
}

// New returns a server for the worker processes of cfg.
func New(ctx context.Context, cfg *config.Config, d dfpath.Dfpath) (*Server, error) {
	s := &Server{config: cfg, dfpath: d}

	// Only rank 0 writes into the output dir.
	if s.isMasterProcess() {
		store, err := storage.Lock(d.OutputDir())
		if err != nil {
			return nil, err
		}
		s.storage = store
	} else {
		s.storage = storage.New(d.OutputDir())
	}

	if cfg.Distributed.Backend == config.BackendRedis {
		rdb, err := pkgredis.NewRedis(ctx, &redis.UniversalOptions{
			Addrs:      cfg.Distributed.Redis.Addrs,
			MasterName: cfg.Distributed.Redis.MasterName,
			Username:   cfg.Distributed.Redis.Username,
			Password:   cfg.Distributed.Redis.Password,
			DB:         cfg.Distributed.Redis.DB,
		})
		if err != nil {
			s.storage.Close()
			return nil, errors.Wrap(err, "connect redis")
		}
		s.rdb = rdb
	}

	// Initialize metrics.
	if cfg.Metrics.Enable && s.isMasterProcess() {
		s.metricsServer = metrics.New(&cfg.Metrics)
	}

	return s, nil
}

// isMasterProcess reports whether this process hosts rank 0.
func (s *Server) isMasterProcess() bool {
	return s.config.Distributed.Backend == config.BackendLocal || s.config.Distributed.Rank == 0
}

// Serve starts the metrics server.
func (s *Server) Serve() error {
	// Started metrics server.
	if s.metricsServer != nil {
		go func() {
			logger.Infof("started metrics server at %s", s.metricsServer.Addr)
			if err := s.metricsServer.ListenAndServe(); err != nil {
				if err == http.ErrServerClosed {
					return
				}

				logger.Fatalf("metrics server closed unexpect: %s", err.Error())
			}
		}()
	}

	return nil
}

// Stop releases the output dir lock and closes the servers.
func (s *Server) Stop() {
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(context.Background()); err != nil {
			logger.Errorf("metrics server failed to stop: %s", err.Error())
		} else {
			logger.Info("metrics server closed under request")
		}
	}

	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			logger.Errorf("close redis failed: %s", err.Error())
		}
	}

	if err := s.storage.Close(); err != nil {
		logger.Errorf("close storage failed: %s", err.Error())
	}
}

// Train trains on every rank of this process, renders the report and uploads
// the artifacts.
func (s *Server) Train(ctx context.Context) error {
	if err := s.run(ctx, s.trainWorker); err != nil {
		return err
	}

	return s.upload(ctx)
}

// Evaluate loads the snapshot and dumps the predictions of every validation
// split.
func (s *Server) Evaluate(ctx context.Context) error {
	return s.run(ctx, s.evaluateWorker)
}

type workerFunc func(ctx context.Context, comm collective.Communicator, localRank int) error

// run starts fn for the ranks of this process. The local backend runs every
// rank as a goroutine and the first failure cancels its peers.
func (s *Server) run(ctx context.Context, fn workerFunc) error {
	dist := s.config.Distributed
	switch dist.Backend {
	case config.BackendLocal:
		group, err := collective.NewGroup(dist.WorldSize)
		if err != nil {
			return err
		}

		eg, ctx := errgroup.WithContext(ctx)
		for rank := 0; rank < dist.WorldSize; rank++ {
			comm, err := group.Communicator(rank)
			if err != nil {
				return err
			}

			localRank := rank
			eg.Go(func() error {
				defer comm.Close()
				return fn(ctx, comm, localRank)
			})
		}

		return eg.Wait()
	case config.BackendRedis:
		comm, err := collective.NewRedisCommunicator(s.rdb, dist.JobID, dist.Rank, dist.WorldSize, dist.InboxTTL)
		if err != nil {
			return err
		}

		// The client is closed by Stop.
		return fn(ctx, comm, dist.LocalRank)
	default:
		return errors.Errorf("unknown backend %s", dist.Backend)
	}
}

func (s *Server) trainWorker(ctx context.Context, comm collective.Communicator, localRank int) error {
	log := logger.WithRank(comm.Rank(), comm.WorldSize()).With("jobID", s.config.Distributed.JobID)
	model, err := s.newModel()
	if err != nil {
		return err
	}

	trainLoader, err := s.newLoader(s.config.Data.Train, comm)
	if err != nil {
		return err
	}

	valLoaders, err := s.newValidationLoaders(comm)
	if err != nil {
		return err
	}

	cfg := s.config.Training
	optimizer, err := optim.New(cfg.Optimizer, model.Parameters(), optim.Options{
		LR:          cfg.LearningRate,
		WeightDecay: cfg.WeightDecay,
		Momentum:    cfg.Momentum,
	})
	if err != nil {
		return err
	}

	scheduler, err := optim.NewScheduler(cfg.Scheduler.Name, optimizer, optim.SchedulerOptions{
		StepSize:    cfg.Scheduler.StepSize,
		Gamma:       cfg.Scheduler.Gamma,
		TotalSteps:  cfg.MaxEpochs * trainLoader.Len(),
		WarmupSteps: cfg.Scheduler.WarmupSteps,
		MinLR:       cfg.Scheduler.MinLR,
	})
	if err != nil {
		return err
	}

	lossFn, err := nn.NewLoss(cfg.Loss)
	if err != nil {
		return err
	}

	tr, err := training.New(s.trainingOptions(comm, localRank), comm, optimizer, scheduler, lossFn, s.storage,
		training.WithReporter(report.Report))
	if err != nil {
		return err
	}

	log.Infof("training %s on %d examples, %d batches per epoch", model.Name(), trainLoader.Dataset().Len(), trainLoader.Len())
	if err := tr.Train(ctx, model, trainLoader, valLoaders); err != nil {
		return err
	}

	return tr.Describe(ctx)
}

func (s *Server) evaluateWorker(ctx context.Context, comm collective.Communicator, localRank int) error {
	model, err := s.newModel()
	if err != nil {
		return err
	}

	// Without an explicit snapshot the best one of this output dir is used.
	if s.config.Model.Snapshot == "" {
		if err := s.loadSnapshot(model, s.storage.SnapshotPath()); err != nil {
			return err
		}
	}

	valLoaders, err := s.newValidationLoaders(comm)
	if err != nil {
		return err
	}

	optimizer, err := optim.New(optim.OptimizerSGD, model.Parameters(), optim.Options{LR: s.config.Training.LearningRate})
	if err != nil {
		return err
	}

	scheduler, err := optim.NewScheduler(optim.SchedulerConstant, optimizer, optim.SchedulerOptions{})
	if err != nil {
		return err
	}

	lossFn, err := nn.NewLoss(s.config.Training.Loss)
	if err != nil {
		return err
	}

	tr, err := training.New(s.trainingOptions(comm, localRank), comm, optimizer, scheduler, lossFn, s.storage)
	if err != nil {
		return err
	}

	_, err = tr.EvaluateSplits(ctx, model, valLoaders)
	return err
}

func (s *Server) trainingOptions(comm collective.Communicator, localRank int) training.Options {
	cfg := s.config.Training
	return training.Options{
		Rank:             comm.Rank(),
		LocalRank:        localRank,
		MaxEpochs:        cfg.MaxEpochs,
		Device:           s.config.Model.Device,
		MaxGradNorm:      cfg.MaxGradNorm,
		ClipAfterUnscale: cfg.ClipAfterUnscale,
		MixedPrecision:   cfg.MixedPrecision,
		Progress:         cfg.Progress,
	}
}

// newModel builds the configured model and loads the configured snapshot
// weights into it. Epochs still start at zero.
func (s *Server) newModel() (nn.Model, error) {
	var model nn.Model
	switch s.config.Model.Name {
	case linear.Name:
		model = linear.New(s.config.Training.Seed)
	default:
		return nil, errors.Errorf("unknown model %s", s.config.Model.Name)
	}

	if s.config.Model.Snapshot != "" {
		if err := s.loadSnapshot(model, s.config.Model.Snapshot); err != nil {
			return nil, err
		}
	}

	return model, nil
}

func (s *Server) loadSnapshot(model nn.Model, filename string) error {
	snapshot, err := storage.ReadSnapshot(filename)
	if err != nil {
		return errors.Wrapf(err, "read snapshot %s", filename)
	}

	if err := model.LoadStateDict(snapshot.ModelState); err != nil {
		return errors.Wrapf(err, "load snapshot %s", filename)
	}

	logger.Infof("loaded snapshot %s taken at epoch %d", filename, snapshot.EpochsRun)
	return nil
}

func (s *Server) newValidationLoaders(comm collective.Communicator) ([]*dataloader.Loader, error) {
	loaders := make([]*dataloader.Loader, 0, len(s.config.Data.Validations))
	for _, split := range s.config.Data.Validations {
		loader, err := s.newLoader(split, comm)
		if err != nil {
			return nil, err
		}

		loaders = append(loaders, loader)
	}

	return loaders, nil
}

// newLoader loads the table of split and shards it for the rank of comm. Every
// rank draws alignments from its own random source.
func (s *Server) newLoader(split config.SplitConfig, comm collective.Communicator) (*dataloader.Loader, error) {
	cfg := s.config.Data
	seed := s.config.Training.Seed
	sampler := msa.NewSampler(cfg.NSeq, rand.New(rand.NewSource(seed+int64(comm.Rank()))))
	ds, err := dataset.Load(cfg.Variant, split.Name, split.Path,
		dataset.WithDir(cfg.Dir),
		dataset.WithSampler(sampler),
		dataset.WithTokenizer(dataset.NewResidueTokenizer()),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "load split %s", split.Name)
	}

	distributed, err := dataloader.NewDistributedSampler(ds.Len(), comm.Rank(), comm.WorldSize(), cfg.Shuffle, seed)
	if err != nil {
		return nil, err
	}

	collate := dataloader.StackCollate
	if s.config.Training.BatchSize == 1 {
		collate = dataloader.SingleCollate
	}

	return dataloader.New(ds, distributed,
		dataloader.WithBatchSize(s.config.Training.BatchSize),
		dataloader.WithNumWorkers(cfg.NumWorkers),
		dataloader.WithPrefetchFactor(cfg.PrefetchFactor),
		dataloader.WithCollate(collate),
	)
}

// upload copies the output dir artifacts of rank 0 to object storage.
func (s *Server) upload(ctx context.Context) error {
	cfg := s.config.ObjectStorage
	if !cfg.Enable || !s.isMasterProcess() {
		return nil
	}

	client, err := objectstorage.New(cfg.Name, cfg.Region, cfg.Endpoint, cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		return err
	}

	files, err := s.storage.Artifacts()
	if err != nil {
		return err
	}

	uploader := artifact.NewUploader(client, cfg.Bucket, s.config.Distributed.JobID)
	if err := uploader.Upload(ctx, s.dfpath.OutputDir(), files); err != nil {
		return err
	}

	logger.Infof("uploaded %d artifacts to %s", len(files), path.Join(cfg.Bucket, s.config.Distributed.JobID))
	return nil
}
