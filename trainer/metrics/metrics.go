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

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"d7y.io/ddgtrainer/trainer/config"
	"d7y.io/ddgtrainer/version"
)

const (
	// Namespace is the prefix of every metric.
	Namespace = "ddgtrainer"
)

// Variables declared for metrics.
var (
	EpochRMSEGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "epoch_rmse",
		Help:      "Global RMSE of the last epoch.",
	}, []string{"split"})

	EpochMAEGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "epoch_mae",
		Help:      "Global MAE of the last epoch.",
	}, []string{"split"})

	EpochCorrGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "epoch_corr",
		Help:      "Global Pearson correlation of the last epoch.",
	}, []string{"split"})

	EpochCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "epochs_total",
		Help:      "Counter of the number of the finished epochs.",
	}, []string{"split"})

	BatchCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "batches_total",
		Help:      "Counter of the number of the processed batches.",
	}, []string{"split"})

	SkippedStepCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "skipped_steps_total",
		Help:      "Counter of the number of optimizer steps skipped for non finite gradients.",
	})

	SnapshotCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "snapshots_total",
		Help:      "Counter of the number of the saved snapshots.",
	})

	UploadCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "upload_total",
		Help:      "Counter of the number of the uploaded artifacts.",
	})

	UploadFailureCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "upload_failure_total",
		Help:      "Counter of the number of failed of the uploaded artifacts.",
	})

	VersionGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "version",
		Help:      "Version info of the service.",
	}, []string{"major", "minor", "git_version", "git_commit", "platform", "build_time", "go_version"})
)

// ObserveEpoch exports the global metrics of one split.
func ObserveEpoch(split string, rmse, mae, corr float64) {
	EpochRMSEGauge.WithLabelValues(split).Set(rmse)
	EpochMAEGauge.WithLabelValues(split).Set(mae)
	EpochCorrGauge.WithLabelValues(split).Set(corr)
	EpochCount.WithLabelValues(split).Inc()
}

func New(cfg *config.MetricsConfig) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	VersionGauge.WithLabelValues(version.Major, version.Minor, version.GitVersion, version.GitCommit, version.Platform, version.BuildTime, version.GoVersion).Set(1)
	return &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
}
