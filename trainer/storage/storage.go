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

//go:generate mockgen -destination mocks/storage_mock.go -source storage.go -package mocks

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/gofrs/flock"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"d7y.io/ddgtrainer/pkg/container/set"
	"d7y.io/ddgtrainer/pkg/digest"
)

const (
	// ResultDirName is the directory of logs, statistics and charts.
	ResultDirName = "results"

	// SnapshotDirName is the directory of the snapshot.
	SnapshotDirName = "snapshots"

	// SnapshotFileName is the file name of the snapshot.
	SnapshotFileName = "snapshot.pt"

	// DigestFileExt is the extension of the digest written next to a snapshot.
	DigestFileExt = "sha256"

	// MetricsFileSuffix is the suffix of every metrics log.
	MetricsFileSuffix = "_metrics.log"

	// PredictionsFileSuffix is the suffix of every prediction dump.
	PredictionsFileSuffix = "_labels_preds.diffs"

	// MetricsHeader is the header line of every metrics log.
	MetricsHeader = "epoch,rmse,mae,corr"

	// LockFileName is the lock guarding an output directory.
	LockFileName = ".lock"
)

// ErrLocked is returned when another job holds the output directory.
var ErrLocked = errors.New("output directory is locked by another job")

// Storage is the interface used for storage.
type Storage interface {
	// Init creates the result and snapshot directories and truncates the
	// metrics log of every split to its header.
	Init(splits ...string) error

	// AppendMetrics appends rows to the metrics log of split.
	AppendMetrics(split string, records []MetricRecord) error

	// ListMetrics returns the rows of the metrics log of split.
	ListMetrics(split string) ([]MetricRecord, error)

	// SaveSnapshot atomically replaces the snapshot.
	SaveSnapshot(snapshot *Snapshot) error

	// LoadSnapshot reads the snapshot.
	LoadSnapshot() (*Snapshot, error)

	// WritePredictions writes the prediction dump of split sorted by code.
	WritePredictions(split string, predictions []Prediction) error

	// ResultDir returns the directory of logs, statistics and charts.
	ResultDir() string

	// SnapshotPath returns the path of the snapshot.
	SnapshotPath() string

	// Artifacts returns every file written under the output directory.
	Artifacts() ([]string, error)

	// Close releases the output directory lock.
	Close() error
}

type storage struct {
	baseDir string
	splits  set.SafeSet[string]
	lock    *flock.Flock
}

// New returns a new Storage instance rooted at baseDir.
func New(baseDir string) Storage {
	return &storage{
		baseDir: baseDir,
		splits:  set.NewSafeSet[string](),
	}
}

// Lock returns a Storage holding an exclusive lock on baseDir, it fails with
// ErrLocked when another job holds it.
func Lock(baseDir string) (Storage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(baseDir, LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "lock %s", baseDir)
	}

	if !locked {
		return nil, errors.Wrap(ErrLocked, baseDir)
	}

	return &storage{
		baseDir: baseDir,
		splits:  set.NewSafeSet[string](),
		lock:    lock,
	}, nil
}

// Init creates the result and snapshot directories and truncates the metrics
// log of every split to its header.
func (s *storage) Init(splits ...string) error {
	for _, dir := range []string{s.ResultDir(), filepath.Dir(s.SnapshotPath())} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	for _, split := range splits {
		if err := os.WriteFile(s.metricsFilename(split), []byte(MetricsHeader+"\n"), 0644); err != nil {
			return err
		}

		s.splits.Add(split)
	}

	return nil
}

// AppendMetrics appends rows to the metrics log of split.
func (s *storage) AppendMetrics(split string, records []MetricRecord) error {
	if !s.splits.Contains(split) {
		return errors.Errorf("metrics log of split %s is not initialized", split)
	}

	file, err := os.OpenFile(s.metricsFilename(split), os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	return gocsv.MarshalWithoutHeaders(records, file)
}

// ListMetrics returns the rows of the metrics log of split.
func (s *storage) ListMetrics(split string) ([]MetricRecord, error) {
	file, err := os.Open(s.metricsFilename(split))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records []MetricRecord
	if err := gocsv.UnmarshalFile(file, &records); err != nil {
		return nil, err
	}

	return records, nil
}

// SaveSnapshot atomically replaces the snapshot and its digest.
func (s *storage) SaveSnapshot(snapshot *Snapshot) error {
	data, err := msgpack.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}

	if err := writeFileAtomic(s.SnapshotPath(), data); err != nil {
		return err
	}

	return writeFileAtomic(digestFilename(s.SnapshotPath()), []byte(digest.FromBytes(data).String()))
}

// LoadSnapshot reads the snapshot.
func (s *storage) LoadSnapshot() (*Snapshot, error) {
	return ReadSnapshot(s.SnapshotPath())
}

// ReadSnapshot reads the snapshot at path, it is verified against the digest
// next to it when present.
func ReadSnapshot(path string) (*Snapshot, error) {
	expected, err := os.ReadFile(digestFilename(path))
	switch {
	case err == nil:
		if err := digest.Verify(path, strings.TrimSpace(string(expected))); err != nil {
			return nil, err
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{}
	if err := msgpack.Unmarshal(data, snapshot); err != nil {
		return nil, errors.Wrapf(err, "decode snapshot %s", path)
	}

	return snapshot, nil
}

// WritePredictions writes the prediction dump of split sorted by code.
func (s *storage) WritePredictions(split string, predictions []Prediction) error {
	sorted := append([]Prediction(nil), predictions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Code < sorted[j].Code
	})

	if err := os.MkdirAll(s.ResultDir(), 0755); err != nil {
		return err
	}

	content, err := gocsv.MarshalBytes(sorted)
	if err != nil {
		return err
	}

	return writeFileAtomic(s.predictionsFilename(split), content)
}

// ResultDir returns the directory of logs, statistics and charts.
func (s *storage) ResultDir() string {
	return filepath.Join(s.baseDir, ResultDirName)
}

// SnapshotPath returns the path of the snapshot.
func (s *storage) SnapshotPath() string {
	return filepath.Join(s.baseDir, SnapshotDirName, SnapshotFileName)
}

// Artifacts returns every regular file under the result and snapshot
// directories.
func (s *storage) Artifacts() ([]string, error) {
	var files []string
	for _, dir := range []string{s.ResultDir(), filepath.Dir(s.SnapshotPath())} {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}

		if err != nil {
			return nil, err
		}

		for _, entry := range entries {
			if entry.Type().IsRegular() && !strings.HasPrefix(entry.Name(), ".") {
				files = append(files, filepath.Join(dir, entry.Name()))
			}
		}
	}

	return files, nil
}

// Close releases the output directory lock.
func (s *storage) Close() error {
	if s.lock == nil {
		return nil
	}

	return s.lock.Unlock()
}

// metricsFilename generates the metrics log name of split.
func (s *storage) metricsFilename(split string) string {
	return filepath.Join(s.ResultDir(), fmt.Sprintf("%s%s", split, MetricsFileSuffix))
}

// predictionsFilename generates the prediction dump name of split.
func (s *storage) predictionsFilename(split string) string {
	return filepath.Join(s.ResultDir(), fmt.Sprintf("%s%s", split, PredictionsFileSuffix))
}

func digestFilename(path string) string {
	return fmt.Sprintf("%s.%s", path, DigestFileExt)
}

// writeFileAtomic replaces path through a rename, readers never see a
// partial file.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		return multierror.Append(err, tmp.Close(), os.Remove(tmp.Name()))
	}

	if err := tmp.Close(); err != nil {
		return multierror.Append(err, os.Remove(tmp.Name()))
	}

	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return multierror.Append(err, os.Remove(tmp.Name()))
	}

	return os.Rename(tmp.Name(), path)
}
