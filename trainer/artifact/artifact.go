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

// Package artifact uploads the outputs of a run to object storage.
package artifact

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	logger "d7y.io/ddgtrainer/internal/dflog"
	"d7y.io/ddgtrainer/pkg/digest"
	"d7y.io/ddgtrainer/pkg/objectstorage"
	"d7y.io/ddgtrainer/trainer/metrics"
)

// Uploader copies run artifacts to <bucket>/<prefix>/<relative path>.
type Uploader struct {
	client objectstorage.ObjectStorage
	bucket string
	prefix string
}

// NewUploader returns an uploader writing under prefix of bucket.
func NewUploader(client objectstorage.ObjectStorage, bucket, prefix string) *Uploader {
	return &Uploader{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// ObjectKey returns the object key of file relative to baseDir.
func (u *Uploader) ObjectKey(baseDir, file string) (string, error) {
	rel, err := filepath.Rel(baseDir, file)
	if err != nil {
		return "", err
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("%s is outside of %s", file, baseDir)
	}

	return path.Join(u.prefix, filepath.ToSlash(rel)), nil
}

// Upload uploads every file under baseDir. Objects already holding the same
// digest are skipped. Every file is attempted and the failures are combined.
func (u *Uploader) Upload(ctx context.Context, baseDir string, files []string) error {
	exist, err := u.client.IsBucketExist(ctx, u.bucket)
	if err != nil {
		return errors.Wrapf(err, "check bucket %s", u.bucket)
	}

	if !exist {
		if err := u.client.CreateBucket(ctx, u.bucket); err != nil {
			return errors.Wrapf(err, "create bucket %s", u.bucket)
		}
	}

	var result *multierror.Error
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return multierror.Append(result, err).ErrorOrNil()
		}

		if err := u.upload(ctx, baseDir, file); err != nil {
			metrics.UploadFailureCount.Inc()
			result = multierror.Append(result, errors.Wrapf(err, "upload %s", file))
			continue
		}

		metrics.UploadCount.Inc()
	}

	return result.ErrorOrNil()
}

func (u *Uploader) upload(ctx context.Context, baseDir, file string) error {
	key, err := u.ObjectKey(baseDir, file)
	if err != nil {
		return err
	}

	d, err := digest.FromFile(file)
	if err != nil {
		return err
	}

	meta, exist, err := u.client.GetObjectMetadata(ctx, u.bucket, key)
	if err != nil {
		return err
	}

	if exist && meta.Digest == d.String() {
		logger.Debugf("object %s/%s is up to date", u.bucket, key)
		return nil
	}

	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := u.client.PutObject(ctx, u.bucket, key, d.String(), f); err != nil {
		return err
	}

	logger.Infof("uploaded %s to %s/%s", file, u.bucket, key)
	return nil
}
