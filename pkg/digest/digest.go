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

package digest

import (
	"bufio"
	"io"
	"os"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

const readBufferSize = 4 << 20

// FromBytes returns the sha256 digest of data.
func FromBytes(data []byte) digest.Digest {
	return digest.SHA256.FromBytes(data)
}

// FromReader returns the sha256 digest of everything read from r.
func FromReader(r io.Reader) (digest.Digest, error) {
	return digest.SHA256.FromReader(bufio.NewReaderSize(r, readBufferSize))
}

// FromFile returns the sha256 digest of the regular file at path.
func FromFile(path string) (digest.Digest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	if !info.Mode().IsRegular() {
		return "", errors.Errorf("%s is not a regular file", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return FromReader(f)
}

// Verify checks that the file at path matches the expected digest.
func Verify(path string, expected string) error {
	d, err := digest.Parse(expected)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	verifier := d.Verifier()
	if _, err := io.Copy(verifier, bufio.NewReaderSize(f, readBufferSize)); err != nil {
		return err
	}

	if !verifier.Verified() {
		return errors.Errorf("digest mismatch for %s, expected %s", path, expected)
	}

	return nil
}
