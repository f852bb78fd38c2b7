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

// Package msa reads multiple sequence alignments and samples a bounded
// window of rows from them.
package msa

import (
	"io"
	"math/rand"
	"os"
	"strings"
	"sync"

	"github.com/koeng101/dnadesign/lib/bio"
	"github.com/pkg/errors"

	logger "d7y.io/ddgtrainer/internal/dflog"
	pkgmath "d7y.io/ddgtrainer/pkg/math"
)

const (
	// MaxSequenceLength is the longest row accepted before truncation.
	MaxSequenceLength = 1024

	// TruncatedSequenceLength is the length rows are cut to when any row
	// exceeds MaxSequenceLength.
	TruncatedSequenceLength = MaxSequenceLength - 1

	// TokenBudget bounds rows times length of one sampled alignment.
	TokenBudget = 100 * 100
)

var (
	// ErrEmptyAlignment is returned when a file holds no records.
	ErrEmptyAlignment = errors.New("alignment has no records")

	// ErrInsufficientRows is returned when more rows are requested than the
	// alignment can supply.
	ErrInsufficientRows = errors.New("insufficient rows to sample")
)

// Record is one row of an alignment.
type Record struct {
	Description string
	Sequence    string
}

// Alignment is a sampled alignment. Records[0] is always the reference row.
type Alignment struct {
	Records []Record

	// N is the number of rows actually returned.
	N int

	// Indices are the file positions of the sampled rows after the
	// reference, in sampled order.
	Indices []int
}

// Sequences returns the cleaned sequences of the alignment rows.
func (a *Alignment) Sequences() []string {
	seqs := make([]string, len(a.Records))
	for i, r := range a.Records {
		seqs[i] = r.Sequence
	}

	return seqs
}

// Clean removes insertion markers, lowercase residues, '.' and '*', from seq.
func Clean(seq string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || r == '.' || r == '*' {
			return -1
		}

		return r
	}, seq)
}

// Read parses every record of an a3m or fasta formatted alignment.
func Read(r io.Reader) ([]Record, error) {
	parser := bio.NewFastaParser(r)

	var records []Record
	for {
		record, err := parser.Next()
		if record != nil && (err == nil || err == io.EOF) && (record.Identifier != "" || record.Sequence != "") {
			records = append(records, Record{
				Description: record.Identifier,
				Sequence:    record.Sequence,
			})
		}

		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, errors.Wrap(err, "parse alignment")
		}
	}

	if len(records) == 0 {
		return nil, ErrEmptyAlignment
	}

	return records, nil
}

// Sampler draws bounded alignments with a shared random source. It is safe
// for concurrent use by loader workers.
type Sampler struct {
	nseq int

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSampler returns a sampler requesting nseq rows per alignment.
func NewSampler(nseq int, rnd *rand.Rand) *Sampler {
	return &Sampler{
		nseq: nseq,
		rnd:  rnd,
	}
}

// NSeq returns the requested row count.
func (s *Sampler) NSeq() int {
	return s.nseq
}

// Sample reads the alignment at path and samples it.
func (s *Sampler) Sample(path string) (*Alignment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	alignment, err := s.SampleReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "sample %s", path)
	}

	logger.WithAlignment(path).Debugf("sampled %d rows", alignment.N)
	return alignment, nil
}

// SampleReader parses r and samples the parsed records.
func (s *Sampler) SampleReader(r io.Reader) (*Alignment, error) {
	records, err := Read(r)
	if err != nil {
		return nil, err
	}

	return s.SampleRecords(records)
}

// SampleRecords applies the windowing policy to records.
func (s *Sampler) SampleRecords(records []Record) (*Alignment, error) {
	if len(records) == 0 {
		return nil, ErrEmptyAlignment
	}

	length := 0
	for _, record := range records {
		length = pkgmath.Max(length, len(record.Sequence))
	}

	if length > MaxSequenceLength {
		truncated := make([]Record, len(records))
		for i, record := range records {
			truncated[i] = record
			if len(record.Sequence) > TruncatedSequenceLength {
				truncated[i].Sequence = record.Sequence[:TruncatedSequenceLength]
			}
		}

		records = truncated
		length = TruncatedSequenceLength
	}

	nseq := pkgmath.Min(s.nseq, len(records))
	if nseq*length > TokenBudget {
		nseq = TokenBudget / (length + 1)
	}

	if nseq < 1 {
		nseq = 1
	}

	indices, err := s.sample(len(records)-1, nseq-1)
	if err != nil {
		return nil, err
	}

	alignment := &Alignment{
		Records: make([]Record, 0, nseq),
		N:       nseq,
		Indices: make([]int, 0, len(indices)),
	}

	alignment.Records = append(alignment.Records, Record{
		Description: records[0].Description,
		Sequence:    Clean(records[0].Sequence),
	})

	for _, i := range indices {
		idx := i + 1
		alignment.Indices = append(alignment.Indices, idx)
		alignment.Records = append(alignment.Records, Record{
			Description: records[idx].Description,
			Sequence:    Clean(records[idx].Sequence),
		})
	}

	return alignment, nil
}

// sample draws k distinct values from [0, n) in random order.
func (s *Sampler) sample(n, k int) ([]int, error) {
	if k > n {
		return nil, errors.Wrapf(ErrInsufficientRows, "requested %d of %d", k, n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	perm := s.rnd.Perm(n)
	return perm[:k], nil
}
