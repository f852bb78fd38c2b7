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

// Package dataset adapts mutation tables into indexable examples for the
// three supported input representations.
package dataset

import (
	"unicode/utf8"

	"github.com/pkg/errors"

	logger "d7y.io/ddgtrainer/internal/dflog"
	"d7y.io/ddgtrainer/pkg/msa"
	"d7y.io/ddgtrainer/pkg/nn"
)

// MaxLength is the token budget of one adapted sequence. Two positions are
// reserved for special tokens, so longer rows are dropped.
const MaxLength = 492

// Kind selects the input representation of a dataset.
type Kind string

const (
	KindSequence  Kind = "sequence"
	KindMSA       Kind = "msa"
	KindTokenized Kind = "tokenized"
)

// RequiredColumns returns the table columns a kind reads.
func RequiredColumns(kind Kind) []string {
	columns := []string{ColumnCode, ColumnPos, ColumnDDG, ColumnWildSeq, ColumnMutSeq}
	switch kind {
	case KindMSA:
		columns = append(columns, ColumnWildMSA, ColumnMutMSA)
	case KindTokenized:
		columns = append(columns, ColumnWildStruct, ColumnMutStruct)
	}

	return columns
}

// Example is one training or validation unit.
type Example struct {
	Inputs nn.Input
	Label  float64
	Code   string
}

// Dataset is an indexable, length filtered mutation table.
type Dataset interface {
	Name() string
	Len() int
	Get(idx int) (*Example, error)
	Records() []*Record
}

// Option is a functional option for configuring a dataset.
type Option func(o *options)

type options struct {
	dir       string
	sampler   *msa.Sampler
	tokenizer Tokenizer
}

// WithDir sets the directory alignment paths are resolved against.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// WithSampler sets the alignment sampler of the msa representation.
func WithSampler(sampler *msa.Sampler) Option {
	return func(o *options) {
		o.sampler = sampler
	}
}

// WithTokenizer sets the tokenizer of the tokenized representation.
func WithTokenizer(tokenizer Tokenizer) Option {
	return func(o *options) {
		o.tokenizer = tokenizer
	}
}

// New builds the dataset of the given kind from records.
func New(kind Kind, name string, records []*Record, opts ...Option) (Dataset, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	switch kind {
	case KindSequence:
		return NewSequenceDataset(name, records), nil
	case KindMSA:
		if o.sampler == nil {
			return nil, errors.New("msa dataset requires a sampler")
		}
		return NewMSADataset(name, records, o.dir, o.sampler), nil
	case KindTokenized:
		if o.tokenizer == nil {
			o.tokenizer = NewResidueTokenizer()
		}
		return NewTokenizedDataset(name, records, o.tokenizer), nil
	default:
		return nil, errors.Errorf("unknown dataset kind %q", kind)
	}
}

// Load reads the table at path with the columns kind requires and builds the
// dataset.
func Load(kind Kind, name, path string, opts ...Option) (Dataset, error) {
	records, err := LoadTable(path, RequiredColumns(kind)...)
	if err != nil {
		return nil, err
	}

	return New(kind, name, records, opts...)
}

// table holds the filtered rows shared by every representation.
type table struct {
	name    string
	records []*Record
}

func newTable(name string, records []*Record) table {
	kept := make([]*Record, 0, len(records))
	for _, record := range records {
		record.WildLen = utf8.RuneCountInString(record.WildSeq)
		record.MutLen = utf8.RuneCountInString(record.MutSeq)
		if record.WildLen > MaxLength-2 || record.MutLen > MaxLength-2 {
			continue
		}

		kept = append(kept, record)
	}

	if dropped := len(records) - len(kept); dropped > 0 {
		logger.Infof("dataset %s drops %d of %d rows longer than %d residues", name, dropped, len(records), MaxLength-2)
	}

	return table{name: name, records: kept}
}

func (t *table) Name() string {
	return t.name
}

func (t *table) Len() int {
	return len(t.records)
}

func (t *table) Records() []*Record {
	return t.records
}

func (t *table) record(idx int) (*Record, error) {
	if idx < 0 || idx >= len(t.records) {
		return nil, errors.Errorf("index %d out of range [0, %d)", idx, len(t.records))
	}

	return t.records[idx], nil
}
