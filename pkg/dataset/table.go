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

package dataset

import (
	"bytes"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
)

// Column names of a mutation table.
const (
	ColumnCode       = "code"
	ColumnPos        = "pos"
	ColumnDDG        = "ddg"
	ColumnWildSeq    = "wt_seq"
	ColumnMutSeq     = "mut_seq"
	ColumnWildMSA    = "wt_msa"
	ColumnMutMSA     = "mut_msa"
	ColumnWildStruct = "wt_struct"
	ColumnMutStruct  = "mut_struct"
)

// ErrMissingColumn is returned when a table lacks a required column.
var ErrMissingColumn = errors.New("missing column")

// Record is one row of a mutation table.
type Record struct {
	Code       string  `csv:"code"`
	Pos        int     `csv:"pos"`
	DDG        float64 `csv:"ddg"`
	WildSeq    string  `csv:"wt_seq"`
	MutSeq     string  `csv:"mut_seq"`
	WildMSA    string  `csv:"wt_msa"`
	MutMSA     string  `csv:"mut_msa"`
	WildStruct string  `csv:"wt_struct"`
	MutStruct  string  `csv:"mut_struct"`

	// Derived lengths, filled in when a dataset is built.
	WildLen int `csv:"-"`
	MutLen  int `csv:"-"`
}

// LoadTable reads the csv table at path and checks that every column in
// required is present in its header.
func LoadTable(path string, required ...string) ([]*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	records, err := ParseTable(data, required...)
	if err != nil {
		return nil, errors.Wrapf(err, "load table %s", path)
	}

	return records, nil
}

// ParseTable decodes a csv table held in memory.
func ParseTable(data []byte, required ...string) ([]*Record, error) {
	header, err := gocsv.DefaultCSVReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}

	columns := make(map[string]struct{}, len(header))
	for _, column := range header {
		columns[column] = struct{}{}
	}

	for _, column := range required {
		if _, ok := columns[column]; !ok {
			return nil, errors.Wrapf(ErrMissingColumn, "%q", column)
		}
	}

	var records []*Record
	if err := gocsv.UnmarshalBytes(data, &records); err != nil {
		return nil, errors.Wrap(err, "decode rows")
	}

	return records, nil
}
