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
	"path/filepath"

	"d7y.io/ddgtrainer/pkg/msa"
)

// AlignmentPair is the sampled wild type and mutant alignments.
type AlignmentPair struct {
	Wild   *msa.Alignment
	Mutant *msa.Alignment
	Pos    int
}

func (p *AlignmentPair) Position() int {
	return p.Pos
}

type msaDataset struct {
	table
	dir     string
	sampler *msa.Sampler
}

// NewMSADataset returns a dataset that samples both alignments of a row on
// every lookup. Alignment paths are relative to dir.
func NewMSADataset(name string, records []*Record, dir string, sampler *msa.Sampler) Dataset {
	return &msaDataset{
		table:   newTable(name, records),
		dir:     dir,
		sampler: sampler,
	}
}

func (d *msaDataset) Get(idx int) (*Example, error) {
	record, err := d.record(idx)
	if err != nil {
		return nil, err
	}

	wild, err := d.sampler.Sample(filepath.Join(d.dir, record.WildMSA))
	if err != nil {
		return nil, err
	}

	mutant, err := d.sampler.Sample(filepath.Join(d.dir, record.MutMSA))
	if err != nil {
		return nil, err
	}

	return &Example{
		Inputs: &AlignmentPair{
			Wild:   wild,
			Mutant: mutant,
			Pos:    record.Pos,
		},
		Label: record.DDG,
		Code:  record.Code,
	}, nil
}
