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

// SequencePair is the raw wild type and mutant sequences.
type SequencePair struct {
	Wild   string
	Mutant string
	Pos    int
}

func (p *SequencePair) Position() int {
	return p.Pos
}

type sequenceDataset struct {
	table
}

// NewSequenceDataset returns a dataset yielding raw sequence pairs.
func NewSequenceDataset(name string, records []*Record) Dataset {
	return &sequenceDataset{table: newTable(name, records)}
}

func (d *sequenceDataset) Get(idx int) (*Example, error) {
	record, err := d.record(idx)
	if err != nil {
		return nil, err
	}

	return &Example{
		Inputs: &SequencePair{
			Wild:   record.WildSeq,
			Mutant: record.MutSeq,
			Pos:    record.Pos,
		},
		Label: record.DDG,
		Code:  record.Code,
	}, nil
}
