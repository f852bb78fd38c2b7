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

import "github.com/pkg/errors"

// TokenizedPair is the tokenized sequences and structures of a mutation.
type TokenizedPair struct {
	WildSeq    *Encoding
	MutSeq     *Encoding
	WildStruct *Encoding
	MutStruct  *Encoding
	Pos        int
}

func (p *TokenizedPair) Position() int {
	return p.Pos
}

type tokenizedDataset struct {
	table
	tokenizer Tokenizer
}

// NewTokenizedDataset returns a dataset yielding tokenized sequence and
// structure pairs padded to MaxLength.
func NewTokenizedDataset(name string, records []*Record, tokenizer Tokenizer) Dataset {
	return &tokenizedDataset{
		table:     newTable(name, records),
		tokenizer: tokenizer,
	}
}

func (d *tokenizedDataset) Get(idx int) (*Example, error) {
	record, err := d.record(idx)
	if err != nil {
		return nil, err
	}

	var encodings [4]*Encoding
	for i, text := range []string{record.WildSeq, record.MutSeq, record.WildStruct, record.MutStruct} {
		encodings[i], err = d.tokenizer.Encode(Preprocess(text), MaxLength)
		if err != nil {
			return nil, errors.Wrapf(err, "tokenize %s", record.Code)
		}
	}

	return &Example{
		Inputs: &TokenizedPair{
			WildSeq:    encodings[0],
			MutSeq:     encodings[1],
			WildStruct: encodings[2],
			MutStruct:  encodings[3],
			Pos:        record.Pos,
		},
		Label: record.DDG,
		Code:  record.Code,
	}, nil
}
