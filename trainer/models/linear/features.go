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

package linear

import (
	"strings"

	"github.com/pkg/errors"

	"d7y.io/ddgtrainer/pkg/dataset"
	"d7y.io/ddgtrainer/pkg/nn"
)

const (
	// residueAlphabet holds the standard residues, anything else shares the
	// last class.
	residueAlphabet = "ACDEFGHIKLMNPQRSTVWY"

	numResidueClasses = len(residueAlphabet) + 1

	// hydropathyRange is the spread of the Kyte-Doolittle scale.
	hydropathyRange = 9.0
)

const (
	wildOffset          = 0
	mutantOffset        = numResidueClasses
	hydropathyFeature   = 2 * numResidueClasses
	conservationFeature = hydropathyFeature + 1

	// NumFeatures is the size of the feature vector of one mutation.
	NumFeatures = conservationFeature + 1
)

// kyteDoolittle is the hydropathy index of every standard residue.
var kyteDoolittle = map[byte]float64{
	'A': 1.8, 'R': -4.5, 'N': -3.5, 'D': -3.5, 'C': 2.5,
	'Q': -3.5, 'E': -3.5, 'G': -0.4, 'H': -3.2, 'I': 4.5,
	'L': 3.8, 'K': -3.9, 'M': 1.9, 'F': 2.8, 'P': -1.6,
	'S': -0.8, 'T': -0.7, 'W': -0.9, 'Y': -1.3, 'V': 4.2,
}

// Features returns the feature vector of a mutation input: wild and mutant
// residue one-hots, the scaled hydropathy delta and, for alignments, the
// conservation of the wild residue at the mutated column.
func Features(input nn.Input) ([]float64, error) {
	var (
		wild, mutant byte
		conservation float64
	)

	pos := input.Position()
	switch in := input.(type) {
	case *dataset.SequencePair:
		wild = residueAt(in.Wild, pos)
		mutant = residueAt(in.Mutant, pos)
	case *dataset.AlignmentPair:
		if in.Wild == nil || in.Mutant == nil || len(in.Wild.Records) == 0 || len(in.Mutant.Records) == 0 {
			return nil, errors.New("alignment pair without reference rows")
		}

		wild = residueAt(in.Wild.Records[0].Sequence, pos)
		mutant = residueAt(in.Mutant.Records[0].Sequence, pos)
		conservation = columnConservation(in.Wild.Sequences(), pos, wild)
	case *dataset.TokenizedPair:
		if in.WildSeq == nil || in.MutSeq == nil {
			return nil, errors.New("tokenized pair without sequences")
		}

		wild = tokenAt(in.WildSeq, pos)
		mutant = tokenAt(in.MutSeq, pos)
	default:
		return nil, errors.Errorf("unsupported input %T", input)
	}

	features := make([]float64, NumFeatures)
	features[wildOffset+residueClass(wild)] = 1
	features[mutantOffset+residueClass(mutant)] = 1
	features[hydropathyFeature] = (kyteDoolittle[mutant] - kyteDoolittle[wild]) / hydropathyRange
	features[conservationFeature] = conservation
	return features, nil
}

// residueAt returns the residue at the 1-based pos of seq, 'X' out of range.
func residueAt(seq string, pos int) byte {
	if pos < 1 || pos > len(seq) {
		return 'X'
	}

	return upper(seq[pos-1])
}

// tokenAt returns the residue at the 1-based pos of an encoded sequence. The
// first token is the direction tag.
func tokenAt(e *dataset.Encoding, pos int) byte {
	if pos < 1 || pos >= len(e.InputIDs) {
		return 'X'
	}

	token := dataset.ResidueToken(e.InputIDs[pos])
	if len(token) != 1 {
		return 'X'
	}

	return upper(token[0])
}

func columnConservation(rows []string, pos int, residue byte) float64 {
	if len(rows) == 0 {
		return 0
	}

	matches := 0
	for _, row := range rows {
		if residueAt(row, pos) == residue {
			matches++
		}
	}

	return float64(matches) / float64(len(rows))
}

func residueClass(residue byte) int {
	if i := strings.IndexByte(residueAlphabet, residue); i >= 0 {
		return i
	}

	return numResidueClasses - 1
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}

	return b
}
