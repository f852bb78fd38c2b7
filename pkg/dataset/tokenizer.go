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
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// Special tokens of the residue vocabulary.
const (
	PadToken     = "<pad>"
	EOSToken     = "</s>"
	UnknownToken = "<unk>"
	AA2FoldToken = "<AA2fold>"
	Fold2AAToken = "<fold2AA>"

	residueLetters = "ALGVSREDTIPKFQNYMHWCXBOUZ"
)

// Encoding is a tokenized, padded sequence.
type Encoding struct {
	InputIDs      []int
	AttentionMask []int
}

// Len returns the number of attended tokens.
func (e *Encoding) Len() int {
	n := 0
	for _, m := range e.AttentionMask {
		n += m
	}

	return n
}

// Tokenizer encodes a preprocessed residue string into maxLength ids.
type Tokenizer interface {
	Encode(text string, maxLength int) (*Encoding, error)
}

// Preprocess maps rare residues to X, separates residues by spaces and
// prepends the translation direction: amino acid strings are uppercase and
// structure (3Di) strings are lowercase.
func Preprocess(seq string) string {
	seq = strings.Map(func(r rune) rune {
		switch r {
		case 'U', 'Z', 'O', 'B':
			return 'X'
		}
		return r
	}, seq)

	spaced := make([]string, 0, len(seq))
	for _, r := range seq {
		spaced = append(spaced, string(r))
	}
	text := strings.Join(spaced, " ")

	if isUpper(text) {
		return AA2FoldToken + " " + text
	}

	return Fold2AAToken + " " + text
}

// isUpper reports whether s has at least one cased letter and no lowercase
// letter.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}

	return cased
}

type residueTokenizer struct {
	vocab map[string]int
	pad   int
	eos   int
	unk   int
}

// residueTokens lists the residue vocabulary in id order.
var residueTokens = func() []string {
	tokens := []string{PadToken, EOSToken, UnknownToken}
	for _, r := range residueLetters {
		tokens = append(tokens, string(r))
	}
	for _, r := range strings.ToLower(residueLetters) {
		tokens = append(tokens, string(r))
	}

	return append(tokens, AA2FoldToken, Fold2AAToken)
}()

// ResidueToken returns the token of a residue vocabulary id, UnknownToken for
// ids out of range.
func ResidueToken(id int) string {
	if id < 0 || id >= len(residueTokens) {
		return UnknownToken
	}

	return residueTokens[id]
}

// NewResidueTokenizer returns a whitespace tokenizer over single residue
// letters in both alphabets plus the direction tags.
func NewResidueTokenizer() Tokenizer {
	vocab := make(map[string]int, len(residueTokens))
	for id, token := range residueTokens {
		vocab[token] = id
	}

	return &residueTokenizer{
		vocab: vocab,
		pad:   vocab[PadToken],
		eos:   vocab[EOSToken],
		unk:   vocab[UnknownToken],
	}
}

// Encode maps tokens to ids, truncates to leave room for the end token,
// appends it and pads to maxLength.
func (t *residueTokenizer) Encode(text string, maxLength int) (*Encoding, error) {
	if maxLength < 1 {
		return nil, errors.Errorf("invalid max length %d", maxLength)
	}

	tokens := strings.Fields(text)
	if len(tokens) > maxLength-1 {
		tokens = tokens[:maxLength-1]
	}

	e := &Encoding{
		InputIDs:      make([]int, maxLength),
		AttentionMask: make([]int, maxLength),
	}

	for i, token := range tokens {
		id, ok := t.vocab[token]
		if !ok {
			id = t.unk
		}

		e.InputIDs[i] = id
		e.AttentionMask[i] = 1
	}

	e.InputIDs[len(tokens)] = t.eos
	e.AttentionMask[len(tokens)] = 1
	for i := len(tokens) + 1; i < maxLength; i++ {
		e.InputIDs[i] = t.pad
	}

	return e, nil
}
