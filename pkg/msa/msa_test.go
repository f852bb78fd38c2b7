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

package msa

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeAlignment(rows, length int) string {
	var b strings.Builder
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, ">seq%d homolog %d\n", i, i)
		b.WriteString(strings.Repeat(string(rune('A'+i%20)), length))
		b.WriteString("\n")
	}

	return b.String()
}

func TestClean(t *testing.T) {
	tests := []struct {
		name   string
		seq    string
		expect string
	}{
		{name: "uppercase untouched", seq: "MKV-LA", expect: "MKV-LA"},
		{name: "strip insertions", seq: "MKvlA.G*", expect: "MKAG"},
		{name: "empty", seq: "", expect: ""},
		{name: "only insertions", seq: "abc..**", expect: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			cleaned := Clean(tc.seq)
			assert.Equal(tc.expect, cleaned)
			assert.Equal(cleaned, Clean(cleaned))
		})
	}
}

func TestRead(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		expect func(t *testing.T, records []Record, err error)
	}{
		{
			name: "two records",
			data: ">query\nMKVL\nAG\n>hit\nMK-L\n",
			expect: func(t *testing.T, records []Record, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Len(records, 2)
				assert.Equal("query", records[0].Description)
				assert.Equal("MKVLAG", records[0].Sequence)
				assert.Equal("MK-L", records[1].Sequence)
			},
		},
		{
			name: "empty file",
			data: "",
			expect: func(t *testing.T, records []Record, err error) {
				assert := assert.New(t)
				assert.ErrorIs(err, ErrEmptyAlignment)
				assert.Nil(records)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			records, err := Read(strings.NewReader(tc.data))
			tc.expect(t, records, err)
		})
	}
}

func TestSampler_SampleRecords(t *testing.T) {
	tests := []struct {
		name   string
		nseq   int
		rows   int
		length int
		expect func(t *testing.T, a *Alignment, err error)
	}{
		{
			name:   "clamp to available rows",
			nseq:   10,
			rows:   5,
			length: 10,
			expect: func(t *testing.T, a *Alignment, err error) {
				assert := assert.New(t)
				require.NoError(t, err)
				assert.Equal(5, a.N)
				assert.Len(a.Records, 5)

				descriptions := make([]string, 0, len(a.Records))
				for _, r := range a.Records {
					descriptions = append(descriptions, r.Description)
				}
				sort.Strings(descriptions)
				assert.Equal([]string{"seq0 homolog 0", "seq1 homolog 1", "seq2 homolog 2", "seq3 homolog 3", "seq4 homolog 4"}, descriptions)
				assert.Equal("seq0 homolog 0", a.Records[0].Description)
			},
		},
		{
			name:   "shrink to token budget",
			nseq:   64,
			rows:   100,
			length: 500,
			expect: func(t *testing.T, a *Alignment, err error) {
				assert := assert.New(t)
				require.NoError(t, err)
				assert.Equal(TokenBudget/501, a.N)
				assert.Len(a.Records, a.N)
				assert.Len(a.Indices, a.N-1)
			},
		},
		{
			name:   "truncate long rows",
			nseq:   3,
			rows:   4,
			length: 1500,
			expect: func(t *testing.T, a *Alignment, err error) {
				assert := assert.New(t)
				require.NoError(t, err)
				assert.Equal(3, a.N)
				for _, r := range a.Records {
					assert.Len(r.Sequence, TruncatedSequenceLength)
				}
			},
		},
		{
			name:   "exactly the cap is kept",
			nseq:   2,
			rows:   2,
			length: MaxSequenceLength,
			expect: func(t *testing.T, a *Alignment, err error) {
				assert := assert.New(t)
				require.NoError(t, err)
				assert.Len(a.Records[0].Sequence, MaxSequenceLength)
				assert.Equal(2, a.N)
			},
		},
		{
			name:   "single record",
			nseq:   8,
			rows:   1,
			length: 20,
			expect: func(t *testing.T, a *Alignment, err error) {
				assert := assert.New(t)
				require.NoError(t, err)
				assert.Equal(1, a.N)
				assert.Empty(a.Indices)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			records, err := Read(strings.NewReader(makeAlignment(tc.rows, tc.length)))
			require.NoError(t, err)
			s := NewSampler(tc.nseq, rand.New(rand.NewSource(1)))
			a, err := s.SampleRecords(records)
			tc.expect(t, a, err)
		})
	}
}

func TestSampler_Bounds(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		rows := rnd.Intn(40) + 1
		length := rnd.Intn(1400) + 1
		nseq := rnd.Intn(64) + 1

		var b strings.Builder
		for r := 0; r < rows; r++ {
			fmt.Fprintf(&b, ">r%d\n", r)
			b.WriteString(strings.Repeat("Ma.*", length/4+1)[:length])
			b.WriteString("\n")
		}

		records, err := Read(strings.NewReader(b.String()))
		require.NoError(t, err)

		s := NewSampler(nseq, rand.New(rand.NewSource(int64(i))))
		a, err := s.SampleRecords(records)
		require.NoError(t, err)

		trimmed := length
		if trimmed > MaxSequenceLength {
			trimmed = TruncatedSequenceLength
		}

		assert.LessOrEqual(t, a.N, nseq)
		assert.LessOrEqual(t, a.N, rows)
		assert.LessOrEqual(t, a.N*trimmed, TokenBudget)
		assert.Equal(t, Clean(records[0].Sequence[:trimmed]), a.Records[0].Sequence)
		assert.Equal(t, "r0", a.Records[0].Description)

		seen := map[int]bool{}
		for _, idx := range a.Indices {
			assert.False(t, seen[idx])
			assert.Greater(t, idx, 0)
			assert.Less(t, idx, rows)
			seen[idx] = true
		}

		for _, r := range a.Records {
			assert.Equal(t, r.Sequence, Clean(r.Sequence))
		}
	}
}

func TestSampler_Sample(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "wt.a3m")
	require.NoError(t, os.WriteFile(path, []byte(makeAlignment(5, 10)), 0644))

	s := NewSampler(10, rand.New(rand.NewSource(3)))
	a, err := s.Sample(path)
	assert.NoError(err)
	assert.Equal(5, a.N)
	assert.Equal(10, s.NSeq())
	assert.Len(a.Sequences(), 5)

	_, err = s.Sample(filepath.Join(dir, "missing.a3m"))
	assert.Error(err)
}

func TestSampler_sample(t *testing.T) {
	assert := assert.New(t)
	s := NewSampler(4, rand.New(rand.NewSource(1)))
	_, err := s.sample(2, 3)
	assert.ErrorIs(err, ErrInsufficientRows)

	picked, err := s.sample(10, 10)
	assert.NoError(err)
	sort.Ints(picked)
	assert.Equal([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, picked)
}
