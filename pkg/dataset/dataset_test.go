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
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"d7y.io/ddgtrainer/pkg/msa"
)

const mutationTable = `code,pos,ddg,wt_seq,mut_seq,wt_msa,mut_msa,wt_struct,mut_struct
1A0F,3,-0.5,MKVLA,MKALA,1A0F_wt.a3m,1A0F_mut.a3m,dvvlp,dvalp
1B0G,1,1.25,UZOB,XZOB,1B0G_wt.a3m,1B0G_mut.a3m,aaaa,aaab
`

func TestParseTable(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		required []string
		expect   func(t *testing.T, records []*Record, err error)
	}{
		{
			name:     "all columns",
			data:     mutationTable,
			required: RequiredColumns(KindTokenized),
			expect: func(t *testing.T, records []*Record, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Len(records, 2)
				assert.Equal("1A0F", records[0].Code)
				assert.Equal(3, records[0].Pos)
				assert.Equal(-0.5, records[0].DDG)
				assert.Equal("dvalp", records[0].MutStruct)
			},
		},
		{
			name:     "missing msa column",
			data:     "code,pos,ddg,wt_seq,mut_seq\nA,1,0.1,M,K\n",
			required: RequiredColumns(KindMSA),
			expect: func(t *testing.T, records []*Record, err error) {
				assert := assert.New(t)
				assert.ErrorIs(err, ErrMissingColumn)
				assert.Nil(records)
			},
		},
		{
			name:     "unparsable ddg",
			data:     "code,pos,ddg,wt_seq,mut_seq\nA,1,high,M,K\n",
			required: RequiredColumns(KindSequence),
			expect: func(t *testing.T, records []*Record, err error) {
				assert.Error(t, err)
			},
		},
		{
			name:     "empty input",
			data:     "",
			required: RequiredColumns(KindSequence),
			expect: func(t *testing.T, records []*Record, err error) {
				assert.Error(t, err)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			records, err := ParseTable([]byte(tc.data), tc.required...)
			tc.expect(t, records, err)
		})
	}
}

func TestLengthFilter(t *testing.T) {
	var b strings.Builder
	b.WriteString("code,pos,ddg,wt_seq,mut_seq\n")
	lengths := [][2]int{{10, 10}, {490, 490}, {491, 10}, {10, 491}, {1000, 1000}, {489, 490}}
	for i, l := range lengths {
		fmt.Fprintf(&b, "c%d,1,0.5,%s,%s\n", i, strings.Repeat("A", l[0]), strings.Repeat("K", l[1]))
	}

	for _, kind := range []Kind{KindSequence, KindMSA, KindTokenized} {
		t.Run(string(kind), func(t *testing.T) {
			assert := assert.New(t)
			records, err := ParseTable([]byte(b.String()), RequiredColumns(KindSequence)...)
			require.NoError(t, err)

			ds, err := New(kind, "train", records, WithSampler(msa.NewSampler(4, rand.New(rand.NewSource(1)))))
			require.NoError(t, err)
			assert.Equal("train", ds.Name())
			assert.Equal(3, ds.Len())
			for _, record := range ds.Records() {
				assert.LessOrEqual(record.WildLen, MaxLength-2)
				assert.LessOrEqual(record.MutLen, MaxLength-2)
			}
		})
	}
}

func TestSequenceDataset_Get(t *testing.T) {
	assert := assert.New(t)
	records, err := ParseTable([]byte(mutationTable), RequiredColumns(KindSequence)...)
	require.NoError(t, err)

	ds := NewSequenceDataset("val1", records)
	example, err := ds.Get(0)
	require.NoError(t, err)
	assert.Equal("1A0F", example.Code)
	assert.Equal(-0.5, example.Label)
	pair, ok := example.Inputs.(*SequencePair)
	require.True(t, ok)
	assert.Equal("MKVLA", pair.Wild)
	assert.Equal("MKALA", pair.Mutant)
	assert.Equal(3, pair.Position())

	_, err = ds.Get(2)
	assert.Error(err)
	_, err = ds.Get(-1)
	assert.Error(err)
}

func TestMSADataset_Get(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	for _, name := range []string{"1A0F_wt.a3m", "1A0F_mut.a3m"} {
		data := ">query\nMKVLA\n>hit1\nMKvLA.\n>hit2\nMK-LA\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0644))
	}

	records, err := ParseTable([]byte(mutationTable), RequiredColumns(KindMSA)...)
	require.NoError(t, err)

	ds, err := New(KindMSA, "train", records, WithDir(dir), WithSampler(msa.NewSampler(8, rand.New(rand.NewSource(1)))))
	require.NoError(t, err)

	example, err := ds.Get(0)
	require.NoError(t, err)
	pair, ok := example.Inputs.(*AlignmentPair)
	require.True(t, ok)
	assert.Equal(3, pair.Wild.N)
	assert.Equal("MKVLA", pair.Wild.Records[0].Sequence)
	assert.Equal(3, pair.Position())

	_, err = ds.Get(1)
	assert.Error(err)
}

func TestNew_Errors(t *testing.T) {
	assert := assert.New(t)
	_, err := New(KindMSA, "train", nil)
	assert.Error(err)
	_, err = New(Kind("graph"), "train", nil)
	assert.Error(err)
}

func TestLoad(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "train.csv")
	require.NoError(t, os.WriteFile(path, []byte(mutationTable), 0644))

	ds, err := Load(KindSequence, "train", path)
	assert.NoError(err)
	assert.Equal(2, ds.Len())

	_, err = Load(KindSequence, "train", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(err)
}
