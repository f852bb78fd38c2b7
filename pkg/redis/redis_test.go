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

package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_IsEnabled(t *testing.T) {
	tests := []struct {
		name   string
		addrs  []string
		expect func(t *testing.T, ok bool)
	}{
		{
			name:  "addrs is not empty",
			addrs: []string{"172.0.0.1"},
			expect: func(t *testing.T, ok bool) {
				assert := assert.New(t)
				assert.True(ok)
			},
		},
		{
			name:  "addrs is empty",
			addrs: []string{},
			expect: func(t *testing.T, ok bool) {
				assert := assert.New(t)
				assert.False(ok)
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.expect(t, IsEnabled(tc.addrs))
		})
	}
}

func Test_MakeKeyInTrainer(t *testing.T) {
	tests := []struct {
		name   string
		key    func() string
		expect string
	}{
		{
			name:   "namespace key",
			key:    func() string { return MakeNamespaceKeyInTrainer("namespace") },
			expect: "ddgtrainer:namespace",
		},
		{
			name:   "empty namespace",
			key:    func() string { return MakeNamespaceKeyInTrainer("") },
			expect: "ddgtrainer:",
		},
		{
			name:   "key in namespace",
			key:    func() string { return MakeKeyInTrainer("namespace", "foo") },
			expect: "ddgtrainer:namespace:foo",
		},
		{
			name:   "collective inbox key",
			key:    func() string { return MakeCollectiveInboxKeyInTrainer("job", 3, 1) },
			expect: "ddgtrainer:collective:job:3:1",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, tc.key())
		})
	}
}
