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

package set

import "sync"

// SafeSet is a Set guarded by a read-write mutex.
type SafeSet[T comparable] interface {
	Set[T]
}

type safeSet[T comparable] struct {
	mu   *sync.RWMutex
	data Set[T]
}

func NewSafeSet[T comparable]() SafeSet[T] {
	return &safeSet[T]{
		mu:   &sync.RWMutex{},
		data: New[T](),
	}
}

func (s *safeSet[T]) Values() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Values()
}

func (s *safeSet[T]) Add(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Add(v)
}

func (s *safeSet[T]) Delete(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Delete(v)
}

func (s *safeSet[T]) Contains(vals ...T) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Contains(vals...)
}

func (s *safeSet[T]) Len() uint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Len()
}

func (s *safeSet[T]) Range(fn func(T) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.data.Range(fn)
}

func (s *safeSet[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Clear()
}
