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

package collective

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Group is an in-process hub connecting goroutine workers.
type Group struct {
	worldSize int
	mu        sync.Mutex
	rounds    map[uint64]*round
}

type round struct {
	payloads [][]byte
	arrived  int
	done     chan struct{}
}

// NewGroup returns a hub for worldSize workers.
func NewGroup(worldSize int) (*Group, error) {
	if worldSize < 1 {
		return nil, errors.Errorf("invalid world size %d", worldSize)
	}

	return &Group{
		worldSize: worldSize,
		rounds:    map[uint64]*round{},
	}, nil
}

// WorldSize returns the size of the group.
func (g *Group) WorldSize() int {
	return g.worldSize
}

// Communicator returns the member of the group with the given rank. Each rank
// must be taken by exactly one goroutine.
func (g *Group) Communicator(rank int) (Communicator, error) {
	if rank < 0 || rank >= g.worldSize {
		return nil, errors.Errorf("invalid rank %d for world size %d", rank, g.worldSize)
	}

	return &localCommunicator{group: g, rank: rank}, nil
}

func (g *Group) join(seq uint64, rank int, payload []byte) *round {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rounds[seq]
	if !ok {
		r = &round{
			payloads: make([][]byte, g.worldSize),
			done:     make(chan struct{}),
		}
		g.rounds[seq] = r
	}

	r.payloads[rank] = append([]byte(nil), payload...)
	r.arrived++
	if r.arrived == g.worldSize {
		delete(g.rounds, seq)
		close(r.done)
	}

	return r
}

type localCommunicator struct {
	group *Group
	rank  int
	seq   uint64
}

func (c *localCommunicator) Rank() int {
	return c.rank
}

func (c *localCommunicator) WorldSize() int {
	return c.group.worldSize
}

func (c *localCommunicator) Barrier(ctx context.Context) error {
	_, err := c.AllGather(ctx, nil)
	return err
}

func (c *localCommunicator) AllGather(ctx context.Context, payload []byte) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := c.group.join(c.seq, c.rank, payload)
	c.seq++

	select {
	case <-r.done:
		return append([][]byte(nil), r.payloads...), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *localCommunicator) Close() error {
	return nil
}
