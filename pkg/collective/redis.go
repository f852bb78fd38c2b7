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
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	logger "d7y.io/ddgtrainer/internal/dflog"
	pkgredis "d7y.io/ddgtrainer/pkg/redis"
)

const (
	// DefaultInboxTTL bounds the lifetime of undelivered messages.
	DefaultInboxTTL = 10 * time.Minute

	// pollInterval is the longest a blocking pop waits before the context is
	// checked again.
	pollInterval = time.Second
)

type envelope struct {
	Rank    int    `msgpack:"rank"`
	Payload []byte `msgpack:"payload"`
}

type redisCommunicator struct {
	rdb       redis.UniversalClient
	jobID     string
	rank      int
	worldSize int
	ttl       time.Duration
	seq       uint64
}

// NewRedisCommunicator returns a communicator for worker processes sharing a
// redis server. Every process of a job must use the same jobID.
func NewRedisCommunicator(rdb redis.UniversalClient, jobID string, rank, worldSize int, ttl time.Duration) (Communicator, error) {
	if worldSize < 1 {
		return nil, errors.Errorf("invalid world size %d", worldSize)
	}

	if rank < 0 || rank >= worldSize {
		return nil, errors.Errorf("invalid rank %d for world size %d", rank, worldSize)
	}

	if jobID == "" {
		return nil, errors.New("empty job id")
	}

	if ttl <= 0 {
		ttl = DefaultInboxTTL
	}

	return &redisCommunicator{
		rdb:       rdb,
		jobID:     jobID,
		rank:      rank,
		worldSize: worldSize,
		ttl:       ttl,
	}, nil
}

func (c *redisCommunicator) Rank() int {
	return c.rank
}

func (c *redisCommunicator) WorldSize() int {
	return c.worldSize
}

func (c *redisCommunicator) Barrier(ctx context.Context) error {
	_, err := c.AllGather(ctx, nil)
	return err
}

func (c *redisCommunicator) AllGather(ctx context.Context, payload []byte) ([][]byte, error) {
	seq := c.seq
	c.seq++

	data, err := msgpack.Marshal(&envelope{Rank: c.rank, Payload: payload})
	if err != nil {
		return nil, errors.Wrap(err, "encode envelope")
	}

	for peer := 0; peer < c.worldSize; peer++ {
		key := pkgredis.MakeCollectiveInboxKeyInTrainer(c.jobID, seq, peer)
		if err := c.rdb.RPush(ctx, key, data).Err(); err != nil {
			return nil, errors.Wrapf(err, "push to rank %d", peer)
		}

		if err := c.rdb.Expire(ctx, key, c.ttl).Err(); err != nil {
			return nil, errors.Wrapf(err, "expire inbox of rank %d", peer)
		}
	}

	inbox := pkgredis.MakeCollectiveInboxKeyInTrainer(c.jobID, seq, c.rank)
	payloads := make([][]byte, c.worldSize)
	received := make([]bool, c.worldSize)
	for n := 0; n < c.worldSize; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		values, err := c.rdb.BLPop(ctx, pollInterval, inbox).Result()
		if err == redis.Nil {
			continue
		}

		if err != nil {
			return nil, errors.Wrapf(err, "pop %s", inbox)
		}

		if len(values) != 2 {
			return nil, errors.Errorf("unexpected pop reply of %d values", len(values))
		}

		var e envelope
		if err := msgpack.Unmarshal([]byte(values[1]), &e); err != nil {
			return nil, errors.Wrap(err, "decode envelope")
		}

		if e.Rank < 0 || e.Rank >= c.worldSize {
			return nil, errors.Errorf("envelope from invalid rank %d", e.Rank)
		}

		if received[e.Rank] {
			logger.WithRank(c.rank, c.worldSize).Warnf("duplicate envelope from rank %d in call %d", e.Rank, seq)
			continue
		}

		received[e.Rank] = true
		payloads[e.Rank] = e.Payload
		n++
	}

	return payloads, nil
}

func (c *redisCommunicator) Close() error {
	return c.rdb.Close()
}
