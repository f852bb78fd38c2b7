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
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	logger "d7y.io/ddgtrainer/internal/dflog"
)

const (
	// KeySeparator is the separator of redis key.
	KeySeparator = ":"

	// TrainerName is the prefix of every key written by the trainer.
	TrainerName = "ddgtrainer"
)

const (
	// CollectiveNamespace prefix of collective communication keys.
	CollectiveNamespace = "collective"
)

// NewRedis returns a new redis client.
func NewRedis(ctx context.Context, cfg *redis.UniversalOptions) (redis.UniversalClient, error) {
	redis.SetLogger(&redisLogger{})
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:            cfg.Addrs,
		MasterName:       cfg.MasterName,
		DB:               cfg.DB,
		Username:         cfg.Username,
		Password:         cfg.Password,
		SentinelPassword: cfg.SentinelPassword,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// IsEnabled check redis is enabled.
func IsEnabled(addrs []string) bool {
	return len(addrs) != 0
}

// MakeNamespaceKeyInTrainer make namespace key in trainer.
func MakeNamespaceKeyInTrainer(namespace string) string {
	return fmt.Sprintf("%s:%s", TrainerName, namespace)
}

// MakeKeyInTrainer make key in trainer.
func MakeKeyInTrainer(namespace, id string) string {
	return fmt.Sprintf("%s:%s", MakeNamespaceKeyInTrainer(namespace), id)
}

// MakeCollectiveInboxKeyInTrainer make the inbox key of one rank for one
// collective call of a job.
func MakeCollectiveInboxKeyInTrainer(jobID string, seq uint64, rank int) string {
	return MakeKeyInTrainer(CollectiveNamespace, fmt.Sprintf("%s:%d:%d", jobID, seq, rank))
}

type redisLogger struct{}

func (l *redisLogger) Printf(ctx context.Context, format string, v ...any) {
	logger.Infof(format, v...)
}
