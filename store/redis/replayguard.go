// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package redis provides optional Redis-backed collaborators: currently a
// refresh-token replay guard (authn.ReplayGuard). Nothing in the core
// requires Redis; it is a caching accelerant wired in by the composition
// root only when a Redis address is configured.
package redis

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "postcore:refresh-seen:"

// ReplayGuard implements authn.ReplayGuard with a Redis SETNX.
//
// Purpose: Best-effort fast-path replay detection shared across every
// postcored instance without requiring sticky routing.
// Domain: Credentialing (Infrastructure)
type ReplayGuard struct {
	client *goredis.Client
}

// New connects to the Redis instance described by addr and verifies it
// with a PING.
func New(ctx context.Context, addr, password string, db int) (*ReplayGuard, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}
	return &ReplayGuard{client: client}, nil
}

// Close releases the underlying connection pool.
func (g *ReplayGuard) Close() error {
	return g.client.Close()
}

// MarkSeen implements authn.ReplayGuard.
func (g *ReplayGuard) MarkSeen(ctx context.Context, digest [32]byte, ttl time.Duration) (bool, error) {
	key := keyPrefix + hex.EncodeToString(digest[:])
	firstSeen, err := g.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to mark refresh digest seen: %w", err)
	}
	return firstSeen, nil
}
