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

package authn

import (
	"context"
	"time"
)

// ReplayGuard is an optional, best-effort fast-path for refresh-token
// replay detection. When configured, RotateRefresh consults it before
// touching Postgres; when absent, replay detection relies solely on the
// database row's rotated_at assertion (see
// refreshtoken.TransactionalRepository.RotateRefreshToken).
//
// Purpose: Shave the common case off the database's row lock without
// weakening the guarantee it provides — a guard miss or error never
// blocks rotation, it only loses the fast path.
// Domain: Credentialing
type ReplayGuard interface {
	// MarkSeen records digest as consumed for ttl and reports whether this
	// was the first time it was seen. A false result is a replay signal.
	MarkSeen(ctx context.Context, digest [32]byte, ttl time.Duration) (firstSeen bool, err error)
}

// replayGuardTTL bounds how long a consumed refresh token's digest is
// remembered by the guard; it only needs to outlive the rotation race
// window, not the token's full lifetime.
const replayGuardTTL = 5 * time.Minute

// Option configures optional Service collaborators.
type Option func(*Service)

// WithReplayGuard attaches an optional fast-path replay detector.
func WithReplayGuard(g ReplayGuard) Option {
	return func(s *Service) { s.replayGuard = g }
}

// checkReplayGuard consults the optional ReplayGuard, if any, returning
// true when it positively signals a replay. A guard error is treated as
// "no signal" — rotation proceeds and the database assertion remains the
// authoritative check.
func (s *Service) checkReplayGuard(ctx context.Context, digest [32]byte) bool {
	if s.replayGuard == nil {
		return false
	}
	firstSeen, err := s.replayGuard.MarkSeen(ctx, digest, replayGuardTTL)
	if err != nil {
		return false
	}
	return !firstSeen
}
