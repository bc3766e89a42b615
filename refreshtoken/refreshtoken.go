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

// Package refreshtoken models the bearer record enabling token renewal,
// including single-use rotation and replay detection.
package refreshtoken

import (
	"context"
	"errors"
	"time"
)

// SubjectKind enumerates who a refresh token was issued to.
type SubjectKind string

// Subject kinds.
const (
	SubjectOwner SubjectKind = "owner"
	SubjectKey   SubjectKind = "key"
)

// Domain errors.
var (
	ErrNotFound = errors.New("refresh token not found")
	ErrReplay   = errors.New("refresh token: replay of an already-rotated token")
)

// Token is a bearer record enabling token renewal via single-use rotation.
//
// Purpose: Persisted counterpart to an issued refresh token string.
// Domain: Credentialing
// Invariants:
//   - Usable iff ExpiresAt > now && RevokedAt == nil && RotatedAt == nil.
//   - RotatedAt transitions strictly null -> non-null exactly once.
type Token struct {
	ID           string
	SubjectKind  SubjectKind
	SubjectID    string
	SecretHash   string
	LookupDigest [32]byte
	IssuedAt     time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	RotatedAt    *time.Time
	ReplacedByID string
	IP           string
	UserAgent    string
}

// IsUsable reports whether the token may currently be redeemed, as of now.
func (t *Token) IsUsable(now time.Time) bool {
	return now.Before(t.ExpiresAt) && t.RevokedAt == nil && t.RotatedAt == nil
}

// IsReplay reports whether presenting t again would be a replay: t has
// already been rotated. Expiry and revocation are not considered here.
func (t *Token) IsReplay() bool {
	return t.RotatedAt != nil
}

// Repository defines single-row persistence for refresh tokens.
//
// Purpose: Lookup by digest and revocation; atomic rotation lives on
// TransactionalRepository.
// Domain: Credentialing
type Repository interface {
	GetByLookupDigest(ctx context.Context, digest [32]byte) (*Token, error)
	RevokeAllForSubject(ctx context.Context, subjectKind SubjectKind, subjectID string) error
}

// TransactionalRepository exposes the atomic multi-row operations
// involving refresh tokens, per spec §4.5.
type TransactionalRepository interface {
	CreateRefreshToken(ctx context.Context, t *Token) error

	// RotateRefreshToken inserts newToken and marks the row identified by
	// oldID with rotated_at=now, replaced_by_id=newToken.ID, atomically.
	// The compare-then-rotate step must be serializable: implementations
	// use either SELECT ... FOR UPDATE or an UPDATE ... WHERE
	// rotated_at IS NULL asserting exactly one row affected, so that two
	// concurrent presentations of the same token yield exactly one
	// success and one replay.
	RotateRefreshToken(ctx context.Context, oldID string, newToken *Token) error
}
