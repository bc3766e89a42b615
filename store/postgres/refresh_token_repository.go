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

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/postcore/refreshtoken"
)

// RefreshTokenRepository implements refreshtoken.Repository and
// refreshtoken.TransactionalRepository.
//
// Purpose: PostgreSQL persistence for single-use refresh tokens and their
// replay-safe rotation.
// Domain: Credentialing (Infrastructure)
type RefreshTokenRepository struct {
	db *DB
}

// NewRefreshTokenRepository creates a new refresh token repository.
func NewRefreshTokenRepository(db *DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func scanRefreshToken(row pgx.Row) (*refreshtoken.Token, error) {
	var t refreshtoken.Token
	var digest []byte
	var replacedBy *string
	err := row.Scan(
		&t.ID, &t.SubjectKind, &t.SubjectID, &t.SecretHash, &digest,
		&t.IssuedAt, &t.ExpiresAt, &t.RevokedAt, &t.RotatedAt, &replacedBy,
		&t.IP, &t.UserAgent,
	)
	if err != nil {
		return nil, err
	}
	if len(digest) != len(t.LookupDigest) {
		return nil, fmt.Errorf("refresh token lookup_digest has unexpected length %d", len(digest))
	}
	copy(t.LookupDigest[:], digest)
	if replacedBy != nil {
		t.ReplacedByID = *replacedBy
	}
	return &t, nil
}

// GetByLookupDigest retrieves a refresh token by its keyed lookup digest.
func (r *RefreshTokenRepository) GetByLookupDigest(ctx context.Context, digest [32]byte) (*refreshtoken.Token, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, subject_kind, subject_id, secret_hash, lookup_digest,
			issued_at, expires_at, revoked_at, rotated_at, replaced_by_id,
			COALESCE(ip, ''), COALESCE(user_agent, '')
		FROM refresh_tokens WHERE lookup_digest = $1
	`, digest[:])
	t, err := scanRefreshToken(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, refreshtoken.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return t, nil
}

// RevokeAllForSubject marks every live refresh token for subjectID as
// revoked, used to invalidate an entire family on replay detection.
func (r *RefreshTokenRepository) RevokeAllForSubject(ctx context.Context, subjectKind refreshtoken.SubjectKind, subjectID string) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = now()
		WHERE subject_kind = $1 AND subject_id = $2 AND revoked_at IS NULL
	`, subjectKind, subjectID)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh tokens for subject: %w", err)
	}
	return nil
}

// CreateRefreshToken inserts a new refresh token row.
func (r *RefreshTokenRepository) CreateRefreshToken(ctx context.Context, t *refreshtoken.Token) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (
			id, subject_kind, subject_id, secret_hash, lookup_digest,
			issued_at, expires_at, revoked_at, rotated_at, replaced_by_id, ip, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		t.ID, t.SubjectKind, t.SubjectID, t.SecretHash, t.LookupDigest[:],
		t.IssuedAt, t.ExpiresAt, t.RevokedAt, t.RotatedAt, nullString(t.ReplacedByID),
		nullString(t.IP), nullString(t.UserAgent),
	)
	if err != nil {
		return fmt.Errorf("failed to insert refresh token: %w", err)
	}
	return nil
}

// RotateRefreshToken inserts newToken and marks oldID rotated/replaced,
// atomically. The UPDATE asserts rotated_at IS NULL so that two
// concurrent redemptions of the same token race on exactly one row: the
// loser sees zero rows affected and reports replay.
func (r *RefreshTokenRepository) RotateRefreshToken(ctx context.Context, oldID string, newToken *refreshtoken.Token) error {
	tx, err := r.db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO refresh_tokens (
			id, subject_kind, subject_id, secret_hash, lookup_digest,
			issued_at, expires_at, revoked_at, rotated_at, replaced_by_id, ip, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		newToken.ID, newToken.SubjectKind, newToken.SubjectID, newToken.SecretHash, newToken.LookupDigest[:],
		newToken.IssuedAt, newToken.ExpiresAt, newToken.RevokedAt, newToken.RotatedAt, nullString(newToken.ReplacedByID),
		nullString(newToken.IP), nullString(newToken.UserAgent),
	); err != nil {
		return fmt.Errorf("failed to insert rotated refresh token: %w", err)
	}

	result, err := tx.Exec(ctx, `
		UPDATE refresh_tokens SET rotated_at = now(), replaced_by_id = $2
		WHERE id = $1 AND rotated_at IS NULL
	`, oldID, newToken.ID)
	if err != nil {
		return fmt.Errorf("failed to mark refresh token rotated: %w", err)
	}
	if result.RowsAffected() == 0 {
		return refreshtoken.ErrReplay
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit refresh token rotation: %w", err)
	}
	return nil
}
