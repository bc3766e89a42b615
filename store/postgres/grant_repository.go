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

	"github.com/opentrusty/postcore/grant"
)

// GrantRepository implements grant.Repository.
//
// Purpose: PostgreSQL persistence for PostAccessGrant rows and the
// combined-mask resolution the Authorization Evaluator depends on.
// Domain: Authz (Infrastructure)
type GrantRepository struct {
	db *DB
}

// NewGrantRepository creates a new grant repository.
func NewGrantRepository(db *DB) *GrantRepository {
	return &GrantRepository{db: db}
}

// Upsert inserts or replaces the grant for (post_id, target_kind, target_id).
func (r *GrantRepository) Upsert(ctx context.Context, g *grant.PostAccessGrant) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO post_access_grants (id, post_id, target_kind, target_id, permission_mask, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (post_id, target_kind, target_id)
		DO UPDATE SET permission_mask = EXCLUDED.permission_mask, updated_at = now()
	`, g.ID, g.PostID, g.TargetKind, g.TargetID, g.PermissionMask)
	if err != nil {
		return fmt.Errorf("failed to upsert access grant: %w", err)
	}
	return nil
}

// Revoke removes the grant for (postID, targetKind, targetID), if any.
func (r *GrantRepository) Revoke(ctx context.Context, postID string, targetKind grant.TargetKind, targetID string) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM post_access_grants WHERE post_id = $1 AND target_kind = $2 AND target_id = $3
	`, postID, targetKind, targetID)
	if err != nil {
		return fmt.Errorf("failed to revoke access grant: %w", err)
	}
	return nil
}

// ListForPost returns every grant on postID.
func (r *GrantRepository) ListForPost(ctx context.Context, postID string) ([]*grant.PostAccessGrant, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, post_id, target_kind, target_id, permission_mask
		FROM post_access_grants WHERE post_id = $1
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to list access grants: %w", err)
	}
	defer rows.Close()

	var out []*grant.PostAccessGrant
	for rows.Next() {
		var g grant.PostAccessGrant
		if err := rows.Scan(&g.ID, &g.PostID, &g.TargetKind, &g.TargetID, &g.PermissionMask); err != nil {
			return nil, fmt.Errorf("failed to scan access grant: %w", err)
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

// ResolveAccessMask combines every grant bearing on keyID directly or via
// groupIDs into a single bitwise-OR'd mask for postID. A Postgres-side
// bit_or aggregate does the combining so no row ever needs to leave the
// database to be folded in Go.
func (r *GrantRepository) ResolveAccessMask(ctx context.Context, postID, keyID string, groupIDs []string) (int, error) {
	var mask *int16
	err := r.db.pool.QueryRow(ctx, `
		SELECT COALESCE(BIT_OR(permission_mask), 0)
		FROM post_access_grants
		WHERE post_id = $1
		  AND ((target_kind = 'key' AND target_id = $2)
		   OR (target_kind = 'group' AND target_id = ANY($3)))
	`, postID, keyID, groupIDs).Scan(&mask)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve access mask: %w", err)
	}
	if mask == nil {
		return 0, nil
	}
	return int(*mask), nil
}
