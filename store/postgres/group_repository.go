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

	"github.com/opentrusty/postcore/group"
)

// GroupRepository implements group.Repository.
//
// Purpose: PostgreSQL persistence for Groups and their key membership.
// Domain: Authz (Infrastructure)
type GroupRepository struct {
	db *DB
}

// NewGroupRepository creates a new group repository.
func NewGroupRepository(db *DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create inserts a new group.
func (r *GroupRepository) Create(ctx context.Context, g *group.Group) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO groups (id, owner_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
	`, g.ID, g.OwnerID, g.Name)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

// GetByID retrieves a group by id.
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*group.Group, error) {
	var g group.Group
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, created_at, updated_at FROM groups WHERE id = $1
	`, id).Scan(&g.ID, &g.OwnerID, &g.Name, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, group.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}

// ListByOwner returns every group belonging to ownerID.
func (r *GroupRepository) ListByOwner(ctx context.Context, ownerID string) ([]*group.Group, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, owner_id, name, created_at, updated_at
		FROM groups WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var out []*group.Group
	for rows.Next() {
		var g group.Group
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.Name, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

// AddMember idempotently adds keyID to groupID.
func (r *GroupRepository) AddMember(ctx context.Context, m group.Member) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO group_memberships (group_id, key_id, added_at)
		VALUES ($1, $2, now())
		ON CONFLICT (group_id, key_id) DO NOTHING
	`, m.GroupID, m.KeyID)
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

// RemoveMember removes keyID from groupID, if present.
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, keyID string) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM group_memberships WHERE group_id = $1 AND key_id = $2
	`, groupID, keyID)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	return nil
}

// GroupIDsForKey lists every group keyID directly belongs to.
func (r *GroupRepository) GroupIDsForKey(ctx context.Context, keyID string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT group_id FROM group_memberships WHERE key_id = $1
	`, keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups for key: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MembersOf lists every key id directly belonging to groupID.
func (r *GroupRepository) MembersOf(ctx context.Context, groupID string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT key_id FROM group_memberships WHERE group_id = $1
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan key id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
