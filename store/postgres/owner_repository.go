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
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/postcore/owner"
)

// OwnerRepository implements owner.Repository.
//
// Purpose: PostgreSQL persistence for Owner identity.
// Domain: Identity (Infrastructure)
type OwnerRepository struct {
	db *DB
}

// NewOwnerRepository creates a new owner repository.
func NewOwnerRepository(db *DB) *OwnerRepository {
	return &OwnerRepository{db: db}
}

// Create inserts a new owner. Returns owner.ErrAlreadyExists on email collision.
func (r *OwnerRepository) Create(ctx context.Context, o *owner.Owner) error {
	now := time.Now()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO owners (id, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, o.ID, o.Email, o.PasswordHash, now)
	if err != nil {
		if isUniqueViolation(err) {
			return owner.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert owner: %w", err)
	}
	o.CreatedAt = now
	o.UpdatedAt = now
	return nil
}

// GetByID retrieves an owner by id.
func (r *OwnerRepository) GetByID(ctx context.Context, id string) (*owner.Owner, error) {
	return r.scanOne(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM owners WHERE id = $1
	`, id)
}

// GetByEmail retrieves an owner by exact, case-sensitive email.
func (r *OwnerRepository) GetByEmail(ctx context.Context, email string) (*owner.Owner, error) {
	return r.scanOne(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM owners WHERE email = $1
	`, email)
}

func (r *OwnerRepository) scanOne(ctx context.Context, query string, arg any) (*owner.Owner, error) {
	var o owner.Owner
	err := r.db.pool.QueryRow(ctx, query, arg).Scan(&o.ID, &o.Email, &o.PasswordHash, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, owner.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}
	return &o, nil
}

// UpdatePasswordHash replaces an owner's password hash.
func (r *OwnerRepository) UpdatePasswordHash(ctx context.Context, ownerID, passwordHash string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE owners SET password_hash = $2, updated_at = now() WHERE id = $1
	`, ownerID, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update owner password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return owner.ErrNotFound
	}
	return nil
}
