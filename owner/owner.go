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

// Package owner models the human principal: registered by email and
// password, and the root of a Key lineage tree via its primary keys.
package owner

import (
	"context"
	"errors"
	"time"
)

// Domain errors.
var (
	ErrNotFound      = errors.New("owner not found")
	ErrAlreadyExists = errors.New("owner already exists")
)

// Owner is a human principal authenticated by password on the Console surface.
//
// Purpose: Root identity that primary Keys are minted under.
// Domain: Identity
// Invariants: Email is unique and case-sensitive. PasswordHash is never empty once set.
type Owner struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository defines persistence for Owners.
//
// Purpose: Abstraction for owner identity storage.
// Domain: Identity
type Repository interface {
	// Create inserts a new owner. Returns ErrAlreadyExists on email collision.
	Create(ctx context.Context, o *Owner) error

	// GetByID retrieves an owner by id.
	GetByID(ctx context.Context, id string) (*Owner, error)

	// GetByEmail retrieves an owner by exact, case-sensitive email.
	GetByEmail(ctx context.Context, email string) (*Owner, error)

	// UpdatePasswordHash replaces an owner's password hash.
	UpdatePasswordHash(ctx context.Context, ownerID, passwordHash string) error
}
