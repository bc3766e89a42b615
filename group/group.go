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

// Package group models a named collection of keys, owned by an Owner, used
// to grant post access to many keys at once.
package group

import (
	"context"
	"errors"
	"time"
)

// Domain errors.
var (
	ErrNotFound    = errors.New("group not found")
	ErrInvalidName = errors.New("group: name must be 1-255 characters")
	ErrNotMember   = errors.New("key is not a member of group")
)

const (
	minNameLength = 1
	maxNameLength = 255
)

// Group is a named collection of Keys owned by an Owner.
//
// Purpose: Target for bulk post-access grants.
// Domain: Authz
// Invariants: Name length in [1, 255].
type Group struct {
	ID        string
	OwnerID   string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateName reports whether name satisfies the length invariant.
func ValidateName(name string) error {
	if len(name) < minNameLength || len(name) > maxNameLength {
		return ErrInvalidName
	}
	return nil
}

// Member is a (group_id, key_id) membership pair.
type Member struct {
	GroupID   string
	KeyID     string
	CreatedAt time.Time
}

// Repository defines persistence for Groups and their membership.
//
// Purpose: Abstraction for group CRUD and membership lookups.
// Domain: Authz
type Repository interface {
	Create(ctx context.Context, g *Group) error
	GetByID(ctx context.Context, id string) (*Group, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Group, error)

	// AddMember is an idempotent upsert: adding an existing member is a
	// success, not an error (spec §4.5 unique-constraint swallow policy).
	AddMember(ctx context.Context, m Member) error
	RemoveMember(ctx context.Context, groupID, keyID string) error

	// GroupIDsForKey lists every group a key directly belongs to.
	GroupIDsForKey(ctx context.Context, keyID string) ([]string, error)

	// MembersOf lists every key id directly belonging to a group.
	MembersOf(ctx context.Context, groupID string) ([]string, error)
}
