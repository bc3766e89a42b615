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

// Package grant models the PostAccessGrant: an authorization assertion
// binding a key or group to a bitmask of permitted operations on a post.
package grant

import (
	"context"
	"errors"

	"github.com/opentrusty/postcore/mask"
)

// TargetKind enumerates what a grant's target_id refers to.
type TargetKind string

// Target kinds.
const (
	TargetKey   TargetKind = "key"
	TargetGroup TargetKind = "group"
)

// ErrInvalidMask is returned when a caller supplies a mask outside the
// enumerated bit range.
var ErrInvalidMask = errors.New("grant: permission_mask is not valid")

// PostAccessGrant is an authorization assertion for a post collaborator.
//
// Purpose: Source of truth consulted by the Authorization Evaluator for
// per-resource decisions.
// Domain: Authz
// Invariants: Unique on (PostID, TargetKind, TargetID). PermissionMask >= 1.
type PostAccessGrant struct {
	ID             string
	PostID         string
	TargetKind     TargetKind
	TargetID       string
	PermissionMask int
}

// Repository defines persistence for PostAccessGrants.
//
// Purpose: Upsert-idempotent grant storage and revocation.
// Domain: Authz
type Repository interface {
	// Upsert inserts or replaces the grant for (post_id, target_kind, target_id).
	Upsert(ctx context.Context, g *PostAccessGrant) error
	Revoke(ctx context.Context, postID string, targetKind TargetKind, targetID string) error
	ListForPost(ctx context.Context, postID string) ([]*PostAccessGrant, error)

	// ResolveAccessMask combines every grant bearing on keyID directly or
	// via groupIDs into a single bitwise-OR'd mask for postID.
	ResolveAccessMask(ctx context.Context, postID, keyID string, groupIDs []string) (int, error)
}

// validate checks the structural invariants of a grant before it reaches
// the repository.
func validate(g *PostAccessGrant) error {
	if !mask.IsValid(g.PermissionMask) || g.PermissionMask == 0 {
		return ErrInvalidMask
	}
	return nil
}
