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

// Package poststore defines the boundary between this core and the
// external post store (spec §6.4). The core never stores post content;
// it only asks the post store three questions and exposes two
// capabilities in return. Nothing in this package implements storage —
// the post store lives in another service entirely.
package poststore

import (
	"context"

	"github.com/opentrusty/postcore/authz"
)

// Store is everything the core requires of the external post store.
//
// Purpose: Narrow collaborator interface the Authorization Evaluator and
// feed-path handlers depend on, without pulling in a whole post-service
// client.
// Domain: Authz
type Store interface {
	// PostExists reports whether postID refers to a real post. Callers
	// must not use this to distinguish "not found" from "hidden" in a
	// response visible to the caller — both collapse to not_found.
	PostExists(ctx context.Context, postID string) (bool, error)

	// PostInitialAuthorKey returns the key_id of postID's initial author,
	// or "" if postID does not exist or carries no recorded author.
	PostInitialAuthorKey(ctx context.Context, postID string) (string, error)

	// ListVisiblePostIDs returns up to limit post ids visible to keyID
	// (directly or via groupIDs), honoring the same mask resolution as
	// spec §4.9 step 3 — a post is visible iff the resolved mask carries
	// VIEW. cursor is an opaque, store-defined pagination token; an empty
	// cursor starts from the beginning.
	ListVisiblePostIDs(ctx context.Context, keyID string, groupIDs []string, cursor string, limit int) ([]string, error)
}

// Authorizer is the other half of what the core exposes back to the post
// store: authorize_post_action of spec §6.4, which is exactly
// authz.Evaluator.Authorize. Declared here, rather than duplicated, so a
// post-store integration can depend on one narrow interface for both
// halves of the outbound contract.
type Authorizer interface {
	Authorize(ctx context.Context, p authz.Principal, action authz.Action, resourceID string) (authz.Decision, error)
}

// GrantManager is what the core exposes back to the post store: the
// Access Grant Manager's upsert/revoke surface, so the post store can
// drive grant changes that originate from its own UI or API (e.g. a
// post author sharing a draft) without duplicating mask/authz logic.
//
// Purpose: Outbound half of the post-store collaborator contract.
// Domain: Authz
type GrantManager interface {
	UpsertAccessGrant(ctx context.Context, actorKind, actorID, postID string, targetKind TargetKind, targetID string, permissionMask int) (AccessGrant, error)
	RevokeAccessGrant(ctx context.Context, actorKind, actorID, postID string, targetKind TargetKind, targetID string) error
}

// TargetKind mirrors grant.TargetKind at the boundary so this package
// does not force every post-store integration to import grant directly.
type TargetKind string

// Target kinds.
const (
	TargetKey   TargetKind = "key"
	TargetGroup TargetKind = "group"
)

// AccessGrant is the boundary-safe shape of a grant.PostAccessGrant
// returned across the post-store contract.
type AccessGrant struct {
	ID             string
	PostID         string
	TargetKind     TargetKind
	TargetID       string
	PermissionMask int
}
