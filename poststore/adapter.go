// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package poststore

import (
	"context"

	"github.com/opentrusty/postcore/grant"
)

// GrantAdapter satisfies GrantManager on top of a *grant.Manager,
// translating between this package's boundary-safe TargetKind/AccessGrant
// shapes and grant's internal ones so a post-store integration never
// needs to import grant directly.
type GrantAdapter struct {
	manager *grant.Manager
}

// NewGrantAdapter wraps manager for the post-store boundary.
func NewGrantAdapter(manager *grant.Manager) *GrantAdapter {
	return &GrantAdapter{manager: manager}
}

func (a *GrantAdapter) UpsertAccessGrant(ctx context.Context, actorKind, actorID, postID string, targetKind TargetKind, targetID string, permissionMask int) (AccessGrant, error) {
	g, err := a.manager.UpsertAccessGrant(ctx, actorKind, actorID, postID, grant.TargetKind(targetKind), targetID, permissionMask)
	if err != nil {
		return AccessGrant{}, err
	}
	return AccessGrant{
		ID:             g.ID,
		PostID:         g.PostID,
		TargetKind:     TargetKind(g.TargetKind),
		TargetID:       g.TargetID,
		PermissionMask: g.PermissionMask,
	}, nil
}

func (a *GrantAdapter) RevokeAccessGrant(ctx context.Context, actorKind, actorID, postID string, targetKind TargetKind, targetID string) error {
	return a.manager.RevokeAccessGrant(ctx, actorKind, actorID, postID, grant.TargetKind(targetKind), targetID)
}
