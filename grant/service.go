// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"context"
	"fmt"

	"github.com/opentrusty/postcore/audit"
	"github.com/opentrusty/postcore/clock"
	"github.com/opentrusty/postcore/id"
)

// Manager implements the Access Grant Manager: idempotent grant/revoke
// entry points over Repository.
//
// Purpose: Audited wrapper enforcing mask validity before every write.
// Domain: Authz
type Manager struct {
	repo  Repository
	audit audit.Logger
	clock clock.Clock
}

// NewManager constructs a grant Manager.
func NewManager(repo Repository, auditLogger audit.Logger, clk clock.Clock) *Manager {
	return &Manager{repo: repo, audit: auditLogger, clock: clk}
}

// UpsertAccessGrant creates or replaces the grant for (postID, targetKind, targetID).
//
// Purpose: Entry point for a principal with posts:access:manage granting
// or widening another key/group's access to a post.
// Domain: Authz
// Audited: Yes (posts:access_grant)
// Errors: ErrInvalidMask, system errors.
func (m *Manager) UpsertAccessGrant(ctx context.Context, actorKind, actorID, postID string, targetKind TargetKind, targetID string, permissionMask int) (*PostAccessGrant, error) {
	g := &PostAccessGrant{
		ID:             id.Fresh().External(),
		PostID:         postID,
		TargetKind:     targetKind,
		TargetID:       targetID,
		PermissionMask: permissionMask,
	}
	if err := validate(g); err != nil {
		return nil, err
	}
	if err := m.repo.Upsert(ctx, g); err != nil {
		return nil, fmt.Errorf("grant: failed to upsert: %w", err)
	}

	m.audit.Emit(ctx, audit.Event{
		ActorKind:   actorKind,
		ActorID:     actorID,
		Action:      audit.ActionAccessGrant,
		SubjectKind: "post",
		SubjectID:   postID,
		Metadata: map[string]any{
			"target_kind":     string(targetKind),
			"target_id":       targetID,
			"permission_mask": permissionMask,
		},
		CreatedAt: m.clock.Now(),
	})
	return g, nil
}

// RevokeAccessGrant removes the grant for (postID, targetKind, targetID), if any.
//
// Purpose: Entry point for a principal with posts:access:manage withdrawing access.
// Domain: Authz
// Audited: Yes (posts:access_revoke)
func (m *Manager) RevokeAccessGrant(ctx context.Context, actorKind, actorID, postID string, targetKind TargetKind, targetID string) error {
	if err := m.repo.Revoke(ctx, postID, targetKind, targetID); err != nil {
		return fmt.Errorf("grant: failed to revoke: %w", err)
	}
	m.audit.Emit(ctx, audit.Event{
		ActorKind:   actorKind,
		ActorID:     actorID,
		Action:      audit.ActionAccessRevoke,
		SubjectKind: "post",
		SubjectID:   postID,
		Metadata: map[string]any{
			"target_kind": string(targetKind),
			"target_id":   targetID,
		},
		CreatedAt: m.clock.Now(),
	})
	return nil
}

// ResolveAccessMask returns the combined (direct OR group) access mask a
// key holds on a post.
func (m *Manager) ResolveAccessMask(ctx context.Context, postID, keyID string, groupIDs []string) (int, error) {
	return m.repo.ResolveAccessMask(ctx, postID, keyID, groupIDs)
}
