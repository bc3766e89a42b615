// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package group

import (
	"context"
	"fmt"

	"github.com/opentrusty/postcore/audit"
	"github.com/opentrusty/postcore/clock"
	"github.com/opentrusty/postcore/id"
)

// Service implements group creation and membership management.
//
// Purpose: Audited entry points over Repository.
// Domain: Authz
type Service struct {
	repo  Repository
	audit audit.Logger
	clock clock.Clock
}

// NewService constructs a group Service.
func NewService(repo Repository, auditLogger audit.Logger, clk clock.Clock) *Service {
	return &Service{repo: repo, audit: auditLogger, clock: clk}
}

// Create makes a new group owned by ownerID.
//
// Purpose: Entry point for an Owner organizing keys into a named collection.
// Domain: Authz
// Audited: Yes (groups:create)
// Errors: ErrInvalidName, system errors.
func (s *Service) Create(ctx context.Context, ownerID, name string) (*Group, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	g := &Group{
		ID:        id.Fresh().External(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("group: failed to create: %w", err)
	}
	s.audit.Emit(ctx, audit.Event{
		ActorKind:   audit.KindOwner,
		ActorID:     ownerID,
		Action:      audit.ActionGroupsCreate,
		SubjectKind: "group",
		SubjectID:   g.ID,
		CreatedAt:   now,
	})
	return g, nil
}

// AddMember idempotently adds keyID to groupID.
//
// Purpose: Grows group membership for bulk post-access grants.
// Domain: Authz
// Audited: Yes (groups:membership_add)
func (s *Service) AddMember(ctx context.Context, actorKind, actorID, groupID, keyID string) error {
	if err := s.repo.AddMember(ctx, Member{GroupID: groupID, KeyID: keyID, CreatedAt: s.clock.Now()}); err != nil {
		return fmt.Errorf("group: failed to add member: %w", err)
	}
	s.audit.Emit(ctx, audit.Event{
		ActorKind:   actorKind,
		ActorID:     actorID,
		Action:      audit.ActionGroupsMembershipAdd,
		SubjectKind: "group",
		SubjectID:   groupID,
		Metadata:    map[string]any{"key_id": keyID},
		CreatedAt:   s.clock.Now(),
	})
	return nil
}

// RemoveMember drops keyID from groupID.
//
// Purpose: Shrinks group membership.
// Domain: Authz
// Audited: Yes (groups:membership_drop)
func (s *Service) RemoveMember(ctx context.Context, actorKind, actorID, groupID, keyID string) error {
	if err := s.repo.RemoveMember(ctx, groupID, keyID); err != nil {
		return fmt.Errorf("group: failed to remove member: %w", err)
	}
	s.audit.Emit(ctx, audit.Event{
		ActorKind:   actorKind,
		ActorID:     actorID,
		Action:      audit.ActionGroupsMembershipDrop,
		SubjectKind: "group",
		SubjectID:   groupID,
		Metadata:    map[string]any{"key_id": keyID},
		CreatedAt:   s.clock.Now(),
	})
	return nil
}
