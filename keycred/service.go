// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package keycred

import (
	"context"
	"errors"
	"fmt"

	"github.com/opentrusty/postcore/audit"
	"github.com/opentrusty/postcore/clock"
	"github.com/opentrusty/postcore/id"
	"github.com/opentrusty/postcore/permission"
	"github.com/opentrusty/postcore/secret"
)

// ErrInvalidActor is returned when the acting key cannot mint children
// (inactive, retired, or of a type that may not mint).
var ErrInvalidActor = errors.New("keycred: actor key cannot mint")

// Manager implements the Key Lifecycle Manager: mint, rotate, activate,
// deactivate, and lineage/descendant traversal.
//
// Purpose: Sole writer of Key rows; enforces the envelope and Use-Key
// rules on every mint.
// Domain: Credentialing
type Manager struct {
	tx     TransactionalRepository
	repo   Repository
	hasher *secret.Hasher
	audit  audit.Logger
	clock  clock.Clock
}

// NewManager constructs a Manager.
func NewManager(tx TransactionalRepository, repo Repository, hasher *secret.Hasher, auditLogger audit.Logger, clk clock.Clock) *Manager {
	return &Manager{tx: tx, repo: repo, hasher: hasher, audit: auditLogger, clock: clk}
}

// MintPrimary mints a new primary key for ownerID.
//
// Purpose: Entry point for an Owner provisioning their first machine
// credential; actor must hold keys:issue.
// Domain: Credentialing
// Audited: Yes (keys:mint)
// Errors: *permission.ForbiddenForUseKeyError is never possible here (primaries
// aren't use keys); system errors from hashing/storage.
func (m *Manager) MintPrimary(ctx context.Context, ownerID string, permissions []string, label string) (*Key, string, error) {
	normalized := permission.Normalize(permissions)
	for _, p := range normalized {
		if !permission.IsWellFormed(p) {
			return nil, "", fmt.Errorf("keycred: permission %q is not well-formed", p)
		}
	}

	plainSecret, err := generateKeySecret()
	if err != nil {
		return nil, "", fmt.Errorf("keycred: failed to generate secret: %w", err)
	}
	hash, err := m.hasher.HashSecret(plainSecret)
	if err != nil {
		return nil, "", fmt.Errorf("keycred: failed to hash secret: %w", err)
	}

	now := m.clock.Now()
	keyID := id.Fresh().External()
	k := &Key{
		ID:                  keyID,
		OwnerID:             ownerID,
		Type:                TypePrimary,
		KeySecretHash:       hash,
		Permissions:         normalized,
		Active:              true,
		InitialAuthorKeyID:  keyID,
		Label:               label,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	pub := &PublicID{PublicID: id.NewKeyPublicID(), KeyID: keyID}

	if err := m.tx.CreatePrimaryKey(ctx, k, pub); err != nil {
		return nil, "", fmt.Errorf("keycred: failed to create primary key: %w", err)
	}

	m.audit.Emit(ctx, audit.Event{
		ActorKind:   audit.KindOwner,
		ActorID:     ownerID,
		Action:      audit.ActionKeysMint,
		SubjectKind: audit.KindKey,
		SubjectID:   keyID,
		CreatedAt:   now,
	})

	return k, plainSecret, nil
}

// MintChild mints a secondary or use key under actor.
//
// Purpose: Delegation of narrower credentials down a lineage tree.
// Domain: Credentialing
// Audited: Yes (keys:mint)
// Errors: ErrInvalidActor, *permission.EnvelopeError, *permission.ForbiddenForUseKeyError, system errors.
func (m *Manager) MintChild(ctx context.Context, actor *Key, childType Type, permissions []string, label string, useCountLimit, deviceLimit *int) (*Key, string, error) {
	if !actor.IsUsable() || (actor.Type != TypePrimary && actor.Type != TypeSecondary) {
		return nil, "", ErrInvalidActor
	}

	normalized := permission.Normalize(permissions)
	if err := permission.ValidateEnvelope(normalized, actor.Permissions); err != nil {
		return nil, "", err
	}
	if childType == TypeUse {
		if err := permission.ValidateUseKey(normalized); err != nil {
			return nil, "", err
		}
	}

	plainSecret, err := generateKeySecret()
	if err != nil {
		return nil, "", fmt.Errorf("keycred: failed to generate secret: %w", err)
	}
	hash, err := m.hasher.HashSecret(plainSecret)
	if err != nil {
		return nil, "", fmt.Errorf("keycred: failed to hash secret: %w", err)
	}

	now := m.clock.Now()
	keyID := id.Fresh().External()
	k := &Key{
		ID:                  keyID,
		Type:                childType,
		KeySecretHash:       hash,
		Permissions:         normalized,
		Active:              true,
		IssuedByKeyID:       actor.ID,
		ParentKeyID:         actor.ID,
		InitialAuthorKeyID:  actor.InitialAuthorKeyID,
		UseCountLimit:       useCountLimit,
		DeviceLimit:         deviceLimit,
		Label:               label,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	pub := &PublicID{PublicID: id.NewKeyPublicID(), KeyID: keyID}

	if err := m.tx.CreateChildKey(ctx, k, pub); err != nil {
		return nil, "", fmt.Errorf("keycred: failed to create child key: %w", err)
	}

	m.audit.Emit(ctx, audit.Event{
		ActorKind:   audit.KindKey,
		ActorID:     actor.ID,
		Action:      audit.ActionKeysMint,
		SubjectKind: audit.KindKey,
		SubjectID:   keyID,
		CreatedAt:   now,
	})

	return k, plainSecret, nil
}

// Rotate replaces old with a fresh key row carrying the same type,
// permissions, lineage, limits, and label.
//
// Purpose: Credential replacement without re-provisioning descendants.
// Domain: Credentialing
// Audited: Yes (keys:rotate)
// Errors: ErrAlreadyRetired, system errors.
func (m *Manager) Rotate(ctx context.Context, old *Key, actorKind, actorID string) (*Key, string, error) {
	if old.IsRetired() {
		return nil, "", ErrAlreadyRetired
	}

	plainSecret, err := generateKeySecret()
	if err != nil {
		return nil, "", fmt.Errorf("keycred: failed to generate secret: %w", err)
	}
	hash, err := m.hasher.HashSecret(plainSecret)
	if err != nil {
		return nil, "", fmt.Errorf("keycred: failed to hash secret: %w", err)
	}

	now := m.clock.Now()
	newID := id.Fresh().External()
	newKey := &Key{
		ID:                  newID,
		OwnerID:             old.OwnerID,
		Type:                old.Type,
		KeySecretHash:       hash,
		Permissions:         old.Permissions,
		Active:              true,
		IssuedByKeyID:       old.IssuedByKeyID,
		ParentKeyID:         old.ParentKeyID,
		InitialAuthorKeyID:  old.InitialAuthorKeyID,
		RotatedFromID:       old.ID,
		UseCountLimit:       old.UseCountLimit,
		UseCountCurrent:     0,
		DeviceLimit:         old.DeviceLimit,
		Label:               old.Label,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	newPub := &PublicID{PublicID: id.NewKeyPublicID(), KeyID: newID}

	if err := m.tx.RotateKey(ctx, newKey, newPub, old.ID); err != nil {
		return nil, "", fmt.Errorf("keycred: failed to rotate key: %w", err)
	}

	m.audit.Emit(ctx, audit.Event{
		ActorKind:   actorKind,
		ActorID:     actorID,
		Action:      audit.ActionKeysRotate,
		SubjectKind: audit.KindKey,
		SubjectID:   old.ID,
		Metadata:    map[string]any{"new_key_id": newID},
		CreatedAt:   now,
	})

	return newKey, plainSecret, nil
}

// Activate idempotently sets a key active.
func (m *Manager) Activate(ctx context.Context, keyID, actorKind, actorID string) error {
	if _, err := m.repo.UpdateActive(ctx, keyID, true); err != nil {
		return fmt.Errorf("keycred: failed to activate: %w", err)
	}
	m.audit.Emit(ctx, audit.Event{
		ActorKind:   actorKind,
		ActorID:     actorID,
		Action:      audit.ActionKeysActivate,
		SubjectKind: audit.KindKey,
		SubjectID:   keyID,
		CreatedAt:   m.clock.Now(),
	})
	return nil
}

// Deactivate idempotently sets a key inactive. With cascade, every
// transitive descendant is also deactivated via an iterative breadth-first
// traversal of parent_key_id — iterative, not recursive, so lineage depth
// cannot grow the call stack.
//
// Purpose: Revocation entry point; cascade covers an entire delegated subtree.
// Domain: Credentialing
// Audited: Yes (keys:deactivate, with keys_deactivated count)
func (m *Manager) Deactivate(ctx context.Context, keyID, actorKind, actorID string, cascade bool) error {
	changed, err := m.repo.UpdateActive(ctx, keyID, false)
	if err != nil {
		return fmt.Errorf("keycred: failed to deactivate: %w", err)
	}
	count := 0
	if changed {
		count = 1
	}

	if cascade {
		queue := []string{keyID}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]

			children, err := m.repo.ListChildren(ctx, current)
			if err != nil {
				return fmt.Errorf("keycred: failed to list children of %s: %w", current, err)
			}
			for _, child := range children {
				childChanged, err := m.repo.UpdateActive(ctx, child.ID, false)
				if err != nil {
					return fmt.Errorf("keycred: failed to deactivate descendant %s: %w", child.ID, err)
				}
				if childChanged {
					count++
				}
				queue = append(queue, child.ID)
			}
		}
	}

	m.audit.Emit(ctx, audit.Event{
		ActorKind:   actorKind,
		ActorID:     actorID,
		Action:      audit.ActionKeysDeactivate,
		SubjectKind: audit.KindKey,
		SubjectID:   keyID,
		Metadata:    map[string]any{"keys_deactivated": count},
		CreatedAt:   m.clock.Now(),
	})
	return nil
}

// Lineage walks parent_key_id upward from keyID, returning root-to-leaf
// order (the root primary first, keyID last).
func (m *Manager) Lineage(ctx context.Context, keyID string) ([]*Key, error) {
	var chain []*Key
	current := keyID
	for current != "" {
		k, err := m.repo.GetByID(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("keycred: failed to load %s: %w", current, err)
		}
		chain = append([]*Key{k}, chain...)
		current = k.ParentKeyID
	}
	return chain, nil
}

// Descendants performs an iterative breadth-first expansion of the
// parent->child relation rooted at keyID, excluding keyID itself.
func (m *Manager) Descendants(ctx context.Context, keyID string) ([]*Key, error) {
	var out []*Key
	queue := []string{keyID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children, err := m.repo.ListChildren(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("keycred: failed to list children of %s: %w", current, err)
		}
		for _, child := range children {
			out = append(out, child)
			queue = append(queue, child.ID)
		}
	}
	return out, nil
}
