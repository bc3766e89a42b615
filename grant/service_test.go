// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opentrusty/postcore/audit"
	"github.com/opentrusty/postcore/clock"
	"github.com/opentrusty/postcore/mask"
)

type grantKey struct {
	postID     string
	targetKind TargetKind
	targetID   string
}

type mockRepository struct {
	mu     sync.Mutex
	grants map[grantKey]*PostAccessGrant
}

func newMockRepository() *mockRepository {
	return &mockRepository{grants: make(map[grantKey]*PostAccessGrant)}
}

func (m *mockRepository) Upsert(ctx context.Context, g *PostAccessGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.grants[grantKey{g.PostID, g.TargetKind, g.TargetID}] = &cp
	return nil
}

func (m *mockRepository) Revoke(ctx context.Context, postID string, targetKind TargetKind, targetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants, grantKey{postID, targetKind, targetID})
	return nil
}

func (m *mockRepository) ListForPost(ctx context.Context, postID string) ([]*PostAccessGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*PostAccessGrant
	for k, g := range m.grants {
		if k.postID == postID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepository) ResolveAccessMask(ctx context.Context, postID, keyID string, groupIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	combined := 0
	if g, ok := m.grants[grantKey{postID, TargetKey, keyID}]; ok {
		combined = mask.Combine(combined, g.PermissionMask)
	}
	for _, gid := range groupIDs {
		if g, ok := m.grants[grantKey{postID, TargetGroup, gid}]; ok {
			combined = mask.Combine(combined, g.PermissionMask)
		}
	}
	return combined, nil
}

type noopAuditLogger struct {
	events []audit.Event
	mu     sync.Mutex
}

func (n *noopAuditLogger) Emit(ctx context.Context, e audit.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func newTestManager(repo Repository, logger *noopAuditLogger) *Manager {
	fixed := clock.Fixed{At: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)}
	return NewManager(repo, logger, fixed)
}

func TestUpsertAccessGrantRejectsInvalidMask(t *testing.T) {
	mgr := newTestManager(newMockRepository(), &noopAuditLogger{})
	_, err := mgr.UpsertAccessGrant(context.Background(), audit.KindOwner, "owner-1", "post-1", TargetKey, "key-1", 0)
	if !errors.Is(err, ErrInvalidMask) {
		t.Errorf("UpsertAccessGrant(0) error = %v, want ErrInvalidMask", err)
	}

	_, err = mgr.UpsertAccessGrant(context.Background(), audit.KindOwner, "owner-1", "post-1", TargetKey, "key-1", 0x10)
	if !errors.Is(err, ErrInvalidMask) {
		t.Errorf("UpsertAccessGrant(reserved bit) error = %v, want ErrInvalidMask", err)
	}
}

func TestUpsertAccessGrantIsIdempotentOverwrite(t *testing.T) {
	repo := newMockRepository()
	mgr := newTestManager(repo, &noopAuditLogger{})
	ctx := context.Background()

	if _, err := mgr.UpsertAccessGrant(ctx, audit.KindOwner, "owner-1", "post-1", TargetKey, "key-1", mask.View); err != nil {
		t.Fatalf("first UpsertAccessGrant() error = %v", err)
	}
	if _, err := mgr.UpsertAccessGrant(ctx, audit.KindOwner, "owner-1", "post-1", TargetKey, "key-1", mask.View|mask.Comment); err != nil {
		t.Fatalf("second UpsertAccessGrant() error = %v", err)
	}

	got, err := mgr.ResolveAccessMask(ctx, "post-1", "key-1", nil)
	if err != nil {
		t.Fatalf("ResolveAccessMask() error = %v", err)
	}
	if got != mask.View|mask.Comment {
		t.Errorf("ResolveAccessMask() = %#x, want %#x", got, mask.View|mask.Comment)
	}
}

func TestResolveAccessMaskCombinesDirectAndGroup(t *testing.T) {
	repo := newMockRepository()
	mgr := newTestManager(repo, &noopAuditLogger{})
	ctx := context.Background()

	if _, err := mgr.UpsertAccessGrant(ctx, audit.KindOwner, "owner-1", "post-1", TargetKey, "key-1", mask.View); err != nil {
		t.Fatalf("UpsertAccessGrant(direct) error = %v", err)
	}
	if _, err := mgr.UpsertAccessGrant(ctx, audit.KindOwner, "owner-1", "post-1", TargetGroup, "group-1", mask.ManageAccess); err != nil {
		t.Fatalf("UpsertAccessGrant(group) error = %v", err)
	}

	got, err := mgr.ResolveAccessMask(ctx, "post-1", "key-1", []string{"group-1"})
	if err != nil {
		t.Fatalf("ResolveAccessMask() error = %v", err)
	}
	if got != mask.View|mask.ManageAccess {
		t.Errorf("ResolveAccessMask() = %#x, want %#x", got, mask.View|mask.ManageAccess)
	}
}

func TestRevokeAccessGrantRemovesEntry(t *testing.T) {
	repo := newMockRepository()
	mgr := newTestManager(repo, &noopAuditLogger{})
	ctx := context.Background()

	if _, err := mgr.UpsertAccessGrant(ctx, audit.KindOwner, "owner-1", "post-1", TargetKey, "key-1", mask.View); err != nil {
		t.Fatalf("UpsertAccessGrant() error = %v", err)
	}
	if err := mgr.RevokeAccessGrant(ctx, audit.KindOwner, "owner-1", "post-1", TargetKey, "key-1"); err != nil {
		t.Fatalf("RevokeAccessGrant() error = %v", err)
	}

	got, err := mgr.ResolveAccessMask(ctx, "post-1", "key-1", nil)
	if err != nil {
		t.Fatalf("ResolveAccessMask() error = %v", err)
	}
	if got != 0 {
		t.Errorf("ResolveAccessMask() after revoke = %#x, want 0", got)
	}
}
