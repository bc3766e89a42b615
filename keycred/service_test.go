// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package keycred

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opentrusty/postcore/audit"
	"github.com/opentrusty/postcore/clock"
	"github.com/opentrusty/postcore/permission"
	"github.com/opentrusty/postcore/secret"
)

type mockStore struct {
	mu          sync.Mutex
	keys        map[string]*Key
	publicIDs   map[string]string // publicID -> keyID
	fingerprint map[string]map[[32]byte]bool
}

func newMockStore() *mockStore {
	return &mockStore{
		keys:        make(map[string]*Key),
		publicIDs:   make(map[string]string),
		fingerprint: make(map[string]map[[32]byte]bool),
	}
}

func (s *mockStore) CreatePrimaryKey(ctx context.Context, key *Key, publicID *PublicID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *key
	s.keys[key.ID] = &cp
	s.publicIDs[publicID.PublicID] = key.ID
	return nil
}

func (s *mockStore) CreateChildKey(ctx context.Context, key *Key, publicID *PublicID) error {
	return s.CreatePrimaryKey(ctx, key, publicID)
}

func (s *mockStore) RotateKey(ctx context.Context, newKey *Key, newPublicID *PublicID, oldKeyID string) error {
	s.mu.Lock()
	old, ok := s.keys[oldKeyID]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	now := newKey.CreatedAt
	old.Active = false
	old.RotatedToID = newKey.ID
	old.RetiredAt = &now
	return s.CreatePrimaryKey(ctx, newKey, newPublicID)
}

func (s *mockStore) GetByID(ctx context.Context, id string) (*Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (s *mockStore) GetByPublicID(ctx context.Context, publicID string) (*Key, error) {
	s.mu.Lock()
	keyID, ok := s.publicIDs[publicID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, keyID)
}

func (s *mockStore) ListChildren(ctx context.Context, parentKeyID string) ([]*Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Key
	for _, k := range s.keys {
		if k.ParentKeyID == parentKeyID {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *mockStore) UpdateActive(ctx context.Context, id string, active bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return false, ErrNotFound
	}
	if k.Active == active {
		return false, nil
	}
	k.Active = active
	return true, nil
}

func (s *mockStore) IncrementUseCount(ctx context.Context, keyID string, fp *[32]byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[keyID]
	if !ok {
		return 0, ErrNotFound
	}
	k.UseCountCurrent++
	if fp != nil {
		if s.fingerprint[keyID] == nil {
			s.fingerprint[keyID] = make(map[[32]byte]bool)
		}
		s.fingerprint[keyID][*fp] = true
	}
	return k.UseCountCurrent, nil
}

func (s *mockStore) CountDistinctFingerprints(ctx context.Context, keyID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fingerprint[keyID]), nil
}

func (s *mockStore) HasFingerprint(ctx context.Context, keyID string, fp [32]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fingerprint[keyID][fp], nil
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

func newTestManager(store *mockStore, logger *noopAuditLogger) *Manager {
	hasher := secret.NewHasher(secret.DefaultParams(), []byte("test-refresh-lookup-key-32bytes!"))
	fixed := clock.Fixed{At: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)}
	return NewManager(store, store, hasher, logger, fixed)
}

func TestMintPrimaryProducesUsableKey(t *testing.T) {
	store := newMockStore()
	logger := &noopAuditLogger{}
	mgr := newTestManager(store, logger)

	k, plainSecret, err := mgr.MintPrimary(context.Background(), "owner-1", []string{permission.KeysIssue}, "main")
	if err != nil {
		t.Fatalf("MintPrimary() error = %v", err)
	}
	if k.Type != TypePrimary {
		t.Errorf("Type = %v, want primary", k.Type)
	}
	if k.InitialAuthorKeyID != k.ID {
		t.Error("expected primary key to be its own initial author")
	}
	if k.ParentKeyID != "" || k.IssuedByKeyID != "" {
		t.Error("expected primary key to have no parent/issuer")
	}
	if !k.IsUsable() {
		t.Error("expected fresh primary key to be usable")
	}
	if plainSecret == "" {
		t.Error("expected a plaintext secret to be returned")
	}
	if len(logger.events) != 1 || logger.events[0].Action != audit.ActionKeysMint {
		t.Errorf("expected one keys:mint audit event, got %+v", logger.events)
	}
}

func TestMintChildEnforcesEnvelope(t *testing.T) {
	store := newMockStore()
	mgr := newTestManager(store, &noopAuditLogger{})

	parent, _, err := mgr.MintPrimary(context.Background(), "owner-1", []string{permission.PostsRead}, "parent")
	if err != nil {
		t.Fatalf("MintPrimary() error = %v", err)
	}

	_, _, err = mgr.MintChild(context.Background(), parent, TypeSecondary, []string{permission.PostsRead, permission.CommentsWrite}, "child", nil, nil)
	var envErr *permission.EnvelopeError
	if !errors.As(err, &envErr) {
		t.Fatalf("MintChild() error = %v, want *permission.EnvelopeError", err)
	}
}

func TestMintChildRejectsForbiddenUseKeyPermissions(t *testing.T) {
	store := newMockStore()
	mgr := newTestManager(store, &noopAuditLogger{})

	parent, _, err := mgr.MintPrimary(context.Background(), "owner-1", []string{permission.PostsCreate, permission.KeysIssue}, "parent")
	if err != nil {
		t.Fatalf("MintPrimary() error = %v", err)
	}

	_, _, err = mgr.MintChild(context.Background(), parent, TypeUse, []string{permission.PostsCreate}, "child", nil, nil)
	var forbiddenErr *permission.ForbiddenForUseKeyError
	if !errors.As(err, &forbiddenErr) {
		t.Fatalf("MintChild() error = %v, want *permission.ForbiddenForUseKeyError", err)
	}
}

func TestMintChildPropagatesInitialAuthor(t *testing.T) {
	store := newMockStore()
	mgr := newTestManager(store, &noopAuditLogger{})
	ctx := context.Background()

	parent, _, err := mgr.MintPrimary(ctx, "owner-1", []string{permission.PostsRead}, "parent")
	if err != nil {
		t.Fatalf("MintPrimary() error = %v", err)
	}
	child, _, err := mgr.MintChild(ctx, parent, TypeSecondary, []string{permission.PostsRead}, "child", nil, nil)
	if err != nil {
		t.Fatalf("MintChild() error = %v", err)
	}
	if child.InitialAuthorKeyID != parent.InitialAuthorKeyID {
		t.Errorf("InitialAuthorKeyID = %q, want %q", child.InitialAuthorKeyID, parent.InitialAuthorKeyID)
	}
	if child.ParentKeyID != parent.ID {
		t.Errorf("ParentKeyID = %q, want %q", child.ParentKeyID, parent.ID)
	}
}

func TestRotateRetiresOldAndPreservesPermissions(t *testing.T) {
	store := newMockStore()
	mgr := newTestManager(store, &noopAuditLogger{})
	ctx := context.Background()

	old, _, err := mgr.MintPrimary(ctx, "owner-1", []string{permission.KeysIssue}, "main")
	if err != nil {
		t.Fatalf("MintPrimary() error = %v", err)
	}

	fresh, newSecret, err := mgr.Rotate(ctx, old, audit.KindOwner, "owner-1")
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if newSecret == "" {
		t.Error("expected a fresh plaintext secret")
	}
	if fresh.RotatedFromID != old.ID {
		t.Errorf("RotatedFromID = %q, want %q", fresh.RotatedFromID, old.ID)
	}
	if len(fresh.Permissions) != 1 || fresh.Permissions[0] != permission.KeysIssue {
		t.Errorf("Permissions = %v, want preserved from old", fresh.Permissions)
	}

	oldAfter, err := store.GetByID(ctx, old.ID)
	if err != nil {
		t.Fatalf("GetByID(old) error = %v", err)
	}
	if oldAfter.Active {
		t.Error("expected old key to be inactive after rotation")
	}
	if oldAfter.RetiredAt == nil {
		t.Error("expected old key to carry retired_at after rotation")
	}

	_, _, err = mgr.Rotate(ctx, oldAfter, audit.KindOwner, "owner-1")
	if !errors.Is(err, ErrAlreadyRetired) {
		t.Errorf("Rotate(already-retired) error = %v, want ErrAlreadyRetired", err)
	}
}

func TestDeactivateCascadeCoversDescendants(t *testing.T) {
	store := newMockStore()
	mgr := newTestManager(store, &noopAuditLogger{})
	ctx := context.Background()

	root, _, err := mgr.MintPrimary(ctx, "owner-1", []string{permission.KeysIssue, permission.PostsRead}, "root")
	if err != nil {
		t.Fatalf("MintPrimary() error = %v", err)
	}
	child1, _, err := mgr.MintChild(ctx, root, TypeSecondary, []string{permission.PostsRead}, "child1", nil, nil)
	if err != nil {
		t.Fatalf("MintChild() error = %v", err)
	}
	_, _, err = mgr.MintChild(ctx, child1, TypeUse, nil, "grandchild", nil, nil)
	if err != nil {
		t.Fatalf("MintChild() error = %v", err)
	}

	if err := mgr.Deactivate(ctx, root.ID, audit.KindOwner, "owner-1", true); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}

	for _, k := range store.keys {
		if k.Active {
			t.Errorf("expected key %s to be deactivated by cascade", k.ID)
		}
	}
}

func TestDeactivateCascadeIsIdempotent(t *testing.T) {
	store := newMockStore()
	logger := &noopAuditLogger{}
	mgr := newTestManager(store, logger)
	ctx := context.Background()

	root, _, err := mgr.MintPrimary(ctx, "owner-1", []string{permission.KeysIssue, permission.PostsRead}, "root")
	if err != nil {
		t.Fatalf("MintPrimary() error = %v", err)
	}
	child1, _, err := mgr.MintChild(ctx, root, TypeSecondary, []string{permission.PostsRead}, "child1", nil, nil)
	if err != nil {
		t.Fatalf("MintChild() error = %v", err)
	}
	if _, _, err := mgr.MintChild(ctx, child1, TypeUse, nil, "grandchild", nil, nil); err != nil {
		t.Fatalf("MintChild() error = %v", err)
	}

	if err := mgr.Deactivate(ctx, root.ID, audit.KindOwner, "owner-1", true); err != nil {
		t.Fatalf("first Deactivate() error = %v", err)
	}
	first := logger.events[len(logger.events)-1]
	if got := first.Metadata["keys_deactivated"]; got != 3 {
		t.Fatalf("first Deactivate() keys_deactivated = %v, want 3", got)
	}

	if err := mgr.Deactivate(ctx, root.ID, audit.KindOwner, "owner-1", true); err != nil {
		t.Fatalf("second Deactivate() error = %v", err)
	}
	second := logger.events[len(logger.events)-1]
	if got := second.Metadata["keys_deactivated"]; got != 0 {
		t.Errorf("second Deactivate() keys_deactivated = %v, want 0 (idempotent)", got)
	}
}

func TestLineageWalksRootToLeaf(t *testing.T) {
	store := newMockStore()
	mgr := newTestManager(store, &noopAuditLogger{})
	ctx := context.Background()

	root, _, err := mgr.MintPrimary(ctx, "owner-1", []string{permission.KeysIssue, permission.PostsRead}, "root")
	if err != nil {
		t.Fatalf("MintPrimary() error = %v", err)
	}
	child, _, err := mgr.MintChild(ctx, root, TypeSecondary, []string{permission.PostsRead}, "child", nil, nil)
	if err != nil {
		t.Fatalf("MintChild() error = %v", err)
	}

	chain, err := mgr.Lineage(ctx, child.ID)
	if err != nil {
		t.Fatalf("Lineage() error = %v", err)
	}
	if len(chain) != 2 || chain[0].ID != root.ID || chain[1].ID != child.ID {
		t.Errorf("Lineage() = %v, want [root, child]", chain)
	}
}
