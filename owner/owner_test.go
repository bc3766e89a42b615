// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package owner

import (
	"context"
	"sync"
	"time"

	"github.com/opentrusty/postcore/audit"
)

// mockRepository is a hand-rolled in-package test double, matching the
// style of the teacher's MockUserRepository.
type mockRepository struct {
	mu       sync.Mutex
	byID     map[string]*Owner
	byEmail  map[string]*Owner
	createFn func(o *Owner) error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		byID:    make(map[string]*Owner),
		byEmail: make(map[string]*Owner),
	}
}

func (m *mockRepository) Create(ctx context.Context, o *Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createFn != nil {
		if err := m.createFn(o); err != nil {
			return err
		}
	}
	if _, exists := m.byEmail[o.Email]; exists {
		return ErrAlreadyExists
	}
	cp := *o
	m.byID[o.ID] = &cp
	m.byEmail[o.Email] = &cp
	return nil
}

func (m *mockRepository) GetByID(ctx context.Context, id string) (*Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepository) GetByEmail(ctx context.Context, email string) (*Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepository) UpdatePasswordHash(ctx context.Context, ownerID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[ownerID]
	if !ok {
		return ErrNotFound
	}
	o.PasswordHash = passwordHash
	o.UpdatedAt = time.Now()
	m.byEmail[o.Email] = o
	return nil
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
