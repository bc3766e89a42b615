// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package owner

import (
	"context"
	"fmt"
	"strings"

	"github.com/opentrusty/postcore/audit"
	"github.com/opentrusty/postcore/clock"
	"github.com/opentrusty/postcore/id"
	"github.com/opentrusty/postcore/secret"
)

// ErrWeakPassword is returned when a candidate password is too short.
var ErrWeakPassword = fmt.Errorf("owner: password does not meet minimum length")

const minPasswordLength = 8

// Service provides owner registration and password management.
//
// Purpose: Implementation of registration rules and credential rotation for Owners.
// Domain: Identity
type Service struct {
	repo        Repository
	hasher      *secret.Hasher
	auditLogger audit.Logger
	clock       clock.Clock
}

// NewService constructs an owner Service.
func NewService(repo Repository, hasher *secret.Hasher, auditLogger audit.Logger, clk clock.Clock) *Service {
	return &Service{repo: repo, hasher: hasher, auditLogger: auditLogger, clock: clk}
}

// Register creates a new owner identity with a password credential.
//
// Purpose: Entry point for Console registration.
// Domain: Identity
// Audited: Yes (owners:register)
// Errors: ErrAlreadyExists, ErrWeakPassword, system errors
func (s *Service) Register(ctx context.Context, email, password string) (*Owner, error) {
	email = strings.TrimSpace(email)
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrAlreadyExists
	}

	hash, err := s.hasher.HashSecret(password)
	if err != nil {
		return nil, fmt.Errorf("owner: failed to hash password: %w", err)
	}

	now := s.clock.Now()
	o := &Owner{
		ID:           id.Fresh().External(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("owner: failed to create: %w", err)
	}

	s.auditLogger.Emit(ctx, audit.Event{
		ActorKind: audit.KindOwner,
		ActorID:   o.ID,
		Action:    audit.ActionOwnersRegister,
		CreatedAt: now,
	})

	return o, nil
}

// SetPassword replaces an owner's password hash without requiring the prior password.
//
// Purpose: Administrative password reset path.
// Domain: Identity
// Audited: No (rotation is not specified as an audited event by the core)
// Errors: ErrWeakPassword, ErrNotFound, system errors
func (s *Service) SetPassword(ctx context.Context, ownerID, password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	hash, err := s.hasher.HashSecret(password)
	if err != nil {
		return fmt.Errorf("owner: failed to hash password: %w", err)
	}
	return s.repo.UpdatePasswordHash(ctx, ownerID, hash)
}

// GetByID retrieves an owner by id.
func (s *Service) GetByID(ctx context.Context, ownerID string) (*Owner, error) {
	return s.repo.GetByID(ctx, ownerID)
}
