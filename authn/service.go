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

package authn

import (
	"context"
	"errors"
	"fmt"

	"github.com/opentrusty/postcore/audit"
	"github.com/opentrusty/postcore/clock"
	"github.com/opentrusty/postcore/id"
	"github.com/opentrusty/postcore/keycred"
	"github.com/opentrusty/postcore/owner"
	"github.com/opentrusty/postcore/permission"
	"github.com/opentrusty/postcore/refreshtoken"
	"github.com/opentrusty/postcore/secret"
	"github.com/opentrusty/postcore/signing"
)

// ownerRoles is the fixed role marker carried by every Owner token; this
// core has no Role entity of its own, and an Owner implicitly holds the
// full OwnerScope permission set.
var ownerRoles = []string{"owner"}

// Service implements the three Authenticator entry points: owner login,
// opaque-key exchange, and single-use refresh rotation.
//
// Purpose: Sole issuer of token pairs; sole enforcer of Use-Key
// use-count/device-fingerprint limits at exchange time.
// Domain: Credentialing
type Service struct {
	owners        owner.Repository
	keys          keycred.Repository
	refreshTokens refreshtoken.Repository
	refreshTx     refreshtoken.TransactionalRepository
	hasher        *secret.Hasher
	signer        *signing.Service
	audit         audit.Logger
	clock         clock.Clock
	replayGuard   ReplayGuard
}

// NewService constructs a Service. opts may attach optional collaborators
// such as WithReplayGuard.
func NewService(
	owners owner.Repository,
	keys keycred.Repository,
	refreshTokens refreshtoken.Repository,
	refreshTx refreshtoken.TransactionalRepository,
	hasher *secret.Hasher,
	signer *signing.Service,
	auditLogger audit.Logger,
	clk clock.Clock,
	opts ...Option,
) *Service {
	s := &Service{
		owners:        owners,
		keys:          keys,
		refreshTokens: refreshTokens,
		refreshTx:     refreshTx,
		hasher:        hasher,
		signer:        signer,
		audit:         auditLogger,
		clock:         clk,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoginOwner authenticates an Owner by email and password.
//
// Purpose: Console login entry point.
// Domain: Credentialing
// Audited: Yes (owners:login), on success only.
// Errors: ErrUnauthorized on any failure; never distinguishes "no such
// owner" from "wrong password" to the caller.
func (s *Service) LoginOwner(ctx context.Context, email, password string, meta RequestMetadata) (*TokenPair, error) {
	o, err := s.owners.GetByEmail(ctx, email)
	if err != nil {
		s.hasher.VerifyDummy(password)
		return nil, ErrUnauthorized
	}

	ok, err := s.hasher.VerifySecret(password, o.PasswordHash)
	if err != nil || !ok {
		return nil, ErrUnauthorized
	}

	access, err := s.signer.IssueOwnerToken(o.ID, ownerRoles, permission.OwnerScope, defaultAccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("authn: failed to issue owner access token: %w", err)
	}
	refresh, err := s.issueRefreshToken(ctx, refreshtoken.SubjectOwner, o.ID, meta)
	if err != nil {
		return nil, err
	}

	s.audit.Emit(ctx, audit.Event{
		ActorKind: audit.KindOwner,
		ActorID:   o.ID,
		Action:    audit.ActionOwnersLogin,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: s.clock.Now(),
	})

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// ExchangeKey authenticates a Key by its public id and opaque secret,
// enforcing Use-Key use-count and device-fingerprint limits when
// applicable.
//
// Purpose: Gateway credential-exchange entry point.
// Domain: Credentialing
// Errors: ErrUnauthorized, ErrUseLimitExceeded, ErrDeviceLimitExceeded.
func (s *Service) ExchangeKey(ctx context.Context, keyPublicID, keySecret string, meta RequestMetadata) (*TokenPair, error) {
	k, err := s.keys.GetByPublicID(ctx, keyPublicID)
	if err != nil {
		s.hasher.VerifyDummy(keySecret)
		return nil, ErrUnauthorized
	}

	if !k.IsUsable() {
		return nil, ErrUnauthorized
	}

	ok, err := s.hasher.VerifySecret(keySecret, k.KeySecretHash)
	if err != nil || !ok {
		return nil, ErrUnauthorized
	}

	if k.Type == keycred.TypeUse {
		if err := s.enforceUseKeyLimits(ctx, k, meta); err != nil {
			return nil, err
		}
	}

	access, err := s.signer.IssueKeyToken(k.ID, keyPublicID, nil, k.Permissions, defaultAccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("authn: failed to issue key access token: %w", err)
	}
	refresh, err := s.issueRefreshToken(ctx, refreshtoken.SubjectKey, k.ID, meta)
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// enforceUseKeyLimits checks use_count_limit and device_limit for a Use
// key and, when neither rejects the attempt, increments use_count_current
// (registering the device fingerprint in the same operation when
// device_limit is configured).
func (s *Service) enforceUseKeyLimits(ctx context.Context, k *keycred.Key, meta RequestMetadata) error {
	if k.UseCountLimit != nil && k.UseCountCurrent >= *k.UseCountLimit {
		return ErrUseLimitExceeded
	}

	var fpPtr *[32]byte
	if k.DeviceLimit != nil {
		fp := deviceFingerprint(meta.IP, meta.UserAgent)
		has, err := s.keys.HasFingerprint(ctx, k.ID, fp)
		if err != nil {
			return fmt.Errorf("authn: failed to check device fingerprint: %w", err)
		}
		if !has {
			count, err := s.keys.CountDistinctFingerprints(ctx, k.ID)
			if err != nil {
				return fmt.Errorf("authn: failed to count device fingerprints: %w", err)
			}
			if count >= *k.DeviceLimit {
				return ErrDeviceLimitExceeded
			}
		}
		fpPtr = &fp
	}

	if _, err := s.keys.IncrementUseCount(ctx, k.ID, fpPtr); err != nil {
		return fmt.Errorf("authn: failed to increment use count: %w", err)
	}
	return nil
}

// RotateRefresh redeems an opaque refresh token string for a fresh token
// pair, enforcing single-use rotation with replay detection.
//
// Purpose: Token renewal entry point shared by both surfaces.
// Domain: Credentialing
// Audited: Yes (refresh:replay_attempt) on replay only.
// Errors: ErrUnauthorized on any rejection, including replay.
func (s *Service) RotateRefresh(ctx context.Context, opaqueToken string, meta RequestMetadata) (*TokenPair, error) {
	digest := s.hasher.ComputeRefreshLookupDigest(opaqueToken)
	row, err := s.refreshTokens.GetByLookupDigest(ctx, digest)
	if err != nil {
		return nil, ErrUnauthorized
	}

	ok, err := s.hasher.VerifySecret(opaqueToken, row.SecretHash)
	if err != nil || !ok {
		return nil, ErrUnauthorized
	}

	now := s.clock.Now()
	if row.RevokedAt != nil || !now.Before(row.ExpiresAt) {
		return nil, ErrUnauthorized
	}

	if row.IsReplay() || s.checkReplayGuard(ctx, digest) {
		s.audit.Emit(ctx, audit.Event{
			ActorKind: string(row.SubjectKind),
			ActorID:   row.SubjectID,
			Action:    audit.ActionRefreshReplayAttempt,
			IP:        meta.IP,
			UserAgent: meta.UserAgent,
			CreatedAt: now,
		})
		if err := s.refreshTokens.RevokeAllForSubject(ctx, row.SubjectKind, row.SubjectID); err != nil {
			return nil, fmt.Errorf("authn: failed to revoke token family after replay: %w", err)
		}
		return nil, ErrUnauthorized
	}

	newPlain, err := refreshtoken.GenerateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("authn: failed to generate refresh token: %w", err)
	}
	newHash, err := s.hasher.HashSecret(newPlain)
	if err != nil {
		return nil, fmt.Errorf("authn: failed to hash refresh token: %w", err)
	}
	newToken := &refreshtoken.Token{
		ID:           id.Fresh().External(),
		SubjectKind:  row.SubjectKind,
		SubjectID:    row.SubjectID,
		SecretHash:   newHash,
		LookupDigest: s.hasher.ComputeRefreshLookupDigest(newPlain),
		IssuedAt:     now,
		ExpiresAt:    now.Add(defaultRefreshTokenTTL),
		IP:           meta.IP,
		UserAgent:    meta.UserAgent,
	}
	if err := s.refreshTx.RotateRefreshToken(ctx, row.ID, newToken); err != nil {
		if errors.Is(err, refreshtoken.ErrReplay) {
			// Lost a race against a concurrent redemption of the same
			// token: the serializable UPDATE caught what the earlier
			// app-level IsReplay()/checkReplayGuard check could not.
			s.audit.Emit(ctx, audit.Event{
				ActorKind: string(row.SubjectKind),
				ActorID:   row.SubjectID,
				Action:    audit.ActionRefreshReplayAttempt,
				IP:        meta.IP,
				UserAgent: meta.UserAgent,
				CreatedAt: now,
			})
			if revokeErr := s.refreshTokens.RevokeAllForSubject(ctx, row.SubjectKind, row.SubjectID); revokeErr != nil {
				return nil, fmt.Errorf("authn: failed to revoke token family after replay: %w", revokeErr)
			}
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("authn: failed to rotate refresh token: %w", err)
	}

	access, err := s.issueAccessTokenForSubject(ctx, row.SubjectKind, row.SubjectID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: newPlain}, nil
}

// issueAccessTokenForSubject mints a fresh access token for the subject of
// a rotated refresh token, re-reading current roles/permissions rather
// than trusting anything carried on the old token.
func (s *Service) issueAccessTokenForSubject(ctx context.Context, kind refreshtoken.SubjectKind, subjectID string) (string, error) {
	switch kind {
	case refreshtoken.SubjectOwner:
		o, err := s.owners.GetByID(ctx, subjectID)
		if err != nil {
			return "", fmt.Errorf("authn: failed to load owner %s for rotation: %w", subjectID, err)
		}
		tok, err := s.signer.IssueOwnerToken(o.ID, ownerRoles, permission.OwnerScope, defaultAccessTokenTTL)
		if err != nil {
			return "", fmt.Errorf("authn: failed to issue owner access token: %w", err)
		}
		return tok, nil
	case refreshtoken.SubjectKey:
		k, err := s.keys.GetByID(ctx, subjectID)
		if err != nil {
			return "", fmt.Errorf("authn: failed to load key %s for rotation: %w", subjectID, err)
		}
		if !k.IsUsable() {
			return "", ErrUnauthorized
		}
		// key_public_id is optional on key claims; rotation has no public
		// id in hand and omits it.
		tok, err := s.signer.IssueKeyToken(k.ID, "", nil, k.Permissions, defaultAccessTokenTTL)
		if err != nil {
			return "", fmt.Errorf("authn: failed to issue key access token: %w", err)
		}
		return tok, nil
	default:
		return "", fmt.Errorf("authn: unknown refresh subject kind %q", kind)
	}
}

// issueRefreshToken generates, hashes, and persists a fresh refresh token
// for subjectID, returning the one-time plaintext opaque string.
func (s *Service) issueRefreshToken(ctx context.Context, kind refreshtoken.SubjectKind, subjectID string, meta RequestMetadata) (string, error) {
	plain, err := refreshtoken.GenerateOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("authn: failed to generate refresh token: %w", err)
	}
	hash, err := s.hasher.HashSecret(plain)
	if err != nil {
		return "", fmt.Errorf("authn: failed to hash refresh token: %w", err)
	}

	now := s.clock.Now()
	tok := &refreshtoken.Token{
		ID:           id.Fresh().External(),
		SubjectKind:  kind,
		SubjectID:    subjectID,
		SecretHash:   hash,
		LookupDigest: s.hasher.ComputeRefreshLookupDigest(plain),
		IssuedAt:     now,
		ExpiresAt:    now.Add(defaultRefreshTokenTTL),
		IP:           meta.IP,
		UserAgent:    meta.UserAgent,
	}
	if err := s.refreshTx.CreateRefreshToken(ctx, tok); err != nil {
		return "", fmt.Errorf("authn: failed to persist refresh token: %w", err)
	}
	return plain, nil
}
