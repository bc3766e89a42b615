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

// Package gatekeeper implements the Request Gatekeeper: the per-surface
// façade that turns an Authorization header into an authenticated
// authz.Principal, or rejects the request before it ever reaches a
// business entry point.
package gatekeeper

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/opentrusty/postcore/audit"
	"github.com/opentrusty/postcore/authz"
	"github.com/opentrusty/postcore/keycred"
	"github.com/opentrusty/postcore/signing"
)

// ErrUnauthorized is the single error every entry point in this package
// returns; it never distinguishes a missing header from a bad signature
// from a deactivated key to the caller.
var ErrUnauthorized = errors.New("gatekeeper: unauthorized")

// Surface identifies which of the two network surfaces is authenticating
// the request, so failures can be attributed correctly in audit events.
type Surface string

// Surfaces.
const (
	SurfaceConsole Surface = "console"
	SurfaceGateway Surface = "gateway"
)

// KeyLookup is the narrow slice of keycred.Repository the gatekeeper
// needs: the live row backing a key-typed token, so a key deactivated or
// retired after the token was issued is rejected immediately rather than
// only once the token expires.
type KeyLookup interface {
	GetByID(ctx context.Context, id string) (*keycred.Key, error)
}

// Verifier is the narrow slice of signing.Service the gatekeeper needs.
type Verifier interface {
	Verify(tokenString string, expectedTyp signing.TokenType, expectedAudience string) (*signing.Claims, error)
}

// Config configures a Service.
type Config struct {
	ConsoleAudience string
	GatewayAudience string
}

// Service implements the per-surface authenticate step of spec §4.11.
//
// Purpose: Sole entry point turning a raw Authorization header into an
// authz.Principal; every surface handler calls this before anything else.
// Domain: Authz
type Service struct {
	cfg    Config
	signer Verifier
	keys   KeyLookup
	audit  audit.Logger
}

// NewService constructs a Service.
func NewService(cfg Config, signer Verifier, keys KeyLookup, auditLogger audit.Logger) *Service {
	return &Service{cfg: cfg, signer: signer, keys: keys, audit: auditLogger}
}

// AuthenticateConsole authenticates an Owner-surface request.
func (s *Service) AuthenticateConsole(ctx context.Context, authorizationHeader string) (*authz.Principal, error) {
	return s.authenticate(ctx, authorizationHeader, SurfaceConsole, signing.TypeOwner, s.cfg.ConsoleAudience)
}

// AuthenticateGateway authenticates a Key-surface request.
func (s *Service) AuthenticateGateway(ctx context.Context, authorizationHeader string) (*authz.Principal, error) {
	return s.authenticate(ctx, authorizationHeader, SurfaceGateway, signing.TypeKey, s.cfg.GatewayAudience)
}

// authenticate implements the four numbered steps of spec §4.11.
func (s *Service) authenticate(ctx context.Context, header string, surface Surface, expectedTyp signing.TokenType, expectedAudience string) (*authz.Principal, error) {
	token, ok := parseBearer(header)
	if !ok {
		s.logFailure(ctx, surface, "malformed_header")
		return nil, ErrUnauthorized
	}

	claims, err := s.signer.Verify(token, expectedTyp, expectedAudience)
	if err != nil {
		s.logFailure(ctx, surface, "token_verification_failed")
		return nil, ErrUnauthorized
	}

	switch claims.Typ {
	case signing.TypeOwner:
		return &authz.Principal{
			Kind:        authz.PrincipalOwner,
			ID:          claims.OwnerID,
			Permissions: claims.Permissions,
		}, nil
	case signing.TypeKey:
		return s.attachKeyPrincipal(ctx, surface, claims)
	default:
		s.logFailure(ctx, surface, "unrecognized_token_type")
		return nil, ErrUnauthorized
	}
}

// attachKeyPrincipal re-fetches the key row backing claims so that
// active/retired/type — none of which this package trusts a possibly
// stale token claim for — reflect the current Credential Store state.
func (s *Service) attachKeyPrincipal(ctx context.Context, surface Surface, claims *signing.Claims) (*authz.Principal, error) {
	k, err := s.keys.GetByID(ctx, claims.KeyID)
	if err != nil {
		s.logFailure(ctx, surface, "key_lookup_failed")
		return nil, ErrUnauthorized
	}
	if !k.IsUsable() {
		s.logFailure(ctx, surface, "key_inactive_or_retired")
		return nil, ErrUnauthorized
	}
	return &authz.Principal{
		Kind:        authz.PrincipalKey,
		ID:          k.ID,
		Permissions: claims.Permissions,
		KeyType:     k.Type,
		KeyActive:   k.Active,
		KeyRetired:  k.RetiredAt != nil,
	}, nil
}

func (s *Service) logFailure(ctx context.Context, surface Surface, reason string) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(ctx, audit.Event{
		Action:      audit.ActionAuthFailure,
		SubjectKind: string(surface),
		Metadata:    map[string]any{"reason": reason},
		CreatedAt:   time.Now(),
	})
}

const bearerPrefix = "Bearer "

// parseBearer extracts the token from a "Bearer <token>" Authorization
// header value. Never logs or echoes header, since it may carry a secret.
func parseBearer(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return "", false
	}
	return token, true
}
