// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opentrusty/postcore/clock"
)

// ErrUnknownKID is returned internally when a token's kid is not in the
// key set; callers only ever see the collapsed ReasonSignature.
var ErrUnknownKID = errors.New("signing: kid not found in key set")

// Config configures a Service.
type Config struct {
	Issuer          string
	ConsoleAudience string
	GatewayAudience string
	Leeway          time.Duration
}

// Service issues and verifies RS256 compact tokens for Owner and Key
// principals, and tracks an overlapping-window key set across rotation.
//
// Purpose: Sole signer/verifier of bearer tokens in the core.
// Domain: Credentialing
type Service struct {
	mu        sync.RWMutex
	cfg       Config
	clock     clock.Clock
	keys      map[string]*keyPair // kid -> pair; publicOnly pairs have private == nil
	activeKID string
}

// NewService constructs a Service with no keys loaded. Call AddSigningKey
// at least once before issuing tokens. cfg.Leeway is used as given,
// including an explicit zero (disabling clock-skew tolerance) — callers
// needing a default should set one before constructing cfg, as
// config.Load does via TOKEN_LEEWAY_SECONDS's envDefault.
func NewService(cfg Config, clk clock.Clock) *Service {
	return &Service{cfg: cfg, clock: clk, keys: make(map[string]*keyPair)}
}

// AddSigningKey registers priv as the active signing key, retaining any
// previously active key for verification only (the rotation-overlap
// window of spec §4.6).
func (s *Service) AddSigningKey(priv *rsa.PrivateKey) (kid string, err error) {
	kid, err = computeKID(&priv.PublicKey)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[kid] = &keyPair{kid: kid, private: priv, public: &priv.PublicKey}
	s.activeKID = kid
	return kid, nil
}

// AddVerificationKey registers pub as a verification-only key, for
// restoring a previously retired signing key's public half at startup so
// tokens issued before a restart keep verifying through their rotation
// overlap window (spec §6.5's signing_public_keys).
func (s *Service) AddVerificationKey(pub *rsa.PublicKey) (kid string, err error) {
	kid, err = computeKID(pub)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[kid] = &keyPair{kid: kid, public: pub}
	return kid, nil
}

// RetireSigningKeyAfter stops kid from signing while keeping its public
// half for verification and publication. Nothing drops it automatically;
// callers invoke RemoveKey once the rotation overlap window has elapsed.
func (s *Service) RetireSigningKeyAfter(kid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kp, ok := s.keys[kid]; ok {
		kp.private = nil // keep the public half for verification only
	}
}

// RemoveKey drops kid entirely; verification of tokens signed with it
// will subsequently fail with ReasonSignature.
func (s *Service) RemoveKey(kid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, kid)
}

func (s *Service) activeKey() (*keyPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kp, ok := s.keys[s.activeKID]
	if !ok || kp.private == nil {
		return nil, errors.New("signing: no active signing key loaded")
	}
	return kp, nil
}

// IssueOwnerToken mints a token for an Owner principal on the Console surface.
func (s *Service) IssueOwnerToken(ownerID string, roles, permissions []string, ttl time.Duration) (string, error) {
	now := s.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   "owner:" + ownerID,
			Audience:  jwt.ClaimStrings{s.cfg.ConsoleAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Typ:         TypeOwner,
		OwnerID:     ownerID,
		Roles:       roles,
		Permissions: permissions,
	}
	return s.sign(claims)
}

// IssueKeyToken mints a token for a Key principal on the Gateway surface.
func (s *Service) IssueKeyToken(keyID, keyPublicID string, roles, permissions []string, ttl time.Duration) (string, error) {
	now := s.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   "key:" + keyID,
			Audience:  jwt.ClaimStrings{s.cfg.GatewayAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Typ:         TypeKey,
		KeyID:       keyID,
		KeyPublicID: keyPublicID,
		Roles:       roles,
		Permissions: permissions,
	}
	return s.sign(claims)
}

func (s *Service) sign(claims Claims) (string, error) {
	kp, err := s.activeKey()
	if err != nil {
		return "", err
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kp.kid
	signed, err := tok.SignedString(kp.private)
	if err != nil {
		return "", fmt.Errorf("signing: failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks tokenString against the full ordered rule set of spec
// §4.6 and returns its claims on success. expectedTyp is TypeOwner for
// the Console surface, TypeKey for the Gateway surface; expectedAudience
// is the surface's configured audience.
func (s *Service) Verify(tokenString string, expectedTyp TokenType, expectedAudience string) (*Claims, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, &InvalidTokenError{Reason: ReasonAlgorithm}
		}
		kid, _ := t.Header["kid"].(string)
		s.mu.RLock()
		kp, ok := s.keys[kid]
		s.mu.RUnlock()
		if !ok {
			return nil, &InvalidTokenError{Reason: ReasonSignature, Err: ErrUnknownKID}
		}
		return kp.public, nil
	}, jwt.WithLeeway(s.cfg.Leeway))

	if err != nil {
		return nil, classifyParseError(err)
	}
	if !parsed.Valid {
		return nil, &InvalidTokenError{Reason: ReasonSignature}
	}

	if claims.Issuer != s.cfg.Issuer {
		return nil, &InvalidTokenError{Reason: ReasonIssuer}
	}
	if !audienceContains(claims.Audience, expectedAudience) {
		return nil, &InvalidTokenError{Reason: ReasonAudience}
	}
	if claims.Typ != expectedTyp {
		return nil, &InvalidTokenError{Reason: ReasonType}
	}

	return claims, nil
}

func audienceContains(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// classifyParseError maps a jwt/v5 parse error onto spec §4.6's enum tags.
func classifyParseError(err error) *InvalidTokenError {
	var invalid *InvalidTokenError
	if errors.As(err, &invalid) {
		return invalid
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &InvalidTokenError{Reason: ReasonExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return &InvalidTokenError{Reason: ReasonNotYetValid, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &InvalidTokenError{Reason: ReasonSignature, Err: err}
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &InvalidTokenError{Reason: ReasonMalformed, Err: err}
	default:
		return &InvalidTokenError{Reason: ReasonMalformed, Err: err}
	}
}
