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

// Package signing produces and verifies the compact RS256 bearer tokens
// issued to Owners and Keys, and publishes the overlapping-window key set
// consumers need to verify them.
package signing

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes the two principal kinds a token can carry.
type TokenType string

// Token types.
const (
	TypeOwner TokenType = "owner"
	TypeKey   TokenType = "key"
)

// InvalidReason enum-tags why a presented token failed verification. It
// exists for logging and testing only: every caller-facing surface
// collapses it to a single opaque unauthorized error.
type InvalidReason string

// Invalid reasons, in the order spec §4.6 checks them.
const (
	ReasonMalformed   InvalidReason = "malformed"
	ReasonAlgorithm   InvalidReason = "algorithm"
	ReasonSignature   InvalidReason = "signature"
	ReasonExpired     InvalidReason = "expired"
	ReasonNotYetValid InvalidReason = "not_yet_valid"
	ReasonIssuer      InvalidReason = "issuer"
	ReasonAudience    InvalidReason = "audience"
	ReasonType        InvalidReason = "type"
)

// InvalidTokenError carries the enum-tagged internal reason a token was
// rejected. Never surfaced to API callers directly.
type InvalidTokenError struct {
	Reason InvalidReason
	Err    error
}

func (e *InvalidTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("signing: invalid token (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("signing: invalid token (%s)", e.Reason)
}

func (e *InvalidTokenError) Unwrap() error { return e.Err }

// keyPair is one RSA signing key, identified by a deterministic kid.
type keyPair struct {
	kid     string
	private *rsa.PrivateKey
	public  *rsa.PublicKey
}

// computeKID derives a deterministic key id from an RSA public key, so
// rotation never collides and verification never guesses.
func computeKID(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("signing: failed to marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return fmt.Sprintf("%x", sum[:8]), nil
}

// Claims is the body of every token this service issues.
//
// Purpose: Canonical claim shape for both owner and key tokens (spec §4.6).
// Domain: Credentialing
type Claims struct {
	jwt.RegisteredClaims
	Typ         TokenType `json:"typ"`
	OwnerID     string    `json:"owner_id,omitempty"`
	KeyID       string    `json:"key_id,omitempty"`
	KeyPublicID string    `json:"key_public_id,omitempty"`
	Roles       []string  `json:"roles,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
}

// rotationOverlapDefault is the minimum duration both the old and new
// signing key remain published during rotation (one access-token TTL plus
// clock-skew budget, per spec §4.6).
const rotationOverlapDefault = time.Hour
