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

// Package secret provides memory-hard hashing for owner passwords and key
// secrets, plus a fast keyed digest used purely as a lookup surrogate for
// refresh tokens. The plaintext of a refresh token is never stored.
package secret

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Params tunes the Argon2id cost parameters.
//
// Purpose: Configuration for memory-hard hashing, enumerated per spec (memory-kib, time-cost, parallelism).
// Domain: Identity
type Params struct {
	MemoryKiB   uint32
	TimeCost    uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams matches the configuration surface defaults (§6.5):
// memory >= 64 MiB, >= 4 iterations, parallelism 1.
func DefaultParams() Params {
	return Params{
		MemoryKiB:   65536,
		TimeCost:    4,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies secrets (owner passwords, key secrets, refresh
// tokens) using Argon2id, and computes the fast refresh-token lookup digest.
//
// Purpose: Sole credential-hashing surface for the core.
// Domain: Identity
// Invariants: Memory, TimeCost, Parallelism must be tuned for security.
type Hasher struct {
	params     Params
	lookupKey  []byte
}

// NewHasher constructs a Hasher with the given Argon2id cost parameters and
// the 256-bit key used to key the refresh-token lookup digest.
func NewHasher(params Params, refreshLookupKey []byte) *Hasher {
	return &Hasher{params: params, lookupKey: refreshLookupKey}
}

// HashSecret hashes a plaintext secret (password, key secret, or refresh
// token) into a self-describing digest string embedding parameters and salt.
//
// Purpose: Produces a storable, verifiable representation of a plaintext secret.
// Domain: Identity
// Security: Argon2id, memory-hard, random salt per call.
// Audited: No
// Errors: System errors (random generation failure)
func (h *Hasher) HashSecret(plaintext string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("secret: failed to generate salt: %w", err)
	}

	hash := argon2.IDKey(
		[]byte(plaintext),
		salt,
		h.params.TimeCost,
		h.params.MemoryKiB,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return encode(h.params, salt, hash), nil
}

// VerifySecret performs a constant-time comparison of plaintext against a
// previously produced digest string.
//
// Purpose: Validates an incoming secret against its stored digest.
// Domain: Identity
// Security: Constant-time comparison; re-derives parameters from the digest itself.
// Audited: No
// Errors: Malformed digest string
func (h *Hasher) VerifySecret(plaintext, digest string) (bool, error) {
	params, salt, expected, err := decode(digest)
	if err != nil {
		return false, err
	}

	actual := argon2.IDKey(
		[]byte(plaintext),
		salt,
		params.TimeCost,
		params.MemoryKiB,
		params.Parallelism,
		uint32(len(expected)),
	)

	return subtle.ConstantTimeCompare(actual, expected) == 1, nil
}

// DummyDigest is a fixed, validly-formatted digest used to waste a
// constant-time comparison when a lookup (by email or key-public-id) misses,
// so that unauthorized responses take the same time whether or not the
// principal exists.
var dummyDigest = mustDummyDigest()

func mustDummyDigest() string {
	p := DefaultParams()
	salt := make([]byte, p.SaltLength)
	hash := argon2.IDKey([]byte("dummy"), salt, p.TimeCost, p.MemoryKiB, p.Parallelism, p.KeyLength)
	return encode(p, salt, hash)
}

// VerifyDummy performs a throwaway verification against a fixed digest to
// equalize response timing when the real record does not exist.
func (h *Hasher) VerifyDummy(plaintext string) {
	_, _ = h.VerifySecret(plaintext, dummyDigest)
}

// ComputeRefreshLookupDigest computes a deterministic, keyed, fast digest
// over an opaque refresh-token value, used solely as an index-lookup
// surrogate — never as a credential proof on its own.
//
// Purpose: Locates a refresh token row without ever storing or comparing the plaintext token.
// Domain: Identity
// Audited: No
// Errors: None
func (h *Hasher) ComputeRefreshLookupDigest(opaqueToken string) [32]byte {
	return hmacSHA256(h.lookupKey, opaqueToken)
}
