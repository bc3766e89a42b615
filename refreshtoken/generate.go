// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package refreshtoken

import (
	"crypto/rand"
	"encoding/base32"
)

// OpaquePrefix marks a plaintext refresh token for the audit sanitizer's
// value-shape check.
const OpaquePrefix = "rt_"

const opaqueEntropyBytes = 32

// GenerateOpaqueToken returns a fresh, printable refresh token. The caller
// computes its lookup digest and secret hash and persists those; the
// plaintext itself is never stored.
func GenerateOpaqueToken() (string, error) {
	buf := make([]byte, opaqueEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return OpaquePrefix + base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}
