// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package keycred

import (
	"crypto/rand"
	"encoding/base32"
)

// keySecretPrefix marks an opaque key secret for the audit sanitizer's
// value-shape check.
const keySecretPrefix = "sec_"

// keySecretEntropyBytes yields >= 128 bits of entropy as required by spec §4.8.
const keySecretEntropyBytes = 20

// generateKeySecret returns a fresh, printable opaque key secret.
//
// Purpose: The plaintext a caller exchanges for tokens; produced once, at
// mint or rotation time, and never stored.
// Domain: Credentialing
func generateKeySecret() (string, error) {
	buf := make([]byte, keySecretEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return keySecretPrefix + base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}
