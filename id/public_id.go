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

package id

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// KeyPublicIDPrefix is the literal prefix of the opaque-credential-exchange
// bearer string, distinct from internal hex32 identifiers.
const KeyPublicIDPrefix = "apub_"

// NewKeyPublicID draws 8 random bytes and renders "apub_" + 16 lowercase hex chars.
func NewKeyPublicID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("id: failed to read random bytes: " + err.Error())
	}
	return KeyPublicIDPrefix + hex.EncodeToString(b[:])
}

// IsKeyPublicID reports whether s has the shape of a key public id.
func IsKeyPublicID(s string) bool {
	rest, ok := strings.CutPrefix(s, KeyPublicIDPrefix)
	if !ok || len(rest) != 16 {
		return false
	}
	for _, c := range rest {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
