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

// Package id implements the opaque 16-byte identifier codec: internal
// entities carry a 16-byte random value, and the external wire form is a
// 32-character lowercase hex string.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// ErrBadFormat is returned when an external string is not a valid hex32 id.
var ErrBadFormat = errors.New("id: malformed external identifier")

// Size is the length in bytes of an internal identifier.
const Size = 16

// ID is an opaque 16-byte identifier.
type ID [Size]byte

// Fresh draws a new cryptographically random identifier.
//
// Purpose: Allocates a fresh internal identifier for a new row.
// Domain: Platform
// Audited: No
// Errors: Panics only on exhausted entropy source, which Go's crypto/rand never returns in practice.
func Fresh() ID {
	var out ID
	if _, err := rand.Read(out[:]); err != nil {
		panic("id: failed to read random bytes: " + err.Error())
	}
	return out
}

// External renders the identifier as a 32-character lowercase hex string.
func (i ID) External() string {
	return hex.EncodeToString(i[:])
}

// String satisfies fmt.Stringer.
func (i ID) String() string { return i.External() }

// IsZero reports whether the identifier is the zero value.
func (i ID) IsZero() bool { return i == ID{} }

// FromExternal parses a 32-character lowercase hex string into an ID.
func FromExternal(s string) (ID, error) {
	if len(s) != Size*2 {
		return ID{}, ErrBadFormat
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return ID{}, ErrBadFormat
		}
	}
	var out ID
	n, err := hex.Decode(out[:], []byte(s))
	if err != nil || n != Size {
		return ID{}, ErrBadFormat
	}
	return out, nil
}

// MustFromExternal parses like FromExternal but panics on malformed input.
// Intended for tests and compile-time-known literals only.
func MustFromExternal(s string) ID {
	out, err := FromExternal(s)
	if err != nil {
		panic(err)
	}
	return out
}
