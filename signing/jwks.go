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

package signing

import "encoding/base64"

// JWK is one published public key, shaped per spec §4.6: RSA, signature
// use, RS256, base64url-unpadded modulus/exponent.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// KeySet is the stable JSON document the key-set publication endpoint
// (spec §6.6) returns.
type KeySet struct {
	Keys []JWK `json:"keys"`
}

// PublishKeySet renders every currently-known public key — active and
// retired-but-within-overlap alike — as a KeySet. The private half never
// appears; only N and E are derived from each keyPair's public key.
func (s *Service) PublishKeySet() KeySet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := KeySet{Keys: make([]JWK, 0, len(s.keys))}
	for _, kp := range s.keys {
		out.Keys = append(out.Keys, JWK{
			Kty: "RSA",
			Use: "sig",
			Alg: "RS256",
			Kid: kp.kid,
			N:   base64.RawURLEncoding.EncodeToString(kp.public.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(bigEndianUint(kp.public.E)),
		})
	}
	return out
}

// bigEndianUint renders a small positive int (the RSA public exponent) as
// its minimal big-endian byte representation.
func bigEndianUint(v int) []byte {
	if v == 0 {
		return []byte{0}
	}
	var b []byte
	for v > 0 {
		b = append([]byte{byte(v & 0xff)}, b...)
		v >>= 8
	}
	return b
}
