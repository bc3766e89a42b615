// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"crypto/rsa"
	"encoding/base64"
)

// JWK is one published public signing key, shaped per spec §4.6's key-set
// publication document.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// KeySet is the stable JSON document consumers fetch to verify tokens.
type KeySet struct {
	Keys []JWK `json:"keys"`
}

// PublishKeySet returns every currently known public key, including ones
// retired from signing but still within their rotation-overlap window.
func (s *Service) PublishKeySet() KeySet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := KeySet{Keys: make([]JWK, 0, len(s.keys))}
	for _, kp := range s.keys {
		n, e := rsaPublicComponents(kp.public)
		out.Keys = append(out.Keys, JWK{
			Kty: "RSA",
			Use: "sig",
			Alg: "RS256",
			Kid: kp.kid,
			N:   n,
			E:   e,
		})
	}
	return out
}

func rsaPublicComponents(pub *rsa.PublicKey) (n, e string) {
	nBytes := pub.N.Bytes()
	n = base64.RawURLEncoding.EncodeToString(nBytes)
	e = base64.RawURLEncoding.EncodeToString(bigEndianTrimmed(pub.E))
	return n, e
}

// bigEndianTrimmed returns the minimal big-endian encoding of a small
// non-negative int, as required for the JWK "e" component.
func bigEndianTrimmed(i int) []byte {
	if i == 0 {
		return []byte{0}
	}
	var buf []byte
	for i > 0 {
		buf = append([]byte{byte(i & 0xff)}, buf...)
		i >>= 8
	}
	return buf
}
