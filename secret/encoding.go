// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// encode renders params+salt+hash as a self-describing digest string in the
// same shape the teacher's argon2 hasher used:
// "=version=memory,t=time,p=parallelism$salt$hash".
func encode(p Params, salt, hash []byte) string {
	return fmt.Sprintf(
		"=%d=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		p.MemoryKiB,
		p.TimeCost,
		p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
}

func decode(digest string) (Params, []byte, []byte, error) {
	var version int
	var memory, timeCost uint32
	var parallelism uint8
	parts := strings.Split(digest, "$")
	if len(parts) != 3 {
		return Params{}, nil, nil, fmt.Errorf("secret: invalid digest format: want 3 '$'-separated fields, got %d", len(parts))
	}
	saltB64, hashB64 := parts[1], parts[2]

	_, err := fmt.Sscanf(parts[0], "=%d=%d,t=%d,p=%d",
		&version, &memory, &timeCost, &parallelism)
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("secret: invalid digest format: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("secret: failed to decode salt: %w", err)
	}

	hash, err := base64.RawStdEncoding.DecodeString(hashB64)
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("secret: failed to decode hash: %w", err)
	}

	return Params{MemoryKiB: memory, TimeCost: timeCost, Parallelism: parallelism}, salt, hash, nil
}

func hmacSHA256(key []byte, data string) [32]byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

const argon2Version = 19
