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

// Package authn implements the Authenticator: owner login, opaque-key
// exchange, and single-use refresh-token rotation.
package authn

import (
	"crypto/sha256"
	"errors"
	"time"
)

// ErrUnauthorized is the single generic credential-rejection error every
// entry point in this package returns; no entry point ever distinguishes
// "not found" from "wrong secret" to a caller.
var ErrUnauthorized = errors.New("authn: unauthorized")

// ErrUseLimitExceeded is returned when a Use key has exhausted use_count_limit.
var ErrUseLimitExceeded = errors.New("authn: use limit exceeded")

// ErrDeviceLimitExceeded is returned when a Use key's device_limit would be
// exceeded by a new, distinct device fingerprint.
var ErrDeviceLimitExceeded = errors.New("authn: device limit exceeded")

// TokenPair is the result of every successful authentication or rotation.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RequestMetadata carries the caller context attached to issued refresh
// tokens and audit events.
type RequestMetadata struct {
	IP        string
	UserAgent string
}

// deviceFingerprint computes the 256-bit digest of (ip, user_agent) used to
// enforce a Use key's device_limit.
func deviceFingerprint(ip, userAgent string) [32]byte {
	return sha256.Sum256([]byte(ip + "\x00" + userAgent))
}

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
)
