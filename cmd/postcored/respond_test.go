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

package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentrusty/postcore/authn"
	"github.com/opentrusty/postcore/authz"
	"github.com/opentrusty/postcore/group"
	"github.com/opentrusty/postcore/keycred"
	"github.com/opentrusty/postcore/owner"
	"github.com/opentrusty/postcore/refreshtoken"
)

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"bad_request", http.StatusBadRequest},
		{"validation_failed", http.StatusUnprocessableEntity},
		{"unauthorized", http.StatusUnauthorized},
		{"forbidden", http.StatusForbidden},
		{"use_limit_exceeded", http.StatusForbidden},
		{"device_limit_exceeded", http.StatusForbidden},
		{"not_found", http.StatusNotFound},
		{"conflict", http.StatusConflict},
		{"rate_limited", http.StatusTooManyRequests},
		{"service_unavailable", http.StatusServiceUnavailable},
		{"internal_error", http.StatusInternalServerError},
		{"something_unmapped", http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equalf(t, tc.want, statusForCode(tc.code), "code=%s", tc.code)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error
}

func TestWriteDomainErrorMapsSentinels(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"owner not found", owner.ErrNotFound, http.StatusNotFound, "not_found"},
		{"key not found", keycred.ErrNotFound, http.StatusNotFound, "not_found"},
		{"group not found", group.ErrNotFound, http.StatusNotFound, "not_found"},
		{"owner already exists", owner.ErrAlreadyExists, http.StatusConflict, "conflict"},
		{"weak password", owner.ErrWeakPassword, http.StatusUnprocessableEntity, "validation_failed"},
		{"invalid group name", group.ErrInvalidName, http.StatusUnprocessableEntity, "validation_failed"},
		{"not a member", group.ErrNotMember, http.StatusNotFound, "not_found"},
		{"key already retired", keycred.ErrAlreadyRetired, http.StatusConflict, "conflict"},
		{"invalid actor", keycred.ErrInvalidActor, http.StatusForbidden, "forbidden"},
		{"unauthorized", authn.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"refresh replay", refreshtoken.ErrReplay, http.StatusUnauthorized, "unauthorized"},
		{"use limit exceeded", authn.ErrUseLimitExceeded, http.StatusForbidden, "use_limit_exceeded"},
		{"device limit exceeded", authn.ErrDeviceLimitExceeded, http.StatusForbidden, "device_limit_exceeded"},
		{"unrecognized error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			rec := httptest.NewRecorder()
			writeDomainError(req, rec, discardLogger(), tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)
			got := decodeError(t, rec)
			assert.Equal(t, tc.wantCode, got.Code)
		})
	}
}

func TestWriteDomainErrorNeverLeaksUnrecognizedMessage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	writeDomainError(req, rec, discardLogger(), errors.New("pq: relation keys does not exist"))

	got := decodeError(t, rec)
	assert.Equal(t, "internal_error", got.Code)
	assert.NotContains(t, got.Message, "pq:")
	assert.NotContains(t, got.Message, "relation")
}

func TestWriteDecisionNotFoundVsForbidden(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	writeDecision(req, rec, authz.Decision{Allowed: false, Deny: authz.DenyNotFound})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Code)

	req2 := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec2 := httptest.NewRecorder()
	writeDecision(req2, rec2, authz.Decision{Allowed: false, Deny: authz.DenyForbidden})
	assert.Equal(t, http.StatusForbidden, rec2.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec2).Code)
}

func TestNewKeyViewStripsSecretHash(t *testing.T) {
	limit := 5
	k := &keycred.Key{
		ID:            "key_1",
		OwnerID:       "own_1",
		Type:          keycred.TypePrimary,
		KeySecretHash: "argon2id$supersecrethash",
		Permissions:   []string{"posts:read"},
		Active:        true,
		UseCountLimit: &limit,
		Label:         "prod",
	}

	body, err := json.Marshal(newKeyView(k))
	require.NoError(t, err)
	assert.NotContains(t, string(body), "argon2id")
	assert.NotContains(t, string(body), "KeySecretHash")
	assert.Contains(t, string(body), "\"id\":\"key_1\"")
}

func TestWriteListAttachesPaging(t *testing.T) {
	rec := httptest.NewRecorder()
	writeList(rec, http.StatusOK, []string{"a", "b"}, "cursor123")

	var env dataEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Paging)
	assert.Equal(t, "cursor123", env.Paging.NextCursor)
}
