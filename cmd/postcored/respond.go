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
	"log/slog"
	"net/http"

	"github.com/opentrusty/postcore/authn"
	"github.com/opentrusty/postcore/authz"
	"github.com/opentrusty/postcore/gatekeeper"
	"github.com/opentrusty/postcore/grant"
	"github.com/opentrusty/postcore/group"
	"github.com/opentrusty/postcore/keycred"
	"github.com/opentrusty/postcore/owner"
	"github.com/opentrusty/postcore/permission"
	"github.com/opentrusty/postcore/refreshtoken"
)

// apiError is the error envelope body of spec §6.3.
type apiError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type dataEnvelope struct {
	Data   any    `json:"data"`
	Paging *paging `json:"paging,omitempty"`
}

// paging is attached to list responses only.
type paging struct {
	NextCursor string `json:"next_cursor,omitempty"`
}

// writeData writes a success envelope at the given status.
func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataEnvelope{Data: data})
}

// writeList writes a success envelope with a paging block attached.
func writeList(w http.ResponseWriter, status int, data any, nextCursor string) {
	writeJSON(w, status, dataEnvelope{Data: data, Paging: &paging{NextCursor: nextCursor}})
}

// writeError writes the error envelope for code, deriving its HTTP status
// from the spec §7 status-code mapping table.
func writeError(r *http.Request, w http.ResponseWriter, code, message string, details map[string]any) {
	writeJSON(w, statusForCode(code), errorEnvelope{Error: apiError{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: requestIDFrom(r.Context()),
	}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusForCode maps a wire error code to its HTTP status per spec §6.3/§7.
func statusForCode(code string) int {
	switch code {
	case "bad_request", "validation_failed":
		if code == "validation_failed" {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadRequest
	case "unauthorized":
		return http.StatusUnauthorized
	case "forbidden", "use_limit_exceeded", "device_limit_exceeded":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "rate_limited":
		return http.StatusTooManyRequests
	case "service_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError inspects err against every sentinel this core's services
// can return and emits the matching wire error code. Anything unrecognized
// becomes a logged internal_error — never the underlying message, which may
// carry implementation detail the caller has no business seeing.
func writeDomainError(r *http.Request, w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, owner.ErrNotFound), errors.Is(err, keycred.ErrNotFound), errors.Is(err, group.ErrNotFound):
		writeError(r, w, "not_found", "resource not found", nil)
	case errors.Is(err, owner.ErrAlreadyExists):
		writeError(r, w, "conflict", "resource already exists", nil)
	case errors.Is(err, owner.ErrWeakPassword):
		writeError(r, w, "validation_failed", "password does not meet minimum length", map[string]any{"fields": []string{"password"}})
	case errors.Is(err, group.ErrInvalidName):
		writeError(r, w, "validation_failed", "invalid group name", map[string]any{"fields": []string{"name"}})
	case errors.Is(err, group.ErrNotMember):
		writeError(r, w, "not_found", "key is not a member of this group", nil)
	case errors.Is(err, grant.ErrInvalidMask):
		writeError(r, w, "validation_failed", "invalid permission_mask", map[string]any{"fields": []string{"permission_mask"}})
	case errors.Is(err, keycred.ErrAlreadyRetired):
		writeError(r, w, "conflict", "key already retired", nil)
	case errors.Is(err, keycred.ErrInvalidActor):
		writeError(r, w, "forbidden", "actor key cannot perform this action", nil)
	case errors.Is(err, authn.ErrUnauthorized), errors.Is(err, gatekeeper.ErrUnauthorized), errors.Is(err, refreshtoken.ErrReplay):
		writeError(r, w, "unauthorized", "invalid credentials", nil)
	case errors.Is(err, authn.ErrUseLimitExceeded):
		writeError(r, w, "use_limit_exceeded", "use key has exhausted its use count limit", nil)
	case errors.Is(err, authn.ErrDeviceLimitExceeded):
		writeError(r, w, "device_limit_exceeded", "use key device limit reached", nil)
	case errors.As(err, new(*permission.EnvelopeError)), errors.As(err, new(*permission.ForbiddenForUseKeyError)):
		writeError(r, w, "forbidden", err.Error(), nil)
	default:
		log.Error("unhandled error", "error", err, "request_id", requestIDFrom(r.Context()))
		writeError(r, w, "internal_error", "an internal error occurred", nil)
	}
}

// keyView is a Key with its KeySecretHash stripped — the hash must never
// leave the process, even to an authenticated Owner reading their own key.
type keyView struct {
	ID                 string   `json:"id"`
	OwnerID            string   `json:"owner_id,omitempty"`
	Type               keycred.Type `json:"type"`
	Permissions        []string `json:"permissions"`
	Active             bool     `json:"active"`
	IssuedByKeyID      string   `json:"issued_by_key_id,omitempty"`
	ParentKeyID        string   `json:"parent_key_id,omitempty"`
	InitialAuthorKeyID string   `json:"initial_author_key_id,omitempty"`
	RotatedFromID      string   `json:"rotated_from_id,omitempty"`
	RotatedToID        string   `json:"rotated_to_id,omitempty"`
	UseCountLimit      *int     `json:"use_count_limit,omitempty"`
	UseCountCurrent    int      `json:"use_count_current"`
	DeviceLimit        *int     `json:"device_limit,omitempty"`
	Label              string   `json:"label,omitempty"`
}

func newKeyView(k *keycred.Key) keyView {
	return keyView{
		ID:                 k.ID,
		OwnerID:            k.OwnerID,
		Type:               k.Type,
		Permissions:        k.Permissions,
		Active:             k.Active,
		IssuedByKeyID:      k.IssuedByKeyID,
		ParentKeyID:        k.ParentKeyID,
		InitialAuthorKeyID: k.InitialAuthorKeyID,
		RotatedFromID:      k.RotatedFromID,
		RotatedToID:        k.RotatedToID,
		UseCountLimit:      k.UseCountLimit,
		UseCountCurrent:    k.UseCountCurrent,
		DeviceLimit:        k.DeviceLimit,
		Label:              k.Label,
	}
}

// writeDecision maps an authz.Decision's deny kind onto the "not found or
// hidden" wire convention: a resource a principal cannot see is reported
// identically to one that doesn't exist.
func writeDecision(r *http.Request, w http.ResponseWriter, d authz.Decision) {
	if d.Deny == authz.DenyNotFound {
		writeError(r, w, "not_found", "resource not found", nil)
		return
	}
	writeError(r, w, "forbidden", "not permitted", nil)
}
