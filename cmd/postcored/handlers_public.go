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
	"net"
	"net/http"

	"github.com/opentrusty/postcore/authn"
)

// handleKeySet serves the public, unauthenticated key-set publication
// endpoint of spec §6.6. Cached aggressively since keys rotate on the
// order of days, not seconds.
func (d *deps) handleKeySet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=600, must-revalidate")
	writeData(w, http.StatusOK, d.signer.PublishKeySet())
}

// handleHealth is an unauthenticated liveness probe.
func (d *deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerOwnerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleOwnerRegister implements owner.Service.Register over HTTP.
func (d *deps) handleOwnerRegister(w http.ResponseWriter, r *http.Request) {
	var req registerOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r, w, "bad_request", "malformed request body", nil)
		return
	}
	o, err := d.ownerSvc.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]string{"id": o.ID, "email": o.Email})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// handleConsoleLogin authenticates an Owner by email and password.
func (d *deps) handleConsoleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r, w, "bad_request", "malformed request body", nil)
		return
	}
	pair, err := d.authnSvc.LoginOwner(r.Context(), req.Email, req.Password, requestMetaFrom(r))
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	writeData(w, http.StatusOK, tokenPairResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

type gatewayTokenRequest struct {
	KeyPublicID string `json:"key_public_id"`
	KeySecret   string `json:"key_secret"`
}

// handleGatewayToken exchanges a Key's opaque secret for a token pair.
func (d *deps) handleGatewayToken(w http.ResponseWriter, r *http.Request) {
	var req gatewayTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r, w, "bad_request", "malformed request body", nil)
		return
	}
	pair, err := d.authnSvc.ExchangeKey(r.Context(), req.KeyPublicID, req.KeySecret, requestMetaFrom(r))
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	writeData(w, http.StatusOK, tokenPairResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleRefresh rotates a single-use refresh token for a fresh pair.
func (d *deps) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r, w, "bad_request", "malformed request body", nil)
		return
	}
	pair, err := d.authnSvc.RotateRefresh(r.Context(), req.RefreshToken, requestMetaFrom(r))
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	writeData(w, http.StatusOK, tokenPairResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// requestMetaFrom extracts the (ip, user_agent) pair attached to issued
// refresh tokens and audit events.
func requestMetaFrom(r *http.Request) authn.RequestMetadata {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip = xff
	}
	return authn.RequestMetadata{IP: ip, UserAgent: r.Header.Get("User-Agent")}
}
