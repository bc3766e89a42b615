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

// Handlers mounted under the Gateway surface: Key-authenticated delegation
// of narrower child credentials, and post-access self-service.
package main

import (
	"encoding/json"
	"net/http"

	"github.com/opentrusty/postcore/authz"
	"github.com/opentrusty/postcore/grant"
	"github.com/opentrusty/postcore/keycred"
)

type mintChildKeyRequest struct {
	Type          string `json:"type"`
	Permissions   []string `json:"permissions"`
	Label         string   `json:"label"`
	UseCountLimit *int     `json:"use_count_limit"`
	DeviceLimit   *int     `json:"device_limit"`
}

// handleGatewayMintChildKey delegates a narrower secondary or use key
// under the authenticated Key.
func (d *deps) handleGatewayMintChildKey(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	decision, err := d.authz.Authorize(r.Context(), *p, authz.ActionMintChildKey, "")
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	if !decision.Allowed {
		writeDecision(r, w, decision)
		return
	}

	var req mintChildKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r, w, "bad_request", "malformed request body", nil)
		return
	}

	actor, err := d.keyRepo.GetByID(r.Context(), p.ID)
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}

	k, secret, err := d.keyMgr.MintChild(r.Context(), actor, keycred.Type(req.Type), req.Permissions, req.Label, req.UseCountLimit, req.DeviceLimit)
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	writeData(w, http.StatusCreated, mintKeyResponse{ID: k.ID, KeySecret: secret})
}

// handleGatewayRotateKey rotates the authenticated Key's own credential.
func (d *deps) handleGatewayRotateKey(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	decision, err := d.authz.Authorize(r.Context(), *p, authz.ActionRotateKey, "")
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	if !decision.Allowed {
		writeDecision(r, w, decision)
		return
	}

	old, err := d.keyRepo.GetByID(r.Context(), p.ID)
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	fresh, secret, err := d.keyMgr.Rotate(r.Context(), old, string(authz.PrincipalKey), p.ID)
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	writeData(w, http.StatusOK, mintKeyResponse{ID: fresh.ID, KeySecret: secret})
}

// handleGatewayListGroups lists the groups the authenticated Key directly
// belongs to.
func (d *deps) handleGatewayListGroups(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	decision, err := d.authz.Authorize(r.Context(), *p, authz.ActionReadGroups, "")
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	if !decision.Allowed {
		writeDecision(r, w, decision)
		return
	}

	groupIDs, err := d.groupRepo.GroupIDsForKey(r.Context(), p.ID)
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	writeData(w, http.StatusOK, groupIDs)
}

type upsertGrantKeyRequest struct {
	TargetKind     string `json:"target_kind"`
	TargetID       string `json:"target_id"`
	PermissionMask int    `json:"permission_mask"`
}

// handleGatewayUpsertGrant lets a Key with posts:access:manage delegate
// access to a post it can itself manage.
func (d *deps) handleGatewayUpsertGrant(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	postID := r.PathValue("postID")
	decision, err := d.authz.Authorize(r.Context(), *p, authz.ActionManagePostAccessKey, postID)
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	if !decision.Allowed {
		writeDecision(r, w, decision)
		return
	}

	var req upsertGrantKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r, w, "bad_request", "malformed request body", nil)
		return
	}
	g, err := d.grantMgr.UpsertAccessGrant(r.Context(), string(authz.PrincipalKey), p.ID, postID,
		grant.TargetKind(req.TargetKind), req.TargetID, req.PermissionMask)
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	writeData(w, http.StatusOK, g)
}

// handleGatewayRevokeGrant revokes a grant a Key previously delegated.
func (d *deps) handleGatewayRevokeGrant(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	postID := r.PathValue("postID")
	decision, err := d.authz.Authorize(r.Context(), *p, authz.ActionManagePostAccessKey, postID)
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	if !decision.Allowed {
		writeDecision(r, w, decision)
		return
	}

	targetKind := grant.TargetKind(r.URL.Query().Get("target_kind"))
	targetID := r.URL.Query().Get("target_id")
	if err := d.grantMgr.RevokeAccessGrant(r.Context(), string(authz.PrincipalKey), p.ID, postID, targetKind, targetID); err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
