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

// Handlers mounted under the Console surface: Owner-authenticated
// administration of Keys, Groups, and post-access grants.
package main

import (
	"encoding/json"
	"net/http"

	"github.com/opentrusty/postcore/authz"
	"github.com/opentrusty/postcore/grant"
)

type mintKeyRequest struct {
	Permissions []string `json:"permissions"`
	Label       string   `json:"label"`
}

type mintKeyResponse struct {
	ID        string `json:"id"`
	PublicID  string `json:"public_id,omitempty"`
	KeySecret string `json:"key_secret"`
}

// handleConsoleMintKey mints a new primary Key for the authenticated Owner.
func (d *deps) handleConsoleMintKey(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	decision, err := d.authz.Authorize(r.Context(), *p, authz.ActionMintPrimaryKey, "")
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	if !decision.Allowed {
		writeDecision(r, w, decision)
		return
	}

	var req mintKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r, w, "bad_request", "malformed request body", nil)
		return
	}

	k, secret, err := d.keyMgr.MintPrimary(r.Context(), p.ID, req.Permissions, req.Label)
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	writeData(w, http.StatusCreated, mintKeyResponse{ID: k.ID, KeySecret: secret})
}

// handleConsoleGetKey returns a single key by id, scoped to keys the
// Owner may read.
func (d *deps) handleConsoleGetKey(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	decision, err := d.authz.Authorize(r.Context(), *p, authz.ActionListKeys, "")
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	if !decision.Allowed {
		writeDecision(r, w, decision)
		return
	}

	k, err := d.keyRepo.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	writeData(w, http.StatusOK, newKeyView(k))
}

// handleConsoleRotateKey replaces a key with a fresh credential, keeping
// its lineage, permissions, and limits intact.
func (d *deps) handleConsoleRotateKey(w http.ResponseWriter, r *http.Request) {
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

	old, err := d.keyRepo.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	fresh, secret, err := d.keyMgr.Rotate(r.Context(), old, string(authz.PrincipalOwner), p.ID)
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	writeData(w, http.StatusOK, mintKeyResponse{ID: fresh.ID, KeySecret: secret})
}

type setActiveRequest struct {
	Active  bool `json:"active"`
	Cascade bool `json:"cascade"`
}

// handleConsoleSetKeyActive activates or deactivates a key, optionally
// cascading to its lineage.
func (d *deps) handleConsoleSetKeyActive(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	decision, err := d.authz.Authorize(r.Context(), *p, authz.ActionSetKeyActive, "")
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	if !decision.Allowed {
		writeDecision(r, w, decision)
		return
	}

	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r, w, "bad_request", "malformed request body", nil)
		return
	}

	keyID := r.PathValue("id")
	if req.Active {
		if err := d.keyMgr.Activate(r.Context(), keyID, string(authz.PrincipalOwner), p.ID); err != nil {
			writeDomainError(r, w, d.log, err)
			return
		}
	} else {
		if err := d.keyMgr.Deactivate(r.Context(), keyID, string(authz.PrincipalOwner), p.ID, req.Cascade); err != nil {
			writeDomainError(r, w, d.log, err)
			return
		}
	}
	writeData(w, http.StatusOK, map[string]string{"id": keyID})
}

type createGroupRequest struct {
	Name string `json:"name"`
}

// handleConsoleCreateGroup creates a new Group owned by the caller.
func (d *deps) handleConsoleCreateGroup(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	decision, err := d.authz.Authorize(r.Context(), *p, authz.ActionManageGroup, "")
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	if !decision.Allowed {
		writeDecision(r, w, decision)
		return
	}

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r, w, "bad_request", "malformed request body", nil)
		return
	}
	g, err := d.groupSvc.Create(r.Context(), p.ID, req.Name)
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	writeData(w, http.StatusCreated, g)
}

type groupMemberRequest struct {
	KeyID string `json:"key_id"`
}

// handleConsoleAddGroupMember adds a key to a group. Only the caller's
// groups:manage capability is checked; the group's owner is not compared
// with the caller.
func (d *deps) handleConsoleAddGroupMember(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	decision, err := d.authz.Authorize(r.Context(), *p, authz.ActionManageGroup, "")
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	if !decision.Allowed {
		writeDecision(r, w, decision)
		return
	}

	var req groupMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r, w, "bad_request", "malformed request body", nil)
		return
	}
	if err := d.groupSvc.AddMember(r.Context(), string(authz.PrincipalOwner), p.ID, r.PathValue("id"), req.KeyID); err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"group_id": r.PathValue("id"), "key_id": req.KeyID})
}

// handleConsoleRemoveGroupMember removes a key from a group.
func (d *deps) handleConsoleRemoveGroupMember(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	decision, err := d.authz.Authorize(r.Context(), *p, authz.ActionManageGroup, "")
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	if !decision.Allowed {
		writeDecision(r, w, decision)
		return
	}

	if err := d.groupSvc.RemoveMember(r.Context(), string(authz.PrincipalOwner), p.ID, r.PathValue("id"), r.PathValue("keyID")); err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type upsertGrantRequest struct {
	TargetKind     string `json:"target_kind"`
	TargetID       string `json:"target_id"`
	PermissionMask int    `json:"permission_mask"`
}

// handleConsoleUpsertGrant creates or replaces a post-access grant. Owners
// administer grants globally, not scoped to a resource mask of their own.
func (d *deps) handleConsoleUpsertGrant(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	decision, err := d.authz.Authorize(r.Context(), *p, authz.ActionGrantGroupAccessOwner, "")
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	if !decision.Allowed {
		writeDecision(r, w, decision)
		return
	}

	var req upsertGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r, w, "bad_request", "malformed request body", nil)
		return
	}
	g, err := d.grantMgr.UpsertAccessGrant(r.Context(), string(authz.PrincipalOwner), p.ID, r.PathValue("postID"),
		grant.TargetKind(req.TargetKind), req.TargetID, req.PermissionMask)
	if err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	writeData(w, http.StatusOK, g)
}

// handleConsoleRevokeGrant revokes a post-access grant.
func (d *deps) handleConsoleRevokeGrant(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	decision, err := d.authz.Authorize(r.Context(), *p, authz.ActionGrantGroupAccessOwner, "")
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
	if err := d.grantMgr.RevokeAccessGrant(r.Context(), string(authz.PrincipalOwner), p.ID, r.PathValue("postID"), targetKind, targetID); err != nil {
		writeDomainError(r, w, d.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
