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

// Package authz implements the Authorization Evaluator: the two-layer
// global-capability-then-resource-mask algorithm deciding Allow or
// Deny{not_found, forbidden} for every principal action.
package authz

import (
	"context"
	"fmt"

	"github.com/opentrusty/postcore/keycred"
	"github.com/opentrusty/postcore/mask"
	"github.com/opentrusty/postcore/permission"
)

// PrincipalKind distinguishes the two authenticated principal shapes.
type PrincipalKind string

// Principal kinds.
const (
	PrincipalOwner PrincipalKind = "owner"
	PrincipalKey   PrincipalKind = "key"
)

// Principal is the authenticated caller attached by the Request Gatekeeper
// ahead of every authorization decision.
//
// Purpose: Carries exactly the attributes the evaluator needs; never
// re-derived from a token inside this package.
// Domain: Authz
type Principal struct {
	Kind        PrincipalKind
	ID          string
	Permissions []string

	// KeyType, KeyActive, KeyRetired are meaningful only when Kind == PrincipalKey.
	KeyType    keycred.Type
	KeyActive  bool
	KeyRetired bool
}

// Action enumerates every distinct authorization decision point named in
// the action table.
type Action string

// Actions.
const (
	ActionMintPrimaryKey        Action = "mint_primary_key"
	ActionListKeys              Action = "list_keys"
	ActionRotateKey             Action = "rotate_key"
	ActionSetKeyActive          Action = "set_key_active"
	ActionManageGroup           Action = "manage_group"
	ActionAdminReadPosts        Action = "admin_read_posts"
	ActionGrantGroupAccessOwner Action = "grant_group_access_owner"
	ActionMintChildKey          Action = "mint_child_key"
	ActionCreatePost            Action = "create_post"
	ActionReadPost              Action = "read_post"
	ActionComment               Action = "comment"
	ActionManagePostAccessKey   Action = "manage_post_access_key"
	ActionReadGroups            Action = "read_groups"
	ActionManageKeychain        Action = "manage_keychain"
)

// DenyKind is the reason an action was not authorized.
type DenyKind string

// Deny kinds.
const (
	DenyNotFound  DenyKind = "not_found"
	DenyForbidden DenyKind = "forbidden"
)

// Decision is the outcome of Authorize: either Allowed, or not, carrying
// the DenyKind that determines the caller's HTTP status (404 vs 403).
type Decision struct {
	Allowed bool
	Deny    DenyKind
}

func allow() Decision             { return Decision{Allowed: true} }
func denyWith(kind DenyKind) Decision { return Decision{Deny: kind} }

type rule struct {
	capability string
	mask       int
	postScoped bool
}

// rules is the action->capability+mask table of spec §4.9.1.
var rules = map[Action]rule{
	ActionMintPrimaryKey:        {capability: permission.KeysIssue},
	ActionListKeys:              {capability: permission.KeysRead},
	ActionRotateKey:             {capability: permission.KeysRotate},
	ActionSetKeyActive:          {capability: permission.KeysStateUpdate},
	ActionManageGroup:           {capability: permission.GroupsManage},
	ActionAdminReadPosts:        {capability: permission.PostsAdminRead},
	ActionGrantGroupAccessOwner: {capability: permission.PostsAccessManage},
	ActionMintChildKey:          {capability: permission.KeysIssue},
	ActionCreatePost:            {capability: permission.PostsCreate},
	ActionReadPost:              {capability: permission.PostsRead, mask: mask.View, postScoped: true},
	ActionComment:               {capability: permission.CommentsWrite, mask: mask.Comment, postScoped: true},
	ActionManagePostAccessKey:   {capability: permission.PostsAccessManage, mask: mask.ManageAccess, postScoped: true},
	ActionReadGroups:            {capability: permission.GroupsRead},
	ActionManageKeychain:        {capability: permission.KeychainsManage},
}

// GrantResolver is the narrow slice of grant.Repository the evaluator
// needs: combining direct and group grants into one effective mask.
type GrantResolver interface {
	ResolveAccessMask(ctx context.Context, postID, keyID string, groupIDs []string) (int, error)
}

// GroupMembership is the narrow slice of group.Repository the evaluator
// needs: the groups a key directly belongs to.
type GroupMembership interface {
	GroupIDsForKey(ctx context.Context, keyID string) ([]string, error)
}

// Evaluator implements the canonical authorize(principal, action,
// resource?) function.
//
// Purpose: Sole decision point combining global capability strings with
// per-resource access masks.
// Domain: Authz
type Evaluator struct {
	grants GrantResolver
	groups GroupMembership
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(grants GrantResolver, groups GroupMembership) *Evaluator {
	return &Evaluator{grants: grants, groups: groups}
}

// Authorize decides whether principal may perform action against the
// optional post resourceID (ignored for non-post-scoped actions).
//
// Purpose: The single authorization gate every surface handler calls
// before executing a mutation or serving a resource.
// Domain: Authz
// Audited: No (callers audit the operation itself, not the check)
// Errors: System errors from resolving access masks or group membership.
func (e *Evaluator) Authorize(ctx context.Context, p Principal, action Action, resourceID string) (Decision, error) {
	r, ok := rules[action]
	if !ok {
		return Decision{}, fmt.Errorf("authz: unknown action %q", action)
	}

	hasCapability := hasPermission(p.Permissions, r.capability)
	isReadFamily := action == ActionReadPost

	if !hasCapability && !(r.postScoped && isReadFamily) {
		return denyWith(DenyForbidden), nil
	}

	if r.postScoped {
		effectiveMask, err := e.resolveMask(ctx, resourceID, p)
		if err != nil {
			return Decision{}, fmt.Errorf("authz: failed to resolve access mask: %w", err)
		}
		if !mask.Has(effectiveMask, mask.View) {
			return denyWith(DenyNotFound), nil
		}
		if isReadFamily {
			// VIEW already satisfies posts:read; no further mask check.
			return allow(), nil
		}
		if !mask.Has(effectiveMask, r.mask) {
			return denyWith(DenyForbidden), nil
		}
		return allow(), nil
	}

	if d, guarded := keyTypeGuard(p, action); guarded {
		return d, nil
	}
	return allow(), nil
}

// resolveMask combines direct and group grants for p over resourceID.
// Only Key principals hold per-resource masks; Owners reach posts
// exclusively through posts:admin:read, which is not post-scoped.
func (e *Evaluator) resolveMask(ctx context.Context, resourceID string, p Principal) (int, error) {
	if p.Kind != PrincipalKey {
		return 0, nil
	}
	groupIDs, err := e.groups.GroupIDsForKey(ctx, p.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list groups for key: %w", err)
	}
	return e.grants.ResolveAccessMask(ctx, resourceID, p.ID, groupIDs)
}

// keyTypeGuard applies the non-post key-type guards of spec §4.9 step 5:
// posts:create is blocked for Use keys; keys:issue is blocked for Use
// keys and for inactive or retired keys.
func keyTypeGuard(p Principal, action Action) (Decision, bool) {
	if p.Kind != PrincipalKey {
		return Decision{}, false
	}
	switch action {
	case ActionCreatePost:
		if p.KeyType == keycred.TypeUse {
			return denyWith(DenyForbidden), true
		}
	case ActionMintChildKey:
		if p.KeyType == keycred.TypeUse || !p.KeyActive || p.KeyRetired {
			return denyWith(DenyForbidden), true
		}
	}
	return Decision{}, false
}

// CheckFeedPath enforces the use-key feed-path guard: the URL-supplied
// useKeyID must equal the authenticated principal's own key id. A
// mismatch is reported as not_found, never forbidden, so that the
// existence of another key's feed is never leaked.
func CheckFeedPath(p Principal, useKeyID string) Decision {
	if p.Kind != PrincipalKey || p.ID != useKeyID {
		return denyWith(DenyNotFound)
	}
	return allow()
}

func hasPermission(perms []string, want string) bool {
	for _, perm := range perms {
		if perm == want {
			return true
		}
	}
	return false
}
