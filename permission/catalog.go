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

// Package permission enumerates the finite set of recognized capability
// strings and enforces their syntactic shape, envelope containment, and the
// Use-Key forbidden set.
package permission

import (
	"fmt"
	"regexp"
	"sort"
)

// -----------------------------------------------------------------------------
// Owner-scope permissions
// -----------------------------------------------------------------------------

const (
	OwnersManage       = "owners:manage"
	KeysIssue          = "keys:issue"
	KeysRead           = "keys:read"
	KeysRotate         = "keys:rotate"
	KeysStateUpdate    = "keys:state:update"
	GroupsManage       = "groups:manage"
	KeychainsManage    = "keychains:manage"
	PostsAdminRead     = "posts:admin:read"
	PostsAccessManage  = "posts:access:manage"
)

// -----------------------------------------------------------------------------
// Key-scope permissions
// -----------------------------------------------------------------------------

const (
	PostsCreate    = "posts:create"
	PostsRead      = "posts:read"
	CommentsWrite  = "comments:write"
	GroupsRead     = "groups:read"
)

// OwnerScope is the authoritative enumeration of capability strings a Key
// mints for Owners may carry.
var OwnerScope = []string{
	OwnersManage,
	KeysIssue,
	KeysRead,
	KeysRotate,
	KeysStateUpdate,
	GroupsManage,
	KeychainsManage,
	PostsAdminRead,
	PostsAccessManage,
}

// KeyScope is the authoritative enumeration of capability strings Keys may carry.
var KeyScope = []string{
	KeysIssue,
	PostsCreate,
	PostsRead,
	CommentsWrite,
	GroupsRead,
	KeychainsManage,
	PostsAccessManage,
}

// UseKeyForbidden is the set of permissions a Use key may never hold.
var UseKeyForbidden = map[string]bool{
	PostsCreate: true,
	KeysIssue:   true,
}

var allKeyScope = func() map[string]bool {
	m := make(map[string]bool, len(KeyScope))
	for _, p := range KeyScope {
		m[p] = true
	}
	return m
}()

var allOwnerScope = func() map[string]bool {
	m := make(map[string]bool, len(OwnerScope))
	for _, p := range OwnerScope {
		m[p] = true
	}
	return m
}()

// IsKeyPermission reports whether p is a recognized Key-scope capability.
func IsKeyPermission(p string) bool { return allKeyScope[p] }

// IsOwnerPermission reports whether p is a recognized Owner-scope capability.
func IsOwnerPermission(p string) bool { return allOwnerScope[p] }

var wellFormed = regexp.MustCompile(`^[a-z]+(:[a-z_]+)+$`)

// IsWellFormed reports whether s has the shape "^[a-z]+(:[a-z_]+)+$".
//
// Purpose: Syntactic gate applied to every permission string on ingress.
// Domain: Authz
// Audited: No
// Errors: None
func IsWellFormed(s string) bool {
	return wellFormed.MatchString(s)
}

// EnvelopeError reports the permissions requested that are outside the
// parent's envelope.
type EnvelopeError struct {
	Missing []string
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("permission: outside envelope: %v", e.Missing)
}

// ValidateEnvelope checks that child is a subset of parent.
//
// Purpose: Enforces that a minted child key's permissions never exceed its parent's.
// Domain: Authz
// Audited: No
// Errors: *EnvelopeError listing permissions present in child but absent from parent.
func ValidateEnvelope(child, parent []string) error {
	parentSet := make(map[string]bool, len(parent))
	for _, p := range parent {
		parentSet[p] = true
	}

	var missing []string
	for _, p := range child {
		if !parentSet[p] {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return &EnvelopeError{Missing: missing}
	}
	return nil
}

// ForbiddenForUseKeyError reports the permissions requested that a Use key
// may never hold.
type ForbiddenForUseKeyError struct {
	Offenders []string
}

func (e *ForbiddenForUseKeyError) Error() string {
	return fmt.Sprintf("permission: forbidden for use key: %v", e.Offenders)
}

// ValidateUseKey checks that set does not intersect the Use-Key forbidden set.
//
// Purpose: Enforces that Use keys never carry posts:create or keys:issue.
// Domain: Authz
// Audited: No
// Errors: *ForbiddenForUseKeyError listing the offending permissions.
func ValidateUseKey(set []string) error {
	var offenders []string
	for _, p := range set {
		if UseKeyForbidden[p] {
			offenders = append(offenders, p)
		}
	}
	if len(offenders) > 0 {
		return &ForbiddenForUseKeyError{Offenders: offenders}
	}
	return nil
}

// Normalize sorts and de-duplicates a permission set, matching the Key
// entity's invariant that permissions are a sorted, de-duplicated set.
func Normalize(set []string) []string {
	seen := make(map[string]bool, len(set))
	out := make([]string, 0, len(set))
	for _, p := range set {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
