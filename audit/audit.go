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

// Package audit implements the append-only event log: a single Emit
// operation that sanitizes its metadata before the event ever reaches a
// logger or a store.
package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Actor and subject kinds.
const (
	KindOwner = "owner"
	KindKey   = "key"
)

// Action vocabulary. Dotted-colon strings, matching the action names used
// throughout the rest of the core (the permission package's own naming
// convention).
const (
	ActionOwnersRegister       = "owners:register"
	ActionOwnersLogin          = "owners:login"
	ActionOwnersLoginFailed    = "owners:login_failed"
	ActionKeysMint             = "keys:mint"
	ActionKeysRotate           = "keys:rotate"
	ActionKeysActivate         = "keys:activate"
	ActionKeysDeactivate       = "keys:deactivate"
	ActionGroupsCreate         = "groups:create"
	ActionGroupsMembershipAdd  = "groups:membership_add"
	ActionGroupsMembershipDrop = "groups:membership_drop"
	ActionAccessGrant          = "posts:access_grant"
	ActionAccessRevoke         = "posts:access_revoke"
	ActionRefreshReplayAttempt = "refresh:replay_attempt"
	ActionAuthFailure          = "auth:failure"
)

// Known-sensitive metadata key fragments, matched case-insensitively as
// substrings of the key name.
var sensitiveKeyFragments = []string{
	"password", "secret", "token", "private_key", "hash", "credential",
}

// Known opaque-value prefixes that mark a string as secret material
// regardless of the key name it was stored under.
var secretValuePrefixes = []string{"sec_", "rt_", "apub_"}

// secretValueLengthThreshold flags any opaque string at or above this
// length as probable secret material, independent of prefix.
const secretValueLengthThreshold = 40

// Event is an append-only record of a security-relevant action.
//
// Purpose: Canonical shape for every audited action in the core.
// Domain: Audit
// Invariants: Action is non-empty. CreatedAt is set before the event leaves Emit.
type Event struct {
	ID          string
	ActorKind   string
	ActorID     string
	Action      string
	SubjectKind string
	SubjectID   string
	Metadata    map[string]any
	IP          string
	UserAgent   string
	CreatedAt   time.Time
}

// Logger accepts a sanitized Event for logging and/or persistence.
//
// Purpose: Abstraction over where audit output goes.
// Domain: Audit
type Logger interface {
	Emit(ctx context.Context, e Event)
}

// Repository persists audit events for later retrieval.
//
// Purpose: Append-only storage; no update or delete path is defined.
// Domain: Audit
type Repository interface {
	Insert(ctx context.Context, e Event) error
}

// SlogLogger emits events via structured logging.
type SlogLogger struct{}

// NewSlogLogger constructs a SlogLogger.
func NewSlogLogger() *SlogLogger { return &SlogLogger{} }

// Emit sanitizes e.Metadata and logs it at info level.
func (l *SlogLogger) Emit(ctx context.Context, e Event) {
	e = sanitize(e)
	attrs := []any{
		slog.String("actor_kind", e.ActorKind),
		slog.String("actor_id", e.ActorID),
		slog.String("action", e.Action),
		slog.Time("created_at", e.CreatedAt),
	}
	if e.SubjectKind != "" {
		attrs = append(attrs, slog.String("subject_kind", e.SubjectKind))
	}
	if e.SubjectID != "" {
		attrs = append(attrs, slog.String("subject_id", e.SubjectID))
	}
	if e.IP != "" {
		attrs = append(attrs, slog.String("ip", e.IP))
	}
	if e.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", e.UserAgent))
	}
	if len(e.Metadata) > 0 {
		group := make([]any, 0, len(e.Metadata)*2)
		for k, v := range e.Metadata {
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}
	slog.InfoContext(ctx, "AUDIT_EVENT", attrs...)
}

// RepositoryLogger logs via slog and persists via a Repository.
//
// Purpose: Default production logger: dual-write to stdout and storage.
// Domain: Audit
type RepositoryLogger struct {
	repo Repository
	slog *SlogLogger
}

// NewRepositoryLogger constructs a RepositoryLogger.
func NewRepositoryLogger(repo Repository) *RepositoryLogger {
	return &RepositoryLogger{repo: repo, slog: NewSlogLogger()}
}

// Emit logs then persists the sanitized event. A persistence failure is
// logged but never propagated: per the core's ordering guarantees, audit
// is emitted only after the state transition it describes has already
// committed, so the mutation is never rolled back on an audit failure.
func (l *RepositoryLogger) Emit(ctx context.Context, e Event) {
	e = sanitize(e)
	l.slog.Emit(ctx, e)
	if err := l.repo.Insert(ctx, e); err != nil {
		slog.ErrorContext(ctx, "failed to persist audit event", "error", err, "action", e.Action)
	}
}

// sanitize returns a copy of e with CreatedAt defaulted and its Metadata
// scrubbed of any key matching a known-sensitive fragment or any value
// shaped like secret material.
func sanitize(e Event) Event {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if len(e.Metadata) == 0 {
		return e
	}
	clean := make(map[string]any, len(e.Metadata))
	for k, v := range e.Metadata {
		if isSensitiveKey(k) {
			clean[k] = "[REDACTED]"
			continue
		}
		if s, ok := v.(string); ok && looksLikeSecretValue(s) {
			clean[k] = "[REDACTED]"
			continue
		}
		clean[k] = v
	}
	e.Metadata = clean
	return e
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, frag := range sensitiveKeyFragments {
		if strings.Contains(k, frag) {
			return true
		}
	}
	return false
}

// looksLikeSecretValue applies the allowlist-leaning shape check the spec
// prefers over pure denylisting: known opaque-token prefixes, or length
// alone for unprefixed high-entropy strings.
func looksLikeSecretValue(s string) bool {
	for _, prefix := range secretValuePrefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return len(s) >= secretValueLengthThreshold
}
