// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"errors"
	"testing"
)

type mockRepository struct {
	inserted []Event
	err      error
}

func (m *mockRepository) Insert(ctx context.Context, e Event) error {
	if m.err != nil {
		return m.err
	}
	m.inserted = append(m.inserted, e)
	return nil
}

func TestSanitizeRedactsSensitiveKeys(t *testing.T) {
	e := Event{
		ActorKind: KindOwner,
		ActorID:   "abc",
		Action:    ActionOwnersLogin,
		Metadata: map[string]any{
			"password":    "hunter2",
			"api_secret":  "sk_live_abc",
			"credentials": "stuff",
			"reason":      "bad_password",
		},
	}
	got := sanitize(e)
	if got.Metadata["password"] != "[REDACTED]" {
		t.Error("expected password key redacted")
	}
	if got.Metadata["api_secret"] != "[REDACTED]" {
		t.Error("expected api_secret key redacted")
	}
	if got.Metadata["credentials"] != "[REDACTED]" {
		t.Error("expected credentials key redacted")
	}
	if got.Metadata["reason"] != "bad_password" {
		t.Error("expected non-sensitive key to survive untouched")
	}
}

func TestSanitizeRedactsSecretShapedValues(t *testing.T) {
	e := Event{
		Action: ActionKeysMint,
		Metadata: map[string]any{
			"note":        "sec_abcdefghijklmnopqrstuvwxyz0123456789",
			"public_id":   "apub_0123456789abcdef",
			"description": "a perfectly ordinary short string",
		},
	}
	got := sanitize(e)
	if got.Metadata["note"] != "[REDACTED]" {
		t.Error("expected secret-prefixed value redacted regardless of key name")
	}
	if got.Metadata["public_id"] != "[REDACTED]" {
		t.Error("expected apub_-prefixed value redacted")
	}
	if got.Metadata["description"] != "a perfectly ordinary short string" {
		t.Error("expected ordinary short string to survive")
	}
}

func TestSanitizeDefaultsCreatedAt(t *testing.T) {
	e := Event{Action: ActionOwnersLogin}
	got := sanitize(e)
	if got.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be defaulted")
	}
}

func TestRepositoryLoggerPersistsSanitizedEvent(t *testing.T) {
	repo := &mockRepository{}
	logger := NewRepositoryLogger(repo)

	logger.Emit(context.Background(), Event{
		ActorKind: KindKey,
		ActorID:   "key1",
		Action:    ActionKeysRotate,
		Metadata:  map[string]any{"secret": "should-not-survive"},
	})

	if len(repo.inserted) != 1 {
		t.Fatalf("expected 1 event persisted, got %d", len(repo.inserted))
	}
	if repo.inserted[0].Metadata["secret"] != "[REDACTED]" {
		t.Error("expected persisted event to carry sanitized metadata")
	}
}

func TestRepositoryLoggerSurvivesPersistenceFailure(t *testing.T) {
	repo := &mockRepository{err: errors.New("boom")}
	logger := NewRepositoryLogger(repo)

	// Must not panic even though the repository always errors.
	logger.Emit(context.Background(), Event{ActorKind: KindOwner, Action: ActionOwnersLogin})
}
