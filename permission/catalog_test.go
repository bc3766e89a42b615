// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import "testing"

func TestIsWellFormed(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"keys:issue", true},
		{"keys:state:update", true},
		{"posts:access:manage", true},
		{"", false},
		{"KeysIssue", false},
		{"keys", false},
		{"keys:Issue", false},
		{"keys:issue:", false},
		{"*", false},
	}
	for _, tt := range tests {
		if got := IsWellFormed(tt.in); got != tt.want {
			t.Errorf("IsWellFormed(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidateEnvelope(t *testing.T) {
	parent := []string{"posts:create", "posts:read"}

	if err := ValidateEnvelope([]string{"posts:read"}, parent); err != nil {
		t.Fatalf("expected subset to pass, got %v", err)
	}

	err := ValidateEnvelope([]string{"posts:create", "keys:issue"}, parent)
	if err == nil {
		t.Fatal("expected envelope violation")
	}
	envErr, ok := err.(*EnvelopeError)
	if !ok {
		t.Fatalf("expected *EnvelopeError, got %T", err)
	}
	if len(envErr.Missing) != 1 || envErr.Missing[0] != "keys:issue" {
		t.Errorf("Missing = %v, want [keys:issue]", envErr.Missing)
	}
}

func TestValidateUseKey(t *testing.T) {
	if err := ValidateUseKey([]string{"posts:read", "comments:write"}); err != nil {
		t.Fatalf("expected no violation, got %v", err)
	}

	err := ValidateUseKey([]string{"posts:create", "comments:write"})
	if err == nil {
		t.Fatal("expected forbidden-for-use-key violation")
	}
	fErr, ok := err.(*ForbiddenForUseKeyError)
	if !ok {
		t.Fatalf("expected *ForbiddenForUseKeyError, got %T", err)
	}
	if len(fErr.Offenders) != 1 || fErr.Offenders[0] != "posts:create" {
		t.Errorf("Offenders = %v, want [posts:create]", fErr.Offenders)
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]string{"posts:read", "posts:create", "posts:read"})
	want := []string{"posts:create", "posts:read"}
	if len(got) != len(want) {
		t.Fatalf("Normalize() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Normalize() = %v, want %v", got, want)
		}
	}
}
