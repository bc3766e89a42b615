// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/opentrusty/postcore/clock"
)

func newTestService(t *testing.T, now time.Time) (*Service, *rsa.PrivateKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey() error = %v", err)
	}
	cfg := Config{
		Issuer:          "https://auth.example.test",
		ConsoleAudience: "console",
		GatewayAudience: "gateway",
	}
	svc := NewService(cfg, clock.Fixed{At: now})
	if _, err := svc.AddSigningKey(priv); err != nil {
		t.Fatalf("AddSigningKey() error = %v", err)
	}
	return svc, priv
}

func TestIssueAndVerifyOwnerToken(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	tok, err := svc.IssueOwnerToken("owner-1", []string{"admin"}, []string{"keys:issue"}, 15*time.Minute)
	if err != nil {
		t.Fatalf("IssueOwnerToken() error = %v", err)
	}

	claims, err := svc.Verify(tok, TypeOwner, "console")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.OwnerID != "owner-1" {
		t.Errorf("OwnerID = %q, want owner-1", claims.OwnerID)
	}
	if claims.Subject != "owner:owner-1" {
		t.Errorf("Subject = %q, want owner:owner-1", claims.Subject)
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	tok, err := svc.IssueKeyToken("key-1", "apub_abc", nil, []string{"posts:read"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueKeyToken() error = %v", err)
	}

	_, err = svc.Verify(tok, TypeKey, "console")
	var invalid *InvalidTokenError
	if err == nil {
		t.Fatal("Verify() expected error for wrong audience")
	}
	if !asInvalidToken(err, &invalid) || invalid.Reason != ReasonAudience {
		t.Errorf("Verify() error = %v, want ReasonAudience", err)
	}
}

func TestVerifyRejectsWrongSurfaceType(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	tok, err := svc.IssueOwnerToken("owner-1", nil, nil, time.Hour)
	if err != nil {
		t.Fatalf("IssueOwnerToken() error = %v", err)
	}

	_, err = svc.Verify(tok, TypeKey, "console")
	var invalid *InvalidTokenError
	if !asInvalidToken(err, &invalid) || invalid.Reason != ReasonType {
		t.Errorf("Verify() error = %v, want ReasonType", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuedAt := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, issuedAt)

	tok, err := svc.IssueOwnerToken("owner-1", nil, nil, time.Minute)
	if err != nil {
		t.Fatalf("IssueOwnerToken() error = %v", err)
	}

	svc.clock = clock.Fixed{At: issuedAt.Add(2 * time.Hour)}
	_, err = svc.Verify(tok, TypeOwner, "console")
	var invalid *InvalidTokenError
	if !asInvalidToken(err, &invalid) || invalid.Reason != ReasonExpired {
		t.Errorf("Verify() error = %v, want ReasonExpired", err)
	}
}

func TestVerifyRejectsUnknownKID(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	svcA, _ := newTestService(t, now)
	svcB, _ := newTestService(t, now)

	tok, err := svcA.IssueOwnerToken("owner-1", nil, nil, time.Hour)
	if err != nil {
		t.Fatalf("IssueOwnerToken() error = %v", err)
	}

	_, err = svcB.Verify(tok, TypeOwner, "console")
	var invalid *InvalidTokenError
	if !asInvalidToken(err, &invalid) || invalid.Reason != ReasonSignature {
		t.Errorf("Verify() error = %v, want ReasonSignature", err)
	}
}

func TestPublishKeySetIncludesRotatedKeyDuringOverlap(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	oldPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey() error = %v", err)
	}
	oldKID, err := svc.AddSigningKey(oldPriv)
	if err != nil {
		t.Fatalf("AddSigningKey() error = %v", err)
	}

	newPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey() error = %v", err)
	}
	if _, err := svc.AddSigningKey(newPriv); err != nil {
		t.Fatalf("AddSigningKey() error = %v", err)
	}
	svc.RetireSigningKeyAfter(oldKID)

	ks := svc.PublishKeySet()
	found := false
	for _, k := range ks.Keys {
		if k.Kid == oldKID {
			found = true
		}
	}
	if !found {
		t.Error("expected retired key to remain published during overlap window")
	}
}

// asInvalidToken is a small errors.As helper kept local to avoid importing
// "errors" into every test just for this one assertion.
func asInvalidToken(err error, target **InvalidTokenError) bool {
	if it, ok := err.(*InvalidTokenError); ok {
		*target = it
		return true
	}
	return false
}
