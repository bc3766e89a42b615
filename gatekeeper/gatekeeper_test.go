// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package gatekeeper

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/opentrusty/postcore/audit"
	"github.com/opentrusty/postcore/authz"
	"github.com/opentrusty/postcore/clock"
	"github.com/opentrusty/postcore/keycred"
	"github.com/opentrusty/postcore/signing"
)

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey() error = %v", err)
	}
	return priv
}

func newFixedClock() clock.Fixed {
	return clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

type mockKeyLookup struct {
	byID map[string]*keycred.Key
}

func (m *mockKeyLookup) GetByID(ctx context.Context, id string) (*keycred.Key, error) {
	k, ok := m.byID[id]
	if !ok {
		return nil, keycred.ErrNotFound
	}
	return k, nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Emit(ctx context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAudit) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

const (
	testConsoleAudience = "console.opentrusty.test"
	testGatewayAudience = "gateway.opentrusty.test"
)

func newTestService(t *testing.T) (*Service, *signing.Service, *mockKeyLookup, *recordingAudit) {
	t.Helper()
	clk := newFixedClock()
	signer := signing.NewService(signing.Config{
		Issuer:          "opentrusty",
		ConsoleAudience: testConsoleAudience,
		GatewayAudience: testGatewayAudience,
	}, clk)
	priv := generateTestKey(t)
	if _, err := signer.AddSigningKey(priv); err != nil {
		t.Fatalf("AddSigningKey() error = %v", err)
	}

	keys := &mockKeyLookup{byID: make(map[string]*keycred.Key)}
	rec := &recordingAudit{}
	svc := NewService(Config{ConsoleAudience: testConsoleAudience, GatewayAudience: testGatewayAudience}, signer, keys, rec)
	return svc, signer, keys, rec
}

func TestAuthenticateConsoleSuccess(t *testing.T) {
	svc, signer, _, rec := newTestService(t)
	tok, err := signer.IssueOwnerToken("owner-1", []string{"owner"}, []string{"keys:issue"}, time.Minute)
	if err != nil {
		t.Fatalf("IssueOwnerToken() error = %v", err)
	}

	p, err := svc.AuthenticateConsole(context.Background(), "Bearer "+tok)
	if err != nil {
		t.Fatalf("AuthenticateConsole() error = %v", err)
	}
	if p.Kind != authz.PrincipalOwner || p.ID != "owner-1" {
		t.Errorf("AuthenticateConsole() = %+v, want owner-1", p)
	}
	if rec.count() != 0 {
		t.Errorf("expected no audit events on success, got %d", rec.count())
	}
}

func TestAuthenticateConsoleRejectsMalformedHeader(t *testing.T) {
	svc, _, _, rec := newTestService(t)

	if _, err := svc.AuthenticateConsole(context.Background(), "not-a-bearer-token"); err != ErrUnauthorized {
		t.Errorf("AuthenticateConsole() error = %v, want ErrUnauthorized", err)
	}
	if rec.count() != 1 {
		t.Errorf("expected one auth failure event, got %d", rec.count())
	}
}

func TestAuthenticateConsoleRejectsKeyTokenOnConsole(t *testing.T) {
	svc, signer, keys, _ := newTestService(t)
	keys.byID["key-1"] = &keycred.Key{ID: "key-1", Type: keycred.TypeSecondary, Active: true}
	tok, err := signer.IssueKeyToken("key-1", "apub_1", nil, []string{"posts:read"}, time.Minute)
	if err != nil {
		t.Fatalf("IssueKeyToken() error = %v", err)
	}

	if _, err := svc.AuthenticateConsole(context.Background(), "Bearer "+tok); err != ErrUnauthorized {
		t.Errorf("AuthenticateConsole() error = %v, want ErrUnauthorized for key token on console surface", err)
	}
}

func TestAuthenticateGatewaySuccessAttachesLiveKeyState(t *testing.T) {
	svc, signer, keys, _ := newTestService(t)
	keys.byID["key-1"] = &keycred.Key{ID: "key-1", Type: keycred.TypeSecondary, Active: true}
	tok, err := signer.IssueKeyToken("key-1", "apub_1", nil, []string{"posts:read"}, time.Minute)
	if err != nil {
		t.Fatalf("IssueKeyToken() error = %v", err)
	}

	p, err := svc.AuthenticateGateway(context.Background(), "Bearer "+tok)
	if err != nil {
		t.Fatalf("AuthenticateGateway() error = %v", err)
	}
	if p.Kind != authz.PrincipalKey || p.ID != "key-1" || p.KeyType != keycred.TypeSecondary || !p.KeyActive {
		t.Errorf("AuthenticateGateway() = %+v, want active secondary key-1", p)
	}
}

func TestAuthenticateGatewayRejectsDeactivatedKeyDespiteValidToken(t *testing.T) {
	svc, signer, keys, rec := newTestService(t)
	keys.byID["key-1"] = &keycred.Key{ID: "key-1", Type: keycred.TypeSecondary, Active: true}
	tok, err := signer.IssueKeyToken("key-1", "apub_1", nil, []string{"posts:read"}, time.Minute)
	if err != nil {
		t.Fatalf("IssueKeyToken() error = %v", err)
	}

	// Key deactivated after the token was issued.
	keys.byID["key-1"].Active = false

	if _, err := svc.AuthenticateGateway(context.Background(), "Bearer "+tok); err != ErrUnauthorized {
		t.Errorf("AuthenticateGateway() error = %v, want ErrUnauthorized for deactivated key", err)
	}
	if rec.count() != 1 {
		t.Errorf("expected one auth failure event, got %d", rec.count())
	}
}

func TestAuthenticateGatewayRejectsUnknownKey(t *testing.T) {
	svc, signer, _, _ := newTestService(t)
	tok, err := signer.IssueKeyToken("missing-key", "apub_1", nil, []string{"posts:read"}, time.Minute)
	if err != nil {
		t.Fatalf("IssueKeyToken() error = %v", err)
	}

	if _, err := svc.AuthenticateGateway(context.Background(), "Bearer "+tok); err != ErrUnauthorized {
		t.Errorf("AuthenticateGateway() error = %v, want ErrUnauthorized", err)
	}
}

func TestAuthenticateGatewayRejectsWrongAudience(t *testing.T) {
	svc, signer, keys, _ := newTestService(t)
	keys.byID["key-1"] = &keycred.Key{ID: "key-1", Type: keycred.TypeUse, Active: true}

	otherSigner := signing.NewService(signing.Config{
		Issuer:          "opentrusty",
		ConsoleAudience: "other-console",
		GatewayAudience: "other-gateway",
	}, newFixedClock())
	priv := generateTestKey(t)
	if _, err := otherSigner.AddSigningKey(priv); err != nil {
		t.Fatalf("AddSigningKey() error = %v", err)
	}
	// Trust the other signer's key so the token passes the kid/signature
	// and issuer checks and is rejected on its audience alone.
	if _, err := signer.AddVerificationKey(&priv.PublicKey); err != nil {
		t.Fatalf("AddVerificationKey() error = %v", err)
	}
	tok, err := otherSigner.IssueKeyToken("key-1", "apub_1", nil, nil, time.Minute)
	if err != nil {
		t.Fatalf("IssueKeyToken() error = %v", err)
	}

	if _, err := svc.AuthenticateGateway(context.Background(), "Bearer "+tok); err != ErrUnauthorized {
		t.Errorf("AuthenticateGateway() error = %v, want ErrUnauthorized for wrong audience", err)
	}
}
