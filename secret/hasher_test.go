// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import "testing"

func TestHashAndVerifySecret(t *testing.T) {
	h := NewHasher(DefaultParams(), []byte("0123456789abcdef0123456789abcdef"))

	digest, err := h.HashSecret("sec_correcthorsebatterystaple")
	if err != nil {
		t.Fatalf("HashSecret error: %v", err)
	}

	ok, err := h.VerifySecret("sec_correcthorsebatterystaple", digest)
	if err != nil {
		t.Fatalf("VerifySecret error: %v", err)
	}
	if !ok {
		t.Fatal("VerifySecret returned false for the correct secret")
	}

	ok, err = h.VerifySecret("sec_wrong", digest)
	if err != nil {
		t.Fatalf("VerifySecret error: %v", err)
	}
	if ok {
		t.Fatal("VerifySecret returned true for the wrong secret")
	}
}

func TestVerifySecretRejectsMalformedDigest(t *testing.T) {
	h := NewHasher(DefaultParams(), []byte("key"))
	if _, err := h.VerifySecret("anything", "not-a-digest"); err == nil {
		t.Fatal("expected error for malformed digest")
	}
}

func TestComputeRefreshLookupDigestDeterministic(t *testing.T) {
	h := NewHasher(DefaultParams(), []byte("lookup-key-0123456789abcdef"))
	a := h.ComputeRefreshLookupDigest("rt_sometoken")
	b := h.ComputeRefreshLookupDigest("rt_sometoken")
	if a != b {
		t.Fatal("ComputeRefreshLookupDigest is not deterministic")
	}

	c := h.ComputeRefreshLookupDigest("rt_othertoken")
	if a == c {
		t.Fatal("ComputeRefreshLookupDigest collided across distinct inputs")
	}
}

func TestVerifyDummyDoesNotPanic(t *testing.T) {
	h := NewHasher(DefaultParams(), []byte("key"))
	h.VerifyDummy("whatever")
}
