// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package oauth

import (
	"strings"
	"testing"
)

func TestGenerateCodeVerifier(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		v, err := GenerateCodeVerifier()
		if err != nil {
			t.Fatalf("GenerateCodeVerifier: %v", err)
		}
		if len(v) != 43 {
			t.Fatalf("verifier length = %d, want 43", len(v))
		}
		if strings.ContainsAny(v, "+/=") {
			t.Fatalf("verifier %q contains non-base64url characters", v)
		}
		if seen[v] {
			t.Fatal("duplicate verifier")
		}
		seen[v] = true
	}
}

func TestCodeChallenge(t *testing.T) {
	// RFC 7636 appendix B vector.
	got := CodeChallenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got != want {
		t.Errorf("CodeChallenge = %q, want %q", got, want)
	}

	if CodeChallenge("a") == CodeChallenge("b") {
		t.Error("distinct verifiers produced the same challenge")
	}
}
