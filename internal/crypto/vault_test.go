// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := NewVault(testKey)
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	return v
}

func TestNewVaultKeyValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"empty key", ""},
		{"short key", "deadbeef"},
		{"non-hex key", strings.Repeat("zz", 32)},
		{"too long key", testKey + "00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewVault(tt.key)
			if !errors.Is(err, ErrKeyMissing) {
				t.Errorf("NewVault(%q) error = %v, want ErrKeyMissing", tt.key, err)
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := newTestVault(t)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"short token", "AT1"},
		{"typical access token", "act.example.M81HBIvZ0dIabcdef1234567890"},
		{"unicode", "tøken-ünïcode-值"},
		{"long", strings.Repeat("refresh-token-material-", 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := v.EncryptString(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			if parts := strings.Split(blob, ":"); len(parts) != 3 {
				t.Fatalf("blob has %d parts, want 3", len(parts))
			}

			got, err := v.DecryptString(blob)
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if got != tt.plaintext {
				t.Errorf("round trip = %q, want %q", got, tt.plaintext)
			}
		})
	}
}

func TestEncryptNonceUniqueness(t *testing.T) {
	v := newTestVault(t)

	a, err := v.EncryptString("same plaintext")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := v.EncryptString("same plaintext")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical blobs")
	}
}

func TestDecryptTamperDetection(t *testing.T) {
	v := newTestVault(t)

	blob, err := v.EncryptString("sensitive-token")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	parts := strings.Split(blob, ":")

	flip := func(b64 string) string {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			t.Fatalf("decode part: %v", err)
		}
		raw[0] ^= 0x01
		return base64.StdEncoding.EncodeToString(raw)
	}

	tests := []struct {
		name string
		blob string
	}{
		{"flipped nonce", flip(parts[0]) + ":" + parts[1] + ":" + parts[2]},
		{"flipped tag", parts[0] + ":" + flip(parts[1]) + ":" + parts[2]},
		{"flipped ciphertext", parts[0] + ":" + parts[1] + ":" + flip(parts[2])},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.DecryptString(tt.blob)
			if !errors.Is(err, ErrIntegrity) {
				t.Errorf("Decrypt error = %v, want ErrIntegrity", err)
			}
		})
	}
}

func TestDecryptMalformedBlob(t *testing.T) {
	v := newTestVault(t)

	tests := []struct {
		name string
		blob string
	}{
		{"empty", ""},
		{"no delimiters", "notablob"},
		{"two parts", "YWJj:YWJj"},
		{"four parts", "YWJj:YWJj:YWJj:YWJj"},
		{"bad base64", "!!!:YWJj:YWJj"},
		{"wrong nonce length", "YWJj:" + base64.StdEncoding.EncodeToString(make([]byte, 16)) + ":YWJj"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.DecryptString(tt.blob)
			if !errors.Is(err, ErrInvalidCiphertext) {
				t.Errorf("Decrypt(%q) error = %v, want ErrInvalidCiphertext", tt.blob, err)
			}
		})
	}
}

func TestDecryptWrongKey(t *testing.T) {
	v := newTestVault(t)
	other, err := NewVault(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	blob, err := v.EncryptString("token")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := other.DecryptString(blob); !errors.Is(err, ErrIntegrity) {
		t.Errorf("Decrypt with wrong key error = %v, want ErrIntegrity", err)
	}
}
