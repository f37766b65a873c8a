// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package oauth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// ErrInvalidState indicates a state parameter whose shape or signature does
// not verify. Deliberately carries no detail about which check failed.
var ErrInvalidState = errors.New("invalid state parameter")

const (
	stateNonceBytes = 8

	// stateSigHexLen is the truncated HMAC length in hex characters.
	stateSigHexLen = 16
)

// StateSigner mints and verifies the OAuth state parameter. The wire form is
// "{store_id}_{nonce_hex}_{sig_hex}"; store IDs may themselves contain
// underscores, so parsing splits from the right.
type StateSigner struct {
	key []byte
}

// NewStateSigner derives a dedicated signing key from the configured secret
// so the raw secret is never used as an HMAC key directly.
func NewStateSigner(secret []byte) (*StateSigner, error) {
	if len(secret) == 0 {
		return nil, errors.New("state secret is empty")
	}

	key := make([]byte, 32)
	r := hkdf.New(sha256.New, secret, nil, []byte("storepulse-oauth-state-v1"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive state signing key: %w", err)
	}
	return &StateSigner{key: key}, nil
}

// Sign mints a fresh state parameter for storeID.
func (s *StateSigner) Sign(storeID string) (string, error) {
	nonce := make([]byte, stateNonceBytes)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate state nonce: %w", err)
	}
	nonceHex := hex.EncodeToString(nonce)
	return storeID + "_" + nonceHex + "_" + s.signature(storeID, nonceHex), nil
}

// Validate verifies a state parameter and returns the embedded store ID.
func (s *StateSigner) Validate(state string) (string, error) {
	rest, sig, ok := rightCut(state)
	if !ok {
		return "", ErrInvalidState
	}
	storeID, nonceHex, ok := rightCut(rest)
	if !ok || storeID == "" {
		return "", ErrInvalidState
	}
	if len(nonceHex) != stateNonceBytes*2 {
		return "", ErrInvalidState
	}
	if _, err := hex.DecodeString(nonceHex); err != nil {
		return "", ErrInvalidState
	}

	want := s.signature(storeID, nonceHex)
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return "", ErrInvalidState
	}
	return storeID, nil
}

func (s *StateSigner) signature(storeID, nonceHex string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(storeID + ":" + nonceHex))
	return hex.EncodeToString(mac.Sum(nil))[:stateSigHexLen]
}

// rightCut splits around the last underscore.
func rightCut(v string) (before, after string, ok bool) {
	i := strings.LastIndexByte(v, '_')
	if i < 0 {
		return "", "", false
	}
	return v[:i], v[i+1:], true
}
