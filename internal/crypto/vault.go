// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

// Package crypto provides authenticated encryption for OAuth tokens at rest.
//
// The vault uses AES-256-GCM with a static process-lifetime key supplied as
// 64 hex characters (32 bytes). Each encryption draws a fresh random nonce;
// ciphertext blobs are self-contained strings of the form
//
//	base64(nonce):base64(tag):base64(ciphertext)
//
// so a blob can be decrypted with nothing but the key. Tag verification
// failure is reported as ErrIntegrity, distinct from malformed-blob errors,
// because callers treat it as "stored token is corrupt".
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrKeyMissing indicates the encryption key is absent or not 32 bytes.
	ErrKeyMissing = errors.New("encryption key missing or malformed")

	// ErrIntegrity indicates the authentication tag did not verify.
	ErrIntegrity = errors.New("ciphertext integrity check failed")

	// ErrInvalidCiphertext indicates the blob does not parse as
	// nonce:tag:ciphertext.
	ErrInvalidCiphertext = errors.New("invalid ciphertext blob")
)

const gcmTagSize = 16

// Vault performs AES-256-GCM encryption with a fixed key.
type Vault struct {
	aead cipher.AEAD
}

// NewVault creates a vault from a 64-character hex key.
func NewVault(hexKey string) (*Vault, error) {
	if hexKey == "" {
		return nil, ErrKeyMissing
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("%w: want 64 hex chars", ErrKeyMissing)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM cipher: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt encrypts plaintext and returns a nonce:tag:ciphertext blob.
// Two encryptions of the same plaintext produce distinct blobs.
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, plaintext, nil)
	ct := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	b64 := base64.StdEncoding
	return b64.EncodeToString(nonce) + ":" + b64.EncodeToString(tag) + ":" + b64.EncodeToString(ct), nil
}

// EncryptString is Encrypt for string plaintext.
func (v *Vault) EncryptString(plaintext string) (string, error) {
	return v.Encrypt([]byte(plaintext))
}

// Decrypt parses a nonce:tag:ciphertext blob and returns the plaintext.
// Returns ErrInvalidCiphertext when the blob does not parse and ErrIntegrity
// when the authentication tag does not verify.
func (v *Vault) Decrypt(blob string) ([]byte, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: want 3 parts, got %d", ErrInvalidCiphertext, len(parts))
	}

	b64 := base64.StdEncoding
	nonce, err := b64.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: nonce decode failed", ErrInvalidCiphertext)
	}
	tag, err := b64.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: tag decode failed", ErrInvalidCiphertext)
	}
	ct, err := b64.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext decode failed", ErrInvalidCiphertext)
	}

	if len(nonce) != v.aead.NonceSize() || len(tag) != gcmTagSize {
		return nil, fmt.Errorf("%w: bad nonce or tag length", ErrInvalidCiphertext)
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrIntegrity
	}

	return plaintext, nil
}

// DecryptString is Decrypt returning a string.
func (v *Vault) DecryptString(blob string) (string, error) {
	pt, err := v.Decrypt(blob)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
