// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// crypto.go - at-rest sealing of payloads. A sealed payload is
// sealVersion || nonce || ciphertext+tag, so it can never be mistaken for
// a compressed payload (which starts with '{').

package stattracker

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// Encryptor seals and opens stored payloads.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// KeySize is the required AES-256 key length in bytes.
const KeySize = 32

const sealVersion byte = 1

// AES256GCM seals payloads with AES-256 in GCM mode and a random nonce.
type AES256GCM struct {
	aead cipher.AEAD
}

// NewAES256GCM returns an encryptor for a KeySize-byte key.
func NewAES256GCM(key []byte) (*AES256GCM, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: encryption key is %d bytes, want %d", ErrInvalidConfig, len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &AES256GCM{aead: aead}, nil
}

// Encrypt seals plaintext.
func (e *AES256GCM) Encrypt(plaintext []byte) ([]byte, error) {
	ns := e.aead.NonceSize()
	out := make([]byte, 1+ns, 1+ns+len(plaintext)+e.aead.Overhead())
	out[0] = sealVersion
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrSealFailed, err)
	}
	return e.aead.Seal(out, out[1:], plaintext, nil), nil
}

// Decrypt opens a payload produced by Encrypt.
func (e *AES256GCM) Decrypt(sealed []byte) ([]byte, error) {
	ns := e.aead.NonceSize()
	if len(sealed) < 1+ns+e.aead.Overhead() {
		return nil, fmt.Errorf("%w: sealed payload truncated (%d bytes)", ErrSealFailed, len(sealed))
	}
	if sealed[0] != sealVersion {
		return nil, fmt.Errorf("%w: unknown seal version %d", ErrSealFailed, sealed[0])
	}
	nonce, body := sealed[1:1+ns], sealed[1+ns:]
	plain, err := e.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealFailed, err)
	}
	return plain, nil
}
