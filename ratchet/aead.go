package ratchet

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// newGCM builds an AES-256-GCM AEAD from a 32-byte key, as nist.go does
// for its body cipher.
func newGCM(key [32]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("ratchet: new aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ratchet: new gcm: %w", err)
	}
	return gcm, nil
}

// SealBody AEAD-encrypts a message body under mk, binding ad.
func SealBody(mk MessageKey, nonce [12]byte, ad, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM([32]byte(mk))
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce[:], plaintext, ad), nil
}

// OpenBody AEAD-decrypts a message body under mk.
func OpenBody(mk MessageKey, nonce [12]byte, ad, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM([32]byte(mk))
	if err != nil {
		return nil, err
	}
	pt, err := gcm.Open(nil, nonce[:], ciphertext, ad)
	if err != nil {
		return nil, fmt.Errorf("ratchet: open body: %w", err)
	}
	return pt, nil
}

// SealHeader AEAD-encrypts an epoch header under hk, binding ad.
func SealHeader(hk HeaderKey, nonce [12]byte, ad, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM([32]byte(hk))
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce[:], plaintext, ad), nil
}

// OpenHeader AEAD-decrypts an epoch header under hk.
func OpenHeader(hk HeaderKey, nonce [12]byte, ad, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM([32]byte(hk))
	if err != nil {
		return nil, err
	}
	pt, err := gcm.Open(nil, nonce[:], ciphertext, ad)
	if err != nil {
		return nil, fmt.Errorf("ratchet: open header: %w", err)
	}
	return pt, nil
}
