// Package cipher provides the envelope encryption used for deep memories.
//
// Tokens are XChaCha20-Poly1305 sealed boxes in a self-contained layout:
//
//	[Nonce: 24 bytes (random)] [Ciphertext: N bytes] [Tag: 16 bytes]
//
// A fresh random nonce is drawn for every Encrypt call, so encrypting the
// same plaintext twice yields different tokens. The 24-byte extended nonce
// makes random nonces safe for the lifetime of a single key.
package cipher

import (
	stdcipher "crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required key length in bytes (256 bits).
const KeySize = chacha20poly1305.KeySize

// Overhead is the number of bytes a token adds to its plaintext.
const Overhead = chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// ErrAuthentication is returned by Decrypt when a token cannot be opened:
// the tag does not verify (tampered data or wrong key) or the token is too
// short to contain a nonce and tag.
var ErrAuthentication = errors.New("cipher: message authentication failed")

// InvalidKeyError reports a key of the wrong length. It is a construction
// precondition, not a runtime condition callers are expected to recover from.
type InvalidKeyError struct {
	Size int
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("cipher: invalid key size %d bytes, want %d", e.Size, KeySize)
}

// Cipher encrypts and decrypts opaque payloads under one 256-bit key.
// A Cipher is safe for concurrent use.
type Cipher struct {
	aead   stdcipher.AEAD
	random io.Reader
}

// New constructs a Cipher. The key is copied by the underlying AEAD; the
// caller may zero its slice afterwards.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, &InvalidKeyError{Size: len(key)}
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: creating XChaCha20-Poly1305: %w", err)
	}
	return &Cipher{aead: aead, random: rand.Reader}, nil
}

// Encrypt seals plaintext and returns nonce || ciphertext || tag.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(c.random, nonce[:]); err != nil {
		return nil, fmt.Errorf("cipher: generating nonce: %w", err)
	}

	out := make([]byte, len(nonce), len(nonce)+len(plaintext)+chacha20poly1305.Overhead)
	copy(out, nonce[:])

	// Seal appends ciphertext+tag after the nonce.
	return c.aead.Seal(out, nonce[:], plaintext, nil), nil
}

// Decrypt opens a token produced by Encrypt. Any failure, including a
// malformed token, is reported as ErrAuthentication and no plaintext is
// returned.
func (c *Cipher) Decrypt(token []byte) ([]byte, error) {
	if len(token) < Overhead {
		return nil, fmt.Errorf("%w: token is %d bytes, minimum is %d", ErrAuthentication, len(token), Overhead)
	}
	nonce := token[:chacha20poly1305.NonceSizeX]
	sealed := token[chacha20poly1305.NonceSizeX:]

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}
