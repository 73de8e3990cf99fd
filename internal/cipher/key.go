package cipher

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// KeySource says where LoadOrCreateKey found the active key.
type KeySource string

const (
	KeySourceExplicit  KeySource = "explicit"
	KeySourceFile      KeySource = "file"
	KeySourceGenerated KeySource = "generated"
)

// GenerateKey returns KeySize random bytes.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("cipher: generating key: %w", err)
	}
	return key, nil
}

// EncodeKey returns the base64 text form used in the key file and in
// configuration.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// DecodeKey parses the base64 text form. The decoded key must be exactly
// KeySize bytes; anything else is an *InvalidKeyError.
func DecodeKey(text string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace([]byte(text))))
	if err != nil {
		return nil, fmt.Errorf("cipher: decoding key: %w", err)
	}
	if len(key) != KeySize {
		return nil, &InvalidKeyError{Size: len(key)}
	}
	return key, nil
}

// LoadOrCreateKey resolves the active key:
//
//   - a non-empty explicit key (base64) always wins;
//   - otherwise an existing key file at path is authoritative;
//   - otherwise a new key is generated and written to path with 0600
//     permissions.
//
// The key file is written to a temporary file and hard-linked into place,
// so it appears complete or not at all. Two processes racing on first use
// cannot both publish a key; the loser reads the winner's file.
func LoadOrCreateKey(explicit, path string) ([]byte, KeySource, error) {
	if explicit != "" {
		key, err := DecodeKey(explicit)
		if err != nil {
			return nil, "", err
		}
		return key, KeySourceExplicit, nil
	}

	key, err := readKeyFile(path)
	if err == nil {
		return key, KeySourceFile, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, "", err
	}

	key, err = GenerateKey()
	if err != nil {
		return nil, "", err
	}
	if err := writeKeyFile(path, key); err != nil {
		if errors.Is(err, os.ErrExist) {
			key, err = readKeyFile(path)
			if err != nil {
				return nil, "", err
			}
			return key, KeySourceFile, nil
		}
		return nil, "", err
	}
	return key, KeySourceGenerated, nil
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("cipher: reading key file: %w", err)
	}
	return DecodeKey(string(data))
}

func writeKeyFile(path string, key []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cipher: creating key directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".key-*.tmp")
	if err != nil {
		return fmt.Errorf("cipher: creating key file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(EncodeKey(key) + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("cipher: writing key file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("cipher: key file mode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("cipher: syncing key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cipher: closing key file: %w", err)
	}
	// os.Link fails with an ErrExist error if another process won.
	return os.Link(tmp.Name(), path)
}
