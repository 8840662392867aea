package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

// SealedPrefix marks sealed values in password files and in the secrets table
const SealedPrefix = "sealed:"

const (
	saltSize  = 16
	nonceSize = 24
)

// Seal encrypts value with a key derived from the passphrase and returns "sealed:<base64>".
// Layout of the decoded payload is nonce(24) | salt(16) | secretbox.
func Seal(value string, passphrase []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("can't make salt: %w", err)
	}
	nonce := new([nonceSize]byte)
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("can't make nonce: %w", err)
	}

	out := make([]byte, nonceSize+saltSize)
	copy(out, nonce[:])
	copy(out[nonceSize:], salt)
	sealed := secretbox.Seal(out, []byte(value), nonce, deriveKey(passphrase, salt))
	return SealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts value made by Seal. Values without the sealed prefix are returned as is.
func Open(value string, passphrase []byte) (string, error) {
	if !strings.HasPrefix(value, SealedPrefix) {
		return value, nil
	}
	if len(passphrase) == 0 {
		return "", errors.New("sealed value requires a key")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("can't decode sealed value: %w", err)
	}
	if len(data) < nonceSize+saltSize+secretbox.Overhead {
		return "", errors.New("sealed value is too short")
	}

	nonce := new([nonceSize]byte)
	copy(nonce[:], data[:nonceSize])
	salt := data[nonceSize : nonceSize+saltSize]
	res, ok := secretbox.Open(nil, data[nonceSize+saltSize:], nonce, deriveKey(passphrase, salt))
	if !ok {
		return "", errors.New("can't open sealed value, wrong key or damaged data")
	}
	return string(res), nil
}

// ReadPasswordFile reads the first line of the file, opening it if sealed
func ReadPasswordFile(path string, passphrase []byte) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config
	if err != nil {
		return "", fmt.Errorf("can't read password file: %w", err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return Open(strings.TrimSpace(line), passphrase)
}

// deriveKey makes 32-byte secretbox key with argon2id, 1 pass, 64MiB, 4 threads
func deriveKey(passphrase, salt []byte) *[32]byte {
	res := new([32]byte)
	copy(res[:], argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32))
	return res
}
