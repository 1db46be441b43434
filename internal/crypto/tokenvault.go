// Package crypto keeps venue API tokens encrypted at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// currentVersion is the encrypted-token JSON schema version.
	currentVersion = 1
)

// encryptedTokenJSON is the on-disk format for an encrypted API token.
type encryptedTokenJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// TokenConfig carries the information LoadToken needs to resolve a venue API
// token. Populate the fields from environment variables or a config file.
type TokenConfig struct {
	// RawToken is the plaintext token. If non-empty, LoadToken returns it
	// directly.
	RawToken string

	// EncryptedTokenPath is the path to a JSON file produced by EncryptToken.
	EncryptedTokenPath string

	// TokenPassword is the password used to decrypt the file at
	// EncryptedTokenPath.
	TokenPassword string
}

// EncryptToken encrypts an API token with a password using
// PBKDF2-HMAC-SHA256 key derivation and AES-256-GCM authenticated
// encryption. It returns the JSON blob suitable for writing to disk.
func EncryptToken(token, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if token == "" {
		return nil, errors.New("crypto: token must not be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, []byte(token), nil)

	out := encryptedTokenJSON{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecryptToken decrypts a JSON blob produced by EncryptToken.
func DecryptToken(encryptedJSON []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}

	var stored encryptedTokenJSON
	if err := json.Unmarshal(encryptedJSON, &stored); err != nil {
		return "", fmt.Errorf("crypto: parsing encrypted token JSON: %w", err)
	}
	if stored.Version != currentVersion {
		return "", fmt.Errorf("crypto: unsupported version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return "", fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("crypto: creating GCM: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return "", errors.New("crypto: invalid nonce length")
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.New("crypto: decryption failed (wrong password or corrupted file)")
	}
	return string(plaintext), nil
}

// LoadToken resolves a venue API token from the config: a raw token wins,
// otherwise the encrypted file is read and decrypted.
func LoadToken(cfg TokenConfig) (string, error) {
	if cfg.RawToken != "" {
		return cfg.RawToken, nil
	}
	if cfg.EncryptedTokenPath == "" {
		return "", errors.New("crypto: no token source configured")
	}

	data, err := os.ReadFile(cfg.EncryptedTokenPath)
	if err != nil {
		return "", fmt.Errorf("crypto: reading encrypted token file: %w", err)
	}
	return DecryptToken(data, cfg.TokenPassword)
}
