package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptToken(t *testing.T) {
	blob, err := EncryptToken("a1-secrettoken", "hunter2")
	require.NoError(t, err)

	token, err := DecryptToken(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "a1-secrettoken", token)
}

func TestDecryptTokenWrongPassword(t *testing.T) {
	blob, err := EncryptToken("a1-secrettoken", "hunter2")
	require.NoError(t, err)

	_, err = DecryptToken(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptTokenRandomised(t *testing.T) {
	a, err := EncryptToken("tok", "pw")
	require.NoError(t, err)
	b, err := EncryptToken("tok", "pw")
	require.NoError(t, err)
	assert.NotEqual(t, string(a), string(b), "salt and nonce must differ per call")
}

func TestLoadToken(t *testing.T) {
	token, err := LoadToken(TokenConfig{RawToken: "raw-wins"})
	require.NoError(t, err)
	assert.Equal(t, "raw-wins", token)

	blob, err := EncryptToken("from-file", "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	token, err = LoadToken(TokenConfig{EncryptedTokenPath: path, TokenPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "from-file", token)

	_, err = LoadToken(TokenConfig{})
	assert.Error(t, err)
}
