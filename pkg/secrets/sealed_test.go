package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key := []byte("passphrase")
	sealed, err := Seal("db-password", key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, SealedPrefix))
	assert.NotContains(t, sealed, "db-password")

	sealed2, err := Seal("db-password", key)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, sealed2, "random salt and nonce")

	res, err := Open(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, "db-password", res)

	t.Run("wrong key", func(t *testing.T) {
		_, err := Open(sealed, []byte("other"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "wrong key")
	})

	t.Run("no key", func(t *testing.T) {
		_, err := Open(sealed, nil)
		require.EqualError(t, err, "sealed value requires a key")
	})

	t.Run("plain value", func(t *testing.T) {
		res, err := Open("plain", nil)
		require.NoError(t, err)
		assert.Equal(t, "plain", res)
	})

	t.Run("damaged", func(t *testing.T) {
		_, err := Open(SealedPrefix+"!!!", key)
		require.Error(t, err)
		_, err = Open(SealedPrefix+"AAAA", key)
		require.EqualError(t, err, "sealed value is too short")
	})
}

func TestReadPasswordFile(t *testing.T) {
	dir := t.TempDir()
	key := []byte("passphrase")

	plain := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(plain, []byte("  secret \nsecond line\n"), 0o600))
	res, err := ReadPasswordFile(plain, nil)
	require.NoError(t, err)
	assert.Equal(t, "secret", res)

	sealedVal, err := Seal("sealed-secret", key)
	require.NoError(t, err)
	sealed := filepath.Join(dir, "sealed")
	require.NoError(t, os.WriteFile(sealed, []byte(sealedVal+"\n"), 0o600))
	res, err = ReadPasswordFile(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, "sealed-secret", res)

	_, err = ReadPasswordFile(filepath.Join(dir, "nope"), key)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't read password file")
}
