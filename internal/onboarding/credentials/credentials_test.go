package credentials_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ledgerline/ledgerline/internal/onboarding/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *credentials.Store {
	t.Helper()
	return credentials.NewStore(filepath.Join(t.TempDir(), "nested", "credentials.yaml"))
}

func TestStore_SetGet(t *testing.T) {
	s := newStore(t)

	v, err := s.Get(credentials.AccessToken)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.Set(credentials.AccessToken, "tok-1"))
	require.NoError(t, s.Set(credentials.TenantID, "tenant-1"))

	v, err = s.Get(credentials.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", v)

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStore_UnknownKey(t *testing.T) {
	s := newStore(t)
	assert.ErrorIs(t, s.Set("password", "x"), credentials.ErrUnknownKey)
	_, err := s.Get("password")
	assert.ErrorIs(t, err, credentials.ErrUnknownKey)
}

func TestStore_ClearRemovesAllKeys(t *testing.T) {
	s := newStore(t)
	for _, k := range credentials.Keys {
		require.NoError(t, s.Set(k, "value-"+k))
	}

	require.NoError(t, s.Clear())

	for _, k := range credentials.Keys {
		v, err := s.Get(k)
		require.NoError(t, err)
		assert.Empty(t, v, k)
	}
	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestStore_ClearKeepsOtherContent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o700))
	require.NoError(t, os.WriteFile(s.Path(), []byte("access_token: a\nprofile: work\n"), 0o600))

	require.NoError(t, s.Clear())

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "profile: work")
	assert.NotContains(t, string(data), "access_token")
}

func TestStore_ClearCorruptFile(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o700))
	require.NoError(t, os.WriteFile(s.Path(), []byte(":\n\t- not yaml"), 0o600))

	require.NoError(t, s.Clear())
	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestStore_ClearMissingFile(t *testing.T) {
	assert.NoError(t, newStore(t).Clear())
}
