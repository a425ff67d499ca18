package credentials

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	t.Run("creates directory with correct permissions", func(t *testing.T) {
		tmpDir := t.TempDir()
		credDir := filepath.Join(tmpDir, "creds")

		store, err := NewStore(credDir)
		require.NoError(t, err)
		assert.NotNil(t, store)

		info, err := os.Stat(credDir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
	})

	t.Run("creates config.json with a device fingerprint", func(t *testing.T) {
		tmpDir := t.TempDir()
		store, err := NewStore(tmpDir)
		require.NoError(t, err)

		info, err := os.Stat(filepath.Join(tmpDir, "config.json"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

		cfg, err := store.loadConfig()
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.Version)
		assert.Empty(t, cfg.DefaultCredential)
		assert.Empty(t, cfg.Credentials)
		assert.True(t, strings.HasPrefix(cfg.DeviceFingerprint, "tsctl-"))
	})

	t.Run("keeps the fingerprint across reopen", func(t *testing.T) {
		tmpDir := t.TempDir()
		first, err := NewStore(tmpDir)
		require.NoError(t, err)
		fp1, err := first.DeviceFingerprint()
		require.NoError(t, err)

		second, err := NewStore(tmpDir)
		require.NoError(t, err)
		fp2, err := second.DeviceFingerprint()
		require.NoError(t, err)

		assert.Equal(t, fp1, fp2)
	})
}

func TestStore_Save(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(Credential{Name: "local", ServerURL: "http://localhost:8000", Username: "alice", AccessToken: "a", RefreshToken: "r"}))

	t.Run("first profile becomes default", func(t *testing.T) {
		cred, err := store.GetDefault()
		require.NoError(t, err)
		assert.Equal(t, "local", cred.Name)
		assert.True(t, cred.LoggedIn())
		assert.False(t, cred.CreatedAt.IsZero())
	})

	t.Run("overwrite keeps created at", func(t *testing.T) {
		before, err := store.Get("local")
		require.NoError(t, err)

		require.NoError(t, store.Save(Credential{Name: "local", ServerURL: "http://localhost:8000", Username: "alice", AccessToken: "a2", RefreshToken: "r2"}))

		after, err := store.Get("local")
		require.NoError(t, err)
		assert.Equal(t, "a2", after.AccessToken)
		assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
	})

	t.Run("second profile does not steal default", func(t *testing.T) {
		require.NoError(t, store.Save(Credential{Name: "prod", ServerURL: "https://ts.example.com", Username: "alice"}))

		cred, err := store.Resolve("")
		require.NoError(t, err)
		assert.Equal(t, "local", cred.Name)

		cred, err = store.Resolve("prod")
		require.NoError(t, err)
		assert.False(t, cred.LoggedIn())
	})
}

func TestStore_ClearTokens(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save(Credential{Name: "local", AccessToken: "a", RefreshToken: "r"}))

	require.NoError(t, store.ClearTokens("local"))

	cred, err := store.Get("local")
	require.NoError(t, err)
	assert.False(t, cred.LoggedIn())

	assert.ErrorIs(t, store.ClearTokens("missing"), ErrCredentialNotFound)
}

func TestStore_DeleteAndDefault(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.GetDefault()
	assert.ErrorIs(t, err, ErrNoDefaultCredential)

	require.NoError(t, store.Save(Credential{Name: "a"}))
	require.NoError(t, store.Save(Credential{Name: "b"}))
	require.NoError(t, store.SetDefault("b"))
	assert.ErrorIs(t, store.SetDefault("missing"), ErrCredentialNotFound)

	require.NoError(t, store.Delete("b"))
	_, err = store.GetDefault()
	assert.ErrorIs(t, err, ErrNoDefaultCredential)

	list, err := store.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, store.Delete("b"), ErrCredentialNotFound)
}

func TestStore_BackfillsFingerprint(t *testing.T) {
	dir := t.TempDir()
	legacy := `{"version":1,"default_credential":"local","credentials":{"local":{"name":"local","server_url":"http://localhost:8000"}}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(legacy), 0600))

	store, err := NewStore(dir)
	require.NoError(t, err)

	fp, err := store.DeviceFingerprint()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fp, "tsctl-"))

	cred, err := store.GetDefault()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cred.ServerURL)
}
