package modelstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tsrunner/internal/engine"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFileStore(root)
	require.NoError(t, err)

	model := &engine.Model{Algorithm: "ETS", State: json.RawMessage(`{"alpha":0.5,"level":12.25}`)}

	t.Run("save and load", func(t *testing.T) {
		key, err := store.Save(ctx, model)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(key, "ETS/"))
		require.True(t, strings.HasSuffix(key, ".model.zst"))

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err)
		require.Equal(t, model.Algorithm, loaded.Algorithm)
		require.JSONEq(t, string(model.State), string(loaded.State))
	})

	t.Run("keys are unique", func(t *testing.T) {
		first, err := store.Save(ctx, model)
		require.NoError(t, err)
		second, err := store.Save(ctx, model)
		require.NoError(t, err)
		require.NotEqual(t, first, second)
	})

	t.Run("corruption is detected", func(t *testing.T) {
		key, err := store.Save(ctx, model)
		require.NoError(t, err)

		path := filepath.Join(root, filepath.FromSlash(key))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		data[20] ^= 0xff // flip a checksum byte
		require.NoError(t, os.WriteFile(path, data, 0o600))

		_, err = store.Load(ctx, key)
		require.ErrorIs(t, err, ErrCorruptModel)
	})

	t.Run("bad magic", func(t *testing.T) {
		path := filepath.Join(root, "ETS", "junk.model.zst")
		require.NoError(t, os.WriteFile(path, []byte("definitely not a model artifact"), 0o600))

		_, err := store.Load(ctx, "ETS/junk.model.zst")
		require.ErrorIs(t, err, ErrCorruptModel)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := store.Load(ctx, "ETS/0190f6c4-0000-7000-8000-000000000000.model.zst")
		require.ErrorIs(t, err, ErrModelNotFound)
	})

	t.Run("keys cannot escape the root", func(t *testing.T) {
		_, err := store.Load(ctx, "../etc/passwd.model.zst")
		require.ErrorIs(t, err, ErrInvalidKey)

		_, err = store.Save(ctx, &engine.Model{Algorithm: "../ETS"})
		require.ErrorIs(t, err, ErrInvalidKey)
	})
}
