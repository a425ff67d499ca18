package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadJobFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml is converted to json", func(t *testing.T) {
		path := filepath.Join(dir, "job.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
file_id: 0190a5b2-0000-7000-8000-000000000001
target_col: value
algorithm: naive
train_percentage: 80
algorithm_params:
  - name: window
    value: 3
`), 0600))

		payload, err := loadJobFile(path)
		require.NoError(t, err)
		require.JSONEq(t, `{
			"file_id": "0190a5b2-0000-7000-8000-000000000001",
			"target_col": "value",
			"algorithm": "naive",
			"train_percentage": 80,
			"algorithm_params": [{"name": "window", "value": 3}]
		}`, string(payload))
	})

	t.Run("json is passed through", func(t *testing.T) {
		path := filepath.Join(dir, "job.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"algorithm":"naive"}`), 0600))

		payload, err := loadJobFile(path)
		require.NoError(t, err)
		require.JSONEq(t, `{"algorithm":"naive"}`, string(payload))
	})

	t.Run("invalid json is rejected", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{`), 0600))

		_, err := loadJobFile(path)
		require.Error(t, err)
	})
}

func TestFormatMetrics(t *testing.T) {
	require.Equal(t, "mae=1.5 rmse=2", formatMetrics(map[string]float64{"rmse": 2, "mae": 1.5}))
	require.Empty(t, formatMetrics(nil))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
