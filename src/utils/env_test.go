package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitEnvironmentVariables(t *testing.T) {
	t.Run("missing file is fine", func(t *testing.T) {
		assert.NoError(t, InitEnvironmentVariables(t.TempDir()))
	})

	t.Run("loads development file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, DEV_ENV_FILENAME), []byte("ANALYTICS_TEST_VALUE=42\n"), 0644))
		t.Setenv("GO_ENV", "development")
		t.Setenv("ANALYTICS_TEST_VALUE", "")
		os.Unsetenv("ANALYTICS_TEST_VALUE")

		require.NoError(t, InitEnvironmentVariables(dir))

		v, err := GetEnv("ANALYTICS_TEST_VALUE")
		require.NoError(t, err)
		assert.Equal(t, "42", v)
	})

	t.Run("unset variable", func(t *testing.T) {
		_, err := GetEnv("ANALYTICS_DEFINITELY_UNSET")
		assert.Error(t, err)
	})
}
