package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("PORTAL_TEST_PORT: \"9000\"\nPORTAL_TEST_NAME: from-file\n"), 0o600))

	t.Setenv("PORTAL_TEST_NAME", "from-env")

	src, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", src.String("PORTAL_TEST_NAME", ""))

	port, err := src.Port("PORTAL_TEST_PORT", "8080")
	require.NoError(t, err)
	require.Equal(t, "9000", port)
}

func TestFallbacksAndParsing(t *testing.T) {
	t.Setenv("PORTAL_TEST_TTL", "3")
	t.Setenv("PORTAL_TEST_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("PORTAL_TEST_BAD_PORT", "70000")

	src, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "fallback", src.String("PORTAL_TEST_MISSING", "fallback"))

	ttl, err := src.Duration("PORTAL_TEST_TTL", 1, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 3*time.Hour, ttl)

	require.Equal(t, []string{"https://a.example", "https://b.example"}, src.List("PORTAL_TEST_ORIGINS"))

	_, err = src.Port("PORTAL_TEST_BAD_PORT", "8080")
	require.Error(t, err)

	_, err = src.RequiredString("PORTAL_TEST_MISSING")
	require.Error(t, err)
}
