package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCatalogValidate_BuiltIn(t *testing.T) {
	out, err := execute(t, "catalog", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Catalog is valid.")
	assert.Contains(t, out, "activities:")
}

func TestCatalogValidate_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"activities": "nope"}`), 0o600))

	_, err := execute(t, "catalog", "validate", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid catalog")
}

func TestCatalogValidate_MissingFile(t *testing.T) {
	_, err := execute(t, "catalog", "validate", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestSnapshot_RequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := execute(t, "snapshot", "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database configured")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "progressctl")
}
