package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
	assert.Empty(t, store.Keys())
}

func TestNewConfigStore_NestedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	store, err := NewConfigStore(dir)

	require.NoError(t, err)
	require.NoError(t, store.Set("ingestion.max_prs", 20))
	_, err = os.Stat(store.Path())
	assert.NoError(t, err)
}

func TestNewConfigStore_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("not = [valid"), 0600))

	_, err := NewConfigStore(dir)

	assert.Error(t, err)
}

func TestConfigStore_SetAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set("ingestion.pr_budget", 3*time.Minute))
	require.NoError(t, store.Set("fetch.use_clone", false))

	v, ok := store.Get("ingestion.pr_budget")
	require.True(t, ok)
	assert.Equal(t, "3m0s", v)

	require.NoError(t, store.Delete("fetch.use_clone"))
	require.NoError(t, store.Delete("never.set"))

	reloaded, err := NewConfigStore(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"ingestion.pr_budget"}, reloaded.Keys())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestConfigStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set("embedding.provider", "local"))
	require.NoError(t, store.Set("embedding.local_model", "all-minilm"))
	require.NoError(t, store.Set("ingestion.max_issues", 50))
	require.NoError(t, store.Set("chunking.local.issue", 5000))

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[embedding]")
	assert.Contains(t, string(raw), "[chunking.local]")

	reloaded, err := NewConfigStore(dir)
	require.NoError(t, err)
	model, _ := reloaded.Get("embedding.local_model")
	assert.Equal(t, "all-minilm", model)
	issues, _ := reloaded.Get("ingestion.max_issues")
	assert.Equal(t, int64(50), issues)
	assert.Equal(t, []string{
		"chunking.local.issue",
		"embedding.local_model",
		"embedding.provider",
		"ingestion.max_issues",
	}, reloaded.Keys())
}

func TestConfigStore_LoadPicksUpExternalEdits(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set("ingestion.max_prs", 5))

	require.NoError(t, os.WriteFile(store.Path(), []byte("[ingestion]\npr_budget = 90\n"), 0600))
	require.NoError(t, store.Load())

	v, ok := store.Get("ingestion.pr_budget")
	require.True(t, ok)
	assert.Equal(t, int64(90), v)
	_, ok = store.Get("ingestion.max_prs")
	assert.False(t, ok)
}

func TestConfigStore_FilePermissions(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("embedding.api_key", "sk-test"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestUnflattenMap(t *testing.T) {
	got := unflattenMap(map[string]any{
		"a.b":   1,
		"a.c.d": "x",
		"e":     true,
		"e.f":   2,
	})

	assert.Equal(t, map[string]any{
		"a": map[string]any{
			"b": 1,
			"c": map[string]any{"d": "x"},
		},
		"e": true,
	}, got)
	assert.Equal(t, map[string]any{"a.b": 1, "a.c.d": "x", "e": true}, flattenMap(got, ""))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("REPOLENS_TEST_A=from-file\nREPOLENS_TEST_B=from-file\n"), 0600))
	t.Setenv("REPOLENS_TEST_B", "from-env")

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	t.Cleanup(func() { os.Unsetenv("REPOLENS_TEST_A") })

	assert.Equal(t, "from-file", os.Getenv("REPOLENS_TEST_A"))
	assert.Equal(t, "from-env", os.Getenv("REPOLENS_TEST_B"))
}
