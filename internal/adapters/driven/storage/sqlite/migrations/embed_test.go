package migrations

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPending(t *testing.T) {
	fsys := fstest.MapFS{
		"002_usage.up.sql":   {Data: []byte("CREATE TABLE b (x);")},
		"001_initial.up.sql": {Data: []byte("CREATE TABLE a (x);")},
		"README.md":          {Data: []byte("notes")},
	}

	t.Run("orders by version", func(t *testing.T) {
		got, err := pending(fsys, 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 1, got[0].Version)
		assert.Equal(t, "CREATE TABLE a (x);", got[0].SQL)
		assert.Equal(t, 2, got[1].Version)
	})

	t.Run("skips applied", func(t *testing.T) {
		got, err := pending(fsys, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "002_usage.up.sql", got[0].Name)
	})

	t.Run("rejects unnumbered files", func(t *testing.T) {
		_, err := pending(fstest.MapFS{"initial.up.sql": {Data: []byte("")}}, 0)
		assert.Error(t, err)
	})
}

func TestPendingEmbedded(t *testing.T) {
	got, err := Pending(0)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, 1, got[0].Version)
	assert.Contains(t, got[0].SQL, "schema_migrations")
}
