package cli

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/repolens/internal/adapters/driving/mcp"
)

// runVersion executes the version command with args and returns its output.
func runVersion(t *testing.T, v string, args ...string) string {
	t.Helper()
	originalVersion := version
	version = v
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs(append([]string{"version"}, args...))
	t.Cleanup(func() {
		version = originalVersion
		versionShort = false
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	require.NoError(t, rootCmd.Execute())
	return buf.String()
}

func TestVersionCmd_PrintsBuildDetails(t *testing.T) {
	out := runVersion(t, "1.2.0")

	assert.Contains(t, out, "repolens version 1.2.0")
	assert.Contains(t, out, "MCP server: "+mcp.Version)
	assert.Contains(t, out, runtime.Version())
}

func TestVersionCmd_DisplaysDevByDefault(t *testing.T) {
	assert.Contains(t, runVersion(t, "dev"), "repolens version dev")
}

func TestVersionCmd_Short(t *testing.T) {
	assert.Equal(t, "1.2.0\n", runVersion(t, "1.2.0", "--short"))
}
