package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		engineFile = ""
		validateAt = ""
	})
	err := rootCmd.ExecuteContext(testContext(t))
	return out.String(), err
}

func TestVersion(t *testing.T) {
	SetVersion("1.2.3")
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "locatectl 1.2.3\n", out)
}

func TestRulesValidate(t *testing.T) {
	engine := filepath.Join("..", "..", "configs", "engine.yaml")
	out, err := run(t, "rules", "validate", engine, "--at", "2026-03-02T09:00:00-06:00")
	require.NoError(t, err)
	assert.Contains(t, out, "Engine version 1: 3 jurisdiction(s)")
	// Monday plus two business days in Texas.
	assert.Contains(t, out, "legal dig 2026-03-04 09:00 CST")
	assert.Contains(t, out, "Engine file is valid.")
}

func TestRulesValidateRejectsBrokenFile(t *testing.T) {
	_, err := run(t, "rules", "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = run(t, "rules", "validate", filepath.Join("..", "..", "configs", "engine.yaml"), "--at", "yesterday")
	assert.Error(t, err)
}

func TestSweepRejectsUnknownName(t *testing.T) {
	_, err := run(t, "sweep", "laundry")
	assert.Error(t, err)
}

func TestMigrateRequiresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	_, err := run(t, "migrate")
	assert.EqualError(t, err, "POSTGRES_DSN is required")
}
