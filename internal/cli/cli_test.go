package cli

import (
	"bytes"
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
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--env-file", t.TempDir()+"/none.env")
	require.NoError(t, err)
	assert.Contains(t, out, "fxconv dev")
	assert.Contains(t, out, "commit: unknown")
}

func TestConvertRejectsBadArguments(t *testing.T) {
	_, err := execute(t, "convert", "USD", "BRL")
	assert.Error(t, err)

	_, err = execute(t, "convert", "USD", "BRL", "ten")
	assert.EqualError(t, err, `invalid amount "ten"`)
}
