package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommandValid(t *testing.T) {
	out, err := execute(t, "validate", "12345678-5")
	require.NoError(t, err)
	assert.Contains(t, out, "12.345.678-5 is valid")
}

func TestValidateCommandInvalid(t *testing.T) {
	_, err := execute(t, "validate", "12345678-4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid RUT")
}

func TestFormatCommand(t *testing.T) {
	out, err := execute(t, "format", "123456785")
	require.NoError(t, err)
	assert.Equal(t, "12.345.678-5\n", out)
}

func TestFormatCommandDoesNotValidate(t *testing.T) {
	// An arithmetically invalid identifier still formats.
	out, err := execute(t, "format", "12345678-9")
	require.NoError(t, err)
	assert.Equal(t, "12.345.678-9\n", out)
}
