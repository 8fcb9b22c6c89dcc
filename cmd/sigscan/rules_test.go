package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRule = `rule EICAR : test
{
    strings:
        $a = "X5O!P%@AP"
    condition:
        $a
}
`

func writeRuleFile(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yar")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func newTestCmd() (*cobra.Command, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	return cmd, buf
}

func TestRulesCheck(t *testing.T) {
	cmd, buf := newTestCmd()
	err := runRulesCheck(cmd, []string{writeRuleFile(t, testRule)})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ok: 1 signature(s)")
}

func TestRulesCheck_InvalidSource(t *testing.T) {
	cmd, _ := newTestCmd()
	err := runRulesCheck(cmd, []string{writeRuleFile(t, "rule broken {")})
	require.Error(t, err)
}

func TestRulesList_Table(t *testing.T) {
	rulesListFormat = "table"
	cmd, buf := newTestCmd()
	err := runRulesList(cmd, []string{writeRuleFile(t, testRule)})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "EICAR")
	assert.Contains(t, out, "test")
}

func TestRulesList_JSON(t *testing.T) {
	rulesListFormat = "json"
	defer func() { rulesListFormat = "table" }()

	cmd, buf := newTestCmd()
	err := runRulesList(cmd, []string{writeRuleFile(t, testRule)})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"identifier": "EICAR"`)
}

func TestRulesList_UnknownFormat(t *testing.T) {
	rulesListFormat = "yaml"
	defer func() { rulesListFormat = "table" }()

	cmd, _ := newTestCmd()
	err := runRulesList(cmd, []string{writeRuleFile(t, testRule)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestRulesCompile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "rules.bin")
	rulesCompileOut = out
	defer func() { rulesCompileOut = "" }()

	cmd, buf := newTestCmd()
	err := runRulesCompile(cmd, []string{writeRuleFile(t, testRule)})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "compiled 1 signature(s)")

	// The compiled form round-trips through list --compiled.
	rulesCompiled = true
	rulesListFormat = "table"
	defer func() { rulesCompiled = false }()

	cmd, buf = newTestCmd()
	err = runRulesList(cmd, []string{out})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "EICAR")
}
