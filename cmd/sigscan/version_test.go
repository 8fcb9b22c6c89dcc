package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	cmd, buf := newTestCmd()
	err := runVersion(cmd, nil)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "sigscan v")
	assert.Contains(t, out, "Commit:")
	assert.Contains(t, out, "Go version:")
}
