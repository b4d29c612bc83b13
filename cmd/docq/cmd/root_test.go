package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()

	names := make(map[string]bool)
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{"index", "query", "ask", "verify", "status"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestRootCmd_Version(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "docq version")
}

func TestIndexCmd_Flags(t *testing.T) {
	root := NewRootCmd()
	idx, _, err := root.Find([]string{"index"})
	require.NoError(t, err)

	assert.NotNil(t, idx.Flags().Lookup("rebuild"))
}

func TestQueryCmd_RequiresArgs(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"query"})

	assert.Error(t, root.Execute())
}
