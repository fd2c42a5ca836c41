package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "ask", "space"})
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestAskRequiresToken(t *testing.T) {
	t.Setenv(tokenEnv, "")
	t.Setenv("DATABRICKS_HOST", "adb-1.azuredatabricks.net")
	t.Setenv("SERVING_ENDPOINT_NAME", "agent")

	root := newRootCmd()
	root.SetArgs([]string{"ask", "hello"})
	root.SetOut(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform token is required")
}

func TestAskRequiresQuestion(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"ask"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	assert.Error(t, root.Execute())
}
