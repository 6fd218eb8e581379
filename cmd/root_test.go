package cmd_test

import (
	"testing"
	"time"

	"github.com/mission-engadi/ai-service/cmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := cmd.GetRootCmd()
	assert.Equal(t, "ai-service", root.Use)
	require.NotNil(t, root.PersistentFlags().Lookup("config"))

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["server"])
	assert.True(t, names["migrate"])
	assert.True(t, names["workflows"])
}

func TestServerCommand_Flags(t *testing.T) {
	server, _, err := cmd.GetRootCmd().Find([]string{"server"})
	require.NoError(t, err)
	assert.NotNil(t, server.Flags().Lookup("host"))
	assert.NotNil(t, server.Flags().Lookup("port"))
}

func TestRunDueCommand_DefaultTimeout(t *testing.T) {
	runDue, _, err := cmd.GetRootCmd().Find([]string{"workflows", "run-due"})
	require.NoError(t, err)
	assert.Equal(t, "run-due", runDue.Name())

	timeout, err := runDue.Flags().GetDuration("timeout")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, timeout)
}
