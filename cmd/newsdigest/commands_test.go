package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"bot", "digest", "purge", "stats"} {
		assert.True(t, names[want], "missing %s command", want)
	}

	require.NotNil(t, digestCmd.Flags().Lookup("chat"))
	require.NotNil(t, purgeCmd.Flags().Lookup("older-than"))
}
