package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvmarrod/peer-weaver/internal/version"
)

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	assert.Equal(t, "peerweaver", cmd.Use)
	assert.Equal(t, version.Version, cmd.Version)
	assert.NotEmpty(t, cmd.Long)

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"serve", "crawl", "version"})
}

func TestCrawlCmdFlags(t *testing.T) {
	cmd := NewCrawlCmd()

	seed := cmd.Flags().Lookup("seed")
	require.NotNil(t, seed)
	assert.Equal(t, "s", seed.Shorthand)
	assert.NotNil(t, cmd.Flags().Lookup("output"))
}

func TestVersionCmd(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "peerweaver version "+version.Version)
}
