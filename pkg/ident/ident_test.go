package ident_test

import (
	"crypto/sha256"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgefleet/bridgefleet/pkg/ident"
)

func TestResolve_ExplicitWins(t *testing.T) {
	id, err := ident.Resolve("bridge-01")
	require.NoError(t, err)
	assert.Equal(t, "bridge-01", id.String())
}

func TestResolve_TrimsWhitespace(t *testing.T) {
	id, err := ident.Resolve("  bridge-01\n")
	require.NoError(t, err)
	assert.Equal(t, "bridge-01", id.String())
}

func TestResolve_HostnameFallback(t *testing.T) {
	hostname, err := os.Hostname()
	require.NoError(t, err)

	id, err := ident.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, hostname, id.String())
}

func TestFromMac_Stable(t *testing.T) {
	first, err := ident.FromMac(sha256.New())
	if err != nil {
		t.Skipf("no MAC addresses on this host: %v", err)
	}

	second, err := ident.FromMac(sha256.New())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first.String(), 64)
}
