package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("MBUS_LISTEN_ADDR", "")
	t.Setenv("MBUS_DESCRIPTOR", "")
	t.Setenv("MBUS_AUTHKEY", "")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", cfg.ListenAddr)
	assert.Equal(t, "mbus.json", cfg.DescriptorPath)
	assert.Empty(t, cfg.AuthKey)
}

func TestNew_FromEnvironment(t *testing.T) {
	t.Setenv("MBUS_LISTEN_ADDR", "0.0.0.0:7000")
	t.Setenv("MBUS_DESCRIPTOR", "/var/run/mbus.json")
	t.Setenv("MBUS_AUTHKEY", "deadbeef")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7000", cfg.ListenAddr)
	assert.Equal(t, "/var/run/mbus.json", cfg.DescriptorPath)
	assert.Equal(t, "deadbeef", cfg.AuthKey)
}

func TestNew_RejectsBadValues(t *testing.T) {
	t.Setenv("MBUS_LISTEN_ADDR", "not an address")
	t.Setenv("MBUS_DESCRIPTOR", "mbus.json")
	t.Setenv("MBUS_AUTHKEY", "")

	_, err := New()
	require.Error(t, err)

	t.Setenv("MBUS_LISTEN_ADDR", "127.0.0.1:0")
	t.Setenv("MBUS_AUTHKEY", "zz-not-hex")

	_, err = New()
	require.Error(t, err)
}
