package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "raw", cfg.Capture.Mode)
	assert.Equal(t, 1500, cfg.Capture.MTU)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mirage.yaml")
	data := []byte(`
responder:
  addresses: ["192.0.2.10"]
  synAckKey: ["06a0a1d63f305e9b", "d4d4bcbb7304875f"]
capture:
  mode: tun
  tunName: mirage0
  workers: 8
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg := DefaultConfig()
	require.NoError(t, LoadFromFile(path, cfg))
	assert.Equal(t, []string{"192.0.2.10"}, cfg.Responder.Addresses)
	assert.Equal(t, "tun", cfg.Capture.Mode)
	assert.Equal(t, "mirage0", cfg.Capture.TUNName)
	assert.Equal(t, 8, cfg.Capture.Workers)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RESPONDER_ADDRESSES", "192.0.2.10, 192.0.2.11")
	t.Setenv("CAPTURE_MODE", "raw")
	t.Setenv("CAPTURE_WORKERS", "16")
	t.Setenv("CAPTURE_UDP", "0")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)
	assert.Equal(t, []string{"192.0.2.10", "192.0.2.11"}, cfg.Responder.Addresses)
	assert.Equal(t, 16, cfg.Capture.Workers)
	assert.False(t, cfg.Capture.EnableUDP)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mac", func(c *Config) { c.Responder.MAC = "not-a-mac" }},
		{"bad address", func(c *Config) { c.Responder.Addresses = []string{"999.1.1.1"} }},
		{"one key word", func(c *Config) { c.Responder.SynAckKey = []string{"deadbeef"} }},
		{"non-hex key", func(c *Config) { c.Responder.SynAckKey = []string{"xyz", "abc"} }},
		{"bad mode", func(c *Config) { c.Capture.Mode = "pcap" }},
		{"zero mtu", func(c *Config) { c.Capture.MTU = 0 }},
		{"zero workers", func(c *Config) { c.Capture.Workers = 0 }},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSynAckKeyParsing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Responder.SynAckKey = []string{"06a0a1d63f305e9b", "0xd4d4bcbb7304875f"}
	key, err := cfg.SynAckKey()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x06a0a1d63f305e9b), key[0])
	assert.Equal(t, uint64(0xd4d4bcbb7304875f), key[1])
}

func TestSynAckKeyGenerated(t *testing.T) {
	cfg := DefaultConfig()
	key, err := cfg.SynAckKey()
	require.NoError(t, err)
	// A generated key of all zeros would mean the entropy source is broken.
	assert.False(t, key[0] == 0 && key[1] == 0)
}

func TestResponderIdentity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Responder.MAC = "52:54:00:12:34:56"
	cfg.Responder.Addresses = []string{"192.0.2.10"}
	cfg.Responder.SynAckKey = []string{"1", "2"}

	r, err := cfg.ResponderIdentity()
	require.NoError(t, err)
	assert.Equal(t, "52:54:00:12:34:56", r.MAC.String())
	require.Len(t, r.Addresses, 1)
	assert.Equal(t, [2]uint64{1, 2}, r.SynAckKey)
}
