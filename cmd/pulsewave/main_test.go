package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulsewave/internal/audio"
	"github.com/banshee-data/pulsewave/internal/telemetry"
)

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, "sse", *sourceKind)
	assert.Equal(t, ":8080", *listen)
	assert.Equal(t, "", *grpcListen)
	assert.Equal(t, "", *dbPath)
	assert.True(t, *enableAudio)
	assert.False(t, *tuiMode)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.GetCapacity())

	path := filepath.Join(t.TempDir(), "monitor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capacity: 120\n"), 0o600))
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.GetCapacity())

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestOpenOutputDisabled(t *testing.T) {
	out := openOutput(false, 44100)
	assert.Equal(t, audio.StateUnavailable, out.State())
}

func TestOpenSource(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		flags   sourceFlags
		wantErr bool
	}{
		{"unknown kind", sourceFlags{Kind: "carrier-pigeon"}, true},
		{"sse without url", sourceFlags{Kind: "sse"}, true},
		{"ws without url", sourceFlags{Kind: "ws"}, true},
		{"mqtt without topic", sourceFlags{Kind: "mqtt", MQTTBroker: "tcp://localhost:1883"}, true},
		{"pcap missing file", sourceFlags{Kind: "pcap", PCAPFile: filepath.Join(t.TempDir(), "none.pcap")}, true},
		{"serial missing device", sourceFlags{Kind: "serial", SerialPort: "/dev/pulsewave-does-not-exist"}, true},
		{"udp", sourceFlags{Kind: "udp", UDPListen: "127.0.0.1:0", BufSize: 4}, false},
		{"sim", sourceFlags{Kind: "sim", SimRate: 50, BufSize: 4}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := openSource(ctx, tt.flags)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, src)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, src)
			assert.Equal(t, telemetry.Stats{}, src.Stats())
			assert.NoError(t, src.Close())
		})
	}
}
