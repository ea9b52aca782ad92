package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rig.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRigDefaults(t *testing.T) {
	rig, err := LoadRig("")
	require.NoError(t, err)
	assert.Equal(t, defaultRig(), rig)

	rig, err = LoadRig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, AdapterI2C, rig.Adapter)
	assert.Equal(t, defaultInterval, rig.Interval)
	assert.Nil(t, rig.SMUX)
}

func TestLoadRigOverrides(t *testing.T) {
	path := writeRig(t, `
adapter: mcp2221
adc: 2
smux: 3
interval: 250ms
mqtt: tcp://localhost:1883
calibration_dir: /tmp/calib
modem:
  port: /dev/ttyAMA0
  baud: 115200
`)
	rig, err := LoadRig(path)
	require.NoError(t, err)
	assert.Equal(t, AdapterMCP2221, rig.Adapter)
	assert.Equal(t, 2, rig.ADC)
	require.NotNil(t, rig.SMUX)
	assert.Equal(t, 3, *rig.SMUX)
	assert.Equal(t, 250*time.Millisecond, rig.Interval)
	assert.Equal(t, "tcp://localhost:1883", rig.MQTT)
	assert.Equal(t, "/tmp/calib", rig.CalibrationDir)
	assert.Equal(t, ModemRig{Port: "/dev/ttyAMA0", Baud: 115200}, rig.Modem)
}

func TestLoadRigInvalid(t *testing.T) {
	tests := map[string]string{
		"unknown adapter": "adapter: serial\n",
		"smux range":      "smux: 4\n",
		"interval":        "interval: 0s\n",
		"malformed":       "adapter: [i2c\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadRig(writeRig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestParseAddress(t *testing.T) {
	for in, want := range map[string]byte{"0x08": 0x08, "10": 0x10, "0X7f": 0x7F, "4c": 0x4C} {
		got, err := parseAddress(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "0x", "80", "0x0102", "zz"} {
		_, err := parseAddress(in)
		assert.Error(t, err, in)
	}
}
