package console

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestOutput(t *testing.T) {
	color.NoColor = true
	var stdout, stderr bytes.Buffer
	SetOutput(&stdout, &stderr)

	PInfof(PictoFinish, "travelled %d ticks", 120)
	Infof("dhcp")
	Warnf("no MCP2221 found")
	Errorf("read failed: %s", "nack")

	assert.Equal(t, "🏁 travelled 120 ticks\n... dhcp\n", stdout.String())
	assert.Equal(t, "WARN: no MCP2221 found\nERROR: read failed: nack\n", stderr.String())
}

func TestExit(t *testing.T) {
	err := Exit(3, "unknown sensor %q", "sonar")
	assert.Equal(t, 3, err.ExitCode())
	assert.Equal(t, `unknown sensor "sonar"`, err.Error())
}
