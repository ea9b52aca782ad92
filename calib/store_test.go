package calib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type limits struct {
	Low  int `yaml:"low"`
	High int `yaml:"high"`
}

func TestStore_SaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	s := NewStore(dir)

	require.NoError(t, s.Save("flex-s1", limits{Low: 120, High: 870}))

	var got limits
	require.NoError(t, s.Load("flex-s1", &got))
	assert.Equal(t, limits{Low: 120, High: 870}, got)

	data, err := os.ReadFile(filepath.Join(dir, "flex-s1.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "low: 120")
}

func TestStore_LoadMissing(t *testing.T) {
	s := NewStore(t.TempDir())
	var got limits
	err := s.Load("nothing", &got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Save("gyro", map[string]int{"offset": 618}))
	require.NoError(t, s.Delete("gyro"))
	require.NoError(t, s.Delete("gyro"))
	var got map[string]int
	assert.ErrorIs(t, s.Load("gyro", &got), ErrNotFound)
}
