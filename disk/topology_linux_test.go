package disk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// block ioctls reach the kernel and are refused for regular files
func TestProbeBlockDeviceRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var topo Topology
	err = probeBlockDevice(f.Fd(), &topo)
	assert.ErrorIs(t, err, unix.ENOTTY)
	assert.Zero(t, topo.Size)
}
