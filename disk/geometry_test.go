package disk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diskfs/go-fdisk/disk"
)

const mib = 1024 * 1024

func fileTopology(size uint64) *disk.Topology {
	return &disk.Topology{
		Type:               disk.DeviceTypeFile,
		Size:               size,
		LogicalSectorSize:  512,
		PhysicalSectorSize: 512,
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		topo      *disk.Topology
		o         disk.Overrides
		sector    uint64
		phy       uint64
		grain     uint64
		total     uint64
		first     uint64
		last      uint64
		cylinders uint64
	}{
		{"image", fileTopology(10 * mib), disk.Overrides{}, 512, 512, mib, 20480, 2048, 20479, 1},
		{"tiny image", fileTopology(mib), disk.Overrides{}, 512, 512, mib, 2048, 1, 2047, 0},
		{"sector override", fileTopology(10 * mib), disk.Overrides{SectorSize: 4096}, 4096, 4096, mib, 2560, 256, 2559, 0},
		{"user grain", fileTopology(64 * mib), disk.Overrides{Grain: 4 * mib}, 512, 512, 4 * mib, 131072, 8192, 131071, 8},
		{"user chs", fileTopology(10 * mib), disk.Overrides{Heads: 16, Sectors: 32}, 512, 512, mib, 20480, 2048, 20479, 40},
		{"4k with alignment offset", &disk.Topology{
			Type:               disk.DeviceTypeBlockDevice,
			Size:               100 * mib,
			LogicalSectorSize:  512,
			PhysicalSectorSize: 4096,
			MinIOSize:          4096,
			AlignmentOffset:    3584,
		}, disk.Overrides{}, 512, 4096, mib, 204800, 7, 204799, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := disk.New(tt.topo, tt.o)
			assert.Equal(t, tt.sector, g.SectorSize, "sector size")
			assert.Equal(t, tt.phy, g.PhySectorSize, "physical sector size")
			assert.Equal(t, tt.grain, g.Grain, "grain")
			assert.Equal(t, tt.total, g.TotalSectors, "total sectors")
			assert.Equal(t, tt.first, g.FirstLBA, "first lba")
			assert.Equal(t, tt.last, g.LastLBA, "last lba")
			assert.Equal(t, tt.cylinders, g.Cylinders, "cylinders")
		})
	}
}

func TestAlignLBA(t *testing.T) {
	g := disk.New(fileTopology(10*mib), disk.Overrides{})
	require.Equal(t, uint64(2048), g.GrainSectors())

	tests := []struct {
		lba      uint64
		dir      disk.Align
		expected uint64
	}{
		{2048, disk.AlignUp, 2048},
		{2048, disk.AlignDown, 2048},
		{3000, disk.AlignUp, 4096},
		{3000, disk.AlignDown, 2048},
		{3000, disk.AlignNearest, 2048},
		{3100, disk.AlignNearest, 4096},
		{100, disk.AlignUp, 2048},
		{100, disk.AlignDown, 2048},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, g.AlignLBA(tt.lba, tt.dir), "lba %d dir %d", tt.lba, tt.dir)
	}
}

func TestAlignLBAInRange(t *testing.T) {
	g := disk.New(fileTopology(10*mib), disk.Overrides{})
	// less than a grain into the range is left alone
	assert.Equal(t, uint64(3000), g.AlignLBAInRange(3000, 2048, 20479))
	assert.Equal(t, uint64(10240), g.AlignLBAInRange(10000, 2048, 20479))
	assert.Equal(t, uint64(18432), g.AlignLBAInRange(20000, 2048, 20479))
}

func TestAlignment(t *testing.T) {
	g := disk.New(&disk.Topology{
		Type:               disk.DeviceTypeBlockDevice,
		Size:               100 * mib,
		LogicalSectorSize:  512,
		PhysicalSectorSize: 4096,
		MinIOSize:          4096,
		AlignmentOffset:    3584,
	}, disk.Overrides{})
	assert.True(t, g.IsPhyAligned(7))
	assert.True(t, g.IsPhyAligned(15))
	assert.False(t, g.IsPhyAligned(8))

	plain := disk.New(fileTopology(10*mib), disk.Overrides{})
	assert.True(t, plain.IsAligned(4096))
	assert.False(t, plain.IsAligned(4097))
	assert.True(t, plain.IsPhyAligned(4097))
}

func TestResetAlignment(t *testing.T) {
	g := disk.New(fileTopology(64*mib), disk.Overrides{})
	g.FirstLBA, g.LastLBA = 34, 1000
	g.ResetAlignment(2 * mib)
	assert.Equal(t, uint64(2*mib), g.Grain)
	assert.Equal(t, uint64(4096), g.FirstLBA)
	assert.Equal(t, uint64(131071), g.LastLBA)
}

func TestConversions(t *testing.T) {
	g := disk.New(fileTopology(10*mib), disk.Overrides{})
	assert.Equal(t, uint64(1024), g.SectorsToBytes(2))
	assert.Equal(t, uint64(2), g.BytesToSectors(513))
	assert.Equal(t, uint64(1), g.BytesToSectors(512))
	assert.Equal(t, uint64(16065), g.CylinderSectors())

	for n, expected := range map[uint64]bool{0: false, 1: true, 512: true, 513: false, 4096: true, 6144: false} {
		assert.Equal(t, expected, disk.IsPowerOfTwo(n), "%d", n)
	}
}
