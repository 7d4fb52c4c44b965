package fdisk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fdisk "github.com/diskfs/go-fdisk"
	"github.com/diskfs/go-fdisk/label"
	"github.com/diskfs/go-fdisk/testhelper"
)

func TestNestedProtectiveMBR(t *testing.T) {
	c, _, _ := memoryContext(t, diskSize)
	require.NoError(t, c.CreateDisklabel("gpt"))
	_, err := c.AddPartition(nil)
	require.NoError(t, err)
	require.NoError(t, c.WriteDisklabel())

	mbr, err := c.NewNested("dos")
	require.NoError(t, err)
	assert.Same(t, c, mbr.Parent())
	require.True(t, mbr.IsLabelType(label.DOS))

	tb, err := mbr.GetPartitions()
	require.NoError(t, err)
	require.Equal(t, 1, tb.NEnts())
	typ, _ := tb.Partition(0).Type()
	start, _ := tb.Partition(0).Start()
	assert.Equal(t, "ee", typ)
	assert.Equal(t, uint64(1), start)

	// releasing the nested context leaves the parent's device alone
	require.NoError(t, mbr.Close())
	_, err = c.Name()
	require.NoError(t, err)
	assert.True(t, c.IsLabelType(label.GPT))
}

func TestNestedRules(t *testing.T) {
	c, _, _ := memoryContext(t, diskSize)

	// without a label both kinds are allowed
	for _, name := range []string{"dos", "bsd"} {
		n, err := c.NewNested(name)
		require.NoError(t, err, name)
		require.NoError(t, n.Close())
	}

	require.NoError(t, c.CreateDisklabel("gpt"))
	_, err := c.NewNested("bsd")
	assert.ErrorIs(t, err, fdisk.ErrAllocation)
	_, err = c.NewNested("aix")
	assert.ErrorIs(t, err, fdisk.ErrAllocation)
	_, err = c.NewNested("sun")
	assert.ErrorIs(t, err, fdisk.ErrAllocation)

	child, err := c.NewNested("dos")
	require.NoError(t, err)
	_, err = child.NewNested("bsd")
	assert.ErrorIs(t, err, fdisk.ErrAllocation)

	require.NoError(t, c.CreateDisklabel("dos"))
	_, err = c.NewNested("dos")
	assert.ErrorIs(t, err, fdisk.ErrAllocation)
}

func TestNestedPropagation(t *testing.T) {
	c, _, _ := memoryContext(t, diskSize)
	c.EnableBootbitsProtection(true)
	require.NoError(t, c.SetSizeUnit(fdisk.SizeUnitBytes))

	child, err := c.NewNested("dos")
	require.NoError(t, err)
	assert.True(t, child.HasProtectedBootbits())
	assert.Equal(t, fdisk.SizeUnitBytes, child.SizeUnit())
	name, err := child.Name()
	require.NoError(t, err)
	assert.Equal(t, "memory", name)

	require.NoError(t, child.SaveUserSectorSize(4096, 4096))
	assert.Equal(t, uint64(4096), child.SectorSize())
	assert.Equal(t, uint64(4096), c.SectorSize())

	require.NoError(t, child.SaveUserGrain(2*mib))
	assert.Equal(t, uint64(2*mib), c.Grain())

	// the usable range is per context
	require.NoError(t, child.SetLastLBA(1000))
	assert.Equal(t, uint64(1000), child.LastLBA())
	assert.Equal(t, uint64(2559), c.LastLBA())

	// assigning through the child assigns the parent
	dev, _ := testhelper.Memory(diskSize)
	require.NoError(t, child.AssignStorage(dev, "other", false))
	name, err = c.Name()
	require.NoError(t, err)
	assert.Equal(t, "other", name)

	require.NoError(t, child.DeassignDevice(true))
	_, err = c.Name()
	assert.ErrorIs(t, err, fdisk.ErrNoData)
}

func TestNestedBSD(t *testing.T) {
	c, dev, buf := memoryContext(t, diskSize)
	require.NoError(t, c.CreateDisklabel("dos"))
	slice := fdisk.NewPartition()
	slice.SetStart(10240)
	slice.SetSize(8192)
	require.NoError(t, slice.SetType("a5"))
	_, err := c.AddPartition(slice)
	require.NoError(t, err)
	require.NoError(t, c.WriteDisklabel())

	b, err := c.NewNested("bsd")
	require.NoError(t, err)
	assert.False(t, b.HasLabel())
	require.NoError(t, b.CreateDisklabel(""))
	require.True(t, b.IsLabelType(label.BSD))
	assert.Equal(t, uint64(10240), b.FirstLBA())
	assert.Equal(t, uint64(18431), b.LastLBA())
	_, err = b.AddPartition(nil)
	require.NoError(t, err)
	require.NoError(t, b.WriteDisklabel())
	assert.Equal(t, []byte{0x57, 0x45, 0x56, 0x82}, buf[10241*512:10241*512+4])
	assert.Equal(t, 2, dev.Synced)
	require.NoError(t, b.Close())

	again, err := c.NewNested("bsd")
	require.NoError(t, err)
	require.True(t, again.IsLabelType(label.BSD))
	assert.Equal(t, 2, again.NPartitions())
}

func TestNestedAfterParentReassign(t *testing.T) {
	c, _, _ := memoryContext(t, diskSize)
	child, err := c.NewNested("dos")
	require.NoError(t, err)
	sectors := child.LogicalSectors()
	require.Equal(t, uint64(diskSize/512), sectors)

	other, _ := testhelper.Memory(2 * diskSize)
	require.NoError(t, c.AssignStorage(other, "other", false))
	assert.Equal(t, uint64(2*diskSize/512), c.LogicalSectors())
	assert.Equal(t, sectors, child.LogicalSectors(), "cached geometry is kept")

	// the copied handle belongs to the released device
	_, err = child.Name()
	assert.ErrorIs(t, err, fdisk.ErrDevice)
	assert.ErrorIs(t, child.CreateDisklabel("dos"), fdisk.ErrDevice)
	assert.Equal(t, -1, child.Fd())

	// releasing the child leaves the parent's new device alone
	require.NoError(t, child.DeassignDevice(false))
	name, err := c.Name()
	require.NoError(t, err)
	assert.Equal(t, "other", name)

	// assigning through the child picks up the current device again
	third, _ := testhelper.Memory(diskSize)
	require.NoError(t, child.AssignStorage(third, "third", false))
	name, err = child.Name()
	require.NoError(t, err)
	assert.Equal(t, "third", name)
	require.NoError(t, child.CreateDisklabel("dos"))
}
