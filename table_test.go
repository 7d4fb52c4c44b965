package fdisk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fdisk "github.com/diskfs/go-fdisk"
)

func partition(t *testing.T, partno int, start uint64) *fdisk.Partition {
	t.Helper()
	p := fdisk.NewPartition()
	require.NoError(t, p.SetPartno(partno))
	p.SetStart(start)
	return p
}

func TestTable(t *testing.T) {
	tb := fdisk.NewTable()
	assert.True(t, tb.IsEmpty())
	assert.Nil(t, tb.Partition(0))

	a, b, c := partition(t, 0, 2048), partition(t, 1, 8192), partition(t, 2, 4096)
	for _, p := range []*fdisk.Partition{a, b, c} {
		require.NoError(t, tb.AddPartition(p))
	}
	assert.Equal(t, 3, tb.NEnts())
	assert.Same(t, b, tb.Partition(1))
	assert.Same(t, c, tb.PartitionByPartno(2))
	assert.Nil(t, tb.PartitionByPartno(7))
	assert.ErrorIs(t, tb.AddPartition(nil), fdisk.ErrInvalidArgument)

	assert.True(t, tb.IsWrongOrder())
	require.NoError(t, tb.SortByStart())
	assert.False(t, tb.IsWrongOrder())
	assert.Same(t, c, tb.Partition(1))

	// entries are shared between tables
	other := fdisk.NewTable()
	require.NoError(t, other.AddPartition(a))
	a.SetSize(100)
	size, ok := other.Partition(0).Size()
	assert.True(t, ok)
	assert.Equal(t, uint64(100), size)

	require.NoError(t, tb.RemovePartition(a))
	assert.Equal(t, 2, tb.NEnts())
	assert.ErrorIs(t, tb.RemovePartition(a), fdisk.ErrNotFound)
	assert.Equal(t, 1, other.NEnts())

	require.NoError(t, tb.Reset())
	assert.True(t, tb.IsEmpty())
	require.NoError(t, tb.Reset())
}

func TestSortWithoutStart(t *testing.T) {
	tb := fdisk.NewTable()
	free := fdisk.NewPartition()
	require.NoError(t, tb.AddPartition(free))
	require.NoError(t, tb.AddPartition(partition(t, 0, 4096)))
	require.NoError(t, tb.AddPartition(partition(t, 1, 2048)))
	require.NoError(t, tb.SortByStart())
	assert.Same(t, free, tb.Partition(2))
	assert.False(t, tb.IsWrongOrder())
}

func TestIter(t *testing.T) {
	tb := fdisk.NewTable()
	for i := 0; i < 3; i++ {
		require.NoError(t, tb.AddPartition(partition(t, i, uint64(2048*(i+1)))))
	}

	it, err := tb.Iter()
	require.NoError(t, err)

	// the table is busy while the iterator is live
	_, err = tb.Iter()
	assert.ErrorIs(t, err, fdisk.ErrTableBusy)
	assert.ErrorIs(t, tb.AddPartition(fdisk.NewPartition()), fdisk.ErrTableBusy)
	assert.ErrorIs(t, tb.RemovePartition(tb.Partition(0)), fdisk.ErrTableBusy)
	assert.ErrorIs(t, tb.Reset(), fdisk.ErrTableBusy)
	assert.ErrorIs(t, tb.SortByStart(), fdisk.ErrTableBusy)
	assert.Equal(t, 3, tb.NEnts(), "reads are allowed")

	var seen []int
	for p, ok := it.Next(); ok; p, ok = it.Next() {
		n, _ := p.Partno()
		seen = append(seen, n)
	}
	assert.Equal(t, []int{0, 1, 2}, seen)
	_, ok := it.Next()
	assert.False(t, ok)

	// exhausting the iterator released the table
	require.NoError(t, tb.AddPartition(fdisk.NewPartition()))

	it, err = tb.Iter()
	require.NoError(t, err)
	_, ok = it.Next()
	require.True(t, ok)
	it.Close()
	it.Close()
	_, ok = it.Next()
	assert.False(t, ok)
	require.NoError(t, tb.Reset())
}

func TestTableCapacity(t *testing.T) {
	c, _, _ := memoryContext(t, diskSize)
	require.NoError(t, c.CreateDisklabel("sun"))
	tb, err := c.GetPartitions()
	require.NoError(t, err)
	require.Equal(t, 1, tb.NEnts())
	for i := 1; i < 8; i++ {
		require.NoError(t, tb.AddPartition(fdisk.NewPartition()))
	}
	assert.ErrorIs(t, tb.AddPartition(fdisk.NewPartition()), fdisk.ErrCapacity)
}
