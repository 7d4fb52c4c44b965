package layout_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fdisk "github.com/diskfs/go-fdisk"
	"github.com/diskfs/go-fdisk/label"
	"github.com/diskfs/go-fdisk/layout"
	"github.com/diskfs/go-fdisk/testhelper"
)

const diskSize = 10 * 1024 * 1024

func TestParseSectors(t *testing.T) {
	tests := []struct {
		in       string
		ss       uint64
		expected uint64
		err      error
	}{
		{"2048s", 512, 2048, nil},
		{"1MiB", 512, 2048, nil},
		{"1 MiB", 4096, 256, nil},
		{"1GB", 512, 1953125, nil},
		{"512", 512, 1, nil},
		{"1000", 512, 0, label.ErrInvalidArgument},
		{"lots", 512, 0, label.ErrInvalidArgument},
		{"1MiB", 0, 0, label.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, err := layout.ParseSectors(tt.in, tt.ss)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, n)
		})
	}
}

const gptLayout = `label: gpt
partitions:
  - size: 1MiB
    type: uefi
    name: EFI
    bootable: true
  - partno: 4
    start: 8192s
    name: root
`

func TestParse(t *testing.T) {
	typ, tb, err := layout.Parse(strings.NewReader(gptLayout), 512)
	require.NoError(t, err)
	assert.Equal(t, label.GPT, typ)
	require.Equal(t, 2, tb.NEnts())

	esp := tb.Partition(0)
	size, ok := esp.Size()
	assert.True(t, ok)
	assert.Equal(t, uint64(2048), size)
	assert.True(t, esp.StartIsDefault())
	assert.True(t, esp.IsBootable())
	_, ok = esp.Partno()
	assert.False(t, ok)

	root := tb.PartitionByPartno(4)
	require.NotNil(t, root)
	start, _ := root.Start()
	assert.Equal(t, uint64(8192), start)
	assert.False(t, root.StartIsDefault())
	_, ok = root.Size()
	assert.False(t, ok)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		err  error
	}{
		{"unknown field", "label: gpt\nflavour: vanilla\n", label.ErrInvalidArgument},
		{"unknown label", "label: aix\n", label.ErrUnsupportedLabel},
		{"bad size", "label: dos\npartitions:\n  - size: huge\n", label.ErrInvalidArgument},
		{"negative partno", "label: dos\npartitions:\n  - partno: -1\n", label.ErrInvalidArgument},
		{"not yaml", "label: [", label.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := layout.Parse(strings.NewReader(tt.doc), 512)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func apply(t *testing.T, typ label.Type, tb *fdisk.Table) *fdisk.Context {
	t.Helper()
	c := fdisk.New()
	dev, _ := testhelper.Memory(diskSize)
	require.NoError(t, c.AssignStorage(dev, "memory", false))
	require.NoError(t, c.CreateDisklabel(typ.String()))
	require.NoError(t, c.ApplyTable(tb))
	require.NoError(t, c.VerifyDisklabel())
	return c
}

func TestMarshalRoundTrip(t *testing.T) {
	doc := `label: dos
partitions:
  - size: 2MiB
    bootable: true
  - start: 8192s
    size: 1MiB
    type: "82"
  - {}
`
	typ, tb, err := layout.Parse(strings.NewReader(doc), 512)
	require.NoError(t, err)
	c := apply(t, typ, tb)
	parts, err := c.GetPartitions()
	require.NoError(t, err)
	require.Equal(t, 3, parts.NEnts())

	// free space is not written
	free, err := c.GetFreespaces()
	require.NoError(t, err)
	require.Equal(t, 1, free.NEnts())
	for i := 0; i < free.NEnts(); i++ {
		require.NoError(t, parts.AddPartition(free.Partition(i)))
	}

	var buf bytes.Buffer
	require.NoError(t, layout.Marshal(&buf, typ, parts))
	out := buf.String()
	assert.Contains(t, out, "label: dos\n")
	assert.Contains(t, out, "start: 2048s")
	assert.Contains(t, out, "size: 4096s")
	assert.NotContains(t, out, "uuid")

	typ2, tb2, err := layout.Parse(&buf, 512)
	require.NoError(t, err)
	assert.Equal(t, typ, typ2)
	c2 := apply(t, typ2, tb2)
	again, err := c2.GetPartitions()
	require.NoError(t, err)
	require.Equal(t, parts.NEnts()-free.NEnts(), again.NEnts())
	for i := 0; i < again.NEnts(); i++ {
		a, b := parts.Partition(i), again.Partition(i)
		as, _ := a.Start()
		bs, _ := b.Start()
		az, _ := a.Size()
		bz, _ := b.Size()
		at, _ := a.Type()
		bt, _ := b.Type()
		assert.Equal(t, as, bs, "partition %d start", i)
		assert.Equal(t, az, bz, "partition %d size", i)
		assert.Equal(t, at, bt, "partition %d type", i)
		assert.Equal(t, a.IsBootable(), b.IsBootable(), "partition %d bootable", i)
	}
}
