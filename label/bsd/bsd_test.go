package bsd_test

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/siderolabs/go-pointer"

	"github.com/diskfs/go-fdisk/disk"
	"github.com/diskfs/go-fdisk/label"
	"github.com/diskfs/go-fdisk/label/bsd"
	"github.com/diskfs/go-fdisk/testhelper"
)

const (
	diskSize = 10 * 1024 * 1024
	magic    = 0x82564557
)

func geometry() disk.Geometry {
	return disk.New(&disk.Topology{
		Type:               disk.DeviceTypeFile,
		Size:               diskSize,
		LogicalSectorSize:  512,
		PhysicalSectorSize: 512,
	}, disk.Overrides{})
}

func dosHost(typ string) *label.Host {
	return &label.Host{Type: label.DOS, Entries: []label.Entry{
		{Partno: 0, Start: 2048, Size: 8192, Type: "83", Used: true, Parent: -1},
		{Partno: 1, Start: 10240, Size: 8192, Type: typ, Used: true, Parent: -1},
	}}
}

func TestWholeDisk(t *testing.T) {
	g := geometry()
	tb := bsd.New()
	if err := tb.Create(nil, &g); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := tb.AddPartition(&label.Template{Size: pointer.To[uint64](4096)}, &g); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := tb.AddPartition(&label.Template{Type: pointer.To("1")}, &g); err != nil {
		t.Fatalf("add swap: %v", err)
	}

	expected := []struct {
		partno      int
		start, size uint64
		typ         string
		wholedisk   bool
	}{
		{0, 2048, 4096, "7", false},
		{1, 6144, 14336, "1", false},
		{bsd.Raw, 0, 20480, "0", true},
	}
	parts := tb.Partitions()
	if len(parts) != len(expected) {
		t.Fatalf("expected %d partitions, got %d", len(expected), len(parts))
	}
	for i, e := range expected {
		p := parts[i]
		if p.Partno != e.partno || p.Start != e.start || p.Size != e.size || p.Type != e.typ || p.Wholedisk != e.wholedisk {
			t.Errorf("partition %d: unexpected entry %+v", e.partno, p)
		}
	}
	if v := tb.Verify(&g); len(v) != 0 {
		t.Errorf("unexpected violations %v", v)
	}

	dev, buf := testhelper.Memory(diskSize)
	if err := tb.Write(dev, &g); err != nil {
		t.Fatalf("write: %v", err)
	}
	if binary.LittleEndian.Uint32(buf[512:516]) != magic {
		t.Fatalf("no disklabel in the second sector")
	}
	read := bsd.New()
	pg := geometry()
	found, err := read.Probe(dev, &pg)
	if err != nil || !found {
		t.Fatalf("probe: found %v, err %v", found, err)
	}
	if !reflect.DeepEqual(read.Partitions(), tb.Partitions()) {
		t.Errorf("mismatched partitions\nactual   %+v\nexpected %+v", read.Partitions(), tb.Partitions())
	}
}

func TestNestedInDOS(t *testing.T) {
	g := geometry()
	tb := bsd.New()
	tb.SetHost(dosHost("a5"))
	if err := tb.Create(nil, &g); err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.FirstLBA != 10240 || g.LastLBA != 18431 {
		t.Errorf("usable range not narrowed to the slice: %d-%d", g.FirstLBA, g.LastLBA)
	}
	if _, err := tb.AddPartition(&label.Template{}, &g); err != nil {
		t.Fatalf("add: %v", err)
	}
	p, _ := tb.Partition(0)
	if p.Start != 10240 || p.End() != 18431 {
		t.Errorf("unexpected partition %+v", p)
	}

	dev, buf := testhelper.Memory(diskSize)
	if err := tb.Write(dev, &g); err != nil {
		t.Fatalf("write: %v", err)
	}
	if binary.LittleEndian.Uint32(buf[10241*512:]) != magic {
		t.Fatalf("no disklabel in the second sector of the slice")
	}

	read := bsd.New()
	read.SetHost(dosHost("a5"))
	pg := geometry()
	if found, err := read.Probe(dev, &pg); err != nil || !found {
		t.Fatalf("probe: found %v, err %v", found, err)
	}
	if !reflect.DeepEqual(read.Partitions(), tb.Partitions()) {
		t.Errorf("mismatched partitions\nactual   %+v\nexpected %+v", read.Partitions(), tb.Partitions())
	}

	// without a BSD slice there is nothing to probe or create
	none := bsd.New()
	none.SetHost(dosHost("83"))
	if found, err := none.Probe(dev, &pg); found || err != nil {
		t.Errorf("probe without slice: found %v, err %v", found, err)
	}
	if err := none.Create(nil, &pg); !errors.Is(err, label.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestErrors(t *testing.T) {
	g := geometry()
	tb := bsd.New()
	if err := tb.Create(nil, &g); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		tmpl label.Template
		err  error
	}{
		{"name", label.Template{Name: pointer.To("root")}, label.ErrEncoding},
		{"attrs", label.Template{Attrs: pointer.To("boot")}, label.ErrEncoding},
		{"bootable", label.Template{Bootable: pointer.To(true)}, label.ErrEncoding},
		{"type too wide", label.Template{Type: pointer.To("100")}, label.ErrEncoding},
		{"raw slot used", label.Template{Partno: pointer.To(bsd.Raw)}, label.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tb.AddPartition(&tt.tmpl, &g); !errors.Is(err, tt.err) {
				t.Errorf("mismatched error, actual %v expected %v", err, tt.err)
			}
		})
	}
}
