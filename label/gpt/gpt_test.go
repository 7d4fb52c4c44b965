package gpt_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/siderolabs/go-pointer"

	"github.com/diskfs/go-fdisk/disk"
	"github.com/diskfs/go-fdisk/label"
	"github.com/diskfs/go-fdisk/label/gpt"
	"github.com/diskfs/go-fdisk/testhelper"
)

const (
	diskSize = 10 * 1024 * 1024
	sectors  = diskSize / 512
)

func geometry() disk.Geometry {
	return disk.New(&disk.Topology{
		Type:               disk.DeviceTypeFile,
		Size:               diskSize,
		LogicalSectorSize:  512,
		PhysicalSectorSize: 512,
	}, disk.Overrides{})
}

func populated(t *testing.T, g *disk.Geometry) *gpt.Table {
	t.Helper()
	tb := gpt.New()
	if err := tb.Create(nil, g); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := tb.AddPartition(&label.Template{
		Size:     pointer.To[uint64](2048),
		Type:     pointer.To("uefi"),
		Name:     pointer.To("EFI"),
		Bootable: pointer.To(true),
	}, g); err != nil {
		t.Fatalf("add efi: %v", err)
	}
	if _, err := tb.AddPartition(&label.Template{Name: pointer.To("root")}, g); err != nil {
		t.Fatalf("add root: %v", err)
	}
	return tb
}

func TestCreate(t *testing.T) {
	g := geometry()
	tb := populated(t, &g)

	if g.FirstLBA != 2048 || g.LastLBA != sectors-34 {
		t.Errorf("unexpected usable range %d-%d", g.FirstLBA, g.LastLBA)
	}
	parts := tb.Partitions()
	if len(parts) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(parts))
	}
	efi, root := parts[0], parts[1]
	if efi.Start != 2048 || efi.Size != 2048 || efi.Type != gpt.EFISystemPartition || efi.Name != "EFI" {
		t.Errorf("unexpected efi partition %+v", efi)
	}
	if !efi.Bootable || efi.Attrs != "LegacyBIOSBootable" {
		t.Errorf("efi partition not bootable: %+v", efi)
	}
	if root.Start != 4096 || root.End() != g.LastLBA || root.Type != gpt.LinuxFilesystem {
		t.Errorf("unexpected root partition %+v", root)
	}
	if efi.UUID == "" || efi.UUID == root.UUID || strings.ToUpper(efi.UUID) != efi.UUID {
		t.Errorf("partition GUIDs must be unique upper case GUIDs: %s %s", efi.UUID, root.UUID)
	}
	if v := tb.Verify(&g); len(v) != 0 {
		t.Errorf("unexpected violations %v", v)
	}
}

func TestCreateTooSmall(t *testing.T) {
	g := disk.New(&disk.Topology{Type: disk.DeviceTypeFile, Size: 40 * 512, LogicalSectorSize: 512, PhysicalSectorSize: 512}, disk.Overrides{})
	if err := gpt.New().Create(nil, &g); !errors.Is(err, label.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}

func TestWriteProbe(t *testing.T) {
	g := geometry()
	tb := populated(t, &g)
	dev, buf := testhelper.Memory(diskSize)
	if err := tb.Write(dev, &g); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf[446+4] != 0xee || buf[510] != 0x55 || buf[511] != 0xaa {
		t.Errorf("missing protective MBR")
	}
	if string(buf[512:520]) != "EFI PART" || string(buf[diskSize-512:diskSize-504]) != "EFI PART" {
		t.Errorf("missing primary or backup header")
	}

	probe := func(name string) {
		read := gpt.New()
		pg := geometry()
		found, err := read.Probe(dev, &pg)
		if err != nil || !found {
			t.Fatalf("%s: probe found %v, err %v", name, found, err)
		}
		if read.ID() != tb.ID() {
			t.Errorf("%s: mismatched disk GUID, actual %s expected %s", name, read.ID(), tb.ID())
		}
		if !reflect.DeepEqual(read.Partitions(), tb.Partitions()) {
			t.Errorf("%s: mismatched partitions\nactual   %+v\nexpected %+v", name, read.Partitions(), tb.Partitions())
		}
		if pg.FirstLBA != 2048 || pg.LastLBA != sectors-34 {
			t.Errorf("%s: unexpected usable range %d-%d", name, pg.FirstLBA, pg.LastLBA)
		}
	}
	probe("primary")

	// destroy the primary header, the backup takes over
	for i := 512; i < 1024; i++ {
		buf[i] = 0
	}
	probe("backup")

	// neither header left
	for i := diskSize - 512; i < diskSize; i++ {
		buf[i] = 0
	}
	pg := geometry()
	if found, err := gpt.New().Probe(dev, &pg); found || err != nil {
		t.Errorf("probe without headers: found %v, err %v", found, err)
	}
}

func TestHybridMBRKept(t *testing.T) {
	g := geometry()
	tb := populated(t, &g)
	dev, buf := testhelper.Memory(diskSize)
	if err := tb.Write(dev, &g); err != nil {
		t.Fatal(err)
	}
	// a second MBR record pointing at the efi partition makes it hybrid
	rec := []byte{0x80, 0, 0, 0, 0xef, 0, 0, 0, 0x00, 0x08, 0, 0, 0x00, 0x08, 0, 0}
	copy(buf[446+16:], rec)

	read := gpt.New()
	pg := geometry()
	if found, err := read.Probe(dev, &pg); !found || err != nil {
		t.Fatalf("probe: found %v, err %v", found, err)
	}
	if err := read.Write(dev, &pg); err != nil {
		t.Fatal(err)
	}
	if got := buf[446+16 : 446+32]; !reflect.DeepEqual(got, rec) {
		t.Errorf("hybrid record lost: %x", got)
	}
}

func TestFieldValidation(t *testing.T) {
	g := geometry()
	tb := populated(t, &g)
	tests := []struct {
		name string
		tmpl label.Template
		err  error
	}{
		{"name too long", label.Template{Name: pointer.To(strings.Repeat("x", 37))}, label.ErrEncoding},
		{"bad uuid", label.Template{UUID: pointer.To("not-a-guid")}, label.ErrEncoding},
		{"zero type", label.Template{Type: pointer.To(gpt.Unused)}, label.ErrEncoding},
		{"unknown type alias", label.Template{Type: pointer.To("penguin")}, label.ErrEncoding},
		{"unknown attribute", label.Template{Attrs: pointer.To("Bogus")}, label.ErrEncoding},
		{"attribute bit out of range", label.Template{Attrs: pointer.To("GUID:64")}, label.ErrEncoding},
		{"overlap", label.Template{Size: pointer.To[uint64](4096)}, label.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tb.SetPartition(0, &tt.tmpl, &g); !errors.Is(err, tt.err) {
				t.Errorf("mismatched error, actual %v expected %v", err, tt.err)
			}
		})
	}

	// 36 UTF-16 units fit
	if err := tb.SetPartition(0, &label.Template{Name: pointer.To(strings.Repeat("é", 36))}, &g); err != nil {
		t.Errorf("36 character name rejected: %v", err)
	}
	if err := tb.SetPartition(0, &label.Template{Attrs: pointer.To("RequiredPartition GUID:60,48")}, &g); err != nil {
		t.Fatalf("set attrs: %v", err)
	}
	e, _ := tb.Partition(0)
	if e.Attrs != "RequiredPartition GUID:48,60" || e.Bootable {
		t.Errorf("unexpected attributes %q bootable %v", e.Attrs, e.Bootable)
	}
}

func TestDuplicateGUID(t *testing.T) {
	g := geometry()
	tb := populated(t, &g)
	e, _ := tb.Partition(0)
	if err := tb.SetPartition(1, &label.Template{UUID: pointer.To(strings.ToLower(e.UUID))}, &g); err != nil {
		t.Fatal(err)
	}
	v := tb.Verify(&g)
	if len(v) != 1 || v[0].Partno != 1 || !errors.Is(v[0], label.ErrConflict) {
		t.Errorf("expected a duplicate GUID violation, got %v", v)
	}
}

func TestIdentifier(t *testing.T) {
	tb := gpt.New()
	if err := tb.SetID("01234567-89ab-cdef-0123-456789abcdef"); err != nil {
		t.Fatal(err)
	}
	if id := tb.ID(); id != "01234567-89AB-CDEF-0123-456789ABCDEF" {
		t.Errorf("unexpected identifier %s", id)
	}
	if err := tb.SetID("nope"); !errors.Is(err, label.ErrEncoding) {
		t.Errorf("expected encoding error, got %v", err)
	}
}
