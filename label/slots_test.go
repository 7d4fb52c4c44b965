package label_test

import (
	"errors"
	"testing"

	"github.com/siderolabs/go-pointer"

	"github.com/diskfs/go-fdisk/label"
)

func fillLinux(e *label.Entry, t *label.Template, isNew bool) error {
	if err := label.RejectText("name", t.Name); err != nil {
		return err
	}
	if isNew {
		e.Type = "83"
	}
	if t.Type != nil {
		v, err := label.ParseHexType(*t.Type, 8)
		if err != nil {
			return err
		}
		e.Type = label.FormatHexType(v)
	}
	return nil
}

func TestSlotsAdd(t *testing.T) {
	g := testGeometry(10 * 1024 * 1024)
	s := label.NewSlots(4)

	n, err := s.Add(&label.Template{Size: pointer.To[uint64](2048)}, &g, fillLinux)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected first free slot 0, got %d", n)
	}
	e, _ := s.Get(0)
	if !e.Used || e.Start != 2048 || e.Size != 2048 || e.Type != "83" {
		t.Errorf("unexpected entry %+v", e)
	}

	n, err = s.Add(&label.Template{Partno: pointer.To(2), Type: pointer.To("0x8E")}, &g, fillLinux)
	if err != nil || n != 2 {
		t.Fatalf("add at slot 2: %d, %v", n, err)
	}
	e, _ = s.Get(2)
	if e.Start != 4096 || e.End() != g.LastLBA || e.Type != "8e" {
		t.Errorf("unexpected entry %+v", e)
	}

	tests := []struct {
		name string
		tmpl label.Template
		err  error
	}{
		{"slot in use", label.Template{Partno: pointer.To(0)}, label.ErrConflict},
		{"slot out of range", label.Template{Partno: pointer.To(4)}, label.ErrNoSuchPartition},
		{"no space left", label.Template{}, label.ErrCapacity},
		{"name not supported", label.Template{Name: pointer.To("boot")}, label.ErrEncoding},
		{"bad type", label.Template{Type: pointer.To("zz")}, label.ErrEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Add(&tt.tmpl, &g, fillLinux); !errors.Is(err, tt.err) {
				t.Errorf("mismatched error, actual %v expected %v", err, tt.err)
			}
		})
	}
}

func TestSlotsSet(t *testing.T) {
	g := testGeometry(10 * 1024 * 1024)
	s := label.NewSlots(4)
	if _, err := s.Add(&label.Template{Size: pointer.To[uint64](2048)}, &g, fillLinux); err != nil {
		t.Fatal(err)
	}

	// an unused slot is created
	if err := s.Set(1, &label.Template{Start: pointer.To[uint64](8192), Size: pointer.To[uint64](2048)}, &g, fillLinux); err != nil {
		t.Fatalf("set unused slot: %v", err)
	}
	e, _ := s.Get(1)
	if !e.Used || e.Start != 8192 || e.Size != 2048 {
		t.Errorf("unexpected entry %+v", e)
	}

	// only the size changes
	if err := s.Set(0, &label.Template{Size: pointer.To[uint64](4096)}, &g, fillLinux); err != nil {
		t.Fatalf("resize: %v", err)
	}
	e, _ = s.Get(0)
	if e.Start != 2048 || e.Size != 4096 || e.Type != "83" {
		t.Errorf("unexpected entry %+v", e)
	}

	var overlap *label.OverlapError
	err := s.Set(0, &label.Template{Size: pointer.To[uint64](8192)}, &g, fillLinux)
	if !errors.Is(err, label.ErrConflict) || !errors.As(err, &overlap) {
		t.Errorf("expected an overlap error, got %v", err)
	}
	e, _ = s.Get(0)
	if e.Size != 4096 {
		t.Errorf("failed set modified the entry: %+v", e)
	}

	if err := s.Set(0, &label.Template{Start: pointer.To[uint64](1)}, &g, fillLinux); !errors.Is(err, label.ErrInvalidArgument) {
		t.Errorf("expected invalid argument for a start before the first usable sector, got %v", err)
	}
	if err := s.Set(7, &label.Template{}, &g, fillLinux); !errors.Is(err, label.ErrNoSuchPartition) {
		t.Errorf("expected no such partition, got %v", err)
	}
	if v := s.Verify(&g); len(v) != 0 {
		t.Errorf("unexpected violations %v", v)
	}
}

func TestSlotsDelete(t *testing.T) {
	g := testGeometry(10 * 1024 * 1024)
	s := label.NewSlots(4)
	if _, err := s.Add(&label.Template{}, &g, fillLinux); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(0); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(s.Used()) != 0 {
		t.Errorf("slot still used after delete")
	}
	for _, n := range []int{0, -1, 4} {
		if err := s.Delete(n); !errors.Is(err, label.ErrNoSuchPartition) {
			t.Errorf("delete %d: expected no such partition, got %v", n, err)
		}
	}
}

func TestSlotsUnbounded(t *testing.T) {
	g := testGeometry(10 * 1024 * 1024)
	s := label.NewSlots(4)
	s.Unbounded = func(e label.Entry) bool { return e.Partno == 3 }
	s.Entries[3] = label.Entry{Partno: 3, Parent: -1, Start: 0, Size: 1024, Type: "0", Used: true}

	if err := s.Set(3, &label.Template{Type: pointer.To("83")}, &g, fillLinux); err != nil {
		t.Fatalf("set on a slot before the usable range: %v", err)
	}
	e, _ := s.Get(3)
	if e.Start != 0 || e.Size != 1024 || e.Type != "83" {
		t.Errorf("unexpected entry %+v", e)
	}

	// other slots stay inside the usable range and clear of slot 3
	if _, err := s.Add(&label.Template{Partno: pointer.To(0), Start: pointer.To[uint64](0)}, &g, fillLinux); !errors.Is(err, label.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
	n, err := s.Add(&label.Template{}, &g, fillLinux)
	if err != nil {
		t.Fatal(err)
	}
	e, _ = s.Get(n)
	if e.Start != 2048 {
		t.Errorf("expected start 2048, got %+v", e)
	}
	if err := s.Set(3, &label.Template{Size: pointer.To[uint64](4096)}, &g, fillLinux); !errors.Is(err, label.ErrConflict) {
		t.Errorf("expected an overlap, got %v", err)
	}
	if v := s.Verify(&g); len(v) != 0 {
		t.Errorf("unexpected violations %v", v)
	}

	if err := s.Delete(3); err != nil {
		t.Fatal(err)
	}
	n, err = s.Add(&label.Template{Partno: pointer.To(3), Start: pointer.To[uint64](0), Size: pointer.To[uint64](1024)}, &g, fillLinux)
	if err != nil || n != 3 {
		t.Fatalf("re-adding slot 3 at sector 0: %d, %v", n, err)
	}
}
