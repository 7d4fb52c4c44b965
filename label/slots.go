package label

import (
	"fmt"

	"github.com/diskfs/go-fdisk/disk"
)

// FillFunc applies the non-geometric fields of t to e and validates them
// against the format's encoding rules. isNew is set when e is being created,
// so defaults can be filled in.
type FillFunc func(e *Entry, t *Template, isNew bool) error

// Slots is a fixed array of independent partition slots, the model shared by
// GPT, Sun, SGI and BSD.
type Slots struct {
	Entries []Entry
	// Ignore marks entries that may overlap others, e.g. whole-disk slots.
	Ignore func(Entry) bool
	// Unbounded marks entries allowed outside the usable range that still
	// may not overlap others, e.g. the SGI volume header.
	Unbounded func(Entry) bool
}

// NewSlots returns n empty slots.
func NewSlots(n int) Slots {
	s := Slots{Entries: make([]Entry, n)}
	for i := range s.Entries {
		s.Entries[i] = Entry{Partno: i, Parent: -1}
	}
	return s
}

func (s *Slots) ignored(e Entry) bool {
	return s.Ignore != nil && s.Ignore(e)
}

// OutOfRange reports whether e is exempt from the usable range check.
func (s *Slots) OutOfRange(e Entry) bool {
	return s.ignored(e) || (s.Unbounded != nil && s.Unbounded(e))
}

// Get returns slot n.
func (s *Slots) Get(n int) (Entry, error) {
	if n < 0 || n >= len(s.Entries) {
		return Entry{}, NewNoSuchPartitionError(n, len(s.Entries))
	}
	return s.Entries[n], nil
}

// Used returns the used slots in partno order.
func (s *Slots) Used() []Entry {
	var out []Entry
	for _, e := range s.Entries {
		if e.Used {
			out = append(out, e)
		}
	}
	return out
}

// Regions returns the extents of used slots other than skip that may not be
// overlapped.
func (s *Slots) Regions(skip int) []Region {
	var out []Region
	for _, e := range s.Entries {
		if !e.Used || e.Partno == skip || s.ignored(e) {
			continue
		}
		out = append(out, RegionOf(e))
	}
	return out
}

// FirstFree returns the lowest unused slot.
func (s *Slots) FirstFree() (int, error) {
	for i, e := range s.Entries {
		if !e.Used {
			return i, nil
		}
	}
	return -1, NewMaxPartitionsExceededError(len(s.Entries)+1, len(s.Entries))
}

// Delete clears slot n.
func (s *Slots) Delete(n int) error {
	e, err := s.Get(n)
	if err != nil {
		return err
	}
	if !e.Used {
		return fmt.Errorf("%w: partition %d is not used", ErrNoSuchPartition, n)
	}
	s.Entries[n] = Entry{Partno: n, Parent: -1}
	return nil
}

// Add creates a partition from t in the requested or first free slot.
func (s *Slots) Add(t *Template, g *disk.Geometry, fill FillFunc) (int, error) {
	var n int
	if t.Partno != nil {
		n = *t.Partno
		e, err := s.Get(n)
		if err != nil {
			return -1, err
		}
		if e.Used {
			return -1, fmt.Errorf("%w: partition %d is already defined", ErrConflict, n)
		}
	} else {
		var err error
		if n, err = s.FirstFree(); err != nil {
			return -1, err
		}
	}

	e := Entry{Partno: n, Parent: -1, Used: true}
	if err := fill(&e, t, true); err != nil {
		return -1, err
	}
	var used []Region
	if !s.ignored(e) {
		used = s.Regions(n)
	}
	first := g.FirstLBA
	if s.OutOfRange(e) {
		first = 0
	}
	r, err := Place(t, g, used, first, g.LastLBA)
	if err != nil {
		return -1, err
	}
	e.Start, e.Size = r.Start, r.Size()
	s.Entries[n] = e
	return n, nil
}

// Set applies t to slot n. An unused slot is created as by Add.
func (s *Slots) Set(n int, t *Template, g *disk.Geometry, fill FillFunc) error {
	cur, err := s.Get(n)
	if err != nil {
		return err
	}
	if !cur.Used {
		tt := *t
		tt.Partno = &n
		_, err := s.Add(&tt, g, fill)
		return err
	}

	e := cur
	if err := fill(&e, t, false); err != nil {
		return err
	}
	r, err := Resolve(t, RegionOf(cur))
	if err != nil {
		return err
	}
	if !s.OutOfRange(e) && (r.Start < g.FirstLBA || r.End > g.LastLBA) {
		return fmt.Errorf("%w: sectors %d-%d outside of usable range %d-%d", ErrInvalidArgument, r.Start, r.End, g.FirstLBA, g.LastLBA)
	}
	if !s.ignored(e) {
		for _, o := range s.Entries {
			if o.Used && o.Partno != n && !s.ignored(o) && RegionOf(o).Overlaps(r) {
				return NewOverlapError(n, o.Partno)
			}
		}
	}
	e.Start, e.Size = r.Start, r.Size()
	s.Entries[n] = e
	return nil
}

// Verify checks bounds and overlaps of all non-ignored slots.
func (s *Slots) Verify(g *disk.Geometry) []Violation {
	out := CheckBounds(s.Entries, g.FirstLBA, g.LastLBA, s.OutOfRange)
	return append(out, CheckOverlaps(s.Entries, s.Ignore)...)
}
