package label

import (
	"fmt"
	"sort"

	"github.com/diskfs/go-fdisk/disk"
)

// Region is an inclusive range of sectors.
type Region struct {
	Start uint64
	End   uint64
}

func (r Region) Size() uint64 {
	return r.End - r.Start + 1
}

func (r Region) Overlaps(o Region) bool {
	return r.Start <= o.End && o.Start <= r.End
}

func (r Region) Contains(o Region) bool {
	return r.Start <= o.Start && o.End <= r.End
}

// RegionOf returns the sectors covered by e.
func RegionOf(e Entry) Region {
	return Region{Start: e.Start, End: e.End()}
}

// FreeRegions returns the gaps inside [first, last] not covered by used, in
// ascending order.
func FreeRegions(used []Region, first, last uint64) []Region {
	if first > last {
		return nil
	}
	sorted := make([]Region, len(used))
	copy(sorted, used)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var free []Region
	cur := first
	for _, u := range sorted {
		if u.End < cur {
			continue
		}
		if u.Start > last {
			break
		}
		if u.Start > cur {
			free = append(free, Region{Start: cur, End: u.Start - 1})
		}
		if u.End >= last {
			return free
		}
		cur = u.End + 1
	}
	return append(free, Region{Start: cur, End: last})
}

// Place picks the extent of a new partition described by t inside
// [first, last], avoiding used.
func Place(t *Template, g *disk.Geometry, used []Region, first, last uint64) (Region, error) {
	if t.Start != nil && !t.StartDefault && (*t.Start < first || *t.Start > last) {
		return Region{}, fmt.Errorf("%w: start sector %d outside of usable range %d-%d", ErrInvalidArgument, *t.Start, first, last)
	}
	return PlaceIn(t, g, FreeRegions(used, first, last))
}

// PlaceIn picks the extent of a new partition described by t inside one of
// the free regions.
func PlaceIn(t *Template, g *disk.Geometry, free []Region) (Region, error) {
	var (
		gap   Region
		start uint64
		found bool
	)
	if t.Start != nil && !t.StartDefault {
		start = *t.Start
		for _, f := range free {
			if f.Start <= start && start <= f.End {
				gap, found = f, true
				break
			}
		}
		if !found {
			return Region{}, fmt.Errorf("%w: start sector %d is already allocated", ErrConflict, start)
		}
	} else {
		for _, f := range free {
			s := alignStart(g, f)
			if s <= f.End {
				gap, start, found = f, s, true
				break
			}
		}
		if !found {
			return Region{}, fmt.Errorf("%w: no free sectors available", ErrCapacity)
		}
	}

	end := gap.End
	if t.Size != nil {
		if *t.Size == 0 {
			return Region{}, fmt.Errorf("%w: partition size must be greater than zero", ErrInvalidArgument)
		}
		end = start + *t.Size - 1
		if !t.SizeExplicit {
			end = alignEnd(g, start, end, gap.End)
		}
		if end > gap.End || end < start {
			return Region{}, fmt.Errorf("%w: %d sectors at %d do not fit the free area ending at %d", ErrConflict, *t.Size, start, gap.End)
		}
	}
	return Region{Start: start, End: end}, nil
}

func alignStart(g *disk.Geometry, gap Region) uint64 {
	s := g.AlignLBAInRange(gap.Start, gap.Start, gap.End)
	if s < gap.Start || s > gap.End {
		s = gap.Start
	}
	return s
}

// alignEnd moves end so that the next sector is on the grain, when that does
// not push it out of [start, limit].
func alignEnd(g *disk.Geometry, start, end, limit uint64) uint64 {
	a := g.AlignLBA(end+1, disk.AlignNearest)
	if a == 0 || a-1 < start || a-1 > limit {
		a = g.AlignLBA(end+1, disk.AlignDown)
	}
	if a == 0 || a-1 < start || a-1 > limit {
		return end
	}
	return a - 1
}

// Resolve computes the extent of an existing entry cur after applying t.
// Unset fields keep their current values.
func Resolve(t *Template, cur Region) (Region, error) {
	start, size := cur.Start, cur.Size()
	if t.Start != nil {
		start = *t.Start
	}
	if t.Size != nil {
		if *t.Size == 0 {
			return Region{}, fmt.Errorf("%w: partition size must be greater than zero", ErrInvalidArgument)
		}
		size = *t.Size
	}
	if start+size-1 < start {
		return Region{}, fmt.Errorf("%w: partition end overflows", ErrInvalidArgument)
	}
	return Region{Start: start, End: start + size - 1}, nil
}

// CheckOverlaps reports every pair of entries that share sectors, skipping
// entries for which ignore returns true.
func CheckOverlaps(entries []Entry, ignore func(Entry) bool) []Violation {
	var out []Violation
	for i := range entries {
		if !entries[i].Used || (ignore != nil && ignore(entries[i])) {
			continue
		}
		for j := i + 1; j < len(entries); j++ {
			if !entries[j].Used || (ignore != nil && ignore(entries[j])) {
				continue
			}
			if RegionOf(entries[i]).Overlaps(RegionOf(entries[j])) {
				out = append(out, Violation{
					Partno: entries[i].Partno,
					Kind:   ErrConflict,
					Msg:    fmt.Sprintf("overlaps partition %d", entries[j].Partno),
				})
			}
		}
	}
	return out
}

// CheckBounds reports entries that leave [first, last].
func CheckBounds(entries []Entry, first, last uint64, ignore func(Entry) bool) []Violation {
	var out []Violation
	for _, e := range entries {
		if !e.Used || (ignore != nil && ignore(e)) {
			continue
		}
		if e.Start < first {
			out = append(out, Violation{Partno: e.Partno, Kind: ErrInvalidArgument,
				Msg: fmt.Sprintf("starts at %d before first usable sector %d", e.Start, first)})
		}
		if e.End() > last {
			out = append(out, Violation{Partno: e.Partno, Kind: ErrInvalidArgument,
				Msg: fmt.Sprintf("ends at %d after last usable sector %d", e.End(), last)})
		}
	}
	return out
}
