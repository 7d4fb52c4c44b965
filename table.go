package fdisk

import (
	"fmt"
	"sort"

	"github.com/diskfs/go-fdisk/label"
)

// Table is an ordered collection of partitions, either read from a label or
// assembled by the caller to be applied. Entries are shared: the same
// Partition may be held by several tables.
type Table struct {
	entries []*Partition
	// max entries, 0 for no limit
	max  int
	iter *Iter
}

// NewTable returns an empty table without an entry limit.
func NewTable() *Table {
	return &Table{}
}

func (t *Table) busy() error {
	if t.iter != nil {
		return fmt.Errorf("%w: release the iterator first", ErrTableBusy)
	}
	return nil
}

// AddPartition appends p without reordering.
func (t *Table) AddPartition(p *Partition) error {
	if err := t.busy(); err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: nil partition", ErrInvalidArgument)
	}
	if t.max > 0 && len(t.entries) >= t.max {
		return label.NewMaxPartitionsExceededError(len(t.entries)+1, t.max)
	}
	t.entries = append(t.entries, p)
	return nil
}

// RemovePartition removes p, matched by identity.
func (t *Table) RemovePartition(p *Partition) error {
	if err := t.busy(); err != nil {
		return err
	}
	for i, e := range t.entries {
		if e == p {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: partition is not in the table", ErrNotFound)
}

// Reset removes all entries.
func (t *Table) Reset() error {
	if err := t.busy(); err != nil {
		return err
	}
	t.entries = nil
	return nil
}

func (t *Table) NEnts() int {
	return len(t.entries)
}

func (t *Table) IsEmpty() bool {
	return len(t.entries) == 0
}

// Partition returns the n-th entry, nil when out of range.
func (t *Table) Partition(n int) *Partition {
	if n < 0 || n >= len(t.entries) {
		return nil
	}
	return t.entries[n]
}

// PartitionByPartno returns the first entry numbered partno, nil if none.
func (t *Table) PartitionByPartno(partno int) *Partition {
	for _, e := range t.entries {
		if n, ok := e.Partno(); ok && n == partno {
			return e
		}
	}
	return nil
}

// IsWrongOrder reports whether the entries with a start are not in
// ascending disk order.
func (t *Table) IsWrongOrder() bool {
	var (
		last uint64
		seen bool
	)
	for _, e := range t.entries {
		start, ok := e.Start()
		if !ok {
			continue
		}
		if seen && start < last {
			return true
		}
		last, seen = start, true
	}
	return false
}

// SortByStart orders the entries by start sector; entries without a start
// go last.
func (t *Table) SortByStart() error {
	if err := t.busy(); err != nil {
		return err
	}
	sort.SliceStable(t.entries, func(i, j int) bool {
		a, aok := t.entries[i].Start()
		b, bok := t.entries[j].Start()
		if aok != bok {
			return aok
		}
		return a < b
	})
	return nil
}

// Iter returns a forward iterator. The table cannot be modified until the
// iterator is exhausted or closed.
func (t *Table) Iter() (*Iter, error) {
	if err := t.busy(); err != nil {
		return nil, err
	}
	t.iter = &Iter{table: t}
	return t.iter, nil
}

// Iter walks a Table once, front to back.
type Iter struct {
	table *Table
	pos   int
}

// Next returns the next entry, or false once the table is exhausted, which
// also releases the table.
func (it *Iter) Next() (*Partition, bool) {
	if it.table == nil {
		return nil, false
	}
	if it.pos >= len(it.table.entries) {
		it.Close()
		return nil, false
	}
	p := it.table.entries[it.pos]
	it.pos++
	return p, true
}

// Close releases the table early. It is safe to call more than once.
func (it *Iter) Close() {
	if it.table != nil && it.table.iter == it {
		it.table.iter = nil
	}
	it.table = nil
}
