package label

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this module matches exactly one of
// them with errors.Is.
var (
	ErrDevice           = errors.New("device error")
	ErrReadOnly         = errors.New("device assigned read-only")
	ErrNoLabel          = errors.New("no disklabel")
	ErrUnsupportedLabel = errors.New("unsupported disklabel")
	ErrNoSuchPartition  = errors.New("no such partition")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrCapacity         = errors.New("no free partition slot")
	ErrEncoding         = errors.New("value not representable")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrAllocation       = errors.New("cannot allocate")
	ErrNoData           = errors.New("no data")
	ErrTableBusy        = errors.New("table is being iterated")
)

type NoSuchPartitionError struct {
	requested int
	max       int
}

func (e *NoSuchPartitionError) Error() string {
	return fmt.Sprintf("requested partition %d not found, label has %d slots", e.requested, e.max)
}

func (e *NoSuchPartitionError) Is(target error) bool {
	return target == ErrNoSuchPartition
}

func NewNoSuchPartitionError(requested, maxPart int) *NoSuchPartitionError {
	return &NoSuchPartitionError{
		requested: requested,
		max:       maxPart,
	}
}

type MaxPartitionsExceededError struct {
	requested int
	max       int
}

func (e *MaxPartitionsExceededError) Error() string {
	return fmt.Sprintf("requested partition %d exceeds maximum partitions %d", e.requested, e.max)
}

func (e *MaxPartitionsExceededError) Is(target error) bool {
	return target == ErrCapacity
}

func NewMaxPartitionsExceededError(requested, maxPart int) *MaxPartitionsExceededError {
	return &MaxPartitionsExceededError{
		requested: requested,
		max:       maxPart,
	}
}

type OverlapError struct {
	partno int
	other  int
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("partition %d overlaps partition %d", e.partno, e.other)
}

func (e *OverlapError) Is(target error) bool {
	return target == ErrConflict
}

func NewOverlapError(partno, other int) *OverlapError {
	return &OverlapError{
		partno: partno,
		other:  other,
	}
}

type EncodingError struct {
	field  string
	reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.field, e.reason)
}

func (e *EncodingError) Is(target error) bool {
	return target == ErrEncoding
}

func NewEncodingError(field, reason string) *EncodingError {
	return &EncodingError{
		field:  field,
		reason: reason,
	}
}

// Violation is one problem found by verifying a label.
type Violation struct {
	// Partno is the partition concerned, -1 for label-wide problems.
	Partno int
	Kind   error
	Msg    string
}

func (v Violation) Error() string {
	if v.Partno < 0 {
		return v.Msg
	}
	return fmt.Sprintf("partition %d: %s", v.Partno, v.Msg)
}

func (v Violation) Unwrap() error {
	return v.Kind
}
