package planner

import (
	"fmt"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/errors"
)

const (
	// MaxParts is the largest part count a multipart upload accepts.
	MaxParts = 10000

	// DefaultPartSize is used when the caller does not choose a part size.
	DefaultPartSize int64 = 8 * 1024 * 1024
)

// Part is one contiguous byte range of an object.
type Part struct {
	Number int32
	Offset int64
	Size   int64
}

// Range returns the inclusive HTTP byte range of the part.
func (p Part) Range() string {
	return fmt.Sprintf("bytes=%d-%d", p.Offset, p.Offset+p.Size-1)
}

// Plan partitions objectSize bytes into parts of partSize, the last part
// holding the remainder. The same inputs always yield the same plan. A
// zero-byte object has no parts.
func Plan(objectSize, partSize int64) ([]Part, error) {
	if partSize <= 0 {
		return nil, errors.NewError("plan", errors.ErrInvalidConfiguration).
			WithMessage(fmt.Sprintf("part size %d must be positive", partSize))
	}
	if objectSize < 0 {
		return nil, errors.NewError("plan", errors.ErrInvalidConfiguration).
			WithMessage(fmt.Sprintf("object size %d must not be negative", objectSize))
	}

	count := PartCount(objectSize, partSize)
	if count > MaxParts {
		return nil, errors.NewError("plan", errors.ErrInvalidConfiguration).
			WithMessage(fmt.Sprintf("%d parts of %d bytes exceed the limit of %d", count, partSize, MaxParts))
	}

	parts := make([]Part, 0, count)
	for i := int64(0); i < count; i++ {
		offset := i * partSize
		parts = append(parts, Part{
			Number: int32(i + 1), //nolint:gosec // bounded by MaxParts
			Offset: offset,
			Size:   min(partSize, objectSize-offset),
		})
	}
	return parts, nil
}

// PartCount returns ceil(objectSize / partSize).
func PartCount(objectSize, partSize int64) int64 {
	if objectSize <= 0 || partSize <= 0 {
		return 0
	}
	return (objectSize + partSize - 1) / partSize
}

// Remaining returns the parts of plan whose numbers are not in done,
// keeping plan order.
func Remaining[T any](plan []Part, done map[int32]T) []Part {
	rest := make([]Part, 0, len(plan))
	for _, p := range plan {
		if _, ok := done[p.Number]; !ok {
			rest = append(rest, p)
		}
	}
	return rest
}

// ChoosePartSize returns requested when positive. Otherwise it starts from
// DefaultPartSize and doubles it until the object fits in MaxParts.
func ChoosePartSize(objectSize, requested int64) int64 {
	if requested > 0 {
		return requested
	}
	size := DefaultPartSize
	for PartCount(objectSize, size) > MaxParts {
		size *= 2
	}
	return size
}
