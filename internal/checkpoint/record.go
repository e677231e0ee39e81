package checkpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

// Version is the schema version written to new records.
const Version = 1

// PartStatus is the state of a single part in a record.
type PartStatus string

const (
	StatusPending   PartStatus = "pending"
	StatusSucceeded PartStatus = "succeeded"
)

// PartInfo is the persisted outcome of one part.
type PartInfo struct {
	PartNumber int32      `json:"part_number" validate:"gte=1,lte=10000"`
	Size       int64      `json:"size"        validate:"gte=0"`
	Status     PartStatus `json:"status"      validate:"oneof=pending succeeded"`
	RemoteTag  string     `json:"remote_tag"  validate:"required_if=Status succeeded"`
}

// Record is the on-disk state of one transfer. Field names are stable.
type Record struct {
	Version    int                  `json:"version"     validate:"eq=1"`
	Kind       s3types.TransferKind `json:"kind"        validate:"oneof=upload download copy"`
	TransferID string               `json:"transfer_id" validate:"required_unless=Kind download"`
	Bucket     string               `json:"bucket"      validate:"required"`
	Key        string               `json:"key"         validate:"required"`

	SourceBucket string `json:"source_bucket,omitempty" validate:"required_if=Kind copy"`
	SourceKey    string `json:"source_key,omitempty"    validate:"required_if=Kind copy"`
	FilePath     string `json:"file_path,omitempty"`

	ObjectSize int64 `json:"object_size" validate:"gte=0"`
	PartSize   int64 `json:"part_size"   validate:"gt=0"`

	SourceLastModified *time.Time `json:"source_last_modified,omitempty"`
	SourceETag         string     `json:"source_etag,omitempty"`

	PartsInfo []PartInfo `json:"parts_info" validate:"dive"`

	path string
}

// PartCount returns the number of parts the record's object splits into.
func (r *Record) PartCount() int {
	if r.ObjectSize == 0 || r.PartSize <= 0 {
		return 0
	}
	return int((r.ObjectSize + r.PartSize - 1) / r.PartSize)
}

// Succeeded returns the succeeded parts keyed by part number.
func (r *Record) Succeeded() map[int32]PartInfo {
	done := make(map[int32]PartInfo, len(r.PartsInfo))
	for _, p := range r.PartsInfo {
		if p.Status == StatusSucceeded {
			done[p.PartNumber] = p
		}
	}
	return done
}

// ConsumedBytes returns the total size of the succeeded parts.
func (r *Record) ConsumedBytes() int64 {
	var n int64
	for _, p := range r.PartsInfo {
		if p.Status == StatusSucceeded {
			n += p.Size
		}
	}
	return n
}

// expectedSize is the size part number n must have.
func (r *Record) expectedSize(n int32) int64 {
	offset := int64(n-1) * r.PartSize
	return min(r.PartSize, r.ObjectSize-offset)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateParts, Record{})
	return v
}

// validateParts checks that part numbers are unique, ascending, inside the
// plan and sized the way the plan sizes them.
func validateParts(sl validator.StructLevel) {
	rec, ok := sl.Current().Interface().(Record)
	if !ok {
		return
	}
	count := int32(rec.PartCount())
	prev := int32(0)
	for _, p := range rec.PartsInfo {
		switch {
		case p.PartNumber <= prev:
			sl.ReportError(rec.PartsInfo, "parts_info", "PartsInfo", "ascending", "")
			return
		case p.PartNumber > count:
			sl.ReportError(rec.PartsInfo, "parts_info", "PartsInfo", "inplan", fmt.Sprint(count))
			return
		case p.Size != rec.expectedSize(p.PartNumber):
			sl.ReportError(rec.PartsInfo, "parts_info", "PartsInfo", "partsize", fmt.Sprint(p.PartNumber))
			return
		}
		prev = p.PartNumber
	}
}

// Reasons a loaded record is not usable.
var (
	ErrNotFound         = errors.New("checkpoint: not found")
	ErrCorrupt          = errors.New("checkpoint: corrupt")
	ErrMismatch         = errors.New("checkpoint: does not match request")
	ErrPartSizeMismatch = fmt.Errorf("%w: part size", ErrMismatch)
)

// StaleError is returned by Load for a well-formed record that belongs to
// another transfer. It carries what is needed to release that transfer's
// remote state.
type StaleError struct {
	Kind       s3types.TransferKind
	Bucket     string
	Key        string
	TransferID string
	Err        error
}

func (e *StaleError) Error() string { return e.Err.Error() }

func (e *StaleError) Unwrap() error { return e.Err }

// Match describes the transfer a loaded record must belong to.
type Match struct {
	Kind         s3types.TransferKind
	Bucket       string
	Key          string
	SourceBucket string
	SourceKey    string
	FilePath     string
	ObjectSize   int64

	// PartSize is compared only when positive
	PartSize int64

	// SourceLastModified and SourceETag are compared when set
	SourceLastModified *time.Time
	SourceETag         string
}

// Check reports why rec does not belong to the transfer, or nil if it does.
func (m Match) Check(rec *Record) error {
	switch {
	case rec.Kind != m.Kind:
		return fmt.Errorf("%w: kind %q, want %q", ErrMismatch, rec.Kind, m.Kind)
	case rec.Bucket != m.Bucket || rec.Key != m.Key:
		return fmt.Errorf("%w: object %s/%s", ErrMismatch, rec.Bucket, rec.Key)
	case rec.SourceBucket != m.SourceBucket || rec.SourceKey != m.SourceKey:
		return fmt.Errorf("%w: source %s/%s", ErrMismatch, rec.SourceBucket, rec.SourceKey)
	case m.FilePath != "" && rec.FilePath != m.FilePath:
		return fmt.Errorf("%w: file %s", ErrMismatch, rec.FilePath)
	case rec.ObjectSize != m.ObjectSize:
		return fmt.Errorf("%w: object size %d, want %d", ErrMismatch, rec.ObjectSize, m.ObjectSize)
	case m.SourceETag != "" && rec.SourceETag != m.SourceETag:
		return fmt.Errorf("%w: source etag %s", ErrMismatch, rec.SourceETag)
	}
	if m.SourceLastModified != nil {
		if rec.SourceLastModified == nil || !rec.SourceLastModified.Equal(*m.SourceLastModified) {
			return fmt.Errorf("%w: source last modified", ErrMismatch)
		}
	}
	if m.PartSize > 0 && rec.PartSize != m.PartSize {
		return fmt.Errorf("%w: %d, want %d", ErrPartSizeMismatch, rec.PartSize, m.PartSize)
	}
	return nil
}
