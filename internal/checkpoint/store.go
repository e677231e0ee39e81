package checkpoint

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/go-git/go-billy/v5"
	"github.com/go-playground/validator/v10"
)

// Store reads and writes checkpoint records on a filesystem.
// All writes through one Store are serialized.
type Store struct {
	fs       billy.Filesystem
	validate *validator.Validate
	logger   *slog.Logger

	mu sync.Mutex
}

// NewStore creates a Store on fs. A nil logger discards log output.
func NewStore(fs billy.Filesystem, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		fs:       fs,
		validate: newValidator(),
		logger:   logger,
	}
}

// Load reads the record at path and checks it against m.
// It returns a nil record and the reason when the file is missing, unreadable,
// invalid or belongs to another transfer. The reason is informational; callers
// start a fresh transfer instead of failing. A record of another transfer is
// reported as a *StaleError.
func (s *Store) Load(path string, m Match) (*Record, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := sonic.ConfigStd.Unmarshal(data, &rec); err != nil {
		s.logger.Debug("discarding unparsable checkpoint", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err := s.validate.Struct(&rec); err != nil {
		s.logger.Debug("discarding invalid checkpoint", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err := m.Check(&rec); err != nil {
		s.logger.Debug("discarding mismatched checkpoint", "path", path, "reason", err)
		return nil, &StaleError{
			Kind:       rec.Kind,
			Bucket:     rec.Bucket,
			Key:        rec.Key,
			TransferID: rec.TransferID,
			Err:        err,
		}
	}

	rec.path = path
	return &rec, nil
}

func (s *Store) read(path string) ([]byte, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		s.logger.Debug("checkpoint unreadable", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return data, nil
}

// Create persists rec as a new record at path, replacing whatever was there.
func (s *Store) Create(path string, rec Record) (*Record, error) {
	rec.Version = Version
	rec.path = path
	if rec.PartsInfo == nil {
		rec.PartsInfo = []PartInfo{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecordPartSucceeded marks a part as succeeded and rewrites the file.
// Parts may be recorded in any order; the persisted list stays sorted.
func (s *Store) RecordPartSucceeded(rec *Record, partNumber int32, size int64, remoteTag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := PartInfo{
		PartNumber: partNumber,
		Size:       size,
		Status:     StatusSucceeded,
		RemoteTag:  remoteTag,
	}

	i := sort.Search(len(rec.PartsInfo), func(i int) bool {
		return rec.PartsInfo[i].PartNumber >= partNumber
	})
	if i < len(rec.PartsInfo) && rec.PartsInfo[i].PartNumber == partNumber {
		rec.PartsInfo[i] = info
	} else {
		rec.PartsInfo = append(rec.PartsInfo, PartInfo{})
		copy(rec.PartsInfo[i+1:], rec.PartsInfo[i:])
		rec.PartsInfo[i] = info
	}

	return s.write(rec)
}

// Finalize deletes the record's file. A missing file is not an error.
func (s *Store) Finalize(rec *Record) error {
	return s.Discard(rec.path)
}

// Discard deletes the checkpoint file at path if it exists.
func (s *Store) Discard(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: remove %q: %w", path, err)
	}
	return nil
}

// write serializes rec next to its destination and renames it into place.
// The caller holds s.mu.
func (s *Store) write(rec *Record) error {
	data, err := sonic.ConfigStd.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: encode: %w", err)
	}

	dir := filepath.Dir(rec.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: create dir %q: %w", dir, err)
	}

	tmp, err := s.fs.TempFile(dir, "."+filepath.Base(rec.path)+".")
	if err != nil {
		return fmt.Errorf("checkpoint: create temp in %q: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("checkpoint: write %q: %w", tmpName, err)
	}
	if syncer, ok := tmp.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			_ = tmp.Close()
			_ = s.fs.Remove(tmpName)
			return fmt.Errorf("checkpoint: sync %q: %w", tmpName, err)
		}
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("checkpoint: close %q: %w", tmpName, err)
	}

	if err := s.fs.Rename(tmpName, rec.path); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("checkpoint: rename %q: %w", rec.path, err)
	}
	return nil
}
