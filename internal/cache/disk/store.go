// Package disk keeps cached values as files under a root directory. A manifest
// records expiry and last use per key, so entries survive restarts until they expire.
package disk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codementor/internal/safeio"
)

const (
	blobDir      = "blobs"
	manifestName = "manifest.json"
)

type Config struct {
	Root       string
	MaxEntries int
	MaxBytes   int64
	DefaultTTL time.Duration
}

type record struct {
	Blob    string    `json:"blob"`
	Bytes   int64     `json:"bytes"`
	Expires time.Time `json:"expires"`
	Used    time.Time `json:"used"`
}

type Store struct {
	mu    sync.Mutex
	fsys  *safeio.SafeFS
	cfg   Config
	used  int64
	index map[string]record
	now   func() time.Time
}

func NewStore(cfg Config) (*Store, error) {
	cfg.Root = strings.TrimSpace(cfg.Root)
	if cfg.Root == "" {
		return nil, errors.New("disk cache: root is required")
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 4096
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	if err := os.MkdirAll(filepath.Join(cfg.Root, blobDir), 0o755); err != nil {
		return nil, fmt.Errorf("disk cache: %w", err)
	}
	fsys, err := safeio.NewSafeFS(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("disk cache: %w", err)
	}
	s := &Store{fsys: fsys, cfg: cfg, index: map[string]record{}, now: time.Now}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	s.sweepLocked(s.now())
	return s, s.saveLocked()
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, errors.New("disk cache: store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.index[key]
	if !ok {
		return nil, false, nil
	}
	now := s.now()
	if now.After(rec.Expires) {
		s.dropLocked(key)
		return nil, false, s.saveLocked()
	}
	raw, err := s.fsys.ReadFile(rec.Blob)
	if errors.Is(err, fs.ErrNotExist) {
		s.dropLocked(key)
		return nil, false, s.saveLocked()
	}
	if err != nil {
		return nil, false, err
	}
	// Recency is persisted with the next write.
	rec.Used = now
	s.index[key] = rec
	return raw, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return errors.New("disk cache: store is nil")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("disk cache: key is required")
	}
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	blob := blobName(key)
	if err := s.fsys.WriteFile(blob, value, 0o644); err != nil {
		return err
	}
	s.used -= s.index[key].Bytes
	now := s.now()
	s.index[key] = record{Blob: blob, Bytes: int64(len(value)), Expires: now.Add(ttl), Used: now}
	s.used += int64(len(value))

	s.sweepLocked(now)
	return s.saveLocked()
}

func (s *Store) Delete(_ context.Context, key string) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[key]; !ok {
		return nil
	}
	s.dropLocked(key)
	return s.saveLocked()
}

func (s *Store) Clear(_ context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.index {
		s.dropLocked(key)
	}
	return s.saveLocked()
}

// load reads the manifest. A missing or torn manifest starts an empty cache.
func (s *Store) load() {
	raw, err := s.fsys.ReadFile(manifestName)
	if err != nil {
		return
	}
	var idx map[string]record
	if json.Unmarshal(raw, &idx) != nil {
		return
	}
	for key, rec := range idx {
		s.index[key] = rec
		s.used += rec.Bytes
	}
}

// sweepLocked removes expired or orphaned records, then evicts the least
// recently used until both bounds hold.
func (s *Store) sweepLocked(now time.Time) {
	for key, rec := range s.index {
		if now.After(rec.Expires) {
			s.dropLocked(key)
			continue
		}
		if _, err := fs.Stat(s.fsys, rec.Blob); errors.Is(err, fs.ErrNotExist) {
			s.dropLocked(key)
		}
	}
	for len(s.index) > s.cfg.MaxEntries || (s.cfg.MaxBytes > 0 && s.used > s.cfg.MaxBytes && len(s.index) > 0) {
		s.dropLocked(s.oldestLocked())
	}
}

func (s *Store) oldestLocked() string {
	var victim string
	var at time.Time
	for key, rec := range s.index {
		if victim == "" || rec.Used.Before(at) || (rec.Used.Equal(at) && key < victim) {
			victim, at = key, rec.Used
		}
	}
	return victim
}

func (s *Store) dropLocked(key string) {
	rec, ok := s.index[key]
	if !ok {
		return
	}
	delete(s.index, key)
	s.used -= rec.Bytes
	_ = os.Remove(filepath.Join(s.fsys.Root(), filepath.FromSlash(rec.Blob)))
}

func (s *Store) saveLocked() error {
	raw, err := json.Marshal(s.index)
	if err != nil {
		return err
	}
	tmp := manifestName + ".tmp"
	if err := s.fsys.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(filepath.Join(s.fsys.Root(), tmp), filepath.Join(s.fsys.Root(), manifestName))
}

func blobName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return path.Join(blobDir, hex.EncodeToString(sum[:]))
}
