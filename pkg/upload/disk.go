package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DiskStore stores uploads on the local filesystem.
//
// Each temp file is written as <dir>/<id> with its metadata alongside in
// <dir>/<id>.meta, so a restarted process can still resolve earlier ids.
type DiskStore struct {
	dir     string
	maxSize int64

	mu    sync.RWMutex
	files map[string]*diskMeta
}

type diskMeta struct {
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewDiskStore creates a DiskStore rooted at dir.
// maxSize caps each file in bytes; 0 means no limit.
func NewDiskStore(dir string, maxSize int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	return &DiskStore{
		dir:     dir,
		maxSize: maxSize,
		files:   make(map[string]*diskMeta),
	}, nil
}

// Save stores the uploaded bytes and returns a temp ID.
func (s *DiskStore) Save(_ context.Context, filename, contentType string, size int64, r io.Reader) (string, error) {
	if s.maxSize > 0 && size > s.maxSize {
		return "", ErrTooLarge
	}

	tempID := NewTempID()
	path := s.dataPath(tempID)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var reader io.Reader = r
	if s.maxSize > 0 {
		reader = io.LimitReader(r, s.maxSize+1) // +1 to detect overflow
	}

	written, err := io.Copy(f, reader)
	if err != nil {
		os.Remove(path)
		return "", err
	}
	if s.maxSize > 0 && written > s.maxSize {
		os.Remove(path)
		return "", ErrTooLarge
	}

	meta := &diskMeta{
		Filename:    filename,
		ContentType: contentType,
		Size:        written,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.files[tempID] = meta
	s.mu.Unlock()

	if err := s.saveMeta(tempID, meta); err != nil {
		s.remove(tempID)
		return "", err
	}
	return tempID, nil
}

// Stat returns the metadata of a temp file.
func (s *DiskStore) Stat(_ context.Context, tempID string) (*File, error) {
	meta, err := s.lookup(tempID)
	if err != nil {
		return nil, err
	}
	return s.file(tempID, meta), nil
}

// Open reads a temp file without consuming it.
func (s *DiskStore) Open(_ context.Context, tempID string) (io.ReadCloser, error) {
	if _, err := s.lookup(tempID); err != nil {
		return nil, err
	}
	f, err := os.Open(s.dataPath(tempID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Cleanup removes temp files older than maxAge, including files whose
// metadata was lost.
func (s *DiskStore) Cleanup(_ context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	s.mu.Lock()
	for tempID, meta := range s.files {
		if meta.CreatedAt.Before(cutoff) {
			delete(s.files, tempID)
			os.Remove(s.dataPath(tempID))
			os.Remove(s.metaPath(tempID))
			removed++
		}
	}
	s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return removed, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(s.dir, entry.Name())) == nil && !strings.HasSuffix(entry.Name(), ".meta") {
			removed++
		}
	}

	return removed, nil
}

func (s *DiskStore) lookup(tempID string) (*diskMeta, error) {
	if !ValidTempID(tempID) {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	meta, ok := s.files[tempID]
	s.mu.RUnlock()
	if ok {
		return meta, nil
	}

	// Not in memory: the store may have been restarted.
	meta, err := s.loadMeta(tempID)
	if err != nil {
		return nil, ErrNotFound
	}
	s.mu.Lock()
	s.files[tempID] = meta
	s.mu.Unlock()
	return meta, nil
}

func (s *DiskStore) file(tempID string, meta *diskMeta) *File {
	return &File{
		ID:          tempID,
		Filename:    meta.Filename,
		ContentType: meta.ContentType,
		Size:        meta.Size,
		CreatedAt:   meta.CreatedAt,
		Path:        s.dataPath(tempID),
	}
}

func (s *DiskStore) remove(tempID string) {
	s.mu.Lock()
	delete(s.files, tempID)
	s.mu.Unlock()
	os.Remove(s.dataPath(tempID))
	os.Remove(s.metaPath(tempID))
}

func (s *DiskStore) dataPath(tempID string) string {
	return filepath.Join(s.dir, tempID)
}

func (s *DiskStore) metaPath(tempID string) string {
	return filepath.Join(s.dir, tempID+".meta")
}

func (s *DiskStore) saveMeta(tempID string, meta *diskMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(s.metaPath(tempID), data, 0644)
}

func (s *DiskStore) loadMeta(tempID string) (*diskMeta, error) {
	data, err := os.ReadFile(s.metaPath(tempID))
	if err != nil {
		return nil, err
	}
	var meta diskMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
