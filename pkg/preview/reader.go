// Package preview builds thumbnails for staged files.
//
// A Reader loads the staged bytes off the caller's goroutine, checks that
// they really are an image and encodes them as a data: URL. Results are
// cached by temp id and concurrent reads of the same id share one load.
package preview

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/vango-dev/projectform/pkg/future"
	"github.com/vango-dev/projectform/pkg/staged"
)

// ErrNotImage is returned when the bytes of a file do not sniff as an image.
var ErrNotImage = errors.New("preview: content is not an image")

// ErrTooLarge is returned when a file exceeds Config.MaxBytes.
var ErrTooLarge = errors.New("preview: file too large to preview")

// Config configures a Reader.
type Config struct {
	// CacheSize is the number of thumbnails kept. Default: 64.
	CacheSize int

	// MaxBytes caps how much of a file is loaded. Default: 5 MiB.
	MaxBytes int64

	// Logger is the structured logger. Default: slog.Default().
	Logger *slog.Logger
}

// Reader implements staged.Reader.
type Reader struct {
	cache    *lru.Cache[string, staged.Thumbnail]
	group    singleflight.Group
	maxBytes int64
	logger   *slog.Logger
}

var _ staged.Reader = (*Reader)(nil)

// NewReader creates a Reader.
func NewReader(cfg Config) (*Reader, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 64
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = staged.DefaultMaxFileSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cache, err := lru.New[string, staged.Thumbnail](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	return &Reader{
		cache:    cache,
		maxBytes: cfg.MaxBytes,
		logger:   cfg.Logger.With("component", "preview"),
	}, nil
}

// Read starts loading the thumbnail of f. The returned future resolves on
// a background goroutine; a cached thumbnail resolves immediately.
func (r *Reader) Read(f *staged.File) *future.Future[staged.Thumbnail] {
	if f.ID != "" {
		if thumb, ok := r.cache.Get(f.ID); ok {
			return future.Resolved(thumb)
		}
	}

	return future.Go(func() (staged.Thumbnail, error) {
		if f.ID == "" {
			return r.load(f)
		}
		v, err, shared := r.group.Do(f.ID, func() (any, error) {
			thumb, err := r.load(f)
			if err == nil {
				r.cache.Add(f.ID, thumb)
			}
			return thumb, err
		})
		if shared {
			r.logger.Debug("preview read shared", "id", f.ID)
		}
		return v.(staged.Thumbnail), err
	})
}

func (r *Reader) load(f *staged.File) (staged.Thumbnail, error) {
	rc, err := f.Open()
	if err != nil {
		return staged.Thumbnail{}, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, r.maxBytes+1))
	if err != nil {
		return staged.Thumbnail{}, fmt.Errorf("read %s: %w", f.Name, err)
	}
	if int64(len(data)) > r.maxBytes {
		return staged.Thumbnail{}, ErrTooLarge
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return staged.Thumbnail{}, fmt.Errorf("%w: %s", ErrNotImage, mt.String())
	}

	return staged.Thumbnail{
		MIMEType: mt.String(),
		Src:      DataURL(mt.String(), data),
	}, nil
}

// DataURL encodes data as a base64 data: URL.
func DataURL(mimeType string, data []byte) string {
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(mimeType) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(mimeType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// Forget evicts the cached thumbnail of a temp id.
func (r *Reader) Forget(id string) {
	r.cache.Remove(id)
}

// Cached returns the number of cached thumbnails.
func (r *Reader) Cached() int {
	return r.cache.Len()
}
