// Package scratch manages short-lived files that collaborators such as ffmpeg
// or tesseract need to read from, or write to, the filesystem.
//
// Every Resource is uniquely named so concurrent requests never share a path,
// and every Resource must be released by the call that acquired it. Release
// is best-effort: removal failures are logged and swallowed.
package scratch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/heimdex/heimdex-analyzer/internal/logging"
)

const (
	filePrefix   = "hx"
	maxSuffixLen = 10
	fallback     = ".bin"
)

// ErrWrite is returned when payload bytes cannot be written to the scratch dir.
var ErrWrite = errors.New("scratch write failed")

// Pad owns a scratch directory.
type Pad struct {
	dir    string
	logger *slog.Logger

	outstanding atomic.Int64
}

// Resource is one file under the scratch directory.
type Resource struct {
	pad  *Pad
	path string
	once sync.Once
}

// New creates a Pad rooted at dir, creating the directory if needed.
func New(dir string, logger *slog.Logger) (*Pad, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("scratch dir is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	return &Pad{
		dir:    dir,
		logger: logging.WithComponent(logging.OrDiscard(logger), "scratch"),
	}, nil
}

// Dir returns the scratch directory.
func (p *Pad) Dir() string {
	return p.dir
}

// Outstanding returns the number of acquired but unreleased resources.
func (p *Pad) Outstanding() int {
	return int(p.outstanding.Load())
}

// Acquire writes data to a fresh file ending in suffix.
func (p *Pad) Acquire(ctx context.Context, data []byte, suffix string) (*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := p.newPath(suffix)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}

	_, werr := f.Write(data)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			p.logger.Warn("failed to remove partial scratch file", "path", logging.SanitizePath(path), "error", rmErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrWrite, werr)
	}

	return p.track(path), nil
}

// Reserve returns a unique path without creating the file, for collaborators
// that produce output files. Release removes the file if one was written.
func (p *Pad) Reserve(suffix string) *Resource {
	return p.track(p.newPath(suffix))
}

// With acquires data, calls fn with the file path and releases the file on
// every exit path, including panics inside fn.
func (p *Pad) With(ctx context.Context, data []byte, suffix string, fn func(path string) error) error {
	res, err := p.Acquire(ctx, data, suffix)
	if err != nil {
		return err
	}
	defer res.Release()
	return fn(res.Path())
}

// Sweep removes files in the scratch directory whose modification time is
// older than olderThan. It returns the number of files removed.
func (p *Pad) Sweep(olderThan time.Duration) int {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		p.logger.Warn("scratch sweep failed", "error", err)
		return 0
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix+"-") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(p.dir, e.Name())); err != nil {
			p.logger.Warn("failed to remove orphaned scratch file", "name", e.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		p.logger.Info("removed orphaned scratch files", "count", removed)
	}
	return removed
}

func (p *Pad) newPath(suffix string) string {
	name := fmt.Sprintf("%s-%d-%s%s", filePrefix, time.Now().UnixNano(), uuid.NewString(), SanitizeSuffix(suffix))
	return filepath.Join(p.dir, name)
}

func (p *Pad) track(path string) *Resource {
	p.outstanding.Add(1)
	return &Resource{pad: p, path: path}
}

// Path returns the filesystem path of the resource.
func (r *Resource) Path() string {
	return r.path
}

// Release deletes the backing file. It is safe to call more than once.
func (r *Resource) Release() {
	r.once.Do(func() {
		r.pad.outstanding.Add(-1)
		if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
			r.pad.logger.Warn("failed to release scratch file",
				"path", logging.SanitizePath(r.path),
				"error", err,
			)
		}
	})
}

// SanitizeSuffix normalises a file suffix so it is safe to embed in a
// generated name: a leading dot followed by at most ten ASCII letters or
// digits. Anything else collapses to ".bin".
func SanitizeSuffix(suffix string) string {
	s := strings.TrimSpace(suffix)
	if s == "" {
		return fallback
	}
	if !strings.HasPrefix(s, ".") {
		s = "." + s
	}
	body := s[1:]
	if body == "" || len(body) > maxSuffixLen {
		return fallback
	}
	for _, r := range body {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return fallback
		}
	}
	return strings.ToLower(s)
}

// SuffixFor returns the sanitised extension of filename, or def when the
// filename carries no usable extension.
func SuffixFor(filename, def string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return SanitizeSuffix(def)
	}
	if s := SanitizeSuffix(ext); s != fallback || strings.EqualFold(ext, fallback) {
		return s
	}
	return SanitizeSuffix(def)
}
