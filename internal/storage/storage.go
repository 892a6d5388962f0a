// Package storage keeps uploaded, masked, preview and comparison images.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a stored file does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidName is returned for names that are not plain file names.
	ErrInvalidName = errors.New("invalid file name")
)

// Kinds of stored files, derived from the name suffix.
const (
	KindOriginal   = "original"
	KindMasked     = "masked"
	KindPreview    = "preview"
	KindComparison = "comparison"
)

// Object describes one stored file.
type Object struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Store is a flat namespace of image files.
type Store interface {
	// Backend names the implementation ("local", "minio").
	Backend() string
	Put(ctx context.Context, name string, data []byte, contentType string) error
	Get(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]Object, error)
	Delete(ctx context.Context, name string) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// NewName returns "<unix>_<sanitised base name>" for an upload.
func NewName(original string, now time.Time) string {
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "_"), "._")
	if base == "" {
		base = uuid.NewString()
	}
	return fmt.Sprintf("%d_%s", now.Unix(), base)
}

// VariantName inserts "_<kind>" before the extension of name and replaces
// the extension with ext when ext is not empty.
func VariantName(name, kind, ext string) string {
	current := filepath.Ext(name)
	if ext == "" {
		ext = current
	}
	return strings.TrimSuffix(name, current) + "_" + kind + ext
}

// Kind classifies a stored name by its suffix.
func Kind(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	for _, kind := range []string{KindMasked, KindPreview, KindComparison} {
		if strings.HasSuffix(stem, "_"+kind) {
			return kind
		}
	}
	return KindOriginal
}

// ValidateName rejects names that could escape the store's namespace.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Stats counts stored files by extension and by kind.
type Stats struct {
	TotalFiles  int            `json:"total_files"`
	TotalBytes  int64          `json:"total_bytes"`
	ByExtension map[string]int `json:"by_extension"`
	ByKind      map[string]int `json:"by_kind"`
}

// Summarize computes Stats for a listing.
func Summarize(objects []Object) Stats {
	stats := Stats{
		ByExtension: make(map[string]int),
		ByKind:      make(map[string]int),
	}
	for _, o := range objects {
		stats.TotalFiles++
		stats.TotalBytes += o.Size
		ext := strings.ToLower(filepath.Ext(o.Name))
		if ext == "" {
			ext = "none"
		}
		stats.ByExtension[ext]++
		stats.ByKind[Kind(o.Name)]++
	}
	return stats
}

// DeleteAll removes every listed object and returns how many were deleted.
func DeleteAll(ctx context.Context, s Store) (int, error) {
	objects, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	var errs []error
	for _, o := range objects {
		if err := s.Delete(ctx, o.Name); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	return deleted, errors.Join(errs...)
}
