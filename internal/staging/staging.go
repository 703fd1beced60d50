package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Area owns staged upload files under a single root directory
type Area struct {
	root string
}

// New ensures the staging root exists. Safe to call when it already does.
func New(root string) (*Area, error) {
	if root == "" {
		return nil, fmt.Errorf("staging root cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve staging root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}
	return &Area{root: abs}, nil
}

// Root returns the absolute staging directory
func (a *Area) Root() string {
	return a.root
}

// Create opens a new exclusively-created file named <uuid><ext>
func (a *Area) Create(ext string) (id string, f *os.File, err error) {
	id = uuid.NewString()
	path := filepath.Join(a.root, id+ext)
	f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", nil, fmt.Errorf("create staged file: %w", err)
	}
	return id, f, nil
}

// Remove deletes a staged file. Missing files are not an error.
func (a *Area) Remove(path string) error {
	if path == "" {
		return nil
	}
	if !a.contains(path) {
		return fmt.Errorf("refusing to remove path outside staging root")
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove staged file: %w", err)
	}
	return nil
}

// Sweep removes regular files last modified before cutoff and returns how many were removed
func (a *Area) Sweep(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		return 0, fmt.Errorf("read staging root: %w", err)
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := a.Remove(filepath.Join(a.root, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func (a *Area) contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(a.root, abs)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
		return false
	}
	return true
}
