package project

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

func checkPath(p string) error {
	clean := path.Clean(p)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: %q", ErrBadPath, p)
	}
	return nil
}

// DirMaterializer writes artifacts below Root, creating directories as
// needed.
type DirMaterializer struct {
	Root   string
	Logger *slog.Logger
}

func (d *DirMaterializer) Materialize(ctx context.Context, a *Artifacts) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "project"), slog.String("root", d.Root))
	for _, f := range a.Files {
		if err := checkPath(f.Path); err != nil {
			return err
		}
	}
	for _, f := range a.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst := filepath.Join(d.Root, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("project: %w", err)
		}
		if err := os.WriteFile(dst, f.Data, 0o644); err != nil {
			return fmt.Errorf("project: %w", err)
		}
		logger.Debug("file written", slog.String("path", f.Path), slog.Int("bytes", len(f.Data)))
	}
	logger.Info("project materialized", slog.String("problem", a.Name), slog.Int("files", len(a.Files)))
	return nil
}

// MemMaterializer keeps artifacts in memory. It is safe for concurrent use.
type MemMaterializer struct {
	mu    sync.Mutex
	files map[string][]byte
}

func NewMemMaterializer() *MemMaterializer {
	return &MemMaterializer{files: map[string][]byte{}}
}

func (m *MemMaterializer) Materialize(ctx context.Context, a *Artifacts) error {
	for _, f := range a.Files {
		if err := checkPath(f.Path); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range a.Files {
		m.files[path.Clean(f.Path)] = append([]byte(nil), f.Data...)
	}
	return nil
}

// File returns a copy of the stored contents at p.
func (m *MemMaterializer) File(p string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path.Clean(p)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Paths lists every stored path in order.
func (m *MemMaterializer) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
