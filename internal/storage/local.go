// Package storage keeps uploaded files: dispute evidence and generated contracts.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type Uploader interface {
	// Upload stores r under a unique name derived from name and returns its URL.
	Upload(ctx context.Context, folder, name string, r io.Reader) (string, error)
}

// Local writes files below Dir and serves them from BaseURL + "/files".
type Local struct {
	Dir     string
	BaseURL string
}

func NewLocal(dir, baseURL string) *Local {
	return &Local{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (l *Local) Upload(ctx context.Context, folder, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext := filepath.Ext(filepath.Base(name))
	file := uuid.NewString() + ext
	dir := filepath.Join(l.Dir, filepath.Clean("/"+folder))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: mkdir: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, file))
	if err != nil {
		return "", fmt.Errorf("storage: create: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("storage: write: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("storage: close: %w", err)
	}
	return l.BaseURL + path.Join("/files", filepath.ToSlash(filepath.Clean("/"+folder)), file), nil
}
