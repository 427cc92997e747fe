package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

// Compile-time check: *FSGateway implements mirror.StorageGateway.
var _ mirror.StorageGateway = (*FSGateway)(nil)

// FSGateway mirrors objects as files under a billy filesystem root.
// Content types are not persisted.
type FSGateway struct {
	fs billy.Filesystem
}

// NewFSGateway creates an FSGateway over fs.
func NewFSGateway(fs billy.Filesystem) *FSGateway {
	return &FSGateway{fs: fs}
}

// NewDirGateway creates an FSGateway rooted at dir on the local disk.
// Keys cannot escape dir.
func NewDirGateway(dir string) *FSGateway {
	return NewFSGateway(osfs.New(dir, osfs.WithBoundOS()))
}

// Put writes data to key, replacing any existing file.
func (g *FSGateway) Put(_ context.Context, key string, data []byte, _ string) error {
	name, err := clean(key)
	if err != nil {
		return err
	}
	if dir := path.Dir(name); dir != "." {
		if err := g.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	if err := util.WriteFile(g.fs, name, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Delete removes key. A missing file is not an error.
func (g *FSGateway) Delete(_ context.Context, key string) error {
	name, err := clean(key)
	if err != nil {
		return err
	}
	if err := g.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

func clean(key string) (string, error) {
	name := path.Clean("/" + key)[1:]
	if name == "" || strings.HasSuffix(key, "/") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return name, nil
}
