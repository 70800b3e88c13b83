package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Local sums the sizes of regular files below Root.
type Local struct {
	Root string
}

func newLocal(_ context.Context, cfg map[string]any) (Driver, error) {
	root := str(cfg, "root")
	if root == "" {
		return nil, fmt.Errorf("local: root is required")
	}
	return &Local{Root: filepath.Clean(root)}, nil
}

func (l *Local) Usage(ctx context.Context) (int64, error) {
	st, err := os.Stat(l.Root)
	if err != nil {
		return 0, err
	}
	if !st.IsDir() {
		return 0, fmt.Errorf("local: %s is not a directory", l.Root)
	}
	var total int64
	err = filepath.WalkDir(l.Root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
