package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "castbot/pkg/logx"
)

// fileDir keeps the set in memory and rewrites the whole file on change
// (write to a temp file, then rename).
type fileDir struct {
	log  logx.Logger
	path string

	mu  sync.Mutex
	ids map[int64]struct{}
}

type fileSnapshot struct {
	Recipients []int64 `json:"recipients"`
}

func openFile(cfg Config, log logx.Logger) (Directory, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("directory.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	d := &fileDir{log: log, path: path, ids: map[int64]struct{}{}}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		var snap fileSnapshot
		if err := json.Unmarshal(b, &snap); err != nil {
			return nil, fmt.Errorf("directory file %s: %w", path, err)
		}
		for _, id := range snap.Recipients {
			d.ids[id] = struct{}{}
		}
	}
	log.Debug("directory file loaded", logx.String("path", path), logx.Int("recipients", len(d.ids)))
	return d, nil
}

func (d *fileDir) List(ctx context.Context) ([]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sortedIDs(d.ids), nil
}

func (d *fileDir) Add(ctx context.Context, id int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.ids[id]; ok {
		return false, nil
	}
	d.ids[id] = struct{}{}
	if err := d.flushLocked(); err != nil {
		delete(d.ids, id)
		return false, err
	}
	return true, nil
}

func (d *fileDir) Remove(ctx context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.ids[id]; !ok {
		return nil
	}
	delete(d.ids, id)
	if err := d.flushLocked(); err != nil {
		d.ids[id] = struct{}{}
		return err
	}
	return nil
}

func (d *fileDir) flushLocked() error {
	b, err := json.MarshalIndent(fileSnapshot{Recipients: sortedIDs(d.ids)}, "", "  ")
	if err != nil {
		return err
	}
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (d *fileDir) Close() error { return nil }
