package directory

import (
	"context"
	"sort"
	"sync"
)

type memoryDir struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

func NewMemory(ids ...int64) Directory {
	d := &memoryDir{ids: map[int64]struct{}{}}
	for _, id := range ids {
		d.ids[id] = struct{}{}
	}
	return d
}

func (d *memoryDir) List(ctx context.Context) ([]int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedIDs(d.ids), nil
}

func (d *memoryDir) Add(ctx context.Context, id int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.ids[id]; ok {
		return false, nil
	}
	d.ids[id] = struct{}{}
	return true, nil
}

func (d *memoryDir) Remove(ctx context.Context, id int64) error {
	d.mu.Lock()
	delete(d.ids, id)
	d.mu.Unlock()
	return nil
}

func (d *memoryDir) Close() error { return nil }

func sortedIDs(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
