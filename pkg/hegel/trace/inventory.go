package trace

import (
	"context"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
)

// FileInfo describes one data file found under the data directory.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// ListFiles walks root in parallel and collects every regular file,
// newest first. Unreadable entries are skipped rather than failing the
// whole listing.
func ListFiles(ctx context.Context, root string) ([]FileInfo, error) {
	conf := fastwalk.Config{
		Follow: false,
	}

	var (
		mu    sync.Mutex
		files []FileInfo
	)
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if walkErr != nil {
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		mu.Lock()
		files = append(files, FileInfo{Path: path, Size: info.Size(), ModTime: info.ModTime()})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].ModTime.After(files[j].ModTime)
		}
		return files[i].Path < files[j].Path
	})
	return files, nil
}
