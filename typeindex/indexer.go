/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package typeindex

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"bennypowers.dev/javinc/classfile"
	"bennypowers.dev/javinc/fs"
	"bennypowers.dev/javinc/internal/archive"
	"bennypowers.dev/javinc/internal/logging"
)

// DefaultCacheSize bounds the number of archive indexes kept in memory.
const DefaultCacheSize = 1024

// maxParallel bounds concurrent entry scans.
const maxParallel = 8

type stamp struct {
	size    int64
	modTime time.Time
}

type cached struct {
	stamp stamp
	index *Index
}

// Indexer computes type indexes for classpath entries. Archive indexes
// are cached by path and revalidated by size and modification time.
// An Indexer is safe for concurrent use.
type Indexer struct {
	fsys   fs.FileSystem
	cache  *lru.Cache[string, cached]
	logger logging.Logger
}

// NewIndexer creates an indexer with an LRU cache of the given size.
func NewIndexer(fsys fs.FileSystem, cacheSize int, logger logging.Logger) *Indexer {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, cached](cacheSize)
	if err != nil {
		panic("typeindex: " + err.Error())
	}
	return &Indexer{fsys: fsys, cache: cache, logger: logger}
}

// Entry returns the index of one classpath entry: its persisted index when
// present, otherwise a scan of its class files. Missing and unreadable
// entries yield an empty index.
func (ix *Indexer) Entry(path string) *Index {
	info, err := ix.fsys.Stat(path)
	if err != nil {
		return New()
	}
	if info.IsDir() {
		if x, ok := ReadFile(ix.fsys, path); ok {
			return x
		}
		return ix.scanDir(path)
	}

	st := stamp{size: info.Size(), modTime: info.ModTime()}
	if c, ok := ix.cache.Get(path); ok && c.stamp == st {
		return c.index
	}
	x := ix.scanArchive(path)
	ix.cache.Add(path, cached{stamp: st, index: x})
	return x
}

// Classpath returns the merged index of paths, merged in classpath order.
// Entries are indexed concurrently.
func (ix *Indexer) Classpath(ctx context.Context, paths []string) (*Index, error) {
	results := make([]*Index, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = ix.Entry(p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	merged := New()
	for _, x := range results {
		merged.Merge(x)
	}
	return merged, nil
}

func (ix *Indexer) scanDir(dir string) *Index {
	x := New()
	err := fs.Walk(ix.fsys, dir, func(path, rel string) error {
		if !strings.HasSuffix(rel, ".class") {
			return nil
		}
		data, err := ix.fsys.ReadFile(path)
		if err != nil {
			return err
		}
		ix.add(x, path, data)
		return nil
	})
	if err != nil && ix.logger != nil {
		ix.logger.Warning("Ignoring unreadable classpath directory %s: %v", dir, err)
	}
	return x
}

func (ix *Indexer) scanArchive(path string) *Index {
	x := New()
	a, err := archive.Open(ix.fsys, path)
	if err != nil {
		if ix.logger != nil {
			ix.logger.Warning("Ignoring unreadable classpath archive %s: %v", path, err)
		}
		return x
	}
	defer a.Close()

	if data, ok, err := a.ReadEntry(Path); ok && err == nil {
		if persisted, err := Decode(bytes.NewReader(data)); err == nil {
			return persisted
		}
	}
	for _, f := range a.File {
		if !strings.HasSuffix(f.Name, ".class") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			continue
		}
		ix.add(x, filepath.Join(path, f.Name), data)
	}
	return x
}

func (ix *Indexer) add(x *Index, path string, data []byte) {
	cf, err := classfile.Parse(data)
	if err != nil {
		if ix.logger != nil {
			ix.logger.Debug("Skipping unparsable class %s: %v", path, err)
		}
		return
	}
	if d := cf.Digest(); d != nil {
		x.Put(cf.Name(), d)
	}
}
