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
// Package mapfs provides an in-memory filesystem implementation for testing.
//
// Every write advances the filesystem clock by one second, so tests can
// observe whether a file was rewritten by comparing modification times.
// NewCaseInsensitive returns a filesystem that resolves names the way a
// case-insensitive volume does.
package mapfs

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"testing/fstest"
	"time"
)

// MapFileSystem implements fs.FileSystem over an fstest.MapFS.
type MapFileSystem struct {
	mu       sync.RWMutex
	mapFS    fstest.MapFS
	tempDir  string
	clock    time.Time
	foldCase bool
}

// New creates a new case-sensitive in-memory filesystem.
func New() *MapFileSystem {
	return &MapFileSystem{
		mapFS:   make(fstest.MapFS),
		tempDir: "/tmp",
		clock:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// NewCaseInsensitive creates an in-memory filesystem whose lookups ignore
// case. Directory listings report names as they were stored.
func NewCaseInsensitive() *MapFileSystem {
	mfs := New()
	mfs.foldCase = true
	return mfs
}

// AddFile adds a file to the in-memory filesystem.
func (mfs *MapFileSystem) AddFile(name string, content string, mode fs.FileMode) {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	mfs.putLocked(mfs.cleanPath(name), []byte(content), mode)
}

// AddDir adds an empty directory to the in-memory filesystem.
func (mfs *MapFileSystem) AddDir(name string, mode fs.FileMode) {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	mfs.putLocked(mfs.cleanPath(name)+"/.keep", nil, mode.Perm())
}

// WriteFile implements fs.FileSystem.
func (mfs *MapFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	name = mfs.resolveLocked(mfs.cleanPath(name))
	if err := mfs.ensureParentDirLocked(name); err != nil {
		return err
	}
	mfs.putLocked(name, append([]byte(nil), data...), perm)
	return nil
}

// ReadFile implements fs.FileSystem.
func (mfs *MapFileSystem) ReadFile(name string) ([]byte, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	return fs.ReadFile(mfs.mapFS, mfs.resolveLocked(mfs.cleanPath(name)))
}

// Remove implements fs.FileSystem.
func (mfs *MapFileSystem) Remove(name string) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	name = mfs.resolveLocked(mfs.cleanPath(name))
	if _, exists := mfs.mapFS[name]; !exists {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(mfs.mapFS, name)
	return nil
}

// MkdirAll implements fs.FileSystem.
func (mfs *MapFileSystem) MkdirAll(name string, perm fs.FileMode) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	name = mfs.cleanPath(name)
	if file, exists := mfs.mapFS[name]; exists && !file.Mode.IsDir() {
		return &fs.PathError{Op: "mkdir", Path: name, Err: fmt.Errorf("not a directory")}
	}
	if mfs.isDirLocked(name) {
		return nil
	}
	mfs.putLocked(name+"/.keep", nil, perm.Perm())
	return nil
}

// TempDir implements fs.FileSystem.
func (mfs *MapFileSystem) TempDir() string {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()
	return mfs.tempDir
}

// Stat implements fs.FileSystem.
func (mfs *MapFileSystem) Stat(name string) (fs.FileInfo, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	return fs.Stat(mfs.mapFS, mfs.resolveLocked(mfs.cleanPath(name)))
}

// Exists implements fs.FileSystem.
func (mfs *MapFileSystem) Exists(name string) bool {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	name = mfs.resolveLocked(mfs.cleanPath(name))
	if _, exists := mfs.mapFS[name]; exists {
		return true
	}
	return mfs.isDirLocked(name)
}

// ReadDir implements fs.FileSystem.
func (mfs *MapFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	return fs.ReadDir(mfs.mapFS, mfs.resolveLocked(mfs.cleanPath(name)))
}

// Open implements fs.FileSystem.
func (mfs *MapFileSystem) Open(name string) (fs.File, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	return mfs.mapFS.Open(mfs.resolveLocked(mfs.cleanPath(name)))
}

// ListFiles returns the sorted absolute paths of all regular files.
func (mfs *MapFileSystem) ListFiles() []string {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	var files []string
	for p := range mfs.mapFS {
		if path.Base(p) == ".keep" {
			continue
		}
		files = append(files, "/"+p)
	}
	sort.Strings(files)
	return files
}

func (mfs *MapFileSystem) putLocked(name string, data []byte, mode fs.FileMode) {
	mfs.clock = mfs.clock.Add(time.Second)
	mfs.mapFS[name] = &fstest.MapFile{
		Data:    data,
		Mode:    mode,
		ModTime: mfs.clock,
	}
}

func (mfs *MapFileSystem) isDirLocked(name string) bool {
	if name == "." {
		return len(mfs.mapFS) > 0
	}
	prefix := name + "/"
	for p := range mfs.mapFS {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// resolveLocked maps name onto the stored spelling when case folding is on.
func (mfs *MapFileSystem) resolveLocked(name string) string {
	if !mfs.foldCase {
		return name
	}
	if _, exists := mfs.mapFS[name]; exists || mfs.isDirLocked(name) {
		return name
	}
	for p := range mfs.mapFS {
		if strings.EqualFold(p, name) {
			return p
		}
		if len(p) > len(name) && p[len(name)] == '/' && strings.EqualFold(p[:len(name)], name) {
			return p[:len(name)]
		}
	}
	return name
}

func (mfs *MapFileSystem) cleanPath(p string) string {
	cleaned := path.Clean(p)
	if !path.IsAbs(cleaned) {
		cleaned = "/" + cleaned
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" {
		return "."
	}
	return cleaned
}

func (mfs *MapFileSystem) ensureParentDirLocked(filePath string) error {
	dir := path.Dir(filePath)
	if dir == "." || dir == "/" || dir == "" {
		return nil
	}
	if file, exists := mfs.mapFS[dir]; exists && !file.Mode.IsDir() {
		return &fs.PathError{Op: "open", Path: filePath, Err: fmt.Errorf("not a directory")}
	}
	return nil
}
