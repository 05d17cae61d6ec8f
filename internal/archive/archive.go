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

// Package archive opens jar files through an fs.FileSystem.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"

	"bennypowers.dev/javinc/fs"
)

// Archive is an open jar. Close releases the underlying file handle.
type Archive struct {
	*zip.Reader
	closer io.Closer
}

// Open opens the jar at path. The file is read through io.ReaderAt when
// the filesystem supports it, otherwise it is loaded into memory.
func Open(fsys fs.FileSystem, path string) (*Archive, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if ra, ok := f.(io.ReaderAt); ok {
		zr, err := zip.NewReader(ra, info.Size())
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("reading archive %s: %w", path, err)
		}
		return &Archive{Reader: zr, closer: f}, nil
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading archive %s: %w", path, err)
	}
	return &Archive{Reader: zr, closer: io.NopCloser(nil)}, nil
}

// ReadEntry returns the content of the named entry, or ok=false when the
// archive has no such entry.
func (a *Archive) ReadEntry(name string) (data []byte, ok bool, err error) {
	f, err := a.Reader.Open(name)
	if err != nil {
		return nil, false, nil
	}
	defer f.Close()
	data, err = io.ReadAll(f)
	if err != nil {
		return nil, true, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, true, nil
}

// Close closes the archive file.
func (a *Archive) Close() error {
	return a.closer.Close()
}
