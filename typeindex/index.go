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

// Package typeindex maintains the type index: a multimap from binary type
// name to the structural digests of every classpath entry that defines the
// type, in classpath order.
//
// The index of a classpath entry is persisted next to its classes so that a
// downstream build can reuse it instead of rescanning. Persisted indexes are
// a cache: unreadable files are ignored and rebuilt.
package typeindex

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"bennypowers.dev/javinc/fs"
)

// Path is the location of a persisted index relative to an output
// directory or archive root.
const Path = "META-INF/javinc/types.index"

// Index is an ordered type-name to digests multimap.
type Index struct {
	digests map[string][][]byte
}

// New creates an empty index.
func New() *Index {
	return &Index{digests: make(map[string][][]byte)}
}

// Put appends a digest for typeName.
func (x *Index) Put(typeName string, digest []byte) {
	x.digests[typeName] = append(x.digests[typeName], digest)
}

// Get returns the digests recorded for typeName in insertion order.
func (x *Index) Get(typeName string) [][]byte {
	return x.digests[typeName]
}

// Types returns all type names, sorted.
func (x *Index) Types() []string {
	types := make([]string, 0, len(x.digests))
	for t := range x.digests {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Len returns the number of distinct type names.
func (x *Index) Len() int {
	return len(x.digests)
}

// Merge appends every digest of other after the digests already present.
func (x *Index) Merge(other *Index) {
	for _, t := range other.Types() {
		for _, d := range other.digests[t] {
			x.Put(t, d)
		}
	}
}

// Diff returns the sorted type names whose digest lists differ between old
// and current: present on one side only, different length, or different
// digests at the same position.
func Diff(old, current *Index) []string {
	var changed []string
	for t, digests := range current.digests {
		if !equal(old.digests[t], digests) {
			changed = append(changed, t)
		}
	}
	for t := range old.digests {
		if _, ok := current.digests[t]; !ok {
			changed = append(changed, t)
		}
	}
	sort.Strings(changed)
	return changed
}

func equal(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Encode writes the index as "T <type> <base64 digest>" lines, sorted by
// type, digests in order.
func Encode(w io.Writer, x *Index) error {
	bw := bufio.NewWriter(w)
	for _, t := range x.Types() {
		for _, d := range x.digests[t] {
			if _, err := fmt.Fprintf(bw, "T %s %s\n", t, base64.StdEncoding.EncodeToString(d)); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// Decode parses the format written by Encode.
func Decode(r io.Reader) (*Index, error) {
	x := New()
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 3 || fields[0] != "T" {
			return nil, fmt.Errorf("type index line %d: malformed record %q", line, text)
		}
		d, err := base64.StdEncoding.DecodeString(fields[2])
		if err != nil {
			return nil, fmt.Errorf("type index line %d: %w", line, err)
		}
		x.Put(fields[1], d)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return x, nil
}

// ReadFile reads the index persisted under dir. ok is false when there is
// no readable index.
func ReadFile(fsys fs.FileSystem, dir string) (x *Index, ok bool) {
	data, err := fsys.ReadFile(filepath.Join(dir, Path))
	if err != nil {
		return nil, false
	}
	x, err = Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	return x, true
}

// WriteFile persists the index under dir.
func WriteFile(fsys fs.FileSystem, dir string, x *Index) error {
	var buf bytes.Buffer
	if err := Encode(&buf, x); err != nil {
		return err
	}
	target := filepath.Join(dir, Path)
	if err := fsys.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	if err := fsys.WriteFile(target, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing type index: %w", err)
	}
	return nil
}
