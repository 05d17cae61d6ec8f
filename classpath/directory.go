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

package classpath

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"bennypowers.dev/javinc/fs"
)

// dirView is a cached view of a directory tree. Lookups verify every path
// component against directory listings so that a case-insensitive
// filesystem cannot resolve "Foo" to "foo".
type dirView struct {
	fsys fs.FileSystem
	root string

	mu       sync.Mutex
	listings map[string]map[string]bool
	packages []string
}

func newDirView(fsys fs.FileSystem, root string) *dirView {
	v := &dirView{fsys: fsys, root: root}
	v.reset()
	return v
}

func (v *dirView) reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listings = make(map[string]map[string]bool)
	v.packages = nil
	v.scanLocked("")
	sort.Strings(v.packages)
}

func (v *dirView) scanLocked(rel string) {
	entries, err := v.fsys.ReadDir(filepath.Join(v.root, rel))
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		child := e.Name()
		if rel != "" {
			child = rel + "/" + e.Name()
		}
		v.packages = append(v.packages, strings.ReplaceAll(child, "/", "."))
		v.scanLocked(child)
	}
}

func (v *dirView) listingLocked(rel string) map[string]bool {
	if l, ok := v.listings[rel]; ok {
		return l
	}
	l := make(map[string]bool)
	if entries, err := v.fsys.ReadDir(filepath.Join(v.root, rel)); err == nil {
		for _, e := range entries {
			l[e.Name()] = true
		}
	}
	v.listings[rel] = l
	return l
}

// file returns the absolute path of rel when it exists with exactly the
// requested case.
func (v *dirView) file(rel string) (string, bool) {
	full := filepath.Join(v.root, rel)
	if !v.fsys.Exists(full) {
		return "", false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	parts := strings.Split(rel, "/")
	dir := ""
	for _, part := range parts {
		if !v.listingLocked(dir)[part] {
			return "", false
		}
		if dir == "" {
			dir = part
		} else {
			dir += "/" + part
		}
	}
	return full, true
}

func (v *dirView) packageNames() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.packages
}

func relPath(pkg, name string) string {
	if pkg == "" {
		return name
	}
	return packageDir(pkg) + "/" + name
}

// ClassDirectory is a dependency directory of compiled classes.
type ClassDirectory struct {
	view     *dirView
	exported map[string]bool
}

// NewClassDirectory creates a class-directory entry. A non-nil exported
// set restricts every package outside it.
func NewClassDirectory(fsys fs.FileSystem, dir string, exported map[string]bool) *ClassDirectory {
	return &ClassDirectory{view: newDirView(fsys, dir), exported: exported}
}

func (d *ClassDirectory) PackageNames() []string { return d.view.packageNames() }

func (d *ClassDirectory) FindType(pkg, typeName string) *Answer {
	path, ok := d.view.file(relPath(pkg, typeName+".class"))
	if !ok {
		return nil
	}
	data, err := d.view.fsys.ReadFile(path)
	if err != nil {
		return nil
	}
	return &Answer{Binary: data, Restriction: exportRestriction(d.exported, pkg, typeName, d.view.root)}
}

func (d *ClassDirectory) Description() string { return "class directory " + d.view.root }

func (d *ClassDirectory) Location() string { return d.view.root }

// SourceDirectory is a source root. Nested type names resolve to the
// source of their outermost type.
type SourceDirectory struct {
	view *dirView
}

// NewSourceDirectory creates a source-directory entry.
func NewSourceDirectory(fsys fs.FileSystem, dir string) *SourceDirectory {
	return &SourceDirectory{view: newDirView(fsys, dir)}
}

func (d *SourceDirectory) PackageNames() []string { return d.view.packageNames() }

func (d *SourceDirectory) FindType(pkg, typeName string) *Answer {
	main := outerType(typeName)
	path, ok := d.view.file(relPath(pkg, main+".java"))
	if !ok {
		return nil
	}
	return &Answer{Unit: &Unit{Path: path, Package: pkg, MainType: main}}
}

func (d *SourceDirectory) Reset() { d.view.reset() }

func (d *SourceDirectory) Description() string { return "source directory " + d.view.root }

func (d *SourceDirectory) Location() string { return d.view.root }

// OutputDirectory is the project's own class output. Classes written in
// the current session become visible after Reset. Hidden outputs are never
// answered, so types being recompiled resolve from source instead.
type OutputDirectory struct {
	view *dirView

	mu     sync.Mutex
	hidden map[string]bool
}

// NewOutputDirectory creates an output-directory entry.
func NewOutputDirectory(fsys fs.FileSystem, dir string) *OutputDirectory {
	return &OutputDirectory{view: newDirView(fsys, dir), hidden: make(map[string]bool)}
}

// Hide replaces the set of hidden output paths.
func (d *OutputDirectory) Hide(paths []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hidden = make(map[string]bool, len(paths))
	for _, p := range paths {
		d.hidden[filepath.Clean(p)] = true
	}
}

func (d *OutputDirectory) PackageNames() []string { return d.view.packageNames() }

func (d *OutputDirectory) FindType(pkg, typeName string) *Answer {
	path, ok := d.view.file(relPath(pkg, typeName+".class"))
	if !ok {
		return nil
	}
	d.mu.Lock()
	hidden := d.hidden[path]
	d.mu.Unlock()
	if hidden {
		return nil
	}
	data, err := d.view.fsys.ReadFile(path)
	if err != nil {
		return nil
	}
	return &Answer{Binary: data}
}

func (d *OutputDirectory) Reset() { d.view.reset() }

func (d *OutputDirectory) Description() string { return "output directory " + d.view.root }

func (d *OutputDirectory) Location() string { return d.view.root }

func exportRestriction(exported map[string]bool, pkg, typeName, location string) *Restriction {
	if exported == nil || exported[pkg] {
		return nil
	}
	return &Restriction{Message: fmt.Sprintf("The type '%s' is not exported by '%s'", Qualify(pkg, typeName), location)}
}
