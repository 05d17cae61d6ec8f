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

// Package classpath resolves type names against an ordered list of
// classpath entries: dependency class directories and jars, source
// directories, the project's output directory and the compile queue.
//
// Package names are dotted ("java.util"); the default package is "".
// Type names passed to FindType are simple binary names relative to the
// package, e.g. "Map$Entry".
package classpath

import (
	"errors"
	"io"
	"slices"
	"strings"
)

// Unit is a source compilation unit.
type Unit struct {
	// Path is the absolute path of the source file.
	Path string
	// Package is the dotted package the unit declares.
	Package string
	// MainType is the simple name of the type named after the file.
	MainType string
}

// QualifiedName returns the dotted name of the unit's main type.
func (u *Unit) QualifiedName() string {
	return Qualify(u.Package, u.MainType)
}

// Restriction marks an answer that exists but should not be used when an
// unrestricted answer is available.
type Restriction struct {
	Message string
}

// Answer is the result of a type lookup: either class bytes or a source
// unit, possibly restricted.
type Answer struct {
	Binary      []byte
	Unit        *Unit
	Restriction *Restriction
}

// IgnoreIfBetter reports whether a later, better answer should replace
// this one.
func (a *Answer) IgnoreIfBetter() bool {
	return a.Restriction != nil
}

// IsBetter reports whether a should be preferred over other.
func (a *Answer) IsBetter(other *Answer) bool {
	if other == nil {
		return true
	}
	return a.Restriction == nil && other.Restriction != nil
}

// Entry is one element of the classpath.
type Entry interface {
	// PackageNames returns the dotted packages the entry provides.
	PackageNames() []string
	// FindType looks up typeName in pkg and returns nil when absent.
	FindType(pkg, typeName string) *Answer
	// Description identifies the entry in logs.
	Description() string
}

// MutableEntry is an entry whose backing storage changes during a compile.
// Reset discards cached listings and recomputes the package index.
type MutableEntry interface {
	Entry
	Reset()
}

// Located is implemented by entries backed by a single file or directory.
type Located interface {
	Location() string
}

// Classpath is an ordered list of entries with a package index.
type Classpath struct {
	entries  []Entry
	packages map[string][]Entry
}

// New builds a classpath. Entry order is lookup order.
func New(entries ...Entry) *Classpath {
	c := &Classpath{entries: slices.Clone(entries)}
	c.index()
	return c
}

func (c *Classpath) index() {
	c.packages = make(map[string][]Entry)
	for _, e := range c.entries {
		for _, pkg := range e.PackageNames() {
			c.packages[pkg] = append(c.packages[pkg], e)
		}
	}
}

// FindType resolves typeName in pkg. The first unrestricted answer wins;
// otherwise the first restricted answer is returned. The default package
// consults every entry.
func (c *Classpath) FindType(pkg, typeName string) *Answer {
	candidates := c.packages[pkg]
	if pkg == "" {
		candidates = c.entries
	}
	var suggested *Answer
	for _, e := range candidates {
		answer := e.FindType(pkg, typeName)
		if answer == nil {
			continue
		}
		if !answer.IgnoreIfBetter() {
			return answer
		}
		if answer.IsBetter(suggested) {
			suggested = answer
		}
	}
	return suggested
}

// FindQualified resolves a dotted name such as "p.Outer$Inner" by splitting
// at the last dot.
func (c *Classpath) FindQualified(name string) *Answer {
	pkg, typeName := Split(name)
	return c.FindType(pkg, typeName)
}

// IsPackage reports whether parent.name is a known package.
func (c *Classpath) IsPackage(parent, name string) bool {
	_, ok := c.packages[Qualify(parent, name)]
	return ok
}

// Reset resets every mutable entry and rebuilds the package index.
func (c *Classpath) Reset() {
	for _, e := range c.entries {
		if m, ok := e.(MutableEntry); ok {
			m.Reset()
		}
	}
	c.index()
}

// Entries returns the entries in lookup order.
func (c *Classpath) Entries() []Entry {
	return c.entries
}

// Locations returns the paths of located entries in order.
func (c *Classpath) Locations() []string {
	var out []string
	for _, e := range c.entries {
		if l, ok := e.(Located); ok && l.Location() != "" {
			out = append(out, l.Location())
		}
	}
	return out
}

// Close closes every entry holding resources.
func (c *Classpath) Close() error {
	var errs []error
	for _, e := range c.entries {
		if cl, ok := e.(io.Closer); ok {
			errs = append(errs, cl.Close())
		}
	}
	return errors.Join(errs...)
}

// Qualify joins a package and a name.
func Qualify(pkg, name string) string {
	if pkg == "" {
		return name
	}
	return pkg + "." + name
}

// Split splits a dotted binary name into package and type name.
func Split(name string) (pkg, typeName string) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// SimpleName returns the part of a dotted binary name after the last dot.
func SimpleName(name string) string {
	_, s := Split(name)
	return s
}

// outerType strips nested type suffixes: "A$B$C" becomes "A".
func outerType(typeName string) string {
	if i := strings.IndexByte(typeName, '$'); i > 0 {
		return typeName[:i]
	}
	return typeName
}

func packageDir(pkg string) string {
	return strings.ReplaceAll(pkg, ".", "/")
}
