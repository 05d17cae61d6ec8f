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
	"path"
	"sort"
	"strings"

	"bennypowers.dev/javinc/fs"
	"bennypowers.dev/javinc/internal/archive"
)

// Jar is an archive entry. The archive stays open until Close.
type Jar struct {
	path     string
	archive  *archive.Archive
	packages []string
	exported map[string]bool
}

// OpenJar opens the archive at p. A nil exported set means every package
// is visible; ReadExports computes it from the archive itself.
func OpenJar(fsys fs.FileSystem, p string, exported map[string]bool) (*Jar, error) {
	a, err := archive.Open(fsys, p)
	if err != nil {
		return nil, err
	}
	j := &Jar{path: p, archive: a, exported: exported}
	j.packages = archivePackages(a)
	return j, nil
}

// archivePackages collects every slash-delimited directory prefix of every
// entry name.
func archivePackages(a *archive.Archive) []string {
	seen := make(map[string]bool)
	for _, f := range a.File {
		dir := path.Dir(strings.TrimSuffix(f.Name, "/"))
		if strings.HasSuffix(f.Name, "/") {
			dir = strings.TrimSuffix(f.Name, "/")
		}
		for dir != "." && dir != "/" && dir != "" && !seen[dir] {
			seen[dir] = true
			dir = path.Dir(dir)
		}
	}
	out := make([]string, 0, len(seen))
	for dir := range seen {
		out = append(out, strings.ReplaceAll(dir, "/", "."))
	}
	sort.Strings(out)
	return out
}

func (j *Jar) PackageNames() []string { return j.packages }

func (j *Jar) FindType(pkg, typeName string) *Answer {
	data, ok, err := j.archive.ReadEntry(relPath(pkg, typeName+".class"))
	if !ok || err != nil {
		return nil
	}
	return &Answer{Binary: data, Restriction: exportRestriction(j.exported, pkg, typeName, j.path)}
}

// Read returns the content of an arbitrary archive entry.
func (j *Jar) Read(name string) ([]byte, bool) {
	data, ok, err := j.archive.ReadEntry(name)
	return data, ok && err == nil
}

func (j *Jar) Description() string { return "jar " + j.path }

func (j *Jar) Location() string { return j.path }

// Close releases the archive.
func (j *Jar) Close() error { return j.archive.Close() }
