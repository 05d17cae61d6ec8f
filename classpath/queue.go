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
	"sort"
	"sync"
)

// CompileQueue exposes the units of the current drain round as source
// answers. The snapshot is taken at construction and on every Reset.
type CompileQueue struct {
	snapshot func() []Unit

	mu       sync.RWMutex
	units    map[string]*Unit
	packages []string
}

// NewCompileQueue creates a queue entry reading units from snapshot.
func NewCompileQueue(snapshot func() []Unit) *CompileQueue {
	q := &CompileQueue{snapshot: snapshot}
	q.Reset()
	return q
}

func (q *CompileQueue) Reset() {
	units := q.snapshot()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.units = make(map[string]*Unit, len(units))
	seen := make(map[string]bool)
	q.packages = q.packages[:0]
	for i := range units {
		u := units[i]
		q.units[u.QualifiedName()] = &u
		if u.Package != "" && !seen[u.Package] {
			seen[u.Package] = true
			q.packages = append(q.packages, u.Package)
			for pkg, _ := Split(u.Package); pkg != "" && !seen[pkg]; pkg, _ = Split(pkg) {
				seen[pkg] = true
				q.packages = append(q.packages, pkg)
			}
		}
	}
	sort.Strings(q.packages)
}

func (q *CompileQueue) PackageNames() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]string(nil), q.packages...)
}

func (q *CompileQueue) FindType(pkg, typeName string) *Answer {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if u, ok := q.units[Qualify(pkg, outerType(typeName))]; ok {
		return &Answer{Unit: u}
	}
	return nil
}

func (q *CompileQueue) Description() string { return "compile queue" }
