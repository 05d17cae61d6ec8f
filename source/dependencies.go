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

package source

import (
	"slices"
	"strings"
)

// Dependencies are the names a compilation unit may depend on, judged
// from its source alone. Names that resolve nowhere yet are included, so
// a unit that failed to compile is recompiled once one of them appears.
type Dependencies struct {
	// Qualified are dotted candidate type names.
	Qualified []string
	// Simple are the simple names the unit mentions.
	Simple []string
	// Packages are the unit's own package and its on-demand imports.
	Packages []string
}

// Dependencies returns every candidate a name in f could resolve to:
// single-type imports, nested names below an imported type, the own
// package, java.lang and each on-demand import.
func (f *File) Dependencies() Dependencies {
	qualified := make(map[string]bool)
	simple := make(map[string]bool)
	packages := make(map[string]bool)
	if f.Package != "" {
		packages[f.Package] = true
	}

	single := make(map[string]string)
	var onDemand []string
	for _, imp := range f.Imports {
		switch {
		case imp.Static && imp.OnDemand:
			qualified[imp.Name] = true
		case imp.Static:
			if i := strings.LastIndexByte(imp.Name, '.'); i > 0 {
				qualified[imp.Name[:i]] = true
			}
		case imp.OnDemand:
			onDemand = append(onDemand, imp.Name)
			packages[imp.Name] = true
		default:
			qualified[imp.Name] = true
			name := lastSegment(imp.Name)
			simple[name] = true
			single[name] = imp.Name
		}
	}

	qualify := func(name string) {
		if q, ok := single[name]; ok {
			qualified[q] = true
			return
		}
		qualified[join(f.Package, name)] = true
		qualified["java.lang."+name] = true
		for _, pkg := range onDemand {
			qualified[pkg+"."+name] = true
		}
	}
	for _, ref := range f.References {
		first, rest, nested := strings.Cut(ref.Name, ".")
		simple[first] = true
		if !nested {
			qualify(ref.Name)
			continue
		}
		simple[lastSegment(ref.Name)] = true
		qualified[ref.Name] = true
		if q, ok := single[first]; ok {
			qualified[q+"."+rest] = true
		}
	}

	return Dependencies{
		Qualified: sorted(qualified),
		Simple:    sorted(simple),
		Packages:  sorted(packages),
	}
}

func lastSegment(name string) string {
	return name[strings.LastIndexByte(name, '.')+1:]
}

func join(pkg, name string) string {
	if pkg == "" {
		return name
	}
	return pkg + "." + name
}

func sorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
