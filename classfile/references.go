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

package classfile

import (
	"sort"
	"strings"
)

// ReferencedTypes returns the binary names of all classes the class file
// refers to, excluding itself, sorted. Array and primitive descriptors are
// reduced to their element class.
func (cf *ClassFile) ReferencedTypes() []string {
	seen := make(map[string]bool)
	add := func(internal string) {
		if internal == "" || internal == cf.ThisClass {
			return
		}
		seen[BinaryName(internal)] = true
	}
	addDescriptor := func(desc string) {
		for _, n := range descriptorClasses(desc) {
			add(n)
		}
	}

	for _, c := range cf.pool {
		switch c.tag {
		case tagClass:
			name := cf.rawUTF8(c.a)
			if strings.HasPrefix(name, "[") {
				addDescriptor(name)
			} else {
				add(name)
			}
		case tagNameAndType:
			addDescriptor(cf.rawUTF8(c.b))
		case tagMethodType:
			addDescriptor(cf.rawUTF8(c.a))
		}
	}
	for _, m := range cf.Fields {
		addDescriptor(m.Descriptor)
	}
	for _, m := range cf.Methods {
		addDescriptor(m.Descriptor)
	}
	var annotations func(anns []Annotation)
	annotations = func(anns []Annotation) {
		for _, a := range anns {
			addDescriptor(a.Type)
			for _, e := range a.Elements {
				if e.Value.Annotation != nil {
					annotations([]Annotation{*e.Value.Annotation})
				}
			}
		}
	}
	annotations(cf.Annotations)
	for _, m := range cf.Fields {
		annotations(m.Annotations)
	}
	for _, m := range cf.Methods {
		annotations(m.Annotations)
	}

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (cf *ClassFile) rawUTF8(idx uint16) string {
	if int(idx) < len(cf.pool) && cf.pool[idx].tag == tagUtf8 {
		return cf.pool[idx].utf8
	}
	return ""
}

// descriptorClasses extracts the internal class names from a field or
// method descriptor such as "(ILjava/lang/String;)[Lp/A;".
func descriptorClasses(desc string) []string {
	var out []string
	for {
		i := strings.IndexByte(desc, 'L')
		if i < 0 {
			return out
		}
		j := strings.IndexByte(desc[i:], ';')
		if j < 0 {
			return out
		}
		out = append(out, desc[i+1:i+j])
		desc = desc[i+j+1:]
	}
}
