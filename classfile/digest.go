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
	"crypto/sha1"
	"encoding/binary"
	"hash"
	"sort"
)

const (
	typeModifiers   = AccPublic | AccPrivate | AccProtected | AccStatic | AccFinal | AccInterface | AccAbstract | AccAnnotation | AccEnum
	fieldModifiers  = AccPublic | AccPrivate | AccProtected | AccStatic | AccFinal | AccVolatile | AccTransient | AccEnum
	methodModifiers = AccPublic | AccPrivate | AccProtected | AccStatic | AccFinal | AccVarargs | AccNative | AccAbstract

	tagDeprecated = 1 << 0
)

// Digest computes the structural digest of a class file. Two class files
// with equal digests are interchangeable for code compiled against them:
// the digest covers modifiers, supertypes, generic signatures, member
// types, non-synthetic fields and methods with their constant values and
// thrown exceptions, and annotations. Method bodies, debug information and
// declaration order are not covered.
//
// Digest returns nil without error for anonymous and local classes; callers
// treat every change to such a class as significant.
func Digest(data []byte) ([]byte, error) {
	cf, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cf.Digest(), nil
}

// Digest computes the structural digest of the parsed class.
func (cf *ClassFile) Digest() []byte {
	if cf.IsAnonymous() || cf.IsLocal() {
		return nil
	}
	d := &digester{h: sha1.New()}

	access := cf.Access
	if ic := cf.self(); ic != nil {
		access = ic.Access
	}
	d.u32(uint32(access & typeModifiers))

	var tags uint32
	if cf.Deprecated {
		tags |= tagDeprecated
	}
	d.u32(tags)

	d.annotations(cf.Annotations)
	d.typeAnnotations(cf.TypeAnnotations)
	d.str(cf.Signature)
	d.str(cf.SuperClass)

	d.u32(uint32(len(cf.Interfaces)))
	for _, i := range cf.Interfaces {
		d.str(i)
	}

	members := cf.MemberTypes()
	sort.Slice(members, func(i, j int) bool { return members[i].Inner < members[j].Inner })
	d.u32(uint32(len(members)))
	for _, m := range members {
		d.str(m.Inner)
		d.u32(uint32(m.Access & typeModifiers))
	}

	fields := visible(cf.Fields, false)
	d.u32(uint32(len(fields)))
	for _, f := range fields {
		d.str(f.Signature)
		d.u32(uint32(f.Access & fieldModifiers))
		d.bool(f.Deprecated)
		d.annotations(f.Annotations)
		d.typeAnnotations(f.TypeAnnotations)
		d.str(f.Name)
		d.str(f.Descriptor)
		d.str(f.Constant)
	}

	methods := visible(cf.Methods, true)
	d.u32(uint32(len(methods)))
	for _, m := range methods {
		d.str(m.Signature)
		d.u32(uint32(m.Access & methodModifiers))
		d.bool(m.Deprecated)
		d.annotations(m.Annotations)
		d.u32(uint32(len(m.ParameterAnnotations)))
		for _, p := range m.ParameterAnnotations {
			d.annotations(p)
		}
		d.typeAnnotations(m.TypeAnnotations)
		d.str(m.Name)
		d.str(m.Descriptor)
		exceptions := append([]string(nil), m.Exceptions...)
		sort.Strings(exceptions)
		d.u32(uint32(len(exceptions)))
		for _, e := range exceptions {
			d.str(e)
		}
	}

	return d.h.Sum(nil)
}

// visible returns the members that are part of the type's shape, sorted by
// name and descriptor.
func visible(members []Member, methods bool) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if m.IsSynthetic() {
			continue
		}
		if methods && m.Name == "<clinit>" {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Descriptor < out[j].Descriptor
	})
	return out
}

// signatureTarget reports whether a type annotation target affects callers.
// Targets inside method bodies (local variables through method reference
// type arguments) do not.
func signatureTarget(target uint8) bool {
	return target < 0x40 || target > 0x4B
}

// digester writes length-prefixed values so adjacent fields cannot collide.
type digester struct {
	h   hash.Hash
	buf [4]byte
}

func (d *digester) u32(v uint32) {
	binary.BigEndian.PutUint32(d.buf[:], v)
	d.h.Write(d.buf[:])
}

func (d *digester) bool(v bool) {
	if v {
		d.u32(1)
	} else {
		d.u32(0)
	}
}

func (d *digester) str(s string) {
	d.u32(uint32(len(s)))
	d.h.Write([]byte(s))
}

func (d *digester) annotations(anns []Annotation) {
	d.u32(uint32(len(anns)))
	for i := range anns {
		d.annotation(&anns[i])
	}
}

func (d *digester) annotation(a *Annotation) {
	d.str(a.Type)
	d.u32(uint32(len(a.Elements)))
	for _, e := range a.Elements {
		d.str(e.Name)
		d.elementValue(&e.Value)
	}
}

func (d *digester) elementValue(v *ElementValue) {
	d.u32(uint32(v.Tag))
	switch v.Tag {
	case '@':
		d.annotation(v.Annotation)
	case '[':
		d.u32(uint32(len(v.Array)))
		for i := range v.Array {
			d.elementValue(&v.Array[i])
		}
	default:
		d.str(v.EnumType)
		d.str(v.Const)
	}
}

func (d *digester) typeAnnotations(anns []TypeAnnotation) {
	var kept []*TypeAnnotation
	for i := range anns {
		if signatureTarget(anns[i].TargetType) {
			kept = append(kept, &anns[i])
		}
	}
	d.u32(uint32(len(kept)))
	for _, ta := range kept {
		d.u32(uint32(ta.TargetType))
		d.str(string(ta.TargetInfo))
		d.str(string(ta.TypePath))
		d.annotation(&ta.Annotation)
	}
}
