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

// Package classfile reads JVM class files and computes the structural digest
// used to decide whether a recompiled type changed shape.
//
// Only the parts of the format that matter to callers of a type are
// retained: the constant pool, access flags, supertypes, member signatures,
// generic signatures, thrown exceptions, constant values, annotations and
// the nesting attributes. Code and debug attributes are skipped.
package classfile

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Access flags.
const (
	AccPublic     = 0x0001
	AccPrivate    = 0x0002
	AccProtected  = 0x0004
	AccStatic     = 0x0008
	AccFinal      = 0x0010
	AccSuper      = 0x0020
	AccVolatile   = 0x0040
	AccBridge     = 0x0040
	AccTransient  = 0x0080
	AccVarargs    = 0x0080
	AccNative     = 0x0100
	AccInterface  = 0x0200
	AccAbstract   = 0x0400
	AccStrict     = 0x0800
	AccSynthetic  = 0x1000
	AccAnnotation = 0x2000
	AccEnum       = 0x4000
)

const magic = 0xCAFEBABE

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// FormatError reports a malformed class file.
type FormatError struct {
	Offset int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("class format error at offset %d: %s", e.Offset, e.Reason)
}

type constant struct {
	tag  uint8
	utf8 string
	a, b uint16
	bits uint64
}

// ClassFile is the parsed form of a class file.
type ClassFile struct {
	Major, Minor uint16
	Access       uint16

	// Names are in internal form, e.g. "java/lang/Object".
	ThisClass  string
	SuperClass string
	Interfaces []string

	Fields  []Member
	Methods []Member

	Signature       string
	SourceFile      string
	Deprecated      bool
	Annotations     []Annotation
	TypeAnnotations []TypeAnnotation
	InnerClasses    []InnerClass

	// EnclosingClass is set when the EnclosingMethod attribute is present.
	EnclosingClass string

	pool []constant
}

// Member is a field or method.
type Member struct {
	Access     uint16
	Name       string
	Descriptor string
	Signature  string
	Deprecated bool

	// Constant is the rendered ConstantValue of a field, or empty.
	Constant   string
	Exceptions []string

	Annotations          []Annotation
	ParameterAnnotations [][]Annotation
	TypeAnnotations      []TypeAnnotation
}

// IsSynthetic reports whether the compiler generated the member.
func (m *Member) IsSynthetic() bool { return m.Access&AccSynthetic != 0 }

// InnerClass is one InnerClasses attribute entry. Outer and Name are empty
// for local and anonymous classes respectively.
type InnerClass struct {
	Inner  string
	Outer  string
	Name   string
	Access uint16
}

// Annotation is a parsed annotation. Type is a field descriptor.
type Annotation struct {
	Type     string
	Elements []Element
}

// Element is one name/value pair of an annotation.
type Element struct {
	Name  string
	Value ElementValue
}

// ElementValue is an annotation element value. Tag selects which of the
// remaining fields is meaningful.
type ElementValue struct {
	Tag        byte
	Const      string
	EnumType   string
	Annotation *Annotation
	Array      []ElementValue
}

// TypeAnnotation is an annotation on a type use.
type TypeAnnotation struct {
	TargetType uint8
	TargetInfo []byte
	TypePath   []byte
	Annotation Annotation
}

// Parse decodes a class file.
func Parse(data []byte) (*ClassFile, error) {
	r := &reader{data: data}
	if m := r.u4(); r.err == nil && m != magic {
		return nil, &FormatError{Offset: 0, Reason: fmt.Sprintf("bad magic 0x%08x", m)}
	}
	cf := &ClassFile{}
	cf.Minor = r.u2()
	cf.Major = r.u2()
	cf.readPool(r)
	cf.Access = r.u2()
	cf.ThisClass = cf.className(r, r.u2())
	if idx := r.u2(); idx != 0 {
		cf.SuperClass = cf.className(r, idx)
	}
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		cf.Interfaces = append(cf.Interfaces, cf.className(r, r.u2()))
	}
	cf.Fields = cf.readMembers(r)
	cf.Methods = cf.readMembers(r)
	cf.readAttributes(r, func(name string, ar *reader) {
		switch name {
		case "Signature":
			cf.Signature = cf.utf8(ar, ar.u2())
		case "SourceFile":
			cf.SourceFile = cf.utf8(ar, ar.u2())
		case "Deprecated":
			cf.Deprecated = true
		case "RuntimeVisibleAnnotations", "RuntimeInvisibleAnnotations":
			cf.Annotations = append(cf.Annotations, cf.readAnnotations(ar)...)
		case "RuntimeVisibleTypeAnnotations", "RuntimeInvisibleTypeAnnotations":
			cf.TypeAnnotations = append(cf.TypeAnnotations, cf.readTypeAnnotations(ar)...)
		case "InnerClasses":
			count := int(ar.u2())
			for i := 0; i < count && ar.err == nil; i++ {
				var ic InnerClass
				ic.Inner = cf.className(ar, ar.u2())
				if idx := ar.u2(); idx != 0 {
					ic.Outer = cf.className(ar, idx)
				}
				if idx := ar.u2(); idx != 0 {
					ic.Name = cf.utf8(ar, idx)
				}
				ic.Access = ar.u2()
				cf.InnerClasses = append(cf.InnerClasses, ic)
			}
		case "EnclosingMethod":
			cf.EnclosingClass = cf.className(ar, ar.u2())
		}
	})
	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(data) {
		return nil, &FormatError{Offset: r.off, Reason: "trailing bytes after class file"}
	}
	return cf, nil
}

func (cf *ClassFile) readPool(r *reader) {
	count := int(r.u2())
	if r.err == nil && count == 0 {
		r.fail("empty constant pool")
		return
	}
	cf.pool = make([]constant, count)
	for i := 1; i < count && r.err == nil; i++ {
		c := constant{tag: r.u1()}
		switch c.tag {
		case tagUtf8:
			raw := r.bytes(int(r.u2()))
			if r.err != nil {
				return
			}
			s, err := decodeModifiedUTF8(raw)
			if err != nil {
				r.fail("constant %d: %v", i, err)
				return
			}
			c.utf8 = s
		case tagInteger, tagFloat:
			c.bits = uint64(r.u4())
		case tagLong, tagDouble:
			c.bits = uint64(r.u4())<<32 | uint64(r.u4())
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			c.a = r.u2()
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
			c.a = r.u2()
			c.b = r.u2()
		case tagMethodHandle:
			c.a = uint16(r.u1())
			c.b = r.u2()
		default:
			r.fail("constant %d: unknown tag %d", i, c.tag)
			return
		}
		cf.pool[i] = c
		if c.tag == tagLong || c.tag == tagDouble {
			i++
		}
	}
}

func (cf *ClassFile) entry(r *reader, idx uint16, tag uint8) *constant {
	if int(idx) <= 0 || int(idx) >= len(cf.pool) || cf.pool[idx].tag != tag {
		r.fail("constant %d is not of tag %d", idx, tag)
		return nil
	}
	return &cf.pool[idx]
}

func (cf *ClassFile) utf8(r *reader, idx uint16) string {
	if c := cf.entry(r, idx, tagUtf8); c != nil {
		return c.utf8
	}
	return ""
}

func (cf *ClassFile) className(r *reader, idx uint16) string {
	if c := cf.entry(r, idx, tagClass); c != nil {
		return cf.utf8(r, c.a)
	}
	return ""
}

// constantString renders a loadable constant for digesting and display.
func (cf *ClassFile) constantString(r *reader, idx uint16) string {
	if int(idx) <= 0 || int(idx) >= len(cf.pool) {
		r.fail("constant index %d out of range", idx)
		return ""
	}
	c := cf.pool[idx]
	switch c.tag {
	case tagInteger:
		return "I" + strconv.FormatInt(int64(int32(uint32(c.bits))), 10)
	case tagFloat:
		return "F" + strconv.FormatFloat(float64(math.Float32frombits(uint32(c.bits))), 'g', -1, 32)
	case tagLong:
		return "J" + strconv.FormatInt(int64(c.bits), 10)
	case tagDouble:
		return "D" + strconv.FormatFloat(math.Float64frombits(c.bits), 'g', -1, 64)
	case tagString:
		return "s" + cf.utf8(r, c.a)
	case tagUtf8:
		return "s" + c.utf8
	}
	r.fail("constant %d is not loadable", idx)
	return ""
}

func (cf *ClassFile) readAttributes(r *reader, fn func(name string, ar *reader)) {
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		name := cf.utf8(r, r.u2())
		body := r.bytes(int(r.u4()))
		if r.err != nil {
			return
		}
		ar := &reader{data: body}
		fn(name, ar)
		if ar.err != nil {
			r.fail("attribute %s: %v", name, ar.err)
		}
	}
}

func (cf *ClassFile) readMembers(r *reader) []Member {
	n := int(r.u2())
	members := make([]Member, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		m := Member{Access: r.u2()}
		m.Name = cf.utf8(r, r.u2())
		m.Descriptor = cf.utf8(r, r.u2())
		cf.readAttributes(r, func(name string, ar *reader) {
			switch name {
			case "Signature":
				m.Signature = cf.utf8(ar, ar.u2())
			case "Deprecated":
				m.Deprecated = true
			case "ConstantValue":
				m.Constant = cf.constantString(ar, ar.u2())
			case "Exceptions":
				count := int(ar.u2())
				for j := 0; j < count && ar.err == nil; j++ {
					m.Exceptions = append(m.Exceptions, cf.className(ar, ar.u2()))
				}
			case "RuntimeVisibleAnnotations", "RuntimeInvisibleAnnotations":
				m.Annotations = append(m.Annotations, cf.readAnnotations(ar)...)
			case "RuntimeVisibleParameterAnnotations", "RuntimeInvisibleParameterAnnotations":
				count := int(ar.u1())
				for j := 0; j < count && ar.err == nil; j++ {
					anns := cf.readAnnotations(ar)
					if j < len(m.ParameterAnnotations) {
						m.ParameterAnnotations[j] = append(m.ParameterAnnotations[j], anns...)
					} else {
						m.ParameterAnnotations = append(m.ParameterAnnotations, anns)
					}
				}
			case "RuntimeVisibleTypeAnnotations", "RuntimeInvisibleTypeAnnotations":
				m.TypeAnnotations = append(m.TypeAnnotations, cf.readTypeAnnotations(ar)...)
			}
		})
		members = append(members, m)
	}
	return members
}

func (cf *ClassFile) readAnnotations(r *reader) []Annotation {
	n := int(r.u2())
	anns := make([]Annotation, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		anns = append(anns, cf.readAnnotation(r))
	}
	return anns
}

func (cf *ClassFile) readAnnotation(r *reader) Annotation {
	a := Annotation{Type: cf.utf8(r, r.u2())}
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		name := cf.utf8(r, r.u2())
		a.Elements = append(a.Elements, Element{Name: name, Value: cf.readElementValue(r)})
	}
	return a
}

func (cf *ClassFile) readElementValue(r *reader) ElementValue {
	v := ElementValue{Tag: r.u1()}
	switch v.Tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's':
		v.Const = cf.constantString(r, r.u2())
	case 'e':
		v.EnumType = cf.utf8(r, r.u2())
		v.Const = cf.utf8(r, r.u2())
	case 'c':
		v.Const = cf.utf8(r, r.u2())
	case '@':
		a := cf.readAnnotation(r)
		v.Annotation = &a
	case '[':
		n := int(r.u2())
		for i := 0; i < n && r.err == nil; i++ {
			v.Array = append(v.Array, cf.readElementValue(r))
		}
	default:
		r.fail("unknown element value tag %q", v.Tag)
	}
	return v
}

func (cf *ClassFile) readTypeAnnotations(r *reader) []TypeAnnotation {
	n := int(r.u2())
	anns := make([]TypeAnnotation, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		ta := TypeAnnotation{TargetType: r.u1()}
		start := r.off
		switch ta.TargetType {
		case 0x00, 0x01, 0x16:
			r.skip(1)
		case 0x10, 0x17, 0x42, 0x43, 0x44, 0x45, 0x46:
			r.skip(2)
		case 0x11, 0x12:
			r.skip(2)
		case 0x13, 0x14, 0x15:
		case 0x40, 0x41:
			r.skip(int(r.u2()) * 6)
		case 0x47, 0x48, 0x49, 0x4A, 0x4B:
			r.skip(3)
		default:
			r.fail("unknown type annotation target 0x%02x", ta.TargetType)
			return anns
		}
		if r.err != nil {
			return anns
		}
		ta.TargetInfo = r.data[start:r.off]
		pathLen := int(r.u1())
		ta.TypePath = r.bytes(pathLen * 2)
		ta.Annotation = cf.readAnnotation(r)
		anns = append(anns, ta)
	}
	return anns
}

// Name returns the binary name of the class in dotted form, e.g.
// "java.util.Map$Entry".
func (cf *ClassFile) Name() string {
	return BinaryName(cf.ThisClass)
}

// IsAnonymous reports whether the class is an anonymous class.
func (cf *ClassFile) IsAnonymous() bool {
	if ic := cf.self(); ic != nil {
		return ic.Name == ""
	}
	return false
}

// IsLocal reports whether the class is declared in a method body.
func (cf *ClassFile) IsLocal() bool {
	if ic := cf.self(); ic != nil {
		return ic.Outer == "" && ic.Name != ""
	}
	return cf.EnclosingClass != ""
}

// MemberTypes returns the InnerClasses entries of types directly nested in
// this class.
func (cf *ClassFile) MemberTypes() []InnerClass {
	var out []InnerClass
	for _, ic := range cf.InnerClasses {
		if ic.Outer == cf.ThisClass && ic.Inner != cf.ThisClass && ic.Name != "" {
			out = append(out, ic)
		}
	}
	return out
}

func (cf *ClassFile) self() *InnerClass {
	for i := range cf.InnerClasses {
		if cf.InnerClasses[i].Inner == cf.ThisClass {
			return &cf.InnerClasses[i]
		}
	}
	return nil
}

// BinaryName converts an internal name to its dotted binary form.
func BinaryName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

// InternalName converts a dotted binary name to internal form.
func InternalName(binary string) string {
	return strings.ReplaceAll(binary, ".", "/")
}
