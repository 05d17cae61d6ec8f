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

// Package classgen writes minimal but valid class files. It backs the test
// compiler and the fixtures of the class-file, index and classpath tests.
package classgen

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Class describes the class file to write. Names are in internal form.
type Class struct {
	Name       string
	Access     uint16
	Super      string
	Interfaces []string
	Signature  string
	SourceFile string
	Deprecated bool

	// Annotations are field descriptors of marker annotations.
	Annotations []string

	Fields  []Field
	Methods []Method
	Inner   []Inner

	// Enclosing sets the EnclosingMethod attribute.
	Enclosing string

	// References adds class constants without any other use, the way a
	// method body would.
	References []string
}

// Field is a field declaration. Constant may be an int32, int64, float64
// or string.
type Field struct {
	Access      uint16
	Name        string
	Descriptor  string
	Signature   string
	Constant    any
	Deprecated  bool
	Annotations []string
}

// Method is a method declaration. A non-nil Code is emitted as the body
// of a Code attribute.
type Method struct {
	Access      uint16
	Name        string
	Descriptor  string
	Signature   string
	Exceptions  []string
	Code        []byte
	Annotations []string
}

// Inner is one InnerClasses entry. Empty Outer or Name encode local and
// anonymous classes.
type Inner struct {
	Inner  string
	Outer  string
	Name   string
	Access uint16
}

type builder struct {
	pool  bytes.Buffer
	count uint16
	index map[string]uint16
}

func (b *builder) add(key string, slots uint16, write func(w *bytes.Buffer)) uint16 {
	if idx, ok := b.index[key]; ok {
		return idx
	}
	idx := b.count
	write(&b.pool)
	b.count += slots
	b.index[key] = idx
	return idx
}

func (b *builder) utf8(s string) uint16 {
	return b.add("U"+s, 1, func(w *bytes.Buffer) {
		w.WriteByte(1)
		u16(w, uint16(len(s)))
		w.WriteString(s)
	})
}

func (b *builder) class(name string) uint16 {
	n := b.utf8(name)
	return b.add("C"+name, 1, func(w *bytes.Buffer) {
		w.WriteByte(7)
		u16(w, n)
	})
}

func (b *builder) constant(v any) uint16 {
	switch c := v.(type) {
	case int32:
		return b.add(fmt.Sprintf("I%d", c), 1, func(w *bytes.Buffer) {
			w.WriteByte(3)
			u32(w, uint32(c))
		})
	case int:
		return b.constant(int32(c))
	case int64:
		return b.add(fmt.Sprintf("J%d", c), 2, func(w *bytes.Buffer) {
			w.WriteByte(5)
			u32(w, uint32(uint64(c)>>32))
			u32(w, uint32(c))
		})
	case float64:
		bits := math.Float64bits(c)
		return b.add(fmt.Sprintf("D%x", bits), 2, func(w *bytes.Buffer) {
			w.WriteByte(6)
			u32(w, uint32(bits>>32))
			u32(w, uint32(bits))
		})
	case string:
		s := b.utf8(c)
		return b.add("S"+c, 1, func(w *bytes.Buffer) {
			w.WriteByte(8)
			u16(w, s)
		})
	}
	panic(fmt.Sprintf("classgen: unsupported constant %T", v))
}

// Bytes encodes the class file.
func (c *Class) Bytes() []byte {
	b := &builder{count: 1, index: make(map[string]uint16)}
	var body bytes.Buffer

	access := c.Access
	if access == 0 {
		access = 0x0001 | 0x0020
	}
	u16(&body, access)
	u16(&body, b.class(c.Name))
	super := c.Super
	if super == "" && c.Name != "java/lang/Object" {
		super = "java/lang/Object"
	}
	if super == "" {
		u16(&body, 0)
	} else {
		u16(&body, b.class(super))
	}
	u16(&body, uint16(len(c.Interfaces)))
	for _, i := range c.Interfaces {
		u16(&body, b.class(i))
	}

	u16(&body, uint16(len(c.Fields)))
	for _, f := range c.Fields {
		u16(&body, f.Access)
		u16(&body, b.utf8(f.Name))
		u16(&body, b.utf8(f.Descriptor))
		var attrs []attribute
		if f.Signature != "" {
			attrs = append(attrs, b.u2Attr("Signature", b.utf8(f.Signature)))
		}
		if f.Constant != nil {
			attrs = append(attrs, b.u2Attr("ConstantValue", b.constant(f.Constant)))
		}
		if f.Deprecated {
			attrs = append(attrs, attribute{name: b.utf8("Deprecated")})
		}
		if len(f.Annotations) > 0 {
			attrs = append(attrs, b.annotations(f.Annotations))
		}
		writeAttrs(&body, attrs)
	}

	u16(&body, uint16(len(c.Methods)))
	for _, m := range c.Methods {
		u16(&body, m.Access)
		u16(&body, b.utf8(m.Name))
		u16(&body, b.utf8(m.Descriptor))
		var attrs []attribute
		if m.Code != nil {
			var code bytes.Buffer
			u16(&code, 8)
			u16(&code, 8)
			u32(&code, uint32(len(m.Code)))
			code.Write(m.Code)
			u16(&code, 0)
			u16(&code, 0)
			attrs = append(attrs, attribute{name: b.utf8("Code"), data: code.Bytes()})
		}
		if m.Signature != "" {
			attrs = append(attrs, b.u2Attr("Signature", b.utf8(m.Signature)))
		}
		if len(m.Exceptions) > 0 {
			var ex bytes.Buffer
			u16(&ex, uint16(len(m.Exceptions)))
			for _, e := range m.Exceptions {
				u16(&ex, b.class(e))
			}
			attrs = append(attrs, attribute{name: b.utf8("Exceptions"), data: ex.Bytes()})
		}
		if len(m.Annotations) > 0 {
			attrs = append(attrs, b.annotations(m.Annotations))
		}
		writeAttrs(&body, attrs)
	}

	var attrs []attribute
	if c.SourceFile != "" {
		attrs = append(attrs, b.u2Attr("SourceFile", b.utf8(c.SourceFile)))
	}
	if c.Signature != "" {
		attrs = append(attrs, b.u2Attr("Signature", b.utf8(c.Signature)))
	}
	if c.Deprecated {
		attrs = append(attrs, attribute{name: b.utf8("Deprecated")})
	}
	if len(c.Annotations) > 0 {
		attrs = append(attrs, b.annotations(c.Annotations))
	}
	if len(c.Inner) > 0 {
		var ic bytes.Buffer
		u16(&ic, uint16(len(c.Inner)))
		for _, in := range c.Inner {
			u16(&ic, b.class(in.Inner))
			if in.Outer == "" {
				u16(&ic, 0)
			} else {
				u16(&ic, b.class(in.Outer))
			}
			if in.Name == "" {
				u16(&ic, 0)
			} else {
				u16(&ic, b.utf8(in.Name))
			}
			u16(&ic, in.Access)
		}
		attrs = append(attrs, attribute{name: b.utf8("InnerClasses"), data: ic.Bytes()})
	}
	if c.Enclosing != "" {
		var em bytes.Buffer
		u16(&em, b.class(c.Enclosing))
		u16(&em, 0)
		attrs = append(attrs, attribute{name: b.utf8("EnclosingMethod"), data: em.Bytes()})
	}
	for _, r := range c.References {
		b.class(r)
	}
	writeAttrs(&body, attrs)

	var out bytes.Buffer
	u32(&out, 0xCAFEBABE)
	u16(&out, 0)
	u16(&out, 52)
	u16(&out, b.count)
	out.Write(b.pool.Bytes())
	out.Write(body.Bytes())
	return out.Bytes()
}

type attribute struct {
	name uint16
	data []byte
}

func (b *builder) u2Attr(name string, v uint16) attribute {
	var buf bytes.Buffer
	u16(&buf, v)
	return attribute{name: b.utf8(name), data: buf.Bytes()}
}

func (b *builder) annotations(types []string) attribute {
	var buf bytes.Buffer
	u16(&buf, uint16(len(types)))
	for _, t := range types {
		u16(&buf, b.utf8(t))
		u16(&buf, 0)
	}
	return attribute{name: b.utf8("RuntimeVisibleAnnotations"), data: buf.Bytes()}
}

func writeAttrs(w *bytes.Buffer, attrs []attribute) {
	u16(w, uint16(len(attrs)))
	for _, a := range attrs {
		u16(w, a.name)
		u32(w, uint32(len(a.data)))
		w.Write(a.data)
	}
}

func u16(w *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.Write(b[:])
}

func u32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.Write(b[:])
}
