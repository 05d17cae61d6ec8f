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

// Package testcompiler is a small Java front-end for driver tests. It
// resolves every type name a unit mentions through the name environment,
// reports the ones it cannot resolve, and emits class files whose shape
// follows the declarations: bodies end up in Code attributes, so editing
// a body changes the bytes but not the structural digest.
//
// It understands declarations only. Expressions are not type checked.
package testcompiler

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"bennypowers.dev/javinc/classfile"
	"bennypowers.dev/javinc/classpath"
	"bennypowers.dev/javinc/compiler"
	"bennypowers.dev/javinc/fs"
	"bennypowers.dev/javinc/internal/classgen"
	"bennypowers.dev/javinc/source"
)

// javaLang is resolvable even when no platform library is on the
// classpath.
var javaLang = map[string]bool{
	"Object": true, "String": true, "Integer": true, "Long": true, "Short": true,
	"Byte": true, "Character": true, "Boolean": true, "Double": true, "Float": true,
	"Number": true, "Math": true, "System": true, "Class": true, "Enum": true,
	"Record": true, "Iterable": true, "Comparable": true, "Runnable": true,
	"Thread": true, "CharSequence": true, "StringBuilder": true, "Void": true,
	"Throwable": true, "Exception": true, "RuntimeException": true, "Error": true,
	"IllegalArgumentException": true, "IllegalStateException": true,
	"UnsupportedOperationException": true, "NullPointerException": true,
	"Override": true, "Deprecated": true, "SuppressWarnings": true,
	"FunctionalInterface": true, "SafeVarargs": true,
}

// sourceOnly annotations are not written to class files.
var sourceOnly = map[string]bool{
	"Override": true, "SuppressWarnings": true, "FunctionalInterface": true, "SafeVarargs": true,
}

var primitives = map[string]string{
	"void": "V", "boolean": "Z", "byte": "B", "char": "C", "short": "S",
	"int": "I", "long": "J", "float": "F", "double": "D",
}

// Compiler implements compiler.Compiler over a FileSystem.
type Compiler struct {
	fsys fs.FileSystem

	mu     sync.Mutex
	rounds [][]string
}

// New creates a test compiler reading sources from fsys.
func New(fsys fs.FileSystem) *Compiler {
	return &Compiler{fsys: fsys}
}

// Rounds returns the unit paths of every Compile call, in order,
// including units the compiler pulled in itself.
func (c *Compiler) Rounds() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]string, len(c.rounds))
	for i, r := range c.rounds {
		out[i] = slices.Clone(r)
	}
	return out
}

// Compiled returns every unit path compiled so far.
func (c *Compiler) Compiled() []string {
	var out []string
	for _, r := range c.Rounds() {
		out = append(out, r...)
	}
	slices.Sort(out)
	return out
}

// Reset forgets recorded rounds.
func (c *Compiler) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rounds = nil
}

func (c *Compiler) Compile(ctx context.Context, req compiler.Request, requestor compiler.Requestor) error {
	batch := slices.Clone(req.Units)
	seen := make(map[string]bool, len(batch))
	for _, u := range batch {
		seen[u.Path] = true
	}
	var round []string
	defer func() {
		c.mu.Lock()
		c.rounds = append(c.rounds, round)
		c.mu.Unlock()
	}()

	for i := 0; i < len(batch); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		u := batch[i]
		round = append(round, u.Path)
		res, extra, err := c.compileUnit(u, req.Env)
		if err != nil {
			return err
		}
		for _, e := range extra {
			if !seen[e.Path] {
				seen[e.Path] = true
				batch = append(batch, e)
			}
		}
		if err := requestor.AcceptResult(res); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileUnit(u classpath.Unit, env compiler.NameEnvironment) (*compiler.Result, []classpath.Unit, error) {
	res := &compiler.Result{Unit: u}
	data, err := c.fsys.ReadFile(u.Path)
	if err != nil {
		res.Problems = append(res.Problems, compiler.Problem{Message: "cannot read " + u.Path, Severity: compiler.SeverityError})
		return res, nil, nil
	}
	f, err := source.Parse(data)
	if err != nil {
		return nil, nil, err
	}
	for _, pos := range f.Errors {
		res.Problems = append(res.Problems, compiler.Problem{
			Line: pos.Line, Column: pos.Column, Message: "Syntax error", Severity: compiler.SeverityError,
		})
	}

	s := newScope(u, f, env, res)
	s.checkImports()
	for _, ref := range f.References {
		s.resolve(ref.Name, ref.Position)
	}
	for _, t := range f.Types {
		s.emit(t, "", false)
	}
	res.QualifiedReferences = sortedKeys(s.qualified)
	res.SimpleNameReferences = sortedKeys(s.simple)
	res.PackageReferences = f.Dependencies().Packages
	return res, s.extra, nil
}

type resolution struct {
	internal string
	ok       bool
}

type scope struct {
	unit classpath.Unit
	file *source.File
	env  compiler.NameEnvironment
	res  *compiler.Result

	local     map[string]string
	typeVars  map[string]bool
	cache     map[string]resolution
	qualified map[string]bool
	simple    map[string]bool
	extra     []classpath.Unit

	// restricted holds names whose access restriction was reported
	restricted map[string]bool
}

func newScope(u classpath.Unit, f *source.File, env compiler.NameEnvironment, res *compiler.Result) *scope {
	s := &scope{
		unit:       u,
		file:       f,
		env:        env,
		res:        res,
		local:      make(map[string]string),
		typeVars:   make(map[string]bool),
		cache:      make(map[string]resolution),
		qualified:  make(map[string]bool),
		simple:     make(map[string]bool),
		restricted: make(map[string]bool),
	}
	prefix := classfile.InternalName(u.Package)
	if prefix != "" {
		prefix += "/"
	}
	var declare func(t *source.Type, outer string)
	declare = func(t *source.Type, outer string) {
		name := prefix + t.Name
		if outer != "" {
			name = outer + "$" + t.Name
		}
		if _, dup := s.local[t.Name]; !dup {
			s.local[t.Name] = name
		}
		for _, tv := range t.TypeParameters {
			s.typeVars[tv] = true
		}
		for _, m := range t.Methods {
			for _, tv := range m.TypeParameters {
				s.typeVars[tv] = true
			}
		}
		for _, n := range t.Nested {
			declare(n, name)
		}
	}
	for _, t := range f.Types {
		declare(t, "")
	}
	return s
}

func (s *scope) problem(pos source.Position, format string, args ...any) {
	s.res.Problems = append(s.res.Problems, compiler.Problem{
		Line:     pos.Line,
		Column:   pos.Column,
		Message:  fmt.Sprintf(format, args...),
		Severity: compiler.SeverityError,
	})
}

func (s *scope) checkImports() {
	for _, imp := range s.file.Imports {
		if imp.OnDemand && !imp.Static && !s.knownPackage(imp.Name) {
			s.problem(source.Position{}, "The import %s cannot be resolved", imp.Name)
			continue
		}
		if imp.Static || imp.OnDemand {
			continue
		}
		if _, ok := s.lookupQualified(imp.Name); !ok {
			s.problem(source.Position{}, "The import %s cannot be resolved", imp.Name)
			s.simple[classpath.SimpleName(imp.Name)] = true
		}
	}
}

// knownPackage reports whether an on-demand import names a package or a
// type. The JDK is not on the environment, so java.* is always known.
func (s *scope) knownPackage(name string) bool {
	if s.env == nil || strings.HasPrefix(name, "java.") {
		return true
	}
	if parent, last := classpath.Split(name); s.env.IsPackage(parent, last) {
		return true
	}
	_, ok := s.lookupQualified(name)
	return ok
}

// resolve maps a type name as written to an internal name, recording the
// reference and reporting names that do not resolve.
func (s *scope) resolve(name string, pos source.Position) (string, bool) {
	if r, ok := s.cache[name]; ok {
		return r.internal, r.ok
	}
	internal, ok := s.lookup(name, pos)
	s.cache[name] = resolution{internal: internal, ok: ok}
	if _, primitive := primitives[name]; primitive || s.typeVars[name] {
		return internal, ok
	}

	if strings.Contains(name, ".") {
		s.simple[classpath.SimpleName(name)] = true
	} else {
		s.simple[name] = true
	}
	if !ok {
		s.problem(pos, "%s cannot be resolved to a type", name)
		return "", false
	}
	if internal != "" {
		s.qualified[classfile.BinaryName(internal)] = true
	}
	return internal, true
}

func (s *scope) lookup(name string, pos source.Position) (string, bool) {
	if _, ok := primitives[name]; ok {
		return "", true
	}
	if s.typeVars[name] {
		return "java/lang/Object", true
	}
	if first, rest, dotted := strings.Cut(name, "."); dotted {
		if outer, ok := s.lookupSimple(first, pos); ok && outer != "" {
			return outer + "$" + strings.ReplaceAll(rest, ".", "$"), true
		}
		return s.lookupQualifiedAt(name, pos)
	}
	return s.lookupSimple(name, pos)
}

func (s *scope) lookupSimple(name string, pos source.Position) (string, bool) {
	if internal, ok := s.local[name]; ok {
		return internal, true
	}
	for _, imp := range s.file.Imports {
		if !imp.Static && !imp.OnDemand && classpath.SimpleName(imp.Name) == name {
			return s.lookupQualifiedAt(imp.Name, pos)
		}
	}
	if internal, ok := s.find(s.unit.Package, name, pos); ok {
		return internal, true
	}
	for _, imp := range s.file.Imports {
		if imp.OnDemand && !imp.Static {
			if internal, ok := s.find(imp.Name, name, pos); ok {
				return internal, true
			}
		}
	}
	if internal, ok := s.find("java.lang", name, pos); ok {
		return internal, true
	}
	if javaLang[name] {
		return "java/lang/" + name, true
	}
	return "", false
}

func (s *scope) lookupQualified(name string) (string, bool) {
	return s.lookupQualifiedAt(name, source.Position{})
}

// lookupQualifiedAt tries the longest package prefix first, so "a.b.C.D"
// finds type C$D in package a.b before a top-level D in package a.b.C.
func (s *scope) lookupQualifiedAt(name string, pos source.Position) (string, bool) {
	parts := strings.Split(name, ".")
	for i := len(parts) - 1; i >= 0; i-- {
		pkg := strings.Join(parts[:i], ".")
		typeName := strings.Join(parts[i:], "$")
		if internal, ok := s.find(pkg, typeName, pos); ok {
			return internal, true
		}
	}
	if pkg, simple := classpath.Split(name); pkg == "java.lang" && javaLang[simple] {
		return "java/lang/" + simple, true
	}
	return "", false
}

func (s *scope) find(pkg, typeName string, pos source.Position) (string, bool) {
	if s.env == nil {
		return "", false
	}
	answer := s.env.FindType(pkg, typeName)
	if answer == nil {
		return "", false
	}
	if qualified := classpath.Qualify(pkg, typeName); answer.Restriction != nil && !s.restricted[qualified] {
		s.restricted[qualified] = true
		s.problem(pos, "%s", answer.Restriction.Message)
	}
	if answer.Unit != nil && answer.Unit.Path != s.unit.Path {
		s.extra = append(s.extra, *answer.Unit)
	}
	return classfile.InternalName(classpath.Qualify(pkg, typeName)), true
}

// descriptor returns the field descriptor of a type as written.
func (s *scope) descriptor(typ string) string {
	base, dims := source.Erase(typ)
	prefix := strings.Repeat("[", dims)
	if p, ok := primitives[base]; ok {
		return prefix + p
	}
	internal, ok := s.resolve(base, source.Position{})
	if !ok || internal == "" {
		internal = "java/lang/Object"
	}
	return prefix + "L" + internal + ";"
}

func (s *scope) typeName(typ string) (string, bool) {
	base, _ := source.Erase(typ)
	internal, ok := s.resolve(base, source.Position{})
	return internal, ok && internal != ""
}

const (
	accPublic     = 0x0001
	accPrivate    = 0x0002
	accProtected  = 0x0004
	accStatic     = 0x0008
	accFinal      = 0x0010
	accSuper      = 0x0020
	accInterface  = 0x0200
	accAbstract   = 0x0400
	accAnnotation = 0x2000
	accEnum       = 0x4000
)

var modifierFlags = map[string]uint16{
	"public": accPublic, "private": accPrivate, "protected": accProtected,
	"static": accStatic, "final": accFinal, "abstract": accAbstract,
	"synchronized": 0x0020, "volatile": 0x0040, "transient": 0x0080, "native": 0x0100,
}

func flags(mods []string) uint16 {
	var f uint16
	for _, m := range mods {
		f |= modifierFlags[m]
	}
	return f
}

func kindFlags(k source.Kind) uint16 {
	switch k {
	case source.KindInterface:
		return accInterface | accAbstract
	case source.KindAnnotation:
		return accAnnotation | accInterface | accAbstract
	case source.KindEnum:
		return accEnum | accFinal
	case source.KindRecord:
		return accFinal
	}
	return 0
}

func (s *scope) annotations(names []string) (descs []string, deprecated bool) {
	for _, a := range names {
		simple := classpath.SimpleName(a)
		if sourceOnly[simple] {
			continue
		}
		if simple == "Deprecated" {
			deprecated = true
		}
		if internal, ok := s.typeName(a); ok {
			descs = append(descs, "L"+internal+";")
		}
	}
	return descs, deprecated
}

// emit writes the class file of t and its nested types. It returns the
// internal name and the declared access flags of t.
func (s *scope) emit(t *source.Type, outer string, inInterface bool) (string, uint16) {
	name := s.local[t.Name]
	if outer != "" {
		name = outer + "$" + t.Name
	}
	cls := &classgen.Class{Name: name, SourceFile: filepath.Base(s.unit.Path)}
	isInterface := t.Kind == source.KindInterface || t.Kind == source.KindAnnotation

	declared := flags(t.Modifiers) | kindFlags(t.Kind)
	if inInterface {
		declared |= accPublic | accStatic
	}
	if t.Kind != source.KindClass && outer != "" {
		declared |= accStatic
	}
	access := declared &^ (accPrivate | accProtected | accStatic)
	if declared&accProtected != 0 {
		access |= accPublic
	}
	if !isInterface {
		access |= accSuper
	}
	cls.Access = access

	switch {
	case t.Super != "":
		if internal, ok := s.typeName(t.Super); ok {
			cls.Super = internal
		}
	case t.Kind == source.KindEnum:
		cls.Super = "java/lang/Enum"
	case t.Kind == source.KindRecord:
		cls.Super = "java/lang/Record"
	}
	for _, i := range t.Interfaces {
		if internal, ok := s.typeName(i); ok {
			cls.Interfaces = append(cls.Interfaces, internal)
		}
	}
	if t.Kind == source.KindAnnotation {
		cls.Interfaces = append(cls.Interfaces, "java/lang/annotation/Annotation")
	}
	cls.Annotations, cls.Deprecated = s.annotations(t.Annotations)
	if len(t.TypeParameters) > 0 {
		cls.Signature = s.classSignature(t, cls)
	}

	for _, c := range t.Constants {
		cls.Fields = append(cls.Fields, classgen.Field{
			Access:     accPublic | accStatic | accFinal | accEnum,
			Name:       c,
			Descriptor: "L" + name + ";",
		})
	}
	for _, f := range t.Fields {
		cls.Fields = append(cls.Fields, s.field(f, isInterface))
	}

	hasCtor := false
	for _, m := range t.Methods {
		if m.Name == "<init>" {
			hasCtor = true
		}
		cls.Methods = append(cls.Methods, s.method(m, t, isInterface))
	}
	switch {
	case isInterface || hasCtor:
	case t.Kind == source.KindRecord:
		var params strings.Builder
		for _, f := range t.Fields {
			params.WriteString(s.descriptor(f.Type))
		}
		cls.Methods = append(cls.Methods, classgen.Method{
			Access: access & accPublic, Name: "<init>", Descriptor: "(" + params.String() + ")V", Code: []byte{},
		})
	default:
		ctorAccess := access & accPublic
		if t.Kind == source.KindEnum {
			ctorAccess = accPrivate
		}
		cls.Methods = append(cls.Methods, classgen.Method{
			Access: ctorAccess, Name: "<init>", Descriptor: "()V", Code: []byte{},
		})
	}
	if t.Kind == source.KindRecord {
		for _, f := range t.Fields {
			cls.Methods = append(cls.Methods, classgen.Method{
				Access: accPublic, Name: f.Name, Descriptor: "()" + s.descriptor(f.Type), Code: []byte{},
			})
		}
	}

	if outer != "" {
		cls.Inner = append(cls.Inner, classgen.Inner{Inner: name, Outer: outer, Name: t.Name, Access: declared})
	}
	for _, n := range t.Nested {
		nested, nestedDeclared := s.emit(n, name, isInterface)
		cls.Inner = append(cls.Inner, classgen.Inner{Inner: nested, Outer: name, Name: n.Name, Access: nestedDeclared})
	}

	for q := range s.qualified {
		if internal := classfile.InternalName(q); internal != name {
			cls.References = append(cls.References, internal)
		}
	}
	slices.Sort(cls.References)

	s.res.Classes = append(s.res.Classes, compiler.ClassOutput{Name: classfile.BinaryName(name), Bytes: cls.Bytes()})
	return name, declared
}

func (s *scope) classSignature(t *source.Type, cls *classgen.Class) string {
	var b strings.Builder
	b.WriteByte('<')
	for _, tv := range t.TypeParameters {
		b.WriteString(tv + ":Ljava/lang/Object;")
	}
	b.WriteByte('>')
	super := cls.Super
	if super == "" {
		super = "java/lang/Object"
	}
	b.WriteString("L" + super + ";")
	for _, i := range cls.Interfaces {
		b.WriteString("L" + i + ";")
	}
	return b.String()
}

func (s *scope) field(f source.Field, inInterface bool) classgen.Field {
	access := flags(f.Modifiers)
	if inInterface {
		access |= accPublic | accStatic | accFinal
	}
	out := classgen.Field{Access: access, Name: f.Name, Descriptor: s.descriptor(f.Type)}
	out.Annotations, out.Deprecated = s.annotations(f.Annotations)
	if access&(accStatic|accFinal) == accStatic|accFinal {
		out.Constant = constant(out.Descriptor, f.Value)
	}
	return out
}

// constant evaluates simple literal initializers.
func constant(desc, value string) any {
	value = strings.TrimSpace(value)
	switch desc {
	case "I", "S", "B", "C", "Z":
		if value == "true" {
			return int32(1)
		}
		if value == "false" {
			return int32(0)
		}
		if n, err := strconv.ParseInt(value, 0, 32); err == nil {
			return int32(n)
		}
	case "J":
		if n, err := strconv.ParseInt(strings.TrimRight(value, "lL"), 0, 64); err == nil {
			return n
		}
	case "D":
		if f, err := strconv.ParseFloat(strings.TrimRight(value, "dD"), 64); err == nil {
			return f
		}
	case "Ljava/lang/String;":
		if s, err := strconv.Unquote(value); err == nil {
			return s
		}
	}
	return nil
}

func (s *scope) method(m source.Method, t *source.Type, inInterface bool) classgen.Method {
	access := flags(m.Modifiers)
	if inInterface {
		access |= accPublic
		if !m.HasBody {
			access |= accAbstract
		}
	}
	var desc strings.Builder
	desc.WriteByte('(')
	for _, p := range m.Params {
		desc.WriteString(s.descriptor(p))
	}
	desc.WriteByte(')')
	if m.Name == "<init>" {
		desc.WriteByte('V')
	} else {
		desc.WriteString(s.descriptor(m.Type))
	}
	out := classgen.Method{Access: access, Name: m.Name, Descriptor: desc.String()}
	for _, e := range m.Throws {
		if internal, ok := s.typeName(e); ok {
			out.Exceptions = append(out.Exceptions, internal)
		}
	}
	out.Annotations, _ = s.annotations(m.Annotations)
	if m.HasBody {
		out.Code = []byte(m.Body)
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
