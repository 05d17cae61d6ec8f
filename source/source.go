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

// Package source scans Java compilation units with tree-sitter. It
// extracts what the build needs to know about a source file without a
// full compiler: the package, imports, declared types with their members,
// and every type name the file mentions.
package source

import (
	"embed"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	ts "github.com/tree-sitter/go-tree-sitter"
	tsJava "github.com/tree-sitter/tree-sitter-java/bindings/go"
)

//go:embed queries/*.scm
var queryFiles embed.FS

var java = ts.NewLanguage(tsJava.Language())

var parserPool = sync.Pool{
	New: func() any {
		parser := ts.NewParser()
		if err := parser.SetLanguage(java); err != nil {
			panic("failed to set Java language: " + err.Error())
		}
		return parser
	},
}

func getParser() *ts.Parser {
	return parserPool.Get().(*ts.Parser)
}

func putParser(p *ts.Parser) {
	p.Reset()
	parserPool.Put(p)
}

type queries struct {
	header     *ts.Query
	references *ts.Query
}

var (
	loadedQueries    queries
	loadedQueriesErr error
	loadQueriesOnce  sync.Once
)

func loadQuery(name string) (*ts.Query, error) {
	data, err := queryFiles.ReadFile("queries/" + name + ".scm")
	if err != nil {
		return nil, fmt.Errorf("failed to read query %s: %w", name, err)
	}
	q, qerr := ts.NewQuery(java, string(data))
	if qerr != nil {
		return nil, fmt.Errorf("failed to parse query %s: %w", name, qerr)
	}
	return q, nil
}

func getQueries() (queries, error) {
	loadQueriesOnce.Do(func() {
		if loadedQueries.header, loadedQueriesErr = loadQuery("header"); loadedQueriesErr != nil {
			return
		}
		loadedQueries.references, loadedQueriesErr = loadQuery("references")
	})
	return loadedQueries, loadedQueriesErr
}

// Kind of a type declaration.
type Kind string

const (
	KindClass      Kind = "class"
	KindInterface  Kind = "interface"
	KindEnum       Kind = "enum"
	KindRecord     Kind = "record"
	KindAnnotation Kind = "annotation"
)

// Position is a 1-based line and column.
type Position struct {
	Line   int
	Column int
}

// Import is one import declaration.
type Import struct {
	Name     string
	Static   bool
	OnDemand bool
}

// ReferenceKind says where a type name appeared.
type ReferenceKind int

const (
	// RefType is a type use: declarations, casts, generics, `new`.
	RefType ReferenceKind = iota
	// RefReceiver is a capitalized identifier used as the target of a
	// method call or field access, usually a static member access.
	RefReceiver
	// RefAnnotation is an annotation name.
	RefAnnotation
)

// Reference is a type name as written in the source, possibly qualified.
type Reference struct {
	Name string
	Kind ReferenceKind
	Position
}

// Type is a type declaration.
type Type struct {
	Name           string
	Kind           Kind
	Modifiers      []string
	Annotations    []string
	TypeParameters []string
	// Super is the extended class; interfaces list their super
	// interfaces in Interfaces.
	Super      string
	Interfaces []string
	Fields     []Field
	Methods    []Method
	// Constants are enum constant names in declaration order.
	Constants []string
	Nested    []*Type
	Position
}

// HasModifier reports whether the declaration carries modifier m.
func (t *Type) HasModifier(m string) bool { return slices.Contains(t.Modifiers, m) }

// Field is a field, record component, or interface constant.
type Field struct {
	Name        string
	Type        string
	Modifiers   []string
	Annotations []string
	// Value is the initializer expression text.
	Value string
	Position
}

// Method is a method, constructor or annotation element. Constructors are
// named "<init>" and have an empty Type.
type Method struct {
	Name           string
	Type           string
	Params         []string
	Throws         []string
	Modifiers      []string
	Annotations    []string
	TypeParameters []string
	HasBody        bool
	Body           string
	Position
}

// HasModifier reports whether the method carries modifier m.
func (m *Method) HasModifier(mod string) bool { return slices.Contains(m.Modifiers, mod) }

// File is the scan result of one compilation unit.
type File struct {
	Package    string
	Imports    []Import
	Types      []*Type
	References []Reference
	// Errors are the positions of syntax errors and missing tokens.
	Errors []Position
}

// Parse scans Java source. Syntax errors do not fail the scan; they are
// reported in File.Errors and the recovered tree is scanned anyway.
func Parse(content []byte) (*File, error) {
	q, err := getQueries()
	if err != nil {
		return nil, err
	}

	parser := getParser()
	defer putParser(parser)

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse Java source")
	}
	defer tree.Close()

	root := tree.RootNode()
	f := &File{}
	scanHeader(f, q.header, root, content)
	scanReferences(f, q.references, root, content)
	for i := uint(0); i < root.NamedChildCount(); i++ {
		if t := scanType(root.NamedChild(i), content); t != nil {
			f.Types = append(f.Types, t)
		}
	}
	if root.HasError() {
		collectErrors(f, root)
	}
	return f, nil
}

// Package returns only the package of a compilation unit.
func Package(content []byte) (string, error) {
	f, err := Parse(content)
	if err != nil {
		return "", err
	}
	return f.Package, nil
}

func position(n *ts.Node) Position {
	p := n.StartPosition()
	return Position{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

func scanHeader(f *File, q *ts.Query, root *ts.Node, content []byte) {
	cursor := ts.NewQueryCursor()
	defer cursor.Close()
	names := q.CaptureNames()

	matches := cursor.Matches(q, root, content)
	for match := matches.Next(); match != nil; match = matches.Next() {
		for _, capture := range match.Captures {
			switch names[capture.Index] {
			case "package":
				f.Package = compact(capture.Node.Utf8Text(content))
			case "import":
				f.Imports = append(f.Imports, scanImport(&capture.Node, content))
			}
		}
	}
}

func scanImport(n *ts.Node, content []byte) Import {
	var imp Import
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		switch child.Kind() {
		case "static":
			imp.Static = true
		case "asterisk":
			imp.OnDemand = true
		case "identifier", "scoped_identifier":
			imp.Name = compact(child.Utf8Text(content))
		}
	}
	return imp
}

func scanReferences(f *File, q *ts.Query, root *ts.Node, content []byte) {
	cursor := ts.NewQueryCursor()
	defer cursor.Close()
	names := q.CaptureNames()

	matches := cursor.Matches(q, root, content)
	for match := matches.Next(); match != nil; match = matches.Next() {
		for _, capture := range match.Captures {
			node := &capture.Node
			ref := Reference{Name: compact(node.Utf8Text(content)), Position: position(node)}
			switch names[capture.Index] {
			case "type":
				// the components of a qualified name are not names themselves
				if parent := node.Parent(); parent != nil && parent.Kind() == "scoped_type_identifier" {
					continue
				}
				ref.Kind = RefType
				ref.Name = stripTypeArguments(ref.Name)
			case "receiver":
				if !startsUpper(ref.Name) {
					continue
				}
				ref.Kind = RefReceiver
			case "annotation":
				ref.Kind = RefAnnotation
			}
			f.References = append(f.References, ref)
		}
	}
}

var typeKinds = map[string]Kind{
	"class_declaration":           KindClass,
	"interface_declaration":       KindInterface,
	"enum_declaration":            KindEnum,
	"record_declaration":          KindRecord,
	"annotation_type_declaration": KindAnnotation,
}

func scanType(n *ts.Node, content []byte) *Type {
	kind, ok := typeKinds[n.Kind()]
	if !ok {
		return nil
	}
	name := n.ChildByFieldName("name")
	if name == nil {
		return nil
	}
	t := &Type{Name: name.Utf8Text(content), Kind: kind, Position: position(n)}
	t.Modifiers, t.Annotations = scanModifiers(n, content)
	t.TypeParameters = scanTypeParameters(n, content)
	if sc := n.ChildByFieldName("superclass"); sc != nil && sc.NamedChildCount() > 0 {
		t.Super = compact(sc.NamedChild(0).Utf8Text(content))
	}
	if si := n.ChildByFieldName("interfaces"); si != nil {
		t.Interfaces = typeList(si, content)
	}
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if child := n.NamedChild(i); child.Kind() == "extends_interfaces" {
			t.Interfaces = typeList(child, content)
		}
	}
	if kind == KindRecord {
		if params := n.ChildByFieldName("parameters"); params != nil {
			for _, p := range scanParams(params, content) {
				t.Fields = append(t.Fields, Field{Name: p.name, Type: p.typ, Modifiers: []string{"private", "final"}, Position: p.pos})
			}
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		scanBody(t, body, content)
	}
	return t
}

func scanBody(t *Type, body *ts.Node, content []byte) {
	for i := uint(0); i < body.NamedChildCount(); i++ {
		child := body.NamedChild(i)
		switch child.Kind() {
		case "field_declaration", "constant_declaration":
			t.Fields = append(t.Fields, scanFields(child, content)...)
		case "method_declaration", "constructor_declaration", "compact_constructor_declaration", "annotation_type_element_declaration":
			t.Methods = append(t.Methods, scanMethod(child, content))
		case "enum_constant":
			if name := child.ChildByFieldName("name"); name != nil {
				t.Constants = append(t.Constants, name.Utf8Text(content))
			}
		case "enum_body_declarations":
			scanBody(t, child, content)
		default:
			if nested := scanType(child, content); nested != nil {
				t.Nested = append(t.Nested, nested)
			}
		}
	}
}

func scanModifiers(n *ts.Node, content []byte) (mods, annotations []string) {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		m := n.NamedChild(i)
		if m.Kind() != "modifiers" {
			continue
		}
		for j := uint(0); j < m.ChildCount(); j++ {
			c := m.Child(j)
			switch {
			case c.Kind() == "marker_annotation" || c.Kind() == "annotation":
				if name := c.ChildByFieldName("name"); name != nil {
					annotations = append(annotations, compact(name.Utf8Text(content)))
				}
			case !c.IsNamed():
				mods = append(mods, c.Utf8Text(content))
			}
		}
	}
	return mods, annotations
}

func scanTypeParameters(n *ts.Node, content []byte) []string {
	tp := n.ChildByFieldName("type_parameters")
	if tp == nil {
		return nil
	}
	var out []string
	for i := uint(0); i < tp.NamedChildCount(); i++ {
		p := tp.NamedChild(i)
		if p.Kind() != "type_parameter" {
			continue
		}
		for j := uint(0); j < p.NamedChildCount(); j++ {
			if id := p.NamedChild(j); id.Kind() == "type_identifier" || id.Kind() == "identifier" {
				out = append(out, id.Utf8Text(content))
				break
			}
		}
	}
	return out
}

// typeList returns the types of a super_interfaces, extends_interfaces or
// throws node.
func typeList(n *ts.Node, content []byte) []string {
	var out []string
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if child.Kind() == "type_list" {
			out = append(out, typeList(child, content)...)
			continue
		}
		out = append(out, compact(child.Utf8Text(content)))
	}
	return out
}

func scanFields(n *ts.Node, content []byte) []Field {
	mods, annotations := scanModifiers(n, content)
	typ := ""
	if t := n.ChildByFieldName("type"); t != nil {
		typ = compact(t.Utf8Text(content))
	}
	var out []Field
	for i := uint(0); i < n.NamedChildCount(); i++ {
		d := n.NamedChild(i)
		if d.Kind() != "variable_declarator" {
			continue
		}
		f := Field{Type: typ, Modifiers: mods, Annotations: annotations, Position: position(d)}
		if name := d.ChildByFieldName("name"); name != nil {
			f.Name = name.Utf8Text(content)
		}
		if dims := d.ChildByFieldName("dimensions"); dims != nil {
			f.Type += compact(dims.Utf8Text(content))
		}
		if v := d.ChildByFieldName("value"); v != nil {
			f.Value = v.Utf8Text(content)
		}
		out = append(out, f)
	}
	return out
}

type param struct {
	name string
	typ  string
	pos  Position
}

func scanParams(n *ts.Node, content []byte) []param {
	var out []param
	for i := uint(0); i < n.NamedChildCount(); i++ {
		p := n.NamedChild(i)
		switch p.Kind() {
		case "formal_parameter":
			typ := ""
			if t := p.ChildByFieldName("type"); t != nil {
				typ = compact(t.Utf8Text(content))
			}
			if dims := p.ChildByFieldName("dimensions"); dims != nil {
				typ += compact(dims.Utf8Text(content))
			}
			name := ""
			if id := p.ChildByFieldName("name"); id != nil {
				name = id.Utf8Text(content)
			}
			out = append(out, param{name: name, typ: typ, pos: position(p)})
		case "spread_parameter":
			var typ, name string
			for j := uint(0); j < p.NamedChildCount(); j++ {
				c := p.NamedChild(j)
				switch c.Kind() {
				case "modifiers":
				case "variable_declarator":
					if id := c.ChildByFieldName("name"); id != nil {
						name = id.Utf8Text(content)
					}
				default:
					if typ == "" {
						typ = compact(c.Utf8Text(content))
					}
				}
			}
			out = append(out, param{name: name, typ: typ + "[]", pos: position(p)})
		}
	}
	return out
}

func scanMethod(n *ts.Node, content []byte) Method {
	m := Method{Position: position(n)}
	m.Modifiers, m.Annotations = scanModifiers(n, content)
	m.TypeParameters = scanTypeParameters(n, content)
	switch n.Kind() {
	case "constructor_declaration", "compact_constructor_declaration":
		m.Name = "<init>"
	default:
		if name := n.ChildByFieldName("name"); name != nil {
			m.Name = name.Utf8Text(content)
		}
		if t := n.ChildByFieldName("type"); t != nil {
			m.Type = compact(t.Utf8Text(content))
		}
		if dims := n.ChildByFieldName("dimensions"); dims != nil {
			m.Type += compact(dims.Utf8Text(content))
		}
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		for _, p := range scanParams(params, content) {
			m.Params = append(m.Params, p.typ)
		}
	}
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if c := n.NamedChild(i); c.Kind() == "throws" {
			m.Throws = typeList(c, content)
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		m.HasBody = true
		m.Body = body.Utf8Text(content)
	}
	return m
}

func collectErrors(f *File, n *ts.Node) {
	if n.IsError() || n.IsMissing() {
		f.Errors = append(f.Errors, position(n))
		return
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if child := n.Child(i); child.HasError() || child.IsMissing() {
			collectErrors(f, child)
		}
	}
}

// compact removes whitespace from a name or type as written.
func compact(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// Erase splits a type as written into its erased element type and array
// dimensions: "List<String>[]" is ("List", 1) and "int..." is ("int", 1).
func Erase(typ string) (base string, dims int) {
	typ = stripTypeArguments(compact(typ))
	if strings.HasSuffix(typ, "...") {
		typ = strings.TrimSuffix(typ, "...")
		dims++
	}
	for strings.HasSuffix(typ, "[]") {
		typ = strings.TrimSuffix(typ, "[]")
		dims++
	}
	return typ, dims
}

// stripTypeArguments turns "Map<K,V>.Entry" into "Map.Entry".
func stripTypeArguments(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '<':
			depth++
		case r == '>':
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
