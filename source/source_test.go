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

package source_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/javinc/source"
)

const sample = `package com.example.app;

import java.util.List;
import java.util.*;
import static java.util.Collections.emptyList;

/** Docs. */
@Deprecated
public abstract class Service<T> extends Base implements Runnable, java.io.Serializable {
  public static final int LIMIT = 10;
  private List<String> names, aliases[];

  public Service(Config config) throws java.io.IOException {
    super(config);
  }

  @Override
  public void run() {
    Helper.assist(names);
  }

  protected abstract T make(int a, String... rest);

  public static class Inner {
    void touch() {}
  }

  enum Mode { FAST, SLOW; int weight() { return 1; } }
}
`

func TestParse(t *testing.T) {
	f, err := source.Parse([]byte(sample))
	require.NoError(t, err)
	assert.Empty(t, f.Errors)

	assert.Equal(t, "com.example.app", f.Package)
	assert.Equal(t, []source.Import{
		{Name: "java.util.List"},
		{Name: "java.util", OnDemand: true},
		{Name: "java.util.Collections.emptyList", Static: true},
	}, f.Imports)

	require.Len(t, f.Types, 1)
	svc := f.Types[0]
	assert.Equal(t, "Service", svc.Name)
	assert.Equal(t, source.KindClass, svc.Kind)
	assert.Equal(t, []string{"public", "abstract"}, svc.Modifiers)
	assert.Equal(t, []string{"Deprecated"}, svc.Annotations)
	assert.Equal(t, []string{"T"}, svc.TypeParameters)
	assert.Equal(t, "Base", svc.Super)
	assert.Equal(t, []string{"Runnable", "java.io.Serializable"}, svc.Interfaces)
	assert.Equal(t, 8, svc.Line, "declarations start at their annotations")

	require.Len(t, svc.Fields, 3)
	assert.Equal(t, source.Field{
		Name: "LIMIT", Type: "int", Value: "10",
		Modifiers: []string{"public", "static", "final"},
		Position:  svc.Fields[0].Position,
	}, svc.Fields[0])
	assert.Equal(t, "List<String>", svc.Fields[1].Type)
	assert.Equal(t, "List<String>[]", svc.Fields[2].Type)

	require.Len(t, svc.Methods, 3)
	ctor, run, factory := svc.Methods[0], svc.Methods[1], svc.Methods[2]
	assert.Equal(t, "<init>", ctor.Name)
	assert.Equal(t, []string{"Config"}, ctor.Params)
	assert.Equal(t, []string{"java.io.IOException"}, ctor.Throws)
	assert.Equal(t, "run", run.Name)
	assert.Equal(t, "void", run.Type)
	assert.Equal(t, []string{"Override"}, run.Annotations)
	assert.True(t, run.HasBody)
	assert.Contains(t, run.Body, "Helper.assist")
	assert.False(t, factory.HasBody)
	assert.True(t, factory.HasModifier("abstract"))
	assert.Equal(t, []string{"int", "String[]"}, factory.Params)

	require.Len(t, svc.Nested, 2)
	assert.Equal(t, "Inner", svc.Nested[0].Name)
	assert.True(t, svc.Nested[0].HasModifier("static"))
	mode := svc.Nested[1]
	assert.Equal(t, source.KindEnum, mode.Kind)
	assert.Equal(t, []string{"FAST", "SLOW"}, mode.Constants)
	require.Len(t, mode.Methods, 1)
	assert.Equal(t, "weight", mode.Methods[0].Name)
}

func TestReferences(t *testing.T) {
	f, err := source.Parse([]byte(sample))
	require.NoError(t, err)

	byKind := map[source.ReferenceKind][]string{}
	for _, r := range f.References {
		byKind[r.Kind] = append(byKind[r.Kind], r.Name)
	}
	types := byKind[source.RefType]
	for _, want := range []string{"Base", "Runnable", "java.io.Serializable", "List", "String", "Config", "java.io.IOException", "T"} {
		assert.Contains(t, types, want)
	}
	assert.NotContains(t, types, "java", "qualifier components are not references")
	assert.NotContains(t, types, "io")
	assert.Equal(t, []string{"Helper"}, byKind[source.RefReceiver])
	assert.ElementsMatch(t, []string{"Deprecated", "Override"}, byKind[source.RefAnnotation])
}

func TestParseKinds(t *testing.T) {
	f, err := source.Parse([]byte(`
interface Shape extends Comparable<Shape> { double area(); int SIDES = 0; }
record Point(int x, int y) implements Shape { public double area() { return 0; } }
@interface Marker { String value() default ""; }
`))
	require.NoError(t, err)
	assert.Equal(t, "", f.Package)
	require.Len(t, f.Types, 3)

	shape := f.Types[0]
	assert.Equal(t, source.KindInterface, shape.Kind)
	assert.Equal(t, []string{"Comparable<Shape>"}, shape.Interfaces)
	require.Len(t, shape.Fields, 1)
	assert.Equal(t, "SIDES", shape.Fields[0].Name)

	point := f.Types[1]
	assert.Equal(t, source.KindRecord, point.Kind)
	require.Len(t, point.Fields, 2)
	assert.Equal(t, "x", point.Fields[0].Name)
	assert.Equal(t, []string{"Shape"}, point.Interfaces)

	marker := f.Types[2]
	assert.Equal(t, source.KindAnnotation, marker.Kind)
	require.Len(t, marker.Methods, 1)
	assert.Equal(t, "value", marker.Methods[0].Name)
}

func TestParseSyntaxErrors(t *testing.T) {
	f, err := source.Parse([]byte("package p;\npublic class A {\n  void m( {\n}\n"))
	require.NoError(t, err)
	require.NotEmpty(t, f.Errors)
	assert.Equal(t, "p", f.Package)
	assert.GreaterOrEqual(t, f.Errors[0].Line, 2)
}

func TestPackage(t *testing.T) {
	pkg, err := source.Package([]byte("package a . b;\nclass X {}"))
	require.NoError(t, err)
	assert.Equal(t, "a.b", pkg)
}

func TestErase(t *testing.T) {
	tests := []struct {
		in   string
		base string
		dims int
	}{
		{"int", "int", 0},
		{"List<String>[]", "List", 1},
		{"Map<K, List<V>>.Entry", "Map.Entry", 0},
		{"String...", "String", 1},
		{"byte[][]", "byte", 2},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			base, dims := source.Erase(tt.in)
			assert.Equal(t, tt.base, base)
			assert.Equal(t, tt.dims, dims)
		})
	}
}

func TestDependencies(t *testing.T) {
	f, err := source.Parse([]byte(`package p;

import q.Api;
import r.*;
import static s.Util.helper;

class B extends Missing {
  Api.Inner inner;
  java.util.List<String> names;
}
`))
	require.NoError(t, err)
	deps := f.Dependencies()

	for _, want := range []string{
		"q.Api", "q.Api.Inner", "s.Util", "java.util.List",
		"p.Missing", "r.Missing", "java.lang.Missing",
		"p.String", "java.lang.String",
	} {
		assert.Contains(t, deps.Qualified, want)
	}
	for _, want := range []string{"Api", "Missing", "String", "List", "Inner"} {
		assert.Contains(t, deps.Simple, want)
	}
	assert.Equal(t, []string{"p", "r"}, deps.Packages)
}
