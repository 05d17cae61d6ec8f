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

package incremental_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/javinc/buildcontext"
	"bennypowers.dev/javinc/classfile"
	"bennypowers.dev/javinc/classpath"
	"bennypowers.dev/javinc/compiler"
	"bennypowers.dev/javinc/incremental"
	"bennypowers.dev/javinc/internal/classgen"
	"bennypowers.dev/javinc/internal/mapfs"
	"bennypowers.dev/javinc/internal/testcompiler"
	"bennypowers.dev/javinc/testutil"
	"bennypowers.dev/javinc/typeindex"
)

type project struct {
	t     *testing.T
	fs    *mapfs.MapFileSystem
	store *buildcontext.BadgerStore
	pool  *compiler.Pool
	cfg   incremental.Config
}

func newProject(t *testing.T) *project {
	t.Helper()
	store, err := buildcontext.OpenInMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mfs := mapfs.New()
	return &project{
		t:     t,
		fs:    mfs,
		store: store,
		pool:  compiler.NewPool(1, func() compiler.Compiler { return testcompiler.New(mfs) }),
		cfg: incremental.Config{
			SourceRoots:     []string{"/src"},
			OutputDirectory: "/out",
			JavaHome:        "/no-jdk",
		},
	}
}

func (p *project) write(path, content string) {
	p.fs.AddFile(path, content, 0o644)
}

func (p *project) build() (*incremental.Result, error) {
	p.t.Helper()
	return incremental.Compile(context.Background(), p.cfg, incremental.Environment{
		FS:        p.fs,
		Store:     p.store,
		Compilers: p.pool,
	})
}

func (p *project) mustBuild() *incremental.Result {
	p.t.Helper()
	res, err := p.build()
	require.NoError(p.t, err)
	return res
}

const (
	sourceA = `package p;

public class A {
    public int f() { return 1; }
}
`
	sourceB = `package p;

public class B {
    A a;
}
`
)

func TestFirstBuildCompilesEverything(t *testing.T) {
	p := newProject(t)
	p.write("/src/p/A.java", sourceA)
	p.write("/src/p/B.java", sourceB)

	res := p.mustBuild()
	assert.Equal(t, []string{"/src/p/A.java", "/src/p/B.java"}, res.Compiled)
	assert.Equal(t, []string{"/out/p/A.class", "/out/p/B.class"}, res.Written)
	assert.Empty(t, res.Deleted)
	assert.Zero(t, res.Errors)

	idx, ok := typeindex.ReadFile(p.fs, "/out")
	require.True(t, ok, "the output type index is written")
	assert.Equal(t, []string{"p.A", "p.B"}, idx.Types())
}

func TestUnchangedBuildDoesNothing(t *testing.T) {
	p := newProject(t)
	p.write("/src/p/A.java", sourceA)
	p.write("/src/p/B.java", sourceB)
	p.mustBuild()

	res := p.mustBuild()
	assert.Empty(t, res.Compiled)
	assert.Empty(t, res.Written)
	assert.Empty(t, res.Deleted)
}

func TestBodyChangeRecompilesOnlyTheChangedSource(t *testing.T) {
	p := newProject(t)
	p.write("/src/p/A.java", sourceA)
	p.write("/src/p/B.java", sourceB)
	p.mustBuild()

	p.write("/src/p/A.java", `package p;

public class A {
    public int f() { return 2; }
}
`)
	res := p.mustBuild()
	assert.Equal(t, []string{"/src/p/A.java"}, res.Compiled)
	assert.Equal(t, []string{"/out/p/A.class"}, res.Written)
}

func TestShapeChangeRecompilesDependents(t *testing.T) {
	p := newProject(t)
	p.write("/src/p/A.java", sourceA)
	p.write("/src/p/B.java", sourceB)
	p.write("/src/p/C.java", "package p; public class C {}")
	p.mustBuild()

	p.write("/src/p/A.java", `package p;

public class A {
    public int f() { return 1; }
    public long g() { return 2L; }
}
`)
	res := p.mustBuild()
	assert.Equal(t, []string{"/src/p/A.java", "/src/p/B.java"}, res.Compiled)
}

func TestRemovedSourceDeletesOutputsAndBreaksDependents(t *testing.T) {
	p := newProject(t)
	p.write("/src/p/A.java", sourceA)
	p.write("/src/p/B.java", sourceB)
	p.mustBuild()

	require.NoError(t, p.fs.Remove("/src/p/A.java"))
	res, err := p.build()

	var failed *incremental.FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 1, failed.Errors)
	require.NotNil(t, res)
	assert.Equal(t, []string{"/src/p/B.java"}, res.Compiled)
	assert.Contains(t, res.Deleted, "/out/p/A.class")
	assert.False(t, p.fs.Exists("/out/p/A.class"))

	require.Len(t, res.Messages["/src/p/B.java"], 1)
	assert.Equal(t, "A cannot be resolved to a type", res.Messages["/src/p/B.java"][0].Text)
}

func TestRemovedNestedTypeIsDeleted(t *testing.T) {
	p := newProject(t)
	p.write("/src/p/A.java", `package p;

public class A {
    public static class In {}
}
`)
	p.mustBuild()
	require.True(t, p.fs.Exists("/out/p/A$In.class"))

	p.write("/src/p/A.java", "package p;\n\npublic class A {}\n")
	res := p.mustBuild()
	assert.Equal(t, []string{"/out/p/A$In.class"}, res.Deleted)
	assert.False(t, p.fs.Exists("/out/p/A$In.class"))
	assert.True(t, p.fs.Exists("/out/p/A.class"))
}

func TestErrorsAreReplayed(t *testing.T) {
	p := newProject(t)
	p.write("/src/p/A.java", sourceA)
	p.write("/src/p/B.java", "package p;\n\npublic class B { Missing m; }\n")

	res, err := p.build()
	var failed *incremental.FailedError
	require.ErrorAs(t, err, &failed)
	assert.True(t, p.fs.Exists("/out/p/A.class"), "good outputs are kept")
	assert.False(t, p.fs.Exists("/out/p/B.class"))
	assert.Equal(t, 1, res.Errors)

	res, err = p.build()
	require.ErrorAs(t, err, &failed)
	assert.Empty(t, res.Compiled)
	require.Len(t, res.Messages["/src/p/B.java"], 1)
	assert.Equal(t, "Missing cannot be resolved to a type", res.Messages["/src/p/B.java"][0].Text)
	assert.Equal(t, buildcontext.SeverityError, res.Messages["/src/p/B.java"][0].Severity)

	p.write("/src/p/B.java", "package p;\n\npublic class B { A a; }\n")
	res = p.mustBuild()
	assert.Equal(t, []string{"/src/p/B.java"}, res.Compiled)
	assert.Empty(t, res.Messages)
}

func depJar(t *testing.T, fields ...classgen.Field) []byte {
	t.Helper()
	dep := &classgen.Class{Name: "q/Dep", Fields: fields}
	other := &classgen.Class{Name: "q/Other"}
	return testutil.Jar(t, map[string][]byte{
		"q/Dep.class":   dep.Bytes(),
		"q/Other.class": other.Bytes(),
	})
}

func TestDependencyChangeRecompilesUsers(t *testing.T) {
	p := newProject(t)
	p.cfg.Classpath = []string{"/lib/dep.jar"}
	p.write("/lib/dep.jar", string(depJar(t)))
	p.write("/src/p/C.java", "package p;\n\nimport q.Dep;\n\npublic class C { Dep d; }\n")
	p.write("/src/p/D.java", "package p;\n\npublic class D { q.Other o; }\n")

	res := p.mustBuild()
	assert.Equal(t, []string{"/src/p/C.java", "/src/p/D.java"}, res.Compiled)

	res = p.mustBuild()
	assert.Empty(t, res.Compiled, "an unchanged jar affects nothing")

	p.write("/lib/dep.jar", string(depJar(t, classgen.Field{Access: 0x0001, Name: "added", Descriptor: "I"})))
	res = p.mustBuild()
	assert.Equal(t, []string{"/src/p/C.java"}, res.Compiled)
}

func TestDependencyPackageAppearingRecompilesImporters(t *testing.T) {
	p := newProject(t)
	p.cfg.Classpath = []string{"/lib/dep.jar"}
	p.write("/lib/dep.jar", string(depJar(t)))
	p.write("/src/p/C.java", "package p;\n\nimport r.*;\n\npublic class C { }\n")
	p.write("/src/p/D.java", "package p;\n\npublic class D { q.Other o; }\n")

	res, err := p.build()
	var failed *incremental.FailedError
	require.ErrorAs(t, err, &failed)
	require.Len(t, res.Messages["/src/p/C.java"], 1)
	assert.Equal(t, "The import r cannot be resolved", res.Messages["/src/p/C.java"][0].Text)

	extra := &classgen.Class{Name: "r/Extra"}
	dep := &classgen.Class{Name: "q/Dep"}
	other := &classgen.Class{Name: "q/Other"}
	p.write("/lib/dep.jar", string(testutil.Jar(t, map[string][]byte{
		"q/Dep.class":   dep.Bytes(),
		"q/Other.class": other.Bytes(),
		"r/Extra.class": extra.Bytes(),
	})))
	res = p.mustBuild()
	assert.Equal(t, []string{"/src/p/C.java"}, res.Compiled)
	assert.Empty(t, res.Messages)
	assert.True(t, p.fs.Exists("/out/p/C.class"))
}

func TestAccessRules(t *testing.T) {
	api := &classgen.Class{Name: "q/Api"}
	impl := &classgen.Class{Name: "r/Impl"}
	user := "package p;\n\nimport q.Api;\nimport r.Impl;\n\npublic class U { Api a; Impl i; }\n"

	for _, tc := range []struct {
		policy string
		errors int
	}{
		{policy: incremental.AccessRulesIgnore, errors: 0},
		{policy: incremental.AccessRulesError, errors: 1},
	} {
		t.Run(tc.policy, func(t *testing.T) {
			p := newProject(t)
			p.write("/lib/api.jar", string(testutil.Jar(t, map[string][]byte{"q/Api.class": api.Bytes()})))
			p.write("/lib/impl.jar", string(testutil.Jar(t, map[string][]byte{"r/Impl.class": impl.Bytes()})))
			p.write("/src/p/U.java", user)
			p.cfg.Classpath = []string{"/lib/api.jar", "/lib/impl.jar"}
			p.cfg.DirectDependencies = []string{"/lib/api.jar"}
			p.cfg.AccessRulesViolation = tc.policy

			res, err := p.build()
			require.NotNil(t, res)
			assert.Equal(t, tc.errors, res.Errors)
			if tc.errors == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, res.Messages["/src/p/U.java"][0].Text, "Access restriction")
		})
	}
}

func TestSkip(t *testing.T) {
	p := newProject(t)
	p.write("/src/p/A.java", sourceA)
	p.cfg.Skip = true

	res := p.mustBuild()
	assert.True(t, res.Skipped)
	assert.False(t, p.fs.Exists("/out/p/A.class"))
}

type garbage struct{}

func (garbage) Compile(_ context.Context, req compiler.Request, r compiler.Requestor) error {
	for _, u := range req.Units {
		err := r.AcceptResult(&compiler.Result{
			Unit:    u,
			Classes: []compiler.ClassOutput{{Name: classpath.Qualify(u.Package, u.MainType), Bytes: []byte("nope")}},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func TestUnreadableClassFailsTheBuild(t *testing.T) {
	p := newProject(t)
	p.pool = compiler.NewPool(1, func() compiler.Compiler { return garbage{} })
	p.write("/src/p/A.java", sourceA)

	_, err := p.build()
	var formatErr *classfile.FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.False(t, p.fs.Exists("/out/p/A.class"))

	state, err := p.store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Inputs, "a failed build persists nothing")
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  incremental.Config
		ok   bool
	}{
		{name: "minimal", cfg: incremental.Config{OutputDirectory: "/out"}, ok: true},
		{name: "no output", cfg: incremental.Config{}},
		{name: "bad policy", cfg: incremental.Config{OutputDirectory: "/out", AccessRulesViolation: "warn"}},
		{name: "source is output", cfg: incremental.Config{OutputDirectory: "/out", SourceRoots: []string{"/out/"}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestFixtureProject(t *testing.T) {
	p := newProject(t)
	testutil.LoadFixtures(t, p.fs, "project", "/proj")
	p.cfg.SourceRoots = []string{"/proj/src/main/java"}
	p.cfg.OutputDirectory = "/proj/target/classes"

	const shapes = "/proj/src/main/java/com/example/shapes/"
	res := p.mustBuild()
	assert.Len(t, res.Compiled, 5)
	assert.Zero(t, res.Errors, "%v", res.Messages)
	assert.True(t, p.fs.Exists("/proj/target/classes/com/example/app/Main.class"))

	circle, err := p.fs.ReadFile(shapes + "Circle.java")
	require.NoError(t, err)
	p.write(shapes+"Circle.java", strings.Replace(string(circle), "Math.PI * radius * radius", "radius * radius * Math.PI", 1))
	res = p.mustBuild()
	assert.Equal(t, []string{shapes + "Circle.java"}, res.Compiled)

	p.write(shapes+"Shape.java", `package com.example.shapes;

public interface Shape {
    double area();

    double perimeter();
}
`)
	res = p.mustBuild()
	assert.Equal(t, []string{
		shapes + "Area.java",
		shapes + "Circle.java",
		shapes + "Shape.java",
		shapes + "Square.java",
	}, res.Compiled)
}
