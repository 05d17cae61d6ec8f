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

package javac_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/javinc/classpath"
	"bennypowers.dev/javinc/compiler"
	"bennypowers.dev/javinc/compiler/javac"
	"bennypowers.dev/javinc/internal/classgen"
)

const output = `/src/p/B.java:5: error: cannot find symbol
    A a = new A();
    ^
  symbol:   class A
  location: class B
/src/p/B.java:7: warning: [deprecation] old() in C has been deprecated
        c.old();
         ^
warning: [options] bootstrap class path not set in conjunction with -source 8
1 error
2 warnings
`

func TestParseDiagnostics(t *testing.T) {
	byFile, loose := javac.ParseDiagnostics([]byte(output))
	require.Len(t, byFile["/src/p/B.java"], 2)
	assert.Equal(t, compiler.Problem{
		Line:     5,
		Column:   5,
		Message:  "cannot find symbol\nsymbol:   class A\nlocation: class B",
		Severity: compiler.SeverityError,
	}, byFile["/src/p/B.java"][0])
	assert.Equal(t, compiler.Problem{
		Line:     7,
		Column:   10,
		Message:  "[deprecation] old() in C has been deprecated",
		Severity: compiler.SeverityWarning,
	}, byFile["/src/p/B.java"][1])
	assert.Equal(t, []string{"warning: [options] bootstrap class path not set in conjunction with -source 8"}, loose)
}

type collector []*compiler.Result

func (c *collector) AcceptResult(r *compiler.Result) error {
	*c = append(*c, r)
	return nil
}

type locations []string

func (l locations) FindType(string, string) *classpath.Answer { return nil }
func (l locations) IsPackage(string, string) bool             { return false }
func (l locations) Locations() []string                       { return l }

// fakeJavac writes the given classes into the -d directory.
func fakeJavac(t *testing.T, classes map[string]*classgen.Class, out string, err error) javac.Runner {
	return func(_ context.Context, name string, args []string) ([]byte, error) {
		require.Equal(t, "javac", name)
		require.Equal(t, "-d", args[0])
		for rel, c := range classes {
			path := filepath.Join(args[1], rel)
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
			require.NoError(t, os.WriteFile(path, c.Bytes(), 0o644))
		}
		return []byte(out), err
	}
}

func TestCompileMapsClassesToUnits(t *testing.T) {
	classes := map[string]*classgen.Class{
		"p/A.class":    {Name: "p/A", SourceFile: "A.java", References: []string{"q/Dep"}},
		"p/A$In.class": {Name: "p/A$In", SourceFile: "A.java"},
		"p/B.class":    {Name: "p/B", Super: "p/A", SourceFile: "B.java"},
	}
	c := javac.New("", nil).WithRunner(fakeJavac(t, classes, "", nil))

	var results collector
	req := compiler.Request{
		Units: []classpath.Unit{
			{Path: "/src/p/A.java", Package: "p", MainType: "A"},
			{Path: "/src/p/B.java", Package: "p", MainType: "B"},
		},
		Env: locations{"/out", "/lib/dep.jar"},
	}
	require.NoError(t, c.Compile(context.Background(), req, &results))
	require.Len(t, results, 2)

	a := results[0]
	assert.Equal(t, "/src/p/A.java", a.Unit.Path)
	require.Len(t, a.Classes, 2)
	assert.Equal(t, "p.A", a.Classes[0].Name)
	assert.Equal(t, "p.A$In", a.Classes[1].Name)
	assert.Contains(t, a.QualifiedReferences, "q.Dep")
	assert.Contains(t, a.SimpleNameReferences, "Dep")

	b := results[1]
	require.Len(t, b.Classes, 1)
	assert.Contains(t, b.QualifiedReferences, "p.A")
}

func TestCompileFiltersWarnings(t *testing.T) {
	exit := exec.Command("false").Run()
	var exitErr *exec.ExitError
	if !errors.As(exit, &exitErr) {
		t.Skip("no `false` binary to produce an exit status")
	}

	unit := classpath.Unit{Path: "/src/p/B.java", Package: "p", MainType: "B"}
	c := javac.New("", nil).WithRunner(fakeJavac(t, nil, output, exit))
	var results collector
	require.NoError(t, c.Compile(context.Background(), compiler.Request{Units: []classpath.Unit{unit}}, &results))
	require.Len(t, results, 1)
	require.Len(t, results[0].Problems, 1, "warnings are dropped unless shown")
	assert.True(t, results[0].HasErrors())

	results = nil
	req := compiler.Request{Units: []classpath.Unit{unit}, Options: compiler.Options{ShowWarnings: true}}
	require.NoError(t, c.Compile(context.Background(), req, &results))
	assert.Len(t, results[0].Problems, 2)
}

func TestCompileDowngradesErrorsOnSuccess(t *testing.T) {
	unit := classpath.Unit{Path: "/src/p/B.java", Package: "p", MainType: "B"}
	c := javac.New("", nil).WithRunner(fakeJavac(t, nil, output, nil))
	var results collector
	req := compiler.Request{Units: []classpath.Unit{unit}, Options: compiler.Options{ShowWarnings: true}}
	require.NoError(t, c.Compile(context.Background(), req, &results))
	assert.False(t, results[0].HasErrors())
}

func TestCompileExecError(t *testing.T) {
	c := javac.New("/nonexistent/javac", nil)
	err := c.Compile(context.Background(), compiler.Request{
		Units: []classpath.Unit{{Path: "/src/A.java", MainType: "A"}},
	}, &collector{})
	var execErr *javac.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "/nonexistent/javac", execErr.Executable)
}

func TestArgs(t *testing.T) {
	c := javac.New("", nil)
	args := c.Args(compiler.Request{
		Units:   []classpath.Unit{{Path: "/src/A.java"}},
		Env:     locations{"/a", "/b.jar"},
		Options: compiler.Options{Source: "8", Target: "8", Encoding: "UTF-8"},
	}, "/tmp/out")
	assert.Equal(t, []string{
		"-d", "/tmp/out",
		"-source", "8", "-target", "8", "-encoding", "UTF-8",
		"-classpath", "/a" + string(os.PathListSeparator) + "/b.jar",
		"-sourcepath", "", "-implicit:none", "-proc:none", "-g",
		"-Xlint:none", "-nowarn",
		"/src/A.java",
	}, args)
}

func TestCompileWithJavac(t *testing.T) {
	if _, err := exec.LookPath("javac"); err != nil {
		t.Skip("javac not installed")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "p", "A.java")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("package p; public class A { java.util.List<String> names; }"), 0o644))

	var results collector
	err := javac.New("", nil).Compile(context.Background(), compiler.Request{
		Units: []classpath.Unit{{Path: src, Package: "p", MainType: "A"}},
	}, &results)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Classes, 1)
	assert.Equal(t, "p.A", results[0].Classes[0].Name)
	assert.Contains(t, results[0].QualifiedReferences, "java.util.List")
}

func TestCompileRetriesUnitsWithoutErrors(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "p", "A.java")
	require.NoError(t, os.MkdirAll(filepath.Dir(a), 0o755))
	require.NoError(t, os.WriteFile(a, []byte("package p;\nimport q.*;\npublic class A { Missing m; }\n"), 0o644))
	units := []classpath.Unit{
		{Path: a, Package: "p", MainType: "A"},
		{Path: filepath.Join(dir, "p", "C.java"), Package: "p", MainType: "C"},
	}

	var batches [][]string
	run := func(_ context.Context, _ string, args []string) ([]byte, error) {
		var files []string
		for _, arg := range args {
			if strings.HasSuffix(arg, ".java") {
				files = append(files, arg)
			}
		}
		batches = append(batches, files)
		if len(batches) == 1 {
			// a failed javac run writes no class files at all
			return []byte(a + ":3: error: cannot find symbol\n1 error\n"), errors.New("exit status 1")
		}
		c := &classgen.Class{Name: "p/C", SourceFile: "C.java"}
		path := filepath.Join(args[1], "p", "C.class")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, c.Bytes(), 0o644))
		return nil, nil
	}

	var results collector
	err := javac.New("", nil).WithRunner(run).Compile(context.Background(), compiler.Request{Units: units}, &results)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{units[0].Path, units[1].Path}, {units[1].Path}}, batches)

	require.Len(t, results, 2)
	failed := results[0]
	assert.Equal(t, a, failed.Unit.Path)
	assert.True(t, failed.HasErrors())
	assert.Empty(t, failed.Classes)
	assert.Contains(t, failed.QualifiedReferences, "p.Missing")
	assert.Contains(t, failed.QualifiedReferences, "q.Missing")
	assert.Contains(t, failed.SimpleNameReferences, "Missing")
	assert.Equal(t, []string{"p", "q"}, failed.PackageReferences)

	clean := results[1]
	assert.False(t, clean.HasErrors())
	require.Len(t, clean.Classes, 1)
	assert.Equal(t, "p.C", clean.Classes[0].Name)
}

func TestCompileFailureWithoutUnitErrors(t *testing.T) {
	run := func(context.Context, string, []string) ([]byte, error) {
		return []byte("/elsewhere/X.java:1: error: cannot find symbol\n1 error\n"), errors.New("exit status 1")
	}
	err := javac.New("", nil).WithRunner(run).Compile(context.Background(), compiler.Request{
		Units: []classpath.Unit{{Path: "/src/p/A.java", Package: "p", MainType: "A"}},
	}, &collector{})
	var execErr *javac.ExecError
	assert.ErrorAs(t, err, &execErr)
}
