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

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/javinc/internal/classgen"
	"bennypowers.dev/javinc/testutil"
)

func TestMain(m *testing.M) {
	// Build the binary before running tests
	wd := mustGetwd()
	cmd := exec.Command("go", "build", "-o", "javinc_test", ".")
	cmd.Dir = wd
	if out, err := cmd.CombinedOutput(); err != nil {
		panic("failed to build test binary: " + err.Error() + "\n" + string(out))
	}
	code := m.Run()
	_ = os.Remove(filepath.Join(wd, "javinc_test"))
	os.Exit(code)
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	return wd
}

func runCLI(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	return runCLIIn(t, "", args...)
}

func runCLIIn(t *testing.T, dir string, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	binary := filepath.Join(mustGetwd(), "javinc_test")
	cmd := exec.Command(binary, args...)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			t.Fatalf("Failed to run CLI: %v", err)
		}
	}

	return stdout, stderr, exitCode
}

// copyFixture copies testdata/<name> into a temporary directory.
func copyFixture(t *testing.T, name string) string {
	t.Helper()
	src := filepath.Join("testdata", name)
	dst := t.TempDir()
	err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
	require.NoError(t, err)
	return dst
}

func TestVersion(t *testing.T) {
	stdout, stderr, code := runCLI(t, "version")
	require.Equal(t, 0, code, stderr)
	assert.True(t, strings.HasPrefix(stdout, "javinc "), stdout)

	stdout, stderr, code = runCLI(t, "version", "--format", "json")
	require.Equal(t, 0, code, stderr)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Contains(t, info, "version")
}

func TestHelp(t *testing.T) {
	stdout, _, code := runCLI(t, "--help")
	require.Equal(t, 0, code)
	for _, cmd := range []string{"compile", "index", "version"} {
		assert.Contains(t, stdout, cmd)
	}
}

func TestCompileHelp(t *testing.T) {
	stdout, _, code := runCLI(t, "compile", "--help")
	require.Equal(t, 0, code)
	for _, flag := range []string{"--source-root", "--classpath", "--access-rules", "--state-dir", "--javac"} {
		assert.Contains(t, stdout, flag)
	}
}

func TestUnknownCommand(t *testing.T) {
	_, _, code := runCLI(t, "frobnicate")
	assert.NotEqual(t, 0, code)
}

func TestCompileSkip(t *testing.T) {
	dir := t.TempDir()
	stdout, stderr, code := runCLIIn(t, dir, "compile", "--skip")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "compilation skipped\n", stdout)
	assert.NoDirExists(t, filepath.Join(dir, "target", "javinc-state"))
}

func TestCompileConfigFile(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "build.yaml")
	require.NoError(t, os.WriteFile(config, []byte("skip: true\nformat: json\n"), 0o644))

	stdout, stderr, code := runCLIIn(t, dir, "compile", "--config", config)
	require.Equal(t, 0, code, stderr)
	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, true, report["skipped"])
}

func TestCompileDefaultConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "javinc.yaml"), []byte("skip: true\n"), 0o644))

	stdout, stderr, code := runCLIIn(t, dir, "compile")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "compilation skipped\n", stdout)
}

func TestCompileInvalidAccessRules(t *testing.T) {
	_, stderr, code := runCLIIn(t, t.TempDir(), "compile", "--access-rules", "warn")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "access rules violation")
}

func TestCompileInvalidFormat(t *testing.T) {
	_, stderr, code := runCLIIn(t, t.TempDir(), "compile", "--format", "xml")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid format")
}

func TestCompileWithJavac(t *testing.T) {
	if _, err := exec.LookPath("javac"); err != nil {
		t.Skip("javac not installed")
	}
	dir := copyFixture(t, "project")

	stdout, stderr, code := runCLIIn(t, dir, "compile", "--format", "json")
	require.Equal(t, 0, code, stderr)
	var report struct {
		Compiled []string `json:"compiled"`
		Errors   int      `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Len(t, report.Compiled, 5)
	assert.FileExists(t, filepath.Join(dir, "target", "classes", "com", "example", "app", "Main.class"))

	stdout, stderr, code = runCLIIn(t, dir, "compile", "--format", "json")
	require.Equal(t, 0, code, stderr)
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Empty(t, report.Compiled, "nothing changed")
}

func TestIndex(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "api.jar")
	api := &classgen.Class{Name: "q/Api", Methods: []classgen.Method{{Access: 0x0001, Name: "run", Descriptor: "()V", Code: []byte{}}}}
	require.NoError(t, os.WriteFile(jar, testutil.Jar(t, map[string][]byte{"q/Api.class": api.Bytes()}), 0o644))

	stdout, stderr, code := runCLI(t, "index", jar)
	require.Equal(t, 0, code, stderr)
	assert.True(t, strings.HasPrefix(stdout, "T q.Api "), stdout)

	classes := filepath.Join(dir, "classes")
	_, stderr, code = runCLI(t, "index", jar, "--write", classes)
	require.Equal(t, 0, code, stderr)
	assert.FileExists(t, filepath.Join(classes, "META-INF", "javinc", "types.index"))
}

func TestIndexMissingEntry(t *testing.T) {
	_, stderr, code := runCLI(t, "index", "/does/not/exist.jar")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "does not exist")
}

func TestIndexMissingArg(t *testing.T) {
	_, _, code := runCLI(t, "index")
	assert.NotEqual(t, 0, code)
}
