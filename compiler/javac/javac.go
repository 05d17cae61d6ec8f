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

// Package javac implements compiler.Compiler by running an external javac
// process. Class files are compiled into a scratch directory and handed
// back to the driver as bytes; references are read from their constant
// pools, or scanned from the source of units that failed to compile.
package javac

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"bennypowers.dev/javinc/classfile"
	"bennypowers.dev/javinc/classpath"
	"bennypowers.dev/javinc/compiler"
	"bennypowers.dev/javinc/internal/logging"
	"bennypowers.dev/javinc/source"
)

// ExecError reports that javac could not be run or failed without
// reporting an error against any of its units.
type ExecError struct {
	Executable string
	Stderr     string
	Err        error
}

func (e *ExecError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", e.Executable, e.Err, strings.TrimSpace(e.Stderr))
	}
	return fmt.Sprintf("%s: %v", e.Executable, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Runner executes name with args and returns its combined diagnostics
// output.
type Runner func(ctx context.Context, name string, args []string) ([]byte, error)

func execRunner(ctx context.Context, name string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Compiler drives javac.
type Compiler struct {
	executable string
	logger     logging.Logger
	run        Runner
}

// New returns a Compiler running executable, "javac" when empty.
func New(executable string, logger logging.Logger) *Compiler {
	if executable == "" {
		executable = "javac"
	}
	return &Compiler{executable: executable, logger: logger, run: execRunner}
}

// WithRunner replaces process execution, for tests.
func (c *Compiler) WithRunner(run Runner) *Compiler {
	c.run = run
	return c
}

// Args returns the javac command line for req writing classes to out.
func (c *Compiler) Args(req compiler.Request, out string) []string {
	opts := req.Options
	args := []string{"-d", out}
	if opts.Source != "" {
		args = append(args, "-source", opts.Source)
	}
	if opts.Target != "" {
		args = append(args, "-target", opts.Target)
	}
	if opts.Encoding != "" {
		args = append(args, "-encoding", opts.Encoding)
	}
	if req.Env != nil {
		if locations := req.Env.Locations(); len(locations) > 0 {
			args = append(args, "-classpath", strings.Join(locations, string(os.PathListSeparator)))
		}
	}
	args = append(args, "-sourcepath", "", "-implicit:none", "-proc:none", "-g")
	if opts.ShowWarnings {
		args = append(args, "-Xlint:all")
	} else {
		args = append(args, "-Xlint:none", "-nowarn")
	}
	if opts.Verbose {
		args = append(args, "-verbose")
	}
	for _, u := range req.Units {
		args = append(args, u.Path)
	}
	return args
}

// Compile runs javac over the units. javac writes no class files when any
// unit fails, so a failed run reports the units with errors and runs again
// over the rest until a run succeeds or no unit is left.
func (c *Compiler) Compile(ctx context.Context, req compiler.Request, requestor compiler.Requestor) error {
	pending := req.Units
	for len(pending) > 0 {
		rest, err := c.compileBatch(ctx, req, pending, requestor)
		if err != nil {
			return err
		}
		pending = rest
	}
	return nil
}

// compileBatch runs javac once and returns the units left to compile.
func (c *Compiler) compileBatch(ctx context.Context, req compiler.Request, units []classpath.Unit, requestor compiler.Requestor) ([]classpath.Unit, error) {
	out, err := os.MkdirTemp("", "javinc-javac-")
	if err != nil {
		return nil, fmt.Errorf("creating javac output directory: %w", err)
	}
	defer os.RemoveAll(out)

	batch := req
	batch.Units = units
	output, runErr := c.run(ctx, c.executable, c.Args(batch, out))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	diagnostics, loose := ParseDiagnostics(output)
	success := runErr == nil
	if !success && !hasErrors(diagnostics) {
		return nil, &ExecError{Executable: c.executable, Stderr: string(output), Err: runErr}
	}
	if c.logger != nil {
		for _, msg := range loose {
			c.logger.Warning("javac: %s", msg)
		}
	}

	if !success {
		var rest []classpath.Unit
		for _, u := range units {
			problems := c.problems(diagnostics[filepath.Clean(u.Path)], false, req.Options)
			res := &compiler.Result{Unit: u, Problems: problems}
			if !res.HasErrors() {
				rest = append(rest, u)
				continue
			}
			deps := sourceDependencies(u)
			res.QualifiedReferences = deps.Qualified
			res.SimpleNameReferences = deps.Simple
			res.PackageReferences = deps.Packages
			if err := requestor.AcceptResult(res); err != nil {
				return nil, err
			}
		}
		if len(rest) == len(units) {
			return nil, &ExecError{Executable: c.executable, Stderr: string(output), Err: runErr}
		}
		if len(rest) > 0 && c.logger != nil {
			c.logger.Debug("javac: recompiling %d sources without errors", len(rest))
		}
		return rest, nil
	}

	classes, err := collectClasses(out)
	if err != nil {
		return nil, err
	}
	for _, u := range units {
		res := &compiler.Result{Unit: u, Problems: c.problems(diagnostics[filepath.Clean(u.Path)], true, req.Options)}
		key := unitKey(u.Package, filepath.Base(u.Path))
		for _, cls := range classes[key] {
			res.Classes = append(res.Classes, cls.output)
			res.QualifiedReferences = append(res.QualifiedReferences, cls.references...)
		}
		res.QualifiedReferences = dedupe(res.QualifiedReferences)
		for _, ref := range res.QualifiedReferences {
			res.SimpleNameReferences = append(res.SimpleNameReferences, simpleName(ref))
		}
		res.SimpleNameReferences = dedupe(res.SimpleNameReferences)
		res.PackageReferences = sourceDependencies(u).Packages
		if err := requestor.AcceptResult(res); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// problems filters the diagnostics of one unit. Errors reported by a
// successful run are downgraded, as javac does with some annotation
// processing setups.
func (c *Compiler) problems(diagnostics []compiler.Problem, success bool, opts compiler.Options) []compiler.Problem {
	var out []compiler.Problem
	for _, p := range diagnostics {
		if success && p.Severity == compiler.SeverityError {
			p.Severity = compiler.SeverityWarning
		}
		if p.Severity == compiler.SeverityWarning && !opts.ShowWarnings {
			continue
		}
		out = append(out, p)
	}
	return out
}

func hasErrors(diagnostics map[string][]compiler.Problem) bool {
	for _, list := range diagnostics {
		for _, p := range list {
			if p.Severity == compiler.SeverityError {
				return true
			}
		}
	}
	return false
}

// sourceDependencies scans the unit's source for the names it may depend
// on. Failed units produce no class files to read references from.
func sourceDependencies(u classpath.Unit) source.Dependencies {
	data, err := os.ReadFile(u.Path)
	if err != nil {
		return source.Dependencies{}
	}
	f, err := source.Parse(data)
	if err != nil {
		return source.Dependencies{}
	}
	return f.Dependencies()
}

type compiledClass struct {
	output     compiler.ClassOutput
	references []string
}

func unitKey(pkg, file string) string {
	return pkg + "/" + file
}

// collectClasses reads every class file below dir, grouped by the
// package and source file they were compiled from.
func collectClasses(dir string) (map[string][]compiledClass, error) {
	byUnit := make(map[string][]compiledClass)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".class") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		cf, err := classfile.Parse(data)
		if err != nil {
			return fmt.Errorf("reading javac output %s: %w", path, err)
		}
		name := cf.Name()
		pkg, _ := classpath.Split(name)
		src := cf.SourceFile
		if src == "" {
			_, simple := classpath.Split(name)
			src = strings.SplitN(simple, "$", 2)[0] + ".java"
		}
		key := unitKey(pkg, src)
		byUnit[key] = append(byUnit[key], compiledClass{
			output:     compiler.ClassOutput{Name: name, Bytes: data},
			references: cf.ReferencedTypes(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collecting javac output: %w", err)
	}
	for key := range byUnit {
		sort.Slice(byUnit[key], func(i, j int) bool {
			return byUnit[key][i].output.Name < byUnit[key][j].output.Name
		})
	}
	return byUnit, nil
}

var diagnosticLine = regexp.MustCompile(`^(.+\.java):(\d+): (error|warning): (.*)$`)

// ParseDiagnostics parses javac's human readable output. Diagnostics are
// keyed by cleaned source path; the column comes from the caret line
// that follows the quoted source line. Messages not tied to a file are
// returned separately.
func ParseDiagnostics(output []byte) (map[string][]compiler.Problem, []string) {
	byFile := make(map[string][]compiler.Problem)
	var loose []string

	var current *compiler.Problem
	var file string
	var quoted []string
	flush := func() {
		if current == nil {
			return
		}
		// quoted[0] is the source line and quoted[1] the caret under it
		for i, line := range quoted {
			switch {
			case i == 0:
			case i == 1 && strings.TrimSpace(line) == "^":
				current.Column = strings.IndexByte(line, '^') + 1
			default:
				if detail := strings.TrimSpace(line); detail != "" {
					current.Message += "\n" + detail
				}
			}
		}
		byFile[file] = append(byFile[file], *current)
		current, quoted = nil, nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if m := diagnosticLine.FindStringSubmatch(line); m != nil {
			flush()
			lineNo, _ := strconv.Atoi(m[2])
			severity := compiler.SeverityError
			if m[3] == "warning" {
				severity = compiler.SeverityWarning
			}
			file = filepath.Clean(m[1])
			current = &compiler.Problem{Line: lineNo, Message: m[4], Severity: severity}
			continue
		}
		switch {
		case isSummary(line):
			flush()
		case strings.HasPrefix(line, "warning: ") || strings.HasPrefix(line, "error: "):
			flush()
			loose = append(loose, line)
		case current != nil:
			quoted = append(quoted, line)
		}
	}
	flush()
	return byFile, loose
}

var summaryLine = regexp.MustCompile(`^\d+ (errors?|warnings?)$`)

func isSummary(line string) bool {
	return summaryLine.MatchString(line) || strings.HasPrefix(line, "Note: ")
}

func simpleName(binary string) string {
	_, s := classpath.Split(binary)
	if i := strings.LastIndexByte(s, '$'); i >= 0 && i < len(s)-1 {
		return s[i+1:]
	}
	return s
}

func dedupe(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	sort.Strings(list)
	out := list[:1]
	for _, s := range list[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
