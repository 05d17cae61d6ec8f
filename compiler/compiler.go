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

// Package compiler defines the contract between the incremental driver
// and a batch Java compiler front-end.
//
// A Compiler receives every unit of a drain round in one call, resolves
// names through a NameEnvironment and hands one Result per compiled unit
// to a Requestor. It may compile units it was not asked to, for example
// sources it discovered through the environment; those produce results
// too.
package compiler

import (
	"context"
	"strings"

	"bennypowers.dev/javinc/classpath"
)

// Severity of a Problem.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Problem is one diagnostic. Line and Column are 1-based; zero means
// unknown.
type Problem struct {
	Line     int
	Column   int
	Message  string
	Severity Severity
}

// ClassOutput is one produced class file.
type ClassOutput struct {
	// Name is the dotted binary name, e.g. "p.Outer$Inner".
	Name  string
	Bytes []byte
}

// RelativePath is the path of the class file below the output directory,
// slash separated.
func (c ClassOutput) RelativePath() string {
	return strings.ReplaceAll(c.Name, ".", "/") + ".class"
}

// Result is the outcome of compiling one unit.
type Result struct {
	Unit     classpath.Unit
	Problems []Problem
	// QualifiedReferences are the dotted binary names of the types the unit
	// resolved.
	QualifiedReferences []string
	// SimpleNameReferences are the names the unit mentioned, including
	// those it could not resolve.
	SimpleNameReferences []string
	// PackageReferences are packages whose contents the unit depends on,
	// such as on-demand imports.
	PackageReferences []string
	Classes           []ClassOutput
}

// HasErrors reports whether any problem is an error.
func (r *Result) HasErrors() bool {
	for _, p := range r.Problems {
		if p.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Requestor receives results. A non-nil error aborts the compile and is
// returned by Compile.
type Requestor interface {
	AcceptResult(r *Result) error
}

// RequestorFunc adapts a function to Requestor.
type RequestorFunc func(r *Result) error

func (f RequestorFunc) AcceptResult(r *Result) error { return f(r) }

// NameEnvironment resolves names during a compile. *classpath.Classpath
// implements it.
type NameEnvironment interface {
	FindType(pkg, typeName string) *classpath.Answer
	IsPackage(parent, name string) bool
	// Locations are the files and directories backing the environment,
	// in lookup order, for compilers that resolve names themselves.
	Locations() []string
}

// Options are language level and reporting settings.
type Options struct {
	Source       string
	Target       string
	Encoding     string
	ShowWarnings bool
	Verbose      bool
	// OutputDirectory is where the driver writes class files. Compilers
	// return bytes and never write there themselves.
	OutputDirectory string
}

// Request is one drain round.
type Request struct {
	Units   []classpath.Unit
	Env     NameEnvironment
	Options Options
}

// Compiler compiles a batch of units. Implementations need not be safe
// for concurrent use; a Pool hands each instance to one caller at a time.
type Compiler interface {
	Compile(ctx context.Context, req Request, requestor Requestor) error
}
