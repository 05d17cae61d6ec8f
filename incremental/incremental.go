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

// Package incremental compiles the Java sources of one module, recompiling
// only the inputs affected by what changed since the previous build.
//
// A build registers every source input, compiles new and modified inputs,
// and follows structural changes outward: when a compiled class's digest
// differs from the previous build, every input referencing that type or
// its simple name is compiled in a later round. Inputs are compiled at
// most once per build. Outputs whose input is gone, or whose input no
// longer produces them, are deleted and their dependents compiled.
// Changes to dependency jars and directories are detected through a
// persisted type index of the classpath.
package incremental

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"bennypowers.dev/javinc/buildcontext"
	"bennypowers.dev/javinc/classfile"
	"bennypowers.dev/javinc/classpath"
	"bennypowers.dev/javinc/compiler"
	"bennypowers.dev/javinc/fs"
	"bennypowers.dev/javinc/internal/logging"
	"bennypowers.dev/javinc/source"
	"bennypowers.dev/javinc/tracker"
	"bennypowers.dev/javinc/typeindex"
)

// Attribute and capability keys recorded in the build context.
const (
	attrClassDigest     = "class.digest"
	attrClasspathDigest = "classpath.digest"
	capType             = "type"
	capSimpleType       = "simpleType"
	reqType             = "type"
	reqSimpleName       = "simpleName"
	reqPackage          = "package"
)

// Environment holds the process-wide services a build uses. FS, Store and
// Compilers are required unless the build is skipped. A nil Entries or Indexer gets a private
// instance for the build.
type Environment struct {
	FS        fs.FileSystem
	Store     buildcontext.Store
	Compilers *compiler.Pool
	Entries   *classpath.Cache
	Indexer   *typeindex.Indexer
	Logger    logging.Logger
}

// Result summarizes a build.
type Result struct {
	// Compiled lists the inputs compiled in this build.
	Compiled []string
	// Written lists outputs whose files changed.
	Written []string
	// Deleted lists stale outputs removed.
	Deleted []string
	// Messages holds the messages of every live input, including those
	// replayed from inputs that were not compiled.
	Messages map[string][]buildcontext.Message
	Errors   int
	Warnings int
	Skipped  bool
}

// FailedError reports a build that completed with compile errors. Outputs
// of inputs without errors were written and the build state persisted.
type FailedError struct {
	Errors   int
	Messages map[string][]buildcontext.Message
}

func (e *FailedError) Error() string {
	if e.Errors == 1 {
		return "compilation failed: 1 error"
	}
	return fmt.Sprintf("compilation failed: %d errors", e.Errors)
}

// Compile runs one build of the module described by cfg.
func Compile(ctx context.Context, cfg Config, env Environment) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Skip {
		if env.Logger != nil {
			env.Logger.Info("Skipping compilation of %s", cfg.OutputDirectory)
		}
		return &Result{Skipped: true}, nil
	}
	if env.FS == nil || env.Store == nil || env.Compilers == nil {
		return nil, errors.New("incomplete environment: filesystem, store and compilers are required")
	}

	if env.Entries == nil {
		env.Entries = classpath.NewCache(env.FS, 0, env.Logger)
		defer env.Entries.Close()
	}
	if env.Indexer == nil {
		env.Indexer = typeindex.NewIndexer(env.FS, 0, env.Logger)
	}

	bctx, err := buildcontext.Open(ctx, env.FS, env.Store)
	if err != nil {
		return nil, fmt.Errorf("opening build context: %w", err)
	}
	b := &build{
		cfg:      cfg,
		env:      env,
		bctx:     bctx,
		tracker:  tracker.New(),
		enqueued: make(map[string]bool),
		compiled: make(map[string]bool),
	}
	b.output = classpath.NewOutputDirectory(env.FS, cfg.OutputDirectory)
	b.cp = b.newClasspath()
	defer b.cp.Close()

	if err := b.seed(ctx); err != nil {
		return nil, err
	}
	if err := b.drain(ctx); err != nil {
		return nil, err
	}
	if err := b.writeIndex(); err != nil {
		return nil, err
	}

	messages, err := bctx.Commit(ctx)
	if err != nil {
		return nil, fmt.Errorf("saving build state: %w", err)
	}
	res := &Result{
		Compiled: slices.Sorted(maps.Keys(b.compiled)),
		Written:  bctx.Written(),
		Deleted:  b.deleted,
		Messages: messages,
	}
	for _, list := range messages {
		for _, m := range list {
			switch m.Severity {
			case buildcontext.SeverityError:
				res.Errors++
			case buildcontext.SeverityWarning:
				res.Warnings++
			}
		}
	}
	b.infof("Compiled %d of %d sources, wrote %d and deleted %d outputs",
		len(res.Compiled), len(bctx.RegisteredInputs()), len(res.Written), len(res.Deleted))
	if res.Errors > 0 {
		return res, &FailedError{Errors: res.Errors, Messages: messages}
	}
	return res, nil
}

type build struct {
	cfg     Config
	env     Environment
	bctx    *buildcontext.Context
	tracker *tracker.Tracker
	cp      *classpath.Classpath
	output  *classpath.OutputDirectory

	// queue holds units waiting for the next round, round the units being
	// compiled now
	queue    []classpath.Unit
	round    []classpath.Unit
	enqueued map[string]bool
	compiled map[string]bool
	deleted  []string
}

func (b *build) debugf(format string, args ...any) {
	if b.env.Logger != nil {
		b.env.Logger.Debug(format, args...)
	}
}

func (b *build) infof(format string, args ...any) {
	if b.env.Logger != nil {
		b.env.Logger.Info(format, args...)
	}
}

// newClasspath assembles lookup order: platform, units being compiled, own
// output, dependencies, then the source roots.
func (b *build) newClasspath() *classpath.Classpath {
	var entries []classpath.Entry
	platform := b.cfg.PlatformClasspath
	if len(platform) == 0 {
		platform = classpath.Platform(b.env.FS, b.cfg.JavaHome)
	}
	for _, p := range platform {
		if e := b.env.Entries.Dependency(p); e != nil {
			entries = append(entries, e)
		}
	}
	entries = append(entries, classpath.NewCompileQueue(func() []classpath.Unit { return b.round }), b.output)

	direct := make(map[string]bool, len(b.cfg.DirectDependencies))
	for _, d := range b.cfg.DirectDependencies {
		direct[filepath.Clean(d)] = true
	}
	for _, p := range b.cfg.Classpath {
		e := b.env.Entries.Dependency(p)
		if e == nil {
			continue
		}
		if b.cfg.enforceAccessRules() && !direct[filepath.Clean(p)] {
			e = classpath.Restrict(e)
		}
		entries = append(entries, e)
	}
	for _, root := range b.cfg.SourceRoots {
		entries = append(entries, classpath.NewSourceDirectory(b.env.FS, root))
	}
	for _, e := range entries {
		b.debugf("Classpath entry: %s", e.Description())
	}
	return classpath.New(entries...)
}

// seed registers inputs and queues everything the previous build does not
// cover: new and modified sources, dependents of removed sources and
// dependents of types that changed on the classpath.
func (b *build) seed(ctx context.Context) error {
	var changed []*buildcontext.Input
	for _, root := range b.cfg.SourceRoots {
		if !b.env.FS.Exists(root) {
			b.debugf("Source root %s does not exist", root)
			continue
		}
		inputs, err := b.bctx.RegisterAndProcessInputs(root, b.cfg.includes(), b.cfg.Excludes)
		if err != nil {
			return fmt.Errorf("registering sources under %s: %w", root, err)
		}
		changed = append(changed, inputs...)
	}

	// previous build's references and outputs of inputs that stay as
	// they are
	for _, path := range b.bctx.RegisteredInputs() {
		if b.bctx.IsProcessed(path) {
			continue
		}
		b.restoreReferences(path)
		for _, out := range b.bctx.OutputsOf(path) {
			typeName, simple := provided(out.Capabilities)
			b.tracker.AddOutput(path, out.Path, typeName, simple)
		}
	}

	for _, in := range changed {
		b.enqueue(in.Path)
	}
	for _, path := range b.bctx.OldInputs() {
		if !b.bctx.IsRegistered(path) {
			b.debugf("Source %s was removed", path)
		}
	}
	if err := b.deleteObsolete(); err != nil {
		return err
	}
	return b.diffClasspath(ctx)
}

// diffClasspath compares the type index of the dependencies with the one
// recorded by the previous build.
func (b *build) diffClasspath(ctx context.Context) error {
	current, err := b.env.Indexer.Classpath(ctx, b.cfg.Classpath)
	if err != nil {
		return fmt.Errorf("indexing classpath: %w", err)
	}
	var buf bytes.Buffer
	if err := typeindex.Encode(&buf, current); err != nil {
		return fmt.Errorf("encoding classpath index: %w", err)
	}
	encoded := buf.String()

	descriptor := b.cfg.descriptor()
	if prev, ok := b.bctx.ResourceAttribute(descriptor, attrClasspathDigest); ok && prev != encoded {
		old, err := typeindex.Decode(strings.NewReader(prev))
		if err != nil {
			b.debugf("Discarding unreadable classpath index: %v", err)
			old = typeindex.New()
		}
		for _, t := range typeindex.Diff(old, current) {
			dependents := b.bctx.GetDependentInputs(reqType, t)
			if len(dependents) == 0 {
				dependents = b.bctx.GetDependentInputs(reqSimpleName, providedSimpleName(t))
			}
			if len(dependents) > 0 {
				b.debugf("Classpath type %s changed, affecting %d sources", t, len(dependents))
			}
			for _, d := range dependents {
				b.enqueue(d)
			}
		}
		for _, pkg := range changedPackages(old, current) {
			dependents := b.bctx.GetDependentInputs(reqPackage, pkg)
			if len(dependents) > 0 {
				b.debugf("Classpath package %s appeared or disappeared, affecting %d sources", pkg, len(dependents))
			}
			for _, d := range dependents {
				b.enqueue(d)
			}
		}
	}
	b.bctx.SetResourceAttribute(descriptor, attrClasspathDigest, encoded)
	return nil
}

// enqueue schedules a registered input for the next round unless it was
// already compiled or queued in this build.
func (b *build) enqueue(path string) {
	if b.enqueued[path] {
		return
	}
	in, ok := b.bctx.Input(path)
	if !ok {
		return
	}
	b.enqueued[path] = true
	in.Process()
	b.queue = append(b.queue, b.unit(path))
}

// unit describes a source file for the compiler. The package comes from
// the package declaration, or the directory below the source root when
// the file has none that parses.
func (b *build) unit(path string) classpath.Unit {
	u := classpath.Unit{Path: path, MainType: strings.TrimSuffix(filepath.Base(path), ".java")}
	if data, err := b.env.FS.ReadFile(path); err == nil {
		if pkg, err := source.Package(data); err == nil && pkg != "" {
			u.Package = pkg
			return u
		}
	}
	for _, root := range b.cfg.SourceRoots {
		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			u.Package = strings.ReplaceAll(filepath.ToSlash(rel), "/", ".")
			break
		}
	}
	return u
}

// drain compiles queued rounds until nothing is left, then deletes stale
// outputs, which may queue more work.
func (b *build) drain(ctx context.Context) error {
	for {
		for len(b.queue) > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := b.deleteObsolete(); err != nil {
				return err
			}
			b.round, b.queue = b.queue, nil
			b.output.Hide(b.pendingStale())
			b.cp.Reset()
			b.debugf("Compiling %d sources", len(b.round))

			req := compiler.Request{
				Units: b.round,
				Env:   b.cp,
				Options: compiler.Options{
					Source:          b.cfg.Source,
					Target:          b.cfg.Target,
					Encoding:        b.cfg.Encoding,
					ShowWarnings:    b.cfg.ShowWarnings,
					Verbose:         b.cfg.Verbose,
					OutputDirectory: b.cfg.OutputDirectory,
				},
			}
			err := b.env.Compilers.Do(ctx, func(c compiler.Compiler) error {
				return c.Compile(ctx, req, compiler.RequestorFunc(b.acceptResult))
			})
			b.round = nil
			if err != nil {
				return err
			}
			b.cp.Reset()
		}

		stale, err := b.bctx.DeleteStaleOutputs()
		if err != nil {
			return err
		}
		b.deleted = append(b.deleted, stale...)
		for _, path := range stale {
			b.debugf("Deleted stale output %s", path)
			b.removeOutput(path)
		}
		if len(b.queue) == 0 {
			sort.Strings(b.deleted)
			return nil
		}
	}
}

// deleteObsolete deletes previous outputs that can no longer come back in
// this build before the next round runs, so compilers reading the output
// directory themselves do not resolve against them: outputs of removed
// inputs, and outputs of inputs already compiled that were not produced
// again. Their dependents are queued.
func (b *build) deleteObsolete() error {
	var obsolete []string
	for _, path := range b.bctx.OldInputs() {
		registered := b.bctx.IsRegistered(path)
		if registered && !b.compiled[path] {
			continue
		}
		live := make(map[string]bool)
		if registered {
			for _, out := range b.bctx.OutputsOf(path) {
				live[out.Path] = true
			}
		}
		for _, out := range b.bctx.OldOutputs(path) {
			if !live[out] {
				obsolete = append(obsolete, out)
			}
		}
	}
	if len(obsolete) == 0 {
		return nil
	}
	deleted, err := b.bctx.DeleteOutputs(obsolete)
	b.deleted = append(b.deleted, deleted...)
	for _, path := range deleted {
		b.debugf("Deleted obsolete output %s", path)
		b.removeOutput(path)
	}
	return err
}

// pendingStale returns previous outputs that no live input produces
// anymore, so far: outputs of removed inputs and outputs of compiled
// inputs not produced again.
func (b *build) pendingStale() []string {
	var hidden []string
	for _, path := range b.bctx.OldInputs() {
		if b.bctx.IsRegistered(path) && !b.bctx.IsProcessed(path) {
			continue
		}
		live := make(map[string]bool)
		for _, out := range b.bctx.OutputsOf(path) {
			live[out.Path] = true
		}
		for _, out := range b.bctx.OldOutputs(path) {
			if !live[out] {
				hidden = append(hidden, out)
			}
		}
	}
	return hidden
}

// removeOutput forgets an output and queues the inputs that referenced
// what it provided.
func (b *build) removeOutput(path string) {
	dependents := b.tracker.RemoveOutput(path)
	if info, ok := b.bctx.OldOutput(path); ok {
		typeName, simple := provided(info.Capabilities)
		dependents = append(dependents, b.tracker.ReferencingType(typeName)...)
		dependents = append(dependents, b.tracker.ReferencingSimpleName(simple)...)
		if b.bctx.IsRegistered(info.Input) {
			b.restoreReferences(info.Input)
		}
	}
	for _, d := range dependents {
		b.enqueue(d)
	}
}

// restoreReferences loads the recorded requirements of a live input into
// the tracker.
func (b *build) restoreReferences(path string) {
	in, ok := b.bctx.Input(path)
	if !ok {
		return
	}
	for _, req := range in.Requirements() {
		switch req.Kind {
		case reqType:
			b.tracker.AddReferencedType(path, req.Value)
		case reqSimpleName:
			b.tracker.AddReferencedSimpleName(path, req.Value)
		}
	}
}

// acceptResult records the outcome of one compiled unit. Class files are
// only written when the unit compiled without errors. A class whose
// digest changed queues every input referencing it.
func (b *build) acceptResult(res *compiler.Result) error {
	path := filepath.Clean(res.Unit.Path)
	in, err := b.bctx.RegisterInput(path)
	if err != nil {
		return err
	}
	b.enqueued[path] = true
	b.compiled[path] = true
	in.Process()
	b.tracker.ResetInput(path)

	for _, p := range res.Problems {
		severity := buildcontext.SeverityWarning
		if p.Severity == compiler.SeverityError {
			severity = buildcontext.SeverityError
		}
		in.AddMessage(buildcontext.Message{Line: p.Line, Column: p.Column, Text: p.Message, Severity: severity})
	}
	for _, q := range res.QualifiedReferences {
		b.tracker.AddReferencedType(path, q)
		in.AddRequirement(reqType, q)
	}
	for _, s := range res.SimpleNameReferences {
		b.tracker.AddReferencedSimpleName(path, s)
		in.AddRequirement(reqSimpleName, s)
	}
	for _, pkg := range res.PackageReferences {
		in.AddRequirement(reqPackage, pkg)
	}
	if res.HasErrors() {
		return nil
	}

	for _, cls := range res.Classes {
		outPath := filepath.Join(b.cfg.OutputDirectory, cls.RelativePath())
		digest, err := classfile.Digest(cls.Bytes)
		if err != nil {
			return fmt.Errorf("digesting %s compiled from %s: %w", cls.Name, path, err)
		}
		simple := providedSimpleName(cls.Name)
		out := in.AssociateOutput(outPath)
		out.AddCapability(capType, cls.Name)
		out.AddCapability(capSimpleType, simple)

		encoded := base64.StdEncoding.EncodeToString(digest)
		old, existed := out.SetAttribute(attrClassDigest, encoded)
		significant := digest == nil || !existed || old != encoded

		dependents := b.tracker.AddOutput(path, outPath, cls.Name, simple)
		if significant {
			for _, d := range dependents {
				if !b.enqueued[d] {
					b.debugf("%s changed shape, recompiling %s", cls.Name, d)
				}
				b.enqueue(d)
			}
		}
		if _, err := out.Write(cls.Bytes); err != nil {
			return err
		}
	}
	return nil
}

// writeIndex persists the type index of the module's own output, so
// dependent modules can diff it without scanning class files.
func (b *build) writeIndex() error {
	idx := typeindex.New()
	for _, path := range b.bctx.RegisteredInputs() {
		for _, out := range b.bctx.OutputsOf(path) {
			typeName, _ := provided(out.Capabilities)
			digest, err := base64.StdEncoding.DecodeString(out.Attributes[attrClassDigest])
			if typeName == "" || err != nil || len(digest) == 0 {
				continue
			}
			idx.Put(typeName, digest)
		}
	}
	return typeindex.WriteFile(b.env.FS, b.cfg.OutputDirectory, idx)
}

// changedPackages returns the packages present in exactly one of two
// indexes, in order.
func changedPackages(old, current *typeindex.Index) []string {
	before, after := packagesOf(old), packagesOf(current)
	var changed []string
	for pkg := range before {
		if !after[pkg] {
			changed = append(changed, pkg)
		}
	}
	for pkg := range after {
		if !before[pkg] {
			changed = append(changed, pkg)
		}
	}
	sort.Strings(changed)
	return changed
}

func packagesOf(idx *typeindex.Index) map[string]bool {
	pkgs := make(map[string]bool)
	for _, t := range idx.Types() {
		pkg, _ := classpath.Split(t)
		pkgs[pkg] = true
	}
	return pkgs
}

func provided(capabilities []buildcontext.Capability) (typeName, simple string) {
	for _, c := range capabilities {
		switch c.Kind {
		case capType:
			typeName = c.Value
		case capSimpleType:
			simple = c.Value
		}
	}
	return typeName, simple
}

// providedSimpleName is the innermost simple name of a binary type name:
// "In" for "p.A$In".
func providedSimpleName(binary string) string {
	s := classpath.SimpleName(binary)
	if i := strings.LastIndexByte(s, '$'); i >= 0 && i < len(s)-1 {
		return s[i+1:]
	}
	return s
}
