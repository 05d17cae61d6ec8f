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

package buildcontext

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	iofs "io/fs"
	"maps"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"bennypowers.dev/javinc/fs"
)

// Status of a registered input relative to the previous build.
type Status int

const (
	StatusNew Status = iota
	StatusModified
	StatusUnmodified
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusModified:
		return "modified"
	default:
		return "unmodified"
	}
}

// Context is one build session. Inputs registered in the session and not
// processed keep their previous outputs, requirements and messages; inputs
// not registered at all are considered deleted.
type Context struct {
	fsys  fs.FileSystem
	store Store

	mu        sync.Mutex
	old       *State
	inputs    map[string]*InputState
	outputs   map[string]*OutputState
	resources map[string]map[string]string
	status    map[string]Status
	processed map[string]bool
	deleted   map[string]bool
	written   map[string]bool
}

// Open starts a session over the state persisted in store.
func Open(ctx context.Context, fsys fs.FileSystem, store Store) (*Context, error) {
	old, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &Context{
		fsys:      fsys,
		store:     store,
		old:       old,
		inputs:    make(map[string]*InputState),
		outputs:   make(map[string]*OutputState),
		resources: make(map[string]map[string]string),
		status:    make(map[string]Status),
		processed: make(map[string]bool),
		deleted:   make(map[string]bool),
		written:   make(map[string]bool),
	}, nil
}

// Input is a registered input.
type Input struct {
	c      *Context
	Path   string
	Status Status
}

// Output is an output associated in this session.
type Output struct {
	c    *Context
	Path string
}

func contentDigest(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// RegisterInput registers path and compares it with the previous build.
func (c *Context) RegisterInput(path string) (*Input, error) {
	path = filepath.Clean(path)
	data, err := c.fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registering input %s: %w", path, err)
	}
	digest := contentDigest(data)

	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.status[path]; ok {
		return &Input{c: c, Path: path, Status: st}, nil
	}
	st := StatusNew
	if prev, ok := c.old.Inputs[path]; ok {
		st = StatusUnmodified
		if prev.Digest != digest {
			st = StatusModified
		}
		c.inputs[path] = prev.clone()
		c.inputs[path].Digest = digest
	} else {
		c.inputs[path] = &InputState{Path: path, Digest: digest}
	}
	c.status[path] = st
	return &Input{c: c, Path: path, Status: st}, nil
}

// RegisterAndProcessInputs registers every file below root matching one of
// includes and none of excludes (doublestar patterns relative to root; no
// includes means everything). New and modified inputs are processed and
// returned in path order.
func (c *Context) RegisterAndProcessInputs(root string, includes, excludes []string) ([]*Input, error) {
	for _, pattern := range append(slices.Clone(includes), excludes...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}
	}
	var changed []*Input
	err := fs.Walk(c.fsys, root, func(path, rel string) error {
		if !matches(rel, includes, excludes) {
			return nil
		}
		in, err := c.RegisterInput(path)
		if err != nil {
			return err
		}
		if in.Status != StatusUnmodified {
			in.Process()
			changed = append(changed, in)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

func matches(rel string, includes, excludes []string) bool {
	included := len(includes) == 0
	for _, p := range includes {
		if ok, _ := doublestar.Match(p, rel); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, p := range excludes {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	return true
}

// Input returns the registered input for path.
func (c *Context) Input(path string) (*Input, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.status[path]
	if !ok {
		return nil, false
	}
	return &Input{c: c, Path: path, Status: st}, true
}

// IsRegistered reports whether path was registered in this session.
func (c *Context) IsRegistered(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.status[path]
	return ok
}

// IsProcessed reports whether path was processed in this session.
func (c *Context) IsProcessed(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processed[path]
}

// RegisteredInputs returns all registered inputs in path order.
func (c *Context) RegisteredInputs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.status))
}

// Process marks the input as processed in this session and discards its
// requirements and messages. The first call also discards the previous
// build's outputs. Attributes are kept.
func (in *Input) Process() {
	c := in.c
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.inputs[in.Path]
	st.Requirements = nil
	st.Messages = nil
	if !c.processed[in.Path] {
		c.processed[in.Path] = true
		st.Outputs = nil
	}
}

// AddRequirement records that the input depends on a capability.
func (in *Input) AddRequirement(kind, value string) {
	c := in.c
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.inputs[in.Path]
	req := Capability{Kind: kind, Value: value}
	if !slices.Contains(st.Requirements, req) {
		st.Requirements = append(st.Requirements, req)
	}
}

// Requirements returns the input's current requirements.
func (in *Input) Requirements() []Capability {
	c := in.c
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.inputs[in.Path].Requirements)
}

// AddMessage attaches a diagnostic to the input.
func (in *Input) AddMessage(m Message) {
	c := in.c
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.inputs[in.Path]
	st.Messages = append(st.Messages, m)
}

// Messages returns the input's current messages.
func (in *Input) Messages() []Message {
	c := in.c
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.inputs[in.Path].Messages)
}

// SetAttribute sets an input attribute and returns the previous build's
// value.
func (in *Input) SetAttribute(key, value string) (old string, ok bool) {
	c := in.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, found := c.old.Inputs[in.Path]; found {
		old, ok = prev.Attributes[key]
	}
	st := c.inputs[in.Path]
	if st.Attributes == nil {
		st.Attributes = make(map[string]string)
	}
	st.Attributes[key] = value
	return old, ok
}

// Outputs returns the input's current outputs: those associated in this
// session when processed, otherwise those of the previous build.
func (in *Input) Outputs() []string {
	c := in.c
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.inputs[in.Path].Outputs)
}

// AssociateOutput associates path as an output of the input.
func (in *Input) AssociateOutput(path string) *Output {
	c := in.c
	path = filepath.Clean(path)
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev := c.outputRecordLocked(path); prev != nil && prev.Input != in.Path {
		if owner := c.inputs[prev.Input]; owner != nil {
			owner.Outputs = slices.DeleteFunc(owner.Outputs, func(o string) bool { return o == path })
		}
	}
	st := c.inputs[in.Path]
	if !slices.Contains(st.Outputs, path) {
		st.Outputs = append(st.Outputs, path)
	}
	out := &OutputState{Path: path, Input: in.Path}
	if prev, ok := c.outputs[path]; ok && prev.Input == in.Path {
		out = prev
	}
	c.outputs[path] = out
	delete(c.deleted, path)
	return &Output{c: c, Path: path}
}

// SetAttribute sets an output attribute and returns the previous build's
// value.
func (o *Output) SetAttribute(key, value string) (old string, ok bool) {
	c := o.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, found := c.old.Outputs[o.Path]; found {
		old, ok = prev.Attributes[key]
	}
	st := c.outputs[o.Path]
	if st.Attributes == nil {
		st.Attributes = make(map[string]string)
	}
	st.Attributes[key] = value
	return old, ok
}

// AddCapability records a capability the output provides.
func (o *Output) AddCapability(kind, value string) {
	c := o.c
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.outputs[o.Path]
	capability := Capability{Kind: kind, Value: value}
	if !slices.Contains(st.Capabilities, capability) {
		st.Capabilities = append(st.Capabilities, capability)
	}
}

// Write stores data at the output path. An existing file with identical
// content is left untouched and written reports false.
func (o *Output) Write(data []byte) (written bool, err error) {
	c := o.c
	if existing, err := c.fsys.ReadFile(o.Path); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err := c.fsys.MkdirAll(filepath.Dir(o.Path), 0755); err != nil {
		return false, fmt.Errorf("creating output directory for %s: %w", o.Path, err)
	}
	if err := c.fsys.WriteFile(o.Path, data, 0644); err != nil {
		return false, fmt.Errorf("writing output %s: %w", o.Path, err)
	}
	c.mu.Lock()
	c.written[o.Path] = true
	c.mu.Unlock()
	return true, nil
}

// OutputInfo describes an output in the current view.
type OutputInfo struct {
	Path         string
	Input        string
	Attributes   map[string]string
	Capabilities []Capability
}

// OutputsOf returns the current outputs of input with their metadata:
// outputs associated in this session when the input was processed, the
// previous build's outputs otherwise.
func (c *Context) OutputsOf(input string) []OutputInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.inputs[input]
	if !ok {
		return nil
	}
	var out []OutputInfo
	for _, p := range st.Outputs {
		rec := c.outputRecordLocked(p)
		if rec == nil {
			continue
		}
		out = append(out, OutputInfo{
			Path:         p,
			Input:        input,
			Attributes:   maps.Clone(rec.Attributes),
			Capabilities: slices.Clone(rec.Capabilities),
		})
	}
	return out
}

func (c *Context) outputRecordLocked(path string) *OutputState {
	if rec, ok := c.outputs[path]; ok {
		return rec
	}
	return c.old.Outputs[path]
}

// OldOutputs returns the previous build's outputs of input.
func (c *Context) OldOutputs(input string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.old.Inputs[input]; ok {
		return slices.Clone(prev.Outputs)
	}
	return nil
}

// OldInputs returns every input of the previous build in path order.
func (c *Context) OldInputs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.old.Inputs))
}

// DeleteStaleOutputs deletes outputs of the previous build that are no
// longer backed by a live input: their input was not registered in this
// session, or was processed without associating them again. Each stale
// output is deleted and reported once.
func (c *Context) DeleteStaleOutputs() ([]string, error) {
	c.mu.Lock()
	var stale []string
	for path, prev := range c.old.Outputs {
		if c.deleted[path] {
			continue
		}
		if _, associated := c.outputs[path]; associated {
			continue
		}
		_, registered := c.status[prev.Input]
		if registered && !c.processed[prev.Input] {
			continue
		}
		stale = append(stale, path)
	}
	sort.Strings(stale)
	for _, path := range stale {
		c.deleted[path] = true
	}
	c.mu.Unlock()

	var errs []error
	for _, path := range stale {
		if err := c.fsys.Remove(path); err != nil && !errors.Is(err, iofs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("deleting stale output %s: %w", path, err))
		}
	}
	return stale, errors.Join(errs...)
}

// DeleteOutputs deletes previous outputs ahead of DeleteStaleOutputs, for
// callers that know them to be stale before the session ends. Paths that
// are associated in this session, already deleted, or unknown to the
// previous build are skipped. It returns the deleted paths in order.
func (c *Context) DeleteOutputs(paths []string) ([]string, error) {
	c.mu.Lock()
	var stale []string
	for _, path := range paths {
		if _, known := c.old.Outputs[path]; !known || c.deleted[path] {
			continue
		}
		if _, associated := c.outputs[path]; associated {
			continue
		}
		c.deleted[path] = true
		stale = append(stale, path)
	}
	sort.Strings(stale)
	c.mu.Unlock()

	var errs []error
	for _, path := range stale {
		if err := c.fsys.Remove(path); err != nil && !errors.Is(err, iofs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("deleting stale output %s: %w", path, err))
		}
	}
	return stale, errors.Join(errs...)
}

// OldOutput returns the previous build's record of an output.
func (c *Context) OldOutput(path string) (OutputInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.old.Outputs[path]
	if !ok {
		return OutputInfo{}, false
	}
	return OutputInfo{
		Path:         rec.Path,
		Input:        rec.Input,
		Attributes:   maps.Clone(rec.Attributes),
		Capabilities: slices.Clone(rec.Capabilities),
	}, true
}

// GetDependentInputs returns the registered inputs whose current
// requirements include (kind, value), in path order.
func (c *Context) GetDependentInputs(kind, value string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	want := Capability{Kind: kind, Value: value}
	var out []string
	for path := range c.status {
		if slices.Contains(c.inputs[path].Requirements, want) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// SetResourceAttribute stores an attribute on an arbitrary resource, such
// as the project descriptor, and returns the previous build's value.
func (c *Context) SetResourceAttribute(resource, key, value string) (old string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old, ok = c.old.Resources[resource][key]
	if c.resources[resource] == nil {
		c.resources[resource] = make(map[string]string)
	}
	c.resources[resource][key] = value
	return old, ok
}

// ResourceAttribute returns the previous build's value of a resource
// attribute.
func (c *Context) ResourceAttribute(resource, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.old.Resources[resource][key]
	return v, ok
}

// Written returns the outputs whose files were written in this session.
func (c *Context) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.written))
}

// Commit persists the session. Registered inputs that were not processed
// carry over their previous outputs and messages. The returned map holds
// the messages of every live input, including carried-over ones.
func (c *Context) Commit(ctx context.Context) (map[string][]Message, error) {
	c.mu.Lock()
	next := NewState()
	for path, st := range c.inputs {
		st = st.clone()
		next.Inputs[path] = st
		for _, out := range st.Outputs {
			rec := c.outputRecordLocked(out)
			if rec == nil || rec.Input != path {
				continue
			}
			next.Outputs[out] = rec.clone()
		}
	}
	for resource, attrs := range c.old.Resources {
		next.Resources[resource] = maps.Clone(attrs)
	}
	for resource, attrs := range c.resources {
		if next.Resources[resource] == nil {
			next.Resources[resource] = make(map[string]string)
		}
		maps.Copy(next.Resources[resource], attrs)
	}
	messages := make(map[string][]Message)
	for path, st := range next.Inputs {
		if len(st.Messages) > 0 {
			messages[path] = slices.Clone(st.Messages)
		}
	}
	c.mu.Unlock()

	if err := c.store.Save(ctx, next); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.old = next
	c.mu.Unlock()
	return messages, nil
}
