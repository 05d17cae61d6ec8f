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

// Package tracker maintains the reverse-dependency maps of one compile
// session: who references a type, who references a simple name, and which
// input produced which output.
package tracker

import (
	"slices"
	"sync"
)

type set map[string]bool

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func add(m map[string]set, key, value string) {
	if m[key] == nil {
		m[key] = make(set)
	}
	m[key][value] = true
}

func remove(m map[string]set, key, value string) {
	if s := m[key]; s != nil {
		delete(s, value)
		if len(s) == 0 {
			delete(m, key)
		}
	}
}

// Tracker records references and outputs. Every output belongs to exactly
// one input; RemoveOutput fully reverses AddOutput.
type Tracker struct {
	mu sync.RWMutex

	// typeReferences maps type name -> inputs referencing it
	typeReferences map[string]set

	// simpleNameReferences maps simple name -> inputs referencing it
	simpleNameReferences map[string]set

	// inputTypes and inputSimpleNames are the forward views of the two
	// reference maps, used to drop an input's references
	inputTypes       map[string]set
	inputSimpleNames map[string]set

	// providedTypes and providedSimpleNames map output -> what it provides
	providedTypes       map[string]string
	providedSimpleNames map[string]string

	// inputOutputs maps input -> outputs; outputInput is its inverse
	inputOutputs map[string]set
	outputInput  map[string]string
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		typeReferences:       make(map[string]set),
		simpleNameReferences: make(map[string]set),
		inputTypes:           make(map[string]set),
		inputSimpleNames:     make(map[string]set),
		providedTypes:        make(map[string]string),
		providedSimpleNames:  make(map[string]string),
		inputOutputs:         make(map[string]set),
		outputInput:          make(map[string]string),
	}
}

// AddReferencedType records that input references the qualified type.
func (t *Tracker) AddReferencedType(input, typeName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	add(t.typeReferences, typeName, input)
	add(t.inputTypes, input, typeName)
}

// AddReferencedSimpleName records that input references a simple name.
func (t *Tracker) AddReferencedSimpleName(input, simpleName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	add(t.simpleNameReferences, simpleName, input)
	add(t.inputSimpleNames, input, simpleName)
}

// ResetInput drops every reference recorded for input. Outputs are kept.
func (t *Tracker) ResetInput(input string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropReferencesLocked(input)
}

func (t *Tracker) dropReferencesLocked(input string) {
	for typeName := range t.inputTypes[input] {
		remove(t.typeReferences, typeName, input)
	}
	delete(t.inputTypes, input)
	for name := range t.inputSimpleNames[input] {
		remove(t.simpleNameReferences, name, input)
	}
	delete(t.inputSimpleNames, input)
}

// AddOutput registers output as produced by input and providing typeName
// and simpleName. If output was registered under another input it is moved.
// Returns the sorted inputs that reference typeName or simpleName.
func (t *Tracker) AddOutput(input, output, typeName, simpleName string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.outputInput[output]; ok && prev != input {
		remove(t.inputOutputs, prev, output)
	}
	add(t.inputOutputs, input, output)
	t.outputInput[output] = input
	t.providedTypes[output] = typeName
	t.providedSimpleNames[output] = simpleName

	return t.referencingLocked(typeName, simpleName)
}

// RemoveOutput unregisters output and returns the sorted inputs that
// referenced the type or simple name it provided. When the owning input has
// no outputs left, the input's references are dropped as well.
func (t *Tracker) RemoveOutput(output string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	typeName, known := t.providedTypes[output]
	simpleName := t.providedSimpleNames[output]
	var result []string
	if known {
		result = t.referencingLocked(typeName, simpleName)
	}
	delete(t.providedTypes, output)
	delete(t.providedSimpleNames, output)

	if input, ok := t.outputInput[output]; ok {
		delete(t.outputInput, output)
		remove(t.inputOutputs, input, output)
		if _, more := t.inputOutputs[input]; !more {
			t.dropReferencesLocked(input)
		}
	}
	return result
}

func (t *Tracker) referencingLocked(typeName, simpleName string) []string {
	inputs := make(set)
	for in := range t.typeReferences[typeName] {
		inputs[in] = true
	}
	for in := range t.simpleNameReferences[simpleName] {
		inputs[in] = true
	}
	return inputs.sorted()
}

// ReferencingType returns the sorted inputs that reference typeName.
func (t *Tracker) ReferencingType(typeName string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.typeReferences[typeName].sorted()
}

// ReferencingSimpleName returns the sorted inputs that reference simpleName.
func (t *Tracker) ReferencingSimpleName(simpleName string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.simpleNameReferences[simpleName].sorted()
}

// OutputsOf returns the sorted outputs registered for input.
func (t *Tracker) OutputsOf(input string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.inputOutputs[input].sorted()
}

// InputOf returns the input that produced output.
func (t *Tracker) InputOf(output string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	in, ok := t.outputInput[output]
	return in, ok
}

// ProvidedType returns the type name output provides.
func (t *Tracker) ProvidedType(output string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	typeName, ok := t.providedTypes[output]
	return typeName, ok
}

// Empty reports whether the tracker holds no entries at all.
func (t *Tracker) Empty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.typeReferences) == 0 &&
		len(t.simpleNameReferences) == 0 &&
		len(t.inputTypes) == 0 &&
		len(t.inputSimpleNames) == 0 &&
		len(t.providedTypes) == 0 &&
		len(t.providedSimpleNames) == 0 &&
		len(t.inputOutputs) == 0 &&
		len(t.outputInput) == 0
}

// Mentions reports whether any map still refers to name as an input,
// output, type or simple name.
func (t *Tracker) Mentions(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, m := range []map[string]set{t.typeReferences, t.simpleNameReferences, t.inputTypes, t.inputSimpleNames, t.inputOutputs} {
		if _, ok := m[name]; ok {
			return true
		}
		for _, s := range m {
			if s[name] {
				return true
			}
		}
	}
	for _, m := range []map[string]string{t.providedTypes, t.providedSimpleNames, t.outputInput} {
		if _, ok := m[name]; ok {
			return true
		}
		for _, v := range m {
			if v == name {
				return true
			}
		}
	}
	return false
}
