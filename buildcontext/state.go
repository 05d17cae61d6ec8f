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

// Package buildcontext tracks inputs, outputs and their metadata across
// builds. A Context is one build session over the persisted State of the
// previous build; Commit persists the new state through a Store.
package buildcontext

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Severity of a message.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// MarshalJSON implements json.Marshaler.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "error":
		*s = SeverityError
	case "warning":
		*s = SeverityWarning
	case "info":
		*s = SeverityInfo
	default:
		return fmt.Errorf("unknown severity %q", name)
	}
	return nil
}

// Message is a diagnostic attached to an input.
type Message struct {
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Text     string   `json:"text"`
	Severity Severity `json:"severity"`
}

// Capability is a (kind, value) pair an output provides or an input
// requires, e.g. ("type", "p.A").
type Capability struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// InputState is the persisted record of one input.
type InputState struct {
	Path         string            `json:"path"`
	Digest       string            `json:"digest"`
	Requirements []Capability      `json:"requirements,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Messages     []Message         `json:"messages,omitempty"`
	Outputs      []string          `json:"outputs,omitempty"`
}

// OutputState is the persisted record of one output.
type OutputState struct {
	Path         string            `json:"path"`
	Input        string            `json:"input"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Capabilities []Capability      `json:"capabilities,omitempty"`
}

// State is everything a Store persists.
type State struct {
	Inputs    map[string]*InputState       `json:"inputs"`
	Outputs   map[string]*OutputState      `json:"outputs"`
	Resources map[string]map[string]string `json:"resources"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Inputs:    make(map[string]*InputState),
		Outputs:   make(map[string]*OutputState),
		Resources: make(map[string]map[string]string),
	}
}

func (in *InputState) clone() *InputState {
	c := *in
	c.Requirements = slices.Clone(in.Requirements)
	c.Attributes = maps.Clone(in.Attributes)
	c.Messages = slices.Clone(in.Messages)
	c.Outputs = slices.Clone(in.Outputs)
	return &c
}

func (out *OutputState) clone() *OutputState {
	c := *out
	c.Attributes = maps.Clone(out.Attributes)
	c.Capabilities = slices.Clone(out.Capabilities)
	return &c
}
