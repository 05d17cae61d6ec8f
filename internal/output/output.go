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

// Package output renders build reports for javinc CLI commands.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"bennypowers.dev/javinc/buildcontext"
	"bennypowers.dev/javinc/fs"
	"bennypowers.dev/javinc/incremental"
)

// Diagnostic is one message reported for a source file.
type Diagnostic struct {
	File     string                `json:"file"`
	Line     int                   `json:"line,omitempty"`
	Column   int                   `json:"column,omitempty"`
	Severity buildcontext.Severity `json:"severity"`
	Text     string                `json:"text"`
}

// Report is the printable summary of a build.
type Report struct {
	Compiled    []string     `json:"compiled"`
	Written     []string     `json:"written"`
	Deleted     []string     `json:"deleted"`
	Errors      int          `json:"errors"`
	Warnings    int          `json:"warnings"`
	Skipped     bool         `json:"skipped,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// NewReport summarizes res. Diagnostics are ordered by file, line and
// column.
func NewReport(res *incremental.Result) *Report {
	r := &Report{
		Compiled:    nonNil(res.Compiled),
		Written:     nonNil(res.Written),
		Deleted:     nonNil(res.Deleted),
		Errors:      res.Errors,
		Warnings:    res.Warnings,
		Skipped:     res.Skipped,
		Diagnostics: []Diagnostic{},
	}
	for file, messages := range res.Messages {
		for _, m := range messages {
			r.Diagnostics = append(r.Diagnostics, Diagnostic{
				File:     file,
				Line:     m.Line,
				Column:   m.Column,
				Severity: m.Severity,
				Text:     m.Text,
			})
		}
	}
	sort.SliceStable(r.Diagnostics, func(i, j int) bool {
		a, b := r.Diagnostics[i], r.Diagnostics[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return r
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Format renders the report as "text" or "json".
func (r *Report) Format(format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encoding report: %w", err)
		}
		return string(data), nil
	case "text", "":
		return r.text(), nil
	}
	return "", fmt.Errorf("invalid format %q: must be 'text' or 'json'", format)
}

func (r *Report) text() string {
	if r.Skipped {
		return "compilation skipped"
	}
	var b strings.Builder
	for _, d := range r.Diagnostics {
		switch {
		case d.Line > 0 && d.Column > 0:
			fmt.Fprintf(&b, "%s:%d:%d: %s: %s\n", d.File, d.Line, d.Column, d.Severity, d.Text)
		case d.Line > 0:
			fmt.Fprintf(&b, "%s:%d: %s: %s\n", d.File, d.Line, d.Severity, d.Text)
		default:
			fmt.Fprintf(&b, "%s: %s: %s\n", d.File, d.Severity, d.Text)
		}
	}
	fmt.Fprintf(&b, "compiled %d %s, wrote %d, deleted %d; %d %s, %d %s",
		len(r.Compiled), plural(len(r.Compiled), "source", "sources"),
		len(r.Written), len(r.Deleted),
		r.Errors, plural(r.Errors, "error", "errors"),
		r.Warnings, plural(r.Warnings, "warning", "warnings"))
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// Print writes text to the file named by viper's "output" key, or to
// stdout when it is unset.
func Print(osfs fs.FileSystem, text string) error {
	return Fprint(osfs, os.Stdout, text)
}

// Fprint is Print with an explicit fallback writer.
func Fprint(osfs fs.FileSystem, w io.Writer, text string) error {
	if outputPath := viper.GetString("output"); outputPath != "" {
		return osfs.WriteFile(outputPath, []byte(text+"\n"), 0644)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
