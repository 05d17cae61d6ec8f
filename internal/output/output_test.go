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

package output_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/javinc/buildcontext"
	"bennypowers.dev/javinc/incremental"
	"bennypowers.dev/javinc/internal/mapfs"
	"bennypowers.dev/javinc/internal/output"
)

func result() *incremental.Result {
	return &incremental.Result{
		Compiled: []string{"/src/p/B.java"},
		Deleted:  []string{"/out/p/A.class"},
		Messages: map[string][]buildcontext.Message{
			"/src/p/B.java": {
				{Line: 4, Column: 5, Text: "A cannot be resolved to a type", Severity: buildcontext.SeverityError},
				{Line: 2, Text: "unused import", Severity: buildcontext.SeverityWarning},
			},
			"/src/p/A.java": {{Text: "deprecated API", Severity: buildcontext.SeverityWarning}},
		},
		Errors:   1,
		Warnings: 2,
	}
}

func TestFormatText(t *testing.T) {
	text, err := output.NewReport(result()).Format("text")
	require.NoError(t, err)
	assert.Equal(t, `/src/p/A.java: warning: deprecated API
/src/p/B.java:2: warning: unused import
/src/p/B.java:4:5: error: A cannot be resolved to a type
compiled 1 source, wrote 0, deleted 1; 1 error, 2 warnings`, text)

	skipped, err := output.NewReport(&incremental.Result{Skipped: true}).Format("text")
	require.NoError(t, err)
	assert.Equal(t, "compilation skipped", skipped)
}

func TestFormatJSON(t *testing.T) {
	text, err := output.NewReport(&incremental.Result{}).Format("json")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &decoded))
	assert.Equal(t, []any{}, decoded["compiled"], "empty lists encode as arrays")
	assert.Equal(t, []any{}, decoded["diagnostics"])

	text, err = output.NewReport(result()).Format("json")
	require.NoError(t, err)
	var report output.Report
	require.NoError(t, json.Unmarshal([]byte(text), &report))
	require.Len(t, report.Diagnostics, 3)
	assert.Equal(t, buildcontext.SeverityError, report.Diagnostics[2].Severity)
}

func TestFormatInvalid(t *testing.T) {
	_, err := output.NewReport(&incremental.Result{}).Format("xml")
	assert.Error(t, err)
}

func TestFprint(t *testing.T) {
	mfs := mapfs.New()
	var buf bytes.Buffer

	viper.Set("output", "")
	require.NoError(t, output.Fprint(mfs, &buf, "hello"))
	assert.Equal(t, "hello\n", buf.String())

	viper.Set("output", "/report.txt")
	t.Cleanup(func() { viper.Set("output", "") })
	require.NoError(t, output.Fprint(mfs, &buf, "to file"))
	data, err := mfs.ReadFile("/report.txt")
	require.NoError(t, err)
	assert.Equal(t, "to file\n", string(data))
}
