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

package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevels(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		wantDebug bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			var l Logger = New(&buf, tt.verbose)
			l.Debug("scanning %s", "rt.jar")
			l.Info("compiled %d", 3)
			l.Warning("missing %q", "dep.jar")

			out := buf.String()
			assert.Contains(t, out, "level=INFO msg=\"compiled 3\"")
			assert.Contains(t, out, "level=WARN")
			assert.Contains(t, out, "dep.jar")
			if tt.wantDebug {
				assert.Contains(t, out, "scanning rt.jar")
			} else {
				assert.NotContains(t, out, "scanning")
			}
		})
	}
}
