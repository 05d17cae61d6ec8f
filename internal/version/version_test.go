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

package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func restore(t *testing.T) {
	v, c, tag, d := Version, GitCommit, GitTag, GitDirty
	t.Cleanup(func() { Version, GitCommit, GitTag, GitDirty = v, c, tag, d })
}

func TestGetVersionPrefersLdflags(t *testing.T) {
	restore(t)
	Version = "v1.2.3"
	assert.Equal(t, "v1.2.3", GetVersion())
}

func TestGetVersionFromGit(t *testing.T) {
	restore(t)
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		t.Skipf("binary carries module version %s", bi.Main.Version)
	}
	Version, GitTag, GitCommit, GitDirty = "dev", "v0.1.0", "0123456789abcdef", "dirty"
	assert.Equal(t, "v0.1.0-0123456-dirty", GetVersion())
	assert.Equal(t, "v0.1.0-0123456-dirty (commit: 0123456789abcdef)", GetFullVersion())
}

func TestGetBuildInfo(t *testing.T) {
	restore(t)
	Version = "v2.0.0"
	info := GetBuildInfo()
	assert.Equal(t, "v2.0.0", info["version"])
	assert.Contains(t, info, "goVersion")
}
