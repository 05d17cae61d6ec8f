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

package fs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/javinc/fs"
	"bennypowers.dev/javinc/internal/mapfs"
)

func TestWalkVisitsFilesInOrder(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddFile("/src/p/B.java", "", 0o644)
	mfs.AddFile("/src/p/A.java", "", 0o644)
	mfs.AddFile("/src/p/q/C.java", "", 0o644)
	mfs.AddFile("/src/.keep", "", 0o644)
	mfs.AddFile("/other/D.java", "", 0o644)

	var rels []string
	err := fs.Walk(mfs, "/src", func(_, rel string) error {
		rels = append(rels, rel)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p/A.java", "p/B.java", "p/q/C.java"}, rels)
}

func TestWalkMissingRoot(t *testing.T) {
	called := false
	err := fs.Walk(mapfs.New(), "/nowhere", func(_, _ string) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestWalkStopsOnError(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddFile("/src/A.java", "", 0o644)
	mfs.AddFile("/src/B.java", "", 0o644)

	stop := errors.New("stop")
	var seen int
	err := fs.Walk(mfs, "/src", func(_, _ string) error {
		seen++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, seen)
}

func TestCaseInsensitiveLookups(t *testing.T) {
	mfs := mapfs.NewCaseInsensitive()
	mfs.AddFile("/src/p/Foo.java", "class Foo {}", 0o644)

	data, err := mfs.ReadFile("/SRC/p/foo.java")
	require.NoError(t, err)
	assert.Equal(t, "class Foo {}", string(data))

	entries, err := mfs.ReadDir("/src/P")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Foo.java", entries[0].Name())
}
