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

package tracker_test

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/javinc/tracker"
)

func TestAddOutputReturnsReferencingInputs(t *testing.T) {
	tr := tracker.New()
	tr.AddReferencedType("B.java", "p.A")
	tr.AddReferencedSimpleName("C.java", "A")
	tr.AddReferencedType("D.java", "p.Other")

	got := tr.AddOutput("A.java", "out/p/A.class", "p.A", "A")
	assert.Equal(t, []string{"B.java", "C.java"}, got)

	assert.Equal(t, []string{"out/p/A.class"}, tr.OutputsOf("A.java"))
	in, ok := tr.InputOf("out/p/A.class")
	require.True(t, ok)
	assert.Equal(t, "A.java", in)
}

func TestRemoveOutput(t *testing.T) {
	tr := tracker.New()
	tr.AddReferencedType("B.java", "p.A")
	tr.AddReferencedType("A.java", "java.lang.Object")
	tr.AddOutput("A.java", "out/p/A.class", "p.A", "A")
	tr.AddOutput("A.java", "out/p/A$In.class", "p.A$In", "A$In")

	assert.Equal(t, []string{"B.java"}, tr.RemoveOutput("out/p/A.class"))
	assert.Equal(t, []string{"A.java"}, tr.ReferencingType("java.lang.Object"), "input keeps references while it has outputs")

	assert.Empty(t, tr.RemoveOutput("out/p/A$In.class"))
	assert.Empty(t, tr.ReferencingType("java.lang.Object"), "last output removal drops the input's references")
	assert.Empty(t, tr.OutputsOf("A.java"))
	assert.False(t, tr.Mentions("A.java"))

	assert.Empty(t, tr.RemoveOutput("out/unknown.class"))
}

func TestAddOutputMovesOwnership(t *testing.T) {
	tr := tracker.New()
	tr.AddOutput("Old.java", "out/p/X.class", "p.X", "X")
	tr.AddOutput("New.java", "out/p/X.class", "p.X", "X")

	assert.Empty(t, tr.OutputsOf("Old.java"))
	assert.Equal(t, []string{"out/p/X.class"}, tr.OutputsOf("New.java"))

	tr.RemoveOutput("out/p/X.class")
	assert.True(t, tr.Empty())
}

func TestResetInput(t *testing.T) {
	tr := tracker.New()
	tr.AddReferencedType("B.java", "p.A")
	tr.AddReferencedSimpleName("B.java", "A")
	tr.AddOutput("B.java", "out/p/B.class", "p.B", "B")

	tr.ResetInput("B.java")
	assert.Empty(t, tr.ReferencingType("p.A"))
	assert.Empty(t, tr.ReferencingSimpleName("A"))
	assert.Equal(t, []string{"out/p/B.class"}, tr.OutputsOf("B.java"))
}

// TestSymmetry drives random add/remove sequences and checks that removing
// every output of an input leaves nothing behind for it.
func TestSymmetry(t *testing.T) {
	for seed := uint64(1); seed <= 25; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, seed*7))
			tr := tracker.New()
			inputs := []string{"A.java", "B.java", "C.java", "D.java"}
			live := make(map[string]bool)

			for step := 0; step < 200; step++ {
				input := inputs[rng.IntN(len(inputs))]
				switch rng.IntN(4) {
				case 0:
					tr.AddReferencedType(input, fmt.Sprintf("p.T%d", rng.IntN(6)))
				case 1:
					tr.AddReferencedSimpleName(input, fmt.Sprintf("T%d", rng.IntN(6)))
				case 2:
					n := rng.IntN(6)
					output := fmt.Sprintf("out/%s/T%d.class", input, n)
					tr.AddOutput(input, output, fmt.Sprintf("p.T%d", n), fmt.Sprintf("T%d", n))
					live[output] = true
				case 3:
					for output := range live {
						tr.RemoveOutput(output)
						delete(live, output)
						break
					}
				}
			}

			for output := range live {
				tr.RemoveOutput(output)
			}
			for _, in := range inputs {
				if len(tr.OutputsOf(in)) == 0 {
					tr.ResetInput(in)
				}
			}
			assert.True(t, tr.Empty(), "tracker leaked entries")
		})
	}
}

func TestSymmetryPerInput(t *testing.T) {
	tr := tracker.New()
	tr.AddReferencedType("B.java", "p.A")
	tr.AddOutput("B.java", "out/p/B.class", "p.B", "B")
	tr.AddReferencedType("A.java", "p.B")
	tr.AddReferencedSimpleName("A.java", "B")
	tr.AddOutput("A.java", "out/p/A.class", "p.A", "A")
	tr.AddOutput("A.java", "out/p/A$1.class", "p.A$1", "A$1")

	for _, output := range tr.OutputsOf("A.java") {
		tr.RemoveOutput(output)
	}
	assert.False(t, tr.Mentions("A.java"))
	assert.False(t, tr.Mentions("out/p/A.class"))
	assert.False(t, tr.Mentions("out/p/A$1.class"))
	assert.True(t, tr.Mentions("B.java"))
	assert.Equal(t, []string{"B.java"}, tr.ReferencingType("p.A"), "references to the type by other inputs survive")
}
