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

package compiler

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool lends Compiler instances to one caller at a time and bounds how
// many are in use. Instances are created on demand and reused after
// check-in. An instance whose use panicked is discarded.
type Pool struct {
	newCompiler func() Compiler
	sem         *semaphore.Weighted

	mu   sync.Mutex
	idle []Compiler
}

// NewPool creates a pool of at most size instances built by newCompiler.
func NewPool(size int, newCompiler func() Compiler) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{newCompiler: newCompiler, sem: semaphore.NewWeighted(int64(size))}
}

// Do checks out an instance, runs fn with it and checks it back in on
// every exit path. It blocks until an instance is available or ctx is
// done.
func (p *Pool) Do(ctx context.Context, fn func(Compiler) error) (err error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for a compiler: %w", err)
	}
	defer p.sem.Release(1)

	c := p.checkout()
	healthy := false
	defer func() {
		if healthy {
			p.checkin(c)
		}
	}()
	err = fn(c)
	healthy = true
	return err
}

// Idle returns the number of instances waiting for reuse.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

func (p *Pool) checkout() Compiler {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		return c
	}
	return p.newCompiler()
}

func (p *Pool) checkin(c Compiler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle = append(p.idle, c)
}
