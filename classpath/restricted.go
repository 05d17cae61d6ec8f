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

package classpath

import "fmt"

// Restricted wraps an entry so that every answer is restricted. It models
// dependencies that are on the classpath only transitively when access
// rules are enforced.
type Restricted struct {
	Entry
}

// Restrict wraps e.
func Restrict(e Entry) *Restricted {
	return &Restricted{Entry: e}
}

func (r *Restricted) FindType(pkg, typeName string) *Answer {
	answer := r.Entry.FindType(pkg, typeName)
	if answer == nil {
		return nil
	}
	restricted := *answer
	restricted.Restriction = &Restriction{
		Message: fmt.Sprintf("Access restriction: The type '%s' is not API (restriction on classpath entry '%s')", Qualify(pkg, typeName), r.Entry.Description()),
	}
	return &restricted
}

func (r *Restricted) Description() string { return "restricted " + r.Entry.Description() }

// Location forwards to the wrapped entry.
func (r *Restricted) Location() string {
	if l, ok := r.Entry.(Located); ok {
		return l.Location()
	}
	return ""
}

// Close forwards to the wrapped entry.
func (r *Restricted) Close() error {
	if c, ok := r.Entry.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
