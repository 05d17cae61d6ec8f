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

package incremental

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Access rule policies for dependencies that are not direct.
const (
	AccessRulesIgnore = "ignore"
	AccessRulesError  = "error"
)

// DefaultIncludes selects every Java source below a source root.
var DefaultIncludes = []string{"**/*.java"}

// Config describes one module compile.
type Config struct {
	// SourceRoots are the directories scanned for inputs.
	SourceRoots []string
	// Includes and Excludes are doublestar patterns relative to a source
	// root. No includes means DefaultIncludes.
	Includes []string
	Excludes []string

	OutputDirectory string

	// Classpath lists dependency class directories and jars in lookup
	// order.
	Classpath []string
	// DirectDependencies are the Classpath entries the module declares
	// itself. With AccessRulesViolation "error" every other dependency is
	// forbidden.
	DirectDependencies   []string
	AccessRulesViolation string

	// PlatformClasspath replaces the libraries found under JavaHome.
	PlatformClasspath []string
	JavaHome          string

	Source   string
	Target   string
	Encoding string

	// Descriptor names the resource the classpath digest is stored on,
	// usually the project descriptor. Defaults to OutputDirectory.
	Descriptor string

	Skip         bool
	ShowWarnings bool
	Verbose      bool
}

// Validate reports every problem with the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.OutputDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	switch c.AccessRulesViolation {
	case "", AccessRulesIgnore, AccessRulesError:
	default:
		errs = append(errs, fmt.Errorf("access rules violation must be %q or %q, got %q",
			AccessRulesIgnore, AccessRulesError, c.AccessRulesViolation))
	}
	for _, root := range c.SourceRoots {
		if c.OutputDirectory != "" && filepath.Clean(root) == filepath.Clean(c.OutputDirectory) {
			errs = append(errs, fmt.Errorf("source root %s is also the output directory", root))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) includes() []string {
	if len(c.Includes) == 0 {
		return DefaultIncludes
	}
	return c.Includes
}

func (c *Config) descriptor() string {
	if c.Descriptor != "" {
		return c.Descriptor
	}
	return filepath.Clean(c.OutputDirectory)
}

func (c *Config) enforceAccessRules() bool {
	return c.AccessRulesViolation == AccessRulesError
}
