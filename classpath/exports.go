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

import (
	"bufio"
	"bytes"
	"strings"
)

// ExportPackagePath lists the exported packages of a classpath entry, one
// dotted package per line.
const ExportPackagePath = "META-INF/javinc/export-package"

// ManifestPath is the jar manifest.
const ManifestPath = "META-INF/MANIFEST.MF"

// ReadExports computes the exported packages of an entry from its
// export-package file, or from an OSGi manifest declaring both
// Bundle-SymbolicName and Export-Package. It returns nil, meaning no
// restriction, when neither is present or readable.
func ReadExports(read func(name string) ([]byte, bool)) map[string]bool {
	if data, ok := read(ExportPackagePath); ok {
		exported := make(map[string]bool)
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			exported[line] = true
		}
		if sc.Err() == nil {
			return exported
		}
	}
	if data, ok := read(ManifestPath); ok {
		headers := parseManifest(data)
		if headers["Bundle-SymbolicName"] == "" {
			return nil
		}
		exports, ok := headers["Export-Package"]
		if !ok {
			return nil
		}
		exported := make(map[string]bool)
		for _, clause := range splitClauses(exports) {
			for _, part := range strings.Split(clause, ";") {
				part = strings.TrimSpace(part)
				if part == "" || strings.Contains(part, "=") {
					continue
				}
				exported[part] = true
			}
		}
		return exported
	}
	return nil
}

// parseManifest reads the main section of a manifest. Continuation lines
// start with a single space.
func parseManifest(data []byte) map[string]string {
	headers := make(map[string]string)
	var last string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, " ") {
			if last != "" {
				headers[last] += line[1:]
			}
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			last = ""
			continue
		}
		last = strings.TrimSpace(name)
		headers[last] = strings.TrimSpace(value)
	}
	return headers
}

// splitClauses splits an OSGi header at commas outside quotes.
func splitClauses(header string) []string {
	var clauses []string
	var cur strings.Builder
	quoted := false
	for _, r := range header {
		switch {
		case r == '"':
			quoted = !quoted
			cur.WriteRune(r)
		case r == ',' && !quoted:
			clauses = append(clauses, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		clauses = append(clauses, cur.String())
	}
	return clauses
}
