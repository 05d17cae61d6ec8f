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

// Package index provides the index command for javinc.
package index

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/javinc/fs"
	"bennypowers.dev/javinc/internal/logging"
	"bennypowers.dev/javinc/internal/output"
	"bennypowers.dev/javinc/typeindex"
)

// Cmd is the index cobra command that prints or persists type indexes.
var Cmd = &cobra.Command{
	Use:   "index <entry>...",
	Short: "Compute the type index of classpath entries",
	Long: `Compute the structural type index of jars and class directories.

Each line holds a binary type name and the base64 digest of its API. With
--write the merged index is stored in the given class directory, where
later builds read it instead of scanning class files.`,
	Example: `  # Print the index of a jar
  javinc index lib/api.jar

  # Persist the index of a class directory into it
  javinc index target/classes --write target/classes`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	Cmd.Flags().StringP("write", "w", "", "Class directory to store the merged index in")
}

func run(cmd *cobra.Command, args []string) error {
	osfs := fs.NewOSFileSystem()
	logger := logging.New(os.Stderr, viper.GetBool("verbose"))

	paths := make([]string, 0, len(args))
	for _, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return fmt.Errorf("invalid entry %s: %w", a, err)
		}
		if !osfs.Exists(abs) {
			return fmt.Errorf("classpath entry %s does not exist", a)
		}
		paths = append(paths, abs)
	}

	idx, err := typeindex.NewIndexer(osfs, 0, logger).Classpath(cmd.Context(), paths)
	if err != nil {
		return err
	}

	write, err := cmd.Flags().GetString("write")
	if err != nil {
		return fmt.Errorf("error reading write flag: %w", err)
	}
	if write != "" {
		if err := typeindex.WriteFile(osfs, write, idx); err != nil {
			return err
		}
		logger.Info("Wrote index of %d types to %s", idx.Len(), filepath.Join(write, typeindex.Path))
		return nil
	}

	var buf bytes.Buffer
	if err := typeindex.Encode(&buf, idx); err != nil {
		return err
	}
	return output.Print(osfs, strings.TrimSuffix(buf.String(), "\n"))
}
