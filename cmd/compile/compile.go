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

// Package compile provides the compile command for javinc.
package compile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/javinc/buildcontext"
	"bennypowers.dev/javinc/classpath"
	"bennypowers.dev/javinc/compiler"
	"bennypowers.dev/javinc/compiler/javac"
	"bennypowers.dev/javinc/fs"
	"bennypowers.dev/javinc/incremental"
	"bennypowers.dev/javinc/internal/logging"
	"bennypowers.dev/javinc/internal/output"
	"bennypowers.dev/javinc/typeindex"
)

// Cmd is the compile cobra command that incrementally compiles a module.
var Cmd = &cobra.Command{
	Use:   "compile",
	Short: "Incrementally compile Java sources",
	Long: `Compile the Java sources of one module, recompiling only what changed
since the previous build and the sources affected by it.

Build state is kept in --state-dir between runs. Deleting it forces a full
build.`,
	Example: `  # Compile src/main/java into target/classes
  javinc compile

  # Compile against dependencies, forbidding transitive ones
  javinc compile --classpath lib/api.jar,lib/impl.jar \
    --direct-dependency lib/api.jar --access-rules error

  # Machine readable report
  javinc compile --format json`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := Cmd.Flags()
	f.StringSlice("source-root", []string{filepath.Join("src", "main", "java")}, "Source root directories")
	f.StringSlice("include", nil, "Source include patterns (default **/*.java)")
	f.StringSlice("exclude", nil, "Source exclude patterns")
	f.StringP("output-dir", "d", filepath.Join("target", "classes"), "Class output directory")
	f.StringSlice("classpath", nil, "Dependency jars and class directories, in lookup order")
	f.StringSlice("direct-dependency", nil, "Classpath entries declared directly by the module")
	f.String("access-rules", incremental.AccessRulesIgnore, "Access to transitive dependencies (ignore, error)")
	f.StringSlice("platform-classpath", nil, "Platform libraries (default: jars under --java-home)")
	f.String("java-home", "", "Java installation (default $JAVA_HOME)")
	f.String("source", "", "Java source level")
	f.String("target", "", "Java target level")
	f.String("encoding", "UTF-8", "Source encoding")
	f.String("descriptor", "", "Project descriptor the classpath digest is recorded on")
	f.Bool("skip", false, "Skip compilation")
	f.Bool("show-warnings", false, "Report compiler warnings")
	f.String("state-dir", filepath.Join("target", "javinc-state"), "Build state directory")
	f.String("javac", "javac", "javac executable")
	f.Int("compilers", 1, "Maximum concurrent compiler instances")
	f.StringP("format", "f", "text", "Output format (text, json)")

	for _, name := range []string{
		"source-root", "include", "exclude", "output-dir", "classpath", "direct-dependency",
		"access-rules", "platform-classpath", "java-home", "source", "target", "encoding",
		"descriptor", "skip", "show-warnings", "state-dir", "javac", "compilers", "format",
	} {
		_ = viper.BindPFlag(name, f.Lookup(name))
	}
}

// Config reads the module configuration from viper.
func Config() (incremental.Config, error) {
	outputDir, err := filepath.Abs(viper.GetString("output-dir"))
	if err != nil {
		return incremental.Config{}, fmt.Errorf("invalid output directory: %w", err)
	}
	roots, err := absAll(viper.GetStringSlice("source-root"))
	if err != nil {
		return incremental.Config{}, err
	}
	cp, err := absAll(viper.GetStringSlice("classpath"))
	if err != nil {
		return incremental.Config{}, err
	}
	direct, err := absAll(viper.GetStringSlice("direct-dependency"))
	if err != nil {
		return incremental.Config{}, err
	}
	platform, err := absAll(viper.GetStringSlice("platform-classpath"))
	if err != nil {
		return incremental.Config{}, err
	}
	return incremental.Config{
		SourceRoots:          roots,
		Includes:             viper.GetStringSlice("include"),
		Excludes:             viper.GetStringSlice("exclude"),
		OutputDirectory:      outputDir,
		Classpath:            cp,
		DirectDependencies:   direct,
		AccessRulesViolation: viper.GetString("access-rules"),
		PlatformClasspath:    platform,
		JavaHome:             viper.GetString("java-home"),
		Source:               viper.GetString("source"),
		Target:               viper.GetString("target"),
		Encoding:             viper.GetString("encoding"),
		Descriptor:           viper.GetString("descriptor"),
		Skip:                 viper.GetBool("skip"),
		ShowWarnings:         viper.GetBool("show-warnings"),
		Verbose:              viper.GetBool("verbose"),
	}, nil
}

func absAll(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("invalid path %s: %w", p, err)
		}
		out = append(out, abs)
	}
	return out, nil
}

func run(cmd *cobra.Command, args []string) error {
	format := viper.GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format %q: must be 'text' or 'json'", format)
	}
	cfg, err := Config()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(os.Stderr, viper.GetBool("verbose"))
	osfs := fs.NewOSFileSystem()

	env := incremental.Environment{
		FS:      osfs,
		Entries: classpath.NewCache(osfs, 0, logger),
		Indexer: typeindex.NewIndexer(osfs, 0, logger),
		Logger:  logger,
	}
	defer env.Entries.Close()

	if !cfg.Skip {
		stateDir, err := filepath.Abs(viper.GetString("state-dir"))
		if err != nil {
			return fmt.Errorf("invalid state directory: %w", err)
		}
		store, err := buildcontext.OpenStore(buildcontext.StoreConfig{Path: stateDir, Logger: logger.Slog()})
		if err != nil {
			return err
		}
		defer store.Close()
		env.Store = store

		executable := viper.GetString("javac")
		env.Compilers = compiler.NewPool(viper.GetInt("compilers"), func() compiler.Compiler {
			return javac.New(executable, logger)
		})
	}

	res, buildErr := incremental.Compile(cmd.Context(), cfg, env)
	if res != nil {
		text, err := output.NewReport(res).Format(format)
		if err != nil {
			return err
		}
		if err := output.Print(osfs, text); err != nil {
			return err
		}
	}
	return buildErr
}
