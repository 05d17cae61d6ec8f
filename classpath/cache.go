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
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"bennypowers.dev/javinc/fs"
	"bennypowers.dev/javinc/internal/logging"
)

// DefaultCacheSize bounds the number of open jars kept by a Cache.
const DefaultCacheSize = 256

type jarStamp struct {
	size    int64
	modTime time.Time
}

// cachedJar is an open jar with the number of classpaths using it. An
// evicted jar is closed once the last of them lets go.
type cachedJar struct {
	stamp jarStamp
	jar   *Jar

	mu      sync.Mutex
	leases  int
	evicted bool
}

func (c *cachedJar) acquire() *lease {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leases++
	return &lease{Entry: c.jar, owner: c}
}

func (c *cachedJar) release() error {
	c.mu.Lock()
	c.leases--
	closing := c.evicted && c.leases == 0
	c.mu.Unlock()
	if closing {
		return c.jar.Close()
	}
	return nil
}

func (c *cachedJar) evict() error {
	c.mu.Lock()
	c.evicted = true
	closing := c.leases == 0
	c.mu.Unlock()
	if closing {
		return c.jar.Close()
	}
	return nil
}

// Cache opens dependency entries and keeps jars open across compiles.
// A jar is reopened when its size or modification time changes. Jars
// handed out stay open until the Classpath holding them is closed, even
// when the cache evicts or replaces them in the meantime.
type Cache struct {
	fsys   fs.FileSystem
	logger logging.Logger
	mu     sync.Mutex
	jars   *lru.Cache[string, *cachedJar]
}

// NewCache creates a cache holding at most size open jars.
func NewCache(fsys fs.FileSystem, size int, logger logging.Logger) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	jars, err := lru.NewWithEvict(size, func(path string, c *cachedJar) {
		if err := c.evict(); err != nil && logger != nil {
			logger.Warning("Closing %s: %v", path, err)
		}
	})
	if err != nil {
		panic("classpath: " + err.Error())
	}
	return &Cache{fsys: fsys, logger: logger, jars: jars}
}

// Dependency returns the entry for a resolved dependency: a class
// directory or a jar, restricted to its exported packages. Missing and
// unreadable dependencies return nil. Closing the returned entry, which
// Classpath.Close does, releases it.
func (c *Cache) Dependency(path string) Entry {
	info, err := c.fsys.Stat(path)
	if err != nil {
		if c.logger != nil {
			c.logger.Debug("Skipping missing classpath entry %s", path)
		}
		return nil
	}
	if info.IsDir() {
		exported := ReadExports(func(name string) ([]byte, bool) {
			data, err := c.fsys.ReadFile(filepath.Join(path, name))
			return data, err == nil
		})
		return NewClassDirectory(c.fsys, path, exported)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	st := jarStamp{size: info.Size(), modTime: info.ModTime()}
	if cached, ok := c.jars.Get(path); ok {
		if cached.stamp == st {
			return cached.acquire()
		}
		c.jars.Remove(path)
	}
	j, err := OpenJar(c.fsys, path, nil)
	if err != nil {
		if c.logger != nil {
			c.logger.Warning("Ignoring unreadable classpath entry %s: %v", path, err)
		}
		return nil
	}
	j.exported = ReadExports(j.Read)
	cached := &cachedJar{stamp: st, jar: j}
	l := cached.acquire()
	c.jars.Add(path, cached)
	return l
}

// Close evicts every cached jar. Jars still leased are closed on release.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jars.Purge()
	return nil
}

// lease is a cached jar handed to one user. Close releases it once.
type lease struct {
	Entry
	owner *cachedJar
	once  sync.Once
}

func (l *lease) Location() string {
	if loc, ok := l.Entry.(Located); ok {
		return loc.Location()
	}
	return ""
}

func (l *lease) Close() error {
	var err error
	l.once.Do(func() { err = l.owner.release() })
	return err
}

// Platform returns the platform libraries of a Java installation:
// the jars of jre/lib or lib directly under javaHome. An empty javaHome
// falls back to $JAVA_HOME.
func Platform(fsys fs.FileSystem, javaHome string) []string {
	if javaHome == "" {
		javaHome = os.Getenv("JAVA_HOME")
	}
	if javaHome == "" {
		return nil
	}
	for _, dir := range []string{filepath.Join(javaHome, "jre", "lib"), filepath.Join(javaHome, "lib")} {
		entries, err := fsys.ReadDir(dir)
		if err != nil {
			continue
		}
		var jars []string
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ".jar" {
				jars = append(jars, filepath.Join(dir, e.Name()))
			}
		}
		if len(jars) > 0 {
			return jars
		}
	}
	return nil
}
