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

package buildcontext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Store persists build state between sessions.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
	Close() error
}

const (
	inputPrefix    = "in/"
	outputPrefix   = "out/"
	resourcePrefix = "res/"
)

// StoreConfig configures a BadgerStore.
type StoreConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps the database in memory, for tests.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives badger's own log output. Nil disables it.
	Logger *slog.Logger
}

// BadgerStore keeps one JSON record per input, output and resource.
type BadgerStore struct {
	db *badger.DB
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenStore opens a badger-backed store.
func OpenStore(cfg StoreConfig) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("path is required for a persistent build state")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create state directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open build state: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenInMemoryStore opens an in-memory store.
func OpenInMemoryStore() (*BadgerStore, error) {
	return OpenStore(StoreConfig{InMemory: true})
}

// Load reads the persisted state. An empty database yields an empty state.
func (s *BadgerStore) Load(ctx context.Context) (*State, error) {
	state := NewState()
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(val []byte) error {
				switch {
				case strings.HasPrefix(key, inputPrefix):
					var in InputState
					if err := json.Unmarshal(val, &in); err != nil {
						return err
					}
					state.Inputs[in.Path] = &in
				case strings.HasPrefix(key, outputPrefix):
					var out OutputState
					if err := json.Unmarshal(val, &out); err != nil {
						return err
					}
					state.Outputs[out.Path] = &out
				case strings.HasPrefix(key, resourcePrefix):
					var attrs map[string]string
					if err := json.Unmarshal(val, &attrs); err != nil {
						return err
					}
					state.Resources[strings.TrimPrefix(key, resourcePrefix)] = attrs
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("decoding %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load build state: %w", err)
	}
	return state, nil
}

// Save replaces the persisted state.
func (s *BadgerStore) Save(ctx context.Context, state *State) error {
	records := make(map[string]any, len(state.Inputs)+len(state.Outputs)+len(state.Resources))
	for p, in := range state.Inputs {
		records[inputPrefix+p] = in
	}
	for p, out := range state.Outputs {
		records[outputPrefix+p] = out
	}
	for p, attrs := range state.Resources {
		records[resourcePrefix+p] = attrs
	}

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if _, keep := records[string(key)]; !keep {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save build state: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("save build state: %w", err)
		}
	}
	for key, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", key, err)
		}
		if err := wb.Set([]byte(key), data); err != nil {
			return fmt.Errorf("save build state: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("save build state: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
