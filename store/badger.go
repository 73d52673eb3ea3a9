// Package store persists knowledge graph snapshots and the source registry
// in BadgerDB. One JSON document is written per graph snapshot plus one for
// the registry, keyed by id, giving read-your-writes consistency per key.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/lucidrx/fusion/fuserr"
	"github.com/lucidrx/fusion/graph"
	"github.com/lucidrx/fusion/source"
)

const (
	graphKeyPrefix = "graph:"
	registryKey    = "registry"
)

// Store persists graph snapshots and the source registry.
type Store interface {
	// PutGraph writes a graph snapshot document keyed by its id.
	PutGraph(ctx context.Context, g *graph.KnowledgeGraph) error

	// GetGraph loads a graph snapshot. Unknown ids return GRAPH_NOT_FOUND.
	GetGraph(ctx context.Context, id string) (*graph.KnowledgeGraph, error)

	// ListGraphIDs returns the ids of all persisted graph snapshots.
	ListGraphIDs(ctx context.Context) ([]string, error)

	// PutRegistry persists the source registry states.
	PutRegistry(ctx context.Context, states []source.State) error

	// GetRegistry loads the persisted source states; empty store yields an
	// empty slice.
	GetRegistry(ctx context.Context) ([]source.State, error)

	// Close releases the underlying database.
	Close() error
}

// Badger implements Store on BadgerDB.
type Badger struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ Store = (*Badger)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens a Badger store at the given directory, creating it as needed.
// An empty path opens an in-memory store, used by tests and ephemeral runs.
func Open(path string, logger *slog.Logger) (*Badger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &badgerLoggerAdapter{logger: logger.With("component", "store")}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return &Badger{db: db, logger: logger}, nil
}

// PutGraph writes a graph snapshot document keyed by its id.
func (s *Badger) PutGraph(ctx context.Context, g *graph.KnowledgeGraph) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fuserr.New(g.ID, "store.PutGraph", fuserr.CodePersistenceFailed,
			"failed to marshal graph").WithCause(err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(graphKeyPrefix+g.ID), data)
	})
	if err != nil {
		return fuserr.New(g.ID, "store.PutGraph", fuserr.CodePersistenceFailed,
			"failed to write graph snapshot").WithCause(err)
	}
	return nil
}

// GetGraph loads a graph snapshot by id.
func (s *Badger) GetGraph(ctx context.Context, id string) (*graph.KnowledgeGraph, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(graphKeyPrefix + id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, fuserr.New(id, "store.GetGraph", fuserr.CodeGraphNotFound, "no such graph")
	}
	if err != nil {
		return nil, fuserr.New(id, "store.GetGraph", fuserr.CodePersistenceFailed,
			"failed to read graph snapshot").WithCause(err)
	}

	var g graph.KnowledgeGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fuserr.New(id, "store.GetGraph", fuserr.CodePersistenceFailed,
			"failed to unmarshal graph snapshot").WithCause(err)
	}
	return &g, nil
}

// ListGraphIDs returns the ids of all persisted graph snapshots.
func (s *Badger) ListGraphIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(graphKeyPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, strings.TrimPrefix(key, graphKeyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fuserr.New("", "store.ListGraphIDs", fuserr.CodePersistenceFailed,
			"failed to list graphs").WithCause(err)
	}
	return ids, nil
}

// PutRegistry persists the source registry states as one document.
func (s *Badger) PutRegistry(ctx context.Context, states []source.State) error {
	data, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(registryKey), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	return nil
}

// GetRegistry loads the persisted source states.
func (s *Badger) GetRegistry(ctx context.Context) ([]source.State, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(registryKey))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return []source.State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	var states []source.State
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("failed to unmarshal registry: %w", err)
	}
	return states, nil
}

// Close releases the underlying database.
func (s *Badger) Close() error {
	return s.db.Close()
}
