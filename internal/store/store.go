// Package store implements the local replica persistence behind the
// load/save contract the sync coordinator consumes. It is the always-
// available side of the replica: every user mutation is written here
// synchronously before any remote push is attempted.
package store

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rglonek/bookmarks/internal/bookmarks"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	replicaBucket = []byte("replica")
	treeKey       = []byte("tree")
	versionKey    = []byte("remote_version")
)

// Store wraps a bbolt database holding this replica's tree and sync
// cursor.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
}

// Open opens (or creates) the replica database at the given path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening replica db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(replicaBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing replica db: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the stored tree. It never fails: a missing or
// unparseable document yields an empty tree, so a corrupt replica
// degrades to a fresh one instead of poisoning the merge engine.
func (s *Store) Load() bookmarks.Tree {
	var raw []byte

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(replicaBucket).Get(treeKey)
		if v != nil {
			raw = make([]byte, len(v))
			copy(raw, v)
		}

		return nil
	})

	if raw == nil {
		return bookmarks.Tree{}
	}

	var tree bookmarks.Tree
	if err := json.Unmarshal(raw, &tree); err != nil {
		s.logger.Warn("stored tree is unparseable, starting empty",
			slog.String("error", err.Error()),
		)

		return bookmarks.Tree{}
	}

	return tree
}

// Save persists the tree synchronously. The write has completed
// durably (or failed) by the time Save returns.
func (s *Store) Save(tree bookmarks.Tree) error {
	data, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encoding tree: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(replicaBucket).Put(treeKey, data)
	})
	if err != nil {
		return fmt.Errorf("writing tree: %w", err)
	}

	return nil
}

// RemoteVersion returns the last remote version stamp this replica has
// seen, or empty string if it has never synced.
func (s *Store) RemoteVersion() string {
	var version string

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(replicaBucket).Get(versionKey)
		if v != nil {
			version = string(v)
		}

		return nil
	})

	return version
}

// SetRemoteVersion persists the remote version cursor so a restart does
// not re-fetch an unchanged remote document.
func (s *Store) SetRemoteVersion(version string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(replicaBucket).Put(versionKey, []byte(version))
	})
}
