// Package docserver is a reference implementation of the remote
// document store the sync client polls: one JSON document per board,
// stamped with a last-modified version on every write. The probe
// endpoint returns only the stamp so clients can detect change without
// transferring the tree.
package docserver

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	bolt "go.etcd.io/bbolt"
)

const (
	dirPerm  = fs.FileMode(0o700)
	filePerm = fs.FileMode(0o600)

	openTimeout = 5 * time.Second

	// maxDocumentBytes bounds PUT bodies.
	maxDocumentBytes = 16 * 1024 * 1024
)

var boardsBucket = []byte("boards")

// storedBoard is the on-disk shape of one board slot.
type storedBoard struct {
	Data         json.RawMessage `json:"data"`
	Replica      string          `json:"replica,omitempty"`
	LastModified string          `json:"last_modified"`
}

// Store persists board documents in bbolt.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (or creates) the board database at the given path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("creating board directory: %w", err)
	}

	db, err := bolt.Open(path, filePerm, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening board db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boardsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing board db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored board, or nil if the slot was never written.
func (s *Store) Get(boardID string) (*storedBoard, error) {
	var sb *storedBoard

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boardsBucket).Get([]byte(boardID))
		if v == nil {
			return nil
		}

		sb = &storedBoard{}

		return json.Unmarshal(v, sb)
	})
	if err != nil {
		return nil, fmt.Errorf("reading board %s: %w", boardID, err)
	}

	return sb, nil
}

// Put stores a board document and returns the new version stamp. The
// stamp is the server clock in RFC3339Nano, made unique against the
// previous stamp so two writes inside one clock tick still produce
// distinct versions.
func (s *Store) Put(boardID string, data json.RawMessage, replica string) (string, error) {
	var stamp string

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boardsBucket)

		stamp = time.Now().UTC().Format(time.RFC3339Nano)

		if v := b.Get([]byte(boardID)); v != nil {
			var prev storedBoard
			if err := json.Unmarshal(v, &prev); err == nil && prev.LastModified == stamp {
				stamp = fmt.Sprintf("%s.%d", stamp, time.Now().UnixNano())
			}
		}

		doc, err := json.Marshal(storedBoard{
			Data:         data,
			Replica:      replica,
			LastModified: stamp,
		})
		if err != nil {
			return err
		}

		return b.Put([]byte(boardID), doc)
	})
	if err != nil {
		return "", fmt.Errorf("writing board %s: %w", boardID, err)
	}

	return stamp, nil
}

// Server serves the board HTTP API.
type Server struct {
	store  *Store
	logger *slog.Logger
}

// NewServer creates a board server around the given store.
func NewServer(store *Store, logger *slog.Logger) *Server {
	return &Server{store: store, logger: logger}
}

// Router builds the chi router for the board API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1/boards/{boardID}", func(r chi.Router) {
		r.Get("/", s.handleMeta)
		r.Get("/doc", s.handleGetDoc)
		r.Put("/doc", s.handlePutDoc)
	})

	return r
}

// handleMeta is the cheap version probe: stamp only, no tree payload.
func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardID")

	sb, err := s.store.Get(boardID)
	if err != nil {
		s.internalError(w, "reading board meta", err)
		return
	}

	if sb == nil {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, map[string]string{
		"id":            boardID,
		"last_modified": sb.LastModified,
	})
}

func (s *Server) handleGetDoc(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardID")

	sb, err := s.store.Get(boardID)
	if err != nil {
		s.internalError(w, "reading board", err)
		return
	}

	if sb == nil {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, map[string]any{
		"data":          sb.Data,
		"replica":       sb.Replica,
		"last_modified": sb.LastModified,
	})
}

func (s *Server) handlePutDoc(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardID")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes))
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	var incoming struct {
		Data    json.RawMessage `json:"data"`
		Replica string          `json:"replica"`
	}

	if err := json.Unmarshal(body, &incoming); err != nil || incoming.Data == nil {
		http.Error(w, "malformed document", http.StatusBadRequest)
		return
	}

	stamp, err := s.store.Put(boardID, incoming.Data, incoming.Replica)
	if err != nil {
		s.internalError(w, "writing board", err)
		return
	}

	s.logger.Info("board updated",
		slog.String("board", boardID),
		slog.String("replica", incoming.Replica),
		slog.String("version", stamp),
	)

	writeJSON(w, map[string]string{"last_modified": stamp})
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, slog.String("error", err.Error()))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
