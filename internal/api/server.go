// Package api is the local control surface clients talk to: tree
// reads, edit operations, sync status, manual refresh, and the
// lifecycle/connectivity signal endpoints that gate polling.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apperrors "github.com/rglonek/bookmarks/internal/errors"
	"github.com/rglonek/bookmarks/internal/service"
	"github.com/rglonek/bookmarks/internal/syncer"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 * 1024 * 1024

// SyncController is the coordinator surface the API exposes.
type SyncController interface {
	Status() syncer.Status
	Refresh()
}

// SignalSource receives client lifecycle and connectivity reports.
type SignalSource interface {
	ReportFocus()
	ReportBlur()
	ReportOnline(online bool)
}

// Server serves the control API.
type Server struct {
	svc     *service.Service
	sync    SyncController
	signals SignalSource
	logger  *slog.Logger
}

// NewServer creates a control API server.
func NewServer(svc *service.Service, sync SyncController, signals SignalSource, logger *slog.Logger) *Server {
	return &Server{
		svc:     svc,
		sync:    sync,
		signals: signals,
		logger:  logger,
	}
}

// Router builds the chi router for the control API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/tree", s.handleTree)
		r.Get("/status", s.handleStatus)
		r.Post("/sync", s.handleSync)

		r.Post("/signals/focus", s.handleSignal)
		r.Post("/signals/blur", s.handleSignal)
		r.Post("/signals/online", s.handleSignal)
		r.Post("/signals/offline", s.handleSignal)

		r.Post("/buckets", s.handleCreateBucket)
		r.Route("/buckets/{bucketID}", func(r chi.Router) {
			r.Patch("/", s.handleRenameBucket)
			r.Delete("/", s.handleDeleteBucket)
			r.Post("/position", s.handleReorderBucket)
			r.Post("/categories", s.handleCreateCategory)
		})

		r.Route("/categories/{categoryID}", func(r chi.Router) {
			r.Patch("/", s.handleRenameCategory)
			r.Delete("/", s.handleDeleteCategory)
			r.Post("/position", s.handleReorderCategory)
			r.Post("/bookmarks", s.handleCreateBookmark)
		})

		r.Route("/bookmarks/{bookmarkID}", func(r chi.Router) {
			r.Put("/", s.handleUpdateBookmark)
			r.Delete("/", s.handleDeleteBookmark)
			r.Post("/position", s.handleReorderBookmark)
			r.Post("/move", s.handleMoveBookmark)
		})
	})

	return r
}

func (s *Server) handleTree(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Tree())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sync.Status())
}

func (s *Server) handleSync(w http.ResponseWriter, _ *http.Request) {
	s.sync.Refresh()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/signals/focus":
		s.signals.ReportFocus()
	case "/api/signals/blur":
		s.signals.ReportBlur()
	case "/api/signals/online":
		s.signals.ReportOnline(true)
	case "/api/signals/offline":
		s.signals.ReportOnline(false)
	}

	w.WriteHeader(http.StatusNoContent)
}

type nameRequest struct {
	Name string `json:"name"`
}

type positionRequest struct {
	Index int `json:"index"`
}

type moveRequest struct {
	CategoryID string `json:"category_id"`
}

func (s *Server) handleCreateBucket(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}

	bucket, err := s.svc.CreateBucket(req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bucket)
}

func (s *Server) handleRenameBucket(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}

	s.finish(w, s.svc.RenameBucket(chi.URLParam(r, "bucketID"), req.Name))
}

func (s *Server) handleDeleteBucket(w http.ResponseWriter, r *http.Request) {
	s.finish(w, s.svc.DeleteBucket(chi.URLParam(r, "bucketID")))
}

func (s *Server) handleReorderBucket(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if !decode(w, r, &req) {
		return
	}

	s.finish(w, s.svc.ReorderBucket(chi.URLParam(r, "bucketID"), req.Index))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}

	category, err := s.svc.CreateCategory(chi.URLParam(r, "bucketID"), req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, category)
}

func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}

	s.finish(w, s.svc.RenameCategory(chi.URLParam(r, "categoryID"), req.Name))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	s.finish(w, s.svc.DeleteCategory(chi.URLParam(r, "categoryID")))
}

func (s *Server) handleReorderCategory(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if !decode(w, r, &req) {
		return
	}

	s.finish(w, s.svc.ReorderCategory(chi.URLParam(r, "categoryID"), req.Index))
}

func (s *Server) handleCreateBookmark(w http.ResponseWriter, r *http.Request) {
	var req service.BookmarkInput
	if !decode(w, r, &req) {
		return
	}

	bookmark, err := s.svc.CreateBookmark(chi.URLParam(r, "categoryID"), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bookmark)
}

func (s *Server) handleUpdateBookmark(w http.ResponseWriter, r *http.Request) {
	var req service.BookmarkInput
	if !decode(w, r, &req) {
		return
	}

	bookmark, err := s.svc.UpdateBookmark(chi.URLParam(r, "bookmarkID"), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookmark)
}

func (s *Server) handleDeleteBookmark(w http.ResponseWriter, r *http.Request) {
	s.finish(w, s.svc.DeleteBookmark(chi.URLParam(r, "bookmarkID")))
}

func (s *Server) handleReorderBookmark(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if !decode(w, r, &req) {
		return
	}

	s.finish(w, s.svc.ReorderBookmark(chi.URLParam(r, "bookmarkID"), req.Index))
}

func (s *Server) handleMoveBookmark(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decode(w, r, &req) {
		return
	}

	s.finish(w, s.svc.MoveBookmark(chi.URLParam(r, "bookmarkID"), req.CategoryID))
}

// finish maps a mutation result to 204 or an error status.
func (s *Server) finish(w http.ResponseWriter, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrBucketNotFound),
		errors.Is(err, apperrors.ErrCategoryNotFound),
		errors.Is(err, apperrors.ErrBookmarkNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		s.logger.Error("mutation failed", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// decode parses a JSON body, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
