package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rglonek/bookmarks/internal/bookmarks"
	apperrors "github.com/rglonek/bookmarks/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_NoDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "board-1", "laptop", srv.Client())

	stamp, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", stamp, "an unwritten board has no version stamp")
}

func TestCheck_ReturnsStamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/boards/board-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"board-1","last_modified":"2026-02-01T10:00:00Z"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "board-1", "laptop", srv.Client())

	stamp, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01T10:00:00Z", stamp)
}

func TestCheck_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "board-1", "laptop", srv.Client())

	_, err := c.Check(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestCheck_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // closed immediately: dialing now fails

	c := NewClient(srv.URL, "board-1", "laptop", nil)

	_, err := c.Check(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestLoad_NoDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "board-1", "laptop", srv.Client())

	_, _, err := c.Load(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNoRemoteDocument)
}

func TestLoad_DecodesDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/boards/board-1/doc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": {"buckets":[{"id":"b1","name":"work","categories":[]}]},
			"last_modified": "2026-02-01T10:00:00Z"
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "board-1", "laptop", srv.Client())

	tree, stamp, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01T10:00:00Z", stamp)
	require.Len(t, tree.Buckets, 1)
	assert.Equal(t, "work", tree.Buckets[0].Name)
}

func TestLoad_MalformedDocumentYieldsEmptyTree(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data": "not a tree", "last_modified": "v1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "board-1", "laptop", srv.Client())

	tree, stamp, err := c.Load(context.Background())
	require.NoError(t, err, "a corrupt document must not reach the merge engine as an error")
	assert.Equal(t, bookmarks.Tree{}, tree)
	assert.Equal(t, "v1", stamp)
}

func TestSave_ReturnsNewStamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1/boards/board-1/doc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"last_modified":"2026-02-01T11:00:00Z"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "board-1", "laptop", srv.Client())

	stamp, err := c.Save(context.Background(), bookmarks.Tree{})
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01T11:00:00Z", stamp)
}

func TestSave_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "board-1", "laptop", srv.Client())

	_, err := c.Save(context.Background(), bookmarks.Tree{})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}

		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "board-1", "laptop", srv.Client())
	assert.NoError(t, c.Ping(context.Background()))
}
