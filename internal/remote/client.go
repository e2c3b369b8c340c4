// Package remote implements the HTTP client side of the polling sync
// protocol: a cheap version probe, a full-document fetch, and a
// full-document write returning the new version stamp.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rglonek/bookmarks/internal/bookmarks"
	apperrors "github.com/rglonek/bookmarks/internal/errors"
	"github.com/tidwall/gjson"
)

const (
	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxResponseBytes caps response body reads so a misbehaving server
	// cannot consume unbounded memory. Trees are small; 16MB is generous.
	maxResponseBytes = 16 * 1024 * 1024
)

// TransientError wraps an error that is likely temporary and safe to
// retry on the next sync cycle.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Document is the wire shape of a stored board.
type Document struct {
	Data         bookmarks.Tree `json:"data"`
	Replica      string         `json:"replica,omitempty"`
	LastModified string         `json:"last_modified,omitempty"`
}

// Client talks to a remote document store over HTTP. The version stamp
// returned by the store is opaque: the coordinator only ever compares
// it for equality.
type Client struct {
	httpClient *http.Client
	baseURL    string
	boardID    string
	replica    string
}

// NewClient creates a client for one board slot on the given store.
// If httpClient is nil, a client with a 30-second timeout is created.
func NewClient(baseURL, boardID, replica string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpClientTimeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		boardID:    boardID,
		replica:    replica,
	}
}

func (c *Client) metaURL() string {
	return c.baseURL + "/v1/boards/" + c.boardID
}

func (c *Client) docURL() string {
	return c.baseURL + "/v1/boards/" + c.boardID + "/doc"
}

// Check probes the board's version stamp without transferring the tree.
// Returns an empty stamp when the board has never been written.
func (c *Client) Check(ctx context.Context) (string, error) {
	body, status, err := c.get(ctx, c.metaURL())
	if err != nil {
		return "", err
	}

	if status == http.StatusNotFound {
		return "", nil
	}

	if status != http.StatusOK {
		return "", &TransientError{Err: fmt.Errorf("check: unexpected status %d", status)}
	}

	stamp := gjson.GetBytes(body, "last_modified").Str
	if stamp == "" {
		return "", &TransientError{Err: fmt.Errorf("check: response missing last_modified")}
	}

	return stamp, nil
}

// Load fetches the full board document and its version stamp.
// Returns ErrNoRemoteDocument when the board has never been written.
func (c *Client) Load(ctx context.Context) (bookmarks.Tree, string, error) {
	body, status, err := c.get(ctx, c.docURL())
	if err != nil {
		return bookmarks.Tree{}, "", err
	}

	if status == http.StatusNotFound {
		return bookmarks.Tree{}, "", apperrors.ErrNoRemoteDocument
	}

	if status != http.StatusOK {
		return bookmarks.Tree{}, "", &TransientError{Err: fmt.Errorf("load: unexpected status %d", status)}
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		// A malformed stored document must not poison the merge engine:
		// treat it as an empty tree with the stamp the probe reported.
		stamp := gjson.GetBytes(body, "last_modified").Str
		return bookmarks.Tree{}, stamp, nil
	}

	return doc.Data, doc.LastModified, nil
}

// Save writes the full board document. The returned stamp becomes the
// caller's new last-known remote version.
func (c *Client) Save(ctx context.Context, tree bookmarks.Tree) (string, error) {
	payload, err := json.Marshal(Document{Data: tree, Replica: c.replica})
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.docURL(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building save request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransientError{Err: fmt.Errorf("save: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &TransientError{Err: fmt.Errorf("save: reading response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &TransientError{Err: fmt.Errorf("save: unexpected status %d", resp.StatusCode)}
	}

	stamp := gjson.GetBytes(body, "last_modified").Str
	if stamp == "" {
		return "", &TransientError{Err: fmt.Errorf("save: response missing last_modified")}
	}

	return stamp, nil
}

// Ping reports whether the store is reachable at all. Used by the
// connectivity prober while offline.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("building ping request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("ping: %w", err)}
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode != http.StatusOK {
		return &TransientError{Err: fmt.Errorf("ping: unexpected status %d", resp.StatusCode)}
	}

	return nil
}

// get performs a GET and returns the bounded body and status code.
// Network-level failures come back wrapped as transient.
func (c *Client) get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, &TransientError{Err: fmt.Errorf("reading response: %w", err)}
	}

	return body, resp.StatusCode, nil
}
