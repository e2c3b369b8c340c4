// Package bookmarks defines the replicated bookmark tree and the pure
// functions that reconcile two independently mutated copies of it.
//
// The tree is three levels deep: Bucket -> Category -> Bookmark. Every
// entity carries a tombstone pair (Deleted + DeletedAt) so a deletion
// performed on one replica survives a merge with a replica that has not
// seen it yet, instead of being resurrected by the stale copy.
package bookmarks

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Bookmark is a leaf entry. UpdatedAt is bumped on every content
// mutation and is the arbiter for merge conflicts between two live
// copies of the same bookmark.
type Bookmark struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at"`
	Deleted     bool     `json:"deleted,omitempty"`
	DeletedAt   int64    `json:"deleted_at,omitempty"`
}

// Category holds an ordered run of bookmarks. The order is a manual
// user ranking, so it is never re-sorted by the merge.
type Category struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Bookmarks []Bookmark `json:"bookmarks"`
	Deleted   bool       `json:"deleted,omitempty"`
	DeletedAt int64      `json:"deleted_at,omitempty"`
}

// Bucket is the top-level grouping.
type Bucket struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Categories []Category `json:"categories"`
	Deleted    bool       `json:"deleted,omitempty"`
	DeletedAt  int64      `json:"deleted_at,omitempty"`
}

// Tree is the full dataset of one replica, the unit exchanged with the
// remote store.
type Tree struct {
	Buckets []Bucket `json:"buckets"`
}

// NewID returns a fresh entity id. Ids are assigned exactly once at
// creation and are the sole identity used to match entities across
// replicas; names are not identity.
func NewID() string {
	return uuid.NewString()
}

// NowMilli returns the current wall clock in unix milliseconds, the
// timestamp unit used throughout the tree.
func NowMilli() int64 {
	return time.Now().UnixMilli()
}

// NormalizeTags lowercases, trims, deduplicates and sorts a tag set.
// Tag values are meaningful but unordered, so a canonical sorted form
// keeps structural equality usable for merged trees.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(tags))

	out := make([]string, 0, len(tags))

	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}

		if _, dup := seen[t]; dup {
			continue
		}

		seen[t] = struct{}{}
		out = append(out, t)
	}

	if len(out) == 0 {
		return nil
	}

	slices.Sort(out)

	return out
}

// Clone returns a deep copy of the bookmark.
func (b Bookmark) Clone() Bookmark {
	out := b
	out.Tags = slices.Clone(b.Tags)

	return out
}

// Clone returns a deep copy of the category and its bookmarks.
// Nil child slices stay nil so clones compare structurally equal.
func (c Category) Clone() Category {
	out := c

	if c.Bookmarks != nil {
		out.Bookmarks = make([]Bookmark, len(c.Bookmarks))
		for i, b := range c.Bookmarks {
			out.Bookmarks[i] = b.Clone()
		}
	}

	return out
}

// Clone returns a deep copy of the bucket and everything under it.
func (b Bucket) Clone() Bucket {
	out := b

	if b.Categories != nil {
		out.Categories = make([]Category, len(b.Categories))
		for i, c := range b.Categories {
			out.Categories[i] = c.Clone()
		}
	}

	return out
}

// Clone returns a deep copy of the whole tree.
func (t Tree) Clone() Tree {
	out := t

	if t.Buckets != nil {
		out.Buckets = make([]Bucket, len(t.Buckets))
		for i, b := range t.Buckets {
			out.Buckets[i] = b.Clone()
		}
	}

	return out
}

// MarkDeleted sets the tombstone pair. A tombstone is write-once: once
// either replica has marked the entity deleted it never transitions
// back, and the original DeletedAt is kept.
func (b *Bookmark) MarkDeleted(now int64) {
	if b.Deleted {
		return
	}

	b.Deleted = true
	b.DeletedAt = now
}

// MarkDeleted sets the category tombstone. See Bookmark.MarkDeleted.
func (c *Category) MarkDeleted(now int64) {
	if c.Deleted {
		return
	}

	c.Deleted = true
	c.DeletedAt = now
}

// MarkDeleted sets the bucket tombstone. See Bookmark.MarkDeleted.
func (b *Bucket) MarkDeleted(now int64) {
	if b.Deleted {
		return
	}

	b.Deleted = true
	b.DeletedAt = now
}
