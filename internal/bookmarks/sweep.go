package bookmarks

import "time"

// DefaultRetention is how long tombstones are kept before the collector
// hard-deletes them. Long enough for any replica that will ever come
// back online to observe the deletion first.
const DefaultRetention = 30 * 24 * time.Hour

// Sweep returns a copy of the tree with every tombstone older than the
// retention window physically removed. Each level is filtered by its
// own tombstone age: a parent with a fresh tombstone is kept, and its
// children are swept independently on their own stamps.
//
// Pure aside from reading now; the caller persists the result.
func Sweep(tree Tree, retention time.Duration, now time.Time) Tree {
	cutoff := now.Add(-retention).UnixMilli()

	if tree.Buckets == nil {
		return Tree{}
	}

	out := Tree{Buckets: make([]Bucket, 0, len(tree.Buckets))}

	for _, b := range tree.Buckets {
		if expired(b.Deleted, b.DeletedAt, cutoff) {
			continue
		}

		kept := b.Clone()
		kept.Categories = sweepCategories(b.Categories, cutoff)
		out.Buckets = append(out.Buckets, kept)
	}

	return out
}

func sweepCategories(cats []Category, cutoff int64) []Category {
	if cats == nil {
		return nil
	}

	out := make([]Category, 0, len(cats))

	for _, c := range cats {
		if expired(c.Deleted, c.DeletedAt, cutoff) {
			continue
		}

		kept := c.Clone()
		kept.Bookmarks = sweepBookmarks(c.Bookmarks, cutoff)
		out = append(out, kept)
	}

	return out
}

func sweepBookmarks(marks []Bookmark, cutoff int64) []Bookmark {
	if marks == nil {
		return nil
	}

	out := make([]Bookmark, 0, len(marks))

	for _, b := range marks {
		if expired(b.Deleted, b.DeletedAt, cutoff) {
			continue
		}

		out = append(out, b.Clone())
	}

	return out
}

// expired reports whether a tombstone is strictly older than the cutoff.
// A tombstone exactly at the window edge is retained.
func expired(deleted bool, deletedAt, cutoff int64) bool {
	return deleted && deletedAt != 0 && deletedAt < cutoff
}
