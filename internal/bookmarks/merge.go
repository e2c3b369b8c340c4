package bookmarks

// Merge combines two independently mutated copies of the tree into one.
// It is pure, deterministic, and total: any two well-formed trees
// produce a well-formed tree, and neither input is modified.
//
// The algorithm is a three-level union keyed by entity id. Local's
// ordering is the backbone; entries that exist only on the remote side
// are appended in remote order, and entries that exist only locally are
// retained unchanged (the remote not having seen them yet is not a
// deletion).
//
// Conflict rules differ by level, and the asymmetry is deliberate:
//
//   - Bucket and category names always take the remote value, even when
//     the local copy was edited more recently. Renames are not
//     timestamp-arbitrated.
//   - Bucket and category tombstones combine as deleted OR deleted, with
//     DeletedAt taken from local when set, otherwise remote (not the
//     more recent of the two).
//   - Bookmarks are whole-record conflicts: a tombstone on either side
//     wins outright, otherwise the strictly newer UpdatedAt supplies the
//     entire record and ties keep local.
//
// A deleted entity never comes back: for any entity present in both
// inputs, deleted in the output is the OR of the inputs.
func Merge(local, remote Tree) Tree {
	return Tree{Buckets: mergeBuckets(local.Buckets, remote.Buckets)}
}

func mergeBuckets(local, remote []Bucket) []Bucket {
	if len(local) == 0 && len(remote) == 0 {
		return local
	}

	out := make([]Bucket, len(local))
	index := make(map[string]int, len(local))

	for i, b := range local {
		out[i] = b.Clone()
		index[b.ID] = i
	}

	for _, rb := range remote {
		i, ok := index[rb.ID]
		if !ok {
			out = append(out, rb.Clone())
			continue
		}

		lb := out[i]

		out[i] = Bucket{
			ID:         lb.ID,
			Name:       rb.Name,
			Categories: mergeCategories(lb.Categories, rb.Categories),
			Deleted:    lb.Deleted || rb.Deleted,
			DeletedAt:  coalesce(lb.DeletedAt, rb.DeletedAt),
		}
	}

	return out
}

func mergeCategories(local, remote []Category) []Category {
	if len(local) == 0 && len(remote) == 0 {
		return local
	}

	out := make([]Category, len(local))
	index := make(map[string]int, len(local))

	for i, c := range local {
		out[i] = c.Clone()
		index[c.ID] = i
	}

	for _, rc := range remote {
		i, ok := index[rc.ID]
		if !ok {
			out = append(out, rc.Clone())
			continue
		}

		lc := out[i]

		out[i] = Category{
			ID:        lc.ID,
			Name:      rc.Name,
			Bookmarks: mergeBookmarks(lc.Bookmarks, rc.Bookmarks),
			Deleted:   lc.Deleted || rc.Deleted,
			DeletedAt: coalesce(lc.DeletedAt, rc.DeletedAt),
		}
	}

	return out
}

func mergeBookmarks(local, remote []Bookmark) []Bookmark {
	if len(local) == 0 && len(remote) == 0 {
		return local
	}

	out := make([]Bookmark, len(local))
	index := make(map[string]int, len(local))

	for i, b := range local {
		out[i] = b.Clone()
		index[b.ID] = i
	}

	for _, rb := range remote {
		i, ok := index[rb.ID]
		if !ok {
			out = append(out, rb.Clone())
			continue
		}

		out[i] = mergeBookmark(out[i], rb)
	}

	return out
}

// mergeBookmark resolves one bookmark present on both sides. A tombstone
// short-circuits field comparison: the merged record takes remote's
// fields but stays deleted with the earliest-known tombstone timestamp.
func mergeBookmark(local, remote Bookmark) Bookmark {
	if local.Deleted || remote.Deleted {
		out := remote.Clone()
		out.Deleted = true
		out.DeletedAt = coalesce(local.DeletedAt, remote.DeletedAt)

		return out
	}

	if remote.UpdatedAt > local.UpdatedAt {
		return remote.Clone()
	}

	return local
}

// coalesce returns a when it is set (non-zero), otherwise b. This is
// the tombstone timestamp combination rule: prefer local's stamp when
// present at all, not the more recent one.
func coalesce(a, b int64) int64 {
	if a != 0 {
		return a
	}

	return b
}
