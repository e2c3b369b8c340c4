// Package service implements the local edit surface: every mutation
// loads the tree from the replica store, applies the change, persists
// synchronously, and schedules a debounced push to the remote.
package service

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/rglonek/bookmarks/internal/bookmarks"
	apperrors "github.com/rglonek/bookmarks/internal/errors"
)

// Store is the persistence the service mutates through.
type Store interface {
	Load() bookmarks.Tree
	Save(tree bookmarks.Tree) error
}

// PushScheduler arms the debounced remote push after a local write.
type PushScheduler interface {
	SchedulePush()
}

// BookmarkInput carries the caller-editable bookmark fields. Tags are
// normalized before they are stored.
type BookmarkInput struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Service serializes all local mutations. The mutex makes each
// load-modify-save cycle atomic against concurrent API calls; the
// debounced push then carries whatever the final state is.
type Service struct {
	mu        sync.Mutex
	store     Store
	scheduler PushScheduler
	logger    *slog.Logger
}

// New creates a mutation service.
func New(store Store, scheduler PushScheduler, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Tree returns the current local tree.
func (s *Service) Tree() bookmarks.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.Load()
}

// CreateBucket appends a new bucket.
func (s *Service) CreateBucket(name string) (bookmarks.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := bookmarks.Bucket{
		ID:   bookmarks.NewID(),
		Name: name,
	}

	tree := s.store.Load()
	tree.Buckets = append(tree.Buckets, bucket)

	if err := s.persist(tree); err != nil {
		return bookmarks.Bucket{}, err
	}

	s.logger.Debug("bucket created", slog.String("id", bucket.ID), slog.String("name", name))

	return bucket, nil
}

// RenameBucket changes a bucket's name.
func (s *Service) RenameBucket(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.store.Load()

	bucket := findBucket(&tree, id)
	if bucket == nil {
		return fmt.Errorf("bucket %q: %w", id, apperrors.ErrBucketNotFound)
	}

	bucket.Name = name

	return s.persist(tree)
}

// DeleteBucket soft-deletes a bucket. The tombstone keeps other
// replicas from resurrecting it on merge.
func (s *Service) DeleteBucket(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.store.Load()

	bucket := findBucket(&tree, id)
	if bucket == nil {
		return fmt.Errorf("bucket %q: %w", id, apperrors.ErrBucketNotFound)
	}

	bucket.MarkDeleted(bookmarks.NowMilli())

	return s.persist(tree)
}

// ReorderBucket moves a bucket to the given position.
func (s *Service) ReorderBucket(id string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.store.Load()

	from := -1
	for i := range tree.Buckets {
		if tree.Buckets[i].ID == id {
			from = i
			break
		}
	}
	if from == -1 {
		return fmt.Errorf("bucket %q: %w", id, apperrors.ErrBucketNotFound)
	}

	tree.Buckets = reorder(tree.Buckets, from, index)

	return s.persist(tree)
}

// CreateCategory appends a new category to a bucket.
func (s *Service) CreateCategory(bucketID, name string) (bookmarks.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.store.Load()

	bucket := findBucket(&tree, bucketID)
	if bucket == nil {
		return bookmarks.Category{}, fmt.Errorf("bucket %q: %w", bucketID, apperrors.ErrBucketNotFound)
	}

	category := bookmarks.Category{
		ID:   bookmarks.NewID(),
		Name: name,
	}

	bucket.Categories = append(bucket.Categories, category)

	if err := s.persist(tree); err != nil {
		return bookmarks.Category{}, err
	}

	s.logger.Debug("category created", slog.String("id", category.ID), slog.String("bucket", bucketID))

	return category, nil
}

// RenameCategory changes a category's name.
func (s *Service) RenameCategory(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.store.Load()

	category, _ := findCategory(&tree, id)
	if category == nil {
		return fmt.Errorf("category %q: %w", id, apperrors.ErrCategoryNotFound)
	}

	category.Name = name

	return s.persist(tree)
}

// DeleteCategory soft-deletes a category.
func (s *Service) DeleteCategory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.store.Load()

	category, _ := findCategory(&tree, id)
	if category == nil {
		return fmt.Errorf("category %q: %w", id, apperrors.ErrCategoryNotFound)
	}

	category.MarkDeleted(bookmarks.NowMilli())

	return s.persist(tree)
}

// ReorderCategory moves a category to the given position within its
// bucket.
func (s *Service) ReorderCategory(id string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.store.Load()

	category, bucket := findCategory(&tree, id)
	if category == nil {
		return fmt.Errorf("category %q: %w", id, apperrors.ErrCategoryNotFound)
	}

	from := -1
	for i := range bucket.Categories {
		if bucket.Categories[i].ID == id {
			from = i
			break
		}
	}

	bucket.Categories = reorder(bucket.Categories, from, index)

	return s.persist(tree)
}

// CreateBookmark appends a new bookmark to a category.
func (s *Service) CreateBookmark(categoryID string, in BookmarkInput) (bookmarks.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.store.Load()

	category, _ := findCategory(&tree, categoryID)
	if category == nil {
		return bookmarks.Bookmark{}, fmt.Errorf("category %q: %w", categoryID, apperrors.ErrCategoryNotFound)
	}

	now := bookmarks.NowMilli()
	bookmark := bookmarks.Bookmark{
		ID:          bookmarks.NewID(),
		Title:       in.Title,
		URL:         in.URL,
		Description: in.Description,
		Notes:       in.Notes,
		Tags:        bookmarks.NormalizeTags(in.Tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	category.Bookmarks = append(category.Bookmarks, bookmark)

	if err := s.persist(tree); err != nil {
		return bookmarks.Bookmark{}, err
	}

	s.logger.Debug("bookmark created", slog.String("id", bookmark.ID), slog.String("category", categoryID))

	return bookmark, nil
}

// UpdateBookmark replaces a bookmark's editable fields and bumps its
// timestamp so the change wins against stale copies on merge.
func (s *Service) UpdateBookmark(id string, in BookmarkInput) (bookmarks.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.store.Load()

	bookmark, _ := findBookmark(&tree, id)
	if bookmark == nil {
		return bookmarks.Bookmark{}, fmt.Errorf("bookmark %q: %w", id, apperrors.ErrBookmarkNotFound)
	}

	bookmark.Title = in.Title
	bookmark.URL = in.URL
	bookmark.Description = in.Description
	bookmark.Notes = in.Notes
	bookmark.Tags = bookmarks.NormalizeTags(in.Tags)
	bookmark.UpdatedAt = bookmarks.NowMilli()

	updated := bookmark.Clone()

	if err := s.persist(tree); err != nil {
		return bookmarks.Bookmark{}, err
	}

	return updated, nil
}

// DeleteBookmark soft-deletes a bookmark.
func (s *Service) DeleteBookmark(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.store.Load()

	bookmark, _ := findBookmark(&tree, id)
	if bookmark == nil {
		return fmt.Errorf("bookmark %q: %w", id, apperrors.ErrBookmarkNotFound)
	}

	bookmark.MarkDeleted(bookmarks.NowMilli())

	return s.persist(tree)
}

// MoveBookmark relocates a bookmark to another category, keeping its
// identity and bumping its timestamp.
func (s *Service) MoveBookmark(id, targetCategoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.store.Load()

	bookmark, source := findBookmark(&tree, id)
	if bookmark == nil {
		return fmt.Errorf("bookmark %q: %w", id, apperrors.ErrBookmarkNotFound)
	}

	target, _ := findCategory(&tree, targetCategoryID)
	if target == nil {
		return fmt.Errorf("category %q: %w", targetCategoryID, apperrors.ErrCategoryNotFound)
	}

	moved := bookmark.Clone()
	moved.UpdatedAt = bookmarks.NowMilli()

	for i := range source.Bookmarks {
		if source.Bookmarks[i].ID == id {
			source.Bookmarks = append(source.Bookmarks[:i], source.Bookmarks[i+1:]...)
			break
		}
	}

	// Resolve the target again: removing from the source may have
	// shifted the backing arrays the earlier pointer referred to.
	target, _ = findCategory(&tree, targetCategoryID)
	target.Bookmarks = append(target.Bookmarks, moved)

	return s.persist(tree)
}

// ReorderBookmark moves a bookmark to the given position within its
// category.
func (s *Service) ReorderBookmark(id string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree := s.store.Load()

	bookmark, category := findBookmark(&tree, id)
	if bookmark == nil {
		return fmt.Errorf("bookmark %q: %w", id, apperrors.ErrBookmarkNotFound)
	}

	from := -1
	for i := range category.Bookmarks {
		if category.Bookmarks[i].ID == id {
			from = i
			break
		}
	}

	category.Bookmarks = reorder(category.Bookmarks, from, index)

	return s.persist(tree)
}

func (s *Service) persist(tree bookmarks.Tree) error {
	if err := s.store.Save(tree); err != nil {
		return fmt.Errorf("saving tree: %w", err)
	}

	s.scheduler.SchedulePush()

	return nil
}

// findBucket returns a pointer into the tree, or nil. Soft-deleted
// entities are still addressable; ids are never reused so lookups stay
// unambiguous.
func findBucket(tree *bookmarks.Tree, id string) *bookmarks.Bucket {
	for i := range tree.Buckets {
		if tree.Buckets[i].ID == id {
			return &tree.Buckets[i]
		}
	}

	return nil
}

func findCategory(tree *bookmarks.Tree, id string) (*bookmarks.Category, *bookmarks.Bucket) {
	for i := range tree.Buckets {
		bucket := &tree.Buckets[i]
		for j := range bucket.Categories {
			if bucket.Categories[j].ID == id {
				return &bucket.Categories[j], bucket
			}
		}
	}

	return nil, nil
}

func findBookmark(tree *bookmarks.Tree, id string) (*bookmarks.Bookmark, *bookmarks.Category) {
	for i := range tree.Buckets {
		bucket := &tree.Buckets[i]
		for j := range bucket.Categories {
			category := &bucket.Categories[j]
			for k := range category.Bookmarks {
				if category.Bookmarks[k].ID == id {
					return &category.Bookmarks[k], category
				}
			}
		}
	}

	return nil, nil
}

// reorder moves the element at from to index, clamping index to the
// slice bounds.
func reorder[T any](items []T, from, index int) []T {
	if index < 0 {
		index = 0
	}
	if index >= len(items) {
		index = len(items) - 1
	}
	if from == index {
		return items
	}

	item := items[from]
	items = append(items[:from], items[from+1:]...)

	out := make([]T, 0, len(items)+1)
	out = append(out, items[:index]...)
	out = append(out, item)
	out = append(out, items[index:]...)

	return out
}
