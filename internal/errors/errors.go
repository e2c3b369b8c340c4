package errors

import "errors"

// Remote store errors.
var (
	ErrRemoteUnreachable = errors.New("remote store unreachable")
	ErrNoRemoteDocument  = errors.New("no remote document")
)

// Tree lookup errors.
var (
	ErrBucketNotFound   = errors.New("bucket not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrBookmarkNotFound = errors.New("bookmark not found")
)
