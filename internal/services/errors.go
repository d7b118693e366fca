package services

import "errors"

var (
	// ErrNotFound means a referenced wallet or user id is not known locally or on chain
	ErrNotFound = errors.New("not found")
	// ErrConflict means the operation would violate a uniqueness rule, e.g. a second owner
	ErrConflict = errors.New("conflict")
	// ErrUpstreamUnavailable means a chain read failed
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrPartialPropagation means an ancestor walk stopped before reaching the root
	ErrPartialPropagation = errors.New("partial propagation")
)
