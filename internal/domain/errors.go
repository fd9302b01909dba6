// Package domain holds the sentinel errors every layer agrees on.
// Stores return them, services wrap them, and the HTTP layer maps them
// onto status codes: ErrNotFound to 404, ErrConflict to 409, ErrInvalid
// to 400.
package domain

import "errors"

// ErrNotFound reports that an entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict reports a version check failure on an optimistic
// concurrency update.
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrInvalid reports a request that failed domain validation, including
// policy snippets rejected by the static checker.
var ErrInvalid = errors.New("invalid request")
