// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist or has expired.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates the request failed input validation.
var ErrValidation = errors.New("validation failed")

// ErrStoreUnavailable indicates the task store could not be reached.
// Distinct from ErrNotFound: the task may well exist.
var ErrStoreUnavailable = errors.New("task store unavailable")
