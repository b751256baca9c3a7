package session

import "errors"

var (
	// ErrStoreUnavailable wraps failures to read or write a performance record.
	ErrStoreUnavailable = errors.New("performance store unavailable")

	// ErrCatalogUnavailable wraps failures to load a quiz from the catalog.
	ErrCatalogUnavailable = errors.New("quiz catalog unavailable")
)
