package importer

import "errors"

var (
	// ErrTargetRequired is returned when no catalog target is provided.
	ErrTargetRequired = errors.New("import target required")

	// ErrInvalidCatalog is returned when a catalog file cannot be decoded.
	ErrInvalidCatalog = errors.New("invalid catalog")
)
