package domain

import "errors"

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrSchemaInvalid   = errors.New("schema invalid")
	ErrNoActiveSchema  = errors.New("no active schema for import")
	ErrUnsupportedFile = errors.New("file format unsupported")
	ErrCyclic          = errors.New("cyclic dependencies")
	ErrUnavailable     = errors.New("dependency unavailable")
	ErrInternal        = errors.New("internal error")
)
