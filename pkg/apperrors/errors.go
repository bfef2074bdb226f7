package apperrors

import "errors"

var (
	ErrMissingBaseTable  = errors.New("intent has no base table")
	ErrUnknownTable      = errors.New("table not present in metadata")
	ErrUnsafeFilterValue = errors.New("filter value failed injection screening")
)
