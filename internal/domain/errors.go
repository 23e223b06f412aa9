package domain

import "errors"

var (
	ErrDecode            = errors.New("decode error")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrEmptyCollection   = errors.New("empty collection")
	ErrIndexNotBuilt     = errors.New("index not built")
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// Kind returns a stable short code for err, used by the HTTP API.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIndexNotBuilt):
		return "index_not_built"
	case errors.Is(err, ErrEmptyCollection):
		return "empty_collection"
	case errors.Is(err, ErrDecode):
		return "decode_error"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	default:
		return "internal"
	}
}
