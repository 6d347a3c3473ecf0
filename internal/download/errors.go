package download

import "errors"

var (
	ErrFileNameRequired = errors.New("file name is required by the naming strategy")
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	ErrRangeMismatch    = errors.New("server returned a range that does not start at the local file length")
	ErrNotRegularFile   = errors.New("download target is not a regular file")
)
