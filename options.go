package storekit

// WriteOption represents a configuration option for a single write
type WriteOption func(*WriteOptions)

// WriteOptions contains all possible options for write operations
type WriteOptions struct {
	// Overwrite determines whether to overwrite an existing file.
	// When false a write to an occupied path fails with
	// ErrAlreadyExists.
	Overwrite bool

	// ContentType specifies the MIME type of the file, on backends
	// that record one. Empty lets the backend decide.
	ContentType string

	// Metadata contains additional user metadata for the file, on
	// backends that keep it. Others ignore it.
	Metadata map[string]string
}

// ApplyWriteOptions folds opts into a WriteOptions value. Intended for
// backend implementations.
func ApplyWriteOptions(opts []WriteOption) WriteOptions {
	var o WriteOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithOverwrite enables or disables overwriting existing files
func WithOverwrite(overwrite bool) WriteOption {
	return func(o *WriteOptions) {
		o.Overwrite = overwrite
	}
}

// WithContentType sets the content type of the file
func WithContentType(contentType string) WriteOption {
	return func(o *WriteOptions) {
		o.ContentType = contentType
	}
}

// WithMetadata sets additional metadata for the file
func WithMetadata(metadata map[string]string) WriteOption {
	return func(o *WriteOptions) {
		o.Metadata = metadata
	}
}
