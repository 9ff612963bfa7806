package storekit

import (
	"context"
	"io"
)

// ClientKind names a kind of native client handle a backend may expose
// through Unwrap. The set is closed; backends answer ErrNotSupported
// for kinds they do not hold.
type ClientKind string

const (
	ClientKindS3           ClientKind = "s3"
	ClientKindS3Uploader   ClientKind = "s3-uploader"
	ClientKindS3Downloader ClientKind = "s3-downloader"
	ClientKindSFTP         ClientKind = "sftp"
	ClientKindSSH          ClientKind = "ssh"
)

// Backend is the storage contract every adapter implements.
//
// Paths are backend-neutral normalized strings as produced by NewPath;
// implementations never interpret "..", drive letters or URL schemes.
// Every operation returns errors from the storekit taxonomy (wrapped
// in *Error), never backend-native error types.
//
// Folder semantics differ by backend and callers must not assume
// otherwise: filesystem-backed adapters (local, sftp, memory) have
// real folders that persist while empty, object-store adapters (s3,
// s3-hybrid) have virtual folders that exist only while at least one
// object lives under the prefix.
//
// Network-backed implementations establish their connection lazily on
// first use, never at construction.
type Backend interface {
	// Name returns the backend type name, e.g. "s3".
	Name() string

	// Capabilities returns the operations this backend supports.
	Capabilities() CapabilitySet

	// Exists reports whether a file or folder exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// IsFile reports whether path names an existing file.
	IsFile(ctx context.Context, path string) (bool, error)

	// IsFolder reports whether path names an existing folder.
	IsFolder(ctx context.Context, path string) (bool, error)

	// Read opens the file at path for streaming reads.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// ReadBytes reads the whole file at path into memory.
	ReadBytes(ctx context.Context, path string) ([]byte, error)

	// Write stores content at path, creating missing parent folders.
	// Without WithOverwrite it fails with ErrAlreadyExists when path
	// already holds a file.
	Write(ctx context.Context, path string, content io.Reader, opts ...WriteOption) error

	// WriteAtomic is Write with an all-or-nothing guarantee: a reader
	// never observes a partially written file. Backends whose plain
	// writes are already atomic may alias Write.
	WriteAtomic(ctx context.Context, path string, content io.Reader, opts ...WriteOption) error

	// Delete removes the file at path. A missing file is an
	// ErrNotFound failure unless missingOK is set.
	Delete(ctx context.Context, path string, missingOK bool) error

	// DeleteFolder removes the folder at path. Non-recursive deletion
	// fails when the folder still has contents.
	DeleteFolder(ctx context.Context, path string, recursive, missingOK bool) error

	// ListFiles returns the files directly under path, or the whole
	// subtree when recursive is set. Results carry no guaranteed order.
	ListFiles(ctx context.Context, path string, recursive bool) ([]FileInfo, error)

	// ListFolders returns the names of the folders directly under path.
	ListFolders(ctx context.Context, path string) ([]string, error)

	// GetFileInfo returns metadata for the file at path.
	GetFileInfo(ctx context.Context, path string) (*FileInfo, error)

	// GetFolderInfo returns aggregate metadata for the folder at path.
	GetFolderInfo(ctx context.Context, path string) (*FolderInfo, error)

	// Move relocates a file. Atomic where the backend supports a
	// native rename; object-store adapters decompose into copy+delete.
	Move(ctx context.Context, src, dst string, overwrite bool) error

	// Copy duplicates a file.
	Copy(ctx context.Context, src, dst string, overwrite bool) error

	// ToKey translates a backend-native path or URL into the
	// backend-neutral key form. Inputs already in key form pass
	// through unchanged.
	ToKey(native string) string

	// Unwrap exposes a native client handle for callers that need
	// functionality outside this contract. Returns ErrNotSupported
	// for kinds the backend does not hold.
	Unwrap(kind ClientKind) (any, error)

	// Close releases backend resources. Safe to call more than once.
	Close() error
}

// Checksummer is implemented by backends that can produce a file
// checksum cheaper than reading the full content through Read.
type Checksummer interface {
	Checksum(ctx context.Context, path string, algorithm ChecksumAlgorithm) (string, error)
}
