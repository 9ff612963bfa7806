package storekit

import (
	"context"
	"io"
)

// ReadOnlyBackend wraps a Backend to prevent all mutating operations.
// This is useful for:
// - Providing safe read-only access to sensitive data
// - Exposing a shared backend to code that must not modify it
// - Testing scenarios where writes should be prevented
//
// The wrapper reports a capability set with every mutating capability
// removed, so Store refuses mutations before they reach the backend;
// direct calls on the wrapper fail with ErrNotSupported the same way.
type ReadOnlyBackend struct {
	b Backend
}

// NewReadOnlyBackend wraps b in a read-only view.
func NewReadOnlyBackend(b Backend) *ReadOnlyBackend {
	return &ReadOnlyBackend{b: b}
}

func (r *ReadOnlyBackend) Name() string { return r.b.Name() }

func (r *ReadOnlyBackend) Capabilities() CapabilitySet {
	return r.b.Capabilities().Without(
		CapWrite, CapDelete, CapMove, CapCopy, CapAtomicWrite,
	)
}

func (r *ReadOnlyBackend) Exists(ctx context.Context, path string) (bool, error) {
	return r.b.Exists(ctx, path)
}

func (r *ReadOnlyBackend) IsFile(ctx context.Context, path string) (bool, error) {
	return r.b.IsFile(ctx, path)
}

func (r *ReadOnlyBackend) IsFolder(ctx context.Context, path string) (bool, error) {
	return r.b.IsFolder(ctx, path)
}

func (r *ReadOnlyBackend) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	return r.b.Read(ctx, path)
}

func (r *ReadOnlyBackend) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	return r.b.ReadBytes(ctx, path)
}

func (r *ReadOnlyBackend) Write(ctx context.Context, path string, content io.Reader, opts ...WriteOption) error {
	return r.refuse("write", path, CapWrite)
}

func (r *ReadOnlyBackend) WriteAtomic(ctx context.Context, path string, content io.Reader, opts ...WriteOption) error {
	return r.refuse("write_atomic", path, CapAtomicWrite)
}

func (r *ReadOnlyBackend) Delete(ctx context.Context, path string, missingOK bool) error {
	return r.refuse("delete", path, CapDelete)
}

func (r *ReadOnlyBackend) DeleteFolder(ctx context.Context, path string, recursive, missingOK bool) error {
	return r.refuse("delete_folder", path, CapDelete)
}

func (r *ReadOnlyBackend) ListFiles(ctx context.Context, path string, recursive bool) ([]FileInfo, error) {
	return r.b.ListFiles(ctx, path, recursive)
}

func (r *ReadOnlyBackend) ListFolders(ctx context.Context, path string) ([]string, error) {
	return r.b.ListFolders(ctx, path)
}

func (r *ReadOnlyBackend) GetFileInfo(ctx context.Context, path string) (*FileInfo, error) {
	return r.b.GetFileInfo(ctx, path)
}

func (r *ReadOnlyBackend) GetFolderInfo(ctx context.Context, path string) (*FolderInfo, error) {
	return r.b.GetFolderInfo(ctx, path)
}

func (r *ReadOnlyBackend) Move(ctx context.Context, src, dst string, overwrite bool) error {
	return r.refuse("move", src, CapMove)
}

func (r *ReadOnlyBackend) Copy(ctx context.Context, src, dst string, overwrite bool) error {
	return r.refuse("copy", src, CapCopy)
}

func (r *ReadOnlyBackend) ToKey(native string) string { return r.b.ToKey(native) }

func (r *ReadOnlyBackend) Unwrap(kind ClientKind) (any, error) { return r.b.Unwrap(kind) }

func (r *ReadOnlyBackend) Close() error { return r.b.Close() }

func (r *ReadOnlyBackend) refuse(op, path string, c Capability) error {
	return &Error{
		Op:         op,
		Path:       path,
		Backend:    r.b.Name(),
		Capability: c,
		Err:        ErrNotSupported,
	}
}

var _ Backend = (*ReadOnlyBackend)(nil)
