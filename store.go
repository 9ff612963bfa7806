package storekit

import (
	"context"
	"io"
	"strings"

	"github.com/gobwas/glob"
)

// Store is the application-facing façade over a Backend. It scopes
// every operation under a root prefix, validates paths, checks the
// backend's capabilities before delegating, and rebases returned paths
// so callers only ever see store-relative keys.
//
// Several stores may share one Backend with different roots; the
// Registry hands out stores exactly that way.
type Store struct {
	backend Backend
	root    string
}

// NewStore scopes backend under rootPath. An empty rootPath scopes the
// store at the backend root.
func NewStore(backend Backend, rootPath string) (*Store, error) {
	root := ""
	if rootPath != "" {
		p, err := NewPath(rootPath)
		if err != nil {
			return nil, err
		}
		root = p.String()
	}
	return &Store{backend: backend, root: root}, nil
}

// Root returns the store's root prefix in normalized form ("" for the
// backend root).
func (s *Store) Root() string { return s.root }

// BackendName returns the underlying backend's type name.
func (s *Store) BackendName() string { return s.backend.Name() }

// Capabilities returns the underlying backend's capability set.
func (s *Store) Capabilities() CapabilitySet { return s.backend.Capabilities() }

// Supports reports whether the underlying backend declares c.
func (s *Store) Supports(c Capability) bool { return s.backend.Capabilities().Supports(c) }

// Unwrap exposes the underlying backend's native client handle.
func (s *Store) Unwrap(kind ClientKind) (any, error) { return s.backend.Unwrap(kind) }

// Close releases the underlying backend. Only close stores whose
// backend is not shared; registry-owned backends are closed by the
// registry.
func (s *Store) Close() error { return s.backend.Close() }

// resolveFile validates a file-targeting path and prepends the root.
// Empty paths are rejected: a file operation always names a file.
func (s *Store) resolveFile(op, path string) (string, error) {
	if path == "" {
		return "", &Error{Op: op, Backend: s.backend.Name(), Err: errEmptyPath}
	}
	p, err := NewPath(path)
	if err != nil {
		return "", err
	}
	return s.prefix(p.String()), nil
}

// resolveFolder validates a folder-targeting path and prepends the
// root. Empty means the store root.
func (s *Store) resolveFolder(path string) (string, error) {
	if path == "" {
		return s.root, nil
	}
	p, err := NewPath(path)
	if err != nil {
		return "", err
	}
	return s.prefix(p.String()), nil
}

func (s *Store) prefix(key string) string {
	if s.root == "" {
		return key
	}
	return s.root + "/" + key
}

// rebase strips the root prefix from a backend-returned key. Keys
// outside the root pass through unchanged; a correctly scoped backend
// never produces them.
func (s *Store) rebase(key string) string {
	if s.root == "" {
		return key
	}
	if key == s.root {
		return ""
	}
	if strings.HasPrefix(key, s.root+"/") {
		return key[len(s.root)+1:]
	}
	return key
}

func (s *Store) require(c Capability) error {
	return s.backend.Capabilities().Require(c, s.backend.Name())
}

// Exists reports whether a file or folder exists at path. The empty
// path names the store root, which always exists from the store's
// point of view, whether or not the backend's folder semantics would
// recognize an empty prefix.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	if err := s.require(CapRead); err != nil {
		return false, err
	}
	if path == "" {
		return true, nil
	}
	full, err := s.resolveFolder(path)
	if err != nil {
		return false, err
	}
	return s.backend.Exists(ctx, full)
}

// IsFile reports whether path names an existing file.
func (s *Store) IsFile(ctx context.Context, path string) (bool, error) {
	if err := s.require(CapRead); err != nil {
		return false, err
	}
	full, err := s.resolveFile("is_file", path)
	if err != nil {
		return false, err
	}
	return s.backend.IsFile(ctx, full)
}

// IsFolder reports whether path names an existing folder. The empty
// path names the store root, which is always a folder from the
// store's point of view.
func (s *Store) IsFolder(ctx context.Context, path string) (bool, error) {
	if err := s.require(CapRead); err != nil {
		return false, err
	}
	if path == "" {
		return true, nil
	}
	full, err := s.resolveFolder(path)
	if err != nil {
		return false, err
	}
	return s.backend.IsFolder(ctx, full)
}

// Read opens the file at path for streaming reads.
func (s *Store) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := s.require(CapRead); err != nil {
		return nil, err
	}
	full, err := s.resolveFile("read", path)
	if err != nil {
		return nil, err
	}
	return s.backend.Read(ctx, full)
}

// ReadBytes reads the whole file at path into memory.
func (s *Store) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	if err := s.require(CapRead); err != nil {
		return nil, err
	}
	full, err := s.resolveFile("read", path)
	if err != nil {
		return nil, err
	}
	return s.backend.ReadBytes(ctx, full)
}

// Write stores content at path.
func (s *Store) Write(ctx context.Context, path string, content io.Reader, opts ...WriteOption) error {
	if err := s.require(CapWrite); err != nil {
		return err
	}
	full, err := s.resolveFile("write", path)
	if err != nil {
		return err
	}
	return s.backend.Write(ctx, full, content, opts...)
}

// WriteAtomic stores content at path with an all-or-nothing guarantee.
func (s *Store) WriteAtomic(ctx context.Context, path string, content io.Reader, opts ...WriteOption) error {
	if err := s.require(CapAtomicWrite); err != nil {
		return err
	}
	full, err := s.resolveFile("write_atomic", path)
	if err != nil {
		return err
	}
	return s.backend.WriteAtomic(ctx, full, content, opts...)
}

// Delete removes the file at path.
func (s *Store) Delete(ctx context.Context, path string, missingOK bool) error {
	if err := s.require(CapDelete); err != nil {
		return err
	}
	full, err := s.resolveFile("delete", path)
	if err != nil {
		return err
	}
	return s.backend.Delete(ctx, full, missingOK)
}

// DeleteFolder removes the folder at path. The empty path is refused:
// deleting the store root through the façade is always a mistake.
func (s *Store) DeleteFolder(ctx context.Context, path string, recursive, missingOK bool) error {
	if err := s.require(CapDelete); err != nil {
		return err
	}
	if path == "" {
		return &Error{
			Op:      "delete_folder",
			Backend: s.backend.Name(),
			Err:     errDeleteRoot,
		}
	}
	full, err := s.resolveFolder(path)
	if err != nil {
		return err
	}
	return s.backend.DeleteFolder(ctx, full, recursive, missingOK)
}

// ListFiles returns the files under path (the store root when path is
// empty), with store-relative paths.
func (s *Store) ListFiles(ctx context.Context, path string, recursive bool) ([]FileInfo, error) {
	if err := s.require(CapList); err != nil {
		return nil, err
	}
	if recursive {
		if err := s.require(CapRecursiveList); err != nil {
			return nil, err
		}
	}
	full, err := s.resolveFolder(path)
	if err != nil {
		return nil, err
	}
	infos, err := s.backend.ListFiles(ctx, full, recursive)
	if err != nil {
		return nil, err
	}
	return s.rebaseFiles(infos), nil
}

// ListFolders returns the names of the folders directly under path.
func (s *Store) ListFolders(ctx context.Context, path string) ([]string, error) {
	if err := s.require(CapList); err != nil {
		return nil, err
	}
	full, err := s.resolveFolder(path)
	if err != nil {
		return nil, err
	}
	return s.backend.ListFolders(ctx, full)
}

// GetFileInfo returns metadata for the file at path.
func (s *Store) GetFileInfo(ctx context.Context, path string) (*FileInfo, error) {
	if err := s.require(CapMetadata); err != nil {
		return nil, err
	}
	full, err := s.resolveFile("file_info", path)
	if err != nil {
		return nil, err
	}
	info, err := s.backend.GetFileInfo(ctx, full)
	if err != nil {
		return nil, err
	}
	s.rebaseFileInfo(info)
	return info, nil
}

// GetFolderInfo returns aggregate metadata for the folder at path.
func (s *Store) GetFolderInfo(ctx context.Context, path string) (*FolderInfo, error) {
	if err := s.require(CapMetadata); err != nil {
		return nil, err
	}
	full, err := s.resolveFolder(path)
	if err != nil {
		return nil, err
	}
	info, err := s.backend.GetFolderInfo(ctx, full)
	if err != nil {
		return nil, err
	}
	if rebased := s.rebase(info.Path.String()); rebased != "" {
		info.Path = Path{p: rebased}
	} else {
		info.Path = Path{}
	}
	return info, nil
}

// Move relocates a file within the store.
func (s *Store) Move(ctx context.Context, src, dst string, overwrite bool) error {
	if err := s.require(CapMove); err != nil {
		return err
	}
	fullSrc, err := s.resolveFile("move", src)
	if err != nil {
		return err
	}
	fullDst, err := s.resolveFile("move", dst)
	if err != nil {
		return err
	}
	return s.backend.Move(ctx, fullSrc, fullDst, overwrite)
}

// Copy duplicates a file within the store.
func (s *Store) Copy(ctx context.Context, src, dst string, overwrite bool) error {
	if err := s.require(CapCopy); err != nil {
		return err
	}
	fullSrc, err := s.resolveFile("copy", src)
	if err != nil {
		return err
	}
	fullDst, err := s.resolveFile("copy", dst)
	if err != nil {
		return err
	}
	return s.backend.Copy(ctx, fullSrc, fullDst, overwrite)
}

// Glob returns the files under the store root whose store-relative
// path matches pattern. Patterns use '/'-separated glob syntax where
// '*' stays within a segment and '**' crosses segments.
func (s *Store) Glob(ctx context.Context, pattern string) ([]FileInfo, error) {
	if err := s.require(CapGlob); err != nil {
		return nil, err
	}
	if err := s.require(CapRecursiveList); err != nil {
		return nil, err
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, &Error{Op: "glob", Path: pattern, Backend: s.backend.Name(), Err: err}
	}
	infos, err := s.backend.ListFiles(ctx, s.root, true)
	if err != nil {
		return nil, err
	}
	infos = s.rebaseFiles(infos)
	matched := infos[:0]
	for _, info := range infos {
		if g.Match(info.Path.String()) {
			matched = append(matched, info)
		}
	}
	return matched, nil
}

// Checksum computes the checksum of the file at path. Backends that
// implement Checksummer answer without transferring the file content;
// others fall back to a streaming read.
func (s *Store) Checksum(ctx context.Context, path string, algorithm ChecksumAlgorithm) (string, error) {
	if err := s.require(CapRead); err != nil {
		return "", err
	}
	full, err := s.resolveFile("checksum", path)
	if err != nil {
		return "", err
	}
	if cs, ok := s.backend.(Checksummer); ok {
		return cs.Checksum(ctx, full, algorithm)
	}
	rc, err := s.backend.Read(ctx, full)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return CalculateChecksum(rc, algorithm)
}

// ToKey translates a backend-native path or URL into a store-relative
// key. Fails with ErrInvalidPath when the native path falls outside
// the store root.
func (s *Store) ToKey(native string) (string, error) {
	key := s.backend.ToKey(native)
	if s.root == "" {
		return key, nil
	}
	if key == s.root {
		return "", nil
	}
	if strings.HasPrefix(key, s.root+"/") {
		return key[len(s.root)+1:], nil
	}
	return "", &Error{Op: "to_key", Path: native, Backend: s.backend.Name(), Err: errOutsideRoot}
}

func (s *Store) rebaseFiles(infos []FileInfo) []FileInfo {
	if s.root == "" {
		return infos
	}
	for i := range infos {
		if rebased := s.rebase(infos[i].Path.String()); rebased != "" {
			infos[i].Path = Path{p: rebased}
		}
	}
	return infos
}

func (s *Store) rebaseFileInfo(info *FileInfo) {
	if s.root == "" {
		return
	}
	if rebased := s.rebase(info.Path.String()); rebased != "" {
		info.Path = Path{p: rebased}
	}
}
