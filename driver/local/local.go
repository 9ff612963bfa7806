// Package local implements the storekit Backend on a directory of the
// local filesystem.
//
// All keys resolve under a fixed root directory. Folders are real
// directory entries and persist while empty. Symlinks inside the root
// are followed, but any path whose canonical form escapes the root is
// rejected.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gobeaver/storekit"
)

const backendName = "local"

// Adapter provides a local filesystem implementation of
// storekit.Backend.
type Adapter struct {
	root      string
	canonRoot string
}

var (
	_ storekit.Backend     = (*Adapter)(nil)
	_ storekit.Checksummer = (*Adapter)(nil)
)

// New creates a local adapter rooted at root, creating the directory
// if it does not exist.
func New(root string) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, err
	}

	// Canonical form of the root, for symlink-escape checks.
	canonRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		root:      absRoot,
		canonRoot: canonRoot,
	}, nil
}

// Name implements storekit.Backend
func (a *Adapter) Name() string { return backendName }

// Capabilities implements storekit.Backend
func (a *Adapter) Capabilities() storekit.CapabilitySet {
	return storekit.AllCapabilities()
}

// resolve maps a storage key to an absolute filesystem path and
// verifies it cannot escape the root, lexically and through symlinks.
func (a *Adapter) resolve(op, path string) (string, error) {
	full := filepath.Join(a.root, filepath.FromSlash(path))
	if full != a.root && !strings.HasPrefix(full, a.root+string(filepath.Separator)) {
		return "", a.invalidPath(op, path)
	}

	// Canonicalize the deepest existing ancestor; a symlink inside the
	// root may still point outside of it.
	ancestor := full
	for {
		if _, err := os.Lstat(ancestor); err == nil {
			break
		}
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			break
		}
		ancestor = parent
	}
	canon, err := filepath.EvalSymlinks(ancestor)
	if err != nil {
		// Ancestor raced away; the lexical check above still holds.
		return full, nil
	}
	if canon != a.canonRoot && !strings.HasPrefix(canon, a.canonRoot+string(filepath.Separator)) {
		return "", a.invalidPath(op, path)
	}
	return full, nil
}

func (a *Adapter) invalidPath(op, path string) error {
	return &storekit.Error{
		Op:      op,
		Path:    path,
		Backend: backendName,
		Err:     fmt.Errorf("%w: path escapes the storage root", storekit.ErrInvalidPath),
	}
}

func (a *Adapter) wrap(op, path string, err error) error {
	return &storekit.Error{Op: op, Path: path, Backend: backendName, Err: mapOSError(err)}
}

// mapOSError translates filesystem errors into the storekit taxonomy.
func mapOSError(err error) error {
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("%w: %v", storekit.ErrNotFound, err)
	case os.IsExist(err):
		return fmt.Errorf("%w: %v", storekit.ErrAlreadyExists, err)
	case os.IsPermission(err):
		return fmt.Errorf("%w: %v", storekit.ErrPermission, err)
	default:
		return err
	}
}

// Exists implements storekit.Backend
func (a *Adapter) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := a.resolve("exists", path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, a.wrap("exists", path, err)
	}
	return true, nil
}

// IsFile implements storekit.Backend
func (a *Adapter) IsFile(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := a.resolve("is_file", path)
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, a.wrap("is_file", path, err)
	}
	return fi.Mode().IsRegular(), nil
}

// IsFolder implements storekit.Backend
func (a *Adapter) IsFolder(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := a.resolve("is_folder", path)
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, a.wrap("is_folder", path, err)
	}
	return fi.IsDir(), nil
}

// Read implements storekit.Backend
func (a *Adapter) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := a.resolve("read", path)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		return nil, a.wrap("read", path, err)
	}
	if fi.IsDir() {
		return nil, a.wrap("read", path, fmt.Errorf("%w: %s is a folder", storekit.ErrNotFound, path))
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, a.wrap("read", path, err)
	}
	return f, nil
}

// ReadBytes implements storekit.Backend
func (a *Adapter) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	rc, err := a.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, a.wrap("read", path, err)
	}
	return data, nil
}

// Write implements storekit.Backend
func (a *Adapter) Write(ctx context.Context, path string, content io.Reader, opts ...storekit.WriteOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := a.resolve("write", path)
	if err != nil {
		return err
	}
	o := storekit.ApplyWriteOptions(opts)
	if !o.Overwrite {
		if _, err := os.Stat(full); err == nil {
			return a.wrap("write", path, fmt.Errorf("%w: %s", storekit.ErrAlreadyExists, path))
		}
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return a.wrap("write", path, err)
	}
	f, err := os.Create(full)
	if err != nil {
		return a.wrap("write", path, err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		return a.wrap("write", path, err)
	}
	if err := f.Close(); err != nil {
		return a.wrap("write", path, err)
	}
	return nil
}

// WriteAtomic implements storekit.Backend. Content lands in a
// temporary sibling first and moves into place with one rename, so a
// concurrent reader sees either the old file or the new one, never a
// partial write.
func (a *Adapter) WriteAtomic(ctx context.Context, path string, content io.Reader, opts ...storekit.WriteOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := a.resolve("write_atomic", path)
	if err != nil {
		return err
	}
	o := storekit.ApplyWriteOptions(opts)
	if !o.Overwrite {
		if _, err := os.Stat(full); err == nil {
			return a.wrap("write_atomic", path, fmt.Errorf("%w: %s", storekit.ErrAlreadyExists, path))
		}
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return a.wrap("write_atomic", path, err)
	}
	tmp, err := os.CreateTemp(dir, ".~tmp.*")
	if err != nil {
		return a.wrap("write_atomic", path, err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return a.wrap("write_atomic", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return a.wrap("write_atomic", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return a.wrap("write_atomic", path, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return a.wrap("write_atomic", path, err)
	}
	return nil
}

// Delete implements storekit.Backend
func (a *Adapter) Delete(ctx context.Context, path string, missingOK bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := a.resolve("delete", path)
	if err != nil {
		return err
	}
	fi, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) && missingOK {
			return nil
		}
		return a.wrap("delete", path, err)
	}
	if fi.IsDir() {
		return a.wrap("delete", path, fmt.Errorf("%w: %s is a folder", storekit.ErrNotFound, path))
	}
	if err := os.Remove(full); err != nil {
		return a.wrap("delete", path, err)
	}
	return nil
}

// DeleteFolder implements storekit.Backend
func (a *Adapter) DeleteFolder(ctx context.Context, path string, recursive, missingOK bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := a.resolve("delete_folder", path)
	if err != nil {
		return err
	}
	fi, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) && missingOK {
			return nil
		}
		return a.wrap("delete_folder", path, err)
	}
	if !fi.IsDir() {
		return a.wrap("delete_folder", path, fmt.Errorf("%w: %s is not a folder", storekit.ErrNotFound, path))
	}
	if recursive {
		if err := os.RemoveAll(full); err != nil {
			return a.wrap("delete_folder", path, err)
		}
		return nil
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, syscall.ENOTEMPTY) {
			return a.wrap("delete_folder", path, fmt.Errorf("%w: folder not empty", storekit.ErrNotFound))
		}
		return a.wrap("delete_folder", path, err)
	}
	return nil
}

// ListFiles implements storekit.Backend
func (a *Adapter) ListFiles(ctx context.Context, path string, recursive bool) ([]storekit.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := a.resolve("list_files", path)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, a.wrap("list_files", path, err)
	}
	// Listing a missing or non-folder path yields an empty result, not
	// an error.
	if !fi.IsDir() {
		return nil, nil
	}

	var infos []storekit.FileInfo
	if !recursive {
		entries, err := os.ReadDir(full)
		if err != nil {
			return nil, a.wrap("list_files", path, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := a.entryInfo(path, entry.Name(), full)
			if err != nil {
				continue // entry raced away between ReadDir and Stat
			}
			infos = append(infos, *info)
		}
		return infos, nil
	}

	walkErr := filepath.WalkDir(full, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(full, p)
		if err != nil {
			return err
		}
		key := joinKey(path, filepath.ToSlash(rel))
		info, err := a.statInfo(key, p)
		if err != nil {
			return nil
		}
		infos = append(infos, *info)
		return nil
	})
	if walkErr != nil {
		return nil, a.wrap("list_files", path, walkErr)
	}
	return infos, nil
}

// ListFolders implements storekit.Backend
func (a *Adapter) ListFolders(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := a.resolve("list_folders", path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) || errors.Is(err, syscall.ENOTDIR) {
			return nil, nil
		}
		return nil, a.wrap("list_folders", path, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// GetFileInfo implements storekit.Backend
func (a *Adapter) GetFileInfo(ctx context.Context, path string) (*storekit.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := a.resolve("file_info", path)
	if err != nil {
		return nil, err
	}
	return a.statInfo(path, full)
}

func (a *Adapter) statInfo(key, full string) (*storekit.FileInfo, error) {
	fi, err := os.Stat(full)
	if err != nil {
		return nil, a.wrap("file_info", key, err)
	}
	if fi.IsDir() {
		return nil, a.wrap("file_info", key, fmt.Errorf("%w: %s is a folder", storekit.ErrNotFound, key))
	}
	p, err := storekit.NewPath(key)
	if err != nil {
		return nil, err
	}
	return &storekit.FileInfo{
		Path:        p,
		Name:        fi.Name(),
		Size:        fi.Size(),
		ModTime:     fi.ModTime(),
		ContentType: storekit.GuessContentType(fi.Name(), nil),
	}, nil
}

func (a *Adapter) entryInfo(parent, name, parentFull string) (*storekit.FileInfo, error) {
	return a.statInfo(joinKey(parent, name), filepath.Join(parentFull, name))
}

// GetFolderInfo implements storekit.Backend. Aggregates recursively
// over every file in the subtree; ModTime is the latest file
// modification.
func (a *Adapter) GetFolderInfo(ctx context.Context, path string) (*storekit.FolderInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := a.resolve("folder_info", path)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		return nil, a.wrap("folder_info", path, err)
	}
	if !fi.IsDir() {
		return nil, a.wrap("folder_info", path, fmt.Errorf("%w: %s is not a folder", storekit.ErrNotFound, path))
	}
	info := &storekit.FolderInfo{}
	if path != "" {
		p, err := storekit.NewPath(path)
		if err != nil {
			return nil, err
		}
		info.Path = p
	}
	walkErr := filepath.WalkDir(full, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		efi, err := d.Info()
		if err != nil {
			return nil // entry raced away between walk and stat
		}
		info.FileCount++
		info.TotalSize += efi.Size()
		if efi.ModTime().After(info.ModTime) {
			info.ModTime = efi.ModTime()
		}
		return nil
	})
	if walkErr != nil {
		return nil, a.wrap("folder_info", path, walkErr)
	}
	return info, nil
}

// Move implements storekit.Backend. Uses a native rename, falling back
// to copy+delete across filesystems.
func (a *Adapter) Move(ctx context.Context, src, dst string, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullSrc, err := a.resolve("move", src)
	if err != nil {
		return err
	}
	fullDst, err := a.resolve("move", dst)
	if err != nil {
		return err
	}
	if _, err := os.Stat(fullSrc); err != nil {
		return a.wrap("move", src, err)
	}
	if !overwrite {
		if _, err := os.Stat(fullDst); err == nil {
			return a.wrap("move", dst, fmt.Errorf("%w: %s", storekit.ErrAlreadyExists, dst))
		}
	}
	if err := os.MkdirAll(filepath.Dir(fullDst), 0o755); err != nil {
		return a.wrap("move", dst, err)
	}
	if err := os.Rename(fullSrc, fullDst); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return a.wrap("move", src, err)
		}
		if err := copyFile(fullSrc, fullDst); err != nil {
			return a.wrap("move", src, err)
		}
		if err := os.Remove(fullSrc); err != nil {
			return a.wrap("move", src, err)
		}
	}
	return nil
}

// Copy implements storekit.Backend
func (a *Adapter) Copy(ctx context.Context, src, dst string, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullSrc, err := a.resolve("copy", src)
	if err != nil {
		return err
	}
	fullDst, err := a.resolve("copy", dst)
	if err != nil {
		return err
	}
	if _, err := os.Stat(fullSrc); err != nil {
		return a.wrap("copy", src, err)
	}
	if !overwrite {
		if _, err := os.Stat(fullDst); err == nil {
			return a.wrap("copy", dst, fmt.Errorf("%w: %s", storekit.ErrAlreadyExists, dst))
		}
	}
	if err := os.MkdirAll(filepath.Dir(fullDst), 0o755); err != nil {
		return a.wrap("copy", dst, err)
	}
	if err := copyFile(fullSrc, fullDst); err != nil {
		return a.wrap("copy", src, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// Checksum implements storekit.Checksummer
func (a *Adapter) Checksum(ctx context.Context, path string, algorithm storekit.ChecksumAlgorithm) (string, error) {
	rc, err := a.Read(ctx, path)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	sum, err := storekit.CalculateChecksum(rc, algorithm)
	if err != nil {
		return "", a.wrap("checksum", path, err)
	}
	return sum, nil
}

// ToKey implements storekit.Backend. Absolute paths under the root are
// rebased to keys; anything else passes through in slash form.
func (a *Adapter) ToKey(native string) string {
	cleaned := filepath.Clean(native)
	if filepath.IsAbs(cleaned) {
		rel, err := filepath.Rel(a.root, cleaned)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return strings.TrimPrefix(filepath.ToSlash(cleaned), "/")
}

// Unwrap implements storekit.Backend; the local adapter holds no
// native client.
func (a *Adapter) Unwrap(kind storekit.ClientKind) (any, error) {
	return nil, &storekit.Error{
		Op:      "unwrap",
		Backend: backendName,
		Err:     fmt.Errorf("%w: no %s client", storekit.ErrNotSupported, kind),
	}
}

// Close implements storekit.Backend
func (a *Adapter) Close() error { return nil }

func joinKey(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
