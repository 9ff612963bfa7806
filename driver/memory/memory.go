// Package memory implements the storekit Backend in process memory.
//
// It follows filesystem folder semantics: folders are real entries,
// created implicitly for every written file's ancestors, and persist
// while empty. Intended for tests and ephemeral scratch storage.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobeaver/storekit"
)

const backendName = "memory"

type entry struct {
	data        []byte
	modTime     time.Time
	contentType string
	metadata    map[string]string
}

// Adapter provides an in-memory implementation of storekit.Backend.
type Adapter struct {
	mu      sync.RWMutex
	files   map[string]*entry
	folders map[string]struct{}
}

var _ storekit.Backend = (*Adapter)(nil)

// New creates an empty in-memory adapter.
func New() *Adapter {
	return &Adapter{
		files:   make(map[string]*entry),
		folders: make(map[string]struct{}),
	}
}

// Name implements storekit.Backend
func (a *Adapter) Name() string { return backendName }

// Capabilities implements storekit.Backend
func (a *Adapter) Capabilities() storekit.CapabilitySet {
	return storekit.AllCapabilities()
}

func (a *Adapter) wrap(op, path string, err error) error {
	return &storekit.Error{Op: op, Path: path, Backend: backendName, Err: err}
}

// ensureParents records every ancestor of key as a folder. Callers
// hold the write lock.
func (a *Adapter) ensureParents(key string) {
	for {
		i := strings.LastIndexByte(key, '/')
		if i < 0 {
			return
		}
		key = key[:i]
		a.folders[key] = struct{}{}
	}
}

func (a *Adapter) isFolderLocked(path string) bool {
	if path == "" {
		return true
	}
	_, ok := a.folders[path]
	return ok
}

// Exists implements storekit.Backend
func (a *Adapter) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.files[path]; ok {
		return true, nil
	}
	return a.isFolderLocked(path), nil
}

// IsFile implements storekit.Backend
func (a *Adapter) IsFile(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.files[path]
	return ok, nil
}

// IsFolder implements storekit.Backend
func (a *Adapter) IsFolder(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.isFolderLocked(path), nil
}

// Read implements storekit.Backend
func (a *Adapter) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	data, err := a.ReadBytes(ctx, path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// ReadBytes implements storekit.Backend
func (a *Adapter) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.files[path]
	if !ok {
		return nil, a.wrap("read", path, fmt.Errorf("%w: %s", storekit.ErrNotFound, path))
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

// Write implements storekit.Backend
func (a *Adapter) Write(ctx context.Context, path string, content io.Reader, opts ...storekit.WriteOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o := storekit.ApplyWriteOptions(opts)

	var data []byte
	if content != nil {
		var err error
		data, err = io.ReadAll(content)
		if err != nil {
			return a.wrap("write", path, err)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.files[path]; exists && !o.Overwrite {
		return a.wrap("write", path, fmt.Errorf("%w: %s", storekit.ErrAlreadyExists, path))
	}
	ct := o.ContentType
	if ct == "" {
		ct = storekit.GuessContentType(path, data)
	}
	a.files[path] = &entry{
		data:        data,
		modTime:     time.Now(),
		contentType: ct,
		metadata:    o.Metadata,
	}
	a.ensureParents(path)
	return nil
}

// WriteAtomic implements storekit.Backend. Map assignment under the
// lock is already all-or-nothing.
func (a *Adapter) WriteAtomic(ctx context.Context, path string, content io.Reader, opts ...storekit.WriteOption) error {
	return a.Write(ctx, path, content, opts...)
}

// Delete implements storekit.Backend
func (a *Adapter) Delete(ctx context.Context, path string, missingOK bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.files[path]; !ok {
		if missingOK {
			return nil
		}
		return a.wrap("delete", path, fmt.Errorf("%w: %s", storekit.ErrNotFound, path))
	}
	delete(a.files, path)
	return nil
}

// DeleteFolder implements storekit.Backend
func (a *Adapter) DeleteFolder(ctx context.Context, path string, recursive, missingOK bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.isFolderLocked(path) {
		if missingOK {
			return nil
		}
		return a.wrap("delete_folder", path, fmt.Errorf("%w: %s", storekit.ErrNotFound, path))
	}

	pfx := path + "/"
	var contained bool
	for key := range a.files {
		if strings.HasPrefix(key, pfx) {
			contained = true
			break
		}
	}
	if !contained {
		for folder := range a.folders {
			if strings.HasPrefix(folder, pfx) {
				contained = true
				break
			}
		}
	}
	if contained && !recursive {
		return a.wrap("delete_folder", path, fmt.Errorf("%w: folder not empty", storekit.ErrNotFound))
	}

	for key := range a.files {
		if strings.HasPrefix(key, pfx) {
			delete(a.files, key)
		}
	}
	for folder := range a.folders {
		if strings.HasPrefix(folder, pfx) {
			delete(a.folders, folder)
		}
	}
	delete(a.folders, path)
	return nil
}

// ListFiles implements storekit.Backend
func (a *Adapter) ListFiles(ctx context.Context, path string, recursive bool) ([]storekit.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	// Listing a missing or non-folder path yields an empty result, not
	// an error.
	if !a.isFolderLocked(path) {
		return nil, nil
	}

	pfx := ""
	if path != "" {
		pfx = path + "/"
	}
	var infos []storekit.FileInfo
	for key, e := range a.files {
		if !strings.HasPrefix(key, pfx) {
			continue
		}
		if !recursive && strings.ContainsRune(key[len(pfx):], '/') {
			continue
		}
		if info, ok := a.fileInfoLocked(key, e); ok {
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path.String() < infos[j].Path.String() })
	return infos, nil
}

func (a *Adapter) fileInfoLocked(key string, e *entry) (storekit.FileInfo, bool) {
	p, err := storekit.NewPath(key)
	if err != nil {
		return storekit.FileInfo{}, false
	}
	return storekit.FileInfo{
		Path:        p,
		Name:        p.Name(),
		Size:        int64(len(e.data)),
		ModTime:     e.modTime,
		ContentType: e.contentType,
		Metadata:    e.metadata,
	}, true
}

// ListFolders implements storekit.Backend
func (a *Adapter) ListFolders(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.isFolderLocked(path) {
		return nil, nil
	}

	pfx := ""
	if path != "" {
		pfx = path + "/"
	}
	var names []string
	for folder := range a.folders {
		if !strings.HasPrefix(folder, pfx) {
			continue
		}
		rest := folder[len(pfx):]
		if rest == "" || strings.ContainsRune(rest, '/') {
			continue
		}
		names = append(names, rest)
	}
	sort.Strings(names)
	return names, nil
}

// GetFileInfo implements storekit.Backend
func (a *Adapter) GetFileInfo(ctx context.Context, path string) (*storekit.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.files[path]
	if !ok {
		return nil, a.wrap("file_info", path, fmt.Errorf("%w: %s", storekit.ErrNotFound, path))
	}
	info, ok := a.fileInfoLocked(path, e)
	if !ok {
		return nil, a.wrap("file_info", path, fmt.Errorf("%w: %s", storekit.ErrInvalidPath, path))
	}
	return &info, nil
}

// GetFolderInfo implements storekit.Backend. Aggregates recursively
// over every file in the subtree.
func (a *Adapter) GetFolderInfo(ctx context.Context, path string) (*storekit.FolderInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.isFolderLocked(path) {
		return nil, a.wrap("folder_info", path, fmt.Errorf("%w: %s", storekit.ErrNotFound, path))
	}

	pfx := ""
	if path != "" {
		pfx = path + "/"
	}
	info := &storekit.FolderInfo{}
	if path != "" {
		p, err := storekit.NewPath(path)
		if err != nil {
			return nil, err
		}
		info.Path = p
	}
	for key, e := range a.files {
		if !strings.HasPrefix(key, pfx) {
			continue
		}
		info.FileCount++
		info.TotalSize += int64(len(e.data))
		if e.modTime.After(info.ModTime) {
			info.ModTime = e.modTime
		}
	}
	return info, nil
}

// Move implements storekit.Backend
func (a *Adapter) Move(ctx context.Context, src, dst string, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.files[src]
	if !ok {
		return a.wrap("move", src, fmt.Errorf("%w: %s", storekit.ErrNotFound, src))
	}
	if _, exists := a.files[dst]; exists && !overwrite {
		return a.wrap("move", dst, fmt.Errorf("%w: %s", storekit.ErrAlreadyExists, dst))
	}
	a.files[dst] = e
	delete(a.files, src)
	a.ensureParents(dst)
	return nil
}

// Copy implements storekit.Backend
func (a *Adapter) Copy(ctx context.Context, src, dst string, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.files[src]
	if !ok {
		return a.wrap("copy", src, fmt.Errorf("%w: %s", storekit.ErrNotFound, src))
	}
	if _, exists := a.files[dst]; exists && !overwrite {
		return a.wrap("copy", dst, fmt.Errorf("%w: %s", storekit.ErrAlreadyExists, dst))
	}
	data := make([]byte, len(e.data))
	copy(data, e.data)
	a.files[dst] = &entry{
		data:        data,
		modTime:     time.Now(),
		contentType: e.contentType,
		metadata:    e.metadata,
	}
	a.ensureParents(dst)
	return nil
}

// ToKey implements storekit.Backend
func (a *Adapter) ToKey(native string) string {
	return strings.TrimPrefix(native, "/")
}

// Unwrap implements storekit.Backend; there is no native client.
func (a *Adapter) Unwrap(kind storekit.ClientKind) (any, error) {
	return nil, &storekit.Error{
		Op:      "unwrap",
		Backend: backendName,
		Err:     fmt.Errorf("%w: no %s client", storekit.ErrNotSupported, kind),
	}
}

// Close implements storekit.Backend
func (a *Adapter) Close() error { return nil }
