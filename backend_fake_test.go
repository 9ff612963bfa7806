package storekit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// fakeBackend is an in-package test backend with object-store
// semantics: virtual folders derived from key prefixes, no persistent
// empty folders.
type fakeBackend struct {
	name   string
	caps   CapabilitySet
	files  map[string][]byte
	closed int
}

var _ Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		name:  "fake",
		caps:  AllCapabilities(),
		files: make(map[string][]byte),
	}
}

func (f *fakeBackend) Name() string                { return f.name }
func (f *fakeBackend) Capabilities() CapabilitySet { return f.caps }

func (f *fakeBackend) notFound(op, path string) error {
	return &Error{Op: op, Path: path, Backend: f.name, Err: fmt.Errorf("%w: %s", ErrNotFound, path)}
}

func (f *fakeBackend) Exists(ctx context.Context, path string) (bool, error) {
	if _, ok := f.files[path]; ok {
		return true, nil
	}
	return f.IsFolder(ctx, path)
}

func (f *fakeBackend) IsFile(ctx context.Context, path string) (bool, error) {
	_, ok := f.files[path]
	return ok, nil
}

func (f *fakeBackend) IsFolder(ctx context.Context, path string) (bool, error) {
	pfx := path + "/"
	if path == "" {
		pfx = ""
	}
	for key := range f.files {
		if strings.HasPrefix(key, pfx) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBackend) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	data, err := f.ReadBytes(ctx, path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBackend) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, f.notFound("read", path)
	}
	return data, nil
}

func (f *fakeBackend) Write(ctx context.Context, path string, content io.Reader, opts ...WriteOption) error {
	o := ApplyWriteOptions(opts)
	if _, exists := f.files[path]; exists && !o.Overwrite {
		return &Error{Op: "write", Path: path, Backend: f.name, Err: fmt.Errorf("%w: %s", ErrAlreadyExists, path)}
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	f.files[path] = data
	return nil
}

func (f *fakeBackend) WriteAtomic(ctx context.Context, path string, content io.Reader, opts ...WriteOption) error {
	return f.Write(ctx, path, content, opts...)
}

func (f *fakeBackend) Delete(ctx context.Context, path string, missingOK bool) error {
	if _, ok := f.files[path]; !ok {
		if missingOK {
			return nil
		}
		return f.notFound("delete", path)
	}
	delete(f.files, path)
	return nil
}

func (f *fakeBackend) DeleteFolder(ctx context.Context, path string, recursive, missingOK bool) error {
	exists, _ := f.IsFolder(ctx, path)
	if !exists {
		if missingOK {
			return nil
		}
		return f.notFound("delete_folder", path)
	}
	if !recursive {
		return &Error{Op: "delete_folder", Path: path, Backend: f.name, Err: fmt.Errorf("folder not empty")}
	}
	pfx := path + "/"
	for key := range f.files {
		if strings.HasPrefix(key, pfx) {
			delete(f.files, key)
		}
	}
	return nil
}

func (f *fakeBackend) ListFiles(ctx context.Context, path string, recursive bool) ([]FileInfo, error) {
	pfx := ""
	if path != "" {
		pfx = path + "/"
	}
	var infos []FileInfo
	for key, data := range f.files {
		if !strings.HasPrefix(key, pfx) {
			continue
		}
		if !recursive && strings.ContainsRune(key[len(pfx):], '/') {
			continue
		}
		p, err := NewPath(key)
		if err != nil {
			continue
		}
		infos = append(infos, FileInfo{
			Path:    p,
			Name:    p.Name(),
			Size:    int64(len(data)),
			ModTime: time.Now(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path.String() < infos[j].Path.String() })
	return infos, nil
}

func (f *fakeBackend) ListFolders(ctx context.Context, path string) ([]string, error) {
	pfx := ""
	if path != "" {
		pfx = path + "/"
	}
	seen := map[string]struct{}{}
	for key := range f.files {
		if !strings.HasPrefix(key, pfx) {
			continue
		}
		rest := key[len(pfx):]
		if i := strings.IndexByte(rest, '/'); i > 0 {
			seen[rest[:i]] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeBackend) GetFileInfo(ctx context.Context, path string) (*FileInfo, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, f.notFound("file_info", path)
	}
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	return &FileInfo{Path: p, Name: p.Name(), Size: int64(len(data)), ModTime: time.Now()}, nil
}

func (f *fakeBackend) GetFolderInfo(ctx context.Context, path string) (*FolderInfo, error) {
	infos, err := f.ListFiles(ctx, path, true)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, f.notFound("folder_info", path)
	}
	folder := &FolderInfo{}
	if path != "" {
		p, err := NewPath(path)
		if err != nil {
			return nil, err
		}
		folder.Path = p
	}
	for _, info := range infos {
		folder.FileCount++
		folder.TotalSize += info.Size
	}
	return folder, nil
}

func (f *fakeBackend) Move(ctx context.Context, src, dst string, overwrite bool) error {
	if err := f.Copy(ctx, src, dst, overwrite); err != nil {
		return err
	}
	return f.Delete(ctx, src, false)
}

func (f *fakeBackend) Copy(ctx context.Context, src, dst string, overwrite bool) error {
	data, ok := f.files[src]
	if !ok {
		return f.notFound("copy", src)
	}
	if _, exists := f.files[dst]; exists && !overwrite {
		return &Error{Op: "copy", Path: dst, Backend: f.name, Err: fmt.Errorf("%w: %s", ErrAlreadyExists, dst)}
	}
	f.files[dst] = append([]byte(nil), data...)
	return nil
}

func (f *fakeBackend) ToKey(native string) string {
	key := strings.TrimPrefix(native, "fake://")
	return strings.TrimPrefix(key, "/")
}

func (f *fakeBackend) Unwrap(kind ClientKind) (any, error) {
	return nil, &Error{Op: "unwrap", Backend: f.name, Err: fmt.Errorf("%w: no %s client", ErrNotSupported, kind)}
}

func (f *fakeBackend) Close() error {
	f.closed++
	return nil
}
