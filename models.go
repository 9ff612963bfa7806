package storekit

import "time"

// FileInfo describes a stored file. Identity is the Path: two FileInfo
// values refer to the same file exactly when their Paths are equal, so
// deduplicate with a map keyed on Path.
//
// Size and ModTime are always populated. Checksum, ContentType and
// Metadata are best effort and depend on what the backend exposes
// (object stores report an ETag-style checksum, filesystems usually
// report none).
type FileInfo struct {
	Path        Path
	Name        string
	Size        int64
	ModTime     time.Time
	Checksum    string
	ContentType string
	Metadata    map[string]string
}

// FolderInfo describes a folder in aggregate. FileCount and TotalSize
// cover every file in the folder's subtree; ModTime is the latest
// modification time among those files.
type FolderInfo struct {
	Path      Path
	FileCount int
	TotalSize int64
	ModTime   time.Time
	Metadata  map[string]string
}

// File is a lightweight identity handle for a file. Equality is Path
// equality.
type File struct {
	Path Path
}

// Folder is a lightweight identity handle for a folder. Equality is
// Path equality.
type Folder struct {
	Path Path
}
