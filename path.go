package storekit

import (
	"strings"
)

// Path is a validated, normalized, backend-neutral storage path.
//
// A Path is always relative, uses forward slashes, contains no empty,
// "." or ".." segments and never carries a trailing slash. The zero
// value is not a valid path; construct one with NewPath.
//
// Path is a comparable value type: two paths are equal exactly when
// their normalized string forms are equal, so Path works directly as a
// map key.
type Path struct {
	p string
}

// NewPath validates and normalizes raw into a Path.
//
// Backslashes are treated as separators, empty and "." segments are
// dropped, and leading/trailing slashes are ignored. The raw input is
// rejected with ErrInvalidPath when it contains a ".." segment, a NUL
// byte, or normalizes to nothing.
func NewPath(raw string) (Path, error) {
	s, err := normalizePath(raw)
	if err != nil {
		return Path{}, err
	}
	return Path{p: s}, nil
}

// MustPath is like NewPath but panics on invalid input. Intended for
// literals known to be valid.
func MustPath(raw string) Path {
	p, err := NewPath(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func normalizePath(raw string) (string, error) {
	if strings.ContainsRune(raw, 0) {
		return "", &Error{Op: "parse", Path: raw, Err: errNulByte}
	}
	normalized := strings.ReplaceAll(raw, "\\", "/")
	var parts []string
	for _, seg := range strings.Split(normalized, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", &Error{Op: "parse", Path: raw, Err: errParentSegment}
		}
		parts = append(parts, seg)
	}
	if len(parts) == 0 {
		return "", &Error{Op: "parse", Path: raw, Err: errEmptyPath}
	}
	return strings.Join(parts, "/"), nil
}

// String returns the normalized slash-separated form.
func (p Path) String() string { return p.p }

// IsZero reports whether p is the zero value (never produced by NewPath).
func (p Path) IsZero() bool { return p.p == "" }

// Name returns the final segment.
func (p Path) Name() string {
	if i := strings.LastIndexByte(p.p, '/'); i >= 0 {
		return p.p[i+1:]
	}
	return p.p
}

// Parent returns the path with the final segment removed. The second
// return value is false when p is a single segment and has no parent.
func (p Path) Parent() (Path, bool) {
	i := strings.LastIndexByte(p.p, '/')
	if i < 0 {
		return Path{}, false
	}
	return Path{p: p.p[:i]}, true
}

// Parts returns the path segments in order.
func (p Path) Parts() []string {
	if p.p == "" {
		return nil
	}
	return strings.Split(p.p, "/")
}

// Suffix returns the extension of the final segment including the
// leading dot, or "" when there is none. Dotfiles such as ".gitignore"
// have no suffix.
func (p Path) Suffix() string {
	name := p.Name()
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return ""
	}
	return name[i:]
}

// Join appends one or more segments, validating the result. Each
// segment goes through the same normalization as NewPath, so "a/b" is
// accepted while ".." is not.
func (p Path) Join(segments ...string) (Path, error) {
	joined := p.p + "/" + strings.Join(segments, "/")
	return NewPath(joined)
}
