package storekit

import (
	"sort"
	"strings"
)

// Capability identifies one optional piece of backend behavior.
type Capability string

const (
	CapRead          Capability = "read"
	CapWrite         Capability = "write"
	CapDelete        Capability = "delete"
	CapList          Capability = "list"
	CapMove          Capability = "move"
	CapCopy          Capability = "copy"
	CapAtomicWrite   Capability = "atomic_write"
	CapGlob          Capability = "glob"
	CapRecursiveList Capability = "recursive_list"
	CapMetadata      Capability = "metadata"
)

// CapabilitySet is the set of capabilities a backend declares. It is
// immutable after construction; Store consults it before delegating so
// unsupported operations fail fast instead of half-running.
type CapabilitySet struct {
	caps map[Capability]struct{}
}

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	m := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		m[c] = struct{}{}
	}
	return CapabilitySet{caps: m}
}

// AllCapabilities returns a set containing every defined capability.
func AllCapabilities() CapabilitySet {
	return NewCapabilitySet(
		CapRead, CapWrite, CapDelete, CapList, CapMove, CapCopy,
		CapAtomicWrite, CapGlob, CapRecursiveList, CapMetadata,
	)
}

// Supports reports whether c is in the set.
func (s CapabilitySet) Supports(c Capability) bool {
	_, ok := s.caps[c]
	return ok
}

// Require returns nil when c is in the set, or an *Error wrapping
// ErrNotSupported that names both the capability and the backend.
func (s CapabilitySet) Require(c Capability, backend string) error {
	if s.Supports(c) {
		return nil
	}
	return &Error{Op: "require", Backend: backend, Capability: c, Err: ErrNotSupported}
}

// Without returns a copy of the set with the given capabilities removed.
func (s CapabilitySet) Without(caps ...Capability) CapabilitySet {
	m := make(map[Capability]struct{}, len(s.caps))
	for c := range s.caps {
		m[c] = struct{}{}
	}
	for _, c := range caps {
		delete(m, c)
	}
	return CapabilitySet{caps: m}
}

// List returns the capabilities in sorted order.
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, 0, len(s.caps))
	for c := range s.caps {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of capabilities in the set.
func (s CapabilitySet) Len() int { return len(s.caps) }

// String renders the sorted capability names, comma separated.
func (s CapabilitySet) String() string {
	list := s.List()
	names := make([]string, len(list))
	for i, c := range list {
		names[i] = string(c)
	}
	return strings.Join(names, ",")
}
