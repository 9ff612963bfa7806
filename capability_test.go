package storekit

import (
	"errors"
	"reflect"
	"testing"
)

func TestCapabilitySetSupports(t *testing.T) {
	s := NewCapabilitySet(CapRead, CapList)
	if !s.Supports(CapRead) {
		t.Error("set should support read")
	}
	if s.Supports(CapWrite) {
		t.Error("set should not support write")
	}
}

func TestCapabilitySetRequire(t *testing.T) {
	s := NewCapabilitySet(CapRead)

	if err := s.Require(CapRead, "local"); err != nil {
		t.Fatalf("Require(read) = %v", err)
	}

	err := s.Require(CapGlob, "sftp")
	if err == nil {
		t.Fatal("Require(glob) succeeded on a set without glob")
	}
	if !IsNotSupported(err) {
		t.Errorf("Require error = %v, want ErrNotSupported", err)
	}
	var se *Error
	if !errors.As(err, &se) {
		t.Fatal("Require did not return *Error")
	}
	if se.Capability != CapGlob || se.Backend != "sftp" {
		t.Errorf("Require error fields = %+v", se)
	}
}

func TestAllCapabilities(t *testing.T) {
	s := AllCapabilities()
	if s.Len() != 10 {
		t.Errorf("AllCapabilities has %d entries, want 10", s.Len())
	}
	for _, c := range []Capability{
		CapRead, CapWrite, CapDelete, CapList, CapMove, CapCopy,
		CapAtomicWrite, CapGlob, CapRecursiveList, CapMetadata,
	} {
		if !s.Supports(c) {
			t.Errorf("AllCapabilities missing %s", c)
		}
	}
}

func TestCapabilitySetWithout(t *testing.T) {
	full := AllCapabilities()
	stripped := full.Without(CapWrite, CapDelete)

	if stripped.Supports(CapWrite) || stripped.Supports(CapDelete) {
		t.Error("Without did not remove capabilities")
	}
	if !stripped.Supports(CapRead) {
		t.Error("Without removed an unrelated capability")
	}
	// The original set is unchanged.
	if !full.Supports(CapWrite) {
		t.Error("Without mutated the receiver")
	}
}

func TestCapabilitySetListSorted(t *testing.T) {
	s := NewCapabilitySet(CapWrite, CapCopy, CapAtomicWrite)
	want := []Capability{CapAtomicWrite, CapCopy, CapWrite}
	if got := s.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
	if got := s.String(); got != "atomic_write,copy,write" {
		t.Errorf("String() = %q", got)
	}
}
