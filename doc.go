// Package storekit provides a backend-agnostic file storage
// abstraction: one contract over local filesystems, S3-compatible
// object stores and SFTP servers.
//
// The pieces:
//
//   - Path: a validated, normalized, backend-neutral storage path.
//   - Backend: the storage contract adapters implement. Built-in
//     adapters live under driver/ and register themselves on import.
//   - Store: the application-facing façade. It scopes a Backend under
//     a root prefix, validates paths and checks capabilities before
//     delegating.
//   - Registry: resolves named stores from declarative configuration,
//     creating backends lazily and sharing them between stores.
//
// Errors are uniform across backends: every failure maps to one of the
// sentinel kinds (ErrNotFound, ErrAlreadyExists, ErrPermission,
// ErrInvalidPath, ErrNotSupported, ErrUnavailable) and callers branch
// with errors.Is or the Is* helpers, never on backend-native types.
//
// Backends are enabled by blank import, in the database/sql style:
//
//	import (
//		"github.com/gobeaver/storekit"
//
//		_ "github.com/gobeaver/storekit/driver/local"
//		_ "github.com/gobeaver/storekit/driver/s3"
//	)
//
//	registry, err := storekit.NewRegistryFromMap(cfg)
//	if err != nil { ... }
//	defer registry.Close()
//
//	store, err := registry.GetStore("reports")
//	if err != nil { ... }
//	data, err := store.ReadBytes(ctx, "2026/q1.csv")
//
// Folder semantics differ between backend families and the contract
// deliberately does not paper over it: local, sftp and memory have
// real folders that persist while empty; s3 and s3-hybrid have
// virtual folders that exist only while objects live under the
// prefix. Code that must behave identically everywhere should not
// depend on empty folders.
package storekit
