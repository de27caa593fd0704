// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package actioncache is the local store behind the intercepted
// actions/cache steps.
//
// An entry is keyed by the step's key string and holds a tar archive of
// the declared paths, compressed with zstd or lz4, next to a CBOR
// [Manifest] recording the paths, the blake3 digest of the archive, and
// when and by which localmost build the entry was written. Restores try
// the exact key first and then each restore key as a prefix, in the
// order declared; among entries sharing a prefix the newest wins.
//
// Entries are assembled in a temporary directory and renamed into
// place. Concurrent runs sharing a key see either the previous entry
// or the new one, never a partial one; the last writer wins.
package actioncache
