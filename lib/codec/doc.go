// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by every on-disk
// record localmost writes: policy cache entries and action cache
// manifests.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical record always produces identical bytes. Cache manifests
// rely on that when comparing entries.
//
//	data, err := codec.Marshal(record)
//	err = codec.Unmarshal(data, &record)
//
// Types that are only ever stored as CBOR use `cbor` struct tags.
// Types that also appear in JSON or YAML output (the policy document,
// for example) keep their `json` tags, which fxamacker/cbor reads as a
// fallback. Never put both tags on one field.
package codec
