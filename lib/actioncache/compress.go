// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package actioncache

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how an entry's archive is compressed. The
// value is recorded in the entry manifest, so entries written with one
// setting stay readable after the setting changes.
type Compression uint8

const (
	// CompressionNone stores the archive as is.
	CompressionNone Compression = 0

	// CompressionLZ4 is the fast option for large binary caches
	// (compiled dependencies, build outputs).
	CompressionLZ4 Compression = 1

	// CompressionZstd gives better ratios on source-heavy caches such
	// as package manager downloads. The default.
	CompressionZstd Compression = 2
)

// String returns the name ParseCompression accepts.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses a compression name. Empty selects zstd.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd", "":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (valid: zstd, lz4, none)", name)
	}
}

// nopWriteCloser adapts a writer for CompressionNone.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// compressWriter wraps destination in the compressor for c. Closing the
// returned writer flushes the compressor but not destination.
func compressWriter(destination io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{destination}, nil
	case CompressionLZ4:
		return lz4.NewWriter(destination), nil
	case CompressionZstd:
		encoder, err := zstd.NewWriter(destination, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		return encoder, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %d", c)
	}
}

// decompressReader wraps source in the decompressor for c. The returned
// close function releases decoder resources.
func decompressReader(source io.Reader, c Compression) (io.Reader, func(), error) {
	switch c {
	case CompressionNone:
		return source, func() {}, nil
	case CompressionLZ4:
		return lz4.NewReader(source), func() {}, nil
	case CompressionZstd:
		decoder, err := zstd.NewReader(source)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return decoder, decoder.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported compression: %d", c)
	}
}
