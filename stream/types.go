// Package stream holds the line plumbing shared by the sectext reader and
// writer:
//   - Cursor: a positioned view over the lines of one document
//   - file loading with transparent decompression (.zst, .lz4)
//   - atomic file replacement (write to a temporary sibling, then rename)
//   - content fingerprints for change detection
//
// Everything here is call-scoped. No file handle outlives the call that
// opened it.
package stream

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Compression identifies the on-disk encoding of a text file.
type Compression uint8

const (
	CompressionNone Compression = 0 // plain UTF-8 text
	CompressionZstd Compression = 1 // zstd frame (.zst, .zstd)
	CompressionLZ4  Compression = 2 // lz4 frame (.lz4)
)

// String returns the compression name.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// Ext returns the filename extension that selects this compression,
// including the leading dot. CompressionNone has no extension.
func (c Compression) Ext() string {
	switch c {
	case CompressionZstd:
		return ".zst"
	case CompressionLZ4:
		return ".lz4"
	default:
		return ""
	}
}

// ParseCompression parses a compression name. The empty string is "none".
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompressionNone, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression: %q", name)
	}
}

// CompressionFor derives the compression from a path's final extension.
func CompressionFor(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		return CompressionZstd
	case ".lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}
