package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"regexp"
	"strings"
)

// defaultStem replaces filenames that sanitize down to nothing.
const defaultStem = "unnamed_file"

// maxNameLength caps sanitized filenames, extension included.
const maxNameLength = 255

var (
	disallowedChars = regexp.MustCompile(`[^\w\s-]`)
	separatorRuns   = regexp.MustCompile(`[\s_]+`)
	extChars        = regexp.MustCompile(`[^.a-z0-9]`)
)

// SanitizeFilename strips path components and traversal patterns from
// filename, collapses disallowed characters to single underscores, and caps
// the result at 255 characters including the lowercased extension. The
// transform is idempotent.
func SanitizeFilename(filename string) string {
	if filename == "" {
		return defaultStem
	}

	// Drop any path component, whichever separator convention produced it.
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))

	ext := strings.ToLower(path.Ext(base))
	ext = extChars.ReplaceAllString(ext, "")
	stem := strings.TrimSuffix(base, path.Ext(base))

	stem = strings.ReplaceAll(stem, "..", "")
	stem = disallowedChars.ReplaceAllString(stem, "_")
	stem = separatorRuns.ReplaceAllString(stem, "_")
	stem = strings.Trim(stem, "_")

	if stem == "" {
		stem = defaultStem
	}

	// The extension alone can exceed the cap; clamp it first so the stem
	// budget below never goes negative.
	if len(ext) > maxNameLength {
		ext = ext[:maxNameLength]
	}
	if len(stem)+len(ext) > maxNameLength {
		stem = strings.TrimRight(stem[:maxNameLength-len(ext)], "_")
	}

	return stem + ext
}

// ContentHash returns the hex SHA-256 digest of data. Identical bytes always
// map to the same digest, which keys the content-addressed object names.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
