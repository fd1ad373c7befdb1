package models

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

// Placeholder replaces identifier-like path segments.
const Placeholder = "{id}"

var (
	uuidPattern     = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	numericPattern  = regexp.MustCompile(`^\d+$`)
	objectIDPattern = regexp.MustCompile(`(?i)^[0-9a-f]{24}$`)
)

// IsUUID reports whether s is a canonical UUID.
func IsUUID(s string) bool {
	return uuidPattern.MatchString(s)
}

// IsIdentifierSegment reports whether a path segment is a numeric id, a UUID or an object id.
func IsIdentifierSegment(seg string) bool {
	return uuidPattern.MatchString(seg) ||
		numericPattern.MatchString(seg) ||
		objectIDPattern.MatchString(seg)
}

// NormalizePath replaces identifier segments with {id}. Applying it twice is a no-op.
func NormalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if IsIdentifierSegment(part) {
			parts[i] = Placeholder
		}
	}
	return strings.Join(parts, "/")
}

// Fingerprint returns the 12 hex char pattern id for method and path.
func Fingerprint(method HTTPMethod, path string) string {
	sum := md5.Sum([]byte(string(method) + ":" + NormalizePath(path)))
	return hex.EncodeToString(sum[:])[:12]
}
