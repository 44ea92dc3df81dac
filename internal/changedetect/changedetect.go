// Package changedetect decides whether re-acquired content differs from what
// is already stored, so repeat runs do not rewrite identical rows.
package changedetect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Digest returns the hex-encoded SHA-256 of content.
func Digest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// MetadataDigest hashes a field map in a canonical, order-independent form.
// Keys are sorted so two maps with the same entries always hash the same.
func MetadataDigest(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, fields[k])
	}
	return Digest(b.String())
}

// Changed reports whether newContent differs from the content oldDigest was
// computed from, and returns the new digest. A missing old digest is always
// reported as changed.
func Changed(oldDigest, newContent string) (bool, string) {
	d := Digest(newContent)
	if oldDigest == "" {
		return true, d
	}
	return d != oldDigest, d
}
