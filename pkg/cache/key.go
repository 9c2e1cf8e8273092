package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// KeyPrefix namespaces every snapshot key.
const KeyPrefix = "catalog:categories:"

// SnapshotKey returns the Redis key holding the category snapshot of the
// store at baseURL. Scheme, case and trailing slashes do not change the key.
//
// Example:
//
//	catalog:categories:shop.example.com:3f9a0c1d
func SnapshotKey(baseURL string) string {
	host := strings.ToLower(strings.TrimSpace(baseURL))
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimRight(host, "/")

	sum := sha256.Sum256([]byte(host))
	label := host
	if i := strings.IndexByte(label, '/'); i >= 0 {
		label = label[:i]
	}
	return KeyPrefix + label + ":" + hex.EncodeToString(sum[:4])
}

// metaKey holds snapshot metadata next to the hash of names.
func metaKey(key string) string {
	return key + ":meta"
}
