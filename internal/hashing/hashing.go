// Package hashing computes the short content fingerprints used for node IDs,
// pack snapshots and feature membership keys.
//
// Fingerprints are HighwayHash-64 under a fixed key, rendered as 16 hex chars.
// They detect change; they are not a security boundary.
package hashing

import (
	"fmt"
	"sort"

	"github.com/minio/highwayhash"
)

var key = []byte("autodoc-highwayhash-key-32-bytes")

// Sum64 returns the HighwayHash-64 of data.
func Sum64(data []byte) uint64 {
	h, err := highwayhash.New64(key)
	if err != nil {
		// only fails on a key that isn't 32 bytes
		panic(err)
	}
	h.Write(data)
	return h.Sum64()
}

// Content fingerprints file content.
func Content(data []byte) string {
	return fmt.Sprintf("%016x", Sum64(data))
}

// Fields fingerprints an ordered list of strings. Fields are NUL-separated so
// ("ab", "c") and ("a", "bc") differ.
func Fields(fields ...string) string {
	n := 0
	for _, f := range fields {
		n += len(f) + 1
	}
	buf := make([]byte, 0, n)
	for _, f := range fields {
		buf = append(buf, f...)
		buf = append(buf, 0)
	}
	return Content(buf)
}

// Set fingerprints an unordered set of strings: the same members in any order
// give the same key.
func Set(members []string) string {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	return Fields(sorted...)
}

// Short truncates a fingerprint to n hex chars.
func Short(fp string, n int) string {
	if len(fp) <= n {
		return fp
	}
	return fp[:n]
}
