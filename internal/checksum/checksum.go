// Package checksum names the digest algorithms recorded for artifacts and
// implements the write-once checksum set.
package checksum

import (
	"crypto/md5" //nolint:gosec // manifests are md5sum output
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/starford/pfdl/internal/apperr"
)

// Algorithm identifies how a digest was computed.
type Algorithm string

const (
	MD5       Algorithm = "md5"
	ETag5MiB  Algorithm = "aws-etag-5mib"
	ETag8MiB  Algorithm = "aws-etag-8mib"
	ETag64MiB Algorithm = "aws-etag-64mib"
	BLAKE3    Algorithm = "blake3"
)

const mib = 1024 * 1024

// ETagChunkSizes maps the multipart chunk sizes we recognise to their algorithm.
var ETagChunkSizes = map[int64]Algorithm{
	5 * mib:  ETag5MiB,
	8 * mib:  ETag8MiB,
	64 * mib: ETag64MiB,
}

// MD5Hex returns the hex-encoded MD5 digest of data.
func MD5Hex(data []byte) string {
	h := md5.Sum(data) //nolint:gosec
	return hex.EncodeToString(h[:])
}

// BLAKE3Hex returns the hex-encoded 256-bit BLAKE3 digest of data.
func BLAKE3Hex(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Of computes every digest we derive from retained content.
func Of(data []byte) Set {
	return Set{MD5: MD5Hex(data), BLAKE3: BLAKE3Hex(data)}
}

// Set maps algorithm to lowercase hex digest. Each algorithm is written at most once.
type Set map[Algorithm]string

// Put records value for alg. Re-recording the same value is a no-op; a
// different value is a conflict.
func (s Set) Put(alg Algorithm, value string) error {
	value = strings.ToLower(value)
	if existing, ok := s[alg]; ok {
		if existing != value {
			return fmt.Errorf("%w: %s %s (expected) vs %s (actual)", apperr.ErrChecksumConflict, alg, existing, value)
		}
		return nil
	}
	s[alg] = value
	return nil
}

// Get returns the digest for alg, if known.
func (s Set) Get(alg Algorithm) (string, bool) {
	v, ok := s[alg]
	return v, ok
}

// Clone returns an independent copy; a nil set clones to an empty one.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	maps.Copy(out, s)
	return out
}

// Algorithms returns the recorded algorithms in sorted order.
func (s Set) Algorithms() []Algorithm {
	return slices.Sorted(maps.Keys(s))
}

// Reconcile merges sets reported for the same physical object. Any two sets
// that disagree on one algorithm make the merge fail.
func Reconcile(sets ...Set) (Set, error) {
	out := Set{}
	for _, s := range sets {
		for _, alg := range s.Algorithms() {
			if err := out.Put(alg, s[alg]); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
