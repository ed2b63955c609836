// Section digests.
//
// A digest is a 16 hex character hash over a section's raw bytes, preamble
// included. Digests identify section content across files and re-opens, so
// tools can tell whether a strategy changed between two builds without
// comparing records. Three algorithms are supported.
package ragfile

import (
	"fmt"
	"hash"
	"hash/fnv"
	"io"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// DigestAlgorithm selects the hash used by Section.Digest.
type DigestAlgorithm int

// Digest algorithms.
const (
	DigestXXH3    DigestAlgorithm = 1 // Default, fastest
	DigestFNV1a   DigestAlgorithm = 2 // No external dependencies
	DigestBlake2b DigestAlgorithm = 3 // Best distribution
)

func (a DigestAlgorithm) String() string {
	switch a {
	case DigestXXH3:
		return "xxh3"
	case DigestFNV1a:
		return "fnv1a"
	case DigestBlake2b:
		return "blake2b"
	default:
		return fmt.Sprintf("digest(%d)", int(a))
	}
}

// ParseDigestAlgorithm maps a name produced by String back to its algorithm.
func ParseDigestAlgorithm(name string) (DigestAlgorithm, error) {
	for _, a := range []DigestAlgorithm{DigestXXH3, DigestFNV1a, DigestBlake2b} {
		if a.String() == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("ragfile: unknown digest algorithm %q", name)
}

// newHash returns a 64-bit hasher for alg.
func newHash(alg DigestAlgorithm) (hash.Hash, error) {
	switch alg {
	case DigestXXH3:
		return xxh3.New(), nil
	case DigestFNV1a:
		return fnv.New64a(), nil
	case DigestBlake2b:
		return blake2b.New(8, nil) // 8 bytes = 64 bits
	default:
		return nil, fmt.Errorf("ragfile: unknown digest algorithm %d", int(alg))
	}
}

// Digest hashes the section's raw bytes with alg.
func (s *Section) Digest(alg DigestAlgorithm) (string, error) {
	h, err := newHash(alg)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, s.Raw()); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum(nil)), nil
}
