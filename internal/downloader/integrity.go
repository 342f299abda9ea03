package downloader

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// minSizeTolerance is the absolute slack allowed between expected and actual size.
const minSizeTolerance = 100

// SizeTolerance returns the allowed difference for an expected size:
// the larger of 100 bytes and 1% of expected.
func SizeTolerance(expected int64) int64 {
	pct := expected / 100
	if pct < minSizeTolerance {
		return minSizeTolerance
	}
	return pct
}

// WithinTolerance reports whether actual is close enough to expected.
func WithinTolerance(actual, expected int64) bool {
	diff := actual - expected
	if diff < 0 {
		diff = -diff
	}
	return diff <= SizeTolerance(expected)
}

// VerifyIntegrity checks that path exists as a regular file whose size
// matches expected within tolerance.
func VerifyIntegrity(path string, expected int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIntegrityCheck, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", domain.ErrIntegrityCheck, path)
	}
	if !WithinTolerance(info.Size(), expected) {
		return fmt.Errorf("%w: size %d, expected %d (±%d)",
			domain.ErrIntegrityCheck, info.Size(), expected, SizeTolerance(expected))
	}
	return nil
}

// VerifyExisting reports whether path holds a non-empty regular file,
// which is what a previously completed download leaves behind.
func VerifyExisting(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// newDigest returns the hash used for media checksums (BLAKE2b-256).
func newDigest() hash.Hash {
	h, _ := blake2b.New256(nil)
	return h
}

// FileChecksum returns the hex media checksum of the file at path.
func FileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := newDigest()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
