// Package hashutil computes whole-file SHA-256 digests used for patch
// integrity checks, backed by minio/sha256-simd's AVX2/SHA-NI accelerated
// implementation rather than the stock crypto/sha256.
package hashutil

import (
	"io"

	"github.com/minio/sha256-simd"
)

// Size is the digest length in bytes.
const Size = sha256.Size

// Sum returns the SHA-256 digest of data.
func Sum(data []byte) [Size]byte {
	return sha256.Sum256(data)
}

// SumReader streams r through SHA-256 in fixed-size chunks, avoiding a
// second full-size allocation when the caller already holds the bytes in
// a mapped file and would rather not pass the whole slice through Sum in
// one call (Sum is equivalent and simpler when the bytes are already a
// single slice).
func SumReader(r io.Reader) ([Size]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return [Size]byte{}, err
	}
	var out [Size]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}
