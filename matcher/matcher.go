// Package matcher finds the longest old-file run matching a given
// position in the new file, either by probing a blockindex.Index or, when
// no index is available, by a bounded windowed scan.
package matcher

import (
	"encoding/binary"
	"math/bits"

	"github.com/openclaw/bindelta/blockindex"
	"github.com/openclaw/bindelta/rollinghash"
)

// EarlyExitLength is the match length at which the search stops looking
// for a longer candidate. A calibration constant, not a correctness
// contract (spec §9): raising it trades throughput for ratio.
const EarlyExitLength = 4096

// Fallback scan bounds (spec §4.3): at least 1 MiB, at most 10 MiB of old
// bytes are scanned when no index is supplied.
const (
	MinSearchWindow = 1 << 20
	MaxSearchWindow = 10 << 20
)

// Match describes a run of old-file bytes identical to new-file bytes
// starting at the probed offset.
type Match struct {
	OldOffset uint64
	Length    uint32
}

// FindLongestMatch probes idx's bucket for the w-byte window starting at
// newOffset and returns the longest qualifying extension among candidates
// in that bucket, stopping early once a match of EarlyExitLength or more
// is found. Ties are broken by bucket order, which — because index shards
// cover strictly increasing, non-overlapping offset ranges and are merged
// in shard order — is the same as smallest old offset.
func FindLongestMatch(old, newBuf []byte, newOffset int, idx *blockindex.Index) (Match, bool) {
	w := idx.Window()
	if newOffset < 0 || newOffset+w > len(newBuf) {
		return Match{}, false
	}
	h := rollinghash.Of(newBuf[newOffset : newOffset+w])
	candidates := idx.Lookup(h)

	var best Match
	found := false
	for _, oldOffset := range candidates {
		if oldOffset+2 > uint64(len(old)) {
			continue
		}
		// Fast-reject by comparing the first two bytes before paying for
		// a full extension.
		if old[oldOffset] != newBuf[newOffset] || old[oldOffset+1] != newBuf[newOffset+1] {
			continue
		}
		length := extend(old, newBuf, oldOffset, uint64(newOffset))
		if length < uint32(w) {
			continue
		}
		if !found || length > best.Length {
			best = Match{OldOffset: oldOffset, Length: length}
			found = true
		}
		if length >= EarlyExitLength {
			break
		}
	}
	return best, found
}

// FindLongestMatchFallback scans at most maxSearch old-file bytes starting
// at offset 0 for a window whose rolling hash matches the new-file window
// at newOffset, extending and tracking the best candidate exactly as
// FindLongestMatch does. Used when no index was built (small inputs).
func FindLongestMatchFallback(old, newBuf []byte, newOffset int, window int, maxSearch int) (Match, bool) {
	if maxSearch < MinSearchWindow {
		maxSearch = MinSearchWindow
	}
	if maxSearch > MaxSearchWindow {
		maxSearch = MaxSearchWindow
	}
	if newOffset < 0 || newOffset+window > len(newBuf) || len(old) < window {
		return Match{}, false
	}
	limit := len(old) - window + 1
	if limit > maxSearch {
		limit = maxSearch
	}

	target := rollinghash.Of(newBuf[newOffset : newOffset+window])
	h := rollinghash.New(window)
	h.Init(old[0:window])

	var best Match
	found := false
	pos := 0
	for {
		if h.Value() == target && old[pos] == newBuf[newOffset] {
			length := extend(old, newBuf, uint64(pos), uint64(newOffset))
			if length >= uint32(window) && (!found || length > best.Length) {
				best = Match{OldOffset: uint64(pos), Length: length}
				found = true
				if length >= EarlyExitLength {
					break
				}
			}
		}
		next := pos + 1
		if next >= limit {
			break
		}
		h.Roll(old[pos], old[next+window-1])
		pos = next
	}
	return best, found
}

// extend walks forward from (oldStart, newStart) counting matching bytes,
// comparing 8 bytes at a time (the portable equivalent of a SIMD 16-byte
// block compare: an XOR of two machine words is zero iff all 8 bytes
// match, and its trailing-zero count locates the first mismatching byte)
// before falling back to a byte-by-byte tail.
func extend(old, newBuf []byte, oldStart, newStart uint64) uint32 {
	a := old[oldStart:]
	b := newBuf[newStart:]
	max := len(a)
	if len(b) < max {
		max = len(b)
	}

	i := 0
	for i+8 <= max {
		wa := binary.LittleEndian.Uint64(a[i:])
		wb := binary.LittleEndian.Uint64(b[i:])
		if wa != wb {
			return uint32(i + bits.TrailingZeros64(wa^wb)/8)
		}
		i += 8
	}
	for i < max && a[i] == b[i] {
		i++
	}
	return uint32(i)
}
