// Package blockindex builds and queries a bucketed hash-to-offset map over
// an old file's bytes: the content-addressable index the block matcher
// probes to find copy candidates.
package blockindex

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/openclaw/bindelta/rollinghash"
	"golang.org/x/sync/errgroup"
)

const (
	// NumBuckets is the fixed bucket count (spec §3: N = 65536).
	NumBuckets = 1 << 16
	// DefaultBucketCap bounds how many offsets a single bucket retains;
	// further candidates for a full bucket are silently dropped.
	DefaultBucketCap = 200
)

// Step picks the sampling density for an old file of the given size:
// denser indexes for small files, sparser for large ones, trading index
// memory and build time against match quality.
func Step(oldSize int64) int {
	switch {
	case oldSize > 1<<30: // > 1 GiB
		return 8
	case oldSize > 100<<20: // > 100 MiB
		return 4
	default:
		return 1
	}
}

// Index is an immutable, read-only-after-build map from window hash to a
// capped list of old-file offsets whose w-byte window hashes to it.
type Index struct {
	window     int
	step       int
	bucketCap  int
	numBuckets int
	buckets    [][]uint64
}

// Window returns the configured window width used to build the index.
func (idx *Index) Window() int { return idx.window }

// Lookup returns the candidate old-file offsets recorded for hash, in
// shard-then-offset (i.e. ascending offset) order.
func (idx *Index) Lookup(hash uint64) []uint64 {
	return idx.buckets[bucketOf(hash, idx.numBuckets)]
}

func bucketOf(hash uint64, numBuckets int) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], hash)
	return uint32(xxhash.Sum64(b[:])) % uint32(numBuckets)
}

type entry struct {
	bucket uint32
	offset uint64
}

// Build constructs a content index over old, splitting the addressable
// range [0, len(old)-window] into parallelism contiguous shards. Each
// shard independently rolls a hash across its range at the given sampling
// step; shards are then merged, in shard order, into the global bucket
// table, which is capped at bucketCap entries per bucket. The result is
// byte-identical across runs for the same (old, window, step, parallelism,
// bucketCap): shard boundaries are computed from lengths alone, and the
// merge always proceeds in a fixed shard-then-offset order regardless of
// goroutine completion order.
func Build(old []byte, window int, parallelism int, step int, bucketCap int) (*Index, error) {
	if window <= 0 {
		window = 32
	}
	if parallelism < 1 {
		parallelism = 1
	}
	if step < 1 {
		step = 1
	}
	if bucketCap < 1 {
		bucketCap = DefaultBucketCap
	}

	idx := &Index{
		window:     window,
		step:       step,
		bucketCap:  bucketCap,
		numBuckets: NumBuckets,
		buckets:    make([][]uint64, NumBuckets),
	}

	// Addressable start offsets are [0, lastStart]; lastStart is exclusive
	// of window length so every window fits within old.
	if len(old) < window {
		return idx, nil
	}
	numStarts := len(old) - window + 1

	shardLen := (numStarts + parallelism - 1) / parallelism
	if shardLen < 1 {
		shardLen = 1
	}
	numShards := (numStarts + shardLen - 1) / shardLen

	shardResults := make([][]entry, numShards)

	g := new(errgroup.Group)
	for s := 0; s < numShards; s++ {
		s := s
		start := s * shardLen
		end := start + shardLen
		if end > numStarts {
			end = numStarts
		}
		g.Go(func() error {
			shardResults[s] = buildShard(old, window, step, start, end)
			return nil
		})
	}
	// Build never fails today (no I/O, no allocation failure path callers
	// need to observe), but the errgroup keeps the door open for future
	// shard work that can.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, shard := range shardResults {
		for _, e := range shard {
			b := &idx.buckets[e.bucket]
			if len(*b) >= bucketCap {
				continue
			}
			*b = append(*b, e.offset)
		}
	}

	return idx, nil
}

// buildShard rolls a hash across old-file start offsets [start, end),
// recording one entry every step offsets.
func buildShard(old []byte, window, step int, start, end int) []entry {
	if end <= start {
		return nil
	}
	h := rollinghash.New(window)
	h.Init(old[start : start+window])

	out := make([]entry, 0, (end-start)/step+1)
	pos := start
	for {
		if (pos-start)%step == 0 {
			out = append(out, entry{bucket: bucketOf(h.Value(), NumBuckets), offset: uint64(pos)})
		}
		next := pos + 1
		if next >= end {
			break
		}
		h.Roll(old[pos], old[next+window-1])
		pos = next
	}
	return out
}
