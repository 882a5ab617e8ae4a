// Package patchapply reconstructs a new file from an old file and a patch
// container: the reconstruction path (spec §4.7, C11).
package patchapply

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/openclaw/bindelta/blockcodec"
	"github.com/openclaw/bindelta/hashutil"
	"github.com/openclaw/bindelta/instruction"
	"github.com/openclaw/bindelta/mmapfile"
	"github.com/openclaw/bindelta/patchfile"
	"github.com/openclaw/bindelta/progress"
)

// Options configures an apply job.
type Options struct {
	// Verify, if true, checks old's SHA-256 against the header before
	// applying and new's SHA-256 against the header after.
	Verify bool
	// NumThreads bounds the number of blocks decoded and written
	// concurrently; defaults to NumCPU.
	NumThreads int
}

// Stats summarizes a completed apply job.
type Stats struct {
	BytesProcessed uint64
}

// ErrHashMismatch is wrapped into the returned error when a SHA-256 check
// fails (spec §7 HashMismatch).
var ErrHashMismatch = fmt.Errorf("patchapply: hash mismatch")

// ErrOutOfRange is wrapped in when an instruction references bytes outside
// its legal range (spec §7 OutOfRange).
var ErrOutOfRange = fmt.Errorf("patchapply: instruction out of range")

// ErrSizeMismatch is wrapped into the returned error when the supplied old
// file's size doesn't match the patch's declared size (spec §7 SizeMismatch).
var ErrSizeMismatch = fmt.Errorf("patchapply: size mismatch")

func normalize(opts Options) Options {
	if opts.NumThreads <= 0 {
		opts.NumThreads = runtime.NumCPU()
		if opts.NumThreads < 1 {
			opts.NumThreads = 4
		}
	}
	return opts
}

// Run reads the patch at patchPath, applies it to oldPath, and writes the
// reconstructed file to newPath.
func Run(ctx context.Context, oldPath, patchPath, newPath string, opts Options, cb progress.Callback) (Stats, error) {
	opts = normalize(opts)

	oldFile, err := mmapfile.Open(oldPath)
	if err != nil {
		return Stats{}, fmt.Errorf("patchapply: map old file: %w", err)
	}
	defer oldFile.Close()
	old := oldFile.Bytes()

	pf, err := os.Open(patchPath)
	if err != nil {
		return Stats{}, fmt.Errorf("patchapply: open patch file: %w", err)
	}
	defer pf.Close()
	info, err := pf.Stat()
	if err != nil {
		return Stats{}, fmt.Errorf("patchapply: stat patch file: %w", err)
	}

	reader, err := patchfile.Open(pf, info.Size())
	if err != nil {
		return Stats{}, fmt.Errorf("patchapply: %w", err)
	}
	header := reader.Header()

	if header.OldSize != uint64(len(old)) {
		return Stats{}, fmt.Errorf("%w: old file is %d bytes, patch expects %d", ErrSizeMismatch, len(old), header.OldSize)
	}

	if opts.Verify {
		hr := progress.NewReporter(cb, progress.StageHashingOld)
		sum := hashutil.Sum(old)
		hr.Done()
		if sum != header.OldSHA256 {
			return Stats{}, fmt.Errorf("%w: old file", ErrHashMismatch)
		}
	}

	out, err := os.Create(newPath)
	if err != nil {
		return Stats{}, fmt.Errorf("patchapply: create output file: %w", err)
	}
	succeeded := false
	defer func() {
		out.Close()
		if !succeeded {
			os.Remove(newPath)
		}
	}()

	if header.NewSize > 0 {
		if err := out.Truncate(int64(header.NewSize)); err != nil {
			return Stats{}, fmt.Errorf("patchapply: presize output file: %w", err)
		}
	}

	// Blocks are independent: each reads its own patch payload, decodes
	// against the shared read-only old mapping, and writes its own disjoint
	// range of out via WriteAt, so they run concurrently across
	// opts.NumThreads workers rather than one at a time (spec §4.7 step 4 /
	// §5's "independent, parallelizable" block application).
	ar := progress.NewReporter(cb, progress.StageApplying)
	blockSize := int(header.BlockSize)
	numBlocks := reader.NumBlocks()
	var done int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.NumThreads)
	for i := 0; i < numBlocks; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			originalSize, compressed, err := reader.ReadBlock(i)
			if err != nil {
				return fmt.Errorf("patchapply: read block %d: %w", i, err)
			}
			raw, err := blockcodec.Decompress(compressed, int(originalSize))
			if err != nil {
				return fmt.Errorf("patchapply: decompress block %d: %w", i, err)
			}
			ops, err := instruction.DecodeAll(raw)
			if err != nil {
				return fmt.Errorf("patchapply: decode block %d: %w", i, err)
			}

			blockStart := i * blockSize
			blockOutLen := blockSize
			if remaining := int(header.NewSize) - blockStart; remaining < blockOutLen {
				blockOutLen = remaining
			}
			blockOut := make([]byte, 0, blockOutLen)
			blockOut, err = execute(ops, old, blockOut, blockOutLen)
			if err != nil {
				return fmt.Errorf("patchapply: execute block %d: %w", i, err)
			}
			if len(blockOut) != blockOutLen {
				return fmt.Errorf("%w: block %d produced %d bytes, want %d", ErrOutOfRange, i, len(blockOut), blockOutLen)
			}

			if _, err := out.WriteAt(blockOut, int64(blockStart)); err != nil {
				return fmt.Errorf("patchapply: write block %d: %w", i, err)
			}
			n := atomic.AddInt64(&done, 1)
			ar.Report(float64(n) / float64(numBlocks))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	ar.Done()

	if opts.Verify {
		if err := out.Sync(); err != nil {
			return Stats{}, fmt.Errorf("patchapply: sync output file: %w", err)
		}
		verified, err := mmapfile.Open(newPath)
		if err != nil {
			return Stats{}, fmt.Errorf("patchapply: reopen output for verification: %w", err)
		}
		sum := hashutil.Sum(verified.Bytes())
		verified.Close()
		if sum != header.NewSHA256 {
			return Stats{}, fmt.Errorf("%w: new file", ErrHashMismatch)
		}
	}

	succeeded = true
	klog.V(2).Infof("patchapply: wrote %d bytes across %d blocks", header.NewSize, reader.NumBlocks())
	return Stats{BytesProcessed: header.NewSize}, nil
}

// execute runs ops against old, appending produced bytes to dst, which must
// not grow past blockOutLen.
func execute(ops []instruction.Op, old []byte, dst []byte, blockOutLen int) ([]byte, error) {
	for _, op := range ops {
		switch op.Kind {
		case instruction.OpCopy:
			end := op.Offset + uint64(op.Length)
			if end > uint64(len(old)) {
				return nil, fmt.Errorf("%w: copy [%d,%d) exceeds old size %d", ErrOutOfRange, op.Offset, end, len(old))
			}
			if len(dst)+int(op.Length) > blockOutLen {
				return nil, fmt.Errorf("%w: copy overruns block output (len %d)", ErrOutOfRange, blockOutLen)
			}
			dst = append(dst, old[op.Offset:end]...)
		case instruction.OpInsert:
			if len(dst)+len(op.Bytes) > blockOutLen {
				return nil, fmt.Errorf("%w: insert overruns block output (len %d)", ErrOutOfRange, blockOutLen)
			}
			dst = append(dst, op.Bytes...)
		default:
			return nil, fmt.Errorf("%w: unknown opcode %d", instruction.ErrUnknownOpcode, op.Kind)
		}
	}
	return dst, nil
}
