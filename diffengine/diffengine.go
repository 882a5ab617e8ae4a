// Package diffengine orchestrates patch creation: mapping both inputs,
// hashing them, building the content index, dispatching block work across
// a pool, and writing the patch container in block order (spec §4.8, C10).
package diffengine

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"
	concurrently "github.com/tejzpr/ordered-concurrently/v3"
	"k8s.io/klog/v2"

	"github.com/openclaw/bindelta/blockindex"
	"github.com/openclaw/bindelta/blockproc"
	"github.com/openclaw/bindelta/hashutil"
	"github.com/openclaw/bindelta/mmapfile"
	"github.com/openclaw/bindelta/patchfile"
	"github.com/openclaw/bindelta/progress"
)

// DefaultBlockSize matches the spec's default (spec §3).
const DefaultBlockSize = 64 << 20

// IndexWindow is the rolling-hash window width used to build the content
// index and to report matches (spec §3 default w=32).
const IndexWindow = 32

// Options configures a diff job.
type Options struct {
	BlockSize        uint32
	CompressionLevel int
	NumThreads       int
	Verify           bool
}

// Stats summarizes a completed diff job.
type Stats struct {
	BytesProcessed uint64
	MatchRatio     float64
	NumBlocks      int
}

// Cancelled is returned when ctx is done before the job completes.
var Cancelled = context.Canceled

func normalize(opts Options) Options {
	if opts.BlockSize == 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.NumThreads <= 0 {
		opts.NumThreads = runtime.NumCPU()
		if opts.NumThreads < 1 {
			opts.NumThreads = 4
		}
	}
	if opts.CompressionLevel == 0 {
		opts.CompressionLevel = blockCompressionDefault
	}
	return opts
}

const blockCompressionDefault = 1

// blockTask adapts one block's work into a concurrently.WorkFunction.
type blockTask struct {
	old, newBuf []byte
	idx         *blockindex.Index
	index       int
	start, end  int
	opts        blockproc.Options
}

func (t blockTask) Run(ctx context.Context) interface{} {
	res, err := blockproc.Process(t.old, t.newBuf, t.index, t.start, t.end, t.idx, t.opts)
	if err != nil {
		return err
	}
	return res
}

// Run executes a full diff job: Mapping, Hashing, Indexing, Matching,
// Writing, in that order, reporting progress through cb (cb may be nil).
func Run(ctx context.Context, oldPath, newPath, patchPath string, opts Options, cb progress.Callback) (Stats, error) {
	opts = normalize(opts)

	// Mapping.
	oldFile, err := mmapfile.Open(oldPath)
	if err != nil {
		return Stats{}, fmt.Errorf("diffengine: map old file: %w", err)
	}
	defer oldFile.Close()
	newFile, err := mmapfile.Open(newPath)
	if err != nil {
		return Stats{}, fmt.Errorf("diffengine: map new file: %w", err)
	}
	defer newFile.Close()

	old := oldFile.Bytes()
	newBuf := newFile.Bytes()
	klog.V(2).Infof("diffengine: mapped old=%d bytes new=%d bytes", len(old), len(newBuf))

	var oldSum, newSum [hashutil.Size]byte
	if opts.Verify {
		if err := ctx.Err(); err != nil {
			return Stats{}, err
		}
		hr := progress.NewReporter(cb, progress.StageHashingOld)
		oldSum = hashutil.Sum(old)
		hr.Done()

		hr2 := progress.NewReporter(cb, progress.StageHashingNew)
		newSum = hashutil.Sum(newBuf)
		hr2.Done()
	}

	// Indexing.
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	ir := progress.NewReporter(cb, progress.StageIndexing)
	step := blockindex.Step(int64(len(old)))
	idx, err := blockindex.Build(old, IndexWindow, opts.NumThreads, step, blockindex.DefaultBucketCap)
	if err != nil {
		return Stats{}, fmt.Errorf("diffengine: build index: %w", err)
	}
	ir.Done()
	klog.V(2).Infof("diffengine: index built window=%d step=%d threads=%d", IndexWindow, step, opts.NumThreads)

	// Matching: partition new into blocks and dispatch via the worker pool.
	// An empty new file has zero blocks; any non-empty new file has at
	// least one, per spec §8 property 2.
	numBlocks := 0
	if len(newBuf) > 0 {
		numBlocks = (len(newBuf) + int(opts.BlockSize) - 1) / int(opts.BlockSize)
	}

	header := patchfile.Header{
		Version:   patchfile.Version,
		BlockSize: opts.BlockSize,
		OldSize:   uint64(len(old)),
		NewSize:   uint64(len(newBuf)),
		NumBlocks: uint32(numBlocks),
	}

	f, err := os.Create(patchPath)
	if err != nil {
		return Stats{}, fmt.Errorf("diffengine: create patch file: %w", err)
	}
	succeeded := false
	defer func() {
		f.Close()
		if !succeeded {
			os.Remove(patchPath)
		}
	}()

	writer, err := patchfile.NewWriter(f, header)
	if err != nil {
		return Stats{}, fmt.Errorf("diffengine: start patch writer: %w", err)
	}

	copied, inserted, err := dispatchAndWrite(ctx, old, newBuf, idx, opts, numBlocks, writer, cb)
	if err != nil {
		return Stats{}, err
	}

	if err := writer.Finalize(oldSum, newSum); err != nil {
		return Stats{}, fmt.Errorf("diffengine: finalize patch: %w", err)
	}
	succeeded = true

	total := copied + inserted
	ratio := 0.0
	if total > 0 {
		ratio = float64(copied) / float64(total)
	}
	return Stats{BytesProcessed: uint64(len(newBuf)), MatchRatio: ratio, NumBlocks: numBlocks}, nil
}

// dispatchAndWrite submits one blockTask per new-file block to an
// ordered-concurrently pool sized to opts.NumThreads and streams each
// result straight to writer as it arrives: the pool guarantees results are
// delivered in the same order tasks were submitted (spec §5: the writer
// emits blocks in ascending index order regardless of completion order),
// so no separate reordering step is needed.
func dispatchAndWrite(ctx context.Context, old, newBuf []byte, idx *blockindex.Index, opts Options, numBlocks int, writer *patchfile.Writer, cb progress.Callback) (copied, inserted uint64, err error) {
	inputChan := make(chan concurrently.WorkFunction, opts.NumThreads)
	outputChan := concurrently.Process(ctx, inputChan, &concurrently.Options{
		PoolSize:         opts.NumThreads,
		OutChannelBuffer: opts.NumThreads,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(inputChan)
		for i := 0; i < numBlocks; i++ {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := i * int(opts.BlockSize)
			end := start + int(opts.BlockSize)
			if end > len(newBuf) {
				end = len(newBuf)
			}
			task := blockTask{
				old: old, newBuf: newBuf, idx: idx, index: i, start: start, end: end,
				opts: blockproc.Options{
					Window:               IndexWindow,
					CompressionLevel:     opts.CompressionLevel,
					FallbackSearchWindow: 10 << 20,
				},
			}
			select {
			case inputChan <- task:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// A block's matching and its write are one streamed step here, so both
	// stages tick together as each result drains.
	mr := progress.NewReporter(cb, progress.StageMatching)
	wr := progress.NewReporter(cb, progress.StageWriting)
	written := 0
	var firstErr error
	for out := range outputChan {
		switch v := out.Value.(type) {
		case error:
			if firstErr == nil {
				firstErr = v
			}
		case blockproc.Result:
			if firstErr == nil {
				if werr := writer.WriteBlock(v.Index, v.OriginalSize, v.Compressed); werr != nil {
					firstErr = fmt.Errorf("diffengine: write block %d: %w", v.Index, werr)
				} else {
					copied += v.BytesCopied
					inserted += v.BytesInserted
					written++
					mr.Report(float64(written) / float64(numBlocks))
					wr.Report(float64(written) / float64(numBlocks))
				}
			}
		default:
			if firstErr == nil {
				firstErr = fmt.Errorf("diffengine: unexpected block result type %T", v)
			}
		}
	}
	if err := g.Wait(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return 0, 0, firstErr
	}
	mr.Done()
	wr.Done()
	return copied, inserted, nil
}
