// Package bindelta creates and applies binary delta patches between two
// large files, exploiting multi-core hardware and memory-mapped I/O for
// GB-scale inputs. It is the public entry point over the core components:
// rolling hash (rollinghash), content index (blockindex), block matcher
// (matcher), instruction codec (instruction), compression (blockcodec),
// patch container (patchfile), and the diffengine/patchapply orchestrators.
package bindelta

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/openclaw/bindelta/blockcodec"
	"github.com/openclaw/bindelta/diffengine"
	"github.com/openclaw/bindelta/instruction"
	"github.com/openclaw/bindelta/patchapply"
	"github.com/openclaw/bindelta/patchfile"
	"github.com/openclaw/bindelta/progress"
)

// ErrKind classifies a failed operation without requiring callers to match
// on error strings (spec §7).
type ErrKind int

const (
	// ErrKindNone marks a PatchError that was never actually an error;
	// zero value only, never returned.
	ErrKindNone ErrKind = iota
	ErrKindIO
	ErrKindInvalidPatch
	ErrKindSizeMismatch
	ErrKindHashMismatch
	ErrKindDecompression
	ErrKindOutOfRange
	ErrKindCancelled
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindIO:
		return "IoError"
	case ErrKindInvalidPatch:
		return "InvalidPatch"
	case ErrKindSizeMismatch:
		return "SizeMismatch"
	case ErrKindHashMismatch:
		return "HashMismatch"
	case ErrKindDecompression:
		return "DecompressionError"
	case ErrKindOutOfRange:
		return "OutOfRange"
	case ErrKindCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// PatchError wraps an underlying error with the ErrKind classification
// from spec §7. Callers that need errors.Is semantics against the
// package-level sentinel errors (patchfile.ErrInvalidMagic and friends)
// can still unwrap through it.
type PatchError struct {
	Kind ErrKind
	Err  error
}

func (e *PatchError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PatchError) Unwrap() error { return e.Err }

// ErrSizeMismatch is returned when a supplied file's size doesn't match a
// patch's declared size (spec §7 SizeMismatch). VerifyPatch and ApplyPatch
// both wrap this sentinel rather than returning an unclassifiable plain error.
var ErrSizeMismatch = patchapply.ErrSizeMismatch

func classify(err error) *PatchError {
	if err == nil {
		return nil
	}
	var pe *PatchError
	if errors.As(err, &pe) {
		return pe
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &PatchError{Kind: ErrKindCancelled, Err: err}
	case errors.Is(err, patchapply.ErrHashMismatch):
		return &PatchError{Kind: ErrKindHashMismatch, Err: err}
	case errors.Is(err, patchapply.ErrSizeMismatch):
		return &PatchError{Kind: ErrKindSizeMismatch, Err: err}
	case errors.Is(err, patchapply.ErrOutOfRange):
		return &PatchError{Kind: ErrKindOutOfRange, Err: err}
	case errors.Is(err, blockcodec.ErrMalformed):
		return &PatchError{Kind: ErrKindDecompression, Err: err}
	case errors.Is(err, patchfile.ErrInvalidMagic),
		errors.Is(err, patchfile.ErrUnsupportedVersion),
		errors.Is(err, patchfile.ErrTruncatedHeader),
		errors.Is(err, patchfile.ErrTruncatedTable),
		errors.Is(err, patchfile.ErrBadBlockOffset),
		errors.Is(err, patchfile.ErrTruncatedPayload),
		errors.Is(err, instruction.ErrUnknownOpcode),
		errors.Is(err, instruction.ErrTruncated):
		return &PatchError{Kind: ErrKindInvalidPatch, Err: err}
	case errors.Is(err, os.ErrNotExist), errors.Is(err, os.ErrPermission):
		return &PatchError{Kind: ErrKindIO, Err: err}
	default:
		// Plain I/O failures surface as wrapped fmt.Errorf chains with no
		// sentinel; lean on substring-free default classification rather
		// than string matching.
		return &PatchError{Kind: ErrKindIO, Err: err}
	}
}

// DiffOptions configures CreateDiff.
type DiffOptions struct {
	// BlockSize is the size of each independently-encoded block of the
	// new file. Zero selects diffengine.DefaultBlockSize (64 MiB).
	BlockSize uint32
	// CompressionLevel selects blockcodec's fast (1-3) or HC (4-12) mode.
	// Zero selects a fast default.
	CompressionLevel int
	// NumThreads bounds the worker pool. Zero selects runtime.NumCPU().
	NumThreads int
	// Verify computes and stores SHA-256 digests of old and new in the
	// patch header. If false, the header's hash fields are left zero.
	Verify bool
}

// ApplyOptions configures ApplyPatch.
type ApplyOptions struct {
	// Verify checks old's SHA-256 against the header before applying, and
	// the produced file's SHA-256 against the header afterward.
	Verify bool
	// NumThreads bounds concurrent block application. Zero selects
	// runtime.NumCPU().
	NumThreads int
}

// Result is the outcome of a CreateDiff, ApplyPatch, or VerifyPatch call
// (spec §6).
type Result struct {
	Success        bool
	ErrorMessage   string
	BytesProcessed uint64
	ElapsedSeconds float64
	// MatchRatio is the fraction of new-file bytes emitted as COPY rather
	// than INSERT; zero for ApplyPatch/VerifyPatch results, which don't
	// produce one.
	MatchRatio float64
}

// PatchInfo describes a patch file's header without applying it.
type PatchInfo struct {
	Version      uint16
	BlockSize    uint32
	OldSize      uint64
	NewSize      uint64
	NumBlocks    int
	PatchSize    int64
	OldSHA256Hex string
	NewSHA256Hex string
}

// Progress is the caller-supplied progress callback (spec §6). It is
// invoked at most once per 1% change within a stage.
type Progress func(percent float32, stage string)

// CreateDiff computes a binary delta patch from oldPath to newPath and
// writes it to patchPath.
func CreateDiff(ctx context.Context, oldPath, newPath, patchPath string, opts DiffOptions, cb Progress) Result {
	start := time.Now()
	stats, err := diffengine.Run(ctx, oldPath, newPath, patchPath, diffengine.Options{
		BlockSize:        opts.BlockSize,
		CompressionLevel: opts.CompressionLevel,
		NumThreads:       opts.NumThreads,
		Verify:           opts.Verify,
	}, progress.Callback(cb))
	return resultFrom(stats.BytesProcessed, stats.MatchRatio, start, err)
}

// ApplyPatch reconstructs newPath from oldPath and the patch at patchPath.
func ApplyPatch(ctx context.Context, oldPath, patchPath, newPath string, opts ApplyOptions, cb Progress) Result {
	start := time.Now()
	stats, err := patchapply.Run(ctx, oldPath, patchPath, newPath, patchapply.Options{
		Verify:     opts.Verify,
		NumThreads: opts.NumThreads,
	}, progress.Callback(cb))
	return resultFrom(stats.BytesProcessed, 0, start, err)
}

// VerifyPatch checks that a patch's declared sizes match the supplied old
// and new files. Per spec §9's Open Question resolution, this does not
// re-apply the patch or recompute any hash; it is a declared-size sanity
// check only.
func VerifyPatch(oldPath, newPath, patchPath string) Result {
	start := time.Now()
	err := verifySizes(oldPath, newPath, patchPath)
	return resultFrom(0, 0, start, err)
}

func verifySizes(oldPath, newPath, patchPath string) error {
	f, err := os.Open(patchPath)
	if err != nil {
		return fmt.Errorf("bindelta: open patch: %w", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("bindelta: stat patch: %w", err)
	}
	info, err := patchfile.ReadInfo(f, st.Size())
	if err != nil {
		return fmt.Errorf("bindelta: %w", err)
	}

	oldInfo, err := os.Stat(oldPath)
	if err != nil {
		return fmt.Errorf("bindelta: stat old: %w", err)
	}
	if uint64(oldInfo.Size()) != info.OldSize {
		return fmt.Errorf("%w: old file is %d bytes, patch expects %d", ErrSizeMismatch, oldInfo.Size(), info.OldSize)
	}

	newInfo, err := os.Stat(newPath)
	if err != nil {
		return fmt.Errorf("bindelta: stat new: %w", err)
	}
	if uint64(newInfo.Size()) != info.NewSize {
		return fmt.Errorf("%w: new file is %d bytes, patch expects %d", ErrSizeMismatch, newInfo.Size(), info.NewSize)
	}
	return nil
}

// GetPatchInfo reads a patch file's header and returns a description of it
// without applying any block.
func GetPatchInfo(patchPath string) (PatchInfo, error) {
	f, err := os.Open(patchPath)
	if err != nil {
		return PatchInfo{}, classify(fmt.Errorf("bindelta: open patch: %w", err))
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return PatchInfo{}, classify(fmt.Errorf("bindelta: stat patch: %w", err))
	}
	info, err := patchfile.ReadInfo(f, st.Size())
	if err != nil {
		return PatchInfo{}, classify(err)
	}
	return PatchInfo{
		Version:      info.Version,
		BlockSize:    info.BlockSize,
		OldSize:      info.OldSize,
		NewSize:      info.NewSize,
		NumBlocks:    info.NumBlocks,
		PatchSize:    info.PatchSize,
		OldSHA256Hex: info.OldSHA256Hex,
		NewSHA256Hex: info.NewSHA256Hex,
	}, nil
}

func resultFrom(bytesProcessed uint64, matchRatio float64, start time.Time, err error) Result {
	elapsed := time.Since(start).Seconds()
	if err != nil {
		pe := classify(err)
		return Result{
			Success:        false,
			ErrorMessage:   pe.Error(),
			ElapsedSeconds: elapsed,
		}
	}
	return Result{
		Success:        true,
		BytesProcessed: bytesProcessed,
		MatchRatio:     matchRatio,
		ElapsedSeconds: elapsed,
	}
}

// ensure blockcodec's level constants stay reachable from the public
// surface without re-exporting the package; documents the valid range for
// DiffOptions.CompressionLevel.
const (
	MinCompressionLevel = blockcodec.MinLevel
	MaxCompressionLevel = blockcodec.MaxLevel
)
