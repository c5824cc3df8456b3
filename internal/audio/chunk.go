package audio

import (
	"time"
)

// Chunk planning limits. A single chunk must fit within both.
const (
	maxChunkDuration = 600 * time.Second
	maxChunkBytes    = int64(100 << 20)

	// chunkOverlap is carried before each non-first chunk for recognition
	// continuity. It is never counted in the global timeline.
	chunkOverlap = 500 * time.Millisecond
)

// ChunkPlan describes one slice of the source audio. Start and Duration define
// the chunk's place in the global timeline; Overlap is extra leading audio
// included in the upload only.
type ChunkPlan struct {
	// Index is 1-based and contiguous.
	Index int

	// Start is the chunk's offset within the original audio.
	Start time.Duration

	// Duration is the planned duration. ASR merge offsets accumulate these,
	// never durations reported by the backend.
	Duration time.Duration

	// Overlap is leading audio carried before Start, at most 500 ms.
	Overlap time.Duration
}

// PlanChunks splits audio of the given duration and byte size into chunks
// within the duration and size limits. Chunks are equal-duration (the last one
// absorbs rounding) and cover the whole timeline without gaps.
func PlanChunks(total time.Duration, sizeBytes int64) []ChunkPlan {
	if total <= 0 {
		return nil
	}
	n := 1
	if total > maxChunkDuration || sizeBytes > maxChunkBytes {
		byDur := int((total + maxChunkDuration - 1) / maxChunkDuration)
		bySize := int((sizeBytes + maxChunkBytes - 1) / maxChunkBytes)
		n = max(byDur, bySize)
	}

	delta := total / time.Duration(n)
	plans := make([]ChunkPlan, n)
	for i := range plans {
		plans[i] = ChunkPlan{
			Index:    i + 1,
			Start:    time.Duration(i) * delta,
			Duration: delta,
		}
		if i > 0 {
			overlap := chunkOverlap
			if overlap > plans[i].Start {
				overlap = plans[i].Start
			}
			plans[i].Overlap = overlap
		}
	}
	// The last chunk absorbs division rounding so planned durations sum to
	// the exact total.
	plans[n-1].Duration = total - plans[n-1].Start
	return plans
}

// Extract returns the PCM bytes for one chunk plan, including its overlap,
// clamped to the buffer bounds. Offsets are aligned to whole samples.
func (b *Buffer) Extract(p ChunkPlan) []byte {
	bytesPerSec := b.Format.SampleRate * b.Format.Channels * b.Format.BitDepth / 8
	if bytesPerSec == 0 {
		return nil
	}
	frame := b.Format.Channels * b.Format.BitDepth / 8

	from := durationToOffset(p.Start-p.Overlap, bytesPerSec, frame)
	to := durationToOffset(p.Start+p.Duration, bytesPerSec, frame)
	if from < 0 {
		from = 0
	}
	if to > len(b.PCM) {
		to = len(b.PCM)
	}
	if from >= to {
		return nil
	}
	return b.PCM[from:to]
}

func durationToOffset(d time.Duration, bytesPerSec, frame int) int {
	off := int(float64(d) / float64(time.Second) * float64(bytesPerSec))
	return off - off%frame
}
