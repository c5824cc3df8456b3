package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// ErrAudioDecode is returned when the external converter cannot decode the
// input media.
var ErrAudioDecode = errors.New("audio decode failed")

// Converter shells out to ffmpeg for container demuxing and resampling.
// The zero value uses "ffmpeg" from PATH.
type Converter struct {
	// FFmpegPath overrides the ffmpeg binary location.
	FFmpegPath string
}

func (c *Converter) binary() string {
	if c.FFmpegPath != "" {
		return c.FFmpegPath
	}
	return "ffmpeg"
}

// Convert decodes src and writes canonical 16 kHz mono s16le WAV to dst.
// src and dst must differ; use [Converter.NormalizeInPlace] otherwise.
func (c *Converter) Convert(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, c.binary(),
		"-hide_banner", "-loglevel", "error",
		"-i", src,
		"-ar", strconv.Itoa(CanonicalSampleRate),
		"-ac", strconv.Itoa(CanonicalChannels),
		"-c:a", "pcm_s16le",
		"-y", dst,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: ffmpeg %q: %v: %s", ErrAudioDecode, src, err, out)
	}
	return nil
}

// NormalizeInPlace ensures the file at path is canonical WAV, converting it
// in place when it is not. Already-canonical files are left untouched.
//
// The conversion is atomic: ffmpeg writes a uniquely named temp file next to
// the original, the original is moved aside as a backup, the temp is renamed
// into place, and the backup is removed. Any failure restores the backup.
func (c *Converter) NormalizeInPlace(ctx context.Context, path string) error {
	format, err := ProbeWAV(path)
	if err == nil && format.IsCanonical() {
		slog.Debug("audio already canonical, skipping conversion", "path", path)
		return nil
	}
	if err != nil && !errors.Is(err, ErrNotWAV) {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".convert-*.wav")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := c.Convert(ctx, path, tmpPath); err != nil {
		return err
	}

	backup := path + ".bak"
	if err := os.Rename(path, backup); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		if restoreErr := os.Rename(backup, path); restoreErr != nil {
			slog.Error("failed to restore backup after conversion failure",
				"path", path, "backup", backup, "err", restoreErr)
		}
		return err
	}
	if err := os.Remove(backup); err != nil {
		slog.Warn("failed to remove conversion backup", "backup", backup, "err", err)
	}
	slog.Info("audio converted to canonical format", "path", path)
	return nil
}

// Prepare normalizes the media file at path and loads it as a [Buffer] with
// its chunk plan. This is the audio-preparer entry point used by the pipeline.
func (c *Converter) Prepare(ctx context.Context, path string) (*Buffer, []ChunkPlan, error) {
	if err := c.NormalizeInPlace(ctx, path); err != nil {
		return nil, nil, err
	}
	buf, err := LoadWAV(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	plans := PlanChunks(buf.Duration(), info.Size())
	return buf, plans, nil
}
