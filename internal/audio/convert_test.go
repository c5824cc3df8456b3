package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeFakeFFmpeg installs a shell script that copies a pre-made canonical WAV
// to the output path (ffmpeg's last argument), or fails when fail is true.
func writeFakeFFmpeg(t *testing.T, dir string, fail bool) string {
	t.Helper()

	wavPath := filepath.Join(dir, "canned.wav")
	wav := EncodeWAV(sinePCM(CanonicalSampleRate/10, 8000), CanonicalSampleRate, CanonicalChannels)
	if err := os.WriteFile(wavPath, wav, 0o644); err != nil {
		t.Fatal(err)
	}

	script := "#!/bin/sh\nfor last; do :; done\ncp '" + wavPath + "' \"$last\"\n"
	if fail {
		script = "#!/bin/sh\nexit 1\n"
	}
	bin := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return bin
}

func TestNormalizeInPlace_SkipsCanonicalFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "in.wav")
	wav := EncodeWAV(sinePCM(1600, 8000), CanonicalSampleRate, CanonicalChannels)
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		t.Fatal(err)
	}

	// A failing ffmpeg proves conversion is never invoked.
	c := &Converter{FFmpegPath: writeFakeFFmpeg(t, dir, true)}
	if err := c.NormalizeInPlace(context.Background(), path); err != nil {
		t.Fatalf("NormalizeInPlace: %v", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(wav) {
		t.Error("canonical file was modified")
	}
}

func TestNormalizeInPlace_ConvertsNonCanonical(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "in.mp4")
	if err := os.WriteFile(path, []byte("pretend this is a video container"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := &Converter{FFmpegPath: writeFakeFFmpeg(t, dir, false)}
	if err := c.NormalizeInPlace(context.Background(), path); err != nil {
		t.Fatalf("NormalizeInPlace: %v", err)
	}

	format, err := ProbeWAV(path)
	if err != nil {
		t.Fatalf("ProbeWAV after conversion: %v", err)
	}
	if !format.IsCanonical() {
		t.Errorf("converted format = %+v, want canonical", format)
	}
	if _, err := os.Stat(path + ".bak"); !os.IsNotExist(err) {
		t.Error("backup file left behind after successful conversion")
	}
}

func TestNormalizeInPlace_RestoresOnFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "in.mp4")
	original := []byte("original container bytes")
	if err := os.WriteFile(path, original, 0o644); err != nil {
		t.Fatal(err)
	}

	c := &Converter{FFmpegPath: writeFakeFFmpeg(t, dir, true)}
	if err := c.NormalizeInPlace(context.Background(), path); err == nil {
		t.Fatal("NormalizeInPlace succeeded with failing ffmpeg")
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("original missing after failed conversion: %v", err)
	}
	if string(after) != string(original) {
		t.Error("original content not preserved after failed conversion")
	}
}

func TestPrepare_LoadsBufferAndPlansChunks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "in.wav")
	wav := EncodeWAV(sinePCM(CanonicalSampleRate*2, 8000), CanonicalSampleRate, CanonicalChannels)
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		t.Fatal(err)
	}

	c := &Converter{FFmpegPath: writeFakeFFmpeg(t, dir, true)}
	buf, plans, err := c.Prepare(context.Background(), path)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if buf.Duration() != 2*time.Second {
		t.Errorf("duration = %v, want 2s", buf.Duration())
	}
	if len(plans) != 1 {
		t.Errorf("plans = %d, want 1", len(plans))
	}
}
