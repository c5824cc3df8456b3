// Package audio prepares media for transcription: conversion to canonical
// 16 kHz mono s16le WAV via ffmpeg, chunk planning for the ASR coordinator,
// and silence classification.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

// Canonical format required at ASR entry.
const (
	CanonicalSampleRate = 16000
	CanonicalChannels   = 1
	bitsPerSample       = 16
)

// ErrNotWAV is returned when a file does not carry a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a RIFF/WAVE file")

// Format describes the sample layout of a WAV file.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// IsCanonical reports whether the format matches the ASR entry requirement.
func (f Format) IsCanonical() bool {
	return f.SampleRate == CanonicalSampleRate &&
		f.Channels == CanonicalChannels &&
		f.BitDepth == bitsPerSample
}

// Buffer holds decoded PCM audio in canonical s16le layout.
type Buffer struct {
	Format Format
	PCM    []byte
}

// Duration returns the buffer's play time.
func (b *Buffer) Duration() time.Duration {
	bytesPerSec := b.Format.SampleRate * b.Format.Channels * b.Format.BitDepth / 8
	if bytesPerSec == 0 {
		return 0
	}
	return time.Duration(float64(len(b.PCM)) / float64(bytesPerSec) * float64(time.Second))
}

// ProbeWAV reads only the header of the file at path and returns its format.
// Returns [ErrNotWAV] for non-WAV content, so callers can decide to convert.
func ProbeWAV(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, err
	}
	defer f.Close()

	format, _, err := readHeader(f)
	return format, err
}

// LoadWAV decodes the whole file at path into a [Buffer].
func LoadWAV(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	format, dataSize, err := readHeader(f)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", path, err)
	}
	pcm := make([]byte, dataSize)
	if _, err := io.ReadFull(f, pcm); err != nil {
		// Tolerate a short data chunk; some encoders write an optimistic size.
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("load %q: read pcm: %w", path, err)
		}
	}
	return &Buffer{Format: format, PCM: pcm}, nil
}

// readHeader parses a RIFF/WAVE header, positioning r at the start of the data
// chunk. Chunks other than fmt and data are skipped.
func readHeader(r io.ReadSeeker) (Format, uint32, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Format{}, 0, ErrNotWAV
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Format{}, 0, ErrNotWAV
	}

	var format Format
	haveFmt := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return Format{}, 0, fmt.Errorf("%w: truncated chunk header", ErrNotWAV)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			var fmtChunk [16]byte
			if size < 16 {
				return Format{}, 0, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			if _, err := io.ReadFull(r, fmtChunk[:]); err != nil {
				return Format{}, 0, fmt.Errorf("%w: truncated fmt chunk", ErrNotWAV)
			}
			format = Format{
				Channels:   int(binary.LittleEndian.Uint16(fmtChunk[2:4])),
				SampleRate: int(binary.LittleEndian.Uint32(fmtChunk[4:8])),
				BitDepth:   int(binary.LittleEndian.Uint16(fmtChunk[14:16])),
			}
			haveFmt = true
			if size > 16 {
				if _, err := r.Seek(int64(size-16), io.SeekCurrent); err != nil {
					return Format{}, 0, err
				}
			}

		case "data":
			if !haveFmt {
				return Format{}, 0, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			return format, size, nil

		default:
			if _, err := r.Seek(int64(size), io.SeekCurrent); err != nil {
				return Format{}, 0, err
			}
		}
	}
}

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container. The returned byte slice is suitable for direct inclusion
// in a multipart form upload.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// Silence classification thresholds on samples normalised to [-1, 1].
const (
	silencePeak   = 1e-4
	silenceEnergy = 1e-8
)

// IsSilence reports whether a 16-bit signed little-endian PCM buffer is
// silence: peak amplitude below 1e-4 and mean energy below 1e-8 on normalised
// samples. An empty buffer is silent.
func IsSilence(pcm []byte) bool {
	n := len(pcm) / 2
	if n == 0 {
		return true
	}
	var peak, energy float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:i*2+2]))) / 32768
		if a := math.Abs(s); a > peak {
			peak = a
		}
		energy += s * s
	}
	return peak < silencePeak && energy/float64(n) < silenceEnergy
}
