// Package audio provides WAV encoding and decoding for the audio cache.
//
// The cache stores everything as mono 16-bit PCM WAV at whatever sample rate
// the source material carries; the so-vits-svc tools resample internally.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

const (
	Channels = 1
	BitDepth = 16
)

// ErrFormatMismatch is returned when a decoded WAV does not match the
// expected mono 16-bit PCM layout.
var ErrFormatMismatch = errors.New("WAV format mismatch")

// DecodeWAV decodes WAV bytes and returns float32 PCM samples plus the
// stream's sample rate. It validates mono, 16-bit PCM.
func DecodeWAV(data []byte) ([]float32, int, error) {
	if len(data) == 0 {
		return nil, 0, errors.New("empty WAV input")
	}

	r := bytes.NewReader(data)
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid WAV file")
	}

	if dec.NumChans != Channels {
		return nil, 0, fmt.Errorf("%w: channels %d, want %d", ErrFormatMismatch, dec.NumChans, Channels)
	}
	if dec.BitDepth != BitDepth {
		return nil, 0, fmt.Errorf("%w: bit depth %d, want %d", ErrFormatMismatch, dec.BitDepth, BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("reading PCM data: %w", err)
	}

	return buf.Data, int(dec.SampleRate), nil
}

// EncodeWAV encodes float32 PCM samples as a mono 16-bit PCM WAV byte slice.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate < 1 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	var buf bytes.Buffer

	// wav.NewEncoder requires an io.WriteSeeker; bytes.Buffer is not one.
	// Use a seekable wrapper.
	sw := &seekBuffer{buf: &buf}

	enc := wav.NewEncoder(sw, sampleRate, BitDepth, Channels, 1) // 1 = PCM

	pcmBuf := &goaudio.Float32Buffer{
		Data:           samples,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: Channels},
		SourceBitDepth: BitDepth,
	}

	if err := enc.Write(pcmBuf); err != nil {
		return nil, fmt.Errorf("writing PCM: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}

	return buf.Bytes(), nil
}

// ReadWAVFile decodes the WAV file at path.
func ReadWAVFile(path string) ([]float32, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", path, err)
	}
	return DecodeWAV(data)
}

// WriteWAVFile encodes samples and writes them to path.
func WriteWAVFile(path string, samples []float32, sampleRate int) error {
	data, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// seekBuffer wraps a bytes.Buffer to satisfy io.WriteSeeker.
type seekBuffer struct {
	buf *bytes.Buffer
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	// If writing at the end, just append.
	if s.pos == s.buf.Len() {
		n, err := s.buf.Write(p)
		s.pos += n
		return n, err
	}
	// Writing in the middle: overwrite existing bytes.
	data := s.buf.Bytes()
	n := copy(data[s.pos:], p)
	if n < len(p) {
		// Extend the buffer for the remainder.
		data = append(data, p[n:]...)
		// Reset buffer with extended data.
		s.buf.Reset()
		s.buf.Write(data)
		n = len(p)
	}
	s.pos += n
	return n, nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int
	switch whence {
	case 0: // io.SeekStart
		newPos = int(offset)
	case 1: // io.SeekCurrent
		newPos = s.pos + int(offset)
	case 2: // io.SeekEnd
		newPos = s.buf.Len() + int(offset)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("seek before start")
	}
	s.pos = newPos
	return int64(newPos), nil
}
