// Package audio owns the PCM contract with the TTS collaborator and the
// assembly of per-chunk artifacts into full-episode streams.
package audio

import (
	"encoding/binary"
	"fmt"
	"os"

	"textcast/internal/errs"
)

// The PCM contract: every synthesis result is 24 kHz, mono, signed 16-bit
// little-endian. Anything else is refused, not resampled.
const (
	SampleRate    = 24000
	Channels      = 1
	BitsPerSample = 16
	BytesPerFrame = Channels * BitsPerSample / 8
)

const wavHeaderSize = 44

// ValidatePCM checks the byte stream against the contract's frame size.
func ValidatePCM(pcm []byte) error {
	if len(pcm) == 0 {
		return errs.E(errs.KindAudioContractMismatch, "empty PCM stream")
	}
	if len(pcm)%BytesPerFrame != 0 {
		return errs.E(errs.KindAudioContractMismatch,
			"PCM length %d is not frame-aligned (%d-byte frames)", len(pcm), BytesPerFrame)
	}
	return nil
}

// DurationSecs computes playing time from a contract-conformant PCM length.
func DurationSecs(pcmLen int) float64 {
	return float64(pcmLen/BytesPerFrame) / SampleRate
}

// EncodeWAV prefixes the PCM with a RIFF header.
func EncodeWAV(pcm []byte) []byte {
	out := make([]byte, wavHeaderSize+len(pcm))
	h := out[:wavHeaderSize]

	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+len(pcm)))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // PCM subchunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(h[22:24], Channels)
	binary.LittleEndian.PutUint32(h[24:28], SampleRate)
	binary.LittleEndian.PutUint32(h[28:32], SampleRate*BytesPerFrame)
	binary.LittleEndian.PutUint16(h[32:34], BytesPerFrame)
	binary.LittleEndian.PutUint16(h[34:36], BitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(len(pcm)))

	copy(out[wavHeaderSize:], pcm)
	return out
}

// DecodeWAV strips and validates the RIFF header, returning the raw PCM.
// The declared sample rate, channel count and bit depth must match the
// contract; mismatches fail with AudioContractMismatch.
func DecodeWAV(data []byte) ([]byte, error) {
	if len(data) < wavHeaderSize {
		return nil, errs.E(errs.KindAudioContractMismatch, "WAV file truncated (%d bytes)", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errs.E(errs.KindAudioContractMismatch, "not a RIFF/WAVE file")
	}

	format := binary.LittleEndian.Uint16(data[20:22])
	channels := binary.LittleEndian.Uint16(data[22:24])
	rate := binary.LittleEndian.Uint32(data[24:28])
	bits := binary.LittleEndian.Uint16(data[34:36])

	if format != 1 {
		return nil, errs.E(errs.KindAudioContractMismatch, "WAV format %d is not PCM", format)
	}
	if channels != Channels || rate != SampleRate || bits != BitsPerSample {
		return nil, errs.E(errs.KindAudioContractMismatch,
			"WAV is %d Hz %d-channel %d-bit, contract requires %d Hz %d-channel %d-bit",
			rate, channels, bits, SampleRate, Channels, BitsPerSample)
	}

	dataLen := binary.LittleEndian.Uint32(data[40:44])
	pcm := data[wavHeaderSize:]
	if int(dataLen) < len(pcm) {
		pcm = pcm[:dataLen]
	}
	if err := ValidatePCM(pcm); err != nil {
		return nil, err
	}
	return pcm, nil
}

// WriteWAVFile writes PCM to path as a WAV file via a temp-and-rename so
// readers never observe a partial artifact.
func WriteWAVFile(path string, pcm []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, EncodeWAV(pcm), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// ReadWAVFile reads a chunk artifact back into raw PCM.
func ReadWAVFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeWAV(data)
}
