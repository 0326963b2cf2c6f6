package audio

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"textcast/internal/errs"
	"textcast/internal/models"
)

// execCommand is swapped in tests.
var execCommand = exec.Command

// Encoder is the audio-codec collaborator: raw contract PCM in, encoded
// bytes in the target format out.
type Encoder interface {
	Encode(pcm []byte, format string) ([]byte, error)
}

// FFmpegEncoder shells out to ffmpeg for lossy and compressed formats. The
// wav and pcm formats are written natively; no external tool touches them.
type FFmpegEncoder struct {
	Path string
}

// NewFFmpegEncoder builds an encoder using the given ffmpeg binary.
func NewFFmpegEncoder(path string) *FFmpegEncoder {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegEncoder{Path: path}
}

// Encode transcodes contract PCM into the target format.
func (e *FFmpegEncoder) Encode(pcm []byte, format string) ([]byte, error) {
	if !models.OutputFormats[format] {
		return nil, errs.E(errs.KindUnsupportedType, "unsupported output format %q", format)
	}
	if err := ValidatePCM(pcm); err != nil {
		return nil, err
	}

	switch format {
	case "pcm":
		return pcm, nil
	case "wav":
		return EncodeWAV(pcm), nil
	}

	muxer := format
	if format == "opus" {
		muxer = "ogg"
	}

	cmd := execCommand(e.Path,
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-i", "pipe:0",
		"-f", muxer,
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(pcm)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("ffmpeg encode to %s failed: %s", format, msg)
	}
	return out.Bytes(), nil
}

// MimeType maps an output format to its Content-Type.
func MimeType(format string) string {
	switch format {
	case "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "opus":
		return "audio/ogg"
	case "flac":
		return "audio/flac"
	case "pcm":
		return "audio/L16"
	default:
		return "application/octet-stream"
	}
}
