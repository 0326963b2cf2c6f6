// Package tts defines the narrow interface to the speech model. The worker
// knows nothing about the engine behind it; the engine returns raw PCM and
// the contract (24 kHz mono s16le) is validated by the audio layer.
package tts

import "context"

// Voice describes one selectable voice.
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"` // builtin or custom
}

// Synthesizer is the TTS collaborator. Synthesize blocks for the duration of
// model inference; callers must not hold database locks across it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
	Voices(ctx context.Context) ([]Voice, error)
}
