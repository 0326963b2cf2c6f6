package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// HTTPEngine talks to a PocketTTS-style server over its OpenAI-compatible
// speech endpoint, requesting raw PCM so no decode step sits between the
// model and the worker. TTS calls carry no timeout: synthesis runs to
// completion or until the process exits.
type HTTPEngine struct {
	baseURL   string
	voicesDir string
	client    *http.Client
	log       *zap.Logger
}

// NewHTTPEngine builds an engine for the server at baseURL. voicesDir may be
// empty; when set, its *.wav files are offered as custom voices in addition
// to the server's builtin list.
func NewHTTPEngine(baseURL, voicesDir string, log *zap.Logger) *HTTPEngine {
	return &HTTPEngine{
		baseURL:   strings.TrimRight(baseURL, "/"),
		voicesDir: voicesDir,
		client:    &http.Client{},
		log:       log,
	}
}

type speechRequest struct {
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize sends one utterance and returns the raw PCM response body.
func (e *HTTPEngine) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	payload, err := json.Marshal(speechRequest{
		Input:          text,
		Voice:          voiceID,
		ResponseFormat: "pcm",
	})
	if err != nil {
		return nil, fmt.Errorf("encode speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/v1/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("tts server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("tts server returned empty audio for voice %q", voiceID)
	}
	return pcm, nil
}

type voicesResponse struct {
	Voices []Voice `json:"voices"`
}

// Voices merges the server's voice list with local custom voices.
func (e *HTTPEngine) Voices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/v1/audio/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("build voices request: %w", err)
	}

	var voices []Voice
	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Warn("could not list server voices", zap.Error(err))
	} else {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			var vr voicesResponse
			if err := json.NewDecoder(resp.Body).Decode(&vr); err == nil {
				voices = vr.Voices
			}
		}
	}

	for _, v := range e.localVoices() {
		voices = append(voices, v)
	}

	sort.Slice(voices, func(i, j int) bool { return voices[i].Name < voices[j].Name })
	return voices, nil
}

func (e *HTTPEngine) localVoices() []Voice {
	if e.voicesDir == "" {
		return nil
	}
	entries, err := os.ReadDir(e.voicesDir)
	if err != nil {
		return nil
	}
	var voices []Voice
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wav") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		voices = append(voices, Voice{ID: id, Name: id, Type: "custom"})
	}
	return voices
}
