package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"textcast/internal/errs"
	"textcast/internal/library"
)

func (h *Handlers) CreateEpisode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SourceID           string  `json:"source_id"`
		Title              string  `json:"title"`
		VoiceID            string  `json:"voice_id"`
		OutputFormat       string  `json:"output_format"`
		ChunkStrategy      string  `json:"chunk_strategy"`
		ChunkMaxLength     int     `json:"chunk_max_length"`
		BreathingIntensity string  `json:"breathing_intensity"`
		FolderID           *string `json:"folder_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}

	episode, chunkCount, err := h.svc.CreateEpisode(library.CreateEpisodeRequest{
		SourceID:           body.SourceID,
		Title:              body.Title,
		VoiceID:            body.VoiceID,
		OutputFormat:       body.OutputFormat,
		ChunkStrategy:      body.ChunkStrategy,
		ChunkMaxLength:     body.ChunkMaxLength,
		BreathingIntensity: body.BreathingIntensity,
		FolderID:           body.FolderID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"episode":     episode,
		"chunk_count": chunkCount,
	})
}

func (h *Handlers) ListEpisodes(w http.ResponseWriter, r *http.Request) {
	var sourceID, folderID *string
	if v := r.URL.Query().Get("source_id"); v != "" {
		sourceID = &v
	}
	if v := r.URL.Query().Get("folder_id"); v != "" {
		folderID = &v
	}
	episodes, err := h.svc.ListEpisodes(sourceID, folderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, episodes)
}

func (h *Handlers) GetEpisode(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetEpisode(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

func (h *Handlers) DeleteEpisode(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteEpisode(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) RegenerateEpisode(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RegenerateAll(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "pending"})
}

func (h *Handlers) RegenerateChunk(w http.ResponseWriter, r *http.Request) {
	index, err := chunkIndexVar(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.svc.RegenerateChunk(mux.Vars(r)["id"], index); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) RegenerateWithSettings(w http.ResponseWriter, r *http.Request) {
	var settings library.RegenerateSettings
	if err := decodeBody(r, &settings); err != nil {
		h.writeError(w, err)
		return
	}
	undoID, err := h.svc.RegenerateWithSettings(mux.Vars(r)["id"], settings)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"status":  "pending",
		"undo_id": undoID,
	})
}

func (h *Handlers) Undo(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Undo(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) CancelEpisode(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "cancelled"})
}

func (h *Handlers) RetryErrors(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RetryErrors(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) BulkMove(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EpisodeIDs []string `json:"episode_ids"`
		FolderID   *string  `json:"folder_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.svc.BulkMove(body.EpisodeIDs, body.FolderID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "moved": len(body.EpisodeIDs)})
}

func (h *Handlers) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EpisodeIDs []string `json:"episode_ids"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.svc.BulkDelete(body.EpisodeIDs); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": len(body.EpisodeIDs)})
}

func (h *Handlers) SavePlayback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChunkIndex      int     `json:"chunk_index"`
		PositionSecs    float64 `json:"position_secs"`
		PercentListened float64 `json:"percent_listened"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	err := h.svc.SavePlayback(mux.Vars(r)["id"], body.ChunkIndex, body.PositionSecs, body.PercentListened)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) TagEpisode(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	if err := h.svc.TagEpisode(v["id"], v["tagID"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) UntagEpisode(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	if err := h.svc.UntagEpisode(v["id"], v["tagID"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ChunkAudio serves one chunk artifact; http.ServeFile handles range
// requests for seeking.
func (h *Handlers) ChunkAudio(w http.ResponseWriter, r *http.Request) {
	index, err := chunkIndexVar(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	path, mimeType, err := h.svc.ChunkAudio(mux.Vars(r)["id"], index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	http.ServeFile(w, r, path)
}

// FullAudio lazily assembles and serves the whole episode.
func (h *Handlers) FullAudio(w http.ResponseWriter, r *http.Request) {
	path, mimeType, err := h.svc.FullAudio(mux.Vars(r)["id"], r.URL.Query().Get("format"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	http.ServeFile(w, r, path)
}

func chunkIndexVar(r *http.Request) (int, error) {
	raw := mux.Vars(r)["index"]
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		return 0, errs.E(errs.KindInvalidState, "invalid chunk index %q", raw)
	}
	return index, nil
}
