// Package handlers is the thin HTTP surface over the library service. All
// business logic lives below; handlers decode, dispatch and render the
// {error_kind, message} envelope on failure.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"textcast/internal/errs"
	"textcast/internal/library"
	"textcast/internal/middleware"
	"textcast/internal/worker"
)

// Handlers bundles the service dependencies for the route set.
type Handlers struct {
	svc     *library.Service
	worker  *worker.Worker
	baseURL string
	log     *zap.Logger
}

// New builds the handler set.
func New(svc *library.Service, w *worker.Worker, baseURL string, log *zap.Logger) *Handlers {
	return &Handlers{svc: svc, worker: w, baseURL: baseURL, log: log}
}

// Router wires every route with logging and rate-limit middleware.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(h.log))
	r.Use(middleware.NewRateLimiter().Middleware)

	api := r.PathPrefix("/api").Subrouter()

	// Sources and previews.
	api.HandleFunc("/sources", h.Ingest).Methods(http.MethodPost)
	api.HandleFunc("/sources", h.ListSources).Methods(http.MethodGet)
	api.HandleFunc("/sources/{id}", h.GetSource).Methods(http.MethodGet)
	api.HandleFunc("/sources/{id}", h.DeleteSource).Methods(http.MethodDelete)
	api.HandleFunc("/sources/{id}/reclean", h.ReCleanSource).Methods(http.MethodPost)
	api.HandleFunc("/sources/{id}/cover", h.UploadCover).Methods(http.MethodPost)
	api.HandleFunc("/sources/{id}/cover", h.ServeCover).Methods(http.MethodGet)
	api.HandleFunc("/sources/{id}/tags/{tagID}", h.TagSource).Methods(http.MethodPut)
	api.HandleFunc("/sources/{id}/tags/{tagID}", h.UntagSource).Methods(http.MethodDelete)
	api.HandleFunc("/preview/clean", h.PreviewClean).Methods(http.MethodPost)
	api.HandleFunc("/preview/chunks", h.PreviewChunks).Methods(http.MethodPost)

	// Episodes.
	api.HandleFunc("/episodes", h.CreateEpisode).Methods(http.MethodPost)
	api.HandleFunc("/episodes", h.ListEpisodes).Methods(http.MethodGet)
	api.HandleFunc("/episodes/bulk-move", h.BulkMove).Methods(http.MethodPost)
	api.HandleFunc("/episodes/bulk-delete", h.BulkDelete).Methods(http.MethodPost)
	api.HandleFunc("/episodes/{id}", h.GetEpisode).Methods(http.MethodGet)
	api.HandleFunc("/episodes/{id}", h.DeleteEpisode).Methods(http.MethodDelete)
	api.HandleFunc("/episodes/{id}/regenerate", h.RegenerateEpisode).Methods(http.MethodPost)
	api.HandleFunc("/episodes/{id}/regenerate-with-settings", h.RegenerateWithSettings).Methods(http.MethodPost)
	api.HandleFunc("/episodes/{id}/cancel", h.CancelEpisode).Methods(http.MethodPost)
	api.HandleFunc("/episodes/{id}/retry-errors", h.RetryErrors).Methods(http.MethodPost)
	api.HandleFunc("/episodes/{id}/playback", h.SavePlayback).Methods(http.MethodPost)
	api.HandleFunc("/episodes/{id}/audio", h.FullAudio).Methods(http.MethodGet)
	api.HandleFunc("/episodes/{id}/chunks/{index}/regenerate", h.RegenerateChunk).Methods(http.MethodPost)
	api.HandleFunc("/episodes/{id}/chunks/{index}/audio", h.ChunkAudio).Methods(http.MethodGet)
	api.HandleFunc("/episodes/{id}/tags/{tagID}", h.TagEpisode).Methods(http.MethodPut)
	api.HandleFunc("/episodes/{id}/tags/{tagID}", h.UntagEpisode).Methods(http.MethodDelete)
	api.HandleFunc("/undo/{id}", h.Undo).Methods(http.MethodPost)

	// Library organization.
	api.HandleFunc("/library/tree", h.LibraryTree).Methods(http.MethodGet)
	api.HandleFunc("/folders", h.CreateFolder).Methods(http.MethodPost)
	api.HandleFunc("/folders/{id}", h.UpdateFolder).Methods(http.MethodPatch)
	api.HandleFunc("/folders/{id}", h.DeleteFolder).Methods(http.MethodDelete)
	api.HandleFunc("/folders/{id}/playlist", h.FolderPlaylist).Methods(http.MethodGet)
	api.HandleFunc("/tags", h.CreateTag).Methods(http.MethodPost)
	api.HandleFunc("/tags", h.ListTags).Methods(http.MethodGet)
	api.HandleFunc("/tags/{id}", h.DeleteTag).Methods(http.MethodDelete)

	// Process-wide state.
	api.HandleFunc("/settings", h.GetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", h.UpdateSettings).Methods(http.MethodPut)
	api.HandleFunc("/voices", h.ListVoices).Methods(http.MethodGet)
	api.HandleFunc("/status", h.GenerationStatus).Methods(http.MethodGet)

	// Podcast feed.
	r.HandleFunc("/feeds/folders/{id}/rss", h.FolderFeed).Methods(http.MethodGet)

	return r
}

type errorBody struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("could not encode response", zap.Error(err))
	}
}

// writeError renders the uniform failure envelope. Internal errors are
// logged with a correlation id and surfaced opaque.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	msg := errs.MessageOf(err)

	if kind == errs.KindInternal {
		id := uuid.NewString()
		h.log.Error("internal error", zap.String("correlation_id", id), zap.Error(err))
		msg = "internal error (correlation id " + id + ")"
	}

	h.writeJSON(w, statusFor(kind), errorBody{ErrorKind: string(kind), Message: msg})
}

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindInvalidState:
		return http.StatusConflict
	case errs.KindEmptyContent:
		return http.StatusBadRequest
	case errs.KindFetchFailed:
		return http.StatusBadGateway
	case errs.KindTimeout:
		return http.StatusGatewayTimeout
	case errs.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case errs.KindUnsupportedType:
		return http.StatusUnsupportedMediaType
	case errs.KindUndoExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Wrap(errs.KindInvalidState, err, "malformed request body")
	}
	return nil
}
