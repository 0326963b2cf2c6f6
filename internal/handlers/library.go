package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"textcast/internal/feed"
)

func (h *Handlers) LibraryTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.svc.LibraryTree()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tree)
}

func (h *Handlers) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string  `json:"name"`
		ParentID *string `json:"parent_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	folder, err := h.svc.CreateFolder(body.Name, body.ParentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, folder)
}

// UpdateFolder renames and/or moves a folder in one call.
func (h *Handlers) UpdateFolder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     *string `json:"name"`
		ParentID *string `json:"parent_id"`
		Move     bool    `json:"move"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}

	id := mux.Vars(r)["id"]
	if body.Name != nil {
		if err := h.svc.RenameFolder(id, *body.Name); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if body.Move {
		if err := h.svc.MoveFolder(id, body.ParentID); err != nil {
			h.writeError(w, err)
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteFolder(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) FolderPlaylist(w http.ResponseWriter, r *http.Request) {
	playlist, err := h.svc.FolderPlaylist(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"episodes": playlist, "count": len(playlist)})
}

// FolderFeed renders a folder playlist as a podcast RSS feed.
func (h *Handlers) FolderFeed(w http.ResponseWriter, r *http.Request) {
	folderID := mux.Vars(r)["id"]
	episodes, err := h.svc.FolderPlaylist(folderID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	xml, err := feed.GenerateRSS(folderID, episodes, feed.BaseURL(h.baseURL, r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Write([]byte(xml))
}

func (h *Handlers) CreateTag(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	tag, err := h.svc.CreateTag(body.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, tag)
}

func (h *Handlers) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.ListTags()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tags)
}

func (h *Handlers) DeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTag(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.Settings()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var values map[string]string
	if err := decodeBody(r, &values); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.svc.UpdateSettings(values); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) ListVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := h.svc.Voices(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, voices)
}

// GenerationStatus reports the worker's point-in-time snapshot.
func (h *Handlers) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.worker.Snapshot())
}
