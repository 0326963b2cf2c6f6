package handlers

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"

	"textcast/internal/errs"
	"textcast/internal/library"
	"textcast/internal/models"
)

const maxUploadBytes = 1 << 20 // request cap; the ingestor enforces its own

type ingestBody struct {
	Variant  string                  `json:"variant"`
	Title    string                  `json:"title"`
	Text     string                  `json:"text"`
	URL      string                  `json:"url"`
	Subpath  string                  `json:"subpath"`
	FolderID *string                 `json:"folder_id"`
	Cleaning *models.CleaningOptions `json:"cleaning"`
}

// Ingest accepts either a JSON body (text/url/git) or a multipart form with
// a "file" part.
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	req, err := decodeIngest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	src, err := h.svc.Ingest(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, src)
}

func decodeIngest(r *http.Request) (library.IngestRequest, error) {
	var req library.IngestRequest

	if mt := r.Header.Get("Content-Type"); len(mt) >= 19 && mt[:19] == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return req, errs.Wrap(errs.KindInvalidState, err, "malformed upload")
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return req, errs.Wrap(errs.KindInvalidState, err, "missing file part")
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			return req, errs.Wrap(errs.KindInternal, err, "could not read upload")
		}

		req.Variant = models.SourceTypeFile
		req.Filename = header.Filename
		req.Data = data
		req.Title = r.FormValue("title")
		if fid := r.FormValue("folder_id"); fid != "" {
			req.FolderID = &fid
		}
		return req, nil
	}

	var body ingestBody
	if err := decodeBody(r, &body); err != nil {
		return req, err
	}
	return library.IngestRequest{
		Variant:  body.Variant,
		Title:    body.Title,
		Text:     body.Text,
		URL:      body.URL,
		Subpath:  body.Subpath,
		FolderID: body.FolderID,
		Cleaning: body.Cleaning,
	}, nil
}

func (h *Handlers) ListSources(w http.ResponseWriter, r *http.Request) {
	var folderID *string
	if fid := r.URL.Query().Get("folder_id"); fid != "" {
		folderID = &fid
	}
	sources, err := h.svc.ListSources(folderID, r.URL.Query().Get("tag"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sources)
}

func (h *Handlers) GetSource(w http.ResponseWriter, r *http.Request) {
	src, tags, err := h.svc.GetSource(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"source":       src,
		"tags":         tags,
		"raw_text":     src.RawText,
		"cleaned_text": src.CleanedText,
	})
}

func (h *Handlers) DeleteSource(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSource(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) ReCleanSource(w http.ResponseWriter, r *http.Request) {
	var opts models.CleaningOptions
	if err := decodeBody(r, &opts); err != nil {
		h.writeError(w, err)
		return
	}
	src, err := h.svc.ReClean(mux.Vars(r)["id"], opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"source":       src,
		"cleaned_text": src.CleanedText,
	})
}

func (h *Handlers) PreviewClean(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text     string                  `json:"text"`
		Cleaning *models.CleaningOptions `json:"cleaning"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	opts := models.DefaultCleaningOptions()
	if body.Cleaning != nil {
		opts = *body.Cleaning
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"cleaned_text": h.svc.PreviewClean(body.Text, opts),
	})
}

func (h *Handlers) PreviewChunks(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text     string `json:"text"`
		Strategy string `json:"strategy"`
		MaxChars int    `json:"max_chars"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	chunks, err := h.svc.PreviewChunks(body.Text, body.Strategy, body.MaxChars)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks, "count": len(chunks)})
}

func (h *Handlers) UploadCover(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, errs.Wrap(errs.KindInvalidState, err, "malformed upload"))
		return
	}
	file, header, err := r.FormFile("cover")
	if err != nil {
		h.writeError(w, errs.Wrap(errs.KindInvalidState, err, "missing cover part"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		h.writeError(w, errs.Wrap(errs.KindInternal, err, "could not read upload"))
		return
	}

	if _, err := h.svc.SetSourceCover(mux.Vars(r)["id"], data, filepath.Ext(header.Filename)); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) ServeCover(w http.ResponseWriter, r *http.Request) {
	path, err := h.svc.CoverPath(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	http.ServeFile(w, r, path)
}

func (h *Handlers) TagSource(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	if err := h.svc.TagSource(v["id"], v["tagID"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) UntagSource(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	if err := h.svc.UntagSource(v["id"], v["tagID"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
