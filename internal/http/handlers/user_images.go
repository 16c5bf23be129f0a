package handlers

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type deleteImagesRequest struct {
	IDList       []string `json:"id_list" validate:"required_without=AllDocuments"`
	AllDocuments bool     `json:"all_documents"`
}

func (a *App) ListImages(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	records, err := a.Studio.ListImages(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"image_url_prefix": a.ImageBaseURL,
		"image_ids":        records,
	})
}

func (a *App) DeleteImages(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	var req deleteImagesRequest
	if !a.decode(w, r, &req) {
		return
	}
	removed, err := a.Studio.DeleteImages(r.Context(), userID, req.IDList, req.AllDocuments)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if req.AllDocuments {
		a.json(w, http.StatusOK, map[string]any{"deleted_images": "all"})
		return
	}
	a.json(w, http.StatusOK, map[string]any{"deleted_images": removed})
}

// ArchiveImages streams a zip with every image the user owns.
func (a *App) ArchiveImages(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := a.Studio.Archive(r.Context(), userID, &buf); err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=stylegan-images.zip")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Image serves the JPEG of an artifact. Artifact ids are unguessable, so
// this route is public like the bucket URLs it replaces.
func (a *App) Image(w http.ResponseWriter, r *http.Request) {
	data, err := a.Studio.ImageBytes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
