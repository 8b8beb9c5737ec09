package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"gelap-studio/internal/codec"
	"gelap-studio/internal/export"
	"gelap-studio/internal/store"
	"gelap-studio/internal/studio"
)

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	kind, err := store.ParseAssetKind(r.URL.Query().Get("kind"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	assets, err := s.studio.Store().ListAssets(r.Context(), kind)
	if err != nil {
		s.writeError(w, r, &studio.StorageError{Op: "list assets", Err: err})
		return
	}
	if assets == nil {
		assets = []store.Asset{}
	}
	writeJSON(w, http.StatusOK, assets)
}

type assetUpload struct {
	Image  dataURI `json:"imageDataUri"`
	Kind   string  `json:"kind"`
	Title  string  `json:"title"`
	Prompt string  `json:"prompt"`
}

// handleUploadAsset accepts a multipart "image" file or a JSON body with a
// data URI. Uploads default to the upload kind.
func (s *Server) handleUploadAsset(w http.ResponseWriter, r *http.Request) {
	var (
		up  assetUpload
		img codec.Image
		err error
	)
	if isMultipart(r) {
		img, err = readUpload(w, r)
		up.Kind = r.FormValue("kind")
		up.Title = r.FormValue("title")
		up.Prompt = r.FormValue("prompt")
	} else if err = decodeJSON(w, r, &up); err == nil {
		img, err = up.Image.image("imageDataUri")
	}
	if err == nil && img.IsZero() {
		err = fmt.Errorf("%w: missing image", errBadRequest)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	kind, err := store.ParseAssetKind(up.Kind)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if kind == "" {
		kind = store.AssetUpload
	}
	asset, err := s.studio.Store().SaveAsset(r.Context(), store.Asset{
		Kind:         kind,
		ImageDataURI: img.DataURI(),
		Title:        strings.TrimSpace(up.Title),
		Prompt:       strings.TrimSpace(up.Prompt),
	})
	if err != nil {
		s.writeError(w, r, &studio.StorageError{Op: "save asset", Err: err})
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

func (s *Server) asset(w http.ResponseWriter, r *http.Request) (*store.Asset, bool) {
	asset, err := s.studio.Store().GetAsset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, &studio.StorageError{Op: "get asset", Err: err})
		return nil, false
	}
	if asset == nil {
		s.writeError(w, r, store.ErrNotFound)
		return nil, false
	}
	return asset, true
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	if asset, ok := s.asset(w, r); ok {
		writeJSON(w, http.StatusOK, asset)
	}
}

func (s *Server) handleDownloadAsset(w http.ResponseWriter, r *http.Request) {
	if asset, ok := s.asset(w, r); ok {
		s.writeImage(w, r, asset.ImageDataURI, export.AssetFileName(*asset))
	}
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	if err := s.studio.Store().DeleteAsset(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, &studio.StorageError{Op: "delete asset", Err: err})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type subjectsResponse struct {
	Selected string           `json:"selected"`
	Subjects []studio.Subject `json:"subjects"`
}

func (s *Server) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := s.studio.HireModel.Subjects(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subjectsResponse{Selected: s.studio.HireModel.Selected(), Subjects: subjects})
}

// handleUploadSubject takes a multipart "image" file and optional "name".
func (s *Server) handleUploadSubject(w http.ResponseWriter, r *http.Request) {
	if !isMultipart(r) {
		s.writeError(w, r, fmt.Errorf("%w: expected multipart form", errBadRequest))
		return
	}
	img, err := readUpload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fileName := ""
	if _, header, err := r.FormFile("image"); err == nil {
		fileName = header.Filename
	}
	sub, err := s.studio.HireModel.UploadSubject(r.Context(), r.FormValue("name"), fileName, img)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

type editSubjectRequest struct {
	Name  string  `json:"name"`
	Image dataURI `json:"image"`
}

func (s *Server) handleEditSubject(w http.ResponseWriter, r *http.Request) {
	var req editSubjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	img, err := req.Image.image("image")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sub, err := s.studio.HireModel.EditSubject(r.Context(), chi.URLParam(r, "id"), req.Name, img)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleDeleteSubject(w http.ResponseWriter, r *http.Request) {
	selected, err := s.studio.HireModel.DeleteSubject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"selected": selected})
}

func (s *Server) handleSelectSubject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		s.writeError(w, r, fmt.Errorf("%w: missing id", errBadRequest))
		return
	}
	s.studio.HireModel.Select(req.ID)
	writeJSON(w, http.StatusOK, map[string]string{"selected": req.ID})
}

type draftResponse struct {
	Key       string          `json:"key"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Data      json.RawMessage `json:"data"`
}

// handleGetDraft flushes any pending autosave for the key first so the
// response reflects the latest accepted edit.
func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.studio.Autosaver().Flush(r.Context(), key); err != nil {
		s.writeError(w, r, &studio.StorageError{Op: "flush draft", Err: err})
		return
	}
	draft, err := s.studio.Store().LoadWorkspaceDraft(r.Context(), key)
	if err != nil {
		s.writeError(w, r, &studio.StorageError{Op: "load draft", Err: err})
		return
	}
	if draft == nil {
		s.writeError(w, r, store.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, draftResponse{Key: draft.Key, Version: draft.Version, UpdatedAt: draft.UpdatedAt, Data: draft.Data})
}

func (s *Server) handlePutDraft(w http.ResponseWriter, r *http.Request) {
	var data json.RawMessage
	if err := decodeJSON(w, r, &data); err != nil {
		s.writeError(w, r, err)
		return
	}
	version, err := s.studio.Autosaver().Schedule(chi.URLParam(r, "key"), data)
	if err != nil {
		s.writeError(w, r, &studio.StorageError{Op: "schedule draft", Err: err})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int64{"version": version})
}

func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.studio.Store().DeleteWorkspaceDraft(r.Context(), chi.URLParam(r, "key")); err != nil {
		s.writeError(w, r, &studio.StorageError{Op: "delete draft", Err: err})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// readUpload reads the "image" file of a multipart form.
func readUpload(w http.ResponseWriter, r *http.Request) (codec.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return codec.Image{}, fmt.Errorf("%w: invalid multipart form", errBadRequest)
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		return codec.Image{}, fmt.Errorf("%w: missing image", errBadRequest)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return codec.Image{}, fmt.Errorf("%w: failed to read image", errBadRequest)
	}
	return codec.EncodeBytes(raw, header.Header.Get("Content-Type"))
}
