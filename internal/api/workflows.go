package api

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gelap-studio/internal/batch"
	"gelap-studio/internal/codec"
	"gelap-studio/internal/export"
	"gelap-studio/internal/history"
	"gelap-studio/internal/prompt"
	"gelap-studio/internal/store"
	"gelap-studio/internal/studio"
)

const (
	workflowProduct     = "product"
	workflowMockup      = "mockup"
	workflowPhotoStudio = "photostudio"
	workflowHireModel   = "hiremodel"
	workflowCharacter   = "character"
	workflowRebrand     = "rebrand"
	workflowQuickTool   = "tools"
)

// results is the history and save surface every single-result controller
// shares.
type results interface {
	History() []history.Item
	Save(ctx context.Context, itemID string) (store.Asset, error)
}

func (s *Server) results(workflow string) results {
	switch workflow {
	case workflowProduct:
		return s.studio.Product
	case workflowMockup:
		return s.studio.Mockup
	case workflowPhotoStudio:
		return s.studio.PhotoStudio
	case workflowHireModel:
		return s.studio.HireModel
	case workflowRebrand:
		return s.studio.Rebrand
	case workflowQuickTool:
		return s.studio.QuickTool
	}
	return nil
}

func (s *Server) mountResults(r chi.Router, workflow string) {
	res := s.results(workflow)
	r.Get("/history", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, res.History())
	})
	r.Get("/history/{id}/download", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		for _, item := range res.History() {
			if item.ID == id {
				s.writeImage(w, r, item.ImageDataURI, export.DownloadName(item.Label, s.now()))
				return
			}
		}
		s.writeError(w, r, studio.ErrNoResult)
	})
	r.Post("/save", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ItemID string `json:"itemId"`
		}
		if r.ContentLength != 0 {
			if err := decodeJSON(w, r, &req); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		asset, err := res.Save(r.Context(), req.ItemID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, asset)
	})
}

func (s *Server) writeImage(w http.ResponseWriter, r *http.Request, uri, fileName string) {
	img, err := codec.Decode(uri)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	raw, err := img.Bytes()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("content-type", img.MimeType)
	w.Header().Set("content-disposition", `attachment; filename="`+fileName+`"`)
	w.Header().Set("content-length", strconv.Itoa(len(raw)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleProductAnalyze(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sel, err := req.selection()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := s.withTimeout(r)
	defer cancel()
	text, err := s.studio.Product.Analyze(ctx, sel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"prompt": text})
}

func (s *Server) productRun(w http.ResponseWriter, r *http.Request, regenerate bool) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sel, err := req.selection()
	if err == nil {
		err = sel.Validate()
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.startRun(w, r, workflowProduct, func(ctx context.Context, ro studio.RunOptions) (batch.Result, error) {
		if regenerate {
			return s.studio.Product.Regenerate(ctx, sel, req.Prompt, ro)
		}
		return s.studio.Product.Generate(ctx, sel, ro)
	})
}

func (s *Server) handleProductRun(w http.ResponseWriter, r *http.Request) {
	s.productRun(w, r, false)
}

func (s *Server) handleProductRegenerate(w http.ResponseWriter, r *http.Request) {
	s.productRun(w, r, true)
}

type mockupBaseResponse struct {
	Base    string `json:"base"`
	Cleaned bool   `json:"cleaned"`
}

func (s *Server) handleMockupClean(w http.ResponseWriter, r *http.Request) {
	var req mockupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	target, err := req.Target.image("target")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := s.withTimeout(r)
	defer cancel()
	cleaned, err := s.studio.Mockup.Clean(ctx, prompt.MockupCleanSelection{Target: target, AspectRatio: req.AspectRatio})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mockupBaseResponse{Base: cleaned.DataURI(), Cleaned: true})
}

func (s *Server) handleMockupSkip(w http.ResponseWriter, r *http.Request) {
	var req mockupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	target, err := req.Target.image("target")
	if err == nil {
		err = s.studio.Mockup.SkipCleaning(target)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mockupBaseResponse{Base: target.DataURI()})
}

func (s *Server) handleMockupInject(w http.ResponseWriter, r *http.Request) {
	var req mockupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	design, err := req.Design.image("design")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := s.withTimeout(r)
	defer cancel()
	item, err := s.studio.Mockup.Inject(ctx, prompt.MockupInjectSelection{
		Design:      design,
		AspectRatio: req.AspectRatio,
		MockupStyle: req.style(),
	})
	s.writeItem(w, r, item, err)
}

func (s *Server) handleMockupGenerate(w http.ResponseWriter, r *http.Request) {
	var req mockupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	design, err := req.Design.image("design")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := s.withTimeout(r)
	defer cancel()
	item, err := s.studio.Mockup.GenerateNew(ctx, prompt.MockupGenerateSelection{
		Design:      design,
		Object:      req.Object,
		SceneID:     req.SceneID,
		Details:     req.Details,
		AspectRatio: req.AspectRatio,
		MockupStyle: req.style(),
	})
	s.writeItem(w, r, item, err)
}

func (s *Server) handlePhotoStudio(w http.ResponseWriter, r *http.Request) {
	var req photoStudioRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sel, err := req.selection()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := s.withTimeout(r)
	defer cancel()
	item, err := s.studio.PhotoStudio.Generate(ctx, sel)
	s.writeItem(w, r, item, err)
}

func (s *Server) handleHireModel(w http.ResponseWriter, r *http.Request) {
	var req hireModelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	hr, err := req.request()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := s.withTimeout(r)
	defer cancel()
	item, err := s.studio.HireModel.Generate(ctx, hr)
	s.writeItem(w, r, item, err)
}

func (s *Server) handleRebrand(w http.ResponseWriter, r *http.Request) {
	var req rebrandRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ref, err := req.Reference.image("reference")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := s.withTimeout(r)
	defer cancel()
	item, err := s.studio.Rebrand.Generate(ctx, prompt.RebrandSelection{
		BrandName:   req.BrandName,
		Industry:    req.Industry,
		Description: req.Description,
		StyleID:     req.StyleID,
		PaletteID:   req.PaletteID,
		Reference:   ref,
	})
	s.writeItem(w, r, item, err)
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.studio.QuickTool.Tools())
}

func (s *Server) handleQuickTool(w http.ResponseWriter, r *http.Request) {
	var req quickToolRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	img, err := req.Image.image("image")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := s.withTimeout(r)
	defer cancel()
	item, err := s.studio.QuickTool.Generate(ctx, prompt.QuickToolSelection{ToolID: req.ToolID, Prompt: req.Prompt, Image: img})
	s.writeItem(w, r, item, err)
}

func (s *Server) writeItem(w http.ResponseWriter, r *http.Request, item history.Item, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleCharacterWorkspace(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.studio.Character.Workspace())
}

func (s *Server) handleCharacterUpdate(w http.ResponseWriter, r *http.Request) {
	var req characterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.studio.Character.Update(req.apply); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.studio.Character.Workspace())
}

func (s *Server) handleCharacterRestore(w http.ResponseWriter, r *http.Request) {
	ok, err := s.studio.Character.Restore(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restored": ok, "workspace": s.studio.Character.Workspace()})
}

func (s *Server) handleCharacterRun(w http.ResponseWriter, r *http.Request) {
	s.startRun(w, r, workflowCharacter, s.studio.Character.GeneratePack)
}

func (s *Server) handleCharacterSave(w http.ResponseWriter, r *http.Request) {
	sub, asset, err := s.studio.Character.SaveCharacter(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"subject": sub, "asset": asset})
}

func (s *Server) handleCharacterExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	name, err := s.studio.Character.ExportZip(&buf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("content-type", "application/zip")
	w.Header().Set("content-disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("content-length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleCharacterDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ws := s.studio.Character.Workspace()
	for _, item := range ws.Items {
		if item.ID == id {
			s.writeImage(w, r, item.URL, export.ShotFileName(ws.Name, item.Type, item.Label))
			return
		}
	}
	s.writeError(w, r, studio.ErrNoResult)
}
