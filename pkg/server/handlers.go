package server

import (
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/keyforge/pkg/archive"
	"github.com/matzehuels/keyforge/pkg/buildinfo"
	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/fontstore"
	kio "github.com/matzehuels/keyforge/pkg/io"
	"github.com/matzehuels/keyforge/pkg/layout"
	"github.com/matzehuels/keyforge/pkg/pipeline"
	"github.com/matzehuels/keyforge/pkg/preview"
	"github.com/matzehuels/keyforge/pkg/solid"
	"github.com/matzehuels/keyforge/pkg/template"
)

// =============================================================================
// Info
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "keyforge",
		"version": buildinfo.Version,
	})
}

type machineInfo struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	BaseWidth   float64 `json:"base_width_mm"`
	BaseDepth   float64 `json:"base_depth_mm"`
	TopWidth    float64 `json:"top_width_mm"`
	TopDepth    float64 `json:"top_depth_mm"`
	Height      float64 `json:"height_mm"`
	Hollow      bool    `json:"hollow"`
	Default     bool    `json:"default,omitempty"`
}

func (s *Server) handleMachines(w http.ResponseWriter, r *http.Request) {
	var out []machineInfo
	for _, v := range template.Machines() {
		out = append(out, machineInfo{
			Name:        string(v.Machine),
			Description: v.Description,
			BaseWidth:   v.BaseWidth,
			BaseDepth:   v.BaseDepth,
			TopWidth:    v.TopWidth,
			TopDepth:    v.TopDepth,
			Height:      v.Height,
			Hollow:      v.Hollow,
			Default:     v.Machine == template.DefaultMachine,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"machines": out})
}

// =============================================================================
// Fonts
// =============================================================================

func (s *Server) handleListFonts(w http.ResponseWriter, r *http.Request) {
	infos, err := s.Fonts.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fonts": infos})
}

func (s *Server) handleUploadFont(w http.ResponseWriter, r *http.Request) {
	if s.Uploads == nil {
		writeError(w, r, errors.New(errors.ErrCodeNotFound, "font uploads are disabled"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.Options.MaxUploadBytes+64<<10)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse upload"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "missing form field \"file\""))
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if n := r.FormValue("name"); n != "" {
		name = n
	}
	data, err := io.ReadAll(io.LimitReader(file, s.Options.MaxUploadBytes+1))
	if err != nil {
		writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "read upload"))
		return
	}
	if int64(len(data)) > s.Options.MaxUploadBytes {
		writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "font larger than %d bytes", s.Options.MaxUploadBytes))
		return
	}

	f, err := fontstore.Upload(r.Context(), s.Uploads, name, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.Logger.Info("uploaded font", "name", name, "family", f.Family(), "bytes", len(data))
	writeJSON(w, http.StatusCreated, map[string]any{
		"name":   name,
		"family": f.Family(),
		"glyphs": f.NumGlyphs(),
		"size":   len(data),
	})
}

// =============================================================================
// Generation
// =============================================================================

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.Options.MaxBodyBytes))
	if err != nil {
		writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "read body"))
		return
	}
	req, err := kio.DecodeRequest(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.Timeout = s.Options.BatchTimeout

	res, err := s.Runner.Execute(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(res.Artifacts) == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}

	zipped, err := archive.Bytes(res, archive.Options{Report: true})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+archive.Name(res)+`"`)
	w.Header().Set("X-Batch-ID", res.BatchID)
	w.Header().Set("X-Failures", strconv.Itoa(len(res.Failures)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(zipped)
}

func (s *Server) handleGenerateOne(w http.ResponseWriter, r *http.Request) {
	text, err := textParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := newQuery(r.URL.Query())
	spec := pipeline.KeycapSpec{
		ID:        pipeline.ID(q.str("id", "1")),
		Text:      text,
		SizeMm:    q.float("size"),
		DepthMm:   q.float("depth"),
		OffsetXMm: deref(q.float("offset_x")),
		OffsetYMm: deref(q.float("offset_y")),
	}
	req := pipeline.Request{
		Font:     q.str("font", ""),
		Machine:  template.Machine(q.str("machine", "")),
		Keycaps:  []pipeline.KeycapSpec{spec},
		Mode:     solid.Mode(q.str("mode", "")),
		Face:     solid.Face(q.str("face", "")),
		Scale:    layout.ScaleMode(q.str("scale", "")),
		Shaper:   layout.Shaper(q.str("shaper", "")),
		Overflow: layout.Overflow(q.str("overflow", "")),
		Kerning:  q.bool("kerning"),
		Timeout:  s.Options.BatchTimeout,
	}
	if q.err != nil {
		writeError(w, r, q.err)
		return
	}

	res, err := s.Runner.Execute(r.Context(), req)
	if err != nil {
		// A lone keycap with bad parameters reports its own error code.
		if errors.Is(err, errors.ErrCodeInvalidInput) {
			if cause := stderrors.Unwrap(err); errors.GetCode(cause) != "" {
				err = cause
			}
		}
		writeError(w, r, err)
		return
	}
	if len(res.Failures) > 0 {
		f := res.Failures[0]
		writeError(w, r, errors.New(f.Kind, "%s", f.Message))
		return
	}
	a := res.Artifacts[0]
	w.Header().Set("Content-Type", "model/stl")
	w.Header().Set("Content-Disposition", `attachment; filename="`+a.Filename+`"`)
	w.Header().Set("X-Batch-ID", res.BatchID)
	w.Header().Set("X-Triangles", strconv.Itoa(a.Triangles))
	if a.Fallback {
		w.Header().Set("X-Fallback", "true")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Data)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	text, err := textParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := errors.ValidateKeycapText(text); err != nil {
		writeError(w, r, err)
		return
	}
	q := newQuery(r.URL.Query())
	size := q.float("size")
	face := solid.Face(q.str("face", string(solid.FaceTop)))
	machine := template.Machine(q.str("machine", ""))
	opts := layout.Options{
		SizeMm:    pipeline.DefaultSizeMm,
		OffsetXMm: deref(q.float("offset_x")),
		OffsetYMm: deref(q.float("offset_y")),
		Scale:     layout.ScaleMode(q.str("scale", "")),
		Shaper:    layout.Shaper(q.str("shaper", "")),
		Overflow:  layout.Overflow(q.str("overflow", "")),
		Kerning:   q.bool("kerning"),
	}
	px := int(q.intv("px", preview.DefaultSize))
	fontID := q.str("font", "")
	if q.err != nil {
		writeError(w, r, q.err)
		return
	}
	if size != nil {
		opts.SizeMm = *size
	}
	b := s.Runner.Bounds
	if err := errors.ValidateRange("size", opts.SizeMm, b.SizeMinMm, b.SizeMaxMm); err != nil {
		writeError(w, r, err)
		return
	}
	if !solid.ValidFaces[face] {
		writeError(w, r, errors.New(errors.ErrCodeInvalidConfig, "invalid face: %q", face))
		return
	}

	font, err := s.Runner.LoadFont(r.Context(), fontID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tpl, err := s.Runner.LoadTemplate(machine)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if opts.Center, err = tpl.FaceCenter(face); err != nil {
		writeError(w, r, err)
		return
	}
	bounds, err := tpl.FaceBounds(face)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if opts.Fit, err = tpl.FaceRegion(face); err != nil {
		writeError(w, r, err)
		return
	}
	lay, err := layout.Layout(font, text, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := preview.PNG(w, lay.Shape, preview.Options{Size: px, Face: bounds}); err != nil {
		writeError(w, r, err)
	}
}

func textParam(r *http.Request) (string, error) {
	text, err := url.PathUnescape(chi.URLParam(r, "text"))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidText, err, "bad text")
	}
	return text, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
