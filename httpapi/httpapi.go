// Package httpapi is the HTTP edge in front of the orchestrator and data
// catalog (spec.md §6): POST /render, POST /data/upload, POST /data/ask.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/deckgen/deckgen/data/catalog"
	"github.com/deckgen/deckgen/internal/telemetry"
	"github.com/deckgen/deckgen/internal/toolerr"
	"github.com/deckgen/deckgen/orchestrator"
)

// defaultImageAspect is used when a request doesn't specify image_aspect,
// so the image generation path (C7) is reachable without per-request wiring.
const defaultImageAspect = "16:9"

// Orchestrator is the narrow capability the edge needs to drive /render and
// /data/ask.
type Orchestrator interface {
	Run(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

// Catalog is the narrow capability the edge needs to drive /data/upload and
// resolve dataset hints for /data/ask.
type Catalog interface {
	Ingest(ctx context.Context, sourceBytes []byte, filename string) (catalog.Dataset, error)
	Resolve(hint string) (string, error)
}

// Server wires the three HTTP endpoints onto a chi.Router.
type Server struct {
	orch    Orchestrator
	catalog Catalog
	log     telemetry.Logger
	router  chi.Router
}

// Option configures a Server.
type Option func(*Server)

func WithTelemetry(log telemetry.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// New builds a Server with its routes mounted.
func New(orch Orchestrator, cat Catalog, opts ...Option) *Server {
	s := &Server{orch: orch, catalog: cat, log: telemetry.NewNoopLogger()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Post("/render", s.handleRender)
	r.Post("/data/upload", s.handleUpload)
	r.Post("/data/ask", s.handleAsk)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type renderRequest struct {
	ReportText  string `json:"report_text"`
	RequestID   string `json:"request_id,omitempty"`
	Slides      int    `json:"slides"`
	UseCache    bool   `json:"use_cache"`
	ImageAspect string `json:"image_aspect,omitempty"`
}

type renderResponse struct {
	OK             bool   `json:"ok"`
	URL            string `json:"url,omitempty"`
	PresentationID string `json:"presentation_id,omitempty"`
	CreatedSlides  int    `json:"created_slides"`
	FirstSlideID   string `json:"first_slide_id,omitempty"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, toolerr.New(toolerr.BadRequest, "invalid JSON body"))
		return
	}
	if req.ReportText == "" {
		writeError(w, toolerr.New(toolerr.BadRequest, "report_text is required"))
		return
	}
	slides := req.Slides
	if slides <= 0 {
		slides = 1
	}
	aspect := req.ImageAspect
	if aspect == "" {
		aspect = defaultImageAspect
	}

	res, err := s.orch.Run(r.Context(), orchestrator.Request{
		ReportText:      req.ReportText,
		ClientRequestID: req.RequestID,
		SlideCount:      slides,
		ImageSize:       aspect,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, renderResponse{
		OK:             res.CreatedSlides > 0,
		URL:            res.URL,
		PresentationID: res.PresentationID,
		CreatedSlides:  res.CreatedSlides,
		FirstSlideID:   res.FirstSlideID,
	})
}

type uploadResponse struct {
	DatasetID string          `json:"dataset_id"`
	Sheets    []catalog.Sheet `json:"sheets"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, toolerr.New(toolerr.BadRequest, "invalid multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, toolerr.New(toolerr.BadRequest, "file field is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, toolerr.Wrap(toolerr.BadRequest, "failed to read uploaded file", err))
		return
	}

	ds, err := s.catalog.Ingest(r.Context(), data, header.Filename)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{DatasetID: ds.DatasetID, Sheets: ds.Sheets})
}

type askRequest struct {
	DatasetID   string   `json:"dataset_id,omitempty"`
	DatasetHint string   `json:"dataset_hint,omitempty"`
	Sheet       string   `json:"sheet,omitempty"`
	Questions   []string `json:"questions"`
	ReportText  string   `json:"report_text"`
	Slides      int      `json:"slides"`
	UseCache    bool     `json:"use_cache"`
	ImageAspect string   `json:"image_aspect,omitempty"`
}

type askResponse struct {
	OK            bool   `json:"ok"`
	URL           string `json:"url,omitempty"`
	DatasetID     string `json:"dataset_id"`
	CreatedSlides int    `json:"created_slides"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, toolerr.New(toolerr.BadRequest, "invalid JSON body"))
		return
	}
	if len(req.Questions) == 0 || req.ReportText == "" {
		writeError(w, toolerr.New(toolerr.BadRequest, "questions and report_text are required"))
		return
	}

	datasetID := req.DatasetID
	if datasetID == "" {
		resolved, err := s.catalog.Resolve(req.DatasetHint)
		if err != nil {
			writeError(w, toolerr.New(toolerr.ResourceMissing, err.Error()))
			return
		}
		datasetID = resolved
	}

	slides := req.Slides
	if slides <= 0 {
		slides = len(req.Questions) + 1
	}
	aspect := req.ImageAspect
	if aspect == "" {
		aspect = defaultImageAspect
	}

	res, err := s.orch.Run(r.Context(), orchestrator.Request{
		ReportText:    req.ReportText,
		SlideCount:    slides,
		DatasetID:     datasetID,
		DataQuestions: req.Questions,
		ImageSize:     aspect,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		OK: res.CreatedSlides > 0, URL: res.URL, DatasetID: datasetID, CreatedSlides: res.CreatedSlides,
	})
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// writeError maps BadRequest to HTTP 400, everything else to 500, with a
// short diagnostic detail free of stack traces (spec.md §7).
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var te *toolerr.Error
	if errors.As(err, &te) && te.Kind == toolerr.BadRequest {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Detail: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
