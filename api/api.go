// Package api serves the engine over a JSON HTTP interface.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tikz/localrmsd/align"
	"github.com/tikz/localrmsd/chart"
	"github.com/tikz/localrmsd/store"
	"github.com/tikz/localrmsd/uniprot"
)

const maxBodySize = 1 << 20

type Handler struct {
	Engine  *align.Engine
	Store   *store.Store    // nil disables the run endpoints and saving
	UniProt *uniprot.Client // nil disables the UniProt endpoint
	Logger  *slog.Logger
}

func NewHandler(engine *align.Engine, st *store.Store, unp *uniprot.Client) *Handler {
	return &Handler{Engine: engine, Store: st, UniProt: unp, Logger: slog.Default()}
}

// NewRouter returns the API router with logging, recovery and CORS for
// the given origins.
func NewRouter(h *Handler, origins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)

	r.Post("/api/rmsd", h.LocalRMSD)
	r.Post("/api/align", h.Align)

	r.Get("/api/runs", h.ListRuns)
	r.Get("/api/runs/{id}", h.GetRun)
	r.Get("/api/runs/{id}/plot.png", h.RunPlot)

	r.Get("/api/uniprot/{accession}/structures", h.Structures)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

// rmsdRequest is a local RMSD request. OnIncompatible is "abort" (the
// default) or "continue"; the API never asks.
type rmsdRequest struct {
	align.LocalRequest
	OnIncompatible string `json:"onIncompatible,omitempty"`
	Save           bool   `json:"save,omitempty"`
}

type rmsdResponse struct {
	*align.LocalResult
	RunID string `json:"runId,omitempty"`
}

// LocalRMSD runs a local RMSD analysis. A cancelled analysis answers 200
// with outcome "cancelled" and no series.
func (h *Handler) LocalRMSD(w http.ResponseWriter, r *http.Request) {
	var req rmsdRequest
	if !decode(w, r, &req) {
		return
	}
	if req.A == "" || req.B == "" {
		writeError(w, http.StatusBadRequest, "both structures are required")
		return
	}

	policy := align.Abort
	if req.OnIncompatible != "" {
		p, err := align.ParsePolicy(req.OnIncompatible)
		if err != nil || p == align.AskCaller {
			writeError(w, http.StatusBadRequest, "onIncompatible must be abort or continue")
			return
		}
		policy = p
	}

	eng := *h.Engine
	eng.Policy = policy
	eng.Confirm = nil

	res, err := eng.AnalyzeLocalRMSD(r.Context(), req.LocalRequest)
	if err != nil {
		h.engineError(w, r, err)
		return
	}

	resp := rmsdResponse{LocalResult: res}
	if req.Save && h.Store != nil && res.Outcome == align.Completed {
		run, err := h.Store.Save(r.Context(), res)
		if err != nil {
			h.Logger.Error("save run", "a", res.A, "b", res.B, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save run")
			return
		}
		resp.RunID = run.ID
	}

	writeJSON(w, http.StatusOK, resp)
}

type alignResponse struct {
	*align.DisplayResult
	PDB string `json:"pdb"`
}

// Align superposes structure b onto a and returns b's moved coordinates as
// PDB text. With ?format=pdb the PDB text is the whole response.
func (h *Handler) Align(w http.ResponseWriter, r *http.Request) {
	var req align.DisplayRequest
	if !decode(w, r, &req) {
		return
	}
	if req.A == "" || req.B == "" {
		writeError(w, http.StatusBadRequest, "both structures are required")
		return
	}

	res, err := h.Engine.AlignForDisplay(r.Context(), req)
	if err != nil {
		h.engineError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := res.Transformed.Write(&buf, ""); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to write structure")
		return
	}

	if r.URL.Query().Get("format") == "pdb" {
		w.Header().Set("Content-Type", "chemical/x-pdb")
		w.Write(buf.Bytes())
		return
	}

	writeJSON(w, http.StatusOK, alignResponse{DisplayResult: res, PDB: buf.String()})
}

// ListRuns returns stored runs, newest first, optionally filtered by
// ?structure= and bounded by ?limit=.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.hasStore(w) {
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.Store.List(r.Context(), r.URL.Query().Get("structure"), limit)
	if err != nil {
		h.Logger.Error("list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	// The listing leaves the series out.
	for _, run := range runs {
		run.Series = nil
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// RunPlot renders the local RMSD chart of a stored run.
func (h *Handler) RunPlot(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}

	c := chart.Chart{A: run.A, B: run.B, ChainA: run.ChainA, ChainB: run.ChainB, Window: run.Window, Series: run.Series}
	var buf bytes.Buffer
	if err := c.WritePNG(&buf); err != nil {
		h.Logger.Error("render plot", "run", run.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to render plot")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) (*store.Run, bool) {
	if !h.hasStore(w) {
		return nil, false
	}

	run, err := h.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	if err != nil {
		h.Logger.Error("get run", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read run")
		return nil, false
	}
	return run, true
}

type structuresResponse struct {
	Accession string        `json:"accession"`
	Name      string        `json:"name"`
	Protein   string        `json:"protein"`
	Organism  string        `json:"organism"`
	PDBs      []uniprot.PDB `json:"pdbs"`
	Best      []uniprot.PDB `json:"best"`
}

// Structures lists the PDB entries cross referenced by a UniProt entry,
// together with the SIFTS best structures for it.
func (h *Handler) Structures(w http.ResponseWriter, r *http.Request) {
	if h.UniProt == nil {
		writeError(w, http.StatusNotImplemented, "UniProt lookups are disabled")
		return
	}

	acc := chi.URLParam(r, "accession")
	if !uniprot.IsAccession(acc) {
		writeError(w, http.StatusBadRequest, "invalid UniProt accession: "+acc)
		return
	}

	entry, err := h.UniProt.Entry(r.Context(), acc)
	if errors.Is(err, uniprot.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.Logger.Error("uniprot entry", "accession", acc, "error", err)
		writeError(w, http.StatusBadGateway, "UniProt lookup failed")
		return
	}

	best, err := h.UniProt.BestStructures(r.Context(), acc)
	if err != nil {
		h.Logger.Warn("best structures", "accession", acc, "error", err)
	}

	writeJSON(w, http.StatusOK, structuresResponse{
		Accession: entry.ID,
		Name:      entry.Name,
		Protein:   entry.Protein,
		Organism:  entry.Organism,
		PDBs:      entry.PDBs,
		Best:      best,
	})
}

func (h *Handler) hasStore(w http.ResponseWriter) bool {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "run history is disabled")
		return false
	}
	return true
}

// engineError answers with the status matching the error kind.
func (h *Handler) engineError(w http.ResponseWriter, r *http.Request, err error) {
	kind := align.Classify(err)

	var status int
	switch kind {
	case align.KindBadInput:
		status = http.StatusUnprocessableEntity
	case align.KindMissingData:
		status = http.StatusNotFound
	case align.KindCanceled:
		status = http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
	default:
		status = http.StatusInternalServerError
		h.Logger.Error("engine failure", "path", r.URL.Path, "error", err)
	}

	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": kind.String()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
