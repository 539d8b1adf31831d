package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/liamcoop/irrigation/advisor"
	"github.com/liamcoop/irrigation/internal/app"
	"github.com/liamcoop/irrigation/internal/logger"
	"github.com/liamcoop/irrigation/irrigation"
	"github.com/liamcoop/irrigation/notify"
	"github.com/liamcoop/irrigation/rules"
	"github.com/liamcoop/irrigation/rulesets"
)

// maxBatchBytes caps uploaded batch files
const maxBatchBytes = 10 << 20

type Server struct {
	app    *app.App
	router *chi.Mux
}

func NewServer(a *app.App) *Server {
	s := &Server{app: a}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.app.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.app.Config.RequestTimeout))

	r.Get("/api/v1/health", s.handleHealth)
	r.Handle("/metrics", s.app.Metrics.Handler())

	// Decisions
	r.Post("/api/v1/decide", s.handleDecide)
	r.Post("/api/v1/batch", s.handleBatch)
	r.Get("/api/v1/model", s.handleModel)

	// Catalog
	r.Get("/api/v1/crops", s.handleCrops)
	r.Get("/api/v1/regions", s.handleRegions)

	// Rule management
	r.Route("/api/v1/rulesets", func(r chi.Router) {
		r.Get("/", s.handleListRuleSets)

		r.Route("/{set}/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)
			r.Get("/{ruleId}", s.handleGetRule)
			r.Put("/{ruleId}", s.handleUpdateRule)
			r.Delete("/{ruleId}", s.handleDeleteRule)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.app.DB != nil {
		if err := s.app.DB.PingContext(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "unhealthy", err)
			return
		}
	}

	resp := HealthResponse{
		Status:     "healthy",
		RuleSets:   len(s.app.Rules.List()),
		ModelReady: s.app.Model.Ready(),
		Time:       time.Now().UTC(),
	}
	// an open breaker means events are being dropped
	if p, ok := s.app.Publisher().(*notify.MQTTPublisher); ok {
		resp.Publisher = p.BreakerState()
		if resp.Publisher == gobreaker.StateOpen.String() {
			resp.Status = "degraded"
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// language prefers ?lang= over Accept-Language
func language(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return lang
	}
	return r.Header.Get("Accept-Language")
}

// Decision handler
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	modes, err := advisor.ParseModes(req.Mode)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid mode", err)
		return
	}

	startTime := time.Now()
	results, err := s.app.Advisor.DecideAll(r.Context(), req.Query(), modes, language(r))
	if err != nil {
		respondError(w, statusFor(err), "decision failed", err)
		return
	}

	respondJSON(w, http.StatusOK, DecideResponse{
		Results:        results,
		EvaluationTime: time.Since(startTime).String(),
	})
}

// Batch handler. Accepts a raw CSV body or a multipart upload in the
// "file" field and answers with the CSV plus a verdict column.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	mode, err := advisor.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid mode", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBatchBytes)
	var in io.Reader = r.Body

	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			if status := statusFor(err); status == http.StatusRequestEntityTooLarge {
				respondError(w, status, "batch file too large", err)
				return
			}
			respondError(w, http.StatusBadRequest, "missing file upload", err)
			return
		}
		defer file.Close()
		in = file
	}

	var out bytes.Buffer
	rows, err := s.app.Advisor.Batch(r.Context(), in, &out, mode)
	if err != nil {
		respondError(w, statusFor(err), "invalid batch file", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="verdicts.csv"`)
	w.Header().Set("X-Batch-Rows", strconv.Itoa(rows))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Bytes()); err != nil {
		logger.Warn("failed to write batch response", "error", err)
	}
}

// Model metadata handler. Fits the model if nothing has asked for it yet.
func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	m, err := s.app.Model.Model(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "classifier unavailable", err)
		return
	}
	respondJSON(w, http.StatusOK, m.Metadata())
}

func (s *Server) handleCrops(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")
	if region == "" {
		respondJSON(w, http.StatusOK, CropsResponse{Crops: s.app.Catalog.Names()})
		return
	}

	names, ok := s.app.Catalog.CropsFor(region)
	if !ok {
		respondError(w, http.StatusNotFound, "region not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, CropsResponse{Region: region, Crops: names})
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, RegionsResponse{Regions: s.app.Catalog.Regions()})
}

func (s *Server) handleListRuleSets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, RuleSetsResponse{RuleSets: s.app.Rules.List()})
}

// engine resolves the {set} URL parameter, answering 404 itself
func (s *Server) engine(w http.ResponseWriter, r *http.Request) (*rules.Engine, bool) {
	engine, err := s.app.Rules.Engine(chi.URLParam(r, "set"))
	if err != nil {
		respondError(w, http.StatusNotFound, "rule set not found", err)
		return nil, false
	}
	return engine, true
}

// List rules handler, inactive rules included
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(w, r)
	if !ok {
		return
	}

	list, err := engine.Store().List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}

	respondJSON(w, http.StatusOK, RulesListResponse{
		RuleSet: chi.URLParam(r, "set"),
		Rules:   list,
	})
}

// Create rule handler
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(w, r)
	if !ok {
		return
	}

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name == "" || req.Expression == "" || req.Verdict == "" {
		respondError(w, http.StatusBadRequest, "name, expression and verdict are required", nil)
		return
	}

	now := time.Now().UTC()
	rule := &rules.Rule{
		ID:         req.ID,
		Name:       req.Name,
		Expression: req.Expression,
		Verdict:    req.Verdict,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}

	// Add rule (this validates and compiles it)
	if err := engine.AddRule(rule); err != nil {
		respondError(w, statusFor(err), "failed to add rule", err)
		return
	}

	respondJSON(w, http.StatusCreated, rule)
}

// Get rule handler
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(w, r)
	if !ok {
		return
	}

	rule, err := engine.Store().Get(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, statusFor(err), "rule not found", err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

// Update rule handler
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(w, r)
	if !ok {
		return
	}

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	existing, err := engine.Store().Get(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, statusFor(err), "rule not found", err)
		return
	}

	rule := *existing
	if req.Name != "" {
		rule.Name = req.Name
	}
	if req.Expression != "" {
		rule.Expression = req.Expression
	}
	if req.Verdict != "" {
		rule.Verdict = req.Verdict
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
	rule.UpdatedAt = time.Now().UTC()

	if err := engine.UpdateRule(&rule); err != nil {
		respondError(w, statusFor(err), "failed to update rule", err)
		return
	}

	respondJSON(w, http.StatusOK, &rule)
}

// Delete rule handler
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(w, r)
	if !ok {
		return
	}

	if err := engine.DeleteRule(chi.URLParam(r, "ruleId")); err != nil {
		respondError(w, statusFor(err), "failed to delete rule", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, irrigation.ErrInvalidInput), errors.Is(err, rules.ErrInvalidRule):
		return http.StatusBadRequest
	case errors.Is(err, rules.ErrRuleNotFound), errors.Is(err, rulesets.ErrSetNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrRuleExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}
