package http

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ctgenie/cases"
	"ctgenie/db"
	"ctgenie/guidelines"
	"ctgenie/llm"
	"ctgenie/ml"
	"ctgenie/monitoring"
)

const (
	serviceName    = "CTGenie API"
	serviceVersion = "1.0.0"

	predictShapTopK    = 10
	predictSimilarTopK = 3
	defaultTopK        = 5
	defaultRecentLimit = 20
	maxRecentLimit     = 500
	defaultBaseline    = 140.0
)

// Explainer produces the LLM texts for /explain.
type Explainer interface {
	Configured() bool
	Explain(ctx context.Context, evidence *llm.Evidence) (*llm.Explanation, error)
}

// AuditLog records served predictions. SavePrediction is called on the request
// path and must not wait on storage; db.Recorder queues the write.
type AuditLog interface {
	SavePrediction(ctx context.Context, requestID string, features ml.FeatureVector, prediction *ml.Prediction) error
	RecentPredictions(ctx context.Context, limit int) ([]db.PredictionRecord, error)
}

// Streamer serves the telemetry websocket.
type Streamer interface {
	ServeStream(w http.ResponseWriter, r *http.Request, caseID string, baseline float64, seed int64)
}

// Options wires the handlers. Only Predictor is required; a nil collaborator turns
// its endpoints into 503s.
type Options struct {
	Predictor  ml.Predictor
	Cases      *cases.Store
	Guidelines *guidelines.Library
	Explainer  Explainer
	Audit      AuditLog
	Stream     Streamer
	Metrics    *monitoring.Collector
	Stale      func() bool
	Logger     *zap.Logger
}

type Handlers struct {
	predictor  ml.Predictor
	cases      *cases.Store
	guidelines *guidelines.Library
	explainer  Explainer
	audit      AuditLog
	stream     Streamer
	metrics    *monitoring.Collector
	stale      func() bool
	logger     *zap.Logger
}

func NewHandlers(opts Options) *Handlers {
	h := &Handlers{
		predictor:  opts.Predictor,
		cases:      opts.Cases,
		guidelines: opts.Guidelines,
		explainer:  opts.Explainer,
		audit:      opts.Audit,
		stream:     opts.Stream,
		metrics:    opts.Metrics,
		stale:      opts.Stale,
		logger:     opts.Logger,
	}
	if h.cases == nil {
		h.cases = cases.NewStore(nil, nil)
	}
	if h.stale == nil {
		h.stale = func() bool { return false }
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleHealth)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("POST /similar-cases", h.handleSimilarCases)
	mux.HandleFunc("GET /guidelines/{topic}", h.handleGuidelines)
	mux.HandleFunc("GET /intervention-algorithm/{pattern}", h.handleIntervention)
	mux.HandleFunc("POST /explain", h.handleExplain)
	mux.HandleFunc("GET /predictions/recent", h.handleRecentPredictions)
	mux.HandleFunc("GET /ws/telemetry/{case_id}", h.handleTelemetry)
	mux.HandleFunc("GET /metrics", h.handleMetrics)
}

type errorResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
}

type healthResponse struct {
	Service          string       `json:"service"`
	Status           string       `json:"status"`
	Version          string       `json:"version"`
	ModelInfo        ml.ModelInfo `json:"model_info"`
	CasesLoaded      int          `json:"cases_loaded"`
	GuidelinesLoaded bool         `json:"guidelines_loaded"`
	StaleAssets      bool         `json:"stale_assets"`
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Service:          serviceName,
		Status:           "operational",
		Version:          serviceVersion,
		ModelInfo:        h.predictor.ModelInfo(),
		CasesLoaded:      h.cases.Len(),
		GuidelinesLoaded: h.guidelines != nil,
		StaleAssets:      h.stale(),
	})
}

func (h *Handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "metrics are not enabled"})
		return
	}
	respondJSON(w, http.StatusOK, h.metrics.Snapshot())
}

type predictRequest struct {
	CTGFeatures    ml.FeatureVector           `json:"ctg_features"`
	PatientContext *guidelines.PatientContext `json:"patient_context,omitempty"`
}

type predictResponse struct {
	Prediction              int                    `json:"prediction"`
	PredictionLabel         ml.Label               `json:"prediction_label"`
	Confidence              float64                `json:"confidence"`
	Probabilities           map[string]float64     `json:"probabilities"`
	ShapValues              map[string]float64     `json:"shap_values"`
	SimilarCases            []cases.SimilarCase    `json:"similar_cases"`
	ClinicalRecommendations []string               `json:"clinical_recommendations"`
	Guidelines              []guidelines.Guideline `json:"guidelines"`
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	prediction, err := h.predictor.Predict(ctx, req.CTGFeatures)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	similar, _, err := h.cases.SimilarCases(req.CTGFeatures, predictSimilarTopK)
	if err != nil {
		h.logger.Warn("similar cases lookup failed", zap.String("request_id", GetRequestID(ctx)), zap.Error(err))
		similar = []cases.SimilarCase{}
	}

	if h.audit != nil {
		requestID := GetRequestID(ctx)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		if err := h.audit.SavePrediction(ctx, requestID, req.CTGFeatures, prediction); err != nil {
			h.logger.Warn("audit log write failed", zap.String("request_id", requestID), zap.Error(err))
		}
	}

	h.metrics.ObservePrediction(prediction.Label.String())

	probabilities := make(map[string]float64, len(prediction.Probabilities))
	for name, p := range prediction.Probabilities {
		probabilities[name] = round3(p)
	}
	respondJSON(w, http.StatusOK, predictResponse{
		Prediction:              prediction.ClassIndex,
		PredictionLabel:         prediction.Label,
		Confidence:              prediction.Confidence,
		Probabilities:           probabilities,
		ShapValues:              ml.TopAttributionMap(prediction.Attributions, predictShapTopK),
		SimilarCases:            similar,
		ClinicalRecommendations: guidelines.Recommend(prediction.Label, req.CTGFeatures, req.PatientContext),
		Guidelines:              h.guidelines.Relevant(prediction.Label),
	})
}

type similarRequest struct {
	CTGFeatures ml.FeatureVector `json:"ctg_features"`
	TopK        *int             `json:"top_k,omitempty"`
}

type similarResponse struct {
	Query        ml.FeatureVector    `json:"query"`
	SimilarCases []cases.SimilarCase `json:"similar_cases"`
	CasesSummary string              `json:"cases_summary"`
	Count        int                 `json:"count"`
}

func (h *Handlers) handleSimilarCases(w http.ResponseWriter, r *http.Request) {
	var req similarRequest
	if !h.decode(w, r, &req) {
		return
	}
	similar, summary, err := h.cases.SimilarCases(req.CTGFeatures, topKOrDefault(req.TopK))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, similarResponse{
		Query:        req.CTGFeatures,
		SimilarCases: similar,
		CasesSummary: summary,
		Count:        len(similar),
	})
}

type guidelinesResponse struct {
	Category   string                 `json:"category"`
	Guidelines []guidelines.Guideline `json:"guidelines"`
	Source     string                 `json:"source"`
}

func (h *Handlers) handleGuidelines(w http.ResponseWriter, r *http.Request) {
	if h.guidelines == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "guidelines not loaded"})
		return
	}
	topic := r.PathValue("topic")
	found, err := h.guidelines.ByCategory(topic)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, guidelinesResponse{
		Category:   topic,
		Guidelines: found,
		Source:     h.guidelines.Source(),
	})
}

func (h *Handlers) handleIntervention(w http.ResponseWriter, r *http.Request) {
	if h.guidelines == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "guidelines not loaded"})
		return
	}
	algorithm, err := h.guidelines.Intervention(r.PathValue("pattern"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, algorithm)
}

type explainRequest struct {
	CTGFeatures ml.FeatureVector `json:"ctg_features"`
	TopK        *int             `json:"top_k,omitempty"`
}

type explainResponse struct {
	PredictionLabel ml.Label      `json:"prediction_label"`
	Confidence      float64       `json:"confidence"`
	Evidence        *llm.Evidence `json:"evidence"`
	ParentText      string        `json:"parent_text"`
	DoctorText      string        `json:"doctor_text"`
}

func (h *Handlers) handleExplain(w http.ResponseWriter, r *http.Request) {
	if h.explainer == nil || !h.explainer.Configured() {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: llm.ErrNotConfigured.Error()})
		return
	}
	var req explainRequest
	if !h.decode(w, r, &req) {
		return
	}
	topK := topKOrDefault(req.TopK)
	if topK < 1 {
		h.fail(w, r, &ml.InvalidInputError{Reason: "top_k must be at least 1, got " + strconv.Itoa(topK)})
		return
	}
	ctx := r.Context()

	prediction, err := h.predictor.Predict(ctx, req.CTGFeatures)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	info := h.predictor.ModelInfo()
	evidence, err := llm.BuildEvidence(prediction.Label.String(), prediction.Attributions, req.CTGFeatures, topK,
		llm.Glossary, llm.RefRanges, &llm.ModelCard{Name: info.ModelType, Version: info.Version})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	explanation, err := h.explainer.Explain(ctx, evidence)
	switch {
	case err == nil:
	case errors.Is(err, llm.ErrNotConfigured), errors.Is(err, context.DeadlineExceeded):
		h.fail(w, r, err)
		return
	default:
		h.logger.Warn("explanation failed", zap.String("request_id", GetRequestID(ctx)), zap.Error(err))
		respondJSON(w, http.StatusBadGateway, errorResponse{Error: "explanation service failed"})
		return
	}
	respondJSON(w, http.StatusOK, explainResponse{
		PredictionLabel: prediction.Label,
		Confidence:      prediction.Confidence,
		Evidence:        evidence,
		ParentText:      explanation.ParentText,
		DoctorText:      explanation.DoctorText,
	})
}

type recentResponse struct {
	Predictions []db.PredictionRecord `json:"predictions"`
	Count       int                   `json:"count"`
}

func (h *Handlers) handleRecentPredictions(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "audit log disabled"})
		return
	}
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l < 1 {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(l, maxRecentLimit)
	}
	records, err := h.audit.RecentPredictions(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, recentResponse{Predictions: records, Count: len(records)})
}

// handleTelemetry picks the trace baseline from the case's LB, then ?baseline=, then 140.
func (h *Handlers) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "telemetry disabled"})
		return
	}
	caseID := r.PathValue("case_id")
	baseline := defaultBaseline
	if record, ok := h.cases.Case(caseID); ok && record.CTGFeatures["LB"] > 0 {
		baseline = record.CTGFeatures["LB"]
	} else if raw := r.URL.Query().Get("baseline"); raw != "" {
		b, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(b) || math.IsInf(b, 0) || b <= 0 {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "baseline must be a positive number"})
			return
		}
		baseline = b
	}
	h.stream.ServeStream(w, r, caseID, baseline, caseSeed(caseID))
}

// caseSeed makes a case's simulated trace the same on every connection.
func caseSeed(caseID string) int64 {
	hash := fnv.New64a()
	hash.Write([]byte(caseID))
	return int64(hash.Sum64() >> 1)
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return false
		}
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// fail maps domain errors onto status codes. Anything unrecognised is a 500 and
// its detail stays in the log.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *ml.InvalidInputError
	switch {
	case errors.As(err, &invalid):
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Missing: invalid.Missing})
	case errors.Is(err, guidelines.ErrInvalidPattern):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, guidelines.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, llm.ErrNotConfigured):
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		respondJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "request timeout"})
	default:
		h.logger.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func topKOrDefault(topK *int) int {
	if topK == nil {
		return defaultTopK
	}
	return *topK
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
