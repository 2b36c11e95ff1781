package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"iam-platform/internal/compare"
	"iam-platform/internal/config"
	"iam-platform/internal/display"
	"iam-platform/internal/models"
	"iam-platform/internal/repository"
	"iam-platform/internal/services"
	"iam-platform/pkg/logging"
	"iam-platform/pkg/metrics"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// IAMHandler handles the comparison API endpoints
type IAMHandler struct {
	queryService       *services.QueryService
	uncertaintyService *services.UncertaintyService
	display            *display.Config
	baseline           string
	sharePairs         []config.SharePair
	logger             *logging.StructuredLogger
	metrics            *metrics.Collector
}

// NewIAMHandler creates a new handler. baseline and sharePairs are the
// defaults used when a request does not name them.
func NewIAMHandler(
	queryService *services.QueryService,
	uncertaintyService *services.UncertaintyService,
	displayConfig *display.Config,
	analysis config.AnalysisConfig,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *IAMHandler {
	if displayConfig == nil {
		displayConfig = display.Default()
	}
	return &IAMHandler{
		queryService:       queryService,
		uncertaintyService: uncertaintyService,
		display:            displayConfig,
		baseline:           analysis.BaselineScenario,
		sharePairs:         analysis.SharePairs,
		logger:             logger,
		metrics:            metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// MissingResponse is a page of rows without a percentage change
type MissingResponse struct {
	PaginatedResponse
	Baseline string                `json:"baseline"`
	Counts   []compare.ReasonCount `json:"counts"`
}

// UncertaintyResponse carries the bands of one variable
type UncertaintyResponse struct {
	Variable string        `json:"variable"`
	Bands    compare.Bands `json:"bands"`
	Misses   []string      `json:"misses,omitempty"`
}

// badRequest marks a query parameter error
type badRequest string

func (e badRequest) Error() string { return string(e) }

// pagination reads page and limit, falling back to the defaults on bad input
func pagination(r *http.Request) (page, limit int) {
	page, limit = 1, defaultLimit
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= maxLimit {
		limit = l
	}
	return page, limit
}

func optString(r *http.Request, name string) *string {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil
	}
	return &v
}

func optInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, badRequest("invalid " + name + ", expected integer")
	}
	return &v, nil
}

// list reads a parameter given either repeated or comma separated
func list(r *http.Request, name string) []string {
	var out []string
	for _, raw := range r.URL.Query()[name] {
		for _, part := range strings.Split(raw, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func observationFilter(r *http.Request) (repository.ObservationFilter, int, error) {
	page, limit := pagination(r)
	year, err := optInt(r, "year")
	if err != nil {
		return repository.ObservationFilter{}, 0, err
	}
	return repository.ObservationFilter{
		Model:    optString(r, "model"),
		Scenario: optString(r, "scenario"),
		Region:   optString(r, "region"),
		Variable: optString(r, "variable"),
		Year:     year,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	}, page, nil
}

func paginated(data interface{}, total, page, limit int) PaginatedResponse {
	return PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}
}

func (h *IAMHandler) observe(endpoint string) func() {
	start := time.Now()
	return func() {
		h.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

// GetObservations handles GET /api/observations
func (h *IAMHandler) GetObservations(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/observations"
	defer h.observe(endpoint)()

	filter, page, err := observationFilter(r)
	if err != nil {
		h.sendFailure(w, r, endpoint, err)
		return
	}

	observations, total, err := h.queryService.GetObservations(r.Context(), filter)
	if err != nil {
		h.sendFailure(w, r, endpoint, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, "GET", "200")
	h.sendJSON(w, paginated(observations, total, page, filter.Limit), http.StatusOK)
}

func (h *IAMHandler) enrichedFilter(r *http.Request) (repository.EnrichedFilter, int, error) {
	of, page, err := observationFilter(r)
	if err != nil {
		return repository.EnrichedFilter{}, 0, err
	}
	baseline := h.baseline
	if b := optString(r, "baseline"); b != nil {
		baseline = *b
	}
	return repository.EnrichedFilter{
		Baseline:          baseline,
		ObservationFilter: of,
		Reason:            optString(r, "reason"),
	}, page, nil
}

// GetDeltas handles GET /api/deltas
func (h *IAMHandler) GetDeltas(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/deltas"
	defer h.observe(endpoint)()

	filter, page, err := h.enrichedFilter(r)
	if err != nil {
		h.sendFailure(w, r, endpoint, err)
		return
	}

	rows, total, err := h.queryService.GetDeltas(r.Context(), filter)
	if err != nil {
		h.sendFailure(w, r, endpoint, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, "GET", "200")
	h.sendJSON(w, paginated(rows, total, page, filter.Limit), http.StatusOK)
}

// GetMissing handles GET /api/deltas/missing
func (h *IAMHandler) GetMissing(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/deltas/missing"
	defer h.observe(endpoint)()

	filter, page, err := h.enrichedFilter(r)
	if err != nil {
		h.sendFailure(w, r, endpoint, err)
		return
	}

	missing, err := h.queryService.GetMissing(r.Context(), filter)
	if err != nil {
		h.sendFailure(w, r, endpoint, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, "GET", "200")
	h.sendJSON(w, MissingResponse{
		PaginatedResponse: paginated(missing.Rows, missing.Total, page, filter.Limit),
		Baseline:          filter.Baseline,
		Counts:            missing.Counts,
	}, http.StatusOK)
}

// sharePair resolves numerator and denominator, defaulting to the first
// configured pair
func (h *IAMHandler) sharePair(r *http.Request) (config.SharePair, error) {
	var pair config.SharePair
	if len(h.sharePairs) > 0 {
		pair = h.sharePairs[0]
	}
	if n := optString(r, "numerator"); n != nil {
		pair.Numerator = *n
	}
	if d := optString(r, "denominator"); d != nil {
		pair.Denominator = *d
	}
	if pair.Numerator == "" || pair.Denominator == "" {
		return pair, badRequest("numerator and denominator are required")
	}
	return pair, nil
}

// GetShares handles GET /api/shares
func (h *IAMHandler) GetShares(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/shares"
	defer h.observe(endpoint)()

	pair, err := h.sharePair(r)
	if err != nil {
		h.sendFailure(w, r, endpoint, err)
		return
	}
	year, err := optInt(r, "year")
	if err != nil {
		h.sendFailure(w, r, endpoint, err)
		return
	}
	page, limit := pagination(r)

	records, total, err := h.queryService.GetShares(r.Context(), repository.ShareFilter{
		Numerator:   pair.Numerator,
		Denominator: pair.Denominator,
		Model:       optString(r, "model"),
		Scenario:    optString(r, "scenario"),
		Region:      optString(r, "region"),
		Year:        year,
		Limit:       limit,
		Offset:      (page - 1) * limit,
	})
	if err != nil {
		h.sendFailure(w, r, endpoint, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, "GET", "200")
	h.sendJSON(w, paginated(records, total, page, limit), http.StatusOK)
}

// GetShareSummary handles GET /api/shares/summary
func (h *IAMHandler) GetShareSummary(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/shares/summary"
	defer h.observe(endpoint)()

	pair, err := h.sharePair(r)
	if err != nil {
		h.sendFailure(w, r, endpoint, err)
		return
	}
	scenario := optString(r, "scenario")
	if scenario == nil {
		h.sendFailure(w, r, endpoint, badRequest("scenario is required"))
		return
	}
	region := "World"
	if reg := optString(r, "region"); reg != nil {
		region = *reg
	}
	var years []int
	for _, raw := range list(r, "years") {
		y, err := strconv.Atoi(raw)
		if err != nil {
			h.sendFailure(w, r, endpoint, badRequest("invalid years, expected comma separated integers"))
			return
		}
		years = append(years, y)
	}

	summary, err := h.queryService.SummarizeShares(r.Context(), pair.Numerator, pair.Denominator, *scenario, region, years)
	if err != nil {
		h.sendFailure(w, r, endpoint, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, "GET", "200")
	h.sendJSON(w, map[string]interface{}{
		"numerator":   pair.Numerator,
		"denominator": pair.Denominator,
		"scenario":    *scenario,
		"region":      region,
		"data":        summary,
	}, http.StatusOK)
}

// GetUncertainty handles GET /api/uncertainty
func (h *IAMHandler) GetUncertainty(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/uncertainty"
	defer h.observe(endpoint)()

	variable := optString(r, "variable")
	scenarios := list(r, "scenario")
	if variable == nil || len(scenarios) == 0 {
		h.sendFailure(w, r, endpoint, badRequest("variable and scenario are required"))
		return
	}
	percentiles := list(r, "percentile")
	if len(percentiles) == 0 {
		percentiles = []string{"5th", "95th"}
	}

	bands, misses, err := h.uncertaintyService.Bands(r.Context(), *variable, scenarios, percentiles)
	if err != nil {
		h.sendFailure(w, r, endpoint, err)
		return
	}
	if len(bands) == 0 && len(misses) > 0 {
		h.sendFailure(w, r, endpoint, misses[0])
		return
	}

	resp := UncertaintyResponse{Variable: *variable, Bands: bands}
	for _, m := range misses {
		resp.Misses = append(resp.Misses, m.Error())
	}

	h.metrics.RecordAPIRequest(endpoint, "GET", "200")
	h.sendJSON(w, resp, http.StatusOK)
}

// GetWhisker handles GET /api/uncertainty/whisker
func (h *IAMHandler) GetWhisker(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/uncertainty/whisker"
	defer h.observe(endpoint)()

	variable, scenario := optString(r, "variable"), optString(r, "scenario")
	year, err := optInt(r, "year")
	if err == nil && (variable == nil || scenario == nil || year == nil) {
		err = badRequest("variable, scenario and year are required")
	}
	if err != nil {
		h.sendFailure(w, r, endpoint, err)
		return
	}

	whisker, err := h.uncertaintyService.Whisker(r.Context(), *variable, *scenario, *year)
	if err != nil {
		h.sendFailure(w, r, endpoint, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, "GET", "200")
	h.sendJSON(w, whisker, http.StatusOK)
}

// GetDisplay handles GET /api/display
func (h *IAMHandler) GetDisplay(w http.ResponseWriter, r *http.Request) {
	h.metrics.RecordAPIRequest("/api/display", "GET", "200")
	h.sendJSON(w, h.display.Tables(), http.StatusOK)
}

// HealthCheck handles GET /health
func (h *IAMHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"database":  "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	if err := h.queryService.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK_FAILED] Database unreachable", logging.Fields{
			"error": err.Error(),
		})
		status["status"] = "unhealthy"
		status["database"] = "unreachable"
		code = http.StatusServiceUnavailable
	}
	if h.uncertaintyService != nil && h.uncertaintyService.Loaded() {
		status["uncertainty"] = "loaded"
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, code)
}

// sendJSON sends a JSON response
func (h *IAMHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendFailure maps err to a status code: bad parameters and schema errors
// are 400, lookup misses and unknown resources 404, anything else 500.
func (h *IAMHandler) sendFailure(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	var (
		bad      badRequest
		notFound *repository.NotFoundError
	)
	switch {
	case errors.As(err, &bad):
		h.metrics.RecordAPIError("bad_request", endpoint)
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
	case models.IsSchemaError(err):
		h.metrics.RecordAPIError("schema_error", endpoint)
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
	case models.IsLookupMiss(err), errors.As(err, &notFound):
		h.metrics.RecordAPIError("not_found", endpoint)
		h.sendError(w, r, err.Error(), http.StatusNotFound)
	default:
		h.logger.Error(r.Context(), "[API_ERROR] Request failed", logging.Fields{
			"endpoint": endpoint,
			"query":    r.URL.RawQuery,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, "failed to process request", http.StatusInternalServerError)
	}
}

// sendError sends an error response
func (h *IAMHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all comparison API routes
func (h *IAMHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/observations", h.GetObservations).Methods("GET")
	router.HandleFunc("/api/deltas", h.GetDeltas).Methods("GET")
	router.HandleFunc("/api/deltas/missing", h.GetMissing).Methods("GET")
	router.HandleFunc("/api/shares", h.GetShares).Methods("GET")
	router.HandleFunc("/api/shares/summary", h.GetShareSummary).Methods("GET")
	router.HandleFunc("/api/uncertainty", h.GetUncertainty).Methods("GET")
	router.HandleFunc("/api/uncertainty/whisker", h.GetWhisker).Methods("GET")
	router.HandleFunc("/api/display", h.GetDisplay).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
