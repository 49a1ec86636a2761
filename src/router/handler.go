package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jiaming2012/tick-analytics/src/alerts"
	"github.com/jiaming2012/tick-analytics/src/metrics"
	"github.com/jiaming2012/tick-analytics/src/models"
	"github.com/jiaming2012/tick-analytics/src/persistence"
)

const (
	defaultPriceHistory = 100
	maxPriceHistory     = 1000
	defaultHistoryLimit = 100
	defaultLookbackHrs  = 24
)

type AnalyticsReader interface {
	Latest(symbol string) (*models.MetricsSnapshot, bool)
	LatestAll() []*models.MetricsSnapshot
	CorrelationMatrix() models.CorrelationMatrix
	Clusters() models.Clusters
	PriceHistory(symbol string, n int) (models.PriceHistory, error)
	Windows(symbol string) []models.Window
}

type StatusProvider interface {
	Status() models.FeedStatus
}

type Backtester interface {
	Backtest(ctx context.Context, symbol string, from, to time.Time) (*models.BacktestResult, error)
}

type SnapshotQuerier interface {
	QuerySnapshots(ctx context.Context, symbol string, from, to time.Time) ([]*models.MetricsSnapshot, error)
}

type Handler struct {
	Analytics AnalyticsReader
	Status    StatusProvider
	Rules     *alerts.Service
	Backtests Backtester
	Snapshots SnapshotQuerier
	Now       func() time.Time
}

// SetupHandler registers the read surface on router.
func SetupHandler(router *mux.Router, h *Handler) {
	if h.Now == nil {
		h.Now = time.Now
	}

	// handleFunc enriches the handler's HTTP instrumentation with the pattern as the http.route.
	handleFunc := func(pattern string, handlerFunc func(http.ResponseWriter, *http.Request), methods ...string) {
		handler := otelhttp.WithRouteTag(pattern, http.HandlerFunc(handlerFunc))
		router.Handle(pattern, handler).Methods(methods...)
	}

	handleFunc("/health", h.handleHealth, http.MethodGet)
	handleFunc("/status", h.handleStatus, http.MethodGet)
	handleFunc("/analytics", h.handleAnalytics, http.MethodGet)
	handleFunc("/analytics/{symbol}", h.handleAnalyticsSymbol, http.MethodGet)
	handleFunc("/price-history/{symbol}", h.handlePriceHistory, http.MethodGet)
	handleFunc("/windows/{symbol}", h.handleWindows, http.MethodGet)
	handleFunc("/correlations", h.handleCorrelations, http.MethodGet)
	handleFunc("/clustering", h.handleClustering, http.MethodGet)
	handleFunc("/backtest/{symbol}", h.handleBacktest, http.MethodGet)
	handleFunc("/alerts/rules", h.handleListRules, http.MethodGet)
	handleFunc("/alerts/rules", h.handleCreateRule, http.MethodPost)
	handleFunc("/alerts/rules/{id}", h.handleGetRule, http.MethodGet)
	handleFunc("/alerts/rules/{id}", h.handleUpdateRule, http.MethodPut)
	handleFunc("/alerts/rules/{id}", h.handlePatchRule, http.MethodPatch)
	handleFunc("/alerts/rules/{id}", h.handleDeleteRule, http.MethodDelete)
	handleFunc("/alerts/history", h.handleAlertHistory, http.MethodGet)
	handleFunc("/export/csv", h.handleExportCSV, http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeResponse("handleHealth", map[string]interface{}{
		"status":    "ok",
		"timestamp": h.Now().UTC(),
	}, w)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeResponse("handleStatus", h.Status.Status(), w)
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	writeResponse("handleAnalytics", h.Analytics.LatestAll(), w)
}

func (h *Handler) handleAnalyticsSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := symbolVar(r)

	snap, ok := h.Analytics.Latest(symbol)
	if !ok {
		writeError("handleAnalyticsSymbol", fmt.Errorf("no analytics for %s: %w", symbol, models.InsufficientDataErr), w)
		return
	}

	writeResponse("handleAnalyticsSymbol", snap, w)
}

func (h *Handler) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r, "limit", defaultPriceHistory)
	if err != nil {
		setErrorResponse("handlePriceHistory", http.StatusBadRequest, err, w)
		return
	}

	if n > maxPriceHistory {
		n = maxPriceHistory
	}

	history, err := h.Analytics.PriceHistory(symbolVar(r), n)
	if err != nil {
		writeError("handlePriceHistory", err, w)
		return
	}

	writeResponse("handlePriceHistory", history, w)
}

func (h *Handler) handleWindows(w http.ResponseWriter, r *http.Request) {
	symbol := symbolVar(r)

	windows := h.Analytics.Windows(symbol)
	if len(windows) == 0 {
		writeError("handleWindows", fmt.Errorf("no windows for %s: %w", symbol, models.InsufficientDataErr), w)
		return
	}

	writeResponse("handleWindows", windows, w)
}

func (h *Handler) handleCorrelations(w http.ResponseWriter, r *http.Request) {
	writeResponse("handleCorrelations", h.Analytics.CorrelationMatrix(), w)
}

func (h *Handler) handleClustering(w http.ResponseWriter, r *http.Request) {
	writeResponse("handleClustering", h.Analytics.Clusters(), w)
}

func (h *Handler) handleBacktest(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.timeRange(r)
	if err != nil {
		setErrorResponse("handleBacktest", http.StatusBadRequest, err, w)
		return
	}

	result, err := h.Backtests.Backtest(r.Context(), symbolVar(r), from, to)
	if err != nil {
		writeError("handleBacktest", err, w)
		return
	}

	writeResponse("handleBacktest", result, w)
}

func (h *Handler) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Rules.ListRules(r.Context())
	if err != nil {
		writeError("handleListRules", err, w)
		return
	}

	writeResponse("handleListRules", map[string]interface{}{
		"count": len(rules),
		"rules": rules,
	}, w)
}

func (h *Handler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req models.AlertRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		setErrorResponse("handleCreateRule", http.StatusBadRequest, fmt.Errorf("invalid body: %w", err), w)
		return
	}

	rule, err := h.Rules.CreateRule(r.Context(), &req)
	if err != nil {
		writeError("handleCreateRule", err, w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(rule); err != nil {
		log.Errorf("handleCreateRule: encode: %v", err)
	}
}

func (h *Handler) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, err := idVar(r)
	if err != nil {
		setErrorResponse("handleGetRule", http.StatusBadRequest, err, w)
		return
	}

	rule, err := h.Rules.GetRule(r.Context(), id)
	if err != nil {
		writeError("handleGetRule", err, w)
		return
	}

	writeResponse("handleGetRule", rule, w)
}

func (h *Handler) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := idVar(r)
	if err != nil {
		setErrorResponse("handleUpdateRule", http.StatusBadRequest, err, w)
		return
	}

	var req models.AlertRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		setErrorResponse("handleUpdateRule", http.StatusBadRequest, fmt.Errorf("invalid body: %w", err), w)
		return
	}

	rule, err := h.Rules.UpdateRule(r.Context(), id, &req)
	if err != nil {
		writeError("handleUpdateRule", err, w)
		return
	}

	writeResponse("handleUpdateRule", rule, w)
}

type patchRuleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *Handler) handlePatchRule(w http.ResponseWriter, r *http.Request) {
	id, err := idVar(r)
	if err != nil {
		setErrorResponse("handlePatchRule", http.StatusBadRequest, err, w)
		return
	}

	var req patchRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		setErrorResponse("handlePatchRule", http.StatusBadRequest, fmt.Errorf("body must set enabled"), w)
		return
	}

	rule, err := h.Rules.SetEnabled(r.Context(), id, *req.Enabled)
	if err != nil {
		writeError("handlePatchRule", err, w)
		return
	}

	writeResponse("handlePatchRule", rule, w)
}

func (h *Handler) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := idVar(r)
	if err != nil {
		setErrorResponse("handleDeleteRule", http.StatusBadRequest, err, w)
		return
	}

	if err := h.Rules.DeleteRule(r.Context(), id); err != nil {
		writeError("handleDeleteRule", err, w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultHistoryLimit)
	if err != nil {
		setErrorResponse("handleAlertHistory", http.StatusBadRequest, err, w)
		return
	}

	writeResponse("handleAlertHistory", h.Rules.History(limit), w)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if symbol == "" {
		setErrorResponse("handleExportCSV", http.StatusBadRequest, fmt.Errorf("symbol is required"), w)
		return
	}

	from, to, err := h.timeRange(r)
	if err != nil {
		setErrorResponse("handleExportCSV", http.StatusBadRequest, err, w)
		return
	}

	snapshots, err := h.Snapshots.QuerySnapshots(r.Context(), symbol, from, to)
	if err != nil {
		writeError("handleExportCSV", err, w)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s_%s.csv", symbol, to.Format("20060102T150405")))
	if err := persistence.ExportSnapshotsCSV(snapshots, w); err != nil {
		log.Errorf("handleExportCSV: %v", err)
	}
}

func symbolVar(r *http.Request) string {
	return strings.ToUpper(mux.Vars(r)["symbol"])
}

func idVar(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid rule id: %w", err)
	}

	return id, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}

	return n, nil
}

// timeRange reads from/to as RFC3339, or hours back from now (default 24).
func (h *Handler) timeRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	to := h.Now().UTC()

	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("to: %w", err)
		}
		to = t
	}

	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("from: %w", err)
		}

		if !from.Before(to) {
			return time.Time{}, time.Time{}, fmt.Errorf("from must be before to")
		}
		return from, to, nil
	}

	hours, err := intParam(r, "hours", defaultLookbackHrs)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	return to.Add(-time.Duration(hours) * time.Hour), to, nil
}
