// Package handlers provides HTTP handlers for multilateral imputation.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/climate-finance/engine/internal/domain"
	"github.com/climate-finance/engine/internal/modules/imputation"
	"github.com/climate-finance/engine/internal/modules/methodology"
	"github.com/climate-finance/engine/internal/modules/runs"
)

// RunStore stores imputed datasets
type RunStore interface {
	Create(ctx context.Context, run *runs.Run) error
}

// Handler handles imputation HTTP requests
type Handler struct {
	calculator *imputation.Calculator
	store      RunStore
	log        zerolog.Logger
}

// NewHandler creates a new imputation handler
func NewHandler(calculator *imputation.Calculator, store RunStore, log zerolog.Logger) *Handler {
	return &Handler{
		calculator: calculator,
		store:      store,
		log:        log.With().Str("handler", "imputations").Logger(),
	}
}

// ImputeRequest represents a request to impute multilateral climate finance
type ImputeRequest struct {
	methodology.Params
	RollingWindow int                       `json:"rolling_window"`
	Aggregation   string                    `json:"aggregation,omitempty"`
	Flows         []string                  `json:"flows,omitempty"`
	ShareBy       []string                  `json:"share_by,omitempty"`
	OutputBy      []string                  `json:"output_by,omitempty"`
	Currency      string                    `json:"currency,omitempty"`
	Prices        domain.PriceBasis         `json:"prices"`
	Spending      []domain.Activity         `json:"spending"`
	Contributions []domain.CoreContribution `json:"contributions"`
}

func (req ImputeRequest) toRequest() (imputation.Request, error) {
	flows, err := domain.ParseFlowTypes(req.Flows)
	if err != nil {
		return imputation.Request{}, err
	}

	out := imputation.Request{
		Spending:      req.Spending,
		Contributions: req.Contributions,
		Window:        req.RollingWindow,
		Aggregation:   imputation.Aggregation(req.Aggregation),
		Flows:         flows,
		ShareBy:       req.ShareBy,
		OutputBy:      req.OutputBy,
		Target:        domain.Basis{Currency: req.Currency, Prices: req.Prices},
	}
	if req.Params.Methodology != "" || req.Params.Coefficients != nil || req.Params.HighestMarker != nil {
		m, err := req.Params.Resolve()
		if err != nil {
			return imputation.Request{}, err
		}
		out.Methodology = &m
	}
	return out, nil
}

// HandleImpute handles POST /api/imputations
func (h *Handler) HandleImpute(w http.ResponseWriter, r *http.Request) {
	req, result, ok := h.impute(w, r)
	if !ok {
		return
	}

	rows := make([]domain.OutputRecord, 0, len(result.Records))
	for _, rec := range result.Records {
		rows = append(rows, rec.Row())
	}

	applied := h.calculator.Methodology()
	if req.Methodology != nil {
		applied = *req.Methodology
	}
	params, _ := json.Marshal(map[string]interface{}{
		"rolling_window": req.Window,
		"aggregation":    req.Aggregation,
		"flows":          req.Flows,
		"share_by":       req.ShareBy,
		"output_by":      req.OutputBy,
		"target":         req.Target,
		"methodology":    applied,
	})
	run := &runs.Run{
		Kind:        runs.KindImputation,
		View:        string(domain.SourceImputation),
		Methodology: applied.Name,
		Parameters:  params,
		Records:     rows,
		Warnings:    result.Warnings,
	}
	if err := h.store.Create(r.Context(), run); err != nil {
		h.log.Error().Err(err).Msg("Failed to store run")
		http.Error(w, "Failed to store run", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"run_id":   run.ID,
			"records":  result.Records,
			"coverage": result.Coverage,
			"warnings": result.Warnings,
		},
		"metadata": map[string]interface{}{
			"timestamp":   time.Now().Format(time.RFC3339),
			"methodology": applied,
			"warnings":    result.Warnings.ByCode(),
		},
	})
}

// HandleShares handles POST /api/imputations/shares
func (h *Handler) HandleShares(w http.ResponseWriter, r *http.Request) {
	_, result, ok := h.impute(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"shares":   result.Shares,
			"coverage": result.Coverage.Spending,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(result.Shares),
			"warnings":  result.Warnings.ByCode(),
		},
	})
}

func (h *Handler) impute(w http.ResponseWriter, r *http.Request) (imputation.Request, imputation.Result, bool) {
	var body ImputeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return imputation.Request{}, imputation.Result{}, false
	}

	req, err := body.toRequest()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return imputation.Request{}, imputation.Result{}, false
	}

	result, err := h.calculator.Impute(r.Context(), req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			h.log.Warn().Err(err).Msg("Imputation cancelled")
			http.Error(w, "Request cancelled", http.StatusServiceUnavailable)
			return imputation.Request{}, imputation.Result{}, false
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return imputation.Request{}, imputation.Result{}, false
	}
	return req, result, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
