// Package handlers provides HTTP handlers for spending classification and
// source reconciliation.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/climate-finance/engine/internal/domain"
	"github.com/climate-finance/engine/internal/modules/methodology"
	"github.com/climate-finance/engine/internal/modules/reconciliation"
	"github.com/climate-finance/engine/internal/modules/runs"
)

// RunStore stores reconciled datasets
type RunStore interface {
	Create(ctx context.Context, run *runs.Run) error
}

// Handler handles spending HTTP requests
type Handler struct {
	prefs reconciliation.Preferences
	store RunStore
	log   zerolog.Logger
}

// NewHandler creates a new spending handler
func NewHandler(prefs reconciliation.Preferences, store RunStore, log zerolog.Logger) *Handler {
	return &Handler{
		prefs: prefs,
		store: store,
		log:   log.With().Str("handler", "spending").Logger(),
	}
}

// ClassifyRequest represents a request to classify activities
type ClassifyRequest struct {
	methodology.Params
	Activities []domain.Activity `json:"activities"`
}

// ReconcileRequest represents a request to build a spending view
type ReconcileRequest struct {
	methodology.Params
	View        string                 `json:"view"`
	Flows       []string               `json:"flows,omitempty"`
	CRS         []domain.Activity      `json:"crs"`
	CRDF        []domain.Activity      `json:"crdf"`
	Imputations []domain.ImputedRecord `json:"imputations,omitempty"`
}

// HandleClassify handles POST /api/spending/classify
func (h *Handler) HandleClassify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	classifier, err := h.classifier(req.Params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := classifier.Classify(req.Activities)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to classify activities")
		http.Error(w, "Failed to classify activities", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp":   time.Now().Format(time.RFC3339),
			"methodology": classifier.Methodology(),
			"warnings":    result.Warnings.ByCode(),
		},
	})
}

// HandleReconcile handles POST /api/spending/reconcile
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	view, err := reconciliation.ParseSourceView(req.View)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Without a flows list every row is kept, including rows with no flow type
	var flows []domain.FlowType
	if len(req.Flows) > 0 {
		parsed, err := domain.ParseFlowTypes(req.Flows)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		flows = parsed
	}
	classifier, err := h.classifier(req.Params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var opts []reconciliation.Option
	if len(flows) > 0 {
		opts = append(opts, reconciliation.WithFlows(flows...))
	}
	reconciler := reconciliation.NewReconciler(classifier, h.prefs, h.log, opts...)
	result, err := reconciler.Reconcile(view, req.CRS, req.CRDF)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if view == reconciliation.ViewCRDFDonor {
		result.AppendImputations(req.Imputations)
	}

	params, _ := json.Marshal(map[string]interface{}{
		"view":        view,
		"flows":       flows,
		"methodology": result.Methodology,
	})
	run := &runs.Run{
		Kind:        runs.KindReconcile,
		View:        string(view),
		Methodology: result.Methodology.Name,
		Parameters:  params,
		Records:     result.Records,
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
			"view":     result.View,
			"records":  result.Records,
			"coverage": result.Coverage,
			"matches":  result.Matches,
			"warnings": result.Warnings,
		},
		"metadata": map[string]interface{}{
			"timestamp":   time.Now().Format(time.RFC3339),
			"methodology": result.Methodology,
			"warnings":    result.Warnings.ByCode(),
		},
	})
}

func (h *Handler) classifier(params methodology.Params) (*methodology.Classifier, error) {
	m, err := params.Resolve()
	if err != nil {
		return nil, err
	}
	return methodology.NewClassifier(m, h.log)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
