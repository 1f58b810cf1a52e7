// Package handlers provides HTTP handlers for channel name resolution.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/climate-finance/engine/internal/modules/channels"
)

// Handler handles channel HTTP requests
type Handler struct {
	resolver  *channels.Resolver
	exporter  channels.Exporter
	exportDir string
	log       zerolog.Logger
}

// NewHandler creates a new channels handler. exporter is used for exports
// that do not name a file path and may be nil. File exports are confined to
// exportDir; an empty exportDir disables them.
func NewHandler(resolver *channels.Resolver, exporter channels.Exporter, exportDir string, log zerolog.Logger) *Handler {
	return &Handler{
		resolver:  resolver,
		exporter:  exporter,
		exportDir: exportDir,
		log:       log.With().Str("handler", "channels").Logger(),
	}
}

// ResolveRequest represents a request to resolve one name
type ResolveRequest struct {
	Name string `json:"name"`
}

// ResolveBulkRequest represents a request to resolve many names
type ResolveBulkRequest struct {
	Names []string `json:"names"`
}

// ExportRequest represents a request to export unresolved names
type ExportRequest struct {
	Path string `json:"path"`
}

// HandleResolve handles POST /api/channels/resolve
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(h.resolver.Resolve(req.Name)))
}

// HandleResolveBulk handles POST /api/channels/resolve-bulk
func (h *Handler) HandleResolveBulk(w http.ResponseWriter, r *http.Request) {
	var req ResolveBulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	results := h.resolver.ResolveAll(req.Names)
	resolved := 0
	for _, res := range results {
		if res.Resolved {
			resolved++
		}
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"results":    results,
		"distinct":   len(results),
		"resolved":   resolved,
		"unresolved": len(results) - resolved,
	}))
}

// HandleGetUnresolved handles GET /api/channels/unresolved
func (h *Handler) HandleGetUnresolved(w http.ResponseWriter, r *http.Request) {
	names := h.resolver.Unresolved()
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"names": names,
		"count": len(names),
	}))
}

// HandleExportUnresolved handles POST /api/channels/unresolved/export
func (h *Handler) HandleExportUnresolved(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.log.Error().Err(err).Msg("Failed to decode request body")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	var exporter channels.Exporter
	switch {
	case req.Path != "":
		path, err := h.exportPath(req.Path)
		if err != nil {
			h.log.Warn().Err(err).Str("path", req.Path).Msg("Rejected export path")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		exporter = channels.NewCSVExporter(path)
	case h.exporter != nil:
		exporter = h.exporter
	default:
		http.Error(w, "path is required when no export bucket is configured", http.StatusBadRequest)
		return
	}

	count, err := h.resolver.ExportUnresolved(r.Context(), exporter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to export unresolved channels")
		http.Error(w, "Failed to export unresolved channels", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"destination": exporter.Destination(),
		"count":       count,
	}))
}

// exportPath resolves a requested file path inside the export directory.
// Relative paths are taken from the export directory.
func (h *Handler) exportPath(requested string) (string, error) {
	if h.exportDir == "" {
		return "", fmt.Errorf("file exports are disabled")
	}
	root, err := filepath.Abs(h.exportDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve export directory: %w", err)
	}

	target := requested
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("export path must be a file inside %s", root)
	}
	return target, nil
}

// HandleInvalidate handles POST /api/channels/invalidate
func (h *Handler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	h.resolver.Invalidate()
	if err := h.resolver.Load(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Failed to rebuild channel catalogue")
		http.Error(w, "Failed to rebuild channel catalogue", http.StatusInternalServerError)
		return
	}
	h.HandleGetStatus(w, r)
}

// HandleGetStatus handles GET /api/channels/status
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.resolver.Status(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get catalogue status")
		http.Error(w, "Channel catalogue unavailable", http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(status))
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
