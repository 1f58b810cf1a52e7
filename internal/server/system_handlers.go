package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/climate-finance/engine/internal/di"
	"github.com/climate-finance/engine/internal/scheduler"
)

// SystemHandlers serves health and status endpoints
type SystemHandlers struct {
	container   *di.Container
	jobs        *di.JobInstances
	startupTime time.Time
	log         zerolog.Logger
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(container *di.Container, jobs *di.JobInstances, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		container:   container,
		jobs:        jobs,
		startupTime: time.Now(),
		log:         log.With().Str("handler", "system").Logger(),
	}
}

// HandleHealth handles GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.getSystemStats()

	status := "healthy"
	code := http.StatusOK
	dbStatus := "ok"

	if h.container != nil && h.container.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.container.DB.HealthCheck(ctx); err != nil {
			h.log.Error().Err(err).Msg("Database health check failed")
			status = "degraded"
			dbStatus = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	h.writeJSON(w, code, map[string]interface{}{
		"status":         status,
		"service":        "climate-finance-engine",
		"uptime_seconds": int64(time.Since(h.startupTime).Seconds()),
		"cpu_percent":    cpuPercent,
		"ram_percent":    ramPercent,
		"database":       dbStatus,
	})
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.getSystemStats()
	data := map[string]interface{}{
		"uptime_hours": time.Since(h.startupTime).Hours(),
		"cpu_percent":  cpuPercent,
		"ram_percent":  ramPercent,
	}

	if h.container != nil {
		if h.container.DB != nil {
			if stats, err := h.container.DB.GetStats(); err == nil {
				data["database"] = stats
			} else {
				h.log.Warn().Err(err).Msg("Failed to read database stats")
			}
		}
		if h.container.Resolver != nil {
			if status, err := h.container.Resolver.Status(r.Context()); err == nil {
				data["channels"] = status
			} else {
				data["channels"] = map[string]string{"error": err.Error()}
			}
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleJobs handles GET /api/system/jobs
func (h *SystemHandlers) HandleJobs(w http.ResponseWriter, r *http.Request) {
	jobs := []string{}
	if h.container != nil && h.container.Scheduler != nil {
		jobs = h.container.Scheduler.Jobs()
		sort.Strings(jobs)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": jobs,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(jobs),
		},
	})
}

// HandleRunJob handles POST /api/system/jobs/{name}/run
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	job := h.findJob(name)
	if job == nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	start := time.Now()
	if err := h.container.Scheduler.RunNow(job); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"job":         name,
			"duration_ms": time.Since(start).Milliseconds(),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// findJob returns the configured job with the given name
func (h *SystemHandlers) findJob(name string) scheduler.Job {
	if h.jobs == nil || h.container == nil || h.container.Scheduler == nil {
		return nil
	}

	candidates := []scheduler.Job{}
	if h.jobs.ChannelRefresh != nil {
		candidates = append(candidates, h.jobs.ChannelRefresh)
	}
	if h.jobs.RunCleanup != nil {
		candidates = append(candidates, h.jobs.RunCleanup)
	}
	if h.jobs.Maintenance != nil {
		candidates = append(candidates, h.jobs.Maintenance)
	}
	if h.jobs.Backup != nil {
		candidates = append(candidates, h.jobs.Backup)
	}

	for _, job := range candidates {
		if job.Name() == name {
			return job
		}
	}
	return nil
}

// getSystemStats returns CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
