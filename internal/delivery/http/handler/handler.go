package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/user/webanalysis-engine/internal/delivery/http/request"
	"github.com/user/webanalysis-engine/internal/delivery/http/response"
	"github.com/user/webanalysis-engine/internal/entity"
	"github.com/user/webanalysis-engine/internal/store"
	"github.com/user/webanalysis-engine/internal/usecase"
)

type Handler struct {
	runManager  usecase.RunManager
	store       store.Store
	runDefaults entity.Config
}

func NewHandler(runManager usecase.RunManager, st store.Store, runDefaults entity.Config) *Handler {
	return &Handler{
		runManager:  runManager,
		store:       st,
		runDefaults: runDefaults,
	}
}

func (h *Handler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req request.StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if _, err := url.ParseRequestURI(req.URL); err != nil {
		h.writeJSONError(w, "Invalid URL format", http.StatusBadRequest)
		return
	}

	cfg := req.Config.Apply(h.runDefaults)

	runID, err := h.runManager.Start(r.Context(), req.ApplicationID, req.URL, cfg, req.Force)
	if err != nil {
		var dup *usecase.SeedRecentlyAnalyzedError
		var verr *entity.ConfigValidationError
		switch {
		case errors.As(err, &dup):
			h.writeJSON(w, http.StatusConflict, map[string]string{
				"error":  dup.Error(),
				"run_id": dup.RunID,
			})
		case errors.As(err, &verr):
			h.writeJSONError(w, verr.Error(), http.StatusUnprocessableEntity)
		default:
			slog.Error("Failed to start run", "url", req.URL, "error", err)
			h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusAccepted, response.StartRunResponse{
		Status:  "success",
		Message: "Analysis run queued",
		RunID:   runID,
	})
}

func (h *Handler) HandleRunStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")

	status, err := h.runManager.Status(r.Context(), runID)
	if err != nil {
		h.writeLookupError(w, runID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, response.RunStatusResponse{
		RunID:      status.RunID,
		State:      string(status.State),
		Progress:   status.Progress,
		Ready:      status.Ready,
		Successful: status.Successful,
		Failed:     status.Failed,
		Info:       status.Info,
	})
}

func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")

	bundle, err := h.store.GetRun(r.Context(), runID)
	if err != nil {
		h.writeLookupError(w, runID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.FromBundle(bundle))
}

func (h *Handler) HandleGetParentChild(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")

	maps, err := h.store.GetParentChild(r.Context(), runID)
	if err != nil {
		h.writeLookupError(w, runID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.FromMaps(maps))
}

func (h *Handler) HandleGetSource(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	pageURL := r.URL.Query().Get("url")
	if pageURL == "" {
		h.writeJSONError(w, "URL query parameter is required", http.StatusBadRequest)
		return
	}

	src, err := h.store.GetSource(r.Context(), runID, pageURL)
	if err != nil {
		if errors.Is(err, entity.ErrSourceNotFound) {
			h.writeJSONError(w, "Source code not found for the given URL", http.StatusNotFound)
			return
		}
		h.writeLookupError(w, runID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.FromSource(src))
}

func (h *Handler) HandleGetLinkDetail(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	linkURL := r.URL.Query().Get("url")
	if linkURL == "" {
		h.writeJSONError(w, "URL query parameter is required", http.StatusBadRequest)
		return
	}

	detail, err := h.store.GetLinkDetail(r.Context(), runID, linkURL)
	if err != nil {
		if errors.Is(err, entity.ErrLinkNotFound) {
			h.writeJSONError(w, "No link record for the given URL", http.StatusNotFound)
			return
		}
		h.writeLookupError(w, runID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.LinkDetailResponse{
		Edge:        response.FromEdge(detail.Edge),
		ParentTitle: detail.ParentTitle,
		Path:        detail.Path,
	})
}

func (h *Handler) HandleGetPathStats(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")

	stats, err := h.store.PathStatistics(r.Context(), runID)
	if err != nil {
		h.writeLookupError(w, runID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.PathStatsResponse{
		URLsByDepth: stats.URLsByDepth,
		MaxDepth:    stats.MaxDepth,
		TotalURLs:   stats.TotalURLs,
	})
}

func (h *Handler) HandleDeleteRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")

	if err := h.store.DeleteRun(r.Context(), runID); err != nil {
		slog.Error("Failed to delete run", "run_id", runID, "error", err)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeLookupError(w http.ResponseWriter, runID string, err error) {
	if errors.Is(err, entity.ErrRunNotFound) {
		h.writeJSONError(w, "Run not found", http.StatusNotFound)
		return
	}
	slog.Error("Run lookup failed", "run_id", runID, "error", err)
	h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
