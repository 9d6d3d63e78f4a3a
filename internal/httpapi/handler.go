package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/palantir/business-contact-pipeline/internal/leads"
	"github.com/palantir/business-contact-pipeline/internal/pipeline"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/redact"
)

// SearchService is what the API needs from the search service.
type SearchService interface {
	StartSearch(ctx context.Context, area, sector string) (leads.Search, error)
	GetSearch(ctx context.Context, id int64) (leads.Search, error)
	ListSearches(ctx context.Context, limit int) ([]leads.Search, error)
	ListResults(ctx context.Context, id int64) ([]leads.ContactResult, error)
	DeleteSearch(ctx context.Context, id int64) error
}

type Handler struct {
	service SearchService
	logger  *zap.Logger
}

func NewHandler(service SearchService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger.Named("http")}
}

type createSearchRequest struct {
	Area   string `json:"area"`
	Sector string `json:"sector"`
}

type createSearchResponse struct {
	SearchID int64        `json:"searchId"`
	Status   leads.Status `json:"status"`
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func (h *Handler) createSearch(w http.ResponseWriter, r *http.Request) {
	var req createSearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error(), requestIDFromContext(r.Context()))
		return
	}
	search, err := h.service.StartSearch(r.Context(), strings.TrimSpace(req.Area), strings.TrimSpace(req.Sector))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, createSearchResponse{SearchID: search.ID, Status: search.Status})
}

func (h *Handler) listSearches(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_input", "limit must be a positive integer", requestIDFromContext(r.Context()))
			return
		}
		limit = min(n, maxListLimit)
	}
	searches, err := h.service.ListSearches(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if searches == nil {
		searches = []leads.Search{}
	}
	writeSuccess(w, http.StatusOK, searches)
}

func (h *Handler) getSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.searchID(w, r)
	if !ok {
		return
	}
	search, err := h.service.GetSearch(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, search)
}

func (h *Handler) deleteSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.searchID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteSearch(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listResults(w http.ResponseWriter, r *http.Request) {
	id, ok := h.searchID(w, r)
	if !ok {
		return
	}
	results, err := h.service.ListResults(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if results == nil {
		results = []leads.ContactResult{}
	}
	writeSuccess(w, http.StatusOK, results)
}

func (h *Handler) exportResults(w http.ResponseWriter, r *http.Request) {
	id, ok := h.searchID(w, r)
	if !ok {
		return
	}
	results, err := h.service.ListResults(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="search-%d.csv"`, id))
	w.WriteHeader(http.StatusOK)
	_ = pipeline.WriteCSV(w, pipeline.RowsFromResults(results))
}

func (h *Handler) searchID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid_input", "search id must be a positive integer", requestIDFromContext(r.Context()))
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapError(err)
	msg := redact.Secrets(err.Error())
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.String("error", msg),
		)
		msg = "internal server error"
	}
	writeError(w, status, code, msg, requestIDFromContext(r.Context()))
}
