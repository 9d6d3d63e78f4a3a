// Package httpapi exposes searches and their contact results over HTTP.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/palantir/business-contact-pipeline/internal/version"
)

func NewRouter(handler *Handler, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeSuccess(w, http.StatusOK, map[string]string{"version": version.Current})
	})
	r.Route("/api/v1/searches", func(r chi.Router) {
		r.Post("/", handler.createSearch)
		r.Get("/", handler.listSearches)
		r.Get("/{id}", handler.getSearch)
		r.Delete("/{id}", handler.deleteSearch)
		r.Get("/{id}/results", handler.listResults)
		r.Get("/{id}/results.csv", handler.exportResults)
	})
	return r
}
