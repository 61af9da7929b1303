package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/atriumcode/controlfinance/internal/models"
)

func SetupRouter(importHandler *ImportHandler, log zerolog.Logger) *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()

	api.Use(loggingMiddleware(log))
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/imports/invoices", importHandler.ImportInvoice).Methods(http.MethodPost)
	api.HandleFunc("/imports/statements", importHandler.ImportStatements).Methods(http.MethodPost)
	api.HandleFunc("/imports/statements", importHandler.ListStatementImports).Methods(http.MethodGet)

	router.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)

	return router
}

func loggingMiddleware(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, ErrorResponse{Error: message})
}

// respondWithImportError maps the pipeline error taxonomy to HTTP statuses:
// unusable input is 422, an already-imported natural key is a 409 conflict
// and a storage failure after successful validation is a 500, so clients
// can tell "your file was invalid" apart from "retry the save".
func respondWithImportError(w http.ResponseWriter, err error) {
	kind := models.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case models.KindFormat, models.KindFieldMissing, models.KindValueInvalid:
		status = http.StatusUnprocessableEntity
	case models.KindDuplicate:
		status = http.StatusConflict
	}
	respondWithJSON(w, status, ErrorResponse{Error: err.Error(), Kind: string(kind)})
}
