package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/Harshitk-cp/elicit/internal/service"
	"github.com/Harshitk-cp/elicit/internal/store"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service and domain errors to a response status.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	var (
		integrityErr *domain.DataIntegrityError
		externalErr  *domain.ExternalCallError
	)
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSessionCompleted), errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrResponseEmpty):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &integrityErr):
		writeError(w, http.StatusUnprocessableEntity, integrityErr.Error())
	case errors.As(err, &externalErr):
		logger.Warn("collaborator call failed", zap.String("collaborator", externalErr.Collaborator), zap.Error(err))
		writeError(w, http.StatusBadGateway, externalErr.Collaborator+" unavailable")
	default:
		logger.Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
