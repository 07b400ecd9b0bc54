package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "PrivateLine/server/pkg/errors"
	"PrivateLine/server/pkg/logger"
)

type errorResponse struct {
	Error string         `json:"error"`
	Code  apperrors.Code `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto status codes. Internal causes are
// logged but never leaked verbatim to the caller.
func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	code := apperrors.CodeOf(err)
	switch code {
	case apperrors.CodeInvalidArgument:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: code})
	case apperrors.CodeNotFound:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: code})
	case apperrors.CodePermissionDenied:
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error(), Code: code})
	default:
		log.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error: "internal server error",
			Code:  apperrors.CodeInternal,
		})
	}
}
