package handlers

import (
	"errors"
	"net/http"

	"stylegan-api/internal/domain"
	"stylegan-api/internal/middleware"
	"stylegan-api/internal/stylegan"
)

type errorClass struct {
	target error
	status int
	code   string
}

// errorClasses is checked in order; ErrModelNotFound must precede
// ErrModelLoad because a missing checkpoint surfaces as a load failure.
var errorClasses = []errorClass{
	{stylegan.ErrModelNotFound, http.StatusUnprocessableEntity, "unknown_model"},
	{stylegan.ErrInvalidBand, http.StatusUnprocessableEntity, "invalid_styles"},
	{stylegan.ErrInvalidReference, http.StatusUnprocessableEntity, "invalid_reference"},
	{stylegan.ErrArtifactNotFound, http.StatusUnprocessableEntity, "unknown_image"},
	{stylegan.ErrArtifactCorrupt, http.StatusUnprocessableEntity, "corrupt_image"},
	{stylegan.ErrIncompatibleStyleCode, http.StatusUnprocessableEntity, "incompatible_image"},
	{stylegan.ErrProjectionUnsupported, http.StatusUnprocessableEntity, "projection_unsupported"},
	{domain.ErrInvalidInput, http.StatusUnprocessableEntity, "validation_failed"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
}

// fail maps err onto an HTTP error response. Unclassified errors are logged
// and reported as 500 without detail.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	for _, c := range errorClasses {
		if errors.Is(err, c.target) {
			a.error(w, c.status, c.code, err.Error())
			return
		}
	}
	a.Logger.Error().
		Err(err).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("user_id", middleware.UserIDFromContext(r.Context())).
		Str("path", r.URL.Path).
		Msg("request failed")
	a.error(w, http.StatusInternalServerError, "internal", "internal server error")
}

// currentUserID returns the authenticated user or writes 401.
func (a *App) currentUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return "", false
	}
	return userID, true
}
