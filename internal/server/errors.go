package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

// statusFor maps an error kind to its response code.
func statusFor(kind shared.ErrorKind) int {
	switch kind {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindConflict:
		return http.StatusConflict
	case shared.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as an [models.ErrorResponse].
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := shared.KindOf(err)
	msg := err.Error()
	if kind == shared.KindInternal {
		s.logger.Error("request error", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "internal error"
	}

	render.Status(r, statusFor(kind))
	render.JSON(w, r, models.ErrorResponse{
		Error:       string(kind),
		Message:     msg,
		ActiveJobID: shared.ActiveJobID(err),
	})
}

// decode reads a JSON body into v and validates its struct tags.
func (s *Server) decode(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return fmt.Errorf("%w: malformed body: %v", shared.ErrValidation, err)
	}
	if err := s.valid.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			fields = append(fields, fmt.Sprintf("%s must satisfy %s=%s", strings.ToLower(fe.Field()), fe.Tag(), fe.Param()))
		} else {
			fields = append(fields, fmt.Sprintf("%s must satisfy %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(fields, "; "))
}
