package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/remedy"
)

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrInvalidRequest), errors.Is(err, errors.ErrMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrConflict), errors.Is(err, errors.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, errors.ErrMissingPrerequisite),
		errors.Is(err, remedy.ErrProcessNotFound),
		errors.Is(err, remedy.ErrRobotNotFound):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeWrappedError logs err and writes a response whose status follows
// the error's sentinel. Internal errors only expose context.
func writeWrappedError(w http.ResponseWriter, log *zap.SugaredLogger, err error, context string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Errorw(context, "error", err)
		writeError(w, status, context)
		return
	}
	log.Debugw(context, "error", err, "status", status)
	writeError(w, status, err.Error())
}
