package iiif

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/greut/iiif3/image"
	"github.com/greut/iiif3/source"
)

// HTTPError represents a HTTP error to be shown to the user.
type HTTPError struct {
	StatusCode int
	Message    string
}

// Error formats the HTTPError message.
func (e HTTPError) Error() string {
	return fmt.Sprintf("%d (%s) %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// NewHTTPError maps the errors of the image, source and profile packages
// to their HTTP status. Anything else, processing errors included, is a 500.
func NewHTTPError(err error) HTTPError {
	var e HTTPError
	if errors.As(err, &e) {
		return e
	}

	var parseError *image.ParseError

	switch {
	case errors.As(err, &parseError):
		return HTTPError{http.StatusBadRequest, err.Error()}
	case errors.Is(err, source.ErrNotFound):
		return HTTPError{http.StatusNotFound, err.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return HTTPError{http.StatusServiceUnavailable, err.Error()}
	case errors.Is(err, image.ErrUnsupported):
		return HTTPError{http.StatusNotImplemented, err.Error()}
	}

	return HTTPError{http.StatusInternalServerError, err.Error()}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := NewHTTPError(err)
	if e.StatusCode >= http.StatusInternalServerError {
		zap.S().Errorw("request failed",
			"path", r.URL.Path,
			"status", e.StatusCode,
			"error", err,
		)
	}
	http.Error(w, e.Error(), e.StatusCode)
}
