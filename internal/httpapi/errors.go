package httpapi

import (
	"errors"
	"net/http"

	"github.com/mindatlas/backend/internal/attachment"
	"github.com/mindatlas/backend/internal/model"
)

// classify maps a domain error to its (httpStatus, envelopeCode, message)
// triple: 404->40400, validation->42200,
// conflict->409xx, storage->500xx, timeout->50400, dependency missing
// ->50010, config error->50011, query failed->50012.
func classify(err error) (httpStatus, code int, message string) {
	var ve model.ValidationError
	if errors.As(err, &ve) {
		return 422, 42200, err.Error()
	}
	var nfe model.NotFoundError
	if errors.As(err, &nfe) {
		return http.StatusNotFound, 40400, err.Error()
	}
	var ce model.ConflictError
	if errors.As(err, &ce) {
		return http.StatusConflict, 40900, err.Error()
	}
	var tle *attachment.TooLargeError
	if errors.As(err, &tle) {
		return http.StatusRequestEntityTooLarge, 41300, err.Error()
	}
	var ucte *attachment.UnsupportedContentTypeError
	if errors.As(err, &ucte) {
		return 422, 42200, err.Error()
	}
	var te *model.TimeoutError
	if errors.As(err, &te) {
		return http.StatusGatewayTimeout, 50400, err.Error()
	}
	var se *model.SSRFError
	if errors.As(err, &se) {
		return http.StatusForbidden, 40300, err.Error()
	}
	var de *model.DependencyError
	if errors.As(err, &de) {
		switch de.Kind {
		case model.ErrorKindConfig:
			return http.StatusInternalServerError, 50011, err.Error()
		case model.ErrorKindDependency:
			return http.StatusInternalServerError, 50010, err.Error()
		default:
			return http.StatusInternalServerError, 50012, err.Error()
		}
	}
	return http.StatusInternalServerError, 50000, err.Error()
}
