package httpadapter

import (
	"net/http"

	"github.com/mpetrov/refragd/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrInvalidConfig):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnknownFormat):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrDecode):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrUnimplemented):
		return http.StatusNotImplemented
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
