package ollama

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/mpetrov/refragd/internal/core/domain"
	"github.com/mpetrov/refragd/internal/infrastructure/resilience"
)

// ClassifyError is the classifier the executor should run with for this
// backend. Transient transport and 5xx-class failures retry and count
// against the breaker; client errors do neither.
func ClassifyError(err error) resilience.Verdict {
	if err == nil {
		return resilience.Verdict{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.Verdict{Retry: false, Record: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.Verdict{Retry: true, Record: true}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if isRetryableHTTPStatus(statusErr.StatusCode) {
			return resilience.Verdict{Retry: true, Record: true}
		}
		return resilience.Verdict{Retry: false, Record: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Verdict{Retry: true, Record: true}
	}

	return resilience.Verdict{Retry: false, Record: true}
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}

	verdict := ClassifyError(err)
	if verdict.Retry || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
