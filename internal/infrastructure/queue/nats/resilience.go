package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/mpetrov/refragd/internal/core/domain"
	"github.com/mpetrov/refragd/internal/infrastructure/resilience"
)

// ClassifyError treats connectivity failures as retryable and everything
// else as permanent.
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
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) {
		return resilience.Verdict{Retry: true, Record: true}
	}

	return resilience.Verdict{Retry: false, Record: true}
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	verdict := ClassifyError(err)
	if verdict.Retry || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "nats publish", err)
	}
	return err
}
