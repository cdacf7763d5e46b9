package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/mpetrov/refragd/internal/core/domain"
)

func TestClassifyErrorConnectivityIsRetryable(t *testing.T) {
	for _, err := range []error{nats.ErrNoServers, nats.ErrTimeout, nats.ErrConnectionClosed, nats.ErrDisconnected} {
		verdict := ClassifyError(err)
		if !verdict.Retry || !verdict.Record {
			t.Fatalf("%v: verdict = %+v", err, verdict)
		}
	}
}

func TestClassifyErrorCancellationIsSilent(t *testing.T) {
	verdict := ClassifyError(context.Canceled)
	if verdict.Retry || verdict.Record {
		t.Fatalf("verdict = %+v", verdict)
	}
}

func TestWrapTemporaryTagsRetryableErrors(t *testing.T) {
	err := wrapTemporaryIfNeeded(nats.ErrTimeout)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("err = %v", err)
	}
	// Already-tagged errors are not double wrapped.
	again := wrapTemporaryIfNeeded(err)
	if !errors.Is(again, err) {
		t.Fatalf("again = %v", again)
	}

	permanent := errors.New("bad subject")
	if wrapped := wrapTemporaryIfNeeded(permanent); !errors.Is(wrapped, permanent) || domain.IsKind(wrapped, domain.ErrTemporary) {
		t.Fatalf("wrapped = %v", wrapped)
	}
}
