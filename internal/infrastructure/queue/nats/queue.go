// Package nats moves fragment batches between the API and the indexing
// worker over a NATS queue group.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mpetrov/refragd/internal/codec"
	"github.com/mpetrov/refragd/internal/core/domain"
	"github.com/mpetrov/refragd/internal/core/ports"
	"github.com/mpetrov/refragd/internal/infrastructure/resilience"
)

// Queue publishes and consumes fragment batches. Message bodies are
// msgpack-encoded batches, compact enough for large embedding payloads.
type Queue struct {
	conn     *nats.Conn
	subject  string
	codec    codec.Codec
	executor *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("refragd"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		codec:    codec.NewMsgpack(),
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishFragments(ctx context.Context, fragments []domain.Fragment) error {
	body, err := q.codec.EncodeBatch(fragments)
	if err != nil {
		return fmt.Errorf("encode fragment batch: %w", err)
	}

	call := func(context.Context) error {
		if err := q.conn.Publish(q.subject, body); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Do(ctx, "nats_publish", call)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// SubscribeFragments consumes batches in the "indexers" queue group until
// ctx is cancelled. Undecodable messages are logged and dropped; handler
// failures are logged and the message is not redelivered.
func (q *Queue) SubscribeFragments(ctx context.Context, handler func(context.Context, []domain.Fragment) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, "indexers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		fragments, err := q.codec.DecodeBatch(msg.Data)
		if err != nil {
			slog.Error("fragment_batch_undecodable", "bytes", len(msg.Data), "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, fragments); err != nil {
			slog.Error("fragment_batch_handler_failed", "fragments", len(fragments), "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

var _ ports.MessageQueue = (*Queue)(nil)
