package store

import (
	"context"
	"errors"
	tm "time"

	"github.com/pixperk/objmutex/pkg/metrics"
	"github.com/pixperk/objmutex/pkg/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/pixperk/objmutex/pkg/store")

// wraps a store with prometheus metrics and a span per operation
type instrumented struct {
	next    Store
	backend string
}

func Instrument(s Store, backend string) Store {
	return &instrumented{next: s, backend: backend}
}

func (i *instrumented) Get(ctx context.Context, key string) (*types.Object, error) {
	ctx, done := i.start(ctx, "get", key)
	obj, err := i.next.Get(ctx, key)
	done(err)
	return obj, err
}

func (i *instrumented) Head(ctx context.Context, key string) (types.ObjectInfo, error) {
	ctx, done := i.start(ctx, "head", key)
	info, err := i.next.Head(ctx, key)
	done(err)
	return info, err
}

func (i *instrumented) Put(ctx context.Context, key string, body []byte) error {
	ctx, done := i.start(ctx, "put", key)
	err := i.next.Put(ctx, key, body)
	done(err)
	return err
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	ctx, done := i.start(ctx, "delete", key)
	err := i.next.Delete(ctx, key)
	done(err)
	return err
}

func (i *instrumented) List(ctx context.Context, prefix, token string) (types.ListPage, error) {
	ctx, done := i.start(ctx, "list", prefix)
	page, err := i.next.List(ctx, prefix, token)
	done(err)
	return page, err
}

func (i *instrumented) Close() error {
	return i.next.Close()
}

// opens the span and returns the func that records the outcome
func (i *instrumented) start(ctx context.Context, op, key string) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "Store."+op, trace.WithAttributes(
		attribute.String("objmutex.store.backend", i.backend),
		attribute.String("objmutex.store.key", key),
	))
	start := tm.Now()

	return ctx, func(err error) {
		metrics.StoreOpDuration.WithLabelValues(i.backend, op).Observe(tm.Since(start).Seconds())

		status := "success"
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			status = "not_found"
			span.SetAttributes(attribute.String("objmutex.store.result", "not_found"))
		default:
			status = "failure"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.StoreOpTotal.WithLabelValues(i.backend, op, status).Inc()
		span.End()
	}
}
