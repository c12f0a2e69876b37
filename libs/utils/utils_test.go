package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type ctxKey struct{}

func TestDetach(t *testing.T) {
	ctx := context.WithValue(context.Background(), ctxKey{}, "borrow")
	assert.Equal(t, ctx, Detach(ctx))

	ctx, cancel := context.WithCancel(ctx)
	cancel()
	detached := Detach(ctx)
	assert.NoError(t, detached.Err())
	assert.Equal(t, "borrow", detached.Value(ctxKey{}))
}

func TestEndSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)).Tracer("test")

	_, span := tracer.Start(context.Background(), "ok")
	EndSpan(span, nil)
	_, span = tracer.Start(context.Background(), "failed")
	EndSpan(span, errors.New("no peer available"))

	ended := rec.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, codes.Ok, ended[0].Status().Code)
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Equal(t, "no peer available", ended[1].Status().Description)
	require.Len(t, ended[1].Events(), 1)
	assert.Equal(t, "exception", ended[1].Events()[0].Name)
}
