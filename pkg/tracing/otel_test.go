package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recorder() (*Tracer, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return NewWithProvider(tp, "test"), rec
}

func attr(kvs []attribute.KeyValue, key string) attribute.Value {
	for _, kv := range kvs {
		if string(kv.Key) == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestNoopWithoutEndpoint(t *testing.T) {
	tr, err := NewTracer(Config{ServiceName: "dilemma"})
	require.NoError(t, err)

	ctx, span := tr.StartMatchSpan(context.Background(), "a", "b", 1)
	span.End()
	assert.Empty(t, GetTraceID(ctx))
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestMatchSpanNestsUnderTournament(t *testing.T) {
	tr, rec := recorder()

	ctx, root := tr.StartTournamentSpan(context.Background(), "t1", 3, 6)
	_, span := tr.StartMatchSpan(ctx, "tit_for_tat", "grudger", 42)
	RecordSpanScores(span, 600, 600)
	RecordSpanSuccess(span)
	span.End()
	root.End()

	spans := rec.Ended()
	require.Len(t, spans, 2)
	m := spans[0]
	assert.Equal(t, "match", m.Name())
	assert.Equal(t, root.SpanContext().SpanID(), m.Parent().SpanID())
	assert.Equal(t, "grudger", attr(m.Attributes(), "match.b").AsString())
	assert.Equal(t, int64(42), attr(m.Attributes(), "match.seed").AsInt64())
	assert.Equal(t, 600.0, attr(m.Attributes(), "score.a").AsFloat64())
	assert.Equal(t, codes.Ok, m.Status().Code)
	assert.NotEmpty(t, GetTraceID(ctx))
	assert.NotEmpty(t, GetSpanID(ctx))
}

func TestRecordSpanError(t *testing.T) {
	tr, rec := recorder()
	_, span := tr.StartSearchSpan(context.Background(), "tit_for_tat", 5)
	RecordSpanError(span, errors.New("no candidates"))
	AddSpanAttributes(span, map[string]interface{}{"search.accepted": 0, "search.sources": []string{"mock"}})
	span.End()

	s := rec.Ended()[0]
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "no candidates", s.Status().Description)
	assert.Len(t, s.Events(), 1)
	assert.Equal(t, int64(0), attr(s.Attributes(), "search.accepted").AsInt64())
}
