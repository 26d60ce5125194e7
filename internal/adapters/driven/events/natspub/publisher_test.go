package natspub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

type fakeConn struct {
	msgs    []*nats.Msg
	err     error
	drained bool
}

func (f *fakeConn) PublishMsg(msg *nats.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func TestPublisher_Publish(t *testing.T) {
	nc := &fakeConn{}
	p := newPublisher(nc, "patentgov.builds.")
	event := domain.BuildEvent{
		Kind:               domain.EventBuildFailed,
		RunID:              "run-1",
		EmbeddingVersionID: "m@1#chunk_policy=v1#norm=l2#spec_control=full_description-none",
		Status:             domain.BuildFailed,
		FailedGates:        []domain.GateName{domain.GateCountEquality},
		At:                 time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}

	require.NoError(t, p.Publish(context.Background(), event))
	require.Len(t, nc.msgs, 1)
	assert.Equal(t, "patentgov.builds.failed", nc.msgs[0].Subject)

	var got domain.BuildEvent
	require.NoError(t, json.Unmarshal(nc.msgs[0].Data, &got))
	assert.Equal(t, event, got)

	require.NoError(t, p.Close())
	assert.True(t, nc.drained)
}

func TestPublisher_PropagatesTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	nc := &fakeConn{}
	require.NoError(t, newPublisher(nc, "patentgov.builds").Publish(ctx, domain.BuildEvent{Kind: domain.EventBuildStarted}))
	require.Len(t, nc.msgs, 1)
	assert.Equal(t, "patentgov.builds.started", nc.msgs[0].Subject)
	assert.Equal(t, "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01", nc.msgs[0].Header.Get("traceparent"))
}

func TestPublisher_PublishError(t *testing.T) {
	p := newPublisher(&fakeConn{err: errors.New("no responders")}, "patentgov.builds")
	err := p.Publish(context.Background(), domain.BuildEvent{Kind: domain.EventBuildPromoted})
	assert.ErrorContains(t, err, "patentgov.builds.promoted")
}

func TestHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	c := (*headerCarrier)(msg)
	assert.Empty(t, c.Get("traceparent"))
	assert.Nil(t, c.Keys())

	c.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	assert.Len(t, c.Keys(), 1)
}
