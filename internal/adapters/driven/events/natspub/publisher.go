// Package natspub publishes build lifecycle events to NATS.
//
// Events are JSON encoded onto <subject>.<kind> (for example
// patentgov.builds.promoted). The caller's trace context travels in the
// message headers.
package natspub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
)

// Ensure Publisher implements the interface.
var _ driven.BuildEventPublisher = (*Publisher)(nil)

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	PublishMsg(msg *nats.Msg) error
	Drain() error
}

// Publisher sends build events to NATS.
type Publisher struct {
	nc      conn
	subject string
}

// Connect dials the NATS server at url.
func Connect(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("patentgov"))
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", url, err)
	}
	return newPublisher(nc, subject), nil
}

func newPublisher(nc conn, subject string) *Publisher {
	return &Publisher{nc: nc, subject: strings.TrimSuffix(subject, ".")}
}

// Subject returns the subject an event kind is published on.
func (p *Publisher) Subject(kind domain.BuildEventKind) string {
	return p.subject + "." + strings.TrimPrefix(string(kind), "build.")
}

// Publish sends one event.
func (p *Publisher) Publish(ctx context.Context, event domain.BuildEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("nats: encode event: %w", err)
	}
	msg := &nats.Msg{
		Subject: p.Subject(event.Kind),
		Data:    data,
	}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats: publish %s: %w", msg.Subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}

// headerCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}
