package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes events as JSON on "<prefix>.<name>" subjects.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

func ConnectNATS(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("clearframe"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return NewNATSPublisher(nc, prefix), nil
}

func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix}
}

func (p *NATSPublisher) Name() string { return "nats" }

func (p *NATSPublisher) Publish(ctx context.Context, e *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := e.Marshal()
	if err != nil {
		return err
	}
	if err := p.nc.Publish(e.Subject(p.prefix), data); err != nil {
		return fmt.Errorf("nats publish %s: %w", e.Type, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}

// HealthCheck fails while the connection is reconnecting or closed.
func (p *NATSPublisher) HealthCheck(context.Context) error {
	if s := p.nc.Status(); s != nats.CONNECTED {
		return fmt.Errorf("nats connection %s", s)
	}
	return nil
}
