package notify

import (
	"context"

	"github.com/nats-io/nats.go"
)

// NATSBackend publishes each event on <prefix>.<bucket|object|upload>.<...>
// so subscribers can filter with subject wildcards.
type NATSBackend struct {
	conn   *nats.Conn
	prefix string
}

func NewNATSBackend(url, prefix string) (*NATSBackend, error) {
	if prefix == "" {
		prefix = "vaultuplink.events"
	}
	conn, err := nats.Connect(url, nats.Name("vaultuplink-satellite"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	return &NATSBackend{conn: conn, prefix: prefix}, nil
}

func (n *NATSBackend) Name() string { return "nats" }

func (n *NATSBackend) subject(payload []byte) string {
	ev, ok := peek(payload)
	if !ok {
		return n.prefix
	}
	return n.prefix + "." + subjectToken(ev.Name)
}

func (n *NATSBackend) Publish(_ context.Context, payload []byte) error {
	msg := nats.NewMsg(n.subject(payload))
	msg.Data = payload
	if ev, ok := peek(payload); ok {
		msg.Header.Set("Vaultuplink-Project", ev.Project)
	}
	return n.conn.PublishMsg(msg)
}

func (n *NATSBackend) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
	return nil
}
