// Package events forwards import job events to sinks outside the process.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

const DefaultSubjectPrefix = "imports.jobs"

type messagePublisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher mirrors job events onto "<prefix>.<job id>" subjects.
type NATSPublisher struct {
	conn   messagePublisher
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

// DialNATS connects to url and returns a publisher bound to the connection.
func DialNATS(url, prefix string, logger *zap.Logger) (*NATSPublisher, error) {
	p := &NATSPublisher{prefix: subjectPrefix(prefix), logger: logger.Named("nats")}

	nc, err := nats.Connect(
		url,
		nats.Name("bulk-import"),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(p.reconnectHandler),
		nats.DisconnectErrHandler(p.disconnectHandler),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	p.nc = nc
	p.conn = nc
	return p, nil
}

func newNATSPublisher(conn messagePublisher, prefix string, logger *zap.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: subjectPrefix(prefix), logger: logger.Named("nats")}
}

func subjectPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return DefaultSubjectPrefix
	}
	return prefix
}

func (p *NATSPublisher) Subject(jobID string) string {
	return p.prefix + "." + jobID
}

// Publish never blocks on the network: nats.Conn buffers outgoing messages
// and flushes them from its own goroutine.
func (p *NATSPublisher) Publish(_ context.Context, event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal job event", zap.String("job_id", event.Job.ID), zap.Error(err))
		return
	}
	if err := p.conn.Publish(p.Subject(event.Job.ID), data); err != nil {
		p.logger.Warn("publish job event",
			zap.String("job_id", event.Job.ID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}

// Close flushes buffered messages and drains the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

func (p *NATSPublisher) reconnectHandler(nc *nats.Conn) {
	p.logger.Info("got reconnected", zap.String("url", nc.ConnectedUrl()))
}

func (p *NATSPublisher) disconnectHandler(_ *nats.Conn, err error) {
	if err != nil {
		p.logger.Error("got disconnected", zap.Error(err))
	}
}
