package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/tabletimer/go/internal/tables"
)

// NATSMirrorConfig holds configuration for the snapshot mirror
type NATSMirrorConfig struct {
	URL           string
	Subject       string
	MaxReconnects int
	ReconnectWait time.Duration
	BufferSize    int
}

// DefaultNATSMirrorConfig returns default mirror configuration. URL is left
// empty, which disables the mirror.
func DefaultNATSMirrorConfig() NATSMirrorConfig {
	return NATSMirrorConfig{
		Subject:       "tables.state",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		BufferSize:    16,
	}
}

// Publisher is the subset of *nats.Conn the mirror uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSMirror republishes every state snapshot on a NATS subject so external
// scoreboards can follow along without a WebSocket.
type NATSMirror struct {
	nc        *nats.Conn
	publisher Publisher
	subject   string
	ch        chan tables.Snapshot
	last      uint64
}

// NewNATSMirror connects to NATS and returns a mirror ready to Start.
func NewNATSMirror(config NATSMirrorConfig) (*NATSMirror, error) {
	opts := []nats.Option{
		nats.Name("table-gateway"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	m := newNATSMirror(nc, config)
	m.nc = nc
	return m, nil
}

func newNATSMirror(publisher Publisher, config NATSMirrorConfig) *NATSMirror {
	if config.BufferSize <= 0 {
		config.BufferSize = 16
	}
	return &NATSMirror{
		publisher: publisher,
		subject:   config.Subject,
		ch:        make(chan tables.Snapshot, config.BufferSize),
	}
}

// BroadcastState queues a snapshot for publishing. Never blocks.
func (m *NATSMirror) BroadcastState(snapshot tables.Snapshot) {
	select {
	case m.ch <- snapshot:
	default:
		log.Warn().Uint64("version", snapshot.Version).Msg("NATS mirror buffer full, dropping state")
	}
}

// Start publishes queued snapshots until ctx is cancelled.
func (m *NATSMirror) Start(ctx context.Context) {
	log.Info().Str("subject", m.subject).Msg("NATS state mirror started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("NATS state mirror shutting down")
			return
		case snapshot := <-m.ch:
			if err := m.publish(snapshot); err != nil {
				log.Error().Err(err).Uint64("version", snapshot.Version).Msg("failed to publish state")
			}
		}
	}
}

func (m *NATSMirror) publish(snapshot tables.Snapshot) error {
	if snapshot.Version <= m.last {
		return nil
	}
	data, err := json.Marshal(NewStateMessage(snapshot))
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := m.publisher.Publish(m.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", m.subject, err)
	}
	m.last = snapshot.Version
	return nil
}

// Close drains and closes the NATS connection, if the mirror owns one.
func (m *NATSMirror) Close() error {
	if m.nc == nil {
		return nil
	}
	if err := m.nc.Drain(); err != nil {
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
