package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/tabletimer/go/internal/tables"
)

// TableService is what the gateway service needs from the tables App.
type TableService interface {
	TableCommands
	SetNotifier(n tables.Notifier)
}

// Service is the table gateway: WebSocket fan-out, HTTP state and the
// optional NATS mirror, all fed by the tables App.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	mirror            *NATSMirror
}

// Config holds configuration for the table gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	MirrorConfig     NATSMirrorConfig
}

// DefaultConfig returns default configuration for the table gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		MirrorConfig:     DefaultNATSMirrorConfig(),
	}
}

// NewService creates the gateway and registers it as the App's notifier.
// A mirror that cannot connect is logged and skipped.
func NewService(config Config, app TableService) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, app)

	s := &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(app),
	}

	if config.MirrorConfig.URL != "" {
		mirror, err := NewNATSMirror(config.MirrorConfig)
		if err != nil {
			log.Warn().Err(err).Str("url", config.MirrorConfig.URL).Msg("NATS mirror disabled")
		} else {
			s.mirror = mirror
		}
	}

	app.SetNotifier(s)
	return s
}

// Start runs the connection manager and mirror until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting table gateway service")

	go s.connectionManager.Start(ctx)
	if s.mirror != nil {
		go s.mirror.Start(ctx)
	}

	<-ctx.Done()

	log.Info().Msg("table gateway service shutting down")
	return s.Stop()
}

// Stop releases the mirror connection. The connection manager stops with its
// context.
func (s *Service) Stop() error {
	if s.mirror != nil {
		if err := s.mirror.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close NATS mirror")
			return err
		}
	}
	log.Info().Msg("table gateway service stopped")
	return nil
}

// BroadcastState fans a snapshot out to WebSocket clients and the mirror.
func (s *Service) BroadcastState(snapshot tables.Snapshot) {
	s.connectionManager.BroadcastState(snapshot)
	if s.mirror != nil {
		s.mirror.BroadcastState(snapshot)
	}
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("table gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "table_gateway"
	stats["nats_mirror"] = s.mirror != nil
	return stats
}
