// Package server orchestrates all components: COMMS client, audit DB, dispatcher, listener, HTTP health.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/agent-command-receiver/internal/config"
	"github.com/morezero/agent-command-receiver/pkg/codec"
	"github.com/morezero/agent-command-receiver/pkg/command"
	"github.com/morezero/agent-command-receiver/pkg/commsutil"
	"github.com/morezero/agent-command-receiver/pkg/db"
	"github.com/morezero/agent-command-receiver/pkg/dispatcher"
	"github.com/morezero/agent-command-receiver/pkg/events"
	"github.com/morezero/agent-command-receiver/pkg/transport"
)

const logPrefix = "server:server"

// commandCatalog is what /commands reports. *dispatcher.Dispatcher implements it.
type commandCatalog interface {
	ProtocolVersion() command.ProtocolVersion
	SupportedTypes() []command.Type
	BoundTypes() []command.Type
}

// Server is the agent-command-receiver orchestrator.
type Server struct {
	cfg        *config.Config
	catalog    commandCatalog
	httpServer *http.Server

	// commsConnected reports COMMS connectivity for /health.
	commsConnected func() bool
	// dbPing is nil when the audit log is disabled.
	dbPing func(ctx context.Context) error
}

// ParseLogLevel maps LOG_LEVEL to a slog level; anything unknown is info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Run starts the receiver, blocks until a shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: ParseLogLevel(cfg.LogLevel)})))

	slog.Info(fmt.Sprintf("%s - Starting agent-command-receiver agent=%s app=%s version=%s", logPrefix, cfg.AgentID, cfg.ApplicationName, cfg.AgentVersion))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}

	// Step 1: Connect to COMMS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}
	s.commsConnected = nc.IsConnected

	// Step 2: Audit database (optional)
	var pool *pgxpool.Pool
	if cfg.AuditEnabled() {
		pool, err = openAuditDB(ctx, cfg)
		if err != nil {
			nc.Close()
			return err
		}
		s.dbPing = pool.Ping
	} else {
		slog.Info(fmt.Sprintf("%s - DATABASE_URL not set, audit log disabled", logPrefix))
	}
	closeAll := func() {
		if pool != nil {
			pool.Close()
		}
		nc.Close()
	}

	// Step 3: Dispatcher
	publisher := buildPublisher(nc, pool, cfg)
	disp, err := buildDispatcher(cfg, publisher)
	if err != nil {
		closeAll()
		return err
	}
	s.catalog = disp
	if disp.ProtocolVersion() == command.VersionUnknown {
		slog.Warn(fmt.Sprintf("%s - agent version %q maps to no protocol version, every request will be answered as unsupported", logPrefix, cfg.AgentVersion))
	}

	// Step 4: Listen for commands
	listener := transport.NewListener(nc, cfg.ResolvedCommandSubject(), disp)
	if err := listener.Start(ctx); err != nil {
		closeAll()
		return err
	}

	// Step 5: HTTP health server
	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.routes()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - Receiver is ready on %s", logPrefix, listener.Subject()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown: stop intake, let in-flight requests answer, then close.
	if err := listener.Close(); err != nil {
		slog.Warn(fmt.Sprintf("%s - %v", logPrefix, err))
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HealthCheckTimeout)
	defer shutdownCancel()
	s.httpServer.Shutdown(shutdownCtx)
	nc.Drain()
	if pool != nil {
		pool.Close()
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

func openAuditDB(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	if cfg.RunMigrations {
		migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
			pool.Close()
			return nil, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}
	return pool, nil
}

// buildPublisher fans handled events out to COMMS and, when enabled, the audit log.
func buildPublisher(nc *comms.Conn, pool *pgxpool.Pool, cfg *config.Config) events.EventPublisher {
	publishers := events.MultiPublisher{
		events.NewCommsPublisher(nc, &events.CommsPublisherOpts{GlobalSubject: cfg.EventSubject}),
	}
	if pool != nil {
		publishers = append(publishers, events.NewStorePublisher(db.NewRepository(pool)))
	}
	return publishers
}

// buildDispatcher maps configuration onto dispatcher options.
func buildDispatcher(cfg *config.Config, publisher events.EventPublisher) (*dispatcher.Dispatcher, error) {
	format, err := codec.FormatByName(cfg.WireFormat)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}
	disp, err := dispatcher.Build(
		dispatcher.WithFormat(format),
		dispatcher.WithMaxPayloadSize(cfg.MaxPayloadSize),
		dispatcher.WithAgentVersion(cfg.AgentVersion),
		dispatcher.WithHandlerTimeout(cfg.HandlerTimeout),
		dispatcher.WithMaxInFlight(cfg.MaxInFlight),
		dispatcher.WithPublisher(publisher),
		dispatcher.WithAgentID(cfg.AgentID),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to build dispatcher: %w", logPrefix, err)
	}
	return disp, nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", s.handleReady())
	mux.HandleFunc("/commands", s.handleCommands())
	return mux
}

type healthChecks struct {
	Comms    bool  `json:"comms"`
	Database *bool `json:"database,omitempty"`
}

type healthOutput struct {
	Status    string       `json:"status"`
	AgentID   string       `json:"agentId"`
	Checks    healthChecks `json:"checks"`
	Timestamp string       `json:"timestamp"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		out := healthOutput{
			Status:    "healthy",
			AgentID:   s.cfg.AgentID,
			Checks:    healthChecks{Comms: s.commsConnected != nil && s.commsConnected()},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if !out.Checks.Comms {
			out.Status = "unhealthy"
		}
		if s.dbPing != nil {
			ok := s.dbPing(ctx) == nil
			out.Checks.Database = &ok
			if !ok {
				out.Status = "unhealthy"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if out.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(out)
	}
}

func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if s.catalog == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "starting"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	}
}

type commandEntry struct {
	Code  uint16 `json:"code"`
	Name  string `json:"name"`
	Bound bool   `json:"bound"`
}

type commandsOutput struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Subject         string         `json:"subject"`
	WireFormat      string         `json:"wireFormat"`
	Commands        []commandEntry `json:"commands"`
}

func (s *Server) handleCommands() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.catalog == nil {
			http.Error(w, "dispatcher not ready", http.StatusServiceUnavailable)
			return
		}

		bound := make(map[command.Type]bool)
		for _, t := range s.catalog.BoundTypes() {
			bound[t] = true
		}
		out := commandsOutput{
			ProtocolVersion: s.catalog.ProtocolVersion().String(),
			Subject:         s.cfg.ResolvedCommandSubject(),
			WireFormat:      strings.ToLower(s.cfg.WireFormat),
			Commands:        []commandEntry{},
		}
		for _, t := range s.catalog.SupportedTypes() {
			out.Commands = append(out.Commands, commandEntry{Code: uint16(t), Name: t.String(), Bound: bound[t]})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			slog.Error(fmt.Sprintf("%s - commands json encode: %v", logPrefix, err))
		}
	}
}
