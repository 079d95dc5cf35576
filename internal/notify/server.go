// Package notify implements the best-effort notification handoff spec
// §9's design note requires: claim and record-progress must never block
// on the external GitHub bot or the report-worker wake signal, so both
// are published to an embedded NATS bus and drained by dedicated
// subscriber goroutines instead of being called inline. Adapted from the
// pack's embedded-NATS wrapper, trimmed to the two subjects this system
// needs and without its WebSocket/JetStream bridging (no browser client
// ever talks to this bus).
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

const (
	// SubjectRunning carries (experiment, agent) pairs for newly-claimed,
	// GitHub-linked experiments (spec §4.3).
	SubjectRunning = "crater.experiment.running"
	// SubjectNeedsReport carries experiment names that just transitioned
	// to needs-report (spec §4.3), waking the external report-worker.
	SubjectNeedsReport = "crater.experiment.needs-report"
)

// ServerConfig configures the embedded broker.
type ServerConfig struct {
	Host string
	Port int
}

// Server wraps an embedded NATS server used purely as an in-process
// pub/sub bus between the coordinator's assignment engine and its own
// notification workers — it is never exposed to agents or the network.
type Server struct {
	cfg     ServerConfig
	inner   *server.Server
	mu      sync.Mutex
	running bool
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port <= 0 {
		cfg.Port = -1 // let nats-server pick an ephemeral port
	}
	return &Server{cfg: cfg}
}

// Start boots the embedded broker and blocks until it is ready for
// connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("notify server already running")
	}

	opts := &server.Options{
		Host:       s.cfg.Host,
		Port:       s.cfg.Port,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 64 * 1024,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("create embedded nats server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("notify server not ready for connections")
	}

	s.inner = ns
	s.running = true
	return nil
}

// ClientURL returns the URL the bus's publisher and drain clients connect
// to.
func (s *Server) ClientURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inner == nil {
		return ""
	}
	return s.inner.ClientURL()
}

// Shutdown stops the embedded broker.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.inner == nil {
		return
	}
	s.inner.Shutdown()
	s.inner.WaitForShutdown()
	s.running = false
	s.inner = nil
}
