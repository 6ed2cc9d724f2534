package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/simonvetter/modbus"

	"github.com/seikosantana/modbus-sim/internal/engine"
	"github.com/seikosantana/modbus-sim/internal/registers"
)

// Defaults applied by NewServer.
const (
	DefaultTimeout    = 60 * time.Second
	DefaultMaxClients = 10
)

// ErrNotStarted is returned by Stop when the server is not running.
var ErrNotStarted = errors.New("modbus server not started")

// Server is a Modbus TCP slave serving one register bank.
//
// It implements engine.Transport. Start and Stop may be called from any
// goroutine; client requests are served on the library's own goroutines.
type Server struct {
	bank       *registers.Bank
	timeout    time.Duration
	maxClients uint
	logger     *slog.Logger
	cnt        counters

	mu   sync.Mutex
	srv  *modbus.ModbusServer
	addr string
}

var _ engine.Transport = (*Server)(nil)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithTimeout sets the idle timeout after which a client is disconnected.
func WithTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.timeout = d
	}
}

// WithMaxClients caps concurrent client connections.
func WithMaxClients(n uint) ServerOption {
	return func(s *Server) {
		s.maxClients = n
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a stopped server for bank.
func NewServer(bank *registers.Bank, opts ...ServerOption) *Server {
	s := &Server{
		bank:       bank,
		timeout:    DefaultTimeout,
		maxClients: DefaultMaxClients,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// URL returns the modbus URL for a bind address and port.
func URL(bindAddress string, port int) string {
	return "tcp://" + net.JoinHostPort(bindAddress, strconv.Itoa(port))
}

// Start binds the listener and starts accepting clients.
func (s *Server) Start(bindAddress string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return fmt.Errorf("modbus server already listening on %s", s.addr)
	}

	url := URL(bindAddress, port)
	srv, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        url,
		Timeout:    s.timeout,
		MaxClients: s.maxClients,
	}, &handler{bank: s.bank, cnt: &s.cnt, logger: s.logger})
	if err != nil {
		return fmt.Errorf("create modbus server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("listen on %s: %w", url, err)
	}

	s.srv = srv
	s.addr = url
	s.logger.Debug("modbus listener bound", "url", url, "max_clients", s.maxClients, "timeout", s.timeout)
	return nil
}

// Stop closes the listener and all client connections.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv == nil {
		return ErrNotStarted
	}
	err := s.srv.Stop()
	s.srv = nil
	s.addr = ""
	if err != nil {
		return fmt.Errorf("stop modbus server: %w", err)
	}
	return nil
}

// Registers returns the bank as the engine's register view.
func (s *Server) Registers() engine.RegisterView {
	return s.bank
}

// Bank returns the served bank.
func (s *Server) Bank() *registers.Bank {
	return s.bank
}

// Listening reports whether Start succeeded and Stop has not been called.
func (s *Server) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv != nil
}

// Counter returns one request counter.
func (s *Server) Counter(c Counter) uint64 {
	return s.cnt.get(c)
}

// Counters returns all request counters keyed by name.
func (s *Server) Counters() map[string]uint64 {
	return s.cnt.snapshot()
}

// ResetCounters zeroes all request counters.
func (s *Server) ResetCounters() {
	s.cnt.reset()
}
