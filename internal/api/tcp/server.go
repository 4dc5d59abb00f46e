package tcp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/avoynich/wsprovd/internal/logger"
	"github.com/avoynich/wsprovd/internal/model"
)

// Server accepts client connections and runs one Session per connection.
type Server struct {
	engine *Engine
	addr   string
	logger *logger.Logger

	idleTimeout  time.Duration
	writeTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	stopping bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(
	engine *Engine,
	addr string,
	idleTimeout time.Duration,
	writeTimeout time.Duration,
	logger *logger.Logger,
) *Server {
	return &Server{
		engine:       engine,
		addr:         addr,
		logger:       logger,
		idleTimeout:  idleTimeout,
		writeTimeout: writeTimeout,
		conns:        make(map[net.Conn]struct{}),
	}
}

// Start listens through the given security layer and serves until Stop
// is called. It blocks for the life of the server.
func (s *Server) Start(layer model.SecurityLayer) error {
	listener, err := layer.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.listener = listener
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("Server: listening", "address", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			stopping := s.stopping
			s.mu.Unlock()
			if stopping || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func(conn net.Conn) {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
			}()
			NewSession(conn, s.engine, s.idleTimeout, s.writeTimeout, s.logger).Serve(ctx)
		}(conn)
	}
}

// Stop closes the listener and every open connection, then waits for
// sessions to finish or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Address returns the bound listen address, or empty before Start.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
