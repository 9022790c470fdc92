// Package server exposes a kvs.Store over TCP using the framing in
// internal/protocol.
package server

import (
	"context"
	"net"
	"strconv"
	"sync"
	"syscall"

	"github.com/0xRadioAc7iv/go-kvs/internal/protocol"
	"github.com/0xRadioAc7iv/go-kvs/pkg/kvs"
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// Listen binds addr. When the port is taken it tries the next one, up to
// attempts times in total, and returns the listener that succeeded.
func Listen(addr string, attempts int) (net.Listener, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing listen address %q", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing port of %q", addr)
	}

	for i := 0; ; i++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
		// Port 0 never collides, so only fixed ports are probed.
		if !errors.Is(err, syscall.EADDRINUSE) || port == 0 || i+1 >= attempts {
			return nil, errors.Wrapf(err, "listening on %s", addr)
		}
		port++
	}
}

// Server serves one store to any number of connections.
type Server struct {
	store  *kvs.Store
	logger logrus.FieldLogger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func New(store *kvs.Store, logger logrus.FieldLogger) *Server {
	return &Server{
		store:  store,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections on ln until ctx is cancelled. It then closes the
// listener and every open connection and waits for their handlers to return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.WithField("addr", ln.Addr().String()).Info("listening")

	// When ctx is cancelled, close listener
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		ln.Close()
	}()

	defer s.shutdown()

	// Accept Loop
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Accept fails once the listener is closed; that is the way out.
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return errors.Wrap(err, "listener closed")
			}
			s.logger.WithError(err).Warn("error accepting connection")
			continue
		}

		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) shutdown() {
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("server stopped")
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	logger := s.logger.WithField("remote", conn.RemoteAddr().String())
	logger.Debug("client connected")

	for {
		command, err := protocol.DecodeCommand(conn)
		if err != nil {
			if !errors.Is(err, protocol.ErrFrameTooLarge) {
				logger.Debug("client disconnected")
				return
			}
			// The stream cannot be resynchronised after a bad frame.
			logger.WithError(err).Warn("dropping client")
			s.reply(logger, conn, protocol.StatusError, []byte(err.Error()))
			return
		}

		status, payload := s.handle(logger, command)
		if !s.reply(logger, conn, status, payload) {
			return
		}
	}
}

func (s *Server) reply(logger logrus.FieldLogger, conn net.Conn, status protocol.Status, payload []byte) bool {
	encoded, err := protocol.EncodeResponse(status, payload)
	if err != nil {
		logger.WithError(err).Error("encoding response")
		encoded, _ = protocol.EncodeResponse(protocol.StatusError, []byte("response too large"))
	}

	if _, err := conn.Write(encoded); err != nil {
		logger.Debug("client disconnected")
		return false
	}
	return true
}
