// Package smtptest provides an in-process SMTP server that accepts mail on a
// loopback port and records every delivered envelope, for testing SMTP
// clients end to end.
package smtptest

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
)

// Config controls the behavior of a test server.
type Config struct {
	// Hostname is announced in the greeting and EHLO responses.
	// Defaults to "localhost".
	Hostname string

	// TLSConfig enables STARTTLS, or wraps every connection when
	// ImplicitTLS is set.
	TLSConfig   *tls.Config
	ImplicitTLS bool

	// Username and Password make AUTH mandatory before MAIL FROM.
	Username string
	Password string

	// RejectRecipient, when set, is consulted for every RCPT TO; a true
	// result answers 550.
	RejectRecipient func(addr string) bool
}

// Envelope is one accepted message.
type Envelope struct {
	From string
	To   []string
	Data []byte
}

// Server is a running test server. Create it with NewServer and stop it
// with Close.
type Server struct {
	config   Config
	auth     credentials
	listener net.Listener
	cancel   context.CancelFunc

	// wg tracks in-flight session goroutines.
	wg sync.WaitGroup

	mu       sync.Mutex
	messages []Envelope
}

// NewServer starts a server on 127.0.0.1 with a random port.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	if cfg.ImplicitTLS && cfg.TLSConfig == nil {
		return nil, fmt.Errorf("implicit TLS requires a TLS config")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	if cfg.ImplicitTLS {
		ln = tls.NewListener(ln, cfg.TLSConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   cfg,
		auth:     credentials{username: cfg.Username, password: cfg.Password},
		listener: ln,
		cancel:   cancel,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.serve(ctx)
	}()

	return s, nil
}

func (s *Server) serve(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() == nil {
				slog.Debug("accept error", "error", err)
			}
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			newSession(conn, s).handle(ctx)
		}()
	}
}

// Addr returns the listener address as host:port.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Host returns the listener IP.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the listener port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

// Messages returns a copy of the envelopes accepted so far, in order.
func (s *Server) Messages() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Envelope, len(s.messages))
	copy(out, s.messages)
	return out
}

// Close stops accepting connections and waits for open sessions to end.
func (s *Server) Close() {
	s.cancel()
	s.listener.Close()
	s.wg.Wait()
}

func (s *Server) deliver(env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, env)
}

func (s *Server) rejects(addr string) bool {
	return s.config.RejectRecipient != nil && s.config.RejectRecipient(addr)
}
