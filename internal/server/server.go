// Package server runs the gateway's accept loop: one TCP (optionally TLS)
// listener speaking the Mongo wire protocol, handing each accepted
// connection off to its own goroutine running the read-dispatch-write loop.
// Generalized from the original implementation's dual Postgres/MySQL proxy
// listener down to the gateway's single protocol.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/documentdb/gatewaygw/internal/certs"
	"github.com/documentdb/gatewaygw/internal/gwcontext"
	"github.com/documentdb/gatewaygw/internal/metrics"
)

// Server accepts Mongo-wire connections and runs each one to completion on
// its own goroutine, tracked so Stop can wait for every in-flight
// connection to finish its current request before the process exits.
type Server struct {
	service *gwcontext.ServiceContext
	certs   *certs.Provider
	metrics *metrics.Collector
	log     *slog.Logger

	listener net.Listener
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewServer builds a Server bound to svc for request handling and certs for
// the TLS identity it presents to clients. certs may be nil, in which case
// Listen accepts plaintext connections — used by tests and by any operator
// deployment that terminates TLS upstream of the gateway.
func NewServer(svc *gwcontext.ServiceContext, certProvider *certs.Provider, m *metrics.Collector, log *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		service: svc,
		certs:   certProvider,
		metrics: m,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Listen opens the listener on host:port and starts the accept loop in the
// background. It returns once the listener is bound, not once it stops
// serving.
func (s *Server) Listen(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln
	s.log.Info("gateway listening", "addr", addr, "tls", s.certs != nil)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ln)
	}()
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.log.Warn("accept error", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(conn)
		}()
	}
}

// serve wraps conn in TLS (if configured) before handing it to the
// connection loop. Unlike a Postgres frontend, the Mongo wire protocol has
// no in-band SSL negotiation message — a TLS-enabled client simply begins
// its handshake on the raw socket, so the gateway must terminate TLS
// immediately at accept time rather than after reading a first message.
func (s *Server) serve(conn net.Conn) {
	defer conn.Close()

	remoteAddr := conn.RemoteAddr()
	sslProtocol := ""
	if s.certs != nil {
		tlsConn := tls.Server(conn, s.certs.Config())
		if err := tlsConn.Handshake(); err != nil {
			s.log.Warn("tls handshake failed", "remote", remoteAddr, "error", err)
			return
		}
		sslProtocol = tlsVersionName(tlsConn.ConnectionState().Version)
		conn = tlsConn
	}

	c := newConnection(s.ctx, s.service, s.metrics, s.log, conn, remoteAddr, sslProtocol)
	c.run()
}

func tlsVersionName(v uint16) string {
	switch v {
	case tls.VersionTLS10:
		return "TLSv1.0"
	case tls.VersionTLS11:
		return "TLSv1.1"
	case tls.VersionTLS12:
		return "TLSv1.2"
	case tls.VersionTLS13:
		return "TLSv1.3"
	default:
		return "unknown"
	}
}

// Stop closes the listener, cancels every connection's context, and waits
// for all in-flight goroutines to return.
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	s.log.Info("gateway stopped")
}
