package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/luhtfiimanal/go-sc64"
)

// Config for the bridge.
type Config struct {
	Address   string
	KeepAlive time.Duration
	// Options are applied to every client connection.
	Options []sc64.Option
}

// Server exposes one local device to remote hosts over the stream protocol.
// Only one client is served at a time; others wait in the accept backlog.
type Server struct {
	backend   sc64.Backend
	keepAlive time.Duration
	options   []sc64.Option
	address   string
	log       zerolog.Logger
	metrics   *metrics
}

type metrics struct {
	connections prometheus.Counter
	forwarded   *prometheus.CounterVec
}

// New returns a bridge for backend. The backend is owned by the caller.
func New(backend sc64.Backend, cfg Config, log zerolog.Logger, reg prometheus.Registerer) *Server {
	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = time.Second
	}
	m := &metrics{
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sc64",
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Accepted client connections.",
		}),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sc64",
			Subsystem: "server",
			Name:      "forwarded_frames_total",
			Help:      "Frames passed between client and device.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.forwarded)
	}
	return &Server{
		backend:   backend,
		keepAlive: keepAlive,
		options:   cfg.Options,
		address:   cfg.Address,
		log:       log,
		metrics:   m,
	}
}

// ListenAndServe listens on the configured address and serves until ctx is
// done or the device fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("couldn't listen on [%s]: %w", s.address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts clients on ln one after another. It returns nil when ctx
// is cancelled and an error when the device side fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info().Str("address", ln.Addr().String()).Msg("listening")

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.metrics.connections.Inc()

		err = s.handle(ctx, conn)
		var devErr *deviceError
		if errors.As(err, &devErr) {
			return devErr.err
		}
	}
}

// deviceError marks failures on the device side, which end the server.
type deviceError struct {
	err error
}

func (e *deviceError) Error() string { return "device: " + e.err.Error() }
func (e *deviceError) Unwrap() error { return e.err }

func (s *Server) handle(ctx context.Context, conn net.Conn) error {
	session := uuid.New()
	log := s.log.With().Str("session", session.String()).Str("client", conn.RemoteAddr().String()).Logger()
	log.Info().Msg("client connected")

	client := sc64.NewStreamDevice(conn, s.options...)
	defer client.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	err := s.forward(client)
	switch {
	case ctx.Err() != nil:
		log.Info().Msg("client disconnected, shutting down")
		return nil
	case err == nil:
		return nil
	default:
		var devErr *deviceError
		if errors.As(err, &devErr) {
			log.Error().Err(err).Msg("device failure")
		} else {
			log.Info().Err(err).Msg("client disconnected")
		}
		return err
	}
}

// forward shuttles frames until either side fails.
func (s *Server) forward(client *sc64.StreamDevice) error {
	var packets sc64.PacketQueue
	lastSent := time.Now()

	for {
		cmd, err := client.ReceiveCommand(false)
		if err != nil {
			return err
		}
		if cmd != nil {
			if err := s.backend.SendCommand(cmd); err != nil {
				return &deviceError{err: err}
			}
			s.metrics.forwarded.WithLabelValues("command").Inc()
		}

		response, err := s.backend.ProcessIncomingData(sc64.DataTypePacket, &packets)
		if err != nil {
			return &deviceError{err: err}
		}
		for {
			packet, ok := packets.Pop()
			if !ok {
				break
			}
			if err := client.SendPacket(&packet); err != nil {
				return err
			}
			s.metrics.forwarded.WithLabelValues("packet").Inc()
			lastSent = time.Now()
		}
		if response != nil {
			if err := client.SendResponse(response); err != nil {
				return err
			}
			s.metrics.forwarded.WithLabelValues("response").Inc()
			lastSent = time.Now()
		}

		if time.Since(lastSent) >= s.keepAlive {
			if err := client.SendKeepAlive(); err != nil {
				return err
			}
			s.metrics.forwarded.WithLabelValues("keepalive").Inc()
			lastSent = time.Now()
		}
	}
}
