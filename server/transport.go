package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type (
	// TransportConfig holds the options of the WebSocket transport.
	TransportConfig struct {
		RxBufferSize  int // bytes read from the connection at once
		MaxPacketSize int // larger packets are skipped
	}

	// Server accepts a single WebSocket client at a time and feeds its binary
	// messages to a session.
	Server struct {
		session  *Session
		cfg      TransportConfig
		upgrader websocket.Upgrader
		busy     atomic.Bool
	}
)

// DefaultMaxPacketSize is used when TransportConfig.MaxPacketSize is not set.
const DefaultMaxPacketSize = 16 << 20

// NewServer creates a server feeding s.
func NewServer(s *Session, cfg TransportConfig) *Server {
	cfg.RxBufferSize = max(cfg.RxBufferSize, 1)
	if cfg.MaxPacketSize <= 0 {
		cfg.MaxPacketSize = DefaultMaxPacketSize
	}
	return &Server{
		session: s,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize: cfg.RxBufferSize,
			CheckOrigin:    func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
// A second client is refused while one is connected.
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logrus.WithFields(logrus.Fields{"function": "Server.ServeHTTP", "remote": r.RemoteAddr})
	if !srv.busy.CompareAndSwap(false, true) {
		log.Warn("refusing a second client")
		http.Error(w, ErrBusy.Error(), http.StatusServiceUnavailable)
		return
	}
	defer srv.busy.Store(false)
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-r.Context().Done():
			conn.Close()
		case <-done:
		}
	}()
	log.Info("client connected")
	err = srv.serve(r.Context(), conn)
	srv.session.Disconnect()
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.WithError(err).Warn("client connection lost")
		return
	}
	log.Info("client disconnected")
}

func (srv *Server) serve(ctx context.Context, conn *websocket.Conn) error {
	log := logrus.WithFields(logrus.Fields{"function": "Server.serve"})
	asm := NewAssembler(srv.cfg.MaxPacketSize)
	chunk := make([]byte, srv.cfg.RxBufferSize)
	for {
		mt, rd, err := conn.NextReader()
		if err != nil {
			return err
		}
		if mt != websocket.BinaryMessage {
			log.WithField("type", mt).Debug("ignoring non binary message")
			continue
		}
		for {
			n, err := rd.Read(chunk)
			final := errors.Is(err, io.EOF)
			if err != nil && !final {
				return err
			}
			packet, aerr := asm.Write(chunk[:n], final)
			if aerr != nil {
				log.WithError(aerr).Warn("skipping packet")
			}
			if packet != nil {
				if herr := srv.session.Handle(ctx, packet); herr != nil {
					log.WithError(herr).Debug("packet discarded")
				}
			}
			if final {
				break
			}
		}
	}
}

// ListenAndServe serves clients on addr until ctx is done.
func (srv *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return srv.Serve(ctx, ln)
}

// Serve serves clients on ln until ctx is done.
func (srv *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:     srv,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		hs.Shutdown(shutdown)
	}()
	logrus.WithFields(logrus.Fields{"function": "Server.Serve", "addr": ln.Addr().String()}).Info("listening")
	if err := hs.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
