// Package status serves the readiness token over TCP.
//
// Every accepted connection receives the current lifecycle token
// ("starting", "updating" or "ready") with no trailing newline and is then
// closed. The server never reads from the peer.
package status

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/hastewatch/pkg/constants"
	hwerrors "github.com/agentstation/hastewatch/pkg/errors"
	"github.com/agentstation/hastewatch/pkg/lifecycle"
)

// StateFunc reports the current state. It must not block.
type StateFunc func() lifecycle.State

// Config holds listener settings.
type Config struct {
	Host         string
	Port         int
	WriteTimeout time.Duration
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server answers status queries.
type Server struct {
	ln      net.Listener
	state   StateFunc
	logger  *zerolog.Logger
	timeout time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}
}

// Listen binds the status address. Serving starts with Serve.
func Listen(ctx context.Context, cfg Config, state StateFunc, logger *zerolog.Logger) (*Server, error) {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = constants.StatusWriteTimeout
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, hwerrors.WrapIO("listen", cfg.Addr(), err)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Server{
		ln:      ln,
		state:   state,
		logger:  logger,
		timeout: cfg.WriteTimeout,
		closed:  make(chan struct{}),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until Close is called or ctx is done. It
// returns nil after an orderly close.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	s.logger.Info().Str("addr", s.Addr().String()).Msg("Status endpoint listening")
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				s.wg.Wait()
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return hwerrors.WrapIO("accept", s.Addr().String(), err)
		}
		// state is read at accept time
		token := s.state().String()
		s.wg.Add(1)
		go s.reply(conn, token)
	}
}

func (s *Server) reply(conn net.Conn, token string) {
	defer s.wg.Done()
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(s.timeout))
	if _, err := io.WriteString(conn, token); err != nil {
		s.logger.Debug().Err(err).Str("peer", conn.RemoteAddr().String()).Msg("Status write failed")
	}
}

// Close stops accepting connections. It is safe to call more than once.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.ln.Close()
	})
	return err
}

// Query connects to addr and returns the reported state.
func Query(ctx context.Context, addr string) (lifecycle.State, error) {
	d := net.Dialer{Timeout: constants.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", hwerrors.WrapIO("dial", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Now().Add(constants.DialTimeout))
	}
	data, err := io.ReadAll(io.LimitReader(conn, 64))
	if err != nil {
		return "", hwerrors.WrapIO("read", addr, err)
	}
	return lifecycle.Parse(string(data))
}
