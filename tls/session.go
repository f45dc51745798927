package tls

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"sync"
	"time"

	"github.com/agentuity/go-cellular/logger"
	cellnet "github.com/agentuity/go-cellular/net"
	"github.com/agentuity/go-cellular/status"
	"github.com/cockroachdb/errors"
)

// DefaultMaxResponseBytes caps ReadAllUntilClose when Config leaves it unset.
const DefaultMaxResponseBytes = 1 << 20

const readChunk = 16 * 1024

// State is the handshake progress of a Session.
type State int

const (
	StateIdle State = iota
	StateHandshaking
	StateEstablished
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHandshaking:
		return "handshaking"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Config tunes a Session.
type Config struct {
	// RootCAs verifies the peer chain. nil uses the system pool.
	RootCAs *x509.CertPool
	// SkipChainVerify disables chain verification. The hostname check still runs.
	SkipChainVerify bool
	// MaxResponseBytes bounds ReadAllUntilClose, 0 means DefaultMaxResponseBytes.
	MaxResponseBytes int64
	// Funcs overrides the socket transport.
	Funcs *IOFuncs
}

// Session is a TLS client session over a ConnectedSocket it owns. It is driven by one goroutine.
type Session struct {
	logger    logger.Logger
	cfg       Config
	conn      *net.TCPConn
	cc        *callbackConn
	tconn     *tls.Conn
	state     State
	peer      *x509.Certificate
	closeOnce sync.Once
	closeErr  error
}

// NewSession takes ownership of sock. On error the socket has already been released.
func NewSession(log logger.Logger, sock *cellnet.ConnectedSocket, cfg Config) (*Session, error) {
	conn, err := sock.Detach()
	if err != nil {
		return nil, status.Wrap(status.CannotSpecifySSLIOConnection, err, "take socket")
	}
	funcs := cfg.Funcs
	if funcs == nil {
		t, err := NewTransport(conn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		funcs = t.Funcs()
	}
	if !funcs.complete() {
		conn.Close()
		return nil, status.New(status.CannotSpecifySSLFunctionsNeeded, "pull, push and readiness callbacks are required")
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	return &Session{
		logger: log.WithPrefix("[tls]"),
		cfg:    cfg,
		conn:   conn,
		cc:     &callbackConn{Conn: conn, funcs: funcs},
	}, nil
}

func (s *Session) State() State {
	return s.state
}

// PeerCertificate is the leaf presented by the server, nil before a successful handshake.
func (s *Session) PeerCertificate() *x509.Certificate {
	return s.peer
}

// ConnectionState returns the negotiated parameters after a handshake.
func (s *Session) ConnectionState() tls.ConnectionState {
	if s.tconn == nil {
		return tls.ConnectionState{}
	}
	return s.tconn.ConnectionState()
}

// watch applies the context deadline to the socket and aborts blocked I/O on cancellation.
func (s *Session) watch(ctx context.Context) func() {
	deadline, _ := ctx.Deadline()
	s.conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetDeadline(time.Unix(1, 0))
	})
	return func() { stop() }
}

func (s *Session) fail(st status.Status, err error, detail string) error {
	s.state = StateFailed
	return status.Wrap(st, err, detail)
}

// Handshake negotiates TLS and then requires the leaf certificate to match hostname, regardless
// of what chain verification concluded.
func (s *Session) Handshake(ctx context.Context, hostname string) error {
	if s.state != StateIdle {
		return status.New(status.ErrorPerformingSSLHandshake, "handshake in state %s", s.state)
	}
	s.state = StateHandshaking
	defer s.watch(ctx)()

	s.tconn = tls.Client(s.cc, &tls.Config{
		ServerName:         hostname,
		MinVersion:         tls.VersionTLS12,
		NextProtos:         []string{"http/1.1"},
		InsecureSkipVerify: true, // chain checked in verifyChain, hostname checked below
		VerifyConnection:   s.verifyChain,
	})
	started := time.Now()
	if err := s.tconn.HandshakeContext(ctx); err != nil {
		return s.fail(status.ErrorPerformingSSLHandshake, err, "handshake with "+hostname)
	}
	cs := s.tconn.ConnectionState()
	if len(cs.PeerCertificates) == 0 {
		return s.fail(status.ErrorPerformingSSLHandshake, nil, "peer sent no certificate")
	}
	s.peer = cs.PeerCertificates[0]
	if err := s.peer.VerifyHostname(hostname); err != nil {
		return s.fail(status.PeersCertificateDoesNotMatchWithRequestedUrl, err, "peer certificate for "+hostname)
	}
	s.state = StateEstablished
	s.logger.Debug("handshake with %s done in %v (%s, %s)", hostname, time.Since(started), tls.VersionName(cs.Version), tls.CipherSuiteName(cs.CipherSuite))
	return nil
}

func (s *Session) verifyChain(cs tls.ConnectionState) error {
	if s.cfg.SkipChainVerify {
		return nil
	}
	if len(cs.PeerCertificates) == 0 {
		return errors.New("no peer certificates")
	}
	opts := x509.VerifyOptions{
		Roots:         s.cfg.RootCAs,
		Intermediates: x509.NewCertPool(),
	}
	for _, c := range cs.PeerCertificates[1:] {
		opts.Intermediates.AddCert(c)
	}
	_, err := cs.PeerCertificates[0].Verify(opts)
	return err
}

// Write sends p in full.
func (s *Session) Write(ctx context.Context, p []byte) (int, error) {
	if s.state != StateEstablished {
		return 0, status.New(status.ErrorPerformingSSLWriteOperation, "write in state %s", s.state)
	}
	defer s.watch(ctx)()
	n, err := s.tconn.Write(p)
	if err != nil {
		return n, s.fail(status.ErrorPerformingSSLWriteOperation, err, "write")
	}
	s.logger.Trace("wrote %d bytes", n)
	return n, nil
}

// ReadAllUntilClose reads application data until the peer closes. A close without close_notify
// returns everything read so far together with an
// SSLSessionDidNotCloseGracefullyAfterPerformingSSLReadOperation error.
func (s *Session) ReadAllUntilClose(ctx context.Context) ([]byte, error) {
	if s.state != StateEstablished {
		return nil, status.New(status.ErrorReadingHttpResponse, "read in state %s", s.state)
	}
	defer s.watch(ctx)()
	var buf bytes.Buffer
	chunk := make([]byte, readChunk)
	for {
		n, err := s.tconn.Read(chunk)
		buf.Write(chunk[:n])
		if int64(buf.Len()) > s.cfg.MaxResponseBytes {
			return buf.Bytes(), s.fail(status.ErrorReadingHttpResponse, nil, "response larger than limit")
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF) && !s.cc.peerClosedTransport():
			s.logger.Trace("peer sent close_notify after %d bytes", buf.Len())
			return buf.Bytes(), nil
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			s.logger.Debug("peer closed without close_notify after %d bytes", buf.Len())
			return buf.Bytes(), status.Wrap(status.SSLSessionDidNotCloseGracefullyAfterPerformingSSLReadOperation, err, "read")
		default:
			return buf.Bytes(), s.fail(status.ErrorReadingHttpResponse, err, "read")
		}
	}
}

// Close sends close_notify when established and releases the socket. Safe to call repeatedly.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.tconn != nil && s.state == StateEstablished {
			s.closeErr = s.tconn.Close()
		} else {
			s.closeErr = s.conn.Close()
		}
		if s.state != StateFailed {
			s.state = StateClosed
		}
	})
	return s.closeErr
}
