package net

import (
	"context"
	"net"
	"os"
	"sync"
	"time"

	"github.com/agentuity/go-cellular/logger"
	"github.com/agentuity/go-cellular/status"
	"github.com/cockroachdb/errors"
)

const DefaultConnectTimeout = 5 * time.Second

// Connector opens TCP sockets pinned to the interface an endpoint was resolved on.
type Connector struct {
	logger     logger.Logger
	timeout    time.Duration
	bind       BindFunc
	lookup     InterfaceLookup
	routeCheck bool
}

type connectorOptions struct {
	timeout    time.Duration
	bind       BindFunc
	lookup     InterfaceLookup
	routeCheck bool
}

type ConnectorOption func(*connectorOptions)

// WithConnectTimeout bounds each connect attempt.
func WithConnectTimeout(d time.Duration) ConnectorOption {
	return func(opts *connectorOptions) {
		opts.timeout = d
	}
}

// WithBindFunc replaces the platform interface binding.
func WithBindFunc(bind BindFunc) ConnectorOption {
	return func(opts *connectorOptions) {
		opts.bind = bind
	}
}

// WithInterfaceLookup replaces the system interface lookup used to confirm the interface is
// still present before connecting.
func WithInterfaceLookup(lookup InterfaceLookup) ConnectorOption {
	return func(opts *connectorOptions) {
		opts.lookup = lookup
	}
}

// WithRouteCheck toggles dropping candidates whose family has no address on the interface.
func WithRouteCheck(enabled bool) ConnectorOption {
	return func(opts *connectorOptions) {
		opts.routeCheck = enabled
	}
}

func NewConnector(log logger.Logger, opts ...ConnectorOption) *Connector {
	options := &connectorOptions{
		timeout:    DefaultConnectTimeout,
		bind:       BindToInterface,
		lookup:     LookupInterface,
		routeCheck: true,
	}
	for _, opt := range opts {
		opt(options)
	}
	return &Connector{
		logger:     log.WithPrefix("[net]"),
		timeout:    options.timeout,
		bind:       options.bind,
		lookup:     options.lookup,
		routeCheck: options.routeCheck,
	}
}

// Connect tries the endpoint's candidates in order and returns the first socket that connects.
func (c *Connector) Connect(ctx context.Context, endpoint *ResolvedEndpoint) (*ConnectedSocket, error) {
	if endpoint == nil || endpoint.Interface == nil {
		return nil, status.New(status.CannotObtainNetworkInterfaces, "endpoint has no interface")
	}
	log := c.logger
	if l, ok := logger.FromContext(ctx); ok {
		log = l.WithPrefix("[net]")
	}
	iface, err := c.lookup(endpoint.Interface.Name)
	if err != nil {
		if status.Of(err) == status.UnexpectedError {
			err = status.Wrap(status.CannotObtainNetworkInterfaces, err, "interface lookup")
		}
		return nil, err
	}
	if iface.Index != endpoint.Interface.Index {
		log.Warn("interface %s changed index from %d to %d since resolution", iface.Name, endpoint.Interface.Index, iface.Index)
	}

	candidates := make([]SocketAddress, 0, len(endpoint.Addresses))
	for _, addr := range endpoint.Addresses {
		if !addr.IsValid() {
			log.Debug("skipping unusable address for %s", endpoint.Hostname)
			continue
		}
		if c.routeCheck && !iface.HasFamily(addr.Family()) {
			log.Debug("no %s route on %s for %s", addr.Family(), iface.Name, addr)
			continue
		}
		candidates = append(candidates, addr)
	}
	if len(candidates) == 0 {
		if len(endpoint.Addresses) == 0 {
			return nil, status.New(status.CannotConnectSocketToRemoteAddress, "no candidate addresses for %s", endpoint.Hostname)
		}
		return nil, status.New(status.CannotFindRoutesForHttpRequest, "interface %s has no route for any address of %s", iface.Name, endpoint.Hostname)
	}

	dialer := &net.Dialer{
		Timeout: c.timeout,
		Control: Control(c.bind, iface),
	}

	var errs error
	for i, addr := range candidates {
		log.Trace("connecting to %s (%d/%d) via %s", addr, i+1, len(candidates), iface.Name)
		started := time.Now()
		conn, err := dialer.DialContext(ctx, addr.Network("tcp"), addr.AddrPort().String())
		if err == nil {
			log.Debug("connected to %s via %s in %v", addr, iface.Name, time.Since(started))
			return &ConnectedSocket{conn: conn.(*net.TCPConn), remote: addr, iface: iface}, nil
		}
		if s := classifyDialError(err); s != status.CannotConnectSocketToRemoteAddress {
			return nil, status.Wrapf(s, err, "connect %s via %s", addr, iface.Name)
		}
		log.Debug("connect to %s failed: %v", addr, err)
		errs = errors.CombineErrors(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, status.Wrapf(status.CannotConnectSocketToRemoteAddress, errs, "all %d candidates of %s failed", len(candidates), endpoint.Hostname)
}

// classifyDialError separates failures that end the attempt from those that move on to the next
// candidate.
func classifyDialError(err error) status.Status {
	var bindErr *BindError
	if errors.As(err, &bindErr) {
		return status.CannotObtainNetworkInterfaces
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) && sysErr.Syscall == "socket" {
		return status.UnableToInstantiateSockets
	}
	return status.CannotConnectSocketToRemoteAddress
}

// ConnectedSocket is a connected TCP socket bound to one interface. It has exactly one owner:
// the Connector hands it to the caller, and Detach transfers the descriptor to whoever drives the
// session from then on.
type ConnectedSocket struct {
	mu       sync.Mutex
	conn     *net.TCPConn
	remote   SocketAddress
	iface    *Interface
	detached bool
	closed   bool
}

// NewConnectedSocket wraps an already connected socket.
func NewConnectedSocket(conn *net.TCPConn, iface *Interface) *ConnectedSocket {
	var remote SocketAddress
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		remote = FromAddrPort(addr.AddrPort())
	}
	return &ConnectedSocket{conn: conn, remote: remote, iface: iface}
}

func (s *ConnectedSocket) RemoteAddress() SocketAddress {
	return s.remote
}

func (s *ConnectedSocket) Interface() *Interface {
	return s.iface
}

// Detach hands over the connection. It succeeds once, after which Close on s is a no-op and the
// new owner is responsible for closing the connection.
func (s *ConnectedSocket) Detach() (*net.TCPConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached || s.closed {
		return nil, status.New(status.UnexpectedError, "socket already detached or closed")
	}
	s.detached = true
	return s.conn, nil
}

// Close releases the socket unless it was detached. It is safe to call more than once.
func (s *ConnectedSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached || s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
