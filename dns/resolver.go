package dns

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/agentuity/go-cellular/logger"
	cellnet "github.com/agentuity/go-cellular/net"
	"github.com/agentuity/go-cellular/status"
	"github.com/cockroachdb/errors"
	"github.com/miekg/dns"
	"golang.org/x/net/idna"
	"golang.org/x/sync/errgroup"
)

const (
	dnsPacketSize     = 1232 // EDNS0-safe UDP payload size to avoid IPv6 fragmentation
	maxRecursionDepth = 10   // maximum CNAME chain depth
)

var (
	errNXDomain = errors.New("no such host")
	errNoAnswer = errors.New("no address in answer")
)

// Resolver resolves hostnames by sending every query through a socket pinned to one interface,
// so the answer reflects what that network sees rather than the default route.
type Resolver struct {
	logger      logger.Logger
	nameservers []string
	timeout     time.Duration
	protocol    string
	qtypes      []uint16
	maxDepth    int
	lookup      cellnet.InterfaceLookup
	bind        cellnet.BindFunc
}

type resolverOptions struct {
	lookup cellnet.InterfaceLookup
	bind   cellnet.BindFunc
}

type ResolverOption func(*resolverOptions)

// WithInterfaceLookup replaces the system interface lookup.
func WithInterfaceLookup(lookup cellnet.InterfaceLookup) ResolverOption {
	return func(opts *resolverOptions) {
		opts.lookup = lookup
	}
}

// WithBindFunc replaces the platform interface binding for query sockets.
func WithBindFunc(bind cellnet.BindFunc) ResolverOption {
	return func(opts *resolverOptions) {
		opts.bind = bind
	}
}

func NewResolver(log logger.Logger, config DNSConfig, opts ...ResolverOption) (*Resolver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	timeout, _ := config.Timeout()
	options := &resolverOptions{
		lookup: cellnet.LookupInterface,
		bind:   cellnet.BindToInterface,
	}
	for _, opt := range opts {
		opt(options)
	}
	nameservers := config.Nameservers
	if len(nameservers) == 0 {
		nameservers = GetSystemNameservers()
	}
	protocol := config.Protocol
	if protocol == "" {
		protocol = "udp"
	}
	depth := config.MaxCNAMEDepth
	if depth == 0 {
		depth = maxRecursionDepth
	}
	return &Resolver{
		logger:      log.WithPrefix("[dns]"),
		nameservers: nameservers,
		timeout:     timeout,
		protocol:    protocol,
		qtypes:      config.QueryTypes(),
		maxDepth:    depth,
		lookup:      options.lookup,
		bind:        options.bind,
	}, nil
}

// log prefers the caller's logger from ctx so resolution lines land with that call.
func (r *Resolver) log(ctx context.Context) logger.Logger {
	if log, ok := logger.FromContext(ctx); ok {
		return log.WithPrefix("[dns]")
	}
	return r.logger
}

// Resolve looks hostname up over interfaceName. The first query that yields addresses wins.
// A missing interface fails straight away with CannotObtainNetworkInterfaces. No such host, an
// empty answer and the timeout all report CannotFindRemoteAddressOfRemoteUrl, any other server
// error reports UnexpectedError.
func (r *Resolver) Resolve(ctx context.Context, hostname string, interfaceName string) (*cellnet.ResolvedEndpoint, error) {
	iface, err := r.lookup(interfaceName)
	if err != nil {
		if status.Of(err) != status.CannotObtainNetworkInterfaces {
			err = status.Wrapf(status.CannotObtainNetworkInterfaces, err, "interface %q", interfaceName)
		}
		return nil, err
	}

	host := strings.TrimSuffix(strings.TrimSpace(hostname), ".")
	if host == "" {
		return nil, status.New(status.CannotFindRemoteAddressOfRemoteUrl, "empty hostname")
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return r.literal(hostname, addr, iface)
	}
	name, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return nil, status.Wrapf(status.CannotFindRemoteAddressOfRemoteUrl, err, "invalid hostname %q", hostname)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	h := r.start(ctx, iface, dns.Fqdn(name))
	defer h.stop()

	var failures []error
	for pending := len(r.qtypes); pending > 0; pending-- {
		select {
		case o := <-h.results:
			if o.err == nil {
				r.log(ctx).Debug("resolved %s (%s) via %s to %v ttl=%v", name, dns.TypeToString[o.qtype], iface.Name, o.addrs, o.ttl)
				return &cellnet.ResolvedEndpoint{
					Hostname:  hostname,
					Addresses: o.addrs,
					Interface: iface,
					TTL:       o.ttl,
				}, nil
			}
			r.log(ctx).Debug("%s query for %s failed: %v", dns.TypeToString[o.qtype], name, o.err)
			failures = append(failures, o.err)
		case <-ctx.Done():
			return nil, status.Wrapf(status.CannotFindRemoteAddressOfRemoteUrl, ctx.Err(), "no answer for %s within %v", name, r.timeout)
		}
	}
	return nil, pickFailure(name, failures)
}

func (r *Resolver) literal(hostname string, addr netip.Addr, iface *cellnet.Interface) (*cellnet.ResolvedEndpoint, error) {
	addr = addr.Unmap()
	wanted := false
	for _, q := range r.qtypes {
		if (q == dns.TypeA && addr.Is4()) || (q == dns.TypeAAAA && addr.Is6()) {
			wanted = true
		}
	}
	if !wanted {
		return nil, status.New(status.CannotFindRemoteAddressOfRemoteUrl, "address %s excluded by ip version", addr)
	}
	return &cellnet.ResolvedEndpoint{
		Hostname:  hostname,
		Addresses: []cellnet.SocketAddress{cellnet.FromAddrPort(netip.AddrPortFrom(addr, 0))},
		Interface: iface,
	}, nil
}

// pickFailure reports the most specific failure among the per type queries.
func pickFailure(name string, failures []error) error {
	rank := func(err error) int {
		switch {
		case status.Of(err) == status.CannotObtainNetworkInterfaces:
			return 3
		case errors.Is(err, errNXDomain):
			return 2
		case status.Of(err) == status.UnexpectedError:
			return 1
		}
		return 0
	}
	var best error
	for _, err := range failures {
		if best == nil || rank(err) > rank(best) {
			best = err
		}
	}
	if best == nil {
		return status.New(status.CannotFindRemoteAddressOfRemoteUrl, "no answer for %s", name)
	}
	return best
}

type outcome struct {
	qtype uint16
	addrs []cellnet.SocketAddress
	ttl   time.Duration
	err   error
}

// lookupHandle is one in flight resolution. stop must run on every exit path; it cancels the
// outstanding queries and waits for their sockets to close.
type lookupHandle struct {
	cancel  context.CancelFunc
	g       *errgroup.Group
	results chan outcome
}

func (r *Resolver) start(ctx context.Context, iface *cellnet.Interface, fqdn string) *lookupHandle {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	h := &lookupHandle{cancel: cancel, g: g, results: make(chan outcome, len(r.qtypes))}
	for _, qtype := range r.qtypes {
		g.Go(func() error {
			addrs, ttl, err := r.query(gctx, iface, fqdn, qtype, 0)
			h.results <- outcome{qtype: qtype, addrs: addrs, ttl: ttl, err: err}
			return nil
		})
	}
	return h
}

func (h *lookupHandle) stop() {
	h.cancel()
	h.g.Wait()
}

// query asks each nameserver in turn until one gives a definitive answer.
func (r *Resolver) query(ctx context.Context, iface *cellnet.Interface, fqdn string, qtype uint16, depth int) ([]cellnet.SocketAddress, time.Duration, error) {
	if depth > r.maxDepth {
		return nil, 0, status.New(status.CannotFindRemoteAddressOfRemoteUrl, "cname chain for %s longer than %d", fqdn, r.maxDepth)
	}
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, qtype)
	msg.RecursionDesired = true
	msg.SetEdns0(dnsPacketSize, false)

	var lastErr error
	for _, ns := range r.nameservers {
		resp, err := r.exchange(ctx, iface, ns, msg)
		if err != nil {
			if status.Of(err) == status.CannotObtainNetworkInterfaces {
				return nil, 0, err
			}
			r.log(ctx).Trace("query %s (%s) to %s failed: %v", fqdn, dns.TypeToString[qtype], ns, err)
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		switch resp.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return nil, 0, status.Wrapf(status.CannotFindRemoteAddressOfRemoteUrl, errNXDomain, "%s", strings.TrimSuffix(fqdn, "."))
		default:
			lastErr = status.New(status.UnexpectedError, "%s answered %s for %s", ns, dns.RcodeToString[resp.Rcode], fqdn)
			continue
		}

		addrs, ttl, target := extract(resp, qtype)
		if len(addrs) > 0 {
			return addrs, ttl, nil
		}
		if target != "" {
			r.log(ctx).Trace("%s is an alias for %s", fqdn, target)
			more, moreTTL, err := r.query(ctx, iface, target, qtype, depth+1)
			if err != nil {
				return nil, 0, err
			}
			return more, min(ttl, moreTTL), nil
		}
		return nil, 0, status.Wrapf(status.CannotFindRemoteAddressOfRemoteUrl, errNoAnswer, "%s %s", fqdn, dns.TypeToString[qtype])
	}
	if lastErr == nil {
		lastErr = errors.New("no nameservers configured")
	}
	if status.Of(lastErr) == status.UnexpectedError && !isServerError(lastErr) {
		lastErr = status.Wrapf(status.CannotFindRemoteAddressOfRemoteUrl, lastErr, "%s", fqdn)
	}
	return nil, 0, lastErr
}

// isServerError tells a classified rcode failure apart from an unclassified transport error.
func isServerError(err error) bool {
	var se *status.Error
	return errors.As(err, &se) && se.Err == nil
}

// extract returns the addresses of type qtype in the answer, the minimum TTL seen and, when the
// answer is only an alias, the CNAME target to follow.
func extract(resp *dns.Msg, qtype uint16) ([]cellnet.SocketAddress, time.Duration, string) {
	var (
		addrs  []cellnet.SocketAddress
		target string
		ttl    uint32
		seen   bool
	)
	for _, rr := range resp.Answer {
		var ip net.IP
		switch v := rr.(type) {
		case *dns.A:
			if qtype == dns.TypeA {
				ip = v.A
			}
		case *dns.AAAA:
			if qtype == dns.TypeAAAA {
				ip = v.AAAA
			}
		case *dns.CNAME:
			target = v.Target
		default:
			continue
		}
		if !seen || rr.Header().Ttl < ttl {
			ttl = rr.Header().Ttl
			seen = true
		}
		if ip == nil {
			continue
		}
		if addr, ok := netip.AddrFromSlice(ip); ok {
			addrs = append(addrs, cellnet.FromAddrPort(netip.AddrPortFrom(addr.Unmap(), 0)))
		}
	}
	if len(addrs) > 0 {
		target = ""
	}
	return addrs, time.Duration(ttl) * time.Second, target
}

// exchange sends msg to ns over a socket bound to iface, retrying over TCP when the UDP answer
// is truncated.
func (r *Resolver) exchange(ctx context.Context, iface *cellnet.Interface, ns string, msg *dns.Msg) (*dns.Msg, error) {
	resp, err := r.exchangeOver(ctx, r.protocol, iface, ns, msg)
	if err == nil && resp.Truncated && r.protocol == "udp" {
		r.log(ctx).Trace("truncated answer from %s, retrying over tcp", ns)
		return r.exchangeOver(ctx, "tcp", iface, ns, msg)
	}
	return resp, err
}

func (r *Resolver) exchangeOver(ctx context.Context, network string, iface *cellnet.Interface, ns string, msg *dns.Msg) (*dns.Msg, error) {
	dialer := &net.Dialer{Control: cellnet.Control(r.bind, iface)}
	conn, err := dialer.DialContext(ctx, network, ns)
	if err != nil {
		var bindErr *cellnet.BindError
		if errors.As(err, &bindErr) {
			return nil, status.Wrapf(status.CannotObtainNetworkInterfaces, err, "bind query socket to %s", iface.Name)
		}
		return nil, fmt.Errorf("failed to connect to nameserver via %s: %w", strings.ToUpper(network), err)
	}
	defer conn.Close()
	unwatch := context.AfterFunc(ctx, func() { conn.Close() })
	defer unwatch()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	co := &dns.Conn{Conn: conn, UDPSize: dnsPacketSize}
	if err := co.WriteMsg(msg); err != nil {
		return nil, fmt.Errorf("failed to write DNS message via %s: %w", strings.ToUpper(network), err)
	}
	for {
		resp, err := co.ReadMsg()
		if err != nil {
			return nil, fmt.Errorf("failed to read DNS response via %s: %w", strings.ToUpper(network), err)
		}
		// a stray datagram from an earlier query on the same port is skipped
		if resp.Id == msg.Id {
			return resp, nil
		}
	}
}
