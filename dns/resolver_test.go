package dns

import (
	"context"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentuity/go-cellular/logger"
	cellnet "github.com/agentuity/go-cellular/net"
	"github.com/agentuity/go-cellular/status"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	addr    string
	queries atomic.Int32
}

func (s *testServer) handle(w dns.ResponseWriter, req *dns.Msg) {
	s.queries.Add(1)
	m := new(dns.Msg)
	m.SetReply(req)
	q := req.Question[0]
	_, overTCP := w.RemoteAddr().(*net.TCPAddr)
	hdr := func(t uint16, ttl uint32) dns.RR_Header {
		return dns.RR_Header{Name: q.Name, Rrtype: t, Class: dns.ClassINET, Ttl: ttl}
	}
	switch q.Name {
	case "example.com.", "xn--bcher-kva.example.":
		if q.Qtype == dns.TypeA {
			m.Answer = append(m.Answer, &dns.A{Hdr: hdr(dns.TypeA, 60), A: net.ParseIP("127.0.0.1")})
			m.Answer = append(m.Answer, &dns.A{Hdr: hdr(dns.TypeA, 120), A: net.ParseIP("127.0.0.2")})
		}
	case "v6.example.com.":
		if q.Qtype == dns.TypeAAAA {
			m.Answer = append(m.Answer, &dns.AAAA{Hdr: hdr(dns.TypeAAAA, 60), AAAA: net.ParseIP("::1")})
		}
	case "alias.example.com.":
		m.Answer = append(m.Answer, &dns.CNAME{Hdr: hdr(dns.TypeCNAME, 30), Target: "example.com."})
	case "loop.example.com.":
		m.Answer = append(m.Answer, &dns.CNAME{Hdr: hdr(dns.TypeCNAME, 30), Target: "loop.example.com."})
	case "missing.example.com.":
		m.Rcode = dns.RcodeNameError
	case "broken.example.com.":
		m.Rcode = dns.RcodeServerFailure
	case "big.example.com.":
		if !overTCP {
			m.Truncated = true
			break
		}
		if q.Qtype == dns.TypeA {
			for i := 1; i <= 40; i++ {
				m.Answer = append(m.Answer, &dns.A{Hdr: hdr(dns.TypeA, 60), A: net.IPv4(127, 0, 1, byte(i))})
			}
		}
	case "slow.example.com.":
		return
	}
	w.WriteMsg(m)
}

// startServer runs a nameserver on the same loopback port for udp and tcp.
func startServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{}
	mux := dns.NewServeMux()
	mux.HandleFunc(".", s.handle)

	var (
		pc net.PacketConn
		ln net.Listener
	)
	for i := 0; i < 20; i++ {
		var err error
		pc, err = net.ListenPacket("udp4", "127.0.0.1:0")
		require.NoError(t, err)
		ln, err = net.Listen("tcp4", pc.LocalAddr().String())
		if err == nil {
			break
		}
		pc.Close()
		pc = nil
	}
	require.NotNil(t, pc, "could not bind udp and tcp on the same port")
	s.addr = pc.LocalAddr().String()

	udp := &dns.Server{PacketConn: pc, Handler: mux}
	tcp := &dns.Server{Listener: ln, Handler: mux}
	started := make(chan struct{}, 2)
	udp.NotifyStartedFunc = func() { started <- struct{}{} }
	tcp.NotifyStartedFunc = func() { started <- struct{}{} }
	go udp.ActivateAndServe()
	go tcp.ActivateAndServe()
	<-started
	<-started
	t.Cleanup(func() {
		udp.Shutdown()
		tcp.Shutdown()
	})
	return s
}

var fakeIface = &cellnet.Interface{
	Name:  "rmnet0",
	Index: 7,
	Addrs: []netip.Prefix{netip.MustParsePrefix("127.0.0.1/8")},
}

func noBind(uintptr, string, int) error { return nil }

func newTestResolver(t *testing.T, s *testServer, cfg DNSConfig, opts ...ResolverOption) *Resolver {
	t.Helper()
	cfg.Nameservers = []string{s.addr}
	if cfg.QueryTimeout == "" {
		cfg.QueryTimeout = "2s"
	}
	opts = append([]ResolverOption{
		WithBindFunc(noBind),
		WithInterfaceLookup(func(name string) (*cellnet.Interface, error) {
			if name != fakeIface.Name {
				return nil, status.New(status.CannotObtainNetworkInterfaces, "no interface %s", name)
			}
			return fakeIface, nil
		}),
	}, opts...)
	r, err := NewResolver(logger.NewTestLogger(), cfg, opts...)
	require.NoError(t, err)
	return r
}

func TestResolveA(t *testing.T) {
	s := startServer(t)
	r := newTestResolver(t, s, DNSConfig{})

	ep, err := r.Resolve(context.Background(), "example.com", "rmnet0")
	require.NoError(t, err)
	assert.Equal(t, "example.com", ep.Hostname)
	assert.Equal(t, fakeIface, ep.Interface)
	require.Len(t, ep.Addresses, 2)
	assert.Equal(t, "127.0.0.1", ep.Addresses[0].String())
	assert.Equal(t, "127.0.0.2", ep.Addresses[1].String())
	assert.Equal(t, 60*time.Second, ep.TTL)
}

func TestResolveAAAA(t *testing.T) {
	s := startServer(t)
	r := newTestResolver(t, s, DNSConfig{IPVersion: IPVersionIPv6})
	ep, err := r.Resolve(context.Background(), "v6.example.com.", "rmnet0")
	require.NoError(t, err)
	require.Len(t, ep.Addresses, 1)
	assert.Equal(t, cellnet.FamilyIPv6, ep.Addresses[0].Family())
}

func TestResolveIPVersionFilter(t *testing.T) {
	s := startServer(t)
	r := newTestResolver(t, s, DNSConfig{IPVersion: IPVersionIPv6})
	_, err := r.Resolve(context.Background(), "example.com", "rmnet0")
	assert.Equal(t, status.CannotFindRemoteAddressOfRemoteUrl, status.Of(err))
}

func TestResolveFollowsCNAME(t *testing.T) {
	s := startServer(t)
	r := newTestResolver(t, s, DNSConfig{IPVersion: IPVersionIPv4})
	ep, err := r.Resolve(context.Background(), "alias.example.com", "rmnet0")
	require.NoError(t, err)
	assert.Len(t, ep.Addresses, 2)
	assert.Equal(t, 30*time.Second, ep.TTL, "ttl is the minimum along the chain")
}

func TestResolveCNAMELoop(t *testing.T) {
	s := startServer(t)
	r := newTestResolver(t, s, DNSConfig{IPVersion: IPVersionIPv4, MaxCNAMEDepth: 3})
	_, err := r.Resolve(context.Background(), "loop.example.com", "rmnet0")
	assert.Equal(t, status.CannotFindRemoteAddressOfRemoteUrl, status.Of(err))
	assert.Contains(t, err.Error(), "longer than 3")
}

func TestResolveNXDomain(t *testing.T) {
	s := startServer(t)
	r := newTestResolver(t, s, DNSConfig{})
	_, err := r.Resolve(context.Background(), "missing.example.com", "rmnet0")
	assert.Equal(t, status.CannotFindRemoteAddressOfRemoteUrl, status.Of(err))
	assert.ErrorIs(t, err, errNXDomain)
}

func TestResolveServerFailure(t *testing.T) {
	s := startServer(t)
	r := newTestResolver(t, s, DNSConfig{})
	_, err := r.Resolve(context.Background(), "broken.example.com", "rmnet0")
	assert.Equal(t, status.UnexpectedError, status.Of(err))
	assert.Contains(t, err.Error(), "SERVFAIL")
}

func TestResolveTimeout(t *testing.T) {
	s := startServer(t)
	r := newTestResolver(t, s, DNSConfig{QueryTimeout: "300ms"})
	started := time.Now()
	_, err := r.Resolve(context.Background(), "slow.example.com", "rmnet0")
	assert.Equal(t, status.CannotFindRemoteAddressOfRemoteUrl, status.Of(err))
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestResolveTruncatedFallsBackToTCP(t *testing.T) {
	s := startServer(t)
	r := newTestResolver(t, s, DNSConfig{IPVersion: IPVersionIPv4})
	ep, err := r.Resolve(context.Background(), "big.example.com", "rmnet0")
	require.NoError(t, err)
	assert.Len(t, ep.Addresses, 40)
}

func TestResolveMissingInterfaceFailsFast(t *testing.T) {
	s := startServer(t)
	r := newTestResolver(t, s, DNSConfig{QueryTimeout: "5s"})
	started := time.Now()
	_, err := r.Resolve(context.Background(), "example.com", "wwan9")
	assert.Equal(t, status.CannotObtainNetworkInterfaces, status.Of(err))
	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, int32(0), s.queries.Load())
}

func TestResolveBindFailure(t *testing.T) {
	s := startServer(t)
	r := newTestResolver(t, s, DNSConfig{}, WithBindFunc(func(uintptr, string, int) error {
		return net.UnknownNetworkError("denied")
	}))
	_, err := r.Resolve(context.Background(), "example.com", "rmnet0")
	assert.Equal(t, status.CannotObtainNetworkInterfaces, status.Of(err))
}

func TestResolveLiteral(t *testing.T) {
	s := startServer(t)
	r := newTestResolver(t, s, DNSConfig{})
	ep, err := r.Resolve(context.Background(), "192.0.2.10", "rmnet0")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10", ep.Addresses[0].String())
	assert.Equal(t, int32(0), s.queries.Load())

	r4 := newTestResolver(t, s, DNSConfig{IPVersion: IPVersionIPv4})
	_, err = r4.Resolve(context.Background(), "::1", "rmnet0")
	assert.Equal(t, status.CannotFindRemoteAddressOfRemoteUrl, status.Of(err))
}

func TestResolveIDNA(t *testing.T) {
	s := startServer(t)
	r := newTestResolver(t, s, DNSConfig{IPVersion: IPVersionIPv4})
	ep, err := r.Resolve(context.Background(), "bücher.example", "rmnet0")
	require.NoError(t, err)
	assert.Equal(t, "bücher.example", ep.Hostname)
	assert.Len(t, ep.Addresses, 2)
}

func TestResolveEmptyHostname(t *testing.T) {
	s := startServer(t)
	r := newTestResolver(t, s, DNSConfig{})
	_, err := r.Resolve(context.Background(), " . ", "rmnet0")
	assert.Equal(t, status.CannotFindRemoteAddressOfRemoteUrl, status.Of(err))
}

func TestResolveOverRealLoopback(t *testing.T) {
	lo, err := cellnet.LoopbackInterface()
	if err != nil {
		t.Skip("no loopback interface")
	}
	s := startServer(t)
	r, err := NewResolver(logger.NewTestLogger(), DNSConfig{Nameservers: []string{s.addr}, QueryTimeout: "2s", IPVersion: IPVersionIPv4})
	require.NoError(t, err)
	ep, err := r.Resolve(context.Background(), "example.com", lo.Name)
	if status.Of(err) == status.CannotObtainNetworkInterfaces {
		t.Skipf("cannot bind to %s: %v", lo.Name, err)
	}
	require.NoError(t, err)
	assert.Equal(t, lo.Index, ep.Interface.Index)
}
