// Package session runs one HTTPS request over a single network interface and reduces the outcome
// to a Result.
package session

import (
	"context"
	"net/netip"
	"runtime/debug"
	"strings"
	"time"

	"github.com/agentuity/go-cellular/dns"
	"github.com/agentuity/go-cellular/logger"
	cellnet "github.com/agentuity/go-cellular/net"
	"github.com/agentuity/go-cellular/status"
	"github.com/agentuity/go-cellular/telemetry"
	"github.com/agentuity/go-cellular/tls"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/idna"
)

// Resolver looks a hostname up over one interface.
type Resolver interface {
	Resolve(ctx context.Context, hostname string, interfaceName string) (*cellnet.ResolvedEndpoint, error)
}

// Connector opens a socket bound to the endpoint's interface.
type Connector interface {
	Connect(ctx context.Context, endpoint *cellnet.ResolvedEndpoint) (*cellnet.ConnectedSocket, error)
}

type executorOptions struct {
	resolver       Resolver
	connector      Connector
	tracerProvider trace.TracerProvider
	recordBytes    int
	tls            *tls.Config
}

type Option func(*executorOptions)

// WithResolver replaces the DNS resolver built from Config.DNS.
func WithResolver(r Resolver) Option {
	return func(o *executorOptions) {
		o.resolver = r
	}
}

// WithConnector replaces the interface-bound connector.
func WithConnector(c Connector) Option {
	return func(o *executorOptions) {
		o.connector = c
	}
}

// WithTracerProvider sets where spans go, the global provider otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *executorOptions) {
		o.tracerProvider = tp
	}
}

// WithRecording captures the log lines of every session into Result.Log, keeping at most
// maxBytes per session. Zero means unbounded.
func WithRecording(maxBytes int) Option {
	return func(o *executorOptions) {
		o.recordBytes = maxBytes
	}
}

// WithTLSConfig replaces the TLS settings derived from Config.
func WithTLSConfig(cfg tls.Config) Option {
	return func(o *executorOptions) {
		o.tls = &cfg
	}
}

// Executor runs sessions. Calls share no mutable state and may run concurrently.
type Executor struct {
	root        logger.Logger
	logger      logger.Logger
	cfg         Config
	timeout     time.Duration
	resolver    Resolver
	connector   Connector
	tracer      trace.Tracer
	recordBytes int // negative when recording is off
	tls         tls.Config
}

// New validates cfg and builds the pipeline stages it describes.
func New(log logger.Logger, cfg Config, opts ...Option) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &executorOptions{tracerProvider: otel.GetTracerProvider(), recordBytes: -1}
	for _, opt := range opts {
		opt(options)
	}

	e := &Executor{
		root:        log,
		logger:      log.WithPrefix("[session]"),
		cfg:         cfg,
		timeout:     cfg.SessionTimeout(),
		resolver:    options.resolver,
		connector:   options.connector,
		tracer:      options.tracerProvider.Tracer(tracerName),
		recordBytes: options.recordBytes,
	}
	if e.resolver == nil {
		r, err := dns.NewResolver(log, cfg.ResolverConfig())
		if err != nil {
			return nil, err
		}
		e.resolver = r
	}
	if e.connector == nil {
		e.connector = cellnet.NewConnector(log, cellnet.WithConnectTimeout(cfg.ConnectTimeoutDuration()))
	}
	if options.tls != nil {
		e.tls = *options.tls
	} else {
		pool, err := tls.LoadRootCAs(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		e.tls = tls.Config{
			RootCAs:          pool,
			SkipChainVerify:  cfg.InsecureSkipChainVerify,
			MaxResponseBytes: cfg.MaxResponseBytes,
		}
	}
	return e, nil
}

func (e *Executor) fill(req Request) Request {
	if req.Port == 0 {
		req.Port = e.cfg.port()
	}
	if req.Method == "" {
		req.Method = e.cfg.method()
	}
	if req.Interface == "" {
		req.Interface = e.cfg.Interface
	}
	if req.Path == "" {
		req.Path = "/"
	}
	return req
}

// ExecuteURL parses rawURL and executes it over the configured interface. A URL that cannot name
// an https host fails with CannotFindRoutesForHttpRequest without touching the network.
func (e *Executor) ExecuteURL(ctx context.Context, rawURL string) Result {
	req, err := ParseURL(rawURL)
	if err != nil {
		e.logger.Warn("rejecting url %q: %v", rawURL, err)
		res := failure(status.Wrap(status.CannotFindRoutesForHttpRequest, err, "url"))
		res.SessionID = uuid.NewString()
		return res
	}
	return e.Execute(ctx, req)
}

// Execute resolves, connects, handshakes and exchanges one request. Exactly one Result is
// returned and every socket has been released by then.
func (e *Executor) Execute(ctx context.Context, req Request) (result Result) {
	id := uuid.NewString()
	base := e.root
	var rec *logger.SessionRecorder
	if e.recordBytes >= 0 {
		rec = logger.NewSessionRecorder(e.recordBytes)
		rec.Start(id)
		sink := logger.NewConsoleLogger(logger.LevelNone)
		sink.SetSink(rec, logger.LevelTrace)
		base = sink.Stack(base)
	}
	base = logger.WithKV(base, "session", id)
	req = e.fill(req)
	started := time.Now()

	ctx, base, span := telemetry.StartSpan(ctx, base, e.tracer, "cellular.session", trace.WithAttributes(
		attribute.String("cellular.session_id", id),
		attribute.String("cellular.interface", req.Interface),
		attribute.String("server.address", req.Hostname),
		attribute.Int("server.port", req.Port),
		attribute.String("http.request.method", req.Method),
	))
	// the resolver and connector are shared, they pick the session logger up from ctx
	ctx = logger.NewContext(ctx, base)
	log := base.WithPrefix("[session]")
	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered from panic: %v\n%s", r, debug.Stack())
			result = failure(status.Wrap(status.UnexpectedError, errors.Newf("panic: %v", r), "session aborted"))
		}
		result.SessionID = id
		result.Duration = time.Since(started)
		span.SetAttributes(attribute.String("cellular.status", result.Status.String()))
		if result.OK() {
			span.SetStatus(codes.Ok, "")
		} else {
			span.SetStatus(codes.Error, result.Status.String())
		}
		span.End()
		log.Info("%s%s via %s: %s in %v", req.Hostname, req.Path, req.Interface, result.Status, result.Duration.Round(time.Millisecond))
		if rec != nil {
			result.Log = rec.Text()
			result.LogDropped = rec.Dropped()
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.run(ctx, log, req)
}

func (e *Executor) run(ctx context.Context, log logger.Logger, req Request) Result {
	host := strings.TrimSuffix(strings.TrimSpace(req.Hostname), ".")
	if _, err := netip.ParseAddr(host); err != nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil || ascii == "" {
			return failure(status.Wrapf(status.CannotFindRemoteAddressOfRemoteUrl, err, "invalid hostname %q", req.Hostname))
		}
		host = ascii
	}

	endpoint, err := stage(ctx, e.tracer, "resolve", func(ctx context.Context) (*cellnet.ResolvedEndpoint, error) {
		return e.resolver.Resolve(ctx, host, req.Interface)
	})
	if err != nil {
		tracef(log, "resolve %s failed: %v", host, err)
		return failure(err)
	}
	tracef(log, "resolved %s", endpoint)

	sock, err := stage(ctx, e.tracer, "connect", func(ctx context.Context) (*cellnet.ConnectedSocket, error) {
		return e.connector.Connect(ctx, endpoint.WithPort(req.Port))
	})
	if err != nil {
		tracef(log, "connect failed: %v", err)
		return failure(err)
	}
	defer sock.Close()
	tracef(log, "connected to %s", sock.RemoteAddress())

	sess, err := tls.NewSession(log, sock, e.tls)
	if err != nil {
		tracef(log, "tls setup failed: %v", err)
		return failure(err)
	}
	defer sess.Close()

	if _, err := stage(ctx, e.tracer, "handshake", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, sess.Handshake(ctx, host)
	}); err != nil {
		tracef(log, "handshake with %s failed: %v", host, err)
		return failure(err)
	}
	tracef(log, "handshake complete")

	raw, err := stage(ctx, e.tracer, "exchange", func(ctx context.Context) ([]byte, error) {
		if _, err := sess.Write(ctx, req.wireFormat(e.cfg.userAgent())); err != nil {
			return nil, err
		}
		return sess.ReadAllUntilClose(ctx)
	})
	if err != nil && status.Of(err) != status.SSLSessionDidNotCloseGracefullyAfterPerformingSSLReadOperation {
		tracef(log, "exchange failed: %v", err)
		return failure(err)
	}
	tracef(log, "read %d bytes", len(raw))
	return classify(log, req, raw, err)
}

// classify turns the raw response into a Result. closeErr is set when the peer closed without
// close_notify, which is only tolerated when the response parsed completely.
func classify(log logger.Logger, req Request, raw []byte, closeErr error) Result {
	resp, err := parseResponse(raw, req.Method)
	if err != nil {
		if closeErr != nil {
			return failure(closeErr)
		}
		if errors.Is(err, errNoStatusLine) {
			return failure(status.Wrap(status.UnknownHttpResponse, err, "no http response"))
		}
		return failure(status.Wrap(status.ErrorReadingHttpResponse, err, "incomplete response"))
	}
	if closeErr != nil {
		tracef(log, "response complete, ignoring missing close_notify")
	}
	tracef(log, "%s", resp.line)
	switch {
	case resp.code >= 200 && resp.code < 300:
		return success(resp.body)
	case resp.code >= 300 && resp.code < 400 && resp.location != "":
		return Result{Status: status.UnknownHttpResponse, Payload: RedirectPrefix + resp.location}
	default:
		return failure(status.New(status.UnknownHttpResponse, "%s", resp.line))
	}
}
