package sna

import (
	"context"
	"time"

	"github.com/agentuity/go-cellular/logger"
	"github.com/agentuity/go-cellular/resilience"
	"github.com/cockroachdb/errors"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultPollTimeout  = 4 * time.Second
)

var (
	errAvailabilityUnknown = errors.New("interface state not known yet")
	errUnavailable         = errors.New("interface unavailable")
)

// URLProcessor is satisfied by Processor.
type URLProcessor interface {
	ProcessURL(ctx context.Context, rawURL string) error
}

type verifierOptions struct {
	interval time.Duration
	timeout  time.Duration
}

type VerifierOption func(*verifierOptions)

// WithPolling sets how often and for how long the monitor is asked before giving up.
func WithPolling(interval, timeout time.Duration) VerifierOption {
	return func(o *verifierOptions) {
		o.interval = interval
		o.timeout = timeout
	}
}

// Verifier gates a Processor on the cellular interface being available.
type Verifier struct {
	logger    logger.Logger
	iface     string
	monitor   Monitor
	processor URLProcessor
	poll      resilience.RetryConfig
}

func NewVerifier(log logger.Logger, iface string, monitor Monitor, processor URLProcessor, opts ...VerifierOption) *Verifier {
	options := &verifierOptions{interval: DefaultPollInterval, timeout: DefaultPollTimeout}
	for _, opt := range opts {
		opt(options)
	}
	return &Verifier{
		logger:    log.WithPrefix("[sna]"),
		iface:     iface,
		monitor:   monitor,
		processor: processor,
		poll:      resilience.ConstantBackoff(options.interval, options.timeout),
	}
}

// ProcessURL waits while the interface state is unknown, fails at once when it is known to be
// unavailable and otherwise hands rawURL to the processor.
func (v *Verifier) ProcessURL(ctx context.Context, rawURL string) error {
	if err := v.waitForCellular(ctx); err != nil {
		return &Error{Kind: KindCellularNetworkNotAvailable, URL: rawURL, Err: err}
	}
	return v.processor.ProcessURL(ctx, rawURL)
}

func (v *Verifier) waitForCellular(ctx context.Context) error {
	return resilience.Retry(ctx, v.poll, func() error {
		a, err := v.monitor.Availability(ctx, v.iface)
		if err != nil {
			v.logger.Debug("monitor failed for %s: %v", v.iface, err)
			return errors.Mark(err, errAvailabilityUnknown)
		}
		switch a {
		case Available:
			return nil
		case Unavailable:
			return resilience.Permanent(errors.Wrapf(errUnavailable, "%s", v.iface))
		default:
			v.logger.Trace("%s state unknown, waiting", v.iface)
			return errAvailabilityUnknown
		}
	})
}
