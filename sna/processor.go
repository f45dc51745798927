// Package sna verifies a phone number by fetching a silent network authentication URL over the
// cellular interface and following the carrier's redirects until it reports success.
package sna

import (
	"context"
	"net/url"
	"strings"

	"github.com/agentuity/go-cellular/logger"
	"github.com/agentuity/go-cellular/session"
	"github.com/agentuity/go-cellular/status"
)

const (
	// SuccessMarker appears in the final response of a verified session.
	SuccessMarker = "ErrorCode=0&ErrorDescription=Success"

	DefaultMaxRedirects = 10

	// DefaultMethod is how verification endpoints expect to be called, an empty JSON POST.
	DefaultMethod = "POST"
)

// Executor fetches one URL over the cellular interface.
type Executor interface {
	ExecuteURL(ctx context.Context, rawURL string) session.Result
}

type processorOptions struct {
	maxRedirects int
}

type ProcessorOption func(*processorOptions)

// WithMaxRedirects bounds how many REDIRECT hops are followed.
func WithMaxRedirects(n int) ProcessorOption {
	return func(o *processorOptions) {
		o.maxRedirects = n
	}
}

// Processor walks an SNA URL to its verdict.
type Processor struct {
	logger       logger.Logger
	exec         Executor
	maxRedirects int
}

func NewProcessor(log logger.Logger, exec Executor, opts ...ProcessorOption) *Processor {
	options := &processorOptions{maxRedirects: DefaultMaxRedirects}
	for _, opt := range opts {
		opt(options)
	}
	return &Processor{
		logger:       log.WithPrefix("[sna]"),
		exec:         exec,
		maxRedirects: options.maxRedirects,
	}
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, &Error{Kind: KindInvalidURL, URL: raw, Err: err}
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, &Error{Kind: KindInvalidURL, URL: raw}
	}
	return u, nil
}

func isRedirect(res session.Result) bool {
	_, ok := res.Redirect()
	return ok
}

// ProcessURL fetches rawURL and follows redirects, either a 3xx Location or a REDIRECT: line in
// the body, until a response or a redirect target carries SuccessMarker.
func (p *Processor) ProcessURL(ctx context.Context, rawURL string) error {
	current, err := parseURL(rawURL)
	if err != nil {
		return err
	}
	for hop := 0; ; hop++ {
		if err := ctx.Err(); err != nil {
			return &Error{Kind: KindNetworkingError, Status: status.UnexpectedError, URL: current.String(), Err: err}
		}
		p.logger.Debug("fetching %s (hop %d)", current.Redacted(), hop)
		res := p.exec.ExecuteURL(ctx, current.String())

		// the carrier's last hop usually redirects to a callback carrying the marker, which
		// may not be reachable over cellular, so the marker wins over following it
		if (res.OK() || isRedirect(res)) && strings.Contains(res.Payload, SuccessMarker) {
			p.logger.Info("verified after %d redirects", hop)
			return nil
		}

		var next string
		if res.OK() {
			i := strings.Index(res.Payload, session.RedirectPrefix)
			if i < 0 {
				return &Error{Kind: KindNoResultFromURL, URL: current.String()}
			}
			next = strings.TrimSpace(res.Payload[i+len(session.RedirectPrefix):])
		} else {
			loc, ok := res.Redirect()
			if !ok {
				p.logger.Warn("session %s failed: %s", res.SessionID, res.Status)
				return &Error{Kind: KindNetworkingError, Status: res.Status, URL: current.String(), Detail: res.Payload}
			}
			next = loc
		}

		if hop >= p.maxRedirects {
			return &Error{Kind: KindTooManyRedirects, URL: current.String()}
		}
		ref, err := url.Parse(next)
		if err != nil || next == "" {
			return &Error{Kind: KindInvalidURL, URL: next, Err: err}
		}
		current = current.ResolveReference(ref)
	}
}
