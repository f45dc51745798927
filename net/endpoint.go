package net

import (
	"strings"
	"time"
)

// ResolvedEndpoint is the outcome of resolving a hostname over one interface. It is consumed once
// by a Connector. TTL is informational and nothing caches it.
type ResolvedEndpoint struct {
	Hostname  string
	Addresses []SocketAddress
	Interface *Interface
	TTL       time.Duration
}

// WithPort returns a copy of the endpoint with port set on every candidate.
func (e *ResolvedEndpoint) WithPort(port int) *ResolvedEndpoint {
	out := *e
	out.Addresses = make([]SocketAddress, len(e.Addresses))
	for i, a := range e.Addresses {
		out.Addresses[i] = a.WithPort(port)
	}
	return &out
}

// Expires returns when the answer stops being valid relative to from.
func (e *ResolvedEndpoint) Expires(from time.Time) time.Time {
	return from.Add(e.TTL)
}

func (e *ResolvedEndpoint) String() string {
	addrs := make([]string, len(e.Addresses))
	for i, a := range e.Addresses {
		addrs[i] = a.String()
	}
	iface := ""
	if e.Interface != nil {
		iface = e.Interface.Name
	}
	return e.Hostname + " via " + iface + " [" + strings.Join(addrs, ", ") + "]"
}
