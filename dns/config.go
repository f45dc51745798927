package dns

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/miekg/dns"
	"github.com/xhit/go-str2duration/v2"
)

// DefaultExternalDNSServers is used when no nameserver is configured and none can be read from
// the system configuration.
var DefaultExternalDNSServers = []string{
	"9.9.9.9:53",
	"1.1.1.1:53",
	"8.8.8.8:53",
}

const (
	IPVersionAny  = "any"
	IPVersionIPv4 = "ipv4"
	IPVersionIPv6 = "ipv6"
)

// DNSConfig holds configuration for the interface scoped resolver
type DNSConfig struct {
	// Nameservers are queried in order, as host:port
	Nameservers []string `yaml:"nameservers" validate:"dive,required"`
	// QueryTimeout bounds the whole resolution, e.g. "5s" or "1500ms"
	QueryTimeout string `yaml:"query_timeout"`
	// Protocol is udp (with tcp fallback on truncation) or tcp
	Protocol string `yaml:"protocol" validate:"omitempty,oneof=udp tcp"`
	// IPVersion selects A, AAAA or both
	IPVersion string `yaml:"ip_version" validate:"omitempty,oneof=any ipv4 ipv6"`
	// MaxCNAMEDepth limits how many CNAME hops are followed
	MaxCNAMEDepth int `yaml:"max_cname_depth" validate:"gte=0,lte=32"`
}

// DefaultDNSConfig returns a default DNS configuration using the system nameservers.
func DefaultDNSConfig() DNSConfig {
	return DNSConfig{
		Nameservers:   GetSystemNameservers(),
		QueryTimeout:  "5s",
		Protocol:      "udp",
		IPVersion:     IPVersionAny,
		MaxCNAMEDepth: maxRecursionDepth,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks if the DNS configuration is valid
func (c *DNSConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid dns config: %w", err)
	}
	for _, ns := range c.Nameservers {
		host, port, err := net.SplitHostPort(ns)
		if err != nil {
			return fmt.Errorf("invalid nameserver %q: %w", ns, err)
		}
		if host == "" || port == "" {
			return fmt.Errorf("invalid nameserver %q: host and port are required", ns)
		}
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	return nil
}

// Timeout parses QueryTimeout, defaulting to 5 seconds when unset.
func (c *DNSConfig) Timeout() (time.Duration, error) {
	if c.QueryTimeout == "" {
		return 5 * time.Second, nil
	}
	d, err := str2duration.ParseDuration(c.QueryTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid query_timeout %q: %w", c.QueryTimeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("query_timeout must be positive, got %q", c.QueryTimeout)
	}
	return d, nil
}

// QueryTypes returns the record types to ask for.
func (c *DNSConfig) QueryTypes() []uint16 {
	switch strings.ToLower(c.IPVersion) {
	case IPVersionIPv4:
		return []uint16{dns.TypeA}
	case IPVersionIPv6:
		return []uint16{dns.TypeAAAA}
	}
	return []uint16{dns.TypeA, dns.TypeAAAA}
}

// GetSystemNameservers reads /etc/resolv.conf. Loopback stub resolvers are skipped since queries
// leave through a specific interface and could never reach them. Falls back to
// DefaultExternalDNSServers.
func GetSystemNameservers() []string {
	return nameserversFromFile("/etc/resolv.conf")
}

func nameserversFromFile(path string) []string {
	cfg, err := dns.ClientConfigFromFile(path)
	if err != nil || len(cfg.Servers) == 0 {
		return DefaultExternalDNSServers
	}
	var servers []string
	for _, s := range cfg.Servers {
		if addr, err := netip.ParseAddr(s); err == nil && addr.IsLoopback() {
			continue
		}
		servers = append(servers, net.JoinHostPort(s, cfg.Port))
	}
	if len(servers) == 0 {
		return DefaultExternalDNSServers
	}
	return servers
}
