package dns

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDNSConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  DNSConfig
		wantErr bool
	}{
		{"empty config", DNSConfig{}, false},
		{"valid config", DNSConfig{Nameservers: []string{"8.8.8.8:53", "[2001:4860:4860::8888]:53"}, QueryTimeout: "1500ms", Protocol: "tcp", IPVersion: "ipv6"}, false},
		{"nameserver without port", DNSConfig{Nameservers: []string{"8.8.8.8"}}, true},
		{"blank nameserver", DNSConfig{Nameservers: []string{""}}, true},
		{"bad protocol", DNSConfig{Protocol: "quic"}, true},
		{"bad ip version", DNSConfig{IPVersion: "ipv5"}, true},
		{"bad timeout", DNSConfig{QueryTimeout: "soon"}, true},
		{"negative timeout", DNSConfig{QueryTimeout: "-1s"}, true},
		{"cname depth too large", DNSConfig{MaxCNAMEDepth: 100}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDNSConfig_Timeout(t *testing.T) {
	c := DNSConfig{}
	d, err := c.Timeout()
	assert.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	c.QueryTimeout = "1d"
	d, err = c.Timeout()
	assert.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)
}

func TestDNSConfig_QueryTypes(t *testing.T) {
	assert.Equal(t, []uint16{dns.TypeA, dns.TypeAAAA}, (&DNSConfig{}).QueryTypes())
	assert.Equal(t, []uint16{dns.TypeA}, (&DNSConfig{IPVersion: "IPv4"}).QueryTypes())
	assert.Equal(t, []uint16{dns.TypeAAAA}, (&DNSConfig{IPVersion: "ipv6"}).QueryTypes())
}

func TestDefaultDNSConfig(t *testing.T) {
	config := DefaultDNSConfig()
	assert.NotEmpty(t, config.Nameservers)
	assert.Equal(t, "5s", config.QueryTimeout)
	assert.Equal(t, maxRecursionDepth, config.MaxCNAMEDepth)
	assert.NoError(t, config.Validate())
}

func TestNameserversFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resolv.conf")
	require.NoError(t, os.WriteFile(path, []byte("nameserver 127.0.0.53\nnameserver 10.0.0.1\nnameserver 2001:db8::53\n"), 0o644))
	assert.Equal(t, []string{"10.0.0.1:53", "[2001:db8::53]:53"}, nameserversFromFile(path))

	require.NoError(t, os.WriteFile(path, []byte("nameserver 127.0.0.53\n"), 0o644))
	assert.Equal(t, DefaultExternalDNSServers, nameserversFromFile(path))

	assert.Equal(t, DefaultExternalDNSServers, nameserversFromFile(filepath.Join(dir, "missing")))
}
