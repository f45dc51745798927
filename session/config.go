package session

import (
	"fmt"
	"os"
	"time"

	"github.com/agentuity/go-cellular/dns"
	"github.com/go-playground/validator/v10"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort             = 443
	DefaultMethod           = "GET"
	DefaultTimeout          = "30s"
	DefaultConnectTimeout   = "5s"
	DefaultMaxResponseBytes = 1 << 20
	DefaultUserAgent        = "go-cellular/1.0"
)

// Config is what an Executor needs to know about the target and the interface.
type Config struct {
	// Interface is the name of the network interface every socket is bound to
	Interface string `yaml:"interface"`
	// Port is the remote port, 443 unless set
	Port int `yaml:"port" validate:"omitempty,min=1,max=65535"`
	// Method is GET or POST
	Method string `yaml:"method" validate:"omitempty,oneof=GET POST"`
	// Timeout bounds a whole session
	Timeout string `yaml:"timeout"`
	// ConnectTimeout bounds each connect attempt
	ConnectTimeout string `yaml:"connect_timeout"`
	// IPVersion is any, ipv4 or ipv6
	IPVersion string `yaml:"ip_version" validate:"omitempty,oneof=any ipv4 ipv6"`
	// MaxResponseBytes caps the raw response
	MaxResponseBytes int64 `yaml:"max_response_bytes" validate:"gte=0"`
	UserAgent        string `yaml:"user_agent"`
	// CAFile is a PEM bundle used instead of the system roots
	CAFile string `yaml:"ca_file" validate:"omitempty,file"`
	// InsecureSkipChainVerify disables chain verification. The hostname is always checked.
	InsecureSkipChainVerify bool          `yaml:"insecure_skip_chain_verify"`
	DNS                     dns.DNSConfig `yaml:"dns"`
}

// DefaultConfig returns a config with every default filled in.
func DefaultConfig() Config {
	return Config{
		Port:             DefaultPort,
		Method:           DefaultMethod,
		Timeout:          DefaultTimeout,
		ConnectTimeout:   DefaultConnectTimeout,
		IPVersion:        dns.IPVersionAny,
		MaxResponseBytes: DefaultMaxResponseBytes,
		UserAgent:        DefaultUserAgent,
		DNS: dns.DNSConfig{
			QueryTimeout: "5s",
			Protocol:     "udp",
		},
	}
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	buf, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("error reading config: %w", err)
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and that every duration parses.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.DNS.Validate(); err != nil {
		return err
	}
	if _, err := parseDuration("timeout", c.Timeout, DefaultTimeout); err != nil {
		return err
	}
	if _, err := parseDuration("connect_timeout", c.ConnectTimeout, DefaultConnectTimeout); err != nil {
		return err
	}
	return nil
}

func parseDuration(name, val, def string) (time.Duration, error) {
	if val == "" {
		val = def
	}
	d, err := str2duration.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, val, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", name, val)
	}
	return d, nil
}

// SessionTimeout is the deadline applied to one Execute call.
func (c *Config) SessionTimeout() time.Duration {
	d, _ := parseDuration("timeout", c.Timeout, DefaultTimeout)
	return d
}

// ConnectTimeoutDuration bounds each connect attempt.
func (c *Config) ConnectTimeoutDuration() time.Duration {
	d, _ := parseDuration("connect_timeout", c.ConnectTimeout, DefaultConnectTimeout)
	return d
}

// ResolverConfig is the DNS block with the session level ip version applied when the block
// leaves it unset.
func (c *Config) ResolverConfig() dns.DNSConfig {
	out := c.DNS
	if out.IPVersion == "" {
		out.IPVersion = c.IPVersion
	}
	return out
}

func (c *Config) port() int {
	if c.Port == 0 {
		return DefaultPort
	}
	return c.Port
}

func (c *Config) method() string {
	if c.Method == "" {
		return DefaultMethod
	}
	return c.Method
}

func (c *Config) userAgent() string {
	if c.UserAgent == "" {
		return DefaultUserAgent
	}
	return c.UserAgent
}
